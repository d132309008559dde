package registry

// NonRetryableError marks a failure that redelivery cannot fix: an unknown
// event type, a malformed envelope, a missing publisher. The relay
// dead-letters such rows and consumers ack such messages.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

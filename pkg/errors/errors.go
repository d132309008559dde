// Package errors carries the engine's error taxonomy. Every failure that
// crosses a service boundary is an *Error with a Code; the code decides the
// HTTP status, whether a caller may retry, and what the client gets to see.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInsufficient  Code = "INSUFFICIENT_BALANCE"
	CodeLockTimeout   Code = "LOCK_TIMEOUT"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	final   = false
	retry   = true
	opaque  = false
	details = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, final, "validation failed", details},
	CodeUnauthorized:  {http.StatusUnauthorized, final, "authentication required", opaque},
	CodeForbidden:     {http.StatusForbidden, final, "access denied", opaque},
	CodeNotFound:      {http.StatusNotFound, final, "resource not found", opaque},
	CodeConflict:      {http.StatusConflict, final, "conflict detected", opaque},
	CodeStateConflict: {http.StatusUnprocessableEntity, final, "state transition disallowed", details},
	CodeIdempotency:   {http.StatusConflict, final, "idempotency key reused", details},
	CodeRateLimit:     {http.StatusTooManyRequests, final, "rate limit exceeded", opaque},
	CodeInsufficient:  {http.StatusUnprocessableEntity, final, "insufficient balance", details},
	CodeLockTimeout:   {http.StatusServiceUnavailable, retry, "resource busy, retry later", opaque},
	CodeInternal:      {http.StatusInternalServerError, retry, "internal server error", opaque},
	CodeDependency:    {http.StatusServiceUnavailable, retry, "dependency unavailable", details},
}

// MetadataFor returns the policy for code. Unknown codes are treated as
// internal errors.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return string(e.code) + ": " + e.message
	}
	return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// Retryable reports whether a caller may try err's operation again. Errors
// without a code are assumed transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if typed := As(err); typed != nil {
		return MetadataFor(typed.Code()).Retryable
	}
	return true
}

package registry

import (
	"encoding/json"
	"fmt"
	"sync"
)

// DecoderFunc turns an envelope's data into a typed event.
type DecoderFunc func(data json.RawMessage) (any, error)

type decoderKey struct {
	eventType string
	version   int
}

// DecoderRegistry maps (event type, envelope version) to a decoder on the
// consuming side, so a schema bump can ship a new decoder next to the old one.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[decoderKey]DecoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: map[decoderKey]DecoderFunc{}}
}

// Register installs decode for eventType at version, replacing any earlier one.
func (r *DecoderRegistry) Register(eventType string, version int, decode DecoderFunc) {
	r.mu.Lock()
	r.decoders[decoderKey{eventType, version}] = decode
	r.mu.Unlock()
}

// RegisterJSON installs a decoder that unmarshals into T. Malformed data is
// non-retryable.
func RegisterJSON[T any](r *DecoderRegistry, eventType string, version int) {
	r.Register(eventType, version, func(data json.RawMessage) (any, error) {
		var out T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, NewNonRetryableError(fmt.Errorf("decode %s@v%d: %w", eventType, version, err))
		}
		return out, nil
	})
}

// Decode runs the matching decoder. An unknown pair is non-retryable since
// redelivery cannot fix it.
func (r *DecoderRegistry) Decode(eventType string, version int, data json.RawMessage) (any, error) {
	r.mu.RLock()
	decode, ok := r.decoders[decoderKey{eventType, version}]
	r.mu.RUnlock()
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("no decoder for %s@v%d", eventType, version))
	}
	return decode(data)
}

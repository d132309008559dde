// Package idempotency suppresses redelivered Pub/Sub messages per consumer.
// It is a cheap first filter: settlement markers in the database remain the
// source of truth for exactly-once ledger effects.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrMissingID is returned when the consumer name or event id is blank.
var ErrMissingID = errors.New("consumer and event id are required")

// Store is the subset of the redis client the manager needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager remembers processed event ids for ttl. Keys live under
// pf:idempotency:evt:processed:<consumer>:<event_id>.
type Manager struct {
	store Store
	ttl   time.Duration
}

// NewManager returns a Manager. A zero ttl keeps markers forever.
func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed atomically claims eventID for consumer. It reports
// true when an earlier delivery already claimed it.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Delete drops the claim so the next redelivery is processed again. Consumers
// call it when handling failed after the claim.
func (m *Manager) Delete(ctx context.Context, consumer, eventID string) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer, eventID string) (string, error) {
	consumer, eventID = strings.TrimSpace(consumer), strings.TrimSpace(eventID)
	if consumer == "" || eventID == "" {
		return "", ErrMissingID
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID), nil
}

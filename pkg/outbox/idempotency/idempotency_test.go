package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	memoryStore
	ttls   map[string]time.Duration
	failNX error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{memoryStore: memoryStore{}, ttls: map[string]time.Duration{}}
}

func (r *recordingStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if r.failNX != nil {
		return false, r.failNX
	}
	r.ttls[key] = ttl
	return r.memoryStore.SetNX(ctx, key, value, ttl)
}

const processedKey = "pf:idempotency:evt:processed:order-consumer:msg-1"

func TestClaimThenRedelivery(t *testing.T) {
	store := newRecordingStore()
	m, err := NewManager(store, 24*time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := m.CheckAndMarkProcessed(ctx, "order-consumer", "msg-1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, 24*time.Hour, store.ttls[processedKey])

	seen, err = m.CheckAndMarkProcessed(ctx, " order-consumer ", "msg-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = m.CheckAndMarkProcessed(ctx, "audit-consumer", "msg-1")
	require.NoError(t, err)
	assert.False(t, seen, "claims are per consumer")
}

func TestDeleteAllowsReprocessing(t *testing.T) {
	store := newRecordingStore()
	m, err := NewManager(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = m.CheckAndMarkProcessed(ctx, "order-consumer", "msg-1")
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, "order-consumer", "msg-1"))
	assert.NotContains(t, store.memoryStore, processedKey)

	seen, err := m.CheckAndMarkProcessed(ctx, "order-consumer", "msg-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestManagerErrors(t *testing.T) {
	store := newRecordingStore()
	m, err := NewManager(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = m.CheckAndMarkProcessed(ctx, "", "msg")
	assert.ErrorIs(t, err, ErrMissingID)
	assert.ErrorIs(t, m.Delete(ctx, "order-consumer", " "), ErrMissingID)

	store.failNX = errors.New("redis down")
	_, err = m.CheckAndMarkProcessed(ctx, "order-consumer", "msg-2")
	assert.EqualError(t, err, "redis down")

	_, err = NewManager(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewManager(store, -time.Second)
	assert.Error(t, err)
}

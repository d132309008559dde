package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-rewards/internal/settlement"
	"github.com/angelmondragon/packfinderz-rewards/pkg/config"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

type memLocks struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memLocks) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = value.(string)
	return true, nil
}

func (m *memLocks) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] != value {
		return false, nil
	}
	delete(m.keys, key)
	return true, nil
}

func (m *memLocks) LockKey(parts ...string) string {
	key := "lock"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func TestNewRequiresClients(t *testing.T) {
	_, err := New(Params{Logger: logger.Nop()})
	require.Error(t, err)
}

func TestEngineSettlesAndErases(t *testing.T) {
	ctx := context.Background()
	eng, err := New(Params{
		Config:     &config.Config{},
		Logger:     logger.Nop(),
		DB:         dbtest.Client(t, models.All()...),
		Locks:      &memLocks{keys: map[string]string{}},
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	_, err = eng.Affiliate.SetCode(ctx, "ref-1", "greenleaf")
	require.NoError(t, err)

	out, err := eng.Settlement.OrderCompleted(ctx, settlement.OrderCompleted{
		OrderID:       "o-1",
		CustomerID:    "cust-1",
		TotalCents:    10000,
		AffiliateCode: "greenleaf",
		PlacedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Positive(t, out.Credited)

	bal, err := eng.Ledger.GetBalance(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, out.Credited, bal)

	require.NoError(t, eng.Erasure.Erase(ctx, "ref-1"))
	bal, err = eng.Ledger.GetBalance(ctx, "ref-1")
	require.NoError(t, err)
	assert.Zero(t, bal)

	stats, err := eng.Reporting.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.OutstandingCents)
}

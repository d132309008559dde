package main

import (
	"context"
	"errors"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-rewards/pkg/config"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/metrics"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox/payloads"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox/registry"
)

type fakePubSub struct{}

func (fakePubSub) Ping(context.Context) error            { return nil }
func (fakePubSub) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	errs []error
	sent []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	return fakeResult{err: err}
}

type fakeResult struct{ err error }

func (r fakeResult) Get(context.Context) (string, error) { return "server-id", r.err }

type relayFixture struct {
	conn  *gorm.DB
	relay *Relay
	pub   *fakePublisher
	topic []string
	reg   *prometheus.Registry
}

func newRelayFixture(t *testing.T, maxAttempts int) *relayFixture {
	t.Helper()
	conn := dbtest.Open(t, &models.OutboxEvent{}, &models.OutboxDLQ{})
	events, err := registry.NewEventRegistry(config.PubSubConfig{RewardsTopic: "pf-rewards-events"})
	require.NoError(t, err)

	f := &relayFixture{conn: conn, pub: &fakePublisher{}, reg: prometheus.NewRegistry()}
	f.relay, err = NewRelay(RelayParams{
		Outbox:     config.OutboxConfig{BatchSize: 10, MaxAttempts: maxAttempts},
		Logger:     logger.Nop(),
		DB:         db.Wrap(conn),
		PubSub:     fakePubSub{},
		Repository: outbox.NewRepository(conn),
		Registry:   events,
		DLQ:        outbox.NewDLQRepository(conn),
		Metrics:    metrics.NewRewardsMetrics(f.reg),
		Publishers: func(topic string) publisher {
			f.topic = append(f.topic, topic)
			return f.pub
		},
	})
	require.NoError(t, err)
	return f
}

func (f *relayFixture) emitTierUpgrade(t *testing.T, userID string) {
	t.Helper()
	svc := outbox.NewService(outbox.NewRepository(f.conn), logger.Nop())
	require.NoError(t, svc.Emit(context.Background(), f.conn, outbox.DomainEvent{
		EventType:     enums.EventTierUpgraded,
		AggregateType: enums.AggregateUser,
		AggregateID:   userID,
		Data:          payloads.TierUpgraded{UserID: userID, FromRate: "0.05", ToRate: "0.07", Conversions: 10},
	}))
}

func (f *relayFixture) row(t *testing.T) models.OutboxEvent {
	t.Helper()
	var row models.OutboxEvent
	require.NoError(t, f.conn.First(&row).Error)
	return row
}

func (f *relayFixture) deadLetters(t *testing.T) []models.OutboxDLQ {
	t.Helper()
	var rows []models.OutboxDLQ
	require.NoError(t, f.conn.Find(&rows).Error)
	return rows
}

func TestRelayPublishesWithRoutingAttributes(t *testing.T) {
	f := newRelayFixture(t, 5)
	f.emitTierUpgrade(t, "user-7")

	n, err := f.relay.relayBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, f.pub.sent, 1)
	assert.Equal(t, []string{"pf-rewards-events"}, f.topic)
	attrs := f.pub.sent[0].Attributes
	row := f.row(t)
	assert.Equal(t, string(enums.EventTierUpgraded), attrs["event_type"])
	assert.Equal(t, "user-7", attrs["aggregate_id"])
	assert.Equal(t, row.ID.String(), attrs["event_id"])
	assert.Equal(t, "1", attrs["schema_version"])
	assert.NotNil(t, row.PublishedAt)

	n, err = f.relay.relayBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelayRetriesTransientFailure(t *testing.T) {
	f := newRelayFixture(t, 5)
	f.emitTierUpgrade(t, "user-1")
	f.pub.errs = []error{errors.New("unavailable")}

	_, err := f.relay.relayBatch(context.Background())
	require.NoError(t, err)
	row := f.row(t)
	assert.Nil(t, row.PublishedAt)
	assert.Equal(t, 1, row.AttemptCount)
	require.NotNil(t, row.LastError)
	assert.Contains(t, *row.LastError, "unavailable")

	_, err = f.relay.relayBatch(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, f.row(t).PublishedAt)
	assert.Empty(t, f.deadLetters(t))
}

func TestRelayDeadLettersAfterMaxAttempts(t *testing.T) {
	f := newRelayFixture(t, 1)
	f.emitTierUpgrade(t, "user-1")
	f.pub.errs = []error{errors.New("unavailable")}

	_, err := f.relay.relayBatch(context.Background())
	require.NoError(t, err)

	dlq := f.deadLetters(t)
	require.Len(t, dlq, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, dlq[0].ErrorReason)
	assert.Equal(t, f.row(t).ID, dlq[0].EventID)

	n, err := f.relay.relayBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelayDeadLettersUnknownEvents(t *testing.T) {
	f := newRelayFixture(t, 5)
	require.NoError(t, outbox.NewRepository(f.conn).Insert(f.conn, models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.OutboxEventType("points_gifted"),
		AggregateType: enums.AggregateUser,
		AggregateID:   "user-1",
		Payload:       []byte(`{"version":1,"eventId":"x","data":{}}`),
	}))

	_, err := f.relay.relayBatch(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.pub.sent)
	dlq := f.deadLetters(t)
	require.Len(t, dlq, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, dlq[0].ErrorReason)
	require.NotNil(t, dlq[0].ErrorMessage)
	assert.Contains(t, *dlq[0].ErrorMessage, "unsupported event type")
}

func TestRelayRecordsDeliveryMetrics(t *testing.T) {
	f := newRelayFixture(t, 5)
	f.emitTierUpgrade(t, "user-1")
	f.emitTierUpgrade(t, "user-2")

	_, err := f.relay.relayBatch(context.Background())
	require.NoError(t, err)

	mfs, err := f.reg.Gather()
	require.NoError(t, err)
	var published float64
	for _, mf := range mfs {
		if mf.GetName() != "rewards_outbox_deliveries_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			published += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(2), published)
}

func TestNewRelayRequiresDependencies(t *testing.T) {
	_, err := NewRelay(RelayParams{Logger: logger.Nop()})
	require.Error(t, err)
}

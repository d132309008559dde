package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-rewards/pkg/config"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/metrics"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type RelayParams struct {
	Outbox     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	PubSub     pubSubClient
	Repository outboxRepository
	Registry   eventResolver
	DLQ        deadLetters
	Metrics    *metrics.RewardsMetrics
	// Publishers overrides topic lookup on the pubsub client.
	Publishers func(topic string) publisher
}

// Relay moves committed outbox rows to Pub/Sub. A row is marked published,
// failed for retry, or dead-lettered in the same transaction that locked it,
// so two relays never deliver the same row concurrently.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	pubsub      pubSubClient
	repo        outboxRepository
	registry    eventResolver
	dlq         deadLetters
	metrics     *metrics.RewardsMetrics
	publishers  func(topic string) publisher
	batchSize   int
	maxAttempts int
	poll        time.Duration
	now         func() time.Time
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case p.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	}

	publishers := p.Publishers
	if publishers == nil {
		publishers = func(topic string) publisher {
			return wrapPublisher(p.PubSub.Publisher(topic))
		}
	}
	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		pubsub:      p.PubSub,
		repo:        p.Repository,
		registry:    p.Registry,
		dlq:         p.DLQ,
		metrics:     p.Metrics,
		publishers:  publishers,
		batchSize:   p.Outbox.BatchSize,
		maxAttempts: p.Outbox.MaxAttempts,
		poll:        time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.poll <= 0 {
		r.poll = defaultPollInterval
	}
	return r, nil
}

// Run relays until ctx is canceled. A full batch is followed immediately by
// the next one; otherwise the relay idles for one poll interval. Batch
// failures back off exponentially up to maxBackoff.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": r.db.Ping, "pubsub": r.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := r.poll
	for {
		n, err := r.relayBatch(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			wait = min(wait*2, maxBackoff)
		case n >= r.batchSize:
			wait = r.poll
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		default:
			wait = r.poll
		}
		if err := sleep(ctx, wait+rand.N(jitterWindow)); err != nil {
			return err
		}
	}
}

type outcome string

const (
	outcomePublished  outcome = "published"
	outcomeRetry      outcome = "retry"
	outcomeDeadLetter outcome = "dead_letter"
)

type delivery struct {
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	topic   string
	err     error
}

// relayBatch delivers one batch and reports how many rows it touched.
func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	var n int
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		n = len(rows)
		for _, row := range rows {
			d := r.deliver(ctx, row)
			if err := r.settle(ctx, tx, row, d); err != nil {
				return err
			}
			r.metrics.ObserveDelivery(string(row.EventType), string(d.outcome))
		}
		return nil
	})
	return n, err
}

func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent) delivery {
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return delivery{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	topic := resolved.Descriptor.Topic
	err = r.publish(ctx, topic, messageFor(row, resolved))
	switch {
	case err == nil:
		return delivery{outcome: outcomePublished, topic: topic}
	case errors.As(err, new(registry.NonRetryableError)):
		return delivery{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, topic: topic, err: err}
	case row.AttemptCount+1 >= r.maxAttempts:
		return delivery{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonMaxAttempts, topic: topic,
			err: fmt.Errorf("max publish attempts reached: %w", err)}
	default:
		return delivery{outcome: outcomeRetry, topic: topic, err: err}
	}
}

func (r *Relay) publish(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := r.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	res := pub.Publish(publishCtx, msg)
	if res == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := res.Get(publishCtx)
	return err
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, d delivery) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID,
		"attempt_count":  row.AttemptCount,
		"topic":          d.topic,
		"outcome":        d.outcome,
	})

	switch d.outcome {
	case outcomePublished:
		if err := r.repo.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.logg.Info(logCtx, "outbox event published")
	case outcomeRetry:
		r.logg.Warn(r.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed, will retry")
		if err := r.repo.MarkFailedTx(tx, row.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", row.ID, err)
		}
	case outcomeDeadLetter:
		msg := d.err.Error()
		r.logg.Warn(r.logg.WithFields(logCtx, map[string]any{"error": msg, "error_reason": d.reason}), "outbox event dead-lettered")
		if err := r.dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       row.ID,
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			AggregateID:   row.AggregateID,
			Payload:       row.Payload,
			ErrorReason:   d.reason,
			ErrorMessage:  &msg,
			AttemptCount:  row.AttemptCount,
			FailedAt:      r.now(),
		}); err != nil {
			return fmt.Errorf("insert dlq %s: %w", row.ID, err)
		}
		if err := r.repo.MarkTerminalTx(tx, row.ID, d.err, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", row.ID, err)
		}
	}
	return nil
}

// messageFor carries the routing attributes listeners filter on. The body is
// the stored envelope, unchanged.
func messageFor(row models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	env := resolved.Envelope
	return &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":       env.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID,
			"schema_version": strconv.Itoa(env.Version),
			"occurred_at":    env.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func wrapPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return topicPublisher{p}
}

type topicPublisher struct{ p *gcppubsub.Publisher }

func (t topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return t.p.Publish(ctx, msg)
}

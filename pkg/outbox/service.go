// Package outbox implements the transactional outbox: domain writes queue
// events in the same transaction, and the publisher relays them later.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

// ErrInvalidEvent is wrapped by every Emit validation failure.
var ErrInvalidEvent = errors.New("invalid outbox event")

// DomainEvent is what producers hand to Emit. Data is any JSON-encodable
// payload; Version defaults to the current envelope version.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) check() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("%w: event type %q", ErrInvalidEvent, e.EventType)
	case !e.AggregateType.IsValid():
		return fmt.Errorf("%w: aggregate type %q", ErrInvalidEvent, e.AggregateType)
	case strings.TrimSpace(e.AggregateID) == "":
		return fmt.Errorf("%w: aggregate id required", ErrInvalidEvent)
	case e.Version < 0:
		return fmt.Errorf("%w: version %d", ErrInvalidEvent, e.Version)
	}
	return nil
}

type inserter interface {
	Insert(tx *gorm.DB, event models.OutboxEvent) error
}

type Service struct {
	repo inserter
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo inserter, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit queues event inside tx so it commits or rolls back with the caller's
// own writes.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("outbox emit requires a transaction")
	}
	if err := event.check(); err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	event.OccurredAt = event.OccurredAt.UTC()

	id := uuid.New()
	payload, err := sealEnvelope(id, event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx.WithContext(ctx), models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
		CreatedAt:     event.OccurredAt,
	}); err != nil {
		return fmt.Errorf("insert outbox %s: %w", event.EventType, err)
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":     id,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID,
		}), "outbox.queued")
	}
	return nil
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
)

// OutboxEvent is a queued domain event. The row id is the envelope's eventId.
// A row is pending until PublishedAt is set; AttemptCount and LastError
// track relay failures.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"type:text;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"type:text;not null"`
	AggregateID   string                    `gorm:"type:text;not null"`
	Payload       json.RawMessage           `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"autoCreateTime;index:idx_outbox_events_unpublished"`
	PublishedAt   *time.Time                `gorm:"index:idx_outbox_events_published_at"`
	AttemptCount  int                       `gorm:"not null;default:0"`
	LastError     *string
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// Pending reports whether the relay still owes this event a delivery.
func (e OutboxEvent) Pending() bool { return e.PublishedAt == nil }

// OutboxDLQ is the parked copy of an event the relay gave up on. Requeueing
// deletes the DLQ row and resets the matching outbox row.
type OutboxDLQ struct {
	ID            uuid.UUID                  `gorm:"type:uuid;primaryKey"`
	EventID       uuid.UUID                  `gorm:"type:uuid;not null;index:idx_outbox_dlq_event_id"`
	EventType     enums.OutboxEventType      `gorm:"type:text;not null"`
	AggregateType enums.OutboxAggregateType  `gorm:"type:text;not null"`
	AggregateID   string                     `gorm:"type:text;not null"`
	Payload       json.RawMessage            `gorm:"column:payload_json;type:jsonb;not null"`
	ErrorReason   enums.OutboxDLQErrorReason `gorm:"type:text;not null"`
	ErrorMessage  *string
	AttemptCount  int       `gorm:"not null;default:0"`
	FailedAt      time.Time `gorm:"autoCreateTime;index:idx_outbox_dlq_failed_at"`
}

func (OutboxDLQ) TableName() string { return "outbox_dlq" }

// Message returns the recorded failure text, or "" when none was kept.
func (d OutboxDLQ) Message() string {
	if d.ErrorMessage == nil {
		return ""
	}
	return *d.ErrorMessage
}

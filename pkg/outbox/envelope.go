package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// currentEnvelopeVersion is stamped on events that do not pick a version.
const currentEnvelopeVersion = 1

// ActorRef names the user or system whose action produced an event.
type ActorRef struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and carried as
// the Pub/Sub message body. EventID doubles as the row id and the consumer
// de-duplication key.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func sealEnvelope(id uuid.UUID, ev DomainEvent) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", ev.EventType, err)
	}
	version := ev.Version
	if version == 0 {
		version = currentEnvelopeVersion
	}
	return json.Marshal(PayloadEnvelope{
		Version:    version,
		EventID:    id.String(),
		OccurredAt: ev.OccurredAt,
		Actor:      ev.Actor,
		Data:       data,
	})
}

// Package registry knows every outbound event the engine emits and every
// inbound message it consumes: which topic, which aggregate, which payload.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/angelmondragon/packfinderz-rewards/pkg/config"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox/payloads"
)

// EventDescriptor is the routing and schema contract of one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	// MaxVersion is the newest envelope version this build can decode.
	MaxVersion int
	newPayload func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		MaxVersion:    1,
		newPayload:    func() any { return new(T) },
	}
}

// NewEventRegistry routes every outbound rewards event to cfg.RewardsTopic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.RewardsTopic)
	if topic == "" {
		return nil, fmt.Errorf("rewards topic is required")
	}
	reg := &EventRegistry{entries: map[enums.OutboxEventType]EventDescriptor{}}
	for _, d := range []EventDescriptor{
		describe[payloads.ReferralApproved](enums.EventReferralApproved, enums.AggregateReferralApplication, topic),
		describe[payloads.CouponRequested](enums.EventCouponRequested, enums.AggregateReferralApplication, topic),
		describe[payloads.TierUpgraded](enums.EventTierUpgraded, enums.AggregateUser, topic),
		describe[payloads.AffiliateSaleSettled](enums.EventAffiliateSaleSettled, enums.AggregateOrder, topic),
	} {
		reg.entries[d.EventType] = d
	}
	return reg, nil
}

func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	d, ok := r.entries[eventType]
	return d, ok
}

// Resolve checks a stored row against its descriptor and decodes the typed
// payload. Every failure is non-retryable since the row will not change.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	fail := func(format string, args ...any) (*ResolvedEvent, error) {
		return nil, NewNonRetryableError(fmt.Errorf(format, args...))
	}
	d, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return fail("unsupported event type %s", event.EventType)
	case d.AggregateType != event.AggregateType:
		return fail("aggregate mismatch: expected %s got %s", d.AggregateType, event.AggregateType)
	case strings.TrimSpace(event.AggregateID) == "":
		return fail("missing aggregate_id")
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		return fail("decode envelope: %w", err)
	}
	if env.Version < 1 || env.Version > d.MaxVersion {
		return fail("%s envelope version %d not supported (max %d)", event.EventType, env.Version, d.MaxVersion)
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fail("payload missing for %s", event.EventType)
	}
	payload := d.newPayload()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return fail("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: d, Envelope: env, Payload: payload}, nil
}

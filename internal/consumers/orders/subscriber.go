package orders

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox"
)

type processor interface {
	Process(ctx context.Context, eventType string, envelope outbox.PayloadEnvelope) error
}

// Subscriber pulls order messages off the subscription and acks or nacks them
// from the consumer's verdict.
type Subscriber struct {
	subscription *gcppubsub.Subscriber
	consumer     processor
	logg         *logger.Logger
}

func NewSubscriber(subscription *gcppubsub.Subscriber, consumer processor, logg *logger.Logger) (*Subscriber, error) {
	if subscription == nil {
		return nil, errors.New("orders subscription is required")
	}
	if consumer == nil {
		return nil, errors.New("orders consumer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Subscriber{subscription: subscription, consumer: consumer, logg: logg}, nil
}

// Run receives until ctx is canceled.
func (s *Subscriber) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.handle(innerCtx, msg.ID, msg.Attributes, msg.Data) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// handle reports whether the message should be redelivered.
func (s *Subscriber) handle(ctx context.Context, messageID string, attrs map[string]string, data []byte) bool {
	logCtx := s.logg.WithField(ctx, "message_id", messageID)

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.logg.Error(logCtx, "invalid order envelope", err)
		return false
	}
	if envelope.EventID == "" {
		envelope.EventID = strings.TrimSpace(attrs["event_id"])
	}
	if envelope.Version == 0 {
		envelope.Version = 1
	}
	return s.consumer.Process(logCtx, attrs["event_type"], envelope) != nil
}

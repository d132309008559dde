// Package orders consumes commerce order lifecycle messages from Pub/Sub and
// hands them to the settlement boundary.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-rewards/internal/settlement"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox/registry"
)

const consumerName = "rewards-orders"

const releaseTimeout = 5 * time.Second

// Inbound message types, carried in the event_type attribute.
const (
	EventOrderCompleted = "order_completed"
	EventOrderCancelled = "order_cancelled"
	EventOrderRefunded  = "order_refunded"
)

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

type orderReversed struct {
	OrderID string `json:"order_id"`
}

// Consumer decodes versioned order envelopes and applies them exactly once per
// event id. The dedupe key only suppresses cheap redeliveries; settlement
// markers still guard the ledger when it expires.
type Consumer struct {
	inbound  settlement.Inbound
	decoders *registry.DecoderRegistry
	manager  idempotencyChecker
	logg     *logger.Logger
}

func NewConsumer(inbound settlement.Inbound, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if inbound == nil {
		return nil, fmt.Errorf("settlement handler required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		inbound:  inbound,
		decoders: newDecoders(),
		manager:  manager,
		logg:     logg,
	}, nil
}

func newDecoders() *registry.DecoderRegistry {
	reg := registry.NewDecoderRegistry()
	registry.RegisterJSON[settlement.OrderCompleted](reg, EventOrderCompleted, 1)
	registry.RegisterJSON[orderReversed](reg, EventOrderCancelled, 1)
	registry.RegisterJSON[orderReversed](reg, EventOrderRefunded, 1)
	return reg
}

// Process applies one envelope. A nil return acks the message; errors that
// redelivery cannot fix are logged and swallowed.
func (c *Consumer) Process(ctx context.Context, eventType string, envelope outbox.PayloadEnvelope) error {
	eventType = strings.TrimSpace(eventType)
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})
	if strings.TrimSpace(envelope.EventID) == "" {
		c.logg.Warn(logCtx, "order event without id dropped")
		return nil
	}

	decoded, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		return c.fail(logCtx, "", err)
	}

	already, err := c.manager.CheckAndMarkProcessed(logCtx, consumerName, envelope.EventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "order event already processed")
		return nil
	}

	outcome, err := c.apply(logCtx, eventType, decoded)
	if err != nil {
		return c.fail(logCtx, envelope.EventID, err)
	}
	if outcome != nil {
		logCtx = c.logg.WithFields(logCtx, map[string]any{
			"order_id":       outcome.OrderID,
			"credited_cents": outcome.Credited,
			"revoked_cents":  outcome.Revoked,
		})
	}
	c.logg.Info(logCtx, "order event handled")
	return nil
}

func (c *Consumer) apply(ctx context.Context, eventType string, decoded any) (*settlement.Outcome, error) {
	switch evt := decoded.(type) {
	case settlement.OrderCompleted:
		return c.inbound.OrderCompleted(ctx, evt)
	case orderReversed:
		if eventType == EventOrderRefunded {
			return c.inbound.OrderRefunded(ctx, evt.OrderID)
		}
		return c.inbound.OrderCancelled(ctx, evt.OrderID)
	default:
		return nil, registry.NewNonRetryableError(fmt.Errorf("unexpected payload %T", decoded))
	}
}

// fail decides between dropping and retrying. Retries forget the dedupe key
// so the redelivery is processed.
func (c *Consumer) fail(ctx context.Context, eventID string, err error) error {
	if !retryable(err) {
		c.logg.Error(ctx, "order event dropped", err)
		return nil
	}
	if eventID != "" {
		// The message ctx is often cancelled here (shutdown, ack deadline). A
		// surviving key would make the redelivery look processed.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		delErr := c.manager.Delete(releaseCtx, consumerName, eventID)
		cancel()
		if delErr != nil {
			c.logg.Error(ctx, "failed to clear idempotency key", delErr)
		}
	}
	c.logg.Error(ctx, "order event failed; will retry", err)
	return err
}

func retryable(err error) bool {
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return false
	}
	return pkgerrors.Retryable(err)
}

package webhooks

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/packfinderz-rewards/api/responses"
	"github.com/angelmondragon/packfinderz-rewards/api/validators"
	"github.com/angelmondragon/packfinderz-rewards/internal/settlement"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

type orderReversalRequest struct {
	OrderID string `json:"order_id" validate:"required,max=128"`
}

// OrderCompleted applies a completed order synchronously. Redelivery of the
// same order is a no-op that still answers 200.
func OrderCompleted(inbound settlement.Inbound, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if inbound == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement handler unavailable"))
			return
		}
		var body settlement.OrderCompleted
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, body.OrderID)
		}
		outcome, err := inbound.OrderCompleted(ctx, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}

func OrderCancelled(inbound settlement.Inbound, logg *logger.Logger) http.HandlerFunc {
	return reversal(logg, inbound, func(ctx context.Context, orderID string) (*settlement.Outcome, error) {
		return inbound.OrderCancelled(ctx, orderID)
	})
}

func OrderRefunded(inbound settlement.Inbound, logg *logger.Logger) http.HandlerFunc {
	return reversal(logg, inbound, func(ctx context.Context, orderID string) (*settlement.Outcome, error) {
		return inbound.OrderRefunded(ctx, orderID)
	})
}

func reversal(logg *logger.Logger, inbound settlement.Inbound, apply func(context.Context, string) (*settlement.Outcome, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if inbound == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement handler unavailable"))
			return
		}
		var body orderReversalRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID := strings.TrimSpace(body.OrderID)
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID)
		}
		outcome, err := apply(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}

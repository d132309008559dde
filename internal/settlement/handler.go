// Package settlement is the inbound boundary for commerce order lifecycle
// events. Every method tolerates redelivery and out-of-order arrival.
package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-rewards/internal/affiliate"
	"github.com/angelmondragon/packfinderz-rewards/internal/orders"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

// Inbound is the set of order lifecycle calls the commerce platform makes.
type Inbound interface {
	OrderCompleted(ctx context.Context, evt OrderCompleted) (*Outcome, error)
	OrderCancelled(ctx context.Context, orderID string) (*Outcome, error)
	OrderRefunded(ctx context.Context, orderID string) (*Outcome, error)
}

// OrderCompleted carries the order facts the engine needs. AffiliateCode and
// VisitorIP come from the order's metadata and may be empty.
type OrderCompleted struct {
	OrderID       string    `json:"order_id" validate:"required,max=128"`
	CustomerID    string    `json:"customer_id" validate:"required,max=128"`
	TotalCents    int64     `json:"total_cents" validate:"gte=0"`
	AffiliateCode string    `json:"affiliate_code,omitempty" validate:"omitempty,max=32"`
	VisitorIP     string    `json:"visitor_ip,omitempty" validate:"omitempty,ip"`
	PlacedAt      time.Time `json:"placed_at"`
}

// Outcome reports what a lifecycle event changed. All fields are zero for a
// redelivered or irrelevant event.
type Outcome struct {
	OrderID    string                `json:"order_id"`
	Status     enums.OrderStatus     `json:"status"`
	Settlement *affiliate.Settlement `json:"-"`
	Revocation *affiliate.Revocation `json:"-"`
	Credited   int64                 `json:"credited_cents"`
	Revoked    int64                 `json:"revoked_cents"`
}

type commissionSettler interface {
	SettleCompleted(ctx context.Context, order affiliate.CompletedOrder) (*affiliate.Settlement, error)
	Revoke(ctx context.Context, orderID string) (*affiliate.Revocation, error)
}

// Handler records orders and fans completed or reversed orders out to the
// affiliate program.
type Handler struct {
	orders     orders.Repository
	commission commissionSettler
	logg       *logger.Logger
	now        func() time.Time
}

var _ Inbound = (*Handler)(nil)

func NewHandler(repo orders.Repository, settler commissionSettler, logg *logger.Logger) (*Handler, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if settler == nil {
		return nil, fmt.Errorf("commission settler required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Handler{
		orders:     repo,
		commission: settler,
		logg:       logg,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// OrderCompleted records the order and settles its commission once. An order
// that was already reversed, even by an event that arrived first, is never
// settled.
func (h *Handler) OrderCompleted(ctx context.Context, evt OrderCompleted) (*Outcome, error) {
	evt.OrderID = strings.TrimSpace(evt.OrderID)
	evt.CustomerID = strings.TrimSpace(evt.CustomerID)
	if evt.OrderID == "" || evt.CustomerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and customer id are required")
	}
	if evt.TotalCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must not be negative")
	}
	if evt.PlacedAt.IsZero() {
		evt.PlacedAt = h.now()
	}
	ctx = h.logg.WithOrderID(ctx, evt.OrderID)

	if err := h.orders.Record(ctx, &models.Order{
		OrderID:       evt.OrderID,
		CustomerID:    evt.CustomerID,
		TotalCents:    evt.TotalCents,
		Status:        enums.OrderStatusCompleted,
		AffiliateCode: strings.TrimSpace(evt.AffiliateCode),
		PlacedAt:      evt.PlacedAt.UTC(),
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order")
	}
	order, err := h.orders.FindByID(ctx, evt.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	out := &Outcome{OrderID: evt.OrderID, Status: enums.OrderStatusCompleted}
	if order != nil && order.Status.IsReversal() {
		out.Status = order.Status
		h.logg.Info(ctx, "completion for reversed order ignored")
		return out, nil
	}

	settled, err := h.commission.SettleCompleted(ctx, affiliate.CompletedOrder{
		OrderID:       evt.OrderID,
		CustomerID:    evt.CustomerID,
		TotalCents:    evt.TotalCents,
		AffiliateCode: evt.AffiliateCode,
		VisitorIP:     evt.VisitorIP,
		PlacedAt:      evt.PlacedAt,
	})
	if err != nil {
		return nil, err
	}
	out.Settlement = settled
	if settled == nil {
		return out, nil
	}
	out.Credited = settled.Quote.Cents

	// a reversal that landed while we settled found nothing to revoke
	latest, err := h.orders.FindByID(ctx, evt.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	if latest != nil && latest.Status.IsReversal() {
		rev, err := h.commission.Revoke(ctx, evt.OrderID)
		if err != nil {
			return nil, err
		}
		out.Status = latest.Status
		out.Revocation = rev
		if rev != nil {
			out.Revoked = rev.Conversion.CommissionCents
		}
	}
	return out, nil
}

func (h *Handler) OrderCancelled(ctx context.Context, orderID string) (*Outcome, error) {
	return h.reverse(ctx, orderID, enums.OrderStatusCancelled)
}

func (h *Handler) OrderRefunded(ctx context.Context, orderID string) (*Outcome, error) {
	return h.reverse(ctx, orderID, enums.OrderStatusRefunded)
}

// reverse marks the order reversed and revokes any commission it produced.
// A reversal for an order never seen leaves a tombstone so a late completion
// cannot settle it.
func (h *Handler) reverse(ctx context.Context, orderID string, status enums.OrderStatus) (*Outcome, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	ctx = h.logg.WithOrderID(ctx, orderID)

	order, err := h.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order")
	}
	if order == nil {
		if err := h.orders.Record(ctx, &models.Order{
			OrderID:  orderID,
			Status:   status,
			PlacedAt: h.now(),
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reversed order")
		}
	} else if _, err := h.orders.UpdateStatus(ctx, orderID, status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}

	out := &Outcome{OrderID: orderID, Status: status}
	rev, err := h.commission.Revoke(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out.Revocation = rev
	if rev != nil {
		out.Revoked = rev.Conversion.CommissionCents
	}
	return out, nil
}

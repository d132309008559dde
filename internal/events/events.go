// Package events is the outbound boundary of the rewards engine. Each
// notification is written to the outbox inside the caller's transaction, so
// it exists iff the ledger mutation that caused it committed. Delivery to
// listeners happens later and can never roll that mutation back.
package events

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox/payloads"
)

// Publisher is implemented by anything that can carry outbound events.
type Publisher interface {
	ReferralApproved(ctx context.Context, tx *gorm.DB, evt payloads.ReferralApproved) error
	TierUpgraded(ctx context.Context, tx *gorm.DB, evt payloads.TierUpgraded) error
	AffiliateSaleSettled(ctx context.Context, tx *gorm.DB, evt payloads.AffiliateSaleSettled) error
}

// CouponIssuer requests a discount code for a referral approval.
type CouponIssuer interface {
	RequestCoupon(ctx context.Context, tx *gorm.DB, req payloads.CouponRequested) error
}

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Outbox publishes through the transactional outbox.
type Outbox struct {
	out emitter
	now func() time.Time
}

var (
	_ Publisher    = (*Outbox)(nil)
	_ CouponIssuer = (*Outbox)(nil)
)

func NewOutbox(out emitter) (*Outbox, error) {
	if out == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Outbox{out: out, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (o *Outbox) ReferralApproved(ctx context.Context, tx *gorm.DB, evt payloads.ReferralApproved) error {
	return o.emit(ctx, tx, enums.EventReferralApproved, enums.AggregateReferralApplication, evt.ApplicationID, evt)
}

func (o *Outbox) TierUpgraded(ctx context.Context, tx *gorm.DB, evt payloads.TierUpgraded) error {
	return o.emit(ctx, tx, enums.EventTierUpgraded, enums.AggregateUser, evt.UserID, evt)
}

func (o *Outbox) AffiliateSaleSettled(ctx context.Context, tx *gorm.DB, evt payloads.AffiliateSaleSettled) error {
	return o.emit(ctx, tx, enums.EventAffiliateSaleSettled, enums.AggregateOrder, evt.OrderID, evt)
}

func (o *Outbox) RequestCoupon(ctx context.Context, tx *gorm.DB, req payloads.CouponRequested) error {
	return o.emit(ctx, tx, enums.EventCouponRequested, enums.AggregateReferralApplication, req.ApplicationID, req)
}

func (o *Outbox) emit(ctx context.Context, tx *gorm.DB, typ enums.OutboxEventType, agg enums.OutboxAggregateType, aggID string, data any) error {
	if err := o.out.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     typ,
		AggregateType: agg,
		AggregateID:   aggID,
		Data:          data,
		OccurredAt:    o.now(),
	}); err != nil {
		return fmt.Errorf("queue %s: %w", typ, err)
	}
	return nil
}

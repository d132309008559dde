package enums

import "slices"

// OutboxAggregateType names the entity an outbound event is about.
type OutboxAggregateType string

const (
	AggregateUser                OutboxAggregateType = "user"
	AggregateReferralApplication OutboxAggregateType = "referral_application"
	AggregateOrder               OutboxAggregateType = "order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateUser,
	AggregateReferralApplication,
	AggregateOrder,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool { return slices.Contains(validAggregateTypes, a) }

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(validAggregateTypes, "aggregate type", value)
}

// OutboxEventType names an outbound event published for downstream listeners.
type OutboxEventType string

const (
	EventReferralApproved     OutboxEventType = "referral_approved"
	EventTierUpgraded         OutboxEventType = "tier_upgraded"
	EventAffiliateSaleSettled OutboxEventType = "affiliate_sale_settled"
	EventCouponRequested      OutboxEventType = "coupon_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventReferralApproved,
	EventTierUpgraded,
	EventAffiliateSaleSettled,
	EventCouponRequested,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool { return slices.Contains(validOutboxEventTypes, e) }

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(validOutboxEventTypes, "event type", value)
}

// OutboxDLQErrorReason says why the relay parked an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool { return slices.Contains(validOutboxDLQErrorReasons, r) }

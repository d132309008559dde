// Package payloads holds the wire schema of every event the rewards engine
// publishes.
package payloads

import "time"

// ReferralApproved is emitted once an application moves pending -> approved
// and its credit is in the ledger.
type ReferralApproved struct {
	UserID        string    `json:"user_id"`
	ApplicationID string    `json:"application_id"`
	OrderID       string    `json:"order_id"`
	CreditCents   int64     `json:"credit_cents"`
	ApprovedAt    time.Time `json:"approved_at"`
}

// TierUpgraded reports a referrer crossing into a higher commission tier.
type TierUpgraded struct {
	UserID      string `json:"user_id"`
	FromRate    string `json:"from_rate"`
	ToRate      string `json:"to_rate"`
	Conversions int    `json:"conversions"`
}

// AffiliateSaleSettled reports a commission credited (or revoked, with a
// negative amount) for an order.
type AffiliateSaleSettled struct {
	UserID          string `json:"user_id"`
	OrderID         string `json:"order_id"`
	Kind            string `json:"kind"`
	Rate            string `json:"rate"`
	CommissionCents int64  `json:"commission_cents"`
}

// CouponRequested asks the commerce platform to issue a discount code.
type CouponRequested struct {
	UserID        string `json:"user_id"`
	ApplicationID string `json:"application_id"`
	OrderID       string `json:"order_id"`
	Percent       string `json:"percent"`
}

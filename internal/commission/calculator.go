// Package commission computes referral and affiliate reward amounts. Every
// function here is pure: inputs in, cents out.
package commission

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-rewards/internal/program"
	"github.com/angelmondragon/packfinderz-rewards/pkg/money"
)

var one = decimal.NewFromInt(1)

// Quote is a computed commission plus the inputs that produced it.
type Quote struct {
	Rate       decimal.Decimal
	Multiplier decimal.Decimal
	Cents      int64
}

// Flat returns round(total * rate / 100).
func Flat(totalCents int64, rate decimal.Decimal) int64 {
	return money.Round(money.Percent(totalCents, rate))
}

// TierRate walks tiers in ascending order and keeps the rate of the last tier
// whose MinSales is <= conversions. With no matching tier it returns base.
func TierRate(tiers []program.Tier, conversions int, base decimal.Decimal) decimal.Decimal {
	rate := base
	for _, tier := range tiers {
		if tier.MinSales <= conversions {
			rate = tier.Rate
		}
	}
	return rate
}

// Calculator evaluates the commission modes against one program snapshot.
type Calculator struct {
	snap program.Snapshot
}

func New(snap program.Snapshot) Calculator {
	return Calculator{snap: snap}
}

// Referral is the store credit earned by an approved referral application.
func (c Calculator) Referral(totalCents int64) int64 {
	if totalCents <= 0 {
		return 0
	}
	return Flat(totalCents, c.snap.Referral.Rate)
}

// Affiliate prices a directly attributed order for a referrer that already
// has conversions settled sales.
func (c Calculator) Affiliate(totalCents int64, conversions int, at time.Time) Quote {
	pol := c.snap.Affiliate
	rate := TierRate(pol.Tiers, conversions, pol.BaseRate)
	return c.quote(totalCents, rate, at)
}

// Recurring prices a repeat order of a referred customer. Callers decide
// eligibility with RecurringEligible first.
func (c Calculator) Recurring(totalCents int64, at time.Time) Quote {
	return c.quote(totalCents, c.snap.Affiliate.Recurring.Rate, at)
}

func (c Calculator) quote(totalCents int64, rate decimal.Decimal, at time.Time) Quote {
	q := Quote{Rate: rate, Multiplier: one}
	if totalCents <= 0 {
		return q
	}
	raw := money.Percent(totalCents, rate)
	if c.snap.Affiliate.Seasonal.Active(at) {
		q.Multiplier = c.snap.Affiliate.Seasonal.Multiplier
		raw = raw.Mul(q.Multiplier)
	}
	q.Cents = money.Round(raw)
	return q
}

// TierOf returns the index of the tier conversions falls in, or -1 below the
// first tier.
func TierOf(tiers []program.Tier, conversions int) int {
	idx := -1
	for i, tier := range tiers {
		if tier.MinSales <= conversions {
			idx = i
		}
	}
	return idx
}

// RecurringEligible reports whether an order placed at orderAt by a customer
// anchored at anchorAt qualifies for recurring commission, given how many
// recurring orders were already paid.
func RecurringEligible(pol program.RecurringPolicy, anchorAt, orderAt time.Time, paidOrders int) bool {
	if !pol.Enabled || pol.Months <= 0 {
		return false
	}
	if !orderAt.After(anchorAt) {
		return false
	}
	if orderAt.After(anchorAt.AddDate(0, pol.Months, 0)) {
		return false
	}
	if pol.MaxOrders > 0 && paidOrders >= pol.MaxOrders {
		return false
	}
	return true
}

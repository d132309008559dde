// Package program holds the rewards program configuration: commission rates,
// tiers, recurring and seasonal policy, expiry policy, spin prizes and the
// points shop. Services read one immutable Snapshot per operation.
package program

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
)

// Tier raises the affiliate rate once a referrer reaches MinSales conversions.
type Tier struct {
	MinSales int             `yaml:"min_sales"`
	Rate     decimal.Decimal `yaml:"rate"`
}

// RecurringPolicy pays a reduced rate on a referred customer's repeat orders.
type RecurringPolicy struct {
	Enabled bool            `yaml:"enabled"`
	Rate    decimal.Decimal `yaml:"rate"`
	// Months bounds the window after the anchoring first order.
	Months int `yaml:"months"`
	// MaxOrders caps qualifying repeat orders; 0 means unlimited.
	MaxOrders int `yaml:"max_orders"`
}

// SeasonalPolicy scales affiliate commissions inside [Start, End].
type SeasonalPolicy struct {
	Multiplier decimal.Decimal `yaml:"multiplier"`
	Start      time.Time       `yaml:"start"`
	End        time.Time       `yaml:"end"`
}

// Active reports whether the multiplier applies at t.
func (s SeasonalPolicy) Active(t time.Time) bool {
	if s.Multiplier.LessThanOrEqual(decimal.NewFromInt(1)) {
		return false
	}
	if s.Start.IsZero() || s.End.IsZero() {
		return false
	}
	return !t.Before(s.Start) && !t.After(s.End)
}

type AffiliatePolicy struct {
	BaseRate  decimal.Decimal `yaml:"base_rate"`
	Tiers     []Tier          `yaml:"tiers"`
	Recurring RecurringPolicy `yaml:"recurring"`
	Seasonal  SeasonalPolicy  `yaml:"seasonal"`
}

type ReferralPolicy struct {
	Rate decimal.Decimal `yaml:"rate"`
	// DualReward issues a coupon to the referred customer on approval.
	DualReward    bool            `yaml:"dual_reward"`
	CouponPercent decimal.Decimal `yaml:"coupon_percent"`
}

// PrizeKind is what a spin-wheel slot pays out.
type PrizeKind string

const (
	PrizeCredit  PrizeKind = "credit"
	PrizePoints  PrizeKind = "points"
	PrizeNothing PrizeKind = "nothing"
)

type Prize struct {
	ID          string    `yaml:"id" json:"id"`
	Label       string    `yaml:"label" json:"label"`
	Kind        PrizeKind `yaml:"kind" json:"kind"`
	CreditCents int64     `yaml:"credit_cents" json:"credit_cents"`
	Points      int64     `yaml:"points" json:"points"`
	Weight      int       `yaml:"weight" json:"-"`
}

type ShopItem struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label" json:"label"`
	CostPoints  int64  `yaml:"cost_points" json:"cost_points"`
	CreditCents int64  `yaml:"credit_cents" json:"credit_cents"`
}

// Snapshot is an immutable view of the program. Callers must treat slices and
// maps as read-only.
type Snapshot struct {
	Affiliate AffiliatePolicy               `yaml:"affiliate"`
	Referral  ReferralPolicy                `yaml:"referral"`
	Expiry    map[enums.LedgerEntryType]int `yaml:"expiry_days"`
	Prizes    []Prize                       `yaml:"spin_prizes"`
	Shop      []ShopItem                    `yaml:"shop"`
}

// ExpiryDays returns the configured lifetime in days for credits of typ, or 0
// when such credits never expire.
func (s Snapshot) ExpiryDays(typ enums.LedgerEntryType) int {
	if s.Expiry == nil {
		return 0
	}
	return s.Expiry[typ]
}

// ShopItem looks up a catalogue item by id.
func (s Snapshot) ShopItem(id string) (ShopItem, bool) {
	for _, item := range s.Shop {
		if item.ID == id {
			return item, true
		}
	}
	return ShopItem{}, false
}

// Default is the program used when no file is configured.
func Default() Snapshot {
	return Snapshot{
		Affiliate: AffiliatePolicy{
			BaseRate: decimal.NewFromInt(5),
			Tiers: []Tier{
				{MinSales: 0, Rate: decimal.NewFromInt(5)},
				{MinSales: 10, Rate: decimal.NewFromInt(7)},
				{MinSales: 50, Rate: decimal.NewFromInt(10)},
			},
			Recurring: RecurringPolicy{
				Enabled:   true,
				Rate:      decimal.NewFromInt(2),
				Months:    6,
				MaxOrders: 0,
			},
			Seasonal: SeasonalPolicy{Multiplier: decimal.NewFromInt(1)},
		},
		Referral: ReferralPolicy{
			Rate:          decimal.NewFromInt(10),
			CouponPercent: decimal.NewFromInt(10),
		},
		Expiry: map[enums.LedgerEntryType]int{},
		Prizes: []Prize{
			{ID: "credit-5", Label: "$5 store credit", Kind: PrizeCredit, CreditCents: 500, Weight: 5},
			{ID: "credit-1", Label: "$1 store credit", Kind: PrizeCredit, CreditCents: 100, Weight: 20},
			{ID: "points-50", Label: "50 points", Kind: PrizePoints, Points: 50, Weight: 35},
			{ID: "nothing", Label: "Better luck next time", Kind: PrizeNothing, Weight: 40},
		},
		Shop: []ShopItem{
			{ID: "credit-5", Label: "$5 store credit", CostPoints: 500, CreditCents: 500},
			{ID: "credit-10", Label: "$10 store credit", CostPoints: 900, CreditCents: 1000},
		},
	}
}

// Validate rejects programs the calculators cannot evaluate.
func (s Snapshot) Validate() error {
	if s.Affiliate.BaseRate.IsNegative() {
		return fmt.Errorf("affiliate.base_rate must not be negative")
	}
	if s.Referral.Rate.IsNegative() {
		return fmt.Errorf("referral.rate must not be negative")
	}
	if !sort.SliceIsSorted(s.Affiliate.Tiers, func(i, j int) bool {
		return s.Affiliate.Tiers[i].MinSales < s.Affiliate.Tiers[j].MinSales
	}) {
		return fmt.Errorf("affiliate.tiers must be sorted by min_sales ascending")
	}
	for i, tier := range s.Affiliate.Tiers {
		if tier.MinSales < 0 || tier.Rate.IsNegative() {
			return fmt.Errorf("affiliate.tiers[%d] is invalid", i)
		}
	}
	rec := s.Affiliate.Recurring
	if rec.Enabled && (rec.Rate.IsNegative() || rec.Months <= 0 || rec.MaxOrders < 0) {
		return fmt.Errorf("affiliate.recurring requires a non-negative rate and positive months")
	}
	sea := s.Affiliate.Seasonal
	if !sea.Multiplier.IsZero() && sea.Multiplier.IsNegative() {
		return fmt.Errorf("affiliate.seasonal.multiplier must not be negative")
	}
	if !sea.Start.IsZero() && !sea.End.IsZero() && sea.End.Before(sea.Start) {
		return fmt.Errorf("affiliate.seasonal.end is before start")
	}
	for typ, days := range s.Expiry {
		if !typ.IsValid() || typ.IsExpiry() {
			return fmt.Errorf("expiry_days has invalid entry type %q", typ)
		}
		if days < 0 {
			return fmt.Errorf("expiry_days[%s] must not be negative", typ)
		}
	}
	seen := map[string]struct{}{}
	total := 0
	for _, p := range s.Prizes {
		if p.ID == "" || p.Weight < 0 {
			return fmt.Errorf("spin prize %q is invalid", p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate spin prize %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		switch p.Kind {
		case PrizeCredit:
			if p.CreditCents <= 0 {
				return fmt.Errorf("spin prize %q needs credit_cents", p.ID)
			}
		case PrizePoints:
			if p.Points <= 0 {
				return fmt.Errorf("spin prize %q needs points", p.ID)
			}
		case PrizeNothing:
		default:
			return fmt.Errorf("spin prize %q has unknown kind %q", p.ID, p.Kind)
		}
		total += p.Weight
	}
	if len(s.Prizes) > 0 && total == 0 {
		return fmt.Errorf("spin prizes need a positive total weight")
	}
	for _, item := range s.Shop {
		if item.ID == "" || item.CostPoints <= 0 || item.CreditCents <= 0 {
			return fmt.Errorf("shop item %q is invalid", item.ID)
		}
	}
	return nil
}

package enums

import "slices"

// SettlementKind names the business event an idempotency marker settles.
type SettlementKind string

const (
	SettlementAffiliate          SettlementKind = "affiliate"
	SettlementAffiliateRecurring SettlementKind = "affiliate_recurring"
	SettlementAffiliateRevoke    SettlementKind = "affiliate_revoke"
	SettlementReferralCoupon     SettlementKind = "referral_coupon"
	SettlementSpin               SettlementKind = "spin"
	SettlementShop               SettlementKind = "shop"
	SettlementAdminAdjust        SettlementKind = "admin_adjust"
)

var validSettlementKinds = []SettlementKind{
	SettlementAffiliate,
	SettlementAffiliateRecurring,
	SettlementAffiliateRevoke,
	SettlementReferralCoupon,
	SettlementSpin,
	SettlementShop,
	SettlementAdminAdjust,
}

func (k SettlementKind) IsValid() bool { return slices.Contains(validSettlementKinds, k) }

func ParseSettlementKind(value string) (SettlementKind, error) {
	return parse(validSettlementKinds, "settlement kind", value)
}

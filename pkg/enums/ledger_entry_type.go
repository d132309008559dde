package enums

import "slices"

// LedgerEntryType classifies a transaction log entry.
type LedgerEntryType string

const (
	LedgerEntryCredit             LedgerEntryType = "credit"
	LedgerEntryDebit              LedgerEntryType = "debit"
	LedgerEntryReferral           LedgerEntryType = "referral"
	LedgerEntryAffiliate          LedgerEntryType = "affiliate"
	LedgerEntryAffiliateRecurring LedgerEntryType = "affiliate_recurring"
	LedgerEntryAffiliateRevoke    LedgerEntryType = "affiliate_revoke"
	LedgerEntryManual             LedgerEntryType = "manual"
	LedgerEntryRefund             LedgerEntryType = "refund"
	LedgerEntryExpired            LedgerEntryType = "expired"
	LedgerEntryExpiredProcessed   LedgerEntryType = "expired_processed"
	LedgerEntrySpin               LedgerEntryType = "spin"
	LedgerEntryShop               LedgerEntryType = "shop"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryCredit,
	LedgerEntryDebit,
	LedgerEntryReferral,
	LedgerEntryAffiliate,
	LedgerEntryAffiliateRecurring,
	LedgerEntryAffiliateRevoke,
	LedgerEntryManual,
	LedgerEntryRefund,
	LedgerEntryExpired,
	LedgerEntryExpiredProcessed,
	LedgerEntrySpin,
	LedgerEntryShop,
}

// IsValid reports whether the value matches a known entry type.
func (t LedgerEntryType) IsValid() bool { return slices.Contains(validLedgerEntryTypes, t) }

// IsExpiry reports whether entries of this type are produced by the expiry
// sweep and therefore never swept themselves.
func (t LedgerEntryType) IsExpiry() bool {
	return t == LedgerEntryExpired || t == LedgerEntryExpiredProcessed
}

// LedgerEntryTypes returns every known entry type in declaration order.
func LedgerEntryTypes() []LedgerEntryType { return slices.Clone(validLedgerEntryTypes) }

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	return parse(validLedgerEntryTypes, "ledger entry type", value)
}

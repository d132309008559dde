package enums

import "slices"

// ReferralStatus is the closed set of referral application states.
type ReferralStatus string

const (
	ReferralStatusPending  ReferralStatus = "pending"
	ReferralStatusApproved ReferralStatus = "approved"
	ReferralStatusRejected ReferralStatus = "rejected"
)

var validReferralStatuses = []ReferralStatus{
	ReferralStatusPending,
	ReferralStatusApproved,
	ReferralStatusRejected,
}

func (s ReferralStatus) IsValid() bool { return slices.Contains(validReferralStatuses, s) }

// IsTerminal reports whether no further transitions are allowed.
func (s ReferralStatus) IsTerminal() bool {
	return s == ReferralStatusApproved || s == ReferralStatusRejected
}

func ParseReferralStatus(value string) (ReferralStatus, error) {
	return parse(validReferralStatuses, "referral status", value)
}

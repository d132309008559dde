// Package reporting computes admin-level aggregates across all users. Every
// query is a read-only projection.
package reporting

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

type Service struct {
	db   *gorm.DB
	logg *logger.Logger
}

func NewService(conn *gorm.DB, logg *logger.Logger) (*Service, error) {
	if conn == nil {
		return nil, fmt.Errorf("database required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{db: conn, logg: logg}, nil
}

type EntryTypeTotals struct {
	Type          string `json:"type"`
	Entries       int64  `json:"entries"`
	CreditedCents int64  `json:"credited_cents"`
	DebitedCents  int64  `json:"debited_cents"`
}

type AffiliateTotals struct {
	Clicks       int64 `json:"clicks"`
	Conversions  int64 `json:"conversions"`
	Revoked      int64 `json:"revoked"`
	EarnedCents  int64 `json:"earned_cents"`
	RevokedCents int64 `json:"revoked_cents"`
}

// Stats is the admin dashboard projection.
type Stats struct {
	OutstandingCents int64             `json:"outstanding_cents"`
	UsersWithBalance int64             `json:"users_with_balance"`
	ByEntryType      []EntryTypeTotals `json:"by_entry_type"`
	Referrals        map[string]int64  `json:"referrals"`
	Affiliate        AffiliateTotals   `json:"affiliate"`
	PendingOutbox    int64             `json:"pending_outbox"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	conn := s.db.WithContext(ctx)
	out := &Stats{Referrals: map[string]int64{}}

	var balances struct {
		Outstanding int64
		Users       int64
	}
	if err := conn.Model(&models.Balance{}).
		Select("COALESCE(SUM(balance_cents), 0) AS outstanding, COALESCE(SUM(CASE WHEN balance_cents > 0 THEN 1 ELSE 0 END), 0) AS users").
		Scan(&balances).Error; err != nil {
		return nil, wrap(err, "sum balances")
	}
	out.OutstandingCents = balances.Outstanding
	out.UsersWithBalance = balances.Users

	if err := conn.Model(&models.LedgerEntry{}).
		Select(`type,
			COUNT(*) AS entries,
			COALESCE(SUM(CASE WHEN amount_cents > 0 THEN amount_cents ELSE 0 END), 0) AS credited_cents,
			COALESCE(SUM(CASE WHEN amount_cents < 0 THEN -amount_cents ELSE 0 END), 0) AS debited_cents`).
		Group("type").
		Scan(&out.ByEntryType).Error; err != nil {
		return nil, wrap(err, "sum ledger entries")
	}
	sort.Slice(out.ByEntryType, func(i, j int) bool { return out.ByEntryType[i].Type < out.ByEntryType[j].Type })

	var referrals []struct {
		Status string
		Total  int64
	}
	if err := conn.Model(&models.ReferralApplication{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&referrals).Error; err != nil {
		return nil, wrap(err, "count referral applications")
	}
	for _, row := range referrals {
		out.Referrals[row.Status] = row.Total
	}

	if err := conn.Model(&models.AffiliateClick{}).Count(&out.Affiliate.Clicks).Error; err != nil {
		return nil, wrap(err, "count affiliate clicks")
	}
	var conv struct {
		Conversions  int64
		Revoked      int64
		EarnedCents  int64
		RevokedCents int64
	}
	if err := conn.Model(&models.AffiliateConversion{}).
		Select(`COALESCE(SUM(CASE WHEN revoked_at IS NULL THEN 1 ELSE 0 END), 0) AS conversions,
			COALESCE(SUM(CASE WHEN revoked_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS revoked,
			COALESCE(SUM(commission_cents), 0) AS earned_cents,
			COALESCE(SUM(CASE WHEN revoked_at IS NOT NULL THEN commission_cents ELSE 0 END), 0) AS revoked_cents`).
		Scan(&conv).Error; err != nil {
		return nil, wrap(err, "sum affiliate conversions")
	}
	out.Affiliate.Conversions = conv.Conversions
	out.Affiliate.Revoked = conv.Revoked
	out.Affiliate.EarnedCents = conv.EarnedCents
	out.Affiliate.RevokedCents = conv.RevokedCents

	if err := conn.Model(&models.OutboxEvent{}).Where("published_at IS NULL").Count(&out.PendingOutbox).Error; err != nil {
		return nil, wrap(err, "count pending outbox")
	}
	return out, nil
}

func wrap(err error, action string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

// Package views shapes storage models into the JSON the API returns.
package views

import (
	"time"

	"github.com/angelmondragon/packfinderz-rewards/internal/ledger"
	"github.com/angelmondragon/packfinderz-rewards/internal/referrals"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	"github.com/angelmondragon/packfinderz-rewards/pkg/money"
)

// Balance carries cents for arithmetic and a two-decimal string for display.
type Balance struct {
	UserID       string `json:"user_id"`
	BalanceCents int64  `json:"balance_cents"`
	Balance      string `json:"balance"`
}

func FromBalance(userID string, cents int64) Balance {
	return Balance{UserID: userID, BalanceCents: cents, Balance: money.Format(cents)}
}

type LedgerEntry struct {
	ID                int64                 `json:"id"`
	AmountCents       int64                 `json:"amount_cents"`
	RequestedCents    int64                 `json:"requested_cents"`
	BalanceAfterCents int64                 `json:"balance_after_cents"`
	Amount            string                `json:"amount"`
	Type              enums.LedgerEntryType `json:"type"`
	Reason            string                `json:"reason,omitempty"`
	ReferenceID       *string               `json:"reference_id,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	ExpiresAt         *time.Time            `json:"expires_at,omitempty"`
}

func FromLedgerEntry(m models.LedgerEntry) LedgerEntry {
	return LedgerEntry{
		ID:                m.ID,
		AmountCents:       m.AmountCents,
		RequestedCents:    m.RequestedCents,
		BalanceAfterCents: m.BalanceAfterCents,
		Amount:            money.Format(m.AmountCents),
		Type:              m.Type,
		Reason:            m.Reason,
		ReferenceID:       m.ReferenceID,
		CreatedAt:         m.CreatedAt,
		ExpiresAt:         m.ExpiresAt,
	}
}

func FromLedgerEntries(rows []models.LedgerEntry) []LedgerEntry {
	out := make([]LedgerEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromLedgerEntry(row))
	}
	return out
}

// Adjustment is a committed ledger mutation. Clamped is set when the zero
// floor reduced a debit.
type Adjustment struct {
	Entry         LedgerEntry `json:"entry"`
	PreviousCents int64       `json:"previous_cents"`
	BalanceCents  int64       `json:"balance_cents"`
	Clamped       bool        `json:"clamped"`
}

func FromResult(r *ledger.Result) *Adjustment {
	if r == nil {
		return nil
	}
	return &Adjustment{
		Entry:         FromLedgerEntry(r.Entry),
		PreviousCents: r.PreviousCents,
		BalanceCents:  r.BalanceCents,
		Clamped:       r.Clamped(),
	}
}

type CounterEntry struct {
	Kind        enums.CounterKind `json:"kind"`
	Delta       int64             `json:"delta"`
	ValueAfter  int64             `json:"value_after"`
	Reason      string            `json:"reason,omitempty"`
	ReferenceID *string           `json:"reference_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

func FromCounterEntries(rows []models.RewardCounterEntry) []CounterEntry {
	out := make([]CounterEntry, 0, len(rows))
	for _, m := range rows {
		out = append(out, CounterEntry{
			Kind:        m.Kind,
			Delta:       m.Delta,
			ValueAfter:  m.ValueAfter,
			Reason:      m.Reason,
			ReferenceID: m.ReferenceID,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out
}

type Decision struct {
	Application referrals.ListItem `json:"application"`
	Applied     bool               `json:"applied"`
	Credit      *Adjustment        `json:"credit,omitempty"`
}

func FromDecision(d *referrals.Decision) Decision {
	return Decision{
		Application: referrals.ToListItem(d.Application),
		Applied:     d.Applied,
		Credit:      FromResult(d.Credit),
	}
}

type AffiliateLink struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

func FromAffiliateLink(m *models.AffiliateLink) AffiliateLink {
	return AffiliateLink{Code: m.Code, CreatedAt: m.CreatedAt}
}

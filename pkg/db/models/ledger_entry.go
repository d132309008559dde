package models

import (
	"time"

	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
)

// LedgerEntry is one append-only transaction log row. AmountCents is the
// effective delta applied to the balance; RequestedCents is what the caller
// asked for before the zero floor was applied.
type LedgerEntry struct {
	ID                int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	UserID            string                `gorm:"column:user_id;type:text;not null;index:idx_ledger_entries_user_id"`
	AmountCents       int64                 `gorm:"column:amount_cents;not null"`
	RequestedCents    int64                 `gorm:"column:requested_cents;not null"`
	BalanceAfterCents int64                 `gorm:"column:balance_after_cents;not null"`
	Type              enums.LedgerEntryType `gorm:"column:type;type:text;not null"`
	Reason            string                `gorm:"column:reason;type:text;not null;default:''"`
	ReferenceID       *string               `gorm:"column:reference_id;type:text"`
	CreatedAt         time.Time             `gorm:"column:created_at;not null"`
	ExpiresAt         *time.Time            `gorm:"column:expires_at;index:idx_ledger_entries_expires_at"`
	ExpiryProcessedAt *time.Time            `gorm:"column:expiry_processed_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

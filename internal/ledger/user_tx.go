package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
)

// UserTx is the locked unit handed to WithUserLock callbacks. It is only
// valid inside the callback.
type UserTx struct {
	svc     *Service
	tx      *gorm.DB
	repo    Repository
	userID  string
	balance int64
	hooks   []func()
}

// DB exposes the transaction so callers can make their own writes part of
// the same atomic unit.
func (u *UserTx) DB() *gorm.DB { return u.tx }

func (u *UserTx) UserID() string { return u.userID }

// Balance is the locked balance, including adjustments made in this unit.
func (u *UserTx) Balance() int64 { return u.balance }

// Now returns the ledger clock.
func (u *UserTx) Now() time.Time { return u.svc.now() }

// AfterCommit schedules fn to run after the unit commits. Hooks never run if
// the unit rolls back.
func (u *UserTx) AfterCommit(fn func()) {
	if fn != nil {
		u.hooks = append(u.hooks, fn)
	}
}

// Adjust applies one balance mutation inside the locked unit.
func (u *UserTx) Adjust(ctx context.Context, input AdjustInput) (*Result, error) {
	if strings.TrimSpace(input.UserID) == "" {
		input.UserID = u.userID
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.UserID) != u.userID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment targets a different user than the held lock")
	}
	if addWouldOverflow(u.balance, input.AmountCents) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount overflows balance")
	}

	now := u.svc.now()
	prev := u.balance
	next := prev + input.AmountCents
	if next < 0 {
		next = 0
	}

	entry := models.LedgerEntry{
		UserID:            u.userID,
		AmountCents:       next - prev,
		RequestedCents:    input.AmountCents,
		BalanceAfterCents: next,
		Type:              input.Type,
		Reason:            strings.TrimSpace(input.Reason),
		CreatedAt:         now,
	}
	if ref := strings.TrimSpace(input.ReferenceID); ref != "" {
		entry.ReferenceID = &ref
	}
	if input.AmountCents > 0 {
		days := u.svc.program.Snapshot().ExpiryDays(input.Type)
		if input.ExpiryDays != nil {
			days = *input.ExpiryDays
		}
		if days > 0 {
			expires := now.AddDate(0, 0, days)
			entry.ExpiresAt = &expires
		}
	}

	if err := u.repo.SaveBalance(ctx, u.userID, next); err != nil {
		return nil, classifyStorageErr(err, "save balance")
	}
	if err := u.repo.AppendEntry(ctx, &entry); err != nil {
		return nil, classifyStorageErr(err, "append ledger entry")
	}
	u.balance = next

	res := &Result{Entry: entry, PreviousCents: prev, BalanceCents: next}
	u.AfterCommit(func() {
		u.svc.metrics.ObserveAdjust(string(entry.Type), entry.AmountCents, res.Clamped())
		logCtx := u.svc.logg.WithFields(ctx, map[string]any{
			"user_id":         u.userID,
			"entry_id":        entry.ID,
			"entry_type":      entry.Type,
			"requested_cents": entry.RequestedCents,
			"effective_cents": entry.AmountCents,
			"balance_cents":   next,
		})
		u.svc.logg.Info(logCtx, "ledger adjusted")
	})
	return res, nil
}

// ExpiringEntries lists this user's lapsed, unswept positive entries.
func (u *UserTx) ExpiringEntries(ctx context.Context, now time.Time) ([]models.LedgerEntry, error) {
	entries, err := u.repo.ListExpiringEntries(ctx, u.userID, now.UTC())
	if err != nil {
		return nil, classifyStorageErr(err, "list expiring entries")
	}
	return entries, nil
}

// MarkExpiryProcessed flags source entries as swept. This is the only update
// ever made to a log entry.
func (u *UserTx) MarkExpiryProcessed(ctx context.Context, entries []models.LedgerEntry) error {
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		if e.UserID != u.userID {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("entry %d belongs to another user", e.ID))
		}
		ids = append(ids, e.ID)
	}
	n, err := u.repo.MarkExpiryProcessed(ctx, ids, u.svc.now())
	if err != nil {
		return classifyStorageErr(err, "mark entries processed")
	}
	if int(n) != len(ids) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "expiring entries changed during sweep")
	}
	return nil
}

// Erase removes the user's balance and log. Reserved for data-erasure requests.
func (u *UserTx) Erase(ctx context.Context) error {
	if err := u.repo.DeleteUser(ctx, u.userID); err != nil {
		return classifyStorageErr(err, "erase ledger")
	}
	u.balance = 0
	return nil
}

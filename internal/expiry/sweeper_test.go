package expiry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-rewards/internal/ledger"
	"github.com/angelmondragon/packfinderz-rewards/internal/program"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

var testNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func newLedger(t *testing.T) (*ledger.Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t, models.All()...)
	svc, err := ledger.NewService(ledger.ServiceParams{
		Repo:    ledger.NewRepository(conn),
		DB:      db.Wrap(conn),
		Logger:  logger.Nop(),
		Program: program.Static(program.Default()),
		Clock:   func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return svc, conn
}

func days(n int) *int { return &n }

func credit(t *testing.T, svc *ledger.Service, user string, cents int64, expiry *int) {
	t.Helper()
	_, err := svc.Adjust(context.Background(), ledger.AdjustInput{
		UserID:      user,
		AmountCents: cents,
		Type:        enums.LedgerEntryCredit,
		Reason:      "test credit",
		ExpiryDays:  expiry,
	})
	require.NoError(t, err)
}

func TestSweepExpiresLapsedCreditExactlyOnce(t *testing.T) {
	svc, conn := newLedger(t)
	ctx := context.Background()
	credit(t, svc, "user-1", 100, days(1))
	credit(t, svc, "user-1", 50, nil)

	sweeper, err := NewSweeper(Params{Ledger: svc, Logger: logger.Nop()})
	require.NoError(t, err)

	sweepAt := testNow.AddDate(0, 0, 2)
	res, err := sweeper.Sweep(ctx, sweepAt)
	require.NoError(t, err)
	assert.Equal(t, Result{Users: 1, Entries: 1, ExpiredCents: 100}, res)

	bal, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), bal)

	var expired []models.LedgerEntry
	require.NoError(t, conn.Where("user_id = ? AND type = ?", "user-1", enums.LedgerEntryExpired).Find(&expired).Error)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(-100), expired[0].AmountCents)
	assert.Equal(t, int64(50), expired[0].BalanceAfterCents)

	again, err := sweeper.Sweep(ctx, sweepAt)
	require.NoError(t, err)
	assert.Equal(t, Result{}, again)
	bal, err = svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), bal)
}

func TestSweepLeavesUnexpiredCredit(t *testing.T) {
	svc, _ := newLedger(t)
	credit(t, svc, "user-1", 100, days(30))

	sweeper, err := NewSweeper(Params{Ledger: svc, Logger: logger.Nop()})
	require.NoError(t, err)
	res, err := sweeper.Sweep(context.Background(), testNow.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Zero(t, res.Users)
}

func TestSweepClampsWhenCreditWasSpent(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()
	credit(t, svc, "user-1", 100, days(1))
	_, err := svc.Adjust(ctx, ledger.AdjustInput{UserID: "user-1", AmountCents: -70, Type: enums.LedgerEntryDebit, Reason: "spent"})
	require.NoError(t, err)

	sweeper, err := NewSweeper(Params{Ledger: svc, Logger: logger.Nop()})
	require.NoError(t, err)
	res, err := sweeper.Sweep(ctx, testNow.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(30), res.ExpiredCents)

	bal, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestSweepPagesThroughManyUsers(t *testing.T) {
	svc, _ := newLedger(t)
	for i := 0; i < 7; i++ {
		credit(t, svc, fmt.Sprintf("user-%d", i), 10, days(1))
	}
	sweeper, err := NewSweeper(Params{Ledger: svc, Logger: logger.Nop(), BatchSize: 3, Concurrency: 2})
	require.NoError(t, err)

	res, err := sweeper.Sweep(context.Background(), testNow.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 7, res.Users)
	assert.Equal(t, int64(70), res.ExpiredCents)
}

type flakyLedger struct {
	*ledger.Service
	fail string
}

func (f flakyLedger) WithUserLock(ctx context.Context, userID string, fn func(ut *ledger.UserTx) error) error {
	if userID == f.fail {
		return errors.New("connection reset")
	}
	return f.Service.WithUserLock(ctx, userID, fn)
}

func TestSweepIsolatesFailingUser(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()
	credit(t, svc, "user-a", 100, days(1))
	credit(t, svc, "user-b", 100, days(1))

	sweeper, err := NewSweeper(Params{Ledger: flakyLedger{Service: svc, fail: "user-a"}, Logger: logger.Nop(), BatchSize: 1})
	require.NoError(t, err)
	res, err := sweeper.Sweep(ctx, testNow.AddDate(0, 0, 2))
	require.Error(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Users)

	balA, err := svc.GetBalance(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balA)
	balB, err := svc.GetBalance(ctx, "user-b")
	require.NoError(t, err)
	assert.Zero(t, balB)

	// the failed user is still eligible next run
	ok, err := NewSweeper(Params{Ledger: svc, Logger: logger.Nop()})
	require.NoError(t, err)
	res, err = ok.Sweep(ctx, testNow.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Users)
}

func TestSweepRacingDebitsKeepsLedgerConsistent(t *testing.T) {
	svc, conn := newLedger(t)
	ctx := context.Background()
	users := []string{"user-a", "user-b", "user-c", "user-d"}
	for _, u := range users {
		credit(t, svc, u, 100, days(1))
		credit(t, svc, u, 100, nil)
	}

	sweeper, err := NewSweeper(Params{Ledger: svc, Logger: logger.Nop(), BatchSize: 2, Concurrency: 2})
	require.NoError(t, err)
	sweepAt := testNow.AddDate(0, 0, 2)

	var g errgroup.Group
	g.Go(func() error {
		_, err := sweeper.Sweep(ctx, sweepAt)
		return err
	})
	for _, u := range users {
		g.Go(func() error {
			for i := 0; i < 5; i++ {
				if _, err := svc.Adjust(ctx, ledger.AdjustInput{
					UserID:      u,
					AmountCents: -30,
					Type:        enums.LedgerEntryDebit,
					Reason:      "spend",
				}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	again, err := sweeper.Sweep(ctx, sweepAt)
	require.NoError(t, err)
	assert.Zero(t, again.Entries)

	for _, u := range users {
		bal, err := svc.GetBalance(ctx, u)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, bal, int64(0), u)

		var sum int64
		require.NoError(t, conn.Model(&models.LedgerEntry{}).
			Where("user_id = ?", u).
			Select("COALESCE(SUM(amount_cents), 0)").
			Scan(&sum).Error)
		assert.Equal(t, bal, sum, u)

		var expired int64
		require.NoError(t, conn.Model(&models.LedgerEntry{}).
			Where("user_id = ? AND type = ?", u, enums.LedgerEntryExpired).
			Count(&expired).Error)
		assert.Equal(t, int64(1), expired, u)

		var pending int64
		require.NoError(t, conn.Model(&models.LedgerEntry{}).
			Where("user_id = ? AND expires_at IS NOT NULL AND expiry_processed_at IS NULL", u).
			Count(&pending).Error)
		assert.Zero(t, pending, u)
	}
}

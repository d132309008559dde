package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-rewards/internal/program"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/pagination"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, snap program.Snapshot, timeout time.Duration) (*Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t, &models.Balance{}, &models.LedgerEntry{})
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(conn),
		DB:          db.Wrap(conn),
		Logger:      logger.Nop(),
		Program:     program.Static(snap),
		LockTimeout: timeout,
		Clock:       func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return svc, conn
}

func adjust(t *testing.T, svc *Service, user string, amount int64, typ enums.LedgerEntryType) *Result {
	t.Helper()
	res, err := svc.Adjust(context.Background(), AdjustInput{UserID: user, AmountCents: amount, Type: typ, Reason: "test"})
	require.NoError(t, err)
	return res
}

func assertConsistent(t *testing.T, conn *gorm.DB, user string) {
	t.Helper()
	var bal models.Balance
	require.NoError(t, conn.Where("user_id = ?", user).Take(&bal).Error)

	var entries []models.LedgerEntry
	require.NoError(t, conn.Where("user_id = ?", user).Order("id ASC").Find(&entries).Error)
	require.NotEmpty(t, entries)

	var sum int64
	for _, e := range entries {
		sum += e.AmountCents
		require.Equal(t, sum, e.BalanceAfterCents, "running sum must match balance_after of entry %d", e.ID)
	}
	require.Equal(t, bal.BalanceCents, sum)
	require.Equal(t, bal.BalanceCents, entries[len(entries)-1].BalanceAfterCents)
}

func TestAdjustNeverGoesNegative(t *testing.T) {
	svc, conn := newTestService(t, program.Default(), time.Second)

	steps := []struct {
		amount int64
		want   int64
	}{
		{amount: 500, want: 500},
		{amount: -200, want: 300},
		{amount: -1000, want: 0},
		{amount: -5, want: 0},
		{amount: 75, want: 75},
	}
	prev := int64(0)
	for _, step := range steps {
		typ := enums.LedgerEntryCredit
		if step.amount < 0 {
			typ = enums.LedgerEntryDebit
		}
		res := adjust(t, svc, "u1", step.amount, typ)
		expected := prev + step.amount
		if expected < 0 {
			expected = 0
		}
		assert.Equal(t, expected, res.BalanceCents)
		assert.Equal(t, step.want, res.BalanceCents)
		assert.Equal(t, res.BalanceCents, res.Entry.BalanceAfterCents)
		assert.Equal(t, step.amount, res.Entry.RequestedCents)
		prev = res.BalanceCents
	}

	bal, err := svc.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(75), bal)
	assertConsistent(t, conn, "u1")
}

func TestClampedDebitStillWritesOneEntry(t *testing.T) {
	svc, conn := newTestService(t, program.Default(), time.Second)
	adjust(t, svc, "u1", 100, enums.LedgerEntryCredit)

	res := adjust(t, svc, "u1", -250, enums.LedgerEntryDebit)
	assert.True(t, res.Clamped())
	assert.Equal(t, int64(-100), res.Entry.AmountCents)

	res = adjust(t, svc, "u1", -10, enums.LedgerEntryDebit)
	assert.Equal(t, int64(0), res.Entry.AmountCents, "floor adjustment is logged with a zero effect")

	var count int64
	require.NoError(t, conn.Model(&models.LedgerEntry{}).Where("user_id = ?", "u1").Count(&count).Error)
	assert.Equal(t, int64(3), count)
	assertConsistent(t, conn, "u1")
}

func TestConcurrentAdjustsSerialisePerUser(t *testing.T) {
	svc, conn := newTestService(t, program.Default(), 30*time.Second)

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Adjust(context.Background(), AdjustInput{UserID: "u-conc", AmountCents: 1, Type: enums.LedgerEntryCredit})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	bal, err := svc.GetBalance(context.Background(), "u-conc")
	require.NoError(t, err)
	assert.Equal(t, int64(n), bal)

	var count int64
	require.NoError(t, conn.Model(&models.LedgerEntry{}).Where("user_id = ?", "u-conc").Count(&count).Error)
	assert.Equal(t, int64(n), count)
	assertConsistent(t, conn, "u-conc")
	assert.Equal(t, 0, svc.locker.Len(), "keyed locks are released")
}

func TestExpiryPolicy(t *testing.T) {
	snap := program.Default()
	snap.Expiry = map[enums.LedgerEntryType]int{enums.LedgerEntryReferral: 30}
	svc, _ := newTestService(t, snap, time.Second)

	res := adjust(t, svc, "u1", 100, enums.LedgerEntryReferral)
	require.NotNil(t, res.Entry.ExpiresAt)
	assert.True(t, res.Entry.ExpiresAt.Equal(testNow.AddDate(0, 0, 30)))

	res = adjust(t, svc, "u1", 100, enums.LedgerEntryManual)
	assert.Nil(t, res.Entry.ExpiresAt, "manual credits have no default expiry")

	days := 7
	res, err := svc.Adjust(context.Background(), AdjustInput{UserID: "u1", AmountCents: 50, Type: enums.LedgerEntryManual, ExpiryDays: &days})
	require.NoError(t, err)
	require.NotNil(t, res.Entry.ExpiresAt)
	assert.True(t, res.Entry.ExpiresAt.Equal(testNow.AddDate(0, 0, 7)))

	res, err = svc.Adjust(context.Background(), AdjustInput{UserID: "u1", AmountCents: -50, Type: enums.LedgerEntryReferral, ExpiryDays: &days})
	require.NoError(t, err)
	assert.Nil(t, res.Entry.ExpiresAt, "debits never expire")
}

func TestAdjustValidation(t *testing.T) {
	svc, _ := newTestService(t, program.Default(), time.Second)
	ctx := context.Background()

	cases := []AdjustInput{
		{UserID: "", AmountCents: 1, Type: enums.LedgerEntryCredit},
		{UserID: "u1", AmountCents: 0, Type: enums.LedgerEntryCredit},
		{UserID: "u1", AmountCents: 1, Type: "bonus"},
	}
	for _, in := range cases {
		_, err := svc.Adjust(ctx, in)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
	}
}

func TestFailedUnitLeavesNoPartialState(t *testing.T) {
	svc, conn := newTestService(t, program.Default(), time.Second)
	ctx := context.Background()
	adjust(t, svc, "u1", 300, enums.LedgerEntryCredit)

	hookRan := false
	boom := errors.New("downstream write failed")
	err := svc.WithUserLock(ctx, "u1", func(ut *UserTx) error {
		if _, err := ut.Adjust(ctx, AdjustInput{AmountCents: -100, Type: enums.LedgerEntryDebit}); err != nil {
			return err
		}
		ut.AfterCommit(func() { hookRan = true })
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, hookRan)

	bal, err := svc.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), bal)

	var count int64
	require.NoError(t, conn.Model(&models.LedgerEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUserTxRejectsForeignUser(t *testing.T) {
	svc, _ := newTestService(t, program.Default(), time.Second)
	ctx := context.Background()
	err := svc.WithUserLock(ctx, "u1", func(ut *UserTx) error {
		_, err := ut.Adjust(ctx, AdjustInput{UserID: "u2", AmountCents: 5, Type: enums.LedgerEntryCredit})
		return err
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestLockTimeoutIsRetryable(t *testing.T) {
	svc, _ := newTestService(t, program.Default(), 50*time.Millisecond)
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- svc.WithUserLock(ctx, "busy", func(ut *UserTx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	_, err := svc.Adjust(ctx, AdjustInput{UserID: "busy", AmountCents: 1, Type: enums.LedgerEntryCredit})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLockTimeout), "got %v", err)
	assert.True(t, pkgerrors.MetadataFor(pkgerrors.CodeLockTimeout).Retryable)

	close(release)
	require.NoError(t, <-done)

	res := adjust(t, svc, "busy", 1, enums.LedgerEntryCredit)
	assert.Equal(t, int64(1), res.BalanceCents)
}

func TestGetLogNewestFirst(t *testing.T) {
	svc, _ := newTestService(t, program.Default(), time.Second)
	for i := int64(1); i <= 5; i++ {
		adjust(t, svc, "u1", i*10, enums.LedgerEntryCredit)
	}
	adjust(t, svc, "other", 99, enums.LedgerEntryCredit)

	short, err := svc.GetLog(context.Background(), "u1", 2)
	require.NoError(t, err)
	require.Len(t, short, 2)
	assert.Equal(t, int64(50), short[0].AmountCents)
	assert.Equal(t, int64(40), short[1].AmountCents)

	full, err := svc.GetLog(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, full, 5)
	assert.Equal(t, short, full[:2], "a larger limit extends the same sequence")
	assert.Equal(t, int64(150), full[0].BalanceAfterCents)

	bal, err := svc.GetBalance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
}

func TestGetLogReachesPastHTTPPageCap(t *testing.T) {
	svc, conn := newTestService(t, program.Default(), time.Second)
	const total = pagination.MaxLimit + 100
	rows := make([]models.LedgerEntry, 0, total)
	for i := 1; i <= total; i++ {
		rows = append(rows, models.LedgerEntry{
			UserID:            "u1",
			AmountCents:       1,
			RequestedCents:    1,
			BalanceAfterCents: int64(i),
			Type:              enums.LedgerEntryCredit,
			CreatedAt:         testNow,
		})
	}
	require.NoError(t, conn.CreateInBatches(rows, 100).Error)

	entries, err := svc.GetLog(context.Background(), "u1", total)
	require.NoError(t, err)
	require.Len(t, entries, total)
	assert.Equal(t, int64(1), entries[total-1].BalanceAfterCents, "oldest entry is reachable")

	def, err := svc.GetLog(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Len(t, def, pagination.DefaultLimit)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

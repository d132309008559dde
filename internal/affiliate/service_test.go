package affiliate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-rewards/internal/events"
	"github.com/angelmondragon/packfinderz-rewards/internal/guard"
	"github.com/angelmondragon/packfinderz-rewards/internal/ledger"
	"github.com/angelmondragon/packfinderz-rewards/internal/program"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox"
)

var testNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	conn   *gorm.DB
	ledger *ledger.Service
	guard  *guard.Guard

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T, snap program.Snapshot) *fixture {
	t.Helper()
	f := &fixture{conn: dbtest.Open(t, models.All()...), now: testNow}
	clock := func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.now
	}

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:        ledger.NewRepository(f.conn),
		DB:          db.Wrap(f.conn),
		Logger:      logger.Nop(),
		Program:     program.Static(snap),
		LockTimeout: 2 * time.Second,
		Clock:       clock,
	})
	require.NoError(t, err)
	g, err := guard.New(f.conn, nil)
	require.NoError(t, err)
	pub, err := events.NewOutbox(outbox.NewService(outbox.NewRepository(f.conn), logger.Nop()))
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(f.conn),
		Ledger:  ledgerSvc,
		Guard:   g,
		Events:  pub,
		Program: program.Static(snap),
		Logger:  logger.Nop(),
		Clock:   clock,
	})
	require.NoError(t, err)
	f.svc, f.ledger, f.guard = svc, ledgerSvc, g
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fixture) balance(t *testing.T, user string) int64 {
	t.Helper()
	bal, err := f.ledger.GetBalance(context.Background(), user)
	require.NoError(t, err)
	return bal
}

func (f *fixture) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Where(where, args...).Count(&n).Error)
	return n
}

func (f *fixture) seedConversions(t *testing.T, referrer string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.conn.Create(&models.AffiliateConversion{
			OrderID:         fmt.Sprintf("seed-%s-%d", referrer, i),
			Kind:            enums.SettlementAffiliate,
			ReferrerUserID:  referrer,
			CustomerID:      fmt.Sprintf("seed-customer-%d", i),
			OrderTotalCents: 1000,
			Rate:            decimal.NewFromInt(5),
			CommissionCents: 50,
			CreatedAt:       testNow.Add(-24 * time.Hour),
		}).Error)
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "  Summer_Deals-1 ", want: "Summer_Deals-1"},
		{in: "ab", wantErr: true},
		{in: strings.Repeat("a", 33), wantErr: true},
		{in: "has space", wantErr: true},
		{in: "émoji", wantErr: true},
		{in: "ADMIN", wantErr: true},
	}
	for _, tc := range cases {
		got, err := NormalizeCode(tc.in)
		if tc.wantErr {
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "input %q", tc.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestGenerateCodeUsesAlphabet(t *testing.T) {
	code, err := GenerateCode(12)
	require.NoError(t, err)
	require.Len(t, code, 12)
	for _, r := range code {
		assert.Contains(t, codeAlphabet, string(r))
	}
}

func TestGetOrCreateLinkIsStable(t *testing.T) {
	f := newFixture(t, program.Default())
	ctx := context.Background()

	first, err := f.svc.GetOrCreateLink(ctx, "ref-1")
	require.NoError(t, err)
	assert.Len(t, first.Code, DefaultCodeLength)

	second, err := f.svc.GetOrCreateLink(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, first.Code, second.Code)
}

func TestSetCodeIsCaseInsensitiveUnique(t *testing.T) {
	f := newFixture(t, program.Default())
	ctx := context.Background()

	link, err := f.svc.SetCode(ctx, "ref-1", "GreenLeaf")
	require.NoError(t, err)
	assert.Equal(t, "GreenLeaf", link.Code)
	assert.Equal(t, "greenleaf", link.CodeLower)

	_, err = f.svc.SetCode(ctx, "ref-2", "greenLEAF")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	found, err := f.svc.repo.FindLinkByCode(ctx, "GREENLEAF")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "ref-1", found.UserID)
}

func TestRecordClickSpamGuard(t *testing.T) {
	f := newFixture(t, program.Default())
	ctx := context.Background()
	_, err := f.svc.SetCode(ctx, "ref-1", "greenleaf")
	require.NoError(t, err)

	res, err := f.svc.RecordClick(ctx, ClickInput{Code: "GreenLeaf", VisitorIP: "203.0.113.7"})
	require.NoError(t, err)
	assert.True(t, res.Recorded)

	res, err = f.svc.RecordClick(ctx, ClickInput{Code: "greenleaf", VisitorIP: "203.0.113.7"})
	require.NoError(t, err)
	assert.False(t, res.Recorded)
	assert.Equal(t, ClickSkipDuplicate, res.Reason)

	res, err = f.svc.RecordClick(ctx, ClickInput{Code: "greenleaf", VisitorIP: "198.51.100.1", VisitorUserID: "ref-1"})
	require.NoError(t, err)
	assert.Equal(t, ClickSkipSelf, res.Reason)

	res, err = f.svc.RecordClick(ctx, ClickInput{Code: "nobody", VisitorIP: "198.51.100.1"})
	require.NoError(t, err)
	assert.Equal(t, ClickSkipUnknownCode, res.Reason)

	f.advance(24 * time.Hour)
	res, err = f.svc.RecordClick(ctx, ClickInput{Code: "greenleaf", VisitorIP: "203.0.113.7"})
	require.NoError(t, err)
	assert.True(t, res.Recorded)

	_, err = f.svc.RecordClick(ctx, ClickInput{Code: "greenleaf", VisitorIP: "not-an-ip"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.EqualValues(t, 2, f.count(t, &models.AffiliateClick{}, "referrer_user_id = ?", "ref-1"))
}

func TestSettleDirectUsesTierRate(t *testing.T) {
	f := newFixture(t, program.Default())
	ctx := context.Background()
	_, err := f.svc.SetCode(ctx, "ref-1", "greenleaf")
	require.NoError(t, err)
	f.seedConversions(t, "ref-1", 12)

	out, err := f.svc.SettleCompleted(ctx, CompletedOrder{
		OrderID:       "order-42",
		CustomerID:    "cust-1",
		TotalCents:    1000,
		AffiliateCode: "GREENLEAF",
		PlacedAt:      testNow,
	})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, int64(70), out.Quote.Cents)
	assert.True(t, out.Quote.Rate.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, int64(70), f.balance(t, "ref-1"))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventAffiliateSaleSettled))
}

func TestSettleDirectMarksClickAndAnchorsCustomer(t *testing.T) {
	f := newFixture(t, program.Default())
	ctx := context.Background()
	_, err := f.svc.SetCode(ctx, "ref-1", "greenleaf")
	require.NoError(t, err)
	_, err = f.svc.RecordClick(ctx, ClickInput{Code: "greenleaf", VisitorIP: "203.0.113.7"})
	require.NoError(t, err)

	_, err = f.svc.SettleCompleted(ctx, CompletedOrder{
		OrderID:       "order-1",
		CustomerID:    "cust-1",
		TotalCents:    2000,
		AffiliateCode: "greenleaf",
		VisitorIP:     "203.0.113.7",
		PlacedAt:      testNow,
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, f.count(t, &models.AffiliateClick{}, "converted = ? AND order_id = ?", true, "order-1"))
	anchor, err := f.svc.repo.FindReferredCustomer(ctx, "cust-1")
	require.NoError(t, err)
	require.NotNil(t, anchor)
	assert.Equal(t, "order-1", anchor.FirstOrderID)
	assert.Equal(t, "ref-1", anchor.ReferrerUserID)
}

func TestSettleSkipsSelfReferralAndUnknownCode(t *testing.T) {
	f := newFixture(t, program.Default())
	ctx := context.Background()
	_, err := f.svc.SetCode(ctx, "ref-1", "greenleaf")
	require.NoError(t, err)

	out, err := f.svc.SettleCompleted(ctx, CompletedOrder{OrderID: "o-1", CustomerID: "ref-1", TotalCents: 1000, AffiliateCode: "greenleaf"})
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = f.svc.SettleCompleted(ctx, CompletedOrder{OrderID: "o-2", CustomerID: "cust-1", TotalCents: 1000, AffiliateCode: "missing"})
	require.NoError(t, err)
	assert.Nil(t, out)

	assert.Zero(t, f.balance(t, "ref-1"))
	assert.Zero(t, f.count(t, &models.SettlementMarker{}, "1 = 1"))
}

func TestConcurrentDuplicateCompletionCreditsOnce(t *testing.T) {
	f := newFixture(t, program.Default())
	ctx := context.Background()
	_, err := f.svc.SetCode(ctx, "ref-1", "greenleaf")
	require.NoError(t, err)

	order := CompletedOrder{OrderID: "42", CustomerID: "cust-1", TotalCents: 10000, AffiliateCode: "greenleaf", PlacedAt: testNow}
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SettleCompleted(ctx, order)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(500), f.balance(t, "ref-1"))
	assert.EqualValues(t, 1, f.count(t, &models.SettlementMarker{}, "subject_id = ?", "42"))
	assert.EqualValues(t, 1, f.count(t, &models.LedgerEntry{}, "user_id = ?", "ref-1"))
	assert.EqualValues(t, 1, f.count(t, &models.AffiliateConversion{}, "order_id = ?", "42"))
}

func TestTierUpgradeEmitsEvent(t *testing.T) {
	f := newFixture(t, program.Default())
	ctx := context.Background()
	_, err := f.svc.SetCode(ctx, "ref-1", "greenleaf")
	require.NoError(t, err)
	f.seedConversions(t, "ref-1", 9)

	out, err := f.svc.SettleCompleted(ctx, CompletedOrder{OrderID: "o-10", CustomerID: "cust-1", TotalCents: 1000, AffiliateCode: "greenleaf", PlacedAt: testNow})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, out.TierRaised)
	assert.Equal(t, int64(50), out.Quote.Cents)
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventTierUpgraded))

	out, err = f.svc.SettleCompleted(ctx, CompletedOrder{OrderID: "o-11", CustomerID: "cust-2", TotalCents: 1000, AffiliateCode: "greenleaf", PlacedAt: testNow})
	require.NoError(t, err)
	assert.False(t, out.TierRaised)
	assert.Equal(t, int64(70), out.Quote.Cents)
}

func TestRecurringCommissionWithinWindow(t *testing.T) {
	f := newFixture(t, program.Default())
	ctx := context.Background()
	_, err := f.svc.SetCode(ctx, "ref-1", "greenleaf")
	require.NoError(t, err)

	_, err = f.svc.SettleCompleted(ctx, CompletedOrder{OrderID: "first", CustomerID: "cust-1", TotalCents: 10000, AffiliateCode: "greenleaf", PlacedAt: testNow})
	require.NoError(t, err)

	out, err := f.svc.SettleCompleted(ctx, CompletedOrder{OrderID: "repeat", CustomerID: "cust-1", TotalCents: 10000, PlacedAt: testNow.AddDate(0, 2, 0)})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, enums.SettlementAffiliateRecurring, out.Kind)
	assert.Equal(t, int64(200), out.Quote.Cents)

	late, err := f.svc.SettleCompleted(ctx, CompletedOrder{OrderID: "late", CustomerID: "cust-1", TotalCents: 10000, PlacedAt: testNow.AddDate(0, 7, 0)})
	require.NoError(t, err)
	assert.Nil(t, late)

	assert.Equal(t, int64(700), f.balance(t, "ref-1"))
	anchor, err := f.svc.repo.FindReferredCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, 1, anchor.RecurringOrders)
}

func TestRevokedRecurringOrderFreesItsSlot(t *testing.T) {
	snap := program.Default()
	snap.Affiliate.Recurring.MaxOrders = 1
	f := newFixture(t, snap)
	ctx := context.Background()
	_, err := f.svc.SetCode(ctx, "ref-1", "greenleaf")
	require.NoError(t, err)
	_, err = f.svc.SettleCompleted(ctx, CompletedOrder{OrderID: "first", CustomerID: "cust-1", TotalCents: 10000, AffiliateCode: "greenleaf", PlacedAt: testNow})
	require.NoError(t, err)

	paid, err := f.svc.SettleCompleted(ctx, CompletedOrder{OrderID: "repeat-1", CustomerID: "cust-1", TotalCents: 10000, PlacedAt: testNow.AddDate(0, 1, 0)})
	require.NoError(t, err)
	require.NotNil(t, paid)

	rev, err := f.svc.Revoke(ctx, "repeat-1")
	require.NoError(t, err)
	require.NotNil(t, rev)
	assert.False(t, rev.AnchorDisabled)
	anchor, err := f.svc.repo.FindReferredCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.Zero(t, anchor.RecurringOrders)

	next, err := f.svc.SettleCompleted(ctx, CompletedOrder{OrderID: "repeat-2", CustomerID: "cust-1", TotalCents: 10000, PlacedAt: testNow.AddDate(0, 2, 0)})
	require.NoError(t, err)
	require.NotNil(t, next, "the refunded order no longer uses up the cap")
	assert.Equal(t, int64(200), next.Quote.Cents)
	assert.Equal(t, int64(700), f.balance(t, "ref-1"))
}

func TestRevokeDebitsOnceAndClosesRecurringWindow(t *testing.T) {
	f := newFixture(t, program.Default())
	ctx := context.Background()
	_, err := f.svc.SetCode(ctx, "ref-1", "greenleaf")
	require.NoError(t, err)
	_, err = f.svc.SettleCompleted(ctx, CompletedOrder{OrderID: "first", CustomerID: "cust-1", TotalCents: 10000, AffiliateCode: "greenleaf", PlacedAt: testNow})
	require.NoError(t, err)

	rev, err := f.svc.Revoke(ctx, "first")
	require.NoError(t, err)
	require.NotNil(t, rev)
	require.NotNil(t, rev.Debit)
	assert.Equal(t, int64(-500), rev.Debit.Entry.AmountCents)
	assert.True(t, rev.AnchorDisabled)
	assert.Zero(t, f.balance(t, "ref-1"))

	again, err := f.svc.Revoke(ctx, "first")
	require.NoError(t, err)
	assert.Nil(t, again)

	none, err := f.svc.Revoke(ctx, "never-credited")
	require.NoError(t, err)
	assert.Nil(t, none)

	repeat, err := f.svc.SettleCompleted(ctx, CompletedOrder{OrderID: "repeat", CustomerID: "cust-1", TotalCents: 10000, PlacedAt: testNow.AddDate(0, 1, 0)})
	require.NoError(t, err)
	assert.Nil(t, repeat)

	assert.EqualValues(t, 1, f.count(t, &models.LedgerEntry{}, "user_id = ? AND type = ?", "ref-1", enums.LedgerEntryAffiliateRevoke))
	assert.EqualValues(t, 2, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventAffiliateSaleSettled))
}

func TestRevokeClampsAtZero(t *testing.T) {
	f := newFixture(t, program.Default())
	ctx := context.Background()
	_, err := f.svc.SetCode(ctx, "ref-1", "greenleaf")
	require.NoError(t, err)
	_, err = f.svc.SettleCompleted(ctx, CompletedOrder{OrderID: "o-1", CustomerID: "cust-1", TotalCents: 10000, AffiliateCode: "greenleaf", PlacedAt: testNow})
	require.NoError(t, err)
	_, err = f.ledger.Adjust(ctx, ledger.AdjustInput{UserID: "ref-1", AmountCents: -400, Type: enums.LedgerEntryDebit, Reason: "spent"})
	require.NoError(t, err)

	rev, err := f.svc.Revoke(ctx, "o-1")
	require.NoError(t, err)
	require.NotNil(t, rev.Debit)
	assert.True(t, rev.Debit.Clamped())
	assert.Zero(t, f.balance(t, "ref-1"))
}

func TestStatsSummarisesReferrer(t *testing.T) {
	f := newFixture(t, program.Default())
	ctx := context.Background()
	_, err := f.svc.SetCode(ctx, "ref-1", "greenleaf")
	require.NoError(t, err)
	for _, ip := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3", "203.0.113.4"} {
		_, err := f.svc.RecordClick(ctx, ClickInput{Code: "greenleaf", VisitorIP: ip})
		require.NoError(t, err)
	}
	_, err = f.svc.SettleCompleted(ctx, CompletedOrder{OrderID: "o-1", CustomerID: "cust-1", TotalCents: 10000, AffiliateCode: "greenleaf", VisitorIP: "203.0.113.1", PlacedAt: testNow})
	require.NoError(t, err)
	_, err = f.svc.SettleCompleted(ctx, CompletedOrder{OrderID: "o-2", CustomerID: "cust-2", TotalCents: 4000, AffiliateCode: "greenleaf", PlacedAt: testNow})
	require.NoError(t, err)
	_, err = f.svc.Revoke(ctx, "o-2")
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "greenleaf", stats.Code)
	assert.EqualValues(t, 4, stats.Clicks)
	assert.EqualValues(t, 1, stats.ConvertedClicks)
	assert.EqualValues(t, 1, stats.Conversions)
	assert.EqualValues(t, 1, stats.RevokedConversions)
	assert.EqualValues(t, 700, stats.EarnedCents)
	assert.EqualValues(t, 200, stats.RevokedCents)
	assert.EqualValues(t, 500, stats.NetCents)
	assert.Equal(t, "5", stats.CurrentRate)
	require.NotNil(t, stats.NextTier)
	assert.Equal(t, 10, stats.NextTier.MinSales)
	assert.InDelta(t, 25.0, stats.ConversionRate, 0.001)
}

package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-rewards/internal/ledger"
	"github.com/angelmondragon/packfinderz-rewards/internal/program"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

func TestStatsAggregatesAcrossUsers(t *testing.T) {
	conn := dbtest.Open(t, models.All()...)
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:    ledger.NewRepository(conn),
		DB:      db.Wrap(conn),
		Logger:  logger.Nop(),
		Program: program.Static(program.Default()),
		Clock:   func() time.Time { return now },
	})
	require.NoError(t, err)
	for _, adj := range []ledger.AdjustInput{
		{UserID: "a", AmountCents: 500, Type: enums.LedgerEntryReferral, Reason: "r"},
		{UserID: "a", AmountCents: -200, Type: enums.LedgerEntryDebit, Reason: "spent"},
		{UserID: "b", AmountCents: 100, Type: enums.LedgerEntryManual, Reason: "m"},
		{UserID: "b", AmountCents: -300, Type: enums.LedgerEntryDebit, Reason: "spent"},
	} {
		_, err := ledgerSvc.Adjust(ctx, adj)
		require.NoError(t, err)
	}

	require.NoError(t, conn.Create(&models.ReferralApplication{
		ID: uuid.New(), UserID: "a", OrderID: "o-1", Platform: "tiktok", VideoURL: "https://x.test/v",
		Status: enums.ReferralStatusPending, CreatedAt: now,
	}).Error)
	require.NoError(t, conn.Create(&models.AffiliateConversion{
		OrderID: "o-2", Kind: enums.SettlementAffiliate, ReferrerUserID: "a", CustomerID: "c",
		OrderTotalCents: 1000, Rate: decimal.NewFromInt(5), CommissionCents: 50, CreatedAt: now,
	}).Error)

	svc, err := NewService(conn, logger.Nop())
	require.NoError(t, err)
	stats, err := svc.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(300), stats.OutstandingCents)
	assert.Equal(t, int64(1), stats.UsersWithBalance)
	assert.Equal(t, int64(1), stats.Referrals["pending"])
	assert.Equal(t, int64(1), stats.Affiliate.Conversions)
	assert.Equal(t, int64(50), stats.Affiliate.EarnedCents)

	byType := map[string]EntryTypeTotals{}
	for _, row := range stats.ByEntryType {
		byType[row.Type] = row
	}
	assert.Equal(t, int64(2), byType["debit"].Entries)
	// b's debit is clamped to the 100 it held
	assert.Equal(t, int64(300), byType["debit"].DebitedCents)
	assert.Equal(t, int64(500), byType["referral"].CreditedCents)
}

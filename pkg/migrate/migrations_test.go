package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-rewards/pkg/migrate"
)

func TestMigrationsDirValidates(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "migration %s", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestLedgerMigrationEnforcesInvariants(t *testing.T) {
	content := readMigration(t, "create_ledger")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS balances",
		"CHECK (balance_cents >= 0)",
		"CONSTRAINT ux_settlement_markers_subject_key UNIQUE (subject_id, marker_key)",
		"DROP TABLE IF EXISTS ledger_entries",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestAffiliateMigrationHasUniqueness(t *testing.T) {
	content := readMigration(t, "create_affiliate")
	for _, sub := range []string{
		"ux_affiliate_links_code_lower ON affiliate_links (code_lower)",
		"ux_affiliate_clicks_daily ON affiliate_clicks (referrer_code, visitor_ip, day_key)",
		"ux_affiliate_conversions_order ON affiliate_conversions (order_id)",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestReferralMigrationAllowsResubmitAfterReject(t *testing.T) {
	content := readMigration(t, "create_orders_and_referrals")
	assert.True(t, strings.Contains(content, "WHERE status <> 'rejected'"))
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Spin Prizes!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_spin_prizes.sql"))
	require.NoError(t, migrate.ValidateDir(dir))
}

func TestParseVersion(t *testing.T) {
	v, err := migrate.ParseVersion("20260101120000")
	require.NoError(t, err)
	assert.Equal(t, int64(20260101120000), v)

	for _, bad := range []string{"", "abc", "0", "-5"} {
		_, err := migrate.ParseVersion(bad)
		assert.Error(t, err, bad)
	}
}

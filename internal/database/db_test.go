package database

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMySQLDSN(t *testing.T) {
	assert.Equal(t, "app:pw@tcp(db:3306)/ledger?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		MySQLDSN("app", "pw", "db", "3306", "ledger"))
	assert.Equal(t, "app@tcp(db:3306)/ledger?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		MySQLDSN("app", "", "db", "3306", "ledger"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "x")
	assert.Error(t, err)
}

func TestStatements(t *testing.T) {
	for _, driver := range []string{"mysql", "sqlite3"} {
		stmts, err := Statements(driver)
		require.NoError(t, err)
		joined := strings.Join(stmts, "\n")
		for _, table := range []string{"tbl_users", "tbl_users_passwords", "tbl_users_tokens", "app_taxes",
			"app_invoices_lines", "app_invoices_version", "app_quotes_taxes", "app_quotes_version"} {
			assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS "+table+" (", driver)
		}
		for _, s := range stmts {
			assert.False(t, strings.HasPrefix(s, "--"), s)
		}
	}
}

func TestMigrateSQLite(t *testing.T) {
	db, err := Open("sqlite3", "file::memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, "sqlite3"))
	// running twice is harmless
	require.NoError(t, Migrate(ctx, db, "sqlite3"))

	var n int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name LIKE 'app_%'").Scan(&n))
	assert.Equal(t, 9, n)
}

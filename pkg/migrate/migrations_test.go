package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/laundrytrack-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "migration %s", suffix)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestMigrationContents(t *testing.T) {
	tests := []struct {
		file   string
		checks []string
	}{
		{
			file:   "create_orders",
			checks: []string{
				"CREATE TABLE IF NOT EXISTS orders",
				"invoice_total numeric(12,3)",
				"CONSTRAINT orders_order_number_key UNIQUE (order_number)",
				"'CANCELLED_BY_CUSTOMER'",
				"DROP TABLE IF EXISTS orders",
			},
		},
		{
			file:   "create_payment_records",
			checks: []string{
				"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE RESTRICT",
				"CHECK (amount > 0)",
				"CHECK (kind IN ('charge', 'refund'))",
				"CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_records_confirmation_id",
				"WHERE confirmation_id IS NOT NULL",
			},
		},
		{
			file:   "create_order_history",
			checks: []string{
				"CREATE TABLE IF NOT EXISTS order_history_entries",
				"BEFORE UPDATE ON order_history_entries",
				"CREATE TABLE IF NOT EXISTS order_updates",
				"DROP TRIGGER IF EXISTS order_history_entries_append_only",
			},
		},
		{
			file:   "protect_ledger_rows",
			checks: []string{
				"REFERENCES orders(id) ON DELETE RESTRICT",
				"BEFORE UPDATE OR DELETE ON order_history_entries",
				"BEFORE DELETE ON payment_records",
				"DROP TRIGGER IF EXISTS payment_records_no_delete",
			},
		},
		{
			file:   "create_order_operations",
			checks: []string{
				"CHECK (kind IN ('pickup', 'delivery'))",
				"CHECK (item_count >= 0)",
				"CREATE TABLE IF NOT EXISTS issue_reports",
			},
		},
		{
			file:   "create_wallets",
			checks: []string{
				"CONSTRAINT wallets_balance_check CHECK (balance >= 0)",
				"REFERENCES wallets(id)",
			},
		},
		{
			file:   "create_outbox",
			checks: []string{
				"WHERE published_at IS NULL",
				"CONSTRAINT outbox_dlq_event_id_key UNIQUE (event_id)",
				"CHECK (error_reason IN ('max_attempts', 'non_retryable'))",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			content := readMigration(t, tt.file)
			for _, sub := range tt.checks {
				assert.True(t, strings.Contains(content, sub), "missing expected statement %q", sub)
			}
		})
	}
}

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name:  "bad filename",
			files: map[string]string{"init.sql": "-- +goose Up\n-- +goose Down\n"},
			want:  "invalid migration filename",
		},
		{
			name:  "missing down",
			files: map[string]string{"20260101000000_init.sql": "-- +goose Up\n"},
			want:  "missing",
		},
		{
			name:  "down before up",
			files: map[string]string{"20260101000000_init.sql": "-- +goose Down\n-- +goose Up\n"},
			want:  "Down section before Up",
		},
		{
			name:  "open statement block",
			files: map[string]string{
				"20260101000000_init.sql": "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n",
			},
			want: "StatementBegin open",
		},
		{
			name:  "duplicate name",
			files: map[string]string{
				"20260101000000_add_notes.sql": "-- +goose Up\n-- +goose Down\n",
				"20260102000000_add_notes.sql": "-- +goose Up\n-- +goose Down\n",
			},
			want: "used by",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, body := range tt.files {
				writeMigration(t, dir, name, body)
			}
			err := migrate.ValidateDir(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "init.sql", "")
	writeMigration(t, dir, "20260101000000_orders.sql", "-- +goose Up\n")
	writeMigration(t, dir, "README.md", "not a migration")

	err := migrate.ValidateDir(dir)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Order Notes!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_order_notes.sql"))
	assert.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "add order notes")
	assert.ErrorContains(t, err, "already exists")

	_, err = migrate.CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}

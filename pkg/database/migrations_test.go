package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "test.db"), MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrator_AppliesEmbeddedSchemaOnce(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	require.NoError(t, m.Run(Migrations()))
	require.NoError(t, m.Run(Migrations()))

	var applied int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 3, applied)

	for _, table := range []string{"branches", "users", "user_branches", "clients", "processes", "contracts", "transactions", "notification_dispatches", "notification_runs"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestMigrator_RejectsBadFilenames(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	err := m.Run(fstest.MapFS{"schema.sql": {Data: []byte("SELECT 1;")}})
	assert.ErrorContains(t, err, "invalid migration filename format")

	err = m.Run(fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":   {Data: []byte("SELECT 1;")},
	})
	assert.ErrorContains(t, err, "duplicate migration version 1")
}

func TestMigrator_RejectsEditedMigration(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	original := fstest.MapFS{"001_notes.sql": {Data: []byte("CREATE TABLE notes (id INTEGER PRIMARY KEY);")}}
	require.NoError(t, m.Run(original))

	applied, err := m.Applied()
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "notes", applied[0].Name)
	assert.Len(t, applied[0].Checksum, 64)

	edited := fstest.MapFS{"001_notes.sql": {Data: []byte("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT);")}}
	assert.ErrorContains(t, m.Run(edited), "changed after it was applied")

	extended := fstest.MapFS{
		"001_notes.sql": original["001_notes.sql"],
		"002_tags.sql":  {Data: []byte("CREATE TABLE tags (id INTEGER PRIMARY KEY);")},
	}
	require.NoError(t, m.Run(extended))
	applied, err = m.Applied()
	require.NoError(t, err)
	assert.Len(t, applied, 2)
}

func TestSchema_DispatchKeyIsUnique(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrator(db, zap.NewNop()).Run(Migrations()))

	insert := `INSERT INTO notification_dispatches (transaction_id, branch_id, dispatch_date, outcome, run_id) VALUES (1, 1, '2026-10-19', 'claimed', 'r1')`
	_, err := db.Exec(insert)
	require.NoError(t, err)

	_, err = db.Exec(insert)
	assert.Error(t, err)

	_, err = db.Exec("DELETE FROM notification_dispatches")
	assert.ErrorContains(t, err, "append-only")
}

func TestSchema_PaidTransactionsAreFrozen(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrator(db, zap.NewNop()).Run(Migrations()))

	_, err := db.Exec(`INSERT INTO branches (name) VALUES ('HQ')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO transactions (branch_id, kind, amount_cents, due_date, status, paid_at, created_by)
		VALUES (1, 'revenue', 50000, '2026-10-22', 'paid', CURRENT_TIMESTAMP, 1)`)
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE transactions SET due_date = '2026-12-01' WHERE id = 1`)
	assert.ErrorContains(t, err, "immutable")

	_, err = db.Exec(`DELETE FROM transactions WHERE id = 1`)
	assert.ErrorContains(t, err, "cannot delete settled transaction")

	_, err = db.Exec(`INSERT INTO transactions (branch_id, kind, amount_cents, due_date, created_by)
		VALUES (1, 'revenue', 0, '2026-10-22', 1)`)
	assert.Error(t, err, "non-positive amounts are rejected")
}

func TestConfig_DSN(t *testing.T) {
	dsn := Config{Path: "data/ledger.db"}.DSN()
	assert.Contains(t, dsn, "file:data/ledger.db?")
	assert.Contains(t, dsn, "_busy_timeout=5000")
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_txlock=immediate")

	assert.Contains(t, Config{Path: "x.db", BusyTimeout: 250 * time.Millisecond}.DSN(), "_busy_timeout=250")
}

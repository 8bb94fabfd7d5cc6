package migrations

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veltran/marketsync/internal/db"
)

func TestRunMigrations(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "marketsync.db")
	require.NoError(t, RunMigrations(dbPath))

	sqlDB, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	defer sqlDB.Close()

	for _, table := range []string{"checkpoints", "collections", "sales"} {
		var name string
		err := sqlDB.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		require.Equal(t, table, name)
	}

	// Running migrations again must be a no-op.
	require.NoError(t, RunMigrations(dbPath))
}

func TestMigrations_HaveUpSections(t *testing.T) {
	t.Parallel()

	for _, m := range All() {
		require.Contains(t, m.SQL, db.UpDownSeparator, "migration %s", m.ID)
	}
}

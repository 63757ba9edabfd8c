package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castsync/go-castsync/tests"
)

func TestOpenRunsMigrations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := Open(tests.Sqlite3URL())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	// The migrated schema must survive the migration tool closing its own
	// connection; with a shared-cache in-memory DSN that only holds if the
	// pool kept the database alive throughout.
	for _, table := range []string{"targets", "client_targets", "casts", "sync_state"} {
		var count int
		err := db.DB.QueryRowContext(ctx, "SELECT count(1) FROM "+table).Scan(&count)
		require.NoError(t, err)
		require.Zero(t, count)
	}
}

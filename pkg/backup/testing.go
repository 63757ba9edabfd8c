package backup

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// createControlDatabase builds a small node-shaped database to back up.
func createControlDatabase(t *testing.T) DB {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "control_*.db")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	db, err := open(f.Name())
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE casts (
			hash TEXT PRIMARY KEY,
			fid INTEGER NOT NULL,
			text TEXT NOT NULL,
			parent_hash TEXT,
			parent_fid INTEGER,
			parent_url TEXT,
			embeds TEXT,
			timestamp TIMESTAMP NOT NULL
		);
		CREATE TABLE sync_state (
			name TEXT PRIMARY KEY,
			last_event_id INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		INSERT INTO sync_state (name, last_event_id) VALUES ('last_event_id', 420518501032067);
	`)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		_, err = db.Exec(
			"INSERT INTO casts (hash, fid, text, timestamp) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
			fmt.Sprintf("0x%040x", i), i%10, "gm")
		require.NoError(t, err)
	}

	return db
}

func backupDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

func requireFileCount(t *testing.T, dir string, count int) {
	t.Helper()
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, count)
}

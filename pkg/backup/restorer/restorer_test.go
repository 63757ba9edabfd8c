package restorer

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castsync/go-castsync/pkg/backup"
)

func TestRestorer(t *testing.T) {
	t.Parallel()

	archive := compressedBackup(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		data, err := os.ReadFile(archive)
		require.NoError(t, err)
		_, _ = w.Write(data)
	}))
	defer ts.Close()

	dbPath := filepath.Join(t.TempDir(), "castsync.db")
	r, err := NewRestorer(ts.URL, dbPath)
	require.NoError(t, err)
	require.NoError(t, r.Restore(context.Background()))

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	var lastEventID int64
	err = db.QueryRow("SELECT last_event_id FROM sync_state WHERE name = 'last_event_id'").Scan(&lastEventID)
	require.NoError(t, err)
	require.Equal(t, int64(420518501032067), lastEventID)

	_, err = os.Stat(dbPath + ".zst")
	require.True(t, os.IsNotExist(err))
}

func TestRestorerRefusesExistingDatabase(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "castsync.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("data"), 0o644))

	_, err := NewRestorer("http://localhost", dbPath)
	require.Error(t, err)
}

func TestRestorerCorruptArchive(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not a zstd stream"))
	}))
	defer ts.Close()

	r, err := NewRestorer(ts.URL, filepath.Join(t.TempDir(), "castsync.db"))
	require.NoError(t, err)
	require.Error(t, r.Restore(context.Background()))
}

// compressedBackup builds a minimal node database and compresses it the way
// the backup scheduler does.
func compressedBackup(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "backup.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE sync_state (
			name TEXT PRIMARY KEY,
			last_event_id INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		INSERT INTO sync_state (name, last_event_id) VALUES ('last_event_id', 420518501032067);
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	archive, err := backup.Compress(path)
	require.NoError(t, err)
	return archive
}

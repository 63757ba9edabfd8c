package backup

import (
	"fmt"
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPruner(t *testing.T) {
	t.Parallel()

	for n := 1; n <= 8; n++ {
		for keep := 1; keep <= 4; keep++ {
			n, keep := n, keep
			t.Run(fmt.Sprintf("%d-%d", n, keep), func(t *testing.T) {
				t.Parallel()
				testPruner(t, n, keep)
			})
		}
	}
}

func testPruner(t *testing.T, n, keep int) {
	t.Helper()
	dir := t.TempDir()

	base := time.Now().Add(-time.Duration(n) * time.Hour)
	names := make([]string, n)
	for i := 0; i < n; i++ {
		ext := ".db"
		if i%2 == 1 {
			ext = ".db.zst"
		}
		names[i] = fmt.Sprintf("%s_%d%s", BackupFilenamePrefix, i, ext)
		writeBackupFile(t, dir, names[i], base.Add(time.Duration(i)*time.Hour))
	}
	requireFileCount(t, dir, n)

	require.NoError(t, Prune(dir, keep))

	// the newest files survive, older ones are gone
	kept := min(n, keep)
	for i := 0; i < n; i++ {
		p := path.Join(dir, names[i])
		if i >= n-kept {
			require.FileExists(t, p)
		} else {
			require.NoFileExists(t, p)
		}
	}
}

func TestPrunerIgnoresForeignFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	now := time.Now()
	writeBackupFile(t, dir, "castsync.db", now.Add(-48*time.Hour))
	writeBackupFile(t, dir, BackupFilenamePrefix+"_notes.txt", now.Add(-48*time.Hour))
	writeBackupFile(t, dir, BackupFilenamePrefix+"_old.db", now.Add(-24*time.Hour))
	writeBackupFile(t, dir, BackupFilenamePrefix+"_new.db.zst", now)

	require.NoError(t, Prune(dir, 1))

	require.FileExists(t, path.Join(dir, "castsync.db"))
	require.FileExists(t, path.Join(dir, BackupFilenamePrefix+"_notes.txt"))
	require.NoFileExists(t, path.Join(dir, BackupFilenamePrefix+"_old.db"))
	require.FileExists(t, path.Join(dir, BackupFilenamePrefix+"_new.db.zst"))
}

func TestPrunerKeepLessThanOne(t *testing.T) {
	t.Parallel()
	require.Error(t, Prune(t.TempDir(), 0))
}

func writeBackupFile(t *testing.T, dir, name string, modTime time.Time) {
	t.Helper()
	p := path.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("backup"), 0o644))
	require.NoError(t, os.Chtimes(p, modTime, modTime))
}

func min(a, b int) int {
	if a < b {
		return a
	}

	return b
}

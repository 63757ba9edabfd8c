package backup

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestBackuperDefault(t *testing.T) {
	t.Parallel()

	dir := backupDir(t)
	backuper, err := NewBackuper(createControlDatabase(t).Path(), dir)
	require.NoError(t, err)
	require.Equal(t, false, backuper.config.Vacuum)
	require.Equal(t, false, backuper.config.Pruning)
	require.Equal(t, false, backuper.config.Compression)

	// substitutes the file creator with a deterministic version
	backuper.fileCreator = func(dir string, _ time.Time) (string, error) {
		timestamp := time.Date(2009, 11, 17, 20, 34, 58, 651387237, time.UTC)
		return createBackupFile(dir, timestamp)
	}

	result, err := backuper.Backup(context.Background())
	require.NoError(t, err)
	require.Greater(t, result.Size, int64(0))
	require.Equal(t, int64(0), result.SizeAfterVacuum)
	require.Equal(t, time.Duration(0), result.VacuumElapsedTime)
	require.Equal(t, fmt.Sprintf("%s/castsync_backup_2009-11-17T20:34:58Z.db", dir), result.Path)
	require.FileExists(t, result.Path)
	require.Greater(t, result.ElapsedTime, time.Duration(0))

	require.NoError(t, backuper.Close())
}

func TestBackuperWithVacuum(t *testing.T) {
	t.Parallel()

	backuper, err := NewBackuper(createControlDatabase(t).Path(), backupDir(t), WithVacuum(true))
	require.NoError(t, err)
	require.Equal(t, true, backuper.config.Vacuum)

	result, err := backuper.Backup(context.Background())
	require.NoError(t, err)
	require.Greater(t, result.SizeAfterVacuum, int64(0))
	require.Greater(t, result.VacuumElapsedTime, time.Duration(0))
	require.LessOrEqual(t, result.SizeAfterVacuum, result.Size)

	require.NoError(t, backuper.Close())
}

func TestBackuperWithCompression(t *testing.T) {
	t.Parallel()

	dir := backupDir(t)
	backuper, err := NewBackuper(createControlDatabase(t).Path(), dir, WithCompression(true))
	require.NoError(t, err)
	require.Equal(t, true, backuper.config.Compression)

	result, err := backuper.Backup(context.Background())
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(result.Path, ".db.zst"))
	require.FileExists(t, result.Path)
	require.NoFileExists(t, strings.TrimSuffix(result.Path, ".zst"))
	require.Greater(t, result.SizeAfterCompression, int64(0))
	require.Less(t, result.SizeAfterCompression, result.Size)

	// the archive restores to a usable database
	restored, err := Decompress(result.Path)
	require.NoError(t, err)
	db, err := sql.Open("sqlite3", restored)
	require.NoError(t, err)
	var count int
	require.NoError(t, db.QueryRow("SELECT count(1) FROM casts").Scan(&count))
	require.Equal(t, 500, count)
	require.NoError(t, db.Close())

	require.NoError(t, backuper.Close())
}

func TestBackuperWithPruning(t *testing.T) {
	t.Parallel()

	db, dir := createControlDatabase(t), backupDir(t)
	backuper, err := NewBackuper(db.Path(), dir, WithPruning(true, 1))
	require.NoError(t, err)
	require.Equal(t, true, backuper.config.Pruning)
	require.Equal(t, 1, backuper.config.KeepFiles)

	var seq int
	base := time.Date(2009, 11, 17, 20, 34, 58, 0, time.UTC)
	backuper.fileCreator = func(dir string, _ time.Time) (string, error) {
		seq++
		return createBackupFile(dir, base.Add(time.Duration(seq)*time.Second))
	}

	_, err = backuper.Backup(context.Background())
	require.NoError(t, err)
	_, err = backuper.Backup(context.Background())
	require.NoError(t, err)

	requireFileCount(t, dir, 1)
	require.NoError(t, backuper.Close())
}

func TestBackuperMultipleBackupCalls(t *testing.T) {
	t.Parallel()

	backuper, err := NewBackuper(createControlDatabase(t).Path(), backupDir(t))
	require.NoError(t, err)

	_, err = backuper.Backup(context.Background())
	require.NoError(t, err)

	// every call reopens the databases, so a closed backuper keeps working
	require.NoError(t, backuper.Close())

	result, err := backuper.Backup(context.Background())
	require.NoError(t, err)
	require.Greater(t, result.Size, int64(0))

	require.NoError(t, backuper.Close())
}

func TestBackuperBackupError(t *testing.T) {
	t.Parallel()

	dir := backupDir(t)
	backuper, err := NewBackuper(createControlDatabase(t).Path(), dir)
	require.NoError(t, err)

	backuper.fileCreator = func(dir string, _ time.Time) (string, error) {
		timestamp := time.Date(2009, 11, 17, 20, 34, 58, 651387237, time.UTC)
		return createBackupFile(dir, timestamp)
	}

	// forcing a DB implementation with broken connection to force an error
	backuper.sourceOpener = func(string) (DB, error) {
		return &brokenConnDatabase{}, nil
	}

	_, err = backuper.Backup(context.Background())
	require.ErrorContains(t, err, "getting db conn: connection is broken")
	require.NoFileExists(t, fmt.Sprintf("%s/castsync_backup_2009-11-17T20:34:58Z.db", dir)) // file was deleted
}

type brokenConnDatabase struct {
	DB
}

func (db *brokenConnDatabase) Conn(_ context.Context) (*sql.Conn, error) {
	return nil, errors.New("connection is broken")
}

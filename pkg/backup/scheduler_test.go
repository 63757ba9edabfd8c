package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	t.Parallel()

	dir := backupDir(t)
	controlDB := createControlDatabase(t)
	t.Cleanup(func() {
		require.NoError(t, controlDB.Close())
	})

	backuper, err := NewBackuper(controlDB.Path(), dir)
	require.NoError(t, err)

	var seq int
	base := time.Date(2009, 11, 17, 20, 34, 58, 0, time.UTC)
	backuper.fileCreator = func(dir string, _ time.Time) (string, error) {
		seq++
		return createBackupFile(dir, base.Add(time.Duration(seq)*time.Second))
	}

	scheduler := NewScheduler(200*time.Millisecond, backuper, true)
	go scheduler.Run()

	var counter int
	for range scheduler.NotificationCh {
		counter++
		if counter == 3 {
			break
		}
	}
	scheduler.Shutdown()

	requireFileCount(t, dir, counter)
}

package impl

import (
	"context"
	"testing"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/jobqueue"
	"github.com/castsync/go-castsync/tests"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Enqueuer, *Admin) {
	t.Helper()
	opts := tests.RedisOptions(t)
	redisOpt := asynq.RedisClientOpt{Addr: opts.Addr}

	enqueuer := NewEnqueuer(redisOpt)
	t.Cleanup(func() { _ = enqueuer.Close() })
	return enqueuer, NewAdmin(redisOpt)
}

func TestEnqueueDedup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	enqueuer, admin := setup(t)

	key := jobqueue.BackfillKey(1)
	err := enqueuer.Enqueue(ctx, jobqueue.QueueBackfill, key, []byte(`{"fid":1,"is_root":true}`))
	require.NoError(t, err)

	err = enqueuer.Enqueue(ctx, jobqueue.QueueBackfill, key, []byte(`{"fid":1,"is_root":true}`))
	require.ErrorIs(t, err, jobqueue.ErrAlreadyQueued)

	counts, err := admin.Counts(ctx, jobqueue.QueueBackfill)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts.Waiting)
}

func TestStatusForFIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	enqueuer, admin := setup(t)

	require.NoError(t, enqueuer.Enqueue(
		ctx, jobqueue.QueueBackfill, jobqueue.BackfillKey(1), []byte(`{"fid":1}`)))

	statuses, err := admin.StatusForFIDs(ctx, []castsync.FID{1, 2})
	require.NoError(t, err)
	require.Equal(t, jobqueue.JobStatusPending, statuses[1])
	require.Equal(t, jobqueue.JobStatusAbsent, statuses[2])
}

func TestPauseResume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	enqueuer, admin := setup(t)

	require.NoError(t, enqueuer.Enqueue(ctx, jobqueue.QueueBackfill, "", []byte(`{}`)))

	require.NoError(t, admin.Pause(ctx, jobqueue.QueueBackfill))
	counts, err := admin.Counts(ctx, jobqueue.QueueBackfill)
	require.NoError(t, err)
	require.True(t, counts.Paused)

	require.NoError(t, admin.Resume(ctx, jobqueue.QueueBackfill))
	counts, err = admin.Counts(ctx, jobqueue.QueueBackfill)
	require.NoError(t, err)
	require.False(t, counts.Paused)
}

func TestClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	enqueuer, admin := setup(t)

	for _, fid := range []castsync.FID{1, 2, 3} {
		require.NoError(t, enqueuer.Enqueue(
			ctx, jobqueue.QueueBackfill, jobqueue.BackfillKey(fid), []byte(`{}`)))
	}

	require.NoError(t, admin.Clear(ctx, jobqueue.QueueBackfill))
	counts, err := admin.Counts(ctx, jobqueue.QueueBackfill)
	require.NoError(t, err)
	require.Zero(t, counts.Waiting)

	// Cleared keys can be enqueued again.
	require.NoError(t, enqueuer.Enqueue(
		ctx, jobqueue.QueueBackfill, jobqueue.BackfillKey(1), []byte(`{}`)))
}

func TestCountsUnknownQueue(t *testing.T) {
	t.Parallel()
	_, admin := setup(t)

	counts, err := admin.Counts(context.Background(), "never-used")
	require.NoError(t, err)
	require.Equal(t, jobqueue.Counts{}, counts)
}

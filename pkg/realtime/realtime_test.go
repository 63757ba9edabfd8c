package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/database"
	"github.com/castsync/go-castsync/pkg/hub"
	"github.com/castsync/go-castsync/pkg/jobqueue"
	"github.com/castsync/go-castsync/pkg/jobqueue/jobqueuetest"
	"github.com/castsync/go-castsync/pkg/sharedmemory"
	"github.com/castsync/go-castsync/pkg/sqlstore"
	storeimpl "github.com/castsync/go-castsync/pkg/sqlstore/impl"
	"github.com/castsync/go-castsync/pkg/targets"
	registryimpl "github.com/castsync/go-castsync/pkg/targets/impl"
	targetsetimpl "github.com/castsync/go-castsync/pkg/targetset/impl"
	"github.com/castsync/go-castsync/tests"
	"github.com/castsync/go-castsync/tests/fakehub"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	worker   *Worker
	hub      *fakehub.Hub
	store    sqlstore.Store
	registry targets.Registry
	queue    *jobqueuetest.Queue
	sm       *sharedmemory.SharedMemory
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()

	sqliteDB, err := database.Open(tests.Sqlite3URL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteDB.Close() })
	store := storeimpl.NewStore(sqliteDB)

	redisClient := redis.NewClient(tests.RedisOptions(t))
	t.Cleanup(func() { _ = redisClient.Close() })
	targetCache := targetsetimpl.NewRedisSet(redisClient, "targets")
	clientCache := targetsetimpl.NewRedisSet(redisClient, "client-targets")

	queue := jobqueuetest.New()
	registry := registryimpl.NewRegistry(store, targetCache, clientCache, queue, queue, registryimpl.Strategy{})

	fake := fakehub.New()
	sm := sharedmemory.NewSharedMemory()
	worker, err := New(fake, store, registry, queue, sm, opts...)
	require.NoError(t, err)

	return fixture{worker: worker, hub: fake, store: store, registry: registry, queue: queue, sm: sm}
}

func mergeMessage(id uint64, msgType string, fid uint64, hash string, data hub.MessageData) hub.Event {
	data.Type = msgType
	data.FID = fid
	return hub.Event{
		ID:   id,
		Type: hub.EventTypeMergeMessage,
		MergeMessageBody: &hub.MergeMessageBody{
			Message: &hub.Message{Hash: hash, Data: &data},
		},
	}
}

func signerAdd(id, fid, requestFID uint64) hub.Event {
	return hub.Event{
		ID:   id,
		Type: hub.EventTypeMergeOnChainEvent,
		MergeOnChainEventBody: &hub.MergeOnChainEventBody{
			OnChainEvent: &hub.OnChainEvent{
				Type: hub.OnChainEventTypeSigner,
				FID:  fid,
				SignerEventBody: &hub.SignerEventBody{
					EventType:  hub.SignerEventTypeAdd,
					RequestFID: requestFID,
				},
			},
		},
	}
}

func tick(t *testing.T, f fixture) {
	t.Helper()
	require.NoError(t, f.worker.Handle(context.Background(), jobqueue.Job{
		Queue:   jobqueue.QueueRealtime,
		Key:     jobqueue.RealtimeKey(),
		Payload: []byte("{}"),
	}))
}

func TestHandleFiltersEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.registry.EnsureTarget(ctx, 1, true)
	require.NoError(t, err)
	require.NoError(t, f.queue.Clear(ctx, jobqueue.QueueBackfill))

	f.hub.AppendEvent(mergeMessage(10, hub.MessageTypeCastAdd, 1, "0x01", hub.MessageData{
		CastAddBody: &hub.CastAddBody{Text: "gm"},
	}))
	// An untracked author posting into the void.
	f.hub.AppendEvent(mergeMessage(11, hub.MessageTypeCastAdd, 99, "0x02", hub.MessageData{
		CastAddBody: &hub.CastAddBody{Text: "hello"},
	}))
	// An untracked author replying to a tracked one.
	f.hub.AppendEvent(mergeMessage(12, hub.MessageTypeCastAdd, 99, "0x03", hub.MessageData{
		CastAddBody: &hub.CastAddBody{Text: "re: gm", ParentCastID: &hub.CastID{FID: 1, Hash: "0x01"}},
	}))
	f.hub.AppendEvent(mergeMessage(13, hub.MessageTypeReactionAdd, 98, "0x04", hub.MessageData{
		ReactionBody: &hub.ReactionBody{Type: "REACTION_TYPE_LIKE", TargetCastID: &hub.CastID{FID: 1, Hash: "0x01"}},
	}))
	// An untracked author following another untracked one.
	f.hub.AppendEvent(mergeMessage(14, hub.MessageTypeLinkAdd, 97, "0x05", hub.MessageData{
		LinkBody: &hub.LinkBody{Type: "follow", TargetFID: 96},
	}))

	tick(t, f)

	jobs := f.queue.Jobs(jobqueue.QueueProcessEvent)
	require.Len(t, jobs, 3)
	require.True(t, f.queue.HasKey(jobqueue.QueueProcessEvent, jobqueue.ProcessEventKey(10)))
	require.True(t, f.queue.HasKey(jobqueue.QueueProcessEvent, jobqueue.ProcessEventKey(12)))
	require.True(t, f.queue.HasKey(jobqueue.QueueProcessEvent, jobqueue.ProcessEventKey(13)))

	var event hub.Event
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &event))
	require.Equal(t, uint64(10), event.ID)
	require.Equal(t, "gm", event.MergeMessageBody.Message.Data.CastAddBody.Text)

	// The cursor advanced past irrelevant events too.
	cursor, found, err := f.store.GetLastEventID(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(14), cursor)
	seen, ok := f.sm.GetLastSeenEventID()
	require.True(t, ok)
	require.Equal(t, uint64(14), seen)
	require.Contains(t, f.sm.Heartbeats(), "realtime")

	// A second tick from the persisted cursor finds nothing new.
	tick(t, f)
	require.Len(t, f.queue.Jobs(jobqueue.QueueProcessEvent), 3)
}

func TestHandleExpandsRootFollows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.registry.EnsureTarget(ctx, 1, true)
	require.NoError(t, err)
	_, err = f.registry.EnsureTarget(ctx, 2, false)
	require.NoError(t, err)
	require.NoError(t, f.queue.Clear(ctx, jobqueue.QueueBackfill))

	// A root following someone new pulls them in; a non-root doing the
	// same does not.
	f.hub.AppendEvent(mergeMessage(20, hub.MessageTypeLinkAdd, 1, "0x01", hub.MessageData{
		LinkBody: &hub.LinkBody{Type: "follow", TargetFID: 5},
	}))
	f.hub.AppendEvent(mergeMessage(21, hub.MessageTypeLinkAdd, 2, "0x02", hub.MessageData{
		LinkBody: &hub.LinkBody{Type: "follow", TargetFID: 6},
	}))
	// Self-follows are ignored.
	f.hub.AppendEvent(mergeMessage(22, hub.MessageTypeLinkAdd, 1, "0x03", hub.MessageData{
		LinkBody: &hub.LinkBody{Type: "follow", TargetFID: 1},
	}))

	tick(t, f)

	target, found, err := f.store.GetTarget(ctx, 5)
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, target.IsRoot)
	require.True(t, f.queue.HasKey(jobqueue.QueueBackfill, jobqueue.BackfillKey(5)))

	_, found, err = f.store.GetTarget(ctx, 6)
	require.NoError(t, err)
	require.False(t, found)
}

func TestHandlePrunesUnfollowedTargets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.registry.EnsureTarget(ctx, 1, true)
	require.NoError(t, err)
	_, err = f.registry.EnsureTarget(ctx, 2, true)
	require.NoError(t, err)
	_, err = f.registry.EnsureTarget(ctx, 5, false)
	require.NoError(t, err)
	_, err = f.registry.EnsureTarget(ctx, 6, false)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, f.store.InsertLinks(ctx, []castsync.Link{
		{Hash: "0xa1", FID: 1, TargetFID: 5, Type: "follow", Timestamp: now},
		{Hash: "0xa2", FID: 1, TargetFID: 6, Type: "follow", Timestamp: now},
		{Hash: "0xa3", FID: 2, TargetFID: 6, Type: "follow", Timestamp: now},
	}, 0))

	// 5 loses its only root follower and is pruned; 6 is still followed
	// by root 2 and stays.
	f.hub.AppendEvent(mergeMessage(30, hub.MessageTypeLinkRemove, 1, "0xb1", hub.MessageData{
		LinkBody: &hub.LinkBody{Type: "follow", TargetFID: 5},
	}))
	f.hub.AppendEvent(mergeMessage(31, hub.MessageTypeLinkRemove, 1, "0xb2", hub.MessageData{
		LinkBody: &hub.LinkBody{Type: "follow", TargetFID: 6},
	}))
	// A root unfollowing another root never prunes it.
	f.hub.AppendEvent(mergeMessage(32, hub.MessageTypeLinkRemove, 1, "0xb3", hub.MessageData{
		LinkBody: &hub.LinkBody{Type: "follow", TargetFID: 2},
	}))

	tick(t, f)

	_, found, err := f.store.GetTarget(ctx, 5)
	require.NoError(t, err)
	require.False(t, found)
	isTarget, err := f.registry.IsTarget(ctx, 5)
	require.NoError(t, err)
	require.False(t, isTarget)

	_, found, err = f.store.GetTarget(ctx, 6)
	require.NoError(t, err)
	require.True(t, found)
	_, found, err = f.store.GetTarget(ctx, 2)
	require.NoError(t, err)
	require.True(t, found)
}

func TestHandleClientDiscovery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, WithClientDiscovery(true))

	require.NoError(t, f.registry.AddClientTarget(ctx, 7))

	// A new account signing up through the tracked client.
	f.hub.AppendEvent(signerAdd(40, 8, 7))
	// Signer additions requested by unknown clients are noise.
	f.hub.AppendEvent(signerAdd(41, 77, 66))

	tick(t, f)

	target, found, err := f.store.GetTarget(ctx, 8)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, target.IsRoot)
	require.True(t, f.queue.HasKey(jobqueue.QueueBackfill, jobqueue.BackfillKey(8)))
	require.True(t, f.queue.HasKey(jobqueue.QueueProcessEvent, jobqueue.ProcessEventKey(40)))
	require.False(t, f.queue.HasKey(jobqueue.QueueProcessEvent, jobqueue.ProcessEventKey(41)))

	_, found, err = f.store.GetTarget(ctx, 77)
	require.NoError(t, err)
	require.False(t, found)
}

func TestHandleClientDiscoveryDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.registry.AddClientTarget(ctx, 7))
	f.hub.AppendEvent(signerAdd(50, 8, 7))

	tick(t, f)

	// The event is still relevant and queued, but no promotion happens.
	require.True(t, f.queue.HasKey(jobqueue.QueueProcessEvent, jobqueue.ProcessEventKey(50)))
	_, found, err := f.store.GetTarget(ctx, 8)
	require.NoError(t, err)
	require.False(t, found)
}

func TestHandleFullPageReEnqueues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, WithPageSize(2))

	for id := uint64(60); id < 63; id++ {
		f.hub.AppendEvent(mergeMessage(id, hub.MessageTypeCastAdd, 99, "0x01", hub.MessageData{
			CastAddBody: &hub.CastAddBody{Text: "noise"},
		}))
	}

	tick(t, f)

	jobs := f.queue.Jobs(jobqueue.QueueRealtime)
	require.Len(t, jobs, 1)
	var payload jobqueue.RealtimePayload
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &payload))
	require.NotNil(t, payload.LastEventID)
	require.Equal(t, uint64(61), *payload.LastEventID)

	// Draining the catch-up job reaches the head of the stream.
	require.NoError(t, f.queue.Drain(ctx, jobqueue.QueueRealtime, f.worker.Handle))
	cursor, found, err := f.store.GetLastEventID(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(62), cursor)
	require.Empty(t, f.queue.Jobs(jobqueue.QueueRealtime))
}

func TestHandlePayloadCursorWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.store.SetLastEventID(ctx, 5))
	_, err := f.registry.EnsureTarget(ctx, 1, true)
	require.NoError(t, err)
	require.NoError(t, f.queue.Clear(ctx, jobqueue.QueueBackfill))

	f.hub.AppendEvent(mergeMessage(10, hub.MessageTypeCastAdd, 1, "0x01", hub.MessageData{
		CastAddBody: &hub.CastAddBody{Text: "skipped"},
	}))
	f.hub.AppendEvent(mergeMessage(20, hub.MessageTypeCastAdd, 1, "0x02", hub.MessageData{
		CastAddBody: &hub.CastAddBody{Text: "seen"},
	}))

	from := uint64(15)
	payload, err := json.Marshal(jobqueue.RealtimePayload{LastEventID: &from})
	require.NoError(t, err)
	require.NoError(t, f.worker.Handle(ctx, jobqueue.Job{
		Queue:   jobqueue.QueueRealtime,
		Key:     jobqueue.RealtimeKey(),
		Payload: payload,
	}))

	require.False(t, f.queue.HasKey(jobqueue.QueueProcessEvent, jobqueue.ProcessEventKey(10)))
	require.True(t, f.queue.HasKey(jobqueue.QueueProcessEvent, jobqueue.ProcessEventKey(20)))
}

func TestHandleHubFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	f.hub.Err = &hub.AllHubsFailedError{}
	err := f.worker.Handle(ctx, jobqueue.Job{Queue: jobqueue.QueueRealtime, Payload: []byte("{}")})
	require.Error(t, err)

	_, found, err := f.store.GetLastEventID(ctx)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRunTicker(t *testing.T) {
	t.Parallel()
	f := newFixture(t, WithPollInterval(time.Millisecond*10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.worker.RunTicker(ctx)
	}()

	require.Eventually(t, func() bool {
		return f.queue.HasKey(jobqueue.QueueRealtime, jobqueue.RealtimeKey())
	}, time.Second, time.Millisecond*5)
	// The singleton key dedups further ticks.
	require.Len(t, f.queue.Jobs(jobqueue.QueueRealtime), 1)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ticker did not stop")
	}
}

package fullstack

import (
	"context"
	"testing"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/hub"
	"github.com/castsync/go-castsync/pkg/jobqueue"
	"github.com/stretchr/testify/require"
)

func followMessage(fid, targetFID uint64, hash string) hub.Message {
	return hub.Message{
		Hash: hash,
		Data: &hub.MessageData{
			Type:      hub.MessageTypeLinkAdd,
			FID:       fid,
			Timestamp: 839414,
			LinkBody:  &hub.LinkBody{Type: castsync.LinkTypeFollow, TargetFID: targetFID},
		},
	}
}

func castAddEvent(id, fid uint64, hash, text string) hub.Event {
	return hub.Event{
		ID:   id,
		Type: hub.EventTypeMergeMessage,
		MergeMessageBody: &hub.MergeMessageBody{
			Message: &hub.Message{
				Hash: hash,
				Data: &hub.MessageData{
					Type:        hub.MessageTypeCastAdd,
					FID:         fid,
					Timestamp:   839414,
					CastAddBody: &hub.CastAddBody{Text: text},
				},
			},
		},
	}
}

func TestAddRootTargetSchedulesBackfill(t *testing.T) {
	t.Parallel()
	fs := CreateFullStack(t)
	ctx := context.Background()

	require.NoError(t, fs.Client.AddTarget(ctx, 1, true))

	target, found, err := fs.Store.GetTarget(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, target.IsRoot)
	require.Nil(t, target.LastSyncedAt)

	isTarget, err := fs.Registry.IsTarget(ctx, 1)
	require.NoError(t, err)
	require.True(t, isTarget)

	require.True(t, fs.Queue.HasKey(jobqueue.QueueBackfill, jobqueue.BackfillKey(1)))
}

func TestBackfillExpandsFollowGraph(t *testing.T) {
	t.Parallel()
	fs := CreateFullStack(t)
	ctx := context.Background()

	fs.Hub.Links[1] = []hub.Message{
		followMessage(1, 2, "0x10"),
		followMessage(1, 3, "0x11"),
	}

	require.NoError(t, fs.Client.AddTarget(ctx, 1, true))
	fs.DrainBackfills(t)

	for _, fid := range []castsync.FID{1, 2, 3} {
		target, found, err := fs.Store.GetTarget(ctx, fid)
		require.NoError(t, err)
		require.True(t, found, "target %d", fid)
		require.Equal(t, fid == 1, target.IsRoot)
		require.NotNil(t, target.LastSyncedAt)

		isTarget, err := fs.Registry.IsTarget(ctx, fid)
		require.NoError(t, err)
		require.True(t, isTarget)
	}
}

func TestRealtimeCastAdd(t *testing.T) {
	t.Parallel()
	fs := CreateFullStack(t)
	ctx := context.Background()

	require.NoError(t, fs.Client.AddTarget(ctx, 1, true))
	fs.Hub.AppendEvent(castAddEvent(10, 1, "0xA1", "hi"))
	fs.Tick(t)

	cast, found, err := fs.Store.GetCast(ctx, "0xa1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hi", cast.Text)
	require.Equal(t, time.Date(2021, 1, 10, 17, 10, 14, 0, time.UTC), cast.Timestamp)

	status, err := fs.Client.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(10), status.LastEventID)
}

func TestRealtimePruneRemovesCast(t *testing.T) {
	t.Parallel()
	fs := CreateFullStack(t)
	ctx := context.Background()

	require.NoError(t, fs.Client.AddTarget(ctx, 1, true))
	fs.Hub.AppendEvent(castAddEvent(10, 1, "0xA1", "hi"))
	fs.Tick(t)

	pruned := castAddEvent(11, 1, "0xA1", "hi")
	pruned.Type = hub.EventTypePruneMessage
	pruned.PruneMessageBody = &hub.PruneMessageBody{Message: pruned.MergeMessageBody.Message}
	pruned.MergeMessageBody = nil
	fs.Hub.AppendEvent(pruned)
	fs.Tick(t)

	_, found, err := fs.Store.GetCast(ctx, "0xa1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestClientDiscoveryPromotesSigner(t *testing.T) {
	t.Parallel()
	fs := CreateFullStack(t)
	ctx := context.Background()

	require.NoError(t, fs.Client.AddClientTarget(ctx, 6))
	fs.Hub.AppendEvent(hub.Event{
		ID:   20,
		Type: hub.EventTypeMergeOnChainEvent,
		MergeOnChainEventBody: &hub.MergeOnChainEventBody{
			OnChainEvent: &hub.OnChainEvent{
				Type: hub.OnChainEventTypeSigner,
				FID:  7,
				SignerEventBody: &hub.SignerEventBody{
					EventType:  hub.SignerEventTypeAdd,
					RequestFID: 6,
				},
			},
		},
	})
	fs.Tick(t)

	target, found, err := fs.Store.GetTarget(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, target.IsRoot)
	require.True(t, fs.Queue.HasKey(jobqueue.QueueBackfill, jobqueue.BackfillKey(7)))
}

func TestDuplicateMergeYieldsSingleRow(t *testing.T) {
	t.Parallel()
	fs := CreateFullStack(t)
	ctx := context.Background()

	require.NoError(t, fs.Client.AddTarget(ctx, 1, true))
	fs.Hub.AppendEvent(castAddEvent(10, 1, "0xA1", "hi"))
	fs.Tick(t)
	// A hub replay delivers the same message under a new event id.
	fs.Hub.AppendEvent(castAddEvent(11, 1, "0xA1", "hi"))
	fs.Tick(t)

	_, found, err := fs.Store.GetCast(ctx, "0xa1")
	require.NoError(t, err)
	require.True(t, found)

	counts, err := fs.Client.QueueCounts(ctx, jobqueue.QueueProcessEvent)
	require.NoError(t, err)
	require.Zero(t, counts.Waiting)
}

// Package realtime has the worker that tails the hub event stream, filters
// it down to tracked accounts, and feeds the process-event queue.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/hub"
	"github.com/castsync/go-castsync/pkg/jobqueue"
	"github.com/castsync/go-castsync/pkg/sharedmemory"
	"github.com/castsync/go-castsync/pkg/sqlstore"
	"github.com/castsync/go-castsync/pkg/targets"
	"github.com/castsync/go-castsync/pkg/telemetry"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/metric/instrument"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultPageSize     = 100
	defaultPollInterval = time.Second * 2

	workerName = "realtime"
)

// Worker tails the hub event stream one page per job.
type Worker struct {
	hub      hub.Client
	store    sqlstore.Store
	registry targets.Registry
	enqueuer jobqueue.Enqueuer
	sm       *sharedmemory.SharedMemory

	pageSize              int
	pollInterval          time.Duration
	enableClientDiscovery bool

	log zerolog.Logger

	mEventCount   instrument.Int64Counter
	mTickDuration instrument.Int64Histogram
}

// Option modifies worker defaults.
type Option func(*Worker) error

// WithPageSize changes how many events one tick reads.
func WithPageSize(size int) Option {
	return func(w *Worker) error {
		if size <= 0 {
			return fmt.Errorf("page size must be positive")
		}
		w.pageSize = size
		return nil
	}
}

// WithPollInterval changes the ticker cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) error {
		if interval <= 0 {
			return fmt.Errorf("poll interval must be positive")
		}
		w.pollInterval = interval
		return nil
	}
}

// WithClientDiscovery gates the SIGNER_ADD expansion of client targets.
func WithClientDiscovery(enabled bool) Option {
	return func(w *Worker) error {
		w.enableClientDiscovery = enabled
		return nil
	}
}

// New creates a new realtime worker.
func New(
	hubClient hub.Client,
	store sqlstore.Store,
	registry targets.Registry,
	enqueuer jobqueue.Enqueuer,
	sm *sharedmemory.SharedMemory,
	opts ...Option,
) (*Worker, error) {
	w := &Worker{
		hub:          hubClient,
		store:        store,
		registry:     registry,
		enqueuer:     enqueuer,
		sm:           sm,
		pageSize:     defaultPageSize,
		pollInterval: defaultPollInterval,
		log: logger.With().
			Str("component", "realtime").
			Logger(),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, fmt.Errorf("applying option: %s", err)
		}
	}
	if err := w.initMetrics(); err != nil {
		return nil, fmt.Errorf("initializing metrics: %s", err)
	}
	return w, nil
}

// RunTicker enqueues the singleton realtime job every poll interval until the
// context is canceled. An already queued or running job makes the enqueue a
// no-op.
func (w *Worker) RunTicker(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("gracefully closed")
			return
		case <-ticker.C:
			if err := w.enqueueTick(ctx, nil); err != nil {
				w.log.Error().Err(err).Msg("enqueuing realtime tick")
			}
		}
	}
}

// enqueueTick queues a realtime tick. Ticker ticks carry the singleton key so
// they collapse into at most one pending job; catch-up ticks are unkeyed
// because the running job still owns the singleton key.
func (w *Worker) enqueueTick(ctx context.Context, lastEventID *uint64) error {
	payload, err := json.Marshal(jobqueue.RealtimePayload{LastEventID: lastEventID})
	if err != nil {
		return fmt.Errorf("marshaling realtime payload: %s", err)
	}
	key := jobqueue.RealtimeKey()
	if lastEventID != nil {
		key = ""
	}
	err = w.enqueuer.Enqueue(ctx, jobqueue.QueueRealtime, key, payload)
	if err != nil && !errors.Is(err, jobqueue.ErrAlreadyQueued) {
		return err
	}
	return nil
}

// Handle is the jobqueue handler of the realtime queue. It processes one
// page of the event stream and persists the cursor at the end.
func (w *Worker) Handle(ctx context.Context, job jobqueue.Job) error {
	start := time.Now()

	var payload jobqueue.RealtimePayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshaling realtime payload: %s", err)
		}
	}

	cursor, err := w.cursor(ctx, payload)
	if err != nil {
		return err
	}

	page, err := w.hub.GetEvents(ctx, hub.GetEventsRequest{
		FromEventID: cursor,
		PageSize:    w.pageSize,
	})
	if err != nil {
		return fmt.Errorf("fetching event page: %s", err)
	}

	for _, event := range page.Events {
		// Failures on a single event must not block the stream; the
		// process-event queue owns retries of enqueued work.
		relevant, err := w.relevant(ctx, event)
		if err != nil {
			w.log.Error().Err(err).Uint64("event_id", event.ID).Msg("computing event relevance")
		} else if relevant {
			if err := w.enqueueProcessEvent(ctx, event); err != nil {
				w.log.Error().Err(err).Uint64("event_id", event.ID).Msg("enqueuing process-event job")
			}
			if err := w.expand(ctx, event); err != nil {
				w.log.Error().Err(err).Uint64("event_id", event.ID).Msg("expanding target graph")
			}
		}
		w.recordEvent(relevant)

		cursor = event.ID
		w.sm.SetLastSeenEventID(cursor)
	}

	if len(page.Events) > 0 {
		if err := w.store.SetLastEventID(ctx, cursor); err != nil {
			return fmt.Errorf("persisting cursor: %s", err)
		}
		if err := telemetry.Collect(ctx, telemetry.SyncCursor{LastEventID: cursor}); err != nil {
			w.log.Error().Err(err).Msg("collecting sync cursor metric")
		}
	}
	w.sm.Heartbeat(workerName, time.Now().UTC())
	w.recordTick(time.Since(start))

	// A full page means the stream is ahead of us; catch up without
	// waiting for the next ticker fire.
	if len(page.Events) == w.pageSize {
		next := cursor
		if err := w.enqueueTick(ctx, &next); err != nil {
			w.log.Error().Err(err).Msg("re-enqueuing realtime tick")
		}
	}

	return nil
}

func (w *Worker) cursor(ctx context.Context, payload jobqueue.RealtimePayload) (uint64, error) {
	if payload.LastEventID != nil {
		return *payload.LastEventID, nil
	}
	cursor, found, err := w.store.GetLastEventID(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading cursor: %s", err)
	}
	if !found {
		return 0, nil
	}
	return cursor, nil
}

func (w *Worker) enqueueProcessEvent(ctx context.Context, event hub.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %s", err)
	}
	err = w.enqueuer.Enqueue(ctx, jobqueue.QueueProcessEvent, jobqueue.ProcessEventKey(event.ID), payload)
	if err != nil && !errors.Is(err, jobqueue.ErrAlreadyQueued) {
		return err
	}
	return nil
}

// relevant applies the stream filter: an event matters when it touches a
// tracked account, replies to one, reacts to one, follows one, or is a
// signer addition of a client target.
func (w *Worker) relevant(ctx context.Context, event hub.Event) (bool, error) {
	switch event.Type {
	case hub.EventTypeMergeMessage:
		if event.MergeMessageBody == nil || event.MergeMessageBody.Message == nil {
			return false, nil
		}
		return w.relevantMessage(ctx, event.MergeMessageBody.Message)
	case hub.EventTypePruneMessage:
		if event.PruneMessageBody == nil || event.PruneMessageBody.Message == nil {
			return false, nil
		}
		return w.messageFIDIsTarget(ctx, event.PruneMessageBody.Message)
	case hub.EventTypeRevokeMessage:
		if event.RevokeMessageBody == nil || event.RevokeMessageBody.Message == nil {
			return false, nil
		}
		return w.messageFIDIsTarget(ctx, event.RevokeMessageBody.Message)
	case hub.EventTypeMergeOnChainEvent:
		if event.MergeOnChainEventBody == nil || event.MergeOnChainEventBody.OnChainEvent == nil {
			return false, nil
		}
		return w.relevantOnChainEvent(ctx, event.MergeOnChainEventBody.OnChainEvent)
	}
	return false, nil
}

func (w *Worker) messageFIDIsTarget(ctx context.Context, msg *hub.Message) (bool, error) {
	if msg.Data == nil {
		return false, nil
	}
	return w.registry.IsTarget(ctx, castsync.FID(msg.Data.FID))
}

func (w *Worker) relevantMessage(ctx context.Context, msg *hub.Message) (bool, error) {
	if msg.Data == nil {
		return false, nil
	}
	isTarget, err := w.registry.IsTarget(ctx, castsync.FID(msg.Data.FID))
	if err != nil || isTarget {
		return isTarget, err
	}

	switch msg.Data.Type {
	case hub.MessageTypeCastAdd:
		if body := msg.Data.CastAddBody; body != nil && body.ParentCastID != nil {
			return w.registry.IsTarget(ctx, castsync.FID(body.ParentCastID.FID))
		}
	case hub.MessageTypeReactionAdd:
		if body := msg.Data.ReactionBody; body != nil && body.TargetCastID != nil {
			return w.registry.IsTarget(ctx, castsync.FID(body.TargetCastID.FID))
		}
	case hub.MessageTypeLinkAdd:
		if body := msg.Data.LinkBody; body != nil && body.TargetFID != 0 {
			return w.registry.IsTarget(ctx, castsync.FID(body.TargetFID))
		}
	}
	return false, nil
}

func (w *Worker) relevantOnChainEvent(ctx context.Context, event *hub.OnChainEvent) (bool, error) {
	if requester := event.SignerRequestFID(); event.IsSignerAdd() && requester != 0 {
		isClient, err := w.registry.IsClientTarget(ctx, castsync.FID(requester))
		if err != nil || isClient {
			return isClient, err
		}
	}
	return w.registry.IsTarget(ctx, castsync.FID(event.FID))
}

// expand grows or shrinks the target set from follow edges of root targets
// and signer additions requested by client targets.
func (w *Worker) expand(ctx context.Context, event hub.Event) error {
	switch event.Type {
	case hub.EventTypeMergeMessage:
		msg := event.MergeMessageBody.Message
		if msg.Data == nil || msg.Data.LinkBody == nil {
			return nil
		}
		body := msg.Data.LinkBody
		if body.Type != castsync.LinkTypeFollow || body.TargetFID == 0 {
			return nil
		}

		fid := castsync.FID(msg.Data.FID)
		targetFID := castsync.FID(body.TargetFID)
		switch msg.Data.Type {
		case hub.MessageTypeLinkAdd:
			return w.expandFollow(ctx, fid, targetFID)
		case hub.MessageTypeLinkRemove:
			return w.pruneUnfollowed(ctx, fid, targetFID)
		}
	case hub.EventTypeMergeOnChainEvent:
		onChainEvent := event.MergeOnChainEventBody.OnChainEvent
		if !w.enableClientDiscovery || !onChainEvent.IsSignerAdd() {
			return nil
		}
		requester := onChainEvent.SignerRequestFID()
		if requester == 0 {
			return nil
		}
		isClient, err := w.registry.IsClientTarget(ctx, castsync.FID(requester))
		if err != nil {
			return fmt.Errorf("checking client target: %s", err)
		}
		if !isClient {
			return nil
		}
		// The event's own fid is the new user that signed up through the
		// client; it becomes a root target with its own backfill.
		if err := w.registry.PromoteToRoot(ctx, castsync.FID(onChainEvent.FID)); err != nil {
			return fmt.Errorf("promoting signer fid %d: %s", onChainEvent.FID, err)
		}
	}
	return nil
}

func (w *Worker) expandFollow(ctx context.Context, fid, targetFID castsync.FID) error {
	isRoot, err := w.isRootTarget(ctx, fid)
	if err != nil {
		return err
	}
	if !isRoot || fid == targetFID {
		return nil
	}
	if _, err := w.registry.EnsureTarget(ctx, targetFID, false); err != nil {
		return fmt.Errorf("ensuring target %d: %s", targetFID, err)
	}
	return nil
}

// pruneUnfollowed drops targetFID when the unfollowing root was the last root
// following it. A target that is itself a root is never pruned.
func (w *Worker) pruneUnfollowed(ctx context.Context, fid, targetFID castsync.FID) error {
	isRoot, err := w.isRootTarget(ctx, fid)
	if err != nil {
		return err
	}
	if !isRoot {
		return nil
	}

	target, found, err := w.store.GetTarget(ctx, targetFID)
	if err != nil {
		return fmt.Errorf("getting target %d: %s", targetFID, err)
	}
	if !found || target.IsRoot {
		return nil
	}

	// The unfollowed link row may not be deleted yet, so the unfollowing
	// root is excluded from the count.
	followers, err := w.store.CountRootFollowers(ctx, targetFID, fid)
	if err != nil {
		return fmt.Errorf("counting root followers of %d: %s", targetFID, err)
	}
	if followers > 0 {
		return nil
	}

	if err := w.registry.Remove(ctx, targetFID); err != nil && !errors.Is(err, targets.ErrNotFound) {
		return fmt.Errorf("removing unfollowed target %d: %s", targetFID, err)
	}
	w.log.Info().
		Uint64("fid", uint64(targetFID)).
		Uint64("unfollowed_by", uint64(fid)).
		Msg("pruned unfollowed target")
	return nil
}

func (w *Worker) isRootTarget(ctx context.Context, fid castsync.FID) (bool, error) {
	target, found, err := w.store.GetTarget(ctx, fid)
	if err != nil {
		return false, fmt.Errorf("getting target %d: %s", fid, err)
	}
	return found && target.IsRoot, nil
}

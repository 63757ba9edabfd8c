package impl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/decoder"
	"github.com/castsync/go-castsync/pkg/eventprocessor"
	"github.com/castsync/go-castsync/pkg/hub"
	"github.com/castsync/go-castsync/pkg/jobqueue"
	"github.com/castsync/go-castsync/pkg/sharedmemory"
	"github.com/castsync/go-castsync/pkg/sqlstore"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/metric/instrument"
	"go.uber.org/atomic"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// flushBatchSize is the chunk size of the batched-upsert helper during a flush.
const flushBatchSize = 100

// buffers hold decoded rows pending insertion, one slice per table.
type buffers struct {
	casts         []castsync.Cast
	reactions     []castsync.Reaction
	links         []castsync.Link
	verifications []castsync.Verification
	userData      []castsync.UserDataEntry
	onChainEvents []castsync.OnChainEvent
}

func (b *buffers) pending() int {
	return len(b.casts) + len(b.reactions) + len(b.links) +
		len(b.verifications) + len(b.userData) + len(b.onChainEvents)
}

// EventProcessor buffers decoded events and flushes them on size or time
// thresholds. Inserts are conflict-do-nothing and deletes are hash-keyed, so
// replays and out-of-order jobs converge.
type EventProcessor struct {
	log    zerolog.Logger
	store  sqlstore.MessageStore
	sm     *sharedmemory.SharedMemory
	config *eventprocessor.Config

	mu         sync.Mutex
	buf        buffers
	flushTimer *time.Timer
	flushCh    chan struct{}

	lock           sync.Mutex
	daemonCtx      context.Context
	daemonCancel   context.CancelFunc
	daemonCanceled chan struct{}

	// Metrics
	mEventCount   instrument.Int64Counter
	mFlushLatency instrument.Int64Histogram
	mBufferedRows atomic.Int64
}

var _ eventprocessor.EventProcessor = (*EventProcessor)(nil)

// New returns a new EventProcessor.
func New(
	store sqlstore.MessageStore,
	sm *sharedmemory.SharedMemory,
	opts ...eventprocessor.Option,
) (*EventProcessor, error) {
	config := eventprocessor.DefaultConfig()
	for _, op := range opts {
		if err := op(config); err != nil {
			return nil, fmt.Errorf("applying option: %s", err)
		}
	}

	ep := &EventProcessor{
		log: logger.With().
			Str("component", "eventprocessor").
			Logger(),
		store:   store,
		sm:      sm,
		config:  config,
		flushCh: make(chan struct{}, 1),
	}
	if err := ep.initMetrics(); err != nil {
		return nil, fmt.Errorf("initializing metric instruments: %s", err)
	}

	return ep, nil
}

// Start starts the flush daemon.
func (ep *EventProcessor) Start() error {
	ep.lock.Lock()
	defer ep.lock.Unlock()

	if ep.daemonCtx != nil {
		return fmt.Errorf("already started")
	}

	ep.log.Debug().Msg("starting daemon...")
	ctx, cls := context.WithCancel(context.Background())
	ep.daemonCtx = ctx
	ep.daemonCancel = cls
	ep.daemonCanceled = make(chan struct{})
	go ep.daemon()
	ep.log.Info().Msg("started")

	return nil
}

// Stop flushes pending buffers and stops the daemon.
func (ep *EventProcessor) Stop() {
	ep.lock.Lock()
	defer ep.lock.Unlock()
	if ep.daemonCtx == nil {
		return
	}

	ep.log.Debug().Msg("stopping processor gracefully...")
	ep.daemonCancel()
	<-ep.daemonCanceled

	// Cleanup to allow Start() to be called again.
	ep.daemonCtx = nil
	ep.daemonCancel = nil
	ep.daemonCanceled = nil

	ep.log.Debug().Msg("processor stopped")
}

func (ep *EventProcessor) daemon() {
	defer close(ep.daemonCanceled)
	for {
		select {
		case <-ep.daemonCtx.Done():
			// Final flush so a graceful shutdown loses nothing.
			ep.mu.Lock()
			ep.flushLocked(context.Background())
			ep.mu.Unlock()
			ep.log.Info().Msg("processor gracefully closed")
			return
		case <-ep.flushCh:
			ep.mu.Lock()
			ep.flushLocked(ep.daemonCtx)
			ep.mu.Unlock()
		}
	}
}

// Handle is the jobqueue handler of the process-event queue. Malformed or
// unknown events are skipped; only infrastructure failures return an error so
// the queue retries them.
func (ep *EventProcessor) Handle(ctx context.Context, job jobqueue.Job) error {
	var event hub.Event
	if err := json.Unmarshal(job.Payload, &event); err != nil {
		return fmt.Errorf("unmarshaling event: %s", err)
	}

	switch event.Type {
	case hub.EventTypeMergeMessage:
		if event.MergeMessageBody == nil || event.MergeMessageBody.Message == nil {
			return nil
		}
		return ep.processMerge(ctx, *event.MergeMessageBody.Message)
	case hub.EventTypePruneMessage:
		if event.PruneMessageBody == nil || event.PruneMessageBody.Message == nil {
			return nil
		}
		return ep.deleteMessageRow(ctx, *event.PruneMessageBody.Message, "prune")
	case hub.EventTypeRevokeMessage:
		if event.RevokeMessageBody == nil || event.RevokeMessageBody.Message == nil {
			return nil
		}
		return ep.deleteMessageRow(ctx, *event.RevokeMessageBody.Message, "revoke")
	case hub.EventTypeMergeOnChainEvent:
		if event.MergeOnChainEventBody == nil || event.MergeOnChainEventBody.OnChainEvent == nil {
			return nil
		}
		onChainEvent, ok := decoder.OnChainEvent(*event.MergeOnChainEventBody.OnChainEvent)
		if !ok {
			ep.log.Debug().Uint64("event_id", event.ID).Msg("skipping undecodable on-chain event")
			return nil
		}
		ep.recordEvent("on_chain_event")
		ep.append(ctx, func(b *buffers) { b.onChainEvents = append(b.onChainEvents, onChainEvent) })
		return nil
	default:
		ep.log.Debug().Str("type", event.Type).Msg("skipping unknown event type")
		return nil
	}
}

func (ep *EventProcessor) processMerge(ctx context.Context, msg hub.Message) error {
	if msg.Data == nil {
		return nil
	}

	switch msg.Data.Type {
	case hub.MessageTypeCastAdd:
		if cast, ok := decoder.CastAdd(msg); ok {
			ep.recordEvent("cast_add")
			ep.append(ctx, func(b *buffers) { b.casts = append(b.casts, cast) })
		}
	case hub.MessageTypeReactionAdd:
		if reaction, ok := decoder.ReactionAdd(msg); ok {
			ep.recordEvent("reaction_add")
			ep.append(ctx, func(b *buffers) { b.reactions = append(b.reactions, reaction) })
		}
	case hub.MessageTypeLinkAdd:
		if link, ok := decoder.LinkAdd(msg); ok {
			ep.recordEvent("link_add")
			ep.append(ctx, func(b *buffers) { b.links = append(b.links, link) })
		}
	case hub.MessageTypeVerificationAdd:
		if verification, ok := decoder.VerificationAdd(msg); ok {
			ep.recordEvent("verification_add")
			ep.append(ctx, func(b *buffers) { b.verifications = append(b.verifications, verification) })
		}
	case hub.MessageTypeUserDataAdd:
		if entry, ok := decoder.UserDataAdd(msg); ok {
			ep.recordEvent("user_data_add")
			ep.append(ctx, func(b *buffers) { b.userData = append(b.userData, entry) })
		}
	case hub.MessageTypeCastRemove:
		if msg.Data.CastRemoveBody == nil {
			return nil
		}
		// A cast remove carries its own hash; the removed cast is named
		// by target_hash.
		hash, ok := decoder.Hash(msg.Data.CastRemoveBody.TargetHash)
		if !ok {
			return nil
		}
		ep.recordEvent("cast_remove")
		if _, err := ep.store.DeleteCast(ctx, hash); err != nil {
			return fmt.Errorf("deleting cast %s: %s", hash, err)
		}
	case hub.MessageTypeReactionRemove:
		return ep.deleteByOwnHash(ctx, msg, "reaction_remove", ep.store.DeleteReaction)
	case hub.MessageTypeLinkRemove:
		return ep.deleteByOwnHash(ctx, msg, "link_remove", ep.store.DeleteLink)
	case hub.MessageTypeVerificationRemove:
		return ep.deleteByOwnHash(ctx, msg, "verification_remove", ep.store.DeleteVerification)
	default:
		ep.log.Debug().Str("type", msg.Data.Type).Msg("skipping unknown message type")
	}
	return nil
}

func (ep *EventProcessor) deleteByOwnHash(
	ctx context.Context,
	msg hub.Message,
	kind string,
	deleteRow func(context.Context, string) (bool, error),
) error {
	hash, ok := decoder.Hash(msg.Hash)
	if !ok {
		return nil
	}
	ep.recordEvent(kind)
	if _, err := deleteRow(ctx, hash); err != nil {
		return fmt.Errorf("deleting %s row %s: %s", kind, hash, err)
	}
	return nil
}

// deleteMessageRow removes the row of a pruned or revoked message from its
// table, keyed by the inner message's hash.
func (ep *EventProcessor) deleteMessageRow(ctx context.Context, msg hub.Message, cause string) error {
	if msg.Data == nil {
		return nil
	}
	hash, ok := decoder.Hash(msg.Hash)
	if !ok {
		return nil
	}

	var err error
	switch msg.Data.Type {
	case hub.MessageTypeCastAdd:
		_, err = ep.store.DeleteCast(ctx, hash)
	case hub.MessageTypeReactionAdd:
		_, err = ep.store.DeleteReaction(ctx, hash)
	case hub.MessageTypeLinkAdd:
		_, err = ep.store.DeleteLink(ctx, hash)
	case hub.MessageTypeVerificationAdd:
		_, err = ep.store.DeleteVerification(ctx, hash)
	case hub.MessageTypeUserDataAdd:
		_, err = ep.store.DeleteUserData(ctx, hash)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting %sd message %s: %s", cause, hash, err)
	}
	ep.recordEvent(cause)
	return nil
}

// append adds rows under the mutex and flushes when the size threshold is hit;
// otherwise it arms the one-shot flush timer.
func (ep *EventProcessor) append(ctx context.Context, add func(*buffers)) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	add(&ep.buf)
	pending := ep.buf.pending()
	ep.mBufferedRows.Store(int64(pending))

	if pending >= ep.config.BatchSize {
		ep.flushLocked(ctx)
		return
	}
	if ep.flushTimer == nil {
		ep.flushTimer = time.AfterFunc(ep.config.BatchTimeout, func() {
			select {
			case ep.flushCh <- struct{}{}:
			default:
			}
		})
	}
}

// Flush writes out all pending buffers immediately.
func (ep *EventProcessor) Flush(ctx context.Context) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.flushLocked(ctx)
}

// flushLocked writes every non-empty buffer. Buffers clear whether the insert
// worked or not: failures are logged, and a replay of the stream converges on
// the same rows.
func (ep *EventProcessor) flushLocked(ctx context.Context) {
	if ep.flushTimer != nil {
		ep.flushTimer.Stop()
		ep.flushTimer = nil
	}
	if ep.buf.pending() == 0 {
		return
	}
	start := time.Now()

	if len(ep.buf.casts) > 0 {
		if err := ep.store.InsertCasts(ctx, ep.buf.casts, flushBatchSize); err != nil {
			ep.log.Error().Err(err).Int("rows", len(ep.buf.casts)).Msg("flushing casts")
		}
	}
	if len(ep.buf.reactions) > 0 {
		if err := ep.store.InsertReactions(ctx, ep.buf.reactions, flushBatchSize); err != nil {
			ep.log.Error().Err(err).Int("rows", len(ep.buf.reactions)).Msg("flushing reactions")
		}
	}
	if len(ep.buf.links) > 0 {
		if err := ep.store.InsertLinks(ctx, ep.buf.links, flushBatchSize); err != nil {
			ep.log.Error().Err(err).Int("rows", len(ep.buf.links)).Msg("flushing links")
		}
	}
	if len(ep.buf.verifications) > 0 {
		if err := ep.store.InsertVerifications(ctx, ep.buf.verifications, flushBatchSize); err != nil {
			ep.log.Error().Err(err).Int("rows", len(ep.buf.verifications)).Msg("flushing verifications")
		}
	}
	if len(ep.buf.onChainEvents) > 0 {
		if err := ep.store.InsertOnChainEvents(ctx, ep.buf.onChainEvents, flushBatchSize); err != nil {
			ep.log.Error().Err(err).Int("rows", len(ep.buf.onChainEvents)).Msg("flushing on-chain events")
		}
	}
	if len(ep.buf.userData) > 0 {
		if err := ep.store.InsertUserData(ctx, ep.buf.userData, flushBatchSize); err != nil {
			ep.log.Error().Err(err).Int("rows", len(ep.buf.userData)).Msg("flushing user data")
		} else if err := ep.store.RefreshUserView(ctx, userDataFIDs(ep.buf.userData)...); err != nil {
			ep.log.Error().Err(err).Msg("refreshing user views")
		}
	}

	flushed := ep.buf.pending()
	ep.buf = buffers{}
	ep.mBufferedRows.Store(0)
	ep.sm.SetLastFlush(time.Now().UTC())
	ep.recordFlush(time.Since(start))
	ep.log.Debug().Int("rows", flushed).Msg("flushed buffers")
}

func userDataFIDs(entries []castsync.UserDataEntry) []castsync.FID {
	seen := make(map[castsync.FID]struct{}, len(entries))
	fids := make([]castsync.FID, 0, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.FID]; ok {
			continue
		}
		seen[entry.FID] = struct{}{}
		fids = append(fids, entry.FID)
	}
	return fids
}

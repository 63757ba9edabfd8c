// Package backfill has the worker that imports the full history of a target
// account from the hubs.
package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/decoder"
	"github.com/castsync/go-castsync/pkg/hub"
	"github.com/castsync/go-castsync/pkg/jobqueue"
	"github.com/castsync/go-castsync/pkg/sqlstore"
	"github.com/castsync/go-castsync/pkg/targets"
	"github.com/castsync/go-castsync/pkg/telemetry"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"go.opentelemetry.io/otel/metric/instrument"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// defaultBatchSize is the row count per insert statement of a backfill write.
const defaultBatchSize = 500

// Worker imports the full message history of one fid per job.
type Worker struct {
	hub       hub.Client
	store     sqlstore.Store
	registry  targets.Registry
	batchSize int

	log zerolog.Logger

	mJobCount    instrument.Int64Counter
	mJobDuration instrument.Int64Histogram
	mRowsWritten instrument.Int64Counter
}

// Option modifies worker defaults.
type Option func(*Worker) error

// WithBatchSize changes the rows-per-statement of the batched writes.
func WithBatchSize(size int) Option {
	return func(w *Worker) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be positive")
		}
		w.batchSize = size
		return nil
	}
}

// New creates a new backfill worker.
func New(hubClient hub.Client, store sqlstore.Store, registry targets.Registry, opts ...Option) (*Worker, error) {
	w := &Worker{
		hub:       hubClient,
		store:     store,
		registry:  registry,
		batchSize: defaultBatchSize,
		log: logger.With().
			Str("component", "backfill").
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

// Handle is the jobqueue handler of the backfill queue.
func (w *Worker) Handle(ctx context.Context, job jobqueue.Job) error {
	var payload jobqueue.BackfillPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshaling backfill payload: %s", err)
	}
	return w.Backfill(ctx, payload.FID, payload.IsRoot)
}

// Backfill imports the history of fid. Every write is idempotent, so a retry
// after a partial failure reprocesses safely; last_synced_at is only set once
// everything else succeeded.
func (w *Worker) Backfill(ctx context.Context, fid castsync.FID, isRoot bool) error {
	start := time.Now()
	w.log.Info().Uint64("fid", uint64(fid)).Bool("is_root", isRoot).Msg("backfill started")

	var (
		casts         []castsync.Cast
		reactions     []castsync.Reaction
		links         []castsync.Link
		verifications []castsync.Verification
		userData      []castsync.UserDataEntry
		onChainEvents []castsync.OnChainEvent
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		msgs, err := w.hub.GetAllCastsByFID(gctx, uint64(fid))
		if err != nil {
			return fmt.Errorf("fetching casts: %s", err)
		}
		for _, msg := range msgs {
			if cast, ok := decoder.CastAdd(msg); ok {
				casts = append(casts, cast)
			}
		}
		return nil
	})
	g.Go(func() error {
		msgs, err := w.hub.GetAllReactionsByFID(gctx, uint64(fid))
		if err != nil {
			return fmt.Errorf("fetching reactions: %s", err)
		}
		for _, msg := range msgs {
			if reaction, ok := decoder.ReactionAdd(msg); ok {
				reactions = append(reactions, reaction)
			}
		}
		return nil
	})
	g.Go(func() error {
		msgs, err := w.hub.GetAllLinksByFID(gctx, uint64(fid))
		if err != nil {
			return fmt.Errorf("fetching links: %s", err)
		}
		for _, msg := range msgs {
			if link, ok := decoder.LinkAdd(msg); ok {
				links = append(links, link)
			}
		}
		return nil
	})
	g.Go(func() error {
		msgs, err := w.hub.GetAllVerificationsByFID(gctx, uint64(fid))
		if err != nil {
			return fmt.Errorf("fetching verifications: %s", err)
		}
		for _, msg := range msgs {
			if verification, ok := decoder.VerificationAdd(msg); ok {
				verifications = append(verifications, verification)
			}
		}
		return nil
	})
	g.Go(func() error {
		msgs, err := w.hub.GetAllUserDataByFID(gctx, uint64(fid))
		if err != nil {
			return fmt.Errorf("fetching user data: %s", err)
		}
		for _, msg := range msgs {
			if entry, ok := decoder.UserDataAdd(msg); ok {
				userData = append(userData, entry)
			}
		}
		return nil
	})
	g.Go(func() error {
		events, err := w.hub.GetAllOnChainSignersByFID(gctx, uint64(fid))
		if err != nil {
			return fmt.Errorf("fetching on-chain signer events: %s", err)
		}
		for _, event := range events {
			if decoded, ok := decoder.OnChainEvent(event); ok {
				onChainEvents = append(onChainEvents, decoded)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		w.recordJob(time.Since(start), false)
		return err
	}

	if err := w.store.InsertCasts(ctx, casts, w.batchSize); err != nil {
		w.recordJob(time.Since(start), false)
		return fmt.Errorf("writing casts: %s", err)
	}
	if err := w.store.InsertReactions(ctx, reactions, w.batchSize); err != nil {
		w.recordJob(time.Since(start), false)
		return fmt.Errorf("writing reactions: %s", err)
	}
	if err := w.store.InsertLinks(ctx, links, w.batchSize); err != nil {
		w.recordJob(time.Since(start), false)
		return fmt.Errorf("writing links: %s", err)
	}
	if err := w.store.InsertVerifications(ctx, verifications, w.batchSize); err != nil {
		w.recordJob(time.Since(start), false)
		return fmt.Errorf("writing verifications: %s", err)
	}
	if err := w.store.InsertUserData(ctx, userData, w.batchSize); err != nil {
		w.recordJob(time.Since(start), false)
		return fmt.Errorf("writing user data: %s", err)
	}
	if err := w.store.InsertOnChainEvents(ctx, onChainEvents, w.batchSize); err != nil {
		w.recordJob(time.Since(start), false)
		return fmt.Errorf("writing on-chain events: %s", err)
	}
	w.recordRows(len(casts) + len(reactions) + len(links) + len(verifications) + len(userData) + len(onChainEvents))

	discovered := 0
	if isRoot {
		var err error
		discovered, err = w.expandGraph(ctx, fid, links)
		if err != nil {
			w.recordJob(time.Since(start), false)
			return fmt.Errorf("expanding follow graph: %s", err)
		}
	}

	if err := w.store.RefreshUserView(ctx, fid); err != nil {
		w.recordJob(time.Since(start), false)
		return fmt.Errorf("refreshing user view: %s", err)
	}

	if err := w.store.MarkSynced(ctx, fid, time.Now().UTC()); err != nil {
		w.recordJob(time.Since(start), false)
		return fmt.Errorf("marking target synced: %s", err)
	}

	took := time.Since(start)
	w.recordJob(took, true)
	if err := telemetry.Collect(ctx, telemetry.BackfillSummary{
		FID:               fid,
		IsRoot:            isRoot,
		Casts:             len(casts),
		Reactions:         len(reactions),
		Links:             len(links),
		Verifications:     len(verifications),
		UserData:          len(userData),
		OnChainEvents:     len(onChainEvents),
		DiscoveredTargets: discovered,
		TookMilli:         took.Milliseconds(),
	}); err != nil {
		w.log.Error().Err(err).Msg("collecting backfill summary metric")
	}
	w.log.Info().
		Uint64("fid", uint64(fid)).
		Int("casts", len(casts)).
		Int("links", len(links)).
		Int("discovered_targets", discovered).
		Dur("took", took).
		Msg("backfill finished")

	return nil
}

// expandGraph ensures a non-root target exists for every account fid follows,
// enqueueing their backfills. Duplicate edges within the job are skipped.
func (w *Worker) expandGraph(ctx context.Context, fid castsync.FID, links []castsync.Link) (int, error) {
	seen := map[castsync.FID]struct{}{}
	discovered := 0
	for _, link := range links {
		if link.Type != castsync.LinkTypeFollow || link.FID != fid {
			continue
		}
		if link.TargetFID == fid {
			continue
		}
		if _, ok := seen[link.TargetFID]; ok {
			continue
		}
		seen[link.TargetFID] = struct{}{}

		inserted, err := w.registry.EnsureTarget(ctx, link.TargetFID, false)
		if err != nil {
			return discovered, fmt.Errorf("ensuring target %d: %s", link.TargetFID, err)
		}
		if inserted {
			discovered++
		}
	}
	return discovered, nil
}

// Package impl implements the target registry on the SQL store, the Redis
// set caches, and the job queue.
package impl

import (
	"context"
	"errors"
	"fmt"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/jobqueue"
	"github.com/castsync/go-castsync/pkg/sqlstore"
	"github.com/castsync/go-castsync/pkg/targets"
	"github.com/castsync/go-castsync/pkg/targetset"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Strategy is the startup seeding configuration of the registry.
type Strategy struct {
	RootTargets   []castsync.FID
	TargetClients []castsync.FID
}

// Registry is the targets.Registry implementation.
type Registry struct {
	store       sqlstore.Store
	targetCache targetset.Set
	clientCache targetset.Set
	enqueuer    jobqueue.Enqueuer
	queueAdmin  jobqueue.Admin
	strategy    Strategy

	log zerolog.Logger
}

var _ targets.Registry = (*Registry)(nil)

// NewRegistry creates a new registry.
func NewRegistry(
	store sqlstore.Store,
	targetCache targetset.Set,
	clientCache targetset.Set,
	enqueuer jobqueue.Enqueuer,
	queueAdmin jobqueue.Admin,
	strategy Strategy,
) *Registry {
	return &Registry{
		store:       store,
		targetCache: targetCache,
		clientCache: clientCache,
		enqueuer:    enqueuer,
		queueAdmin:  queueAdmin,
		strategy:    strategy,
		log: logger.With().
			Str("component", "targetsregistry").
			Logger(),
	}
}

// Add implements targets.Registry.
func (r *Registry) Add(ctx context.Context, fid castsync.FID, isRoot bool) error {
	inserted, err := r.EnsureTarget(ctx, fid, isRoot)
	if err != nil {
		return err
	}
	if !inserted {
		return targets.ErrAlreadyExists
	}
	return nil
}

// EnsureTarget implements targets.Registry.
func (r *Registry) EnsureTarget(ctx context.Context, fid castsync.FID, isRoot bool) (bool, error) {
	inserted, err := r.store.EnsureTarget(ctx, fid, isRoot)
	if err != nil {
		return false, fmt.Errorf("inserting target row: %s", err)
	}
	if !inserted {
		return false, nil
	}

	if err := r.targetCache.Add(ctx, fid); err != nil {
		return true, fmt.Errorf("adding fid to cache: %s", err)
	}
	if err := r.enqueueBackfill(ctx, fid, isRoot); err != nil &&
		!errors.Is(err, jobqueue.ErrAlreadyQueued) {
		return true, fmt.Errorf("enqueuing backfill: %s", err)
	}
	r.log.Info().Uint64("fid", uint64(fid)).Bool("is_root", isRoot).Msg("target added")

	return true, nil
}

// Remove implements targets.Registry.
func (r *Registry) Remove(ctx context.Context, fid castsync.FID) error {
	deleted, err := r.store.DeleteTarget(ctx, fid)
	if err != nil {
		return fmt.Errorf("deleting target row: %s", err)
	}
	if !deleted {
		return targets.ErrNotFound
	}
	if err := r.targetCache.Remove(ctx, fid); err != nil {
		return fmt.Errorf("removing fid from cache: %s", err)
	}
	r.log.Info().Uint64("fid", uint64(fid)).Msg("target removed")

	return nil
}

// Update implements targets.Registry.
func (r *Registry) Update(ctx context.Context, fid castsync.FID, isRoot bool) error {
	updated, err := r.store.SetRootTarget(ctx, fid, isRoot)
	if err != nil {
		return fmt.Errorf("updating target row: %s", err)
	}
	if !updated {
		return targets.ErrNotFound
	}
	return nil
}

// PromoteToRoot implements targets.Registry.
func (r *Registry) PromoteToRoot(ctx context.Context, fid castsync.FID) error {
	target, found, err := r.store.GetTarget(ctx, fid)
	if err != nil {
		return fmt.Errorf("getting target row: %s", err)
	}

	if !found {
		if _, err := r.EnsureTarget(ctx, fid, true); err != nil {
			return fmt.Errorf("inserting root target: %s", err)
		}
		return nil
	}
	if target.IsRoot {
		return nil
	}

	if _, err := r.store.SetRootTarget(ctx, fid, true); err != nil {
		return fmt.Errorf("promoting target: %s", err)
	}
	// A root target needs its follow graph expanded, which the earlier
	// non-root backfill skipped.
	if err := r.enqueueBackfill(ctx, fid, true); err != nil &&
		!errors.Is(err, jobqueue.ErrAlreadyQueued) {
		return fmt.Errorf("enqueuing root backfill: %s", err)
	}
	r.log.Info().Uint64("fid", uint64(fid)).Msg("target promoted to root")

	return nil
}

// EnqueueBackfill implements targets.Registry.
func (r *Registry) EnqueueBackfill(ctx context.Context, fid castsync.FID) error {
	target, found, err := r.store.GetTarget(ctx, fid)
	if err != nil {
		return fmt.Errorf("getting target row: %s", err)
	}
	if !found {
		return targets.ErrNotFound
	}
	return r.enqueueBackfill(ctx, fid, target.IsRoot)
}

func (r *Registry) enqueueBackfill(ctx context.Context, fid castsync.FID, isRoot bool) error {
	payload, err := json.Marshal(jobqueue.BackfillPayload{FID: fid, IsRoot: isRoot})
	if err != nil {
		return fmt.Errorf("marshaling backfill payload: %s", err)
	}
	return r.enqueuer.Enqueue(ctx, jobqueue.QueueBackfill, jobqueue.BackfillKey(fid), payload)
}

// IsTarget implements targets.Registry.
func (r *Registry) IsTarget(ctx context.Context, fid castsync.FID) (bool, error) {
	return r.targetCache.Contains(ctx, fid)
}

// IsClientTarget implements targets.Registry.
func (r *Registry) IsClientTarget(ctx context.Context, fid castsync.FID) (bool, error) {
	return r.clientCache.Contains(ctx, fid)
}

// AddClientTarget implements targets.Registry.
func (r *Registry) AddClientTarget(ctx context.Context, fid castsync.FID) error {
	inserted, err := r.store.EnsureClientTarget(ctx, fid)
	if err != nil {
		return fmt.Errorf("inserting client target row: %s", err)
	}
	if !inserted {
		return targets.ErrAlreadyExists
	}
	if err := r.clientCache.Add(ctx, fid); err != nil {
		return fmt.Errorf("adding fid to client cache: %s", err)
	}
	return nil
}

// RemoveClientTarget implements targets.Registry.
func (r *Registry) RemoveClientTarget(ctx context.Context, fid castsync.FID) error {
	deleted, err := r.store.DeleteClientTarget(ctx, fid)
	if err != nil {
		return fmt.Errorf("deleting client target row: %s", err)
	}
	if !deleted {
		return targets.ErrNotFound
	}
	if err := r.clientCache.Remove(ctx, fid); err != nil {
		return fmt.Errorf("removing fid from client cache: %s", err)
	}
	return nil
}

// ClientTargets implements targets.Registry.
func (r *Registry) ClientTargets(ctx context.Context) ([]castsync.ClientTarget, error) {
	return r.store.ClientTargets(ctx)
}

// List implements targets.Registry.
func (r *Registry) List(
	ctx context.Context,
	params sqlstore.ListTargetsParams,
) ([]targets.TargetInfo, sqlstore.TargetCounts, error) {
	rows, counts, err := r.store.ListTargets(ctx, params)
	if err != nil {
		return nil, sqlstore.TargetCounts{}, fmt.Errorf("listing targets: %s", err)
	}

	var unsynced []castsync.FID
	for _, row := range rows {
		if row.LastSyncedAt == nil {
			unsynced = append(unsynced, row.FID)
		}
	}
	statuses := map[castsync.FID]jobqueue.JobStatus{}
	if len(unsynced) > 0 {
		statuses, err = r.queueAdmin.StatusForFIDs(ctx, unsynced)
		if err != nil {
			return nil, sqlstore.TargetCounts{}, fmt.Errorf("getting backfill job statuses: %s", err)
		}
	}

	infos := make([]targets.TargetInfo, len(rows))
	for i, row := range rows {
		status := castsync.SyncStatusSynced
		if row.LastSyncedAt == nil {
			status = castsync.SyncStatusUnsynced
			if s := statuses[row.FID]; s == jobqueue.JobStatusPending || s == jobqueue.JobStatusActive {
				status = castsync.SyncStatusWaiting
				counts.Waiting++
			}
		}
		infos[i] = targets.TargetInfo{Target: row, Status: status}
	}

	return infos, counts, nil
}

// Bootstrap implements targets.Registry.
func (r *Registry) Bootstrap(ctx context.Context) error {
	fids, err := r.store.TargetFIDs(ctx)
	if err != nil {
		return fmt.Errorf("loading target fids: %s", err)
	}
	if err := r.targetCache.Replace(ctx, fids); err != nil {
		return fmt.Errorf("reloading target cache: %s", err)
	}

	clientTargets, err := r.store.ClientTargets(ctx)
	if err != nil {
		return fmt.Errorf("loading client targets: %s", err)
	}
	clientFids := make([]castsync.FID, len(clientTargets))
	for i, ct := range clientTargets {
		clientFids[i] = ct.FID
	}
	if err := r.clientCache.Replace(ctx, clientFids); err != nil {
		return fmt.Errorf("reloading client target cache: %s", err)
	}

	for _, fid := range r.strategy.RootTargets {
		if _, err := r.EnsureTarget(ctx, fid, true); err != nil {
			return fmt.Errorf("seeding root target %d: %s", fid, err)
		}
	}
	for _, fid := range r.strategy.TargetClients {
		if err := r.AddClientTarget(ctx, fid); err != nil &&
			!errors.Is(err, targets.ErrAlreadyExists) {
			return fmt.Errorf("seeding client target %d: %s", fid, err)
		}
	}
	r.log.Info().
		Int("targets", len(fids)).
		Int("client_targets", len(clientTargets)).
		Msg("registry bootstrapped")

	return nil
}

// InvariantCheck implements targets.Registry.
func (r *Registry) InvariantCheck(ctx context.Context) (targets.InvariantReport, error) {
	_, counts, err := r.store.ListTargets(ctx, sqlstore.ListTargetsParams{Limit: 1})
	if err != nil {
		return targets.InvariantReport{}, fmt.Errorf("counting target rows: %s", err)
	}
	targetCacheSize, err := r.targetCache.Size(ctx)
	if err != nil {
		return targets.InvariantReport{}, fmt.Errorf("sizing target cache: %s", err)
	}
	clientTargets, err := r.store.ClientTargets(ctx)
	if err != nil {
		return targets.InvariantReport{}, fmt.Errorf("counting client target rows: %s", err)
	}
	clientCacheSize, err := r.clientCache.Size(ctx)
	if err != nil {
		return targets.InvariantReport{}, fmt.Errorf("sizing client target cache: %s", err)
	}

	report := targets.InvariantReport{
		TargetRows:            counts.Total,
		TargetCacheSize:       targetCacheSize,
		ClientTargetRows:      int64(len(clientTargets)),
		ClientTargetCacheSize: clientCacheSize,
	}
	report.Consistent = report.TargetRows == report.TargetCacheSize &&
		report.ClientTargetRows == report.ClientTargetCacheSize

	return report, nil
}

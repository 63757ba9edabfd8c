// Package targets defines the registry that coordinates the target table,
// the shared set caches, and the backfill queue.
package targets

import (
	"context"
	"errors"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/sqlstore"
)

// ErrAlreadyExists indicates the fid is already registered.
var ErrAlreadyExists = errors.New("target already exists")

// ErrNotFound indicates the fid is not registered.
var ErrNotFound = errors.New("target not found")

// TargetInfo is a target row annotated with its backfill status.
type TargetInfo struct {
	castsync.Target
	Status castsync.SyncStatus `json:"status"`
}

// InvariantReport compares the authoritative SQL rows against the shared set
// caches. The caches are rebuildable projections, so a mismatch means a
// bootstrap is due, not data loss.
type InvariantReport struct {
	TargetRows            int64 `json:"target_rows"`
	TargetCacheSize       int64 `json:"target_cache_size"`
	ClientTargetRows      int64 `json:"client_target_rows"`
	ClientTargetCacheSize int64 `json:"client_target_cache_size"`
	Consistent            bool  `json:"consistent"`
}

// Registry manages the tracked account set.
type Registry interface {
	// Add registers fid, feeds the cache, and enqueues a backfill.
	// Returns ErrAlreadyExists if the row is present.
	Add(ctx context.Context, fid castsync.FID, isRoot bool) error

	// Remove unregisters fid and evicts it from the cache. Historical
	// messages are kept; cleanup is a separate operator job.
	Remove(ctx context.Context, fid castsync.FID) error

	// Update sets the root flag. Membership is unchanged, so the cache is
	// not touched.
	Update(ctx context.Context, fid castsync.FID, isRoot bool) error

	// EnsureTarget registers fid if absent, reporting whether a row was
	// inserted. Cache and enqueue side effects happen only on insert.
	EnsureTarget(ctx context.Context, fid castsync.FID, isRoot bool) (bool, error)

	// PromoteToRoot makes fid a root target, inserting it if absent, and
	// enqueues a root backfill.
	PromoteToRoot(ctx context.Context, fid castsync.FID) error

	// EnqueueBackfill re-enqueues the backfill job of an already
	// registered fid. Returns jobqueue.ErrAlreadyQueued if one is in
	// flight.
	EnqueueBackfill(ctx context.Context, fid castsync.FID) error

	IsTarget(ctx context.Context, fid castsync.FID) (bool, error)
	IsClientTarget(ctx context.Context, fid castsync.FID) (bool, error)

	AddClientTarget(ctx context.Context, fid castsync.FID) error
	RemoveClientTarget(ctx context.Context, fid castsync.FID) error
	ClientTargets(ctx context.Context) ([]castsync.ClientTarget, error)

	// List returns a page of targets annotated with their backfill status
	// plus the aggregate counters of the whole table.
	List(ctx context.Context, params sqlstore.ListTargetsParams) ([]TargetInfo, sqlstore.TargetCounts, error)

	// Bootstrap reloads both set caches from SQL and seeds the configured
	// root target and client lists. Must complete before workers dequeue.
	Bootstrap(ctx context.Context) error

	// InvariantCheck compares SQL row counts against cache sizes.
	InvariantCheck(ctx context.Context) (InvariantReport, error)
}

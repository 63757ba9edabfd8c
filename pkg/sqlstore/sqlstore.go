// Package sqlstore defines the relational store surface the workers write
// through. Message inserts are batched and conflict-do-nothing, so retries
// and overlapping backfill/realtime writes converge.
package sqlstore

import (
	"context"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
)

// Sortable columns of ListTargets.
const (
	SortByFID          = "fid"
	SortByAddedAt      = "added_at"
	SortByLastSyncedAt = "last_synced_at"
)

// ListTargetsParams are the filters of a target listing.
type ListTargetsParams struct {
	Limit  int
	Offset int

	Search     string
	IsRoot     *bool
	SyncStatus *castsync.SyncStatus
	DateFrom   *time.Time
	DateTo     *time.Time

	SortBy    string
	SortOrder string
}

// TargetCounts are the aggregate counters of the whole target table.
// Waiting is filled by the registry from the queue layer; the store reports
// it as zero.
type TargetCounts struct {
	Total    int64 `json:"total"`
	Synced   int64 `json:"synced"`
	Unsynced int64 `json:"unsynced"`
	Waiting  int64 `json:"waiting"`
	Root     int64 `json:"root"`
}

// TargetStore persists the set of tracked accounts.
type TargetStore interface {
	// EnsureTarget inserts the target row if absent, reporting whether a
	// row was actually inserted.
	EnsureTarget(ctx context.Context, fid castsync.FID, isRoot bool) (bool, error)
	GetTarget(ctx context.Context, fid castsync.FID) (castsync.Target, bool, error)
	DeleteTarget(ctx context.Context, fid castsync.FID) (bool, error)
	SetRootTarget(ctx context.Context, fid castsync.FID, isRoot bool) (bool, error)
	MarkSynced(ctx context.Context, fid castsync.FID, syncedAt time.Time) error
	TargetFIDs(ctx context.Context) ([]castsync.FID, error)
	ListTargets(ctx context.Context, params ListTargetsParams) ([]castsync.Target, TargetCounts, error)

	EnsureClientTarget(ctx context.Context, fid castsync.FID) (bool, error)
	DeleteClientTarget(ctx context.Context, fid castsync.FID) (bool, error)
	ClientTargets(ctx context.Context) ([]castsync.ClientTarget, error)

	// CountRootFollowers counts root targets other than excluding that
	// still follow target.
	CountRootFollowers(ctx context.Context, target, excluding castsync.FID) (int64, error)
}

// MessageStore persists the materialized message records. All Insert methods
// chunk their input into batches of batchSize rows and insert with
// conflict-do-nothing.
type MessageStore interface {
	InsertCasts(ctx context.Context, casts []castsync.Cast, batchSize int) error
	InsertReactions(ctx context.Context, reactions []castsync.Reaction, batchSize int) error
	InsertLinks(ctx context.Context, links []castsync.Link, batchSize int) error
	InsertVerifications(ctx context.Context, verifications []castsync.Verification, batchSize int) error
	InsertUserData(ctx context.Context, entries []castsync.UserDataEntry, batchSize int) error
	InsertOnChainEvents(ctx context.Context, events []castsync.OnChainEvent, batchSize int) error

	// Delete methods report whether a row was actually removed.
	DeleteCast(ctx context.Context, hash string) (bool, error)
	DeleteReaction(ctx context.Context, hash string) (bool, error)
	DeleteLink(ctx context.Context, hash string) (bool, error)
	DeleteVerification(ctx context.Context, hash string) (bool, error)
	DeleteUserData(ctx context.Context, hash string) (bool, error)

	GetCast(ctx context.Context, hash string) (castsync.Cast, bool, error)

	RefreshUserView(ctx context.Context, fids ...castsync.FID) error
	GetUserView(ctx context.Context, fid castsync.FID) (castsync.UserView, bool, error)
}

// StateStore persists the realtime cursor.
type StateStore interface {
	GetLastEventID(ctx context.Context) (uint64, bool, error)
	SetLastEventID(ctx context.Context, eventID uint64) error
}

// Store is the full relational store surface.
type Store interface {
	TargetStore
	MessageStore
	StateStore
}

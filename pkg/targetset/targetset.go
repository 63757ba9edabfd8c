// Package targetset holds the shared set cache that makes target membership
// checks O(1) on the hot path. Authoritative state lives in SQL; the cache is
// a rebuildable projection reloaded on every process start.
package targetset

import (
	"context"

	"github.com/castsync/go-castsync/internal/castsync"
)

// Set is a shared set of fids.
type Set interface {
	Add(ctx context.Context, fid castsync.FID) error
	Remove(ctx context.Context, fid castsync.FID) error
	Contains(ctx context.Context, fid castsync.FID) (bool, error)
	Size(ctx context.Context) (int64, error)
	Members(ctx context.Context) ([]castsync.FID, error)

	// Replace atomically swaps the whole set content. Used by the
	// bootstrap reload from SQL.
	Replace(ctx context.Context, fids []castsync.FID) error
}

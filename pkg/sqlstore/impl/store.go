// Package impl implements the relational store on SQLite.
package impl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/database"
	"github.com/castsync/go-castsync/pkg/database/db"
	"github.com/castsync/go-castsync/pkg/sqlstore"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
)

// defaultBatchSize is used when a caller passes a non-positive batch size.
const defaultBatchSize = 100

// Store is a sqlstore.Store backed by a SQLite database.
type Store struct {
	db  *database.SQLiteDB
	log zerolog.Logger
}

var _ sqlstore.Store = (*Store)(nil)

// NewStore creates a new store.
func NewStore(sqliteDB *database.SQLiteDB) *Store {
	return &Store{
		db: sqliteDB,
		log: logger.With().
			Str("component", "sqlstore").
			Logger(),
	}
}

// EnsureTarget inserts the target row if absent, reporting whether a row was
// actually inserted.
func (s *Store) EnsureTarget(ctx context.Context, fid castsync.FID, isRoot bool) (bool, error) {
	res, err := s.db.Queries.InsertTarget(ctx, db.InsertTargetParams{
		Fid:     int64(fid),
		IsRoot:  isRoot,
		AddedAt: time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("inserting target: %s", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %s", err)
	}
	return inserted > 0, nil
}

// GetTarget returns the target row of fid, if present.
func (s *Store) GetTarget(ctx context.Context, fid castsync.FID) (castsync.Target, bool, error) {
	row, err := s.db.Queries.GetTarget(ctx, int64(fid))
	if errors.Is(err, sql.ErrNoRows) {
		return castsync.Target{}, false, nil
	}
	if err != nil {
		return castsync.Target{}, false, fmt.Errorf("getting target: %s", err)
	}
	return targetFromRow(row), true, nil
}

// DeleteTarget deletes the target row of fid, reporting whether it existed.
func (s *Store) DeleteTarget(ctx context.Context, fid castsync.FID) (bool, error) {
	res, err := s.db.Queries.DeleteTarget(ctx, int64(fid))
	if err != nil {
		return false, fmt.Errorf("deleting target: %s", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %s", err)
	}
	return deleted > 0, nil
}

// SetRootTarget updates the root flag of fid, reporting whether the row exists.
func (s *Store) SetRootTarget(ctx context.Context, fid castsync.FID, isRoot bool) (bool, error) {
	res, err := s.db.Queries.SetRootTarget(ctx, db.SetRootTargetParams{Fid: int64(fid), IsRoot: isRoot})
	if err != nil {
		return false, fmt.Errorf("updating target root flag: %s", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %s", err)
	}
	return updated > 0, nil
}

// MarkSynced sets last_synced_at on the target row of fid.
func (s *Store) MarkSynced(ctx context.Context, fid castsync.FID, syncedAt time.Time) error {
	if err := s.db.Queries.MarkTargetSynced(ctx, db.MarkTargetSyncedParams{
		Fid:      int64(fid),
		SyncedAt: syncedAt.UTC(),
	}); err != nil {
		return fmt.Errorf("marking target synced: %s", err)
	}
	return nil
}

// TargetFIDs returns every tracked fid, for the bootstrap cache reload.
func (s *Store) TargetFIDs(ctx context.Context) ([]castsync.FID, error) {
	rows, err := s.db.Queries.ListTargetFids(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing target fids: %s", err)
	}
	fids := make([]castsync.FID, len(rows))
	for i, fid := range rows {
		fids[i] = castsync.FID(fid)
	}
	return fids, nil
}

// ListTargets returns a filtered page of targets plus the aggregate counters
// of the whole table.
func (s *Store) ListTargets(
	ctx context.Context,
	params sqlstore.ListTargetsParams,
) ([]castsync.Target, sqlstore.TargetCounts, error) {
	where, args := buildTargetFilters(params)

	sortBy := "added_at"
	switch params.SortBy {
	case sqlstore.SortByFID, sqlstore.SortByAddedAt, sqlstore.SortByLastSyncedAt:
		sortBy = params.SortBy
	}
	sortOrder := "DESC"
	if strings.EqualFold(params.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(
		"SELECT fid, is_root, added_at, last_synced_at FROM targets %s ORDER BY %s %s LIMIT ? OFFSET ?",
		where, sortBy, sortOrder)
	rows, err := s.db.DB.QueryContext(ctx, query, append(args, limit, params.Offset)...)
	if err != nil {
		return nil, sqlstore.TargetCounts{}, fmt.Errorf("listing targets: %s", err)
	}
	defer func() { _ = rows.Close() }()

	var targets []castsync.Target
	for rows.Next() {
		var row db.Target
		if err := rows.Scan(&row.Fid, &row.IsRoot, &row.AddedAt, &row.LastSyncedAt); err != nil {
			return nil, sqlstore.TargetCounts{}, fmt.Errorf("scanning target row: %s", err)
		}
		targets = append(targets, targetFromRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, sqlstore.TargetCounts{}, fmt.Errorf("iterating target rows: %s", err)
	}

	var counts sqlstore.TargetCounts
	countsQuery := `
		SELECT count(1),
		       coalesce(sum(CASE WHEN last_synced_at IS NOT NULL THEN 1 ELSE 0 END), 0),
		       coalesce(sum(is_root), 0)
		FROM targets`
	if err := s.db.DB.QueryRowContext(ctx, countsQuery).Scan(
		&counts.Total, &counts.Synced, &counts.Root); err != nil {
		return nil, sqlstore.TargetCounts{}, fmt.Errorf("counting targets: %s", err)
	}
	counts.Unsynced = counts.Total - counts.Synced

	return targets, counts, nil
}

func buildTargetFilters(params sqlstore.ListTargetsParams) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if params.Search != "" {
		conds = append(conds, "CAST(fid AS TEXT) LIKE ?")
		args = append(args, "%"+params.Search+"%")
	}
	if params.IsRoot != nil {
		conds = append(conds, "is_root = ?")
		args = append(args, *params.IsRoot)
	}
	if params.SyncStatus != nil {
		if *params.SyncStatus == castsync.SyncStatusSynced {
			conds = append(conds, "last_synced_at IS NOT NULL")
		} else {
			conds = append(conds, "last_synced_at IS NULL")
		}
	}
	if params.DateFrom != nil {
		conds = append(conds, "added_at >= ?")
		args = append(args, params.DateFrom.UTC())
	}
	if params.DateTo != nil {
		conds = append(conds, "added_at <= ?")
		args = append(args, params.DateTo.UTC())
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// EnsureClientTarget inserts the client target row if absent.
func (s *Store) EnsureClientTarget(ctx context.Context, fid castsync.FID) (bool, error) {
	res, err := s.db.Queries.InsertClientTarget(ctx, db.InsertClientTargetParams{
		Fid:     int64(fid),
		AddedAt: time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("inserting client target: %s", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %s", err)
	}
	return inserted > 0, nil
}

// DeleteClientTarget deletes the client target row of fid.
func (s *Store) DeleteClientTarget(ctx context.Context, fid castsync.FID) (bool, error) {
	res, err := s.db.Queries.DeleteClientTarget(ctx, int64(fid))
	if err != nil {
		return false, fmt.Errorf("deleting client target: %s", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %s", err)
	}
	return deleted > 0, nil
}

// ClientTargets returns every client target.
func (s *Store) ClientTargets(ctx context.Context) ([]castsync.ClientTarget, error) {
	rows, err := s.db.Queries.ListClientTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing client targets: %s", err)
	}
	clientTargets := make([]castsync.ClientTarget, len(rows))
	for i, row := range rows {
		clientTargets[i] = castsync.ClientTarget{FID: castsync.FID(row.Fid), AddedAt: row.AddedAt}
	}
	return clientTargets, nil
}

// CountRootFollowers counts root targets other than excluding that still
// follow target.
func (s *Store) CountRootFollowers(ctx context.Context, target, excluding castsync.FID) (int64, error) {
	count, err := s.db.Queries.CountRootFollowers(ctx, db.CountRootFollowersParams{
		TargetFid:    int64(target),
		ExcludingFid: int64(excluding),
	})
	if err != nil {
		return 0, fmt.Errorf("counting root followers: %s", err)
	}
	return count, nil
}

// GetLastEventID returns the persisted realtime cursor, if any.
func (s *Store) GetLastEventID(ctx context.Context) (uint64, bool, error) {
	row, err := s.db.Queries.GetSyncState(ctx, castsync.SyncStateLastEventID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("getting sync state: %s", err)
	}
	return uint64(row.LastEventID), true, nil
}

// SetLastEventID upserts the realtime cursor.
func (s *Store) SetLastEventID(ctx context.Context, eventID uint64) error {
	if err := s.db.Queries.UpsertSyncState(ctx, db.UpsertSyncStateParams{
		Name:        castsync.SyncStateLastEventID,
		LastEventID: int64(eventID),
		UpdatedAt:   time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("upserting sync state: %s", err)
	}
	return nil
}

// RefreshUserView recomputes the user view rows of the given fids.
func (s *Store) RefreshUserView(ctx context.Context, fids ...castsync.FID) error {
	for _, fid := range fids {
		if err := s.db.Queries.RefreshUserView(ctx, int64(fid)); err != nil {
			return fmt.Errorf("refreshing user view of fid %d: %s", fid, err)
		}
	}
	return nil
}

// GetUserView returns the user view row of fid, if present.
func (s *Store) GetUserView(ctx context.Context, fid castsync.FID) (castsync.UserView, bool, error) {
	row, err := s.db.Queries.GetUserView(ctx, int64(fid))
	if errors.Is(err, sql.ErrNoRows) {
		return castsync.UserView{}, false, nil
	}
	if err != nil {
		return castsync.UserView{}, false, fmt.Errorf("getting user view: %s", err)
	}

	return castsync.UserView{
		FID:             castsync.FID(row.Fid),
		Pfp:             nullableString(row.Pfp),
		Display:         nullableString(row.Display),
		Bio:             nullableString(row.Bio),
		Username:        nullableString(row.Username),
		URL:             nullableString(row.Url),
		Location:        nullableString(row.Location),
		Twitter:         nullableString(row.Twitter),
		Github:          nullableString(row.Github),
		Banner:          nullableString(row.Banner),
		EthereumAddress: nullableString(row.EthereumAddress),
		SolanaAddress:   nullableString(row.SolanaAddress),
	}, true, nil
}

func targetFromRow(row db.Target) castsync.Target {
	target := castsync.Target{
		FID:     castsync.FID(row.Fid),
		IsRoot:  row.IsRoot,
		AddedAt: row.AddedAt,
	}
	if row.LastSyncedAt.Valid {
		syncedAt := row.LastSyncedAt.Time
		target.LastSyncedAt = &syncedAt
	}
	return target
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

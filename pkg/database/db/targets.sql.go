package db

import (
	"context"
	"database/sql"
)

const insertTarget = `
INSERT INTO targets ("fid", "is_root", "added_at") VALUES (?1, ?2, ?3)
ON CONFLICT ("fid") DO NOTHING
`

type InsertTargetParams struct {
	Fid     int64
	IsRoot  bool
	AddedAt interface{}
}

// InsertTarget inserts a target row if absent. The result reports whether a
// row was actually inserted.
func (q *Queries) InsertTarget(ctx context.Context, arg InsertTargetParams) (sql.Result, error) {
	return q.db.ExecContext(ctx, insertTarget, arg.Fid, arg.IsRoot, arg.AddedAt)
}

const getTarget = `
SELECT fid, is_root, added_at, last_synced_at FROM targets WHERE fid = ?1
`

func (q *Queries) GetTarget(ctx context.Context, fid int64) (Target, error) {
	row := q.db.QueryRowContext(ctx, getTarget, fid)
	var i Target
	err := row.Scan(&i.Fid, &i.IsRoot, &i.AddedAt, &i.LastSyncedAt)
	return i, err
}

const deleteTarget = `
DELETE FROM targets WHERE fid = ?1
`

func (q *Queries) DeleteTarget(ctx context.Context, fid int64) (sql.Result, error) {
	return q.db.ExecContext(ctx, deleteTarget, fid)
}

const setRootTarget = `
UPDATE targets SET is_root = ?2 WHERE fid = ?1
`

type SetRootTargetParams struct {
	Fid    int64
	IsRoot bool
}

func (q *Queries) SetRootTarget(ctx context.Context, arg SetRootTargetParams) (sql.Result, error) {
	return q.db.ExecContext(ctx, setRootTarget, arg.Fid, arg.IsRoot)
}

const markTargetSynced = `
UPDATE targets SET last_synced_at = ?2 WHERE fid = ?1
`

type MarkTargetSyncedParams struct {
	Fid      int64
	SyncedAt interface{}
}

func (q *Queries) MarkTargetSynced(ctx context.Context, arg MarkTargetSyncedParams) error {
	_, err := q.db.ExecContext(ctx, markTargetSynced, arg.Fid, arg.SyncedAt)
	return err
}

const listTargetFids = `
SELECT fid FROM targets ORDER BY fid
`

func (q *Queries) ListTargetFids(ctx context.Context) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, listTargetFids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []int64
	for rows.Next() {
		var fid int64
		if err := rows.Scan(&fid); err != nil {
			return nil, err
		}
		items = append(items, fid)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertClientTarget = `
INSERT INTO client_targets ("fid", "added_at") VALUES (?1, ?2)
ON CONFLICT ("fid") DO NOTHING
`

type InsertClientTargetParams struct {
	Fid     int64
	AddedAt interface{}
}

func (q *Queries) InsertClientTarget(ctx context.Context, arg InsertClientTargetParams) (sql.Result, error) {
	return q.db.ExecContext(ctx, insertClientTarget, arg.Fid, arg.AddedAt)
}

const deleteClientTarget = `
DELETE FROM client_targets WHERE fid = ?1
`

func (q *Queries) DeleteClientTarget(ctx context.Context, fid int64) (sql.Result, error) {
	return q.db.ExecContext(ctx, deleteClientTarget, fid)
}

const listClientTargets = `
SELECT fid, added_at FROM client_targets ORDER BY fid
`

func (q *Queries) ListClientTargets(ctx context.Context) ([]ClientTarget, error) {
	rows, err := q.db.QueryContext(ctx, listClientTargets)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ClientTarget
	for rows.Next() {
		var i ClientTarget
		if err := rows.Scan(&i.Fid, &i.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countRootFollowers = `
SELECT count(1) FROM links
JOIN targets ON targets.fid = links.fid AND targets.is_root = 1
WHERE links.target_fid = ?1 AND links.type = 'follow' AND links.fid != ?2
`

type CountRootFollowersParams struct {
	TargetFid    int64
	ExcludingFid int64
}

// CountRootFollowers counts the root targets (other than ExcludingFid) that
// still have a follow link to TargetFid.
func (q *Queries) CountRootFollowers(ctx context.Context, arg CountRootFollowersParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countRootFollowers, arg.TargetFid, arg.ExcludingFid)
	var count int64
	err := row.Scan(&count)
	return count, err
}

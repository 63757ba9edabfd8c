package db

import (
	"context"
)

const getSyncState = `
SELECT name, last_event_id, updated_at FROM sync_state WHERE name = ?1
`

func (q *Queries) GetSyncState(ctx context.Context, name string) (SyncState, error) {
	row := q.db.QueryRowContext(ctx, getSyncState, name)
	var i SyncState
	err := row.Scan(&i.Name, &i.LastEventID, &i.UpdatedAt)
	return i, err
}

const upsertSyncState = `
INSERT INTO sync_state ("name", "last_event_id", "updated_at") VALUES (?1, ?2, ?3)
ON CONFLICT ("name") DO UPDATE SET last_event_id = excluded.last_event_id, updated_at = excluded.updated_at
`

type UpsertSyncStateParams struct {
	Name        string
	LastEventID int64
	UpdatedAt   interface{}
}

func (q *Queries) UpsertSyncState(ctx context.Context, arg UpsertSyncStateParams) error {
	_, err := q.db.ExecContext(ctx, upsertSyncState, arg.Name, arg.LastEventID, arg.UpdatedAt)
	return err
}

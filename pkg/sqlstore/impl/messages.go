package impl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/castsync/go-castsync/internal/castsync"
)

// insertBatch inserts rows into table in chunks of batchSize, ignoring rows
// that collide with an existing primary key.
func (s *Store) insertBatch(
	ctx context.Context,
	table string,
	columns []string,
	rows [][]interface{},
	batchSize int,
) error {
	if len(rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			placeholders[i] = rowPlaceholder
			args = append(args, row...)
		}
		query := fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES %s ON CONFLICT DO NOTHING",
			table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
		if _, err := s.db.DB.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting into %s: %s", table, err)
		}
	}
	return nil
}

// InsertCasts batch-inserts casts, skipping already-stored hashes.
func (s *Store) InsertCasts(ctx context.Context, casts []castsync.Cast, batchSize int) error {
	rows := make([][]interface{}, len(casts))
	for i, c := range casts {
		var parentFID interface{}
		if c.ParentFID != nil {
			parentFID = int64(*c.ParentFID)
		}
		rows[i] = []interface{}{
			c.Hash, int64(c.FID), c.Text, c.ParentHash, parentFID, c.ParentURL, c.Embeds, c.Timestamp.UTC(),
		}
	}
	return s.insertBatch(ctx, "casts",
		[]string{"hash", "fid", "text", "parent_hash", "parent_fid", "parent_url", "embeds", "timestamp"},
		rows, batchSize)
}

// InsertReactions batch-inserts reactions, skipping already-stored hashes.
func (s *Store) InsertReactions(ctx context.Context, reactions []castsync.Reaction, batchSize int) error {
	rows := make([][]interface{}, len(reactions))
	for i, r := range reactions {
		rows[i] = []interface{}{r.Hash, int64(r.FID), string(r.Type), r.TargetHash, r.Timestamp.UTC()}
	}
	return s.insertBatch(ctx, "reactions",
		[]string{"hash", "fid", "type", "target_hash", "timestamp"},
		rows, batchSize)
}

// InsertLinks batch-inserts links, skipping already-stored hashes.
func (s *Store) InsertLinks(ctx context.Context, links []castsync.Link, batchSize int) error {
	rows := make([][]interface{}, len(links))
	for i, l := range links {
		rows[i] = []interface{}{l.Hash, int64(l.FID), int64(l.TargetFID), l.Type, l.Timestamp.UTC()}
	}
	return s.insertBatch(ctx, "links",
		[]string{"hash", "fid", "target_fid", "type", "timestamp"},
		rows, batchSize)
}

// InsertVerifications batch-inserts verifications, skipping already-stored hashes.
func (s *Store) InsertVerifications(
	ctx context.Context,
	verifications []castsync.Verification,
	batchSize int,
) error {
	rows := make([][]interface{}, len(verifications))
	for i, v := range verifications {
		rows[i] = []interface{}{v.Hash, int64(v.FID), v.Address, v.Protocol, v.Timestamp.UTC()}
	}
	return s.insertBatch(ctx, "verifications",
		[]string{"hash", "fid", "address", "protocol", "timestamp"},
		rows, batchSize)
}

// InsertUserData batch-inserts user data entries, skipping already-stored hashes.
func (s *Store) InsertUserData(ctx context.Context, entries []castsync.UserDataEntry, batchSize int) error {
	rows := make([][]interface{}, len(entries))
	for i, e := range entries {
		rows[i] = []interface{}{e.Hash, int64(e.FID), string(e.Type), e.Value, e.Timestamp.UTC()}
	}
	return s.insertBatch(ctx, "user_data",
		[]string{"hash", "fid", "type", "value", "timestamp"},
		rows, batchSize)
}

// InsertOnChainEvents batch-inserts on-chain events, skipping rows whose
// (transaction_hash, log_index) pair is already stored.
func (s *Store) InsertOnChainEvents(ctx context.Context, events []castsync.OnChainEvent, batchSize int) error {
	rows := make([][]interface{}, len(events))
	for i, e := range events {
		rows[i] = []interface{}{
			e.TransactionHash, e.LogIndex, e.Type, e.ChainID, e.BlockNumber, e.BlockHash,
			e.BlockTimestamp.UTC(), int64(e.FID), e.SignerEventBody, e.IDRegisterEventBody,
		}
	}
	return s.insertBatch(ctx, "onchain_events",
		[]string{
			"transaction_hash", "log_index", "type", "chain_id", "block_number", "block_hash",
			"block_timestamp", "fid", "signer_event_body", "id_register_event_body",
		},
		rows, batchSize)
}

func (s *Store) deleteByHash(ctx context.Context, table, hash string) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE hash = ?1", table)
	result, err := s.db.DB.ExecContext(ctx, query, hash)
	if err != nil {
		return false, fmt.Errorf("deleting from %s: %s", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %s", err)
	}
	return affected > 0, nil
}

// DeleteCast deletes the cast with the given hash, reporting whether it existed.
func (s *Store) DeleteCast(ctx context.Context, hash string) (bool, error) {
	return s.deleteByHash(ctx, "casts", hash)
}

// DeleteReaction deletes the reaction with the given hash, reporting whether it existed.
func (s *Store) DeleteReaction(ctx context.Context, hash string) (bool, error) {
	return s.deleteByHash(ctx, "reactions", hash)
}

// DeleteLink deletes the link with the given hash, reporting whether it existed.
func (s *Store) DeleteLink(ctx context.Context, hash string) (bool, error) {
	return s.deleteByHash(ctx, "links", hash)
}

// DeleteVerification deletes the verification with the given hash, reporting whether it existed.
func (s *Store) DeleteVerification(ctx context.Context, hash string) (bool, error) {
	return s.deleteByHash(ctx, "verifications", hash)
}

// DeleteUserData deletes the user data entry with the given hash, reporting whether it existed.
func (s *Store) DeleteUserData(ctx context.Context, hash string) (bool, error) {
	return s.deleteByHash(ctx, "user_data", hash)
}

// GetCast returns the cast with the given hash, if present.
func (s *Store) GetCast(ctx context.Context, hash string) (castsync.Cast, bool, error) {
	query := `
		SELECT hash, fid, text, parent_hash, parent_fid, parent_url, embeds, timestamp
		FROM casts WHERE hash = ?1`

	var cast castsync.Cast
	var fid int64
	var parentHash, parentURL, embeds sql.NullString
	var parentFID sql.NullInt64
	err := s.db.DB.QueryRowContext(ctx, query, hash).Scan(
		&cast.Hash, &fid, &cast.Text, &parentHash, &parentFID, &parentURL, &embeds, &cast.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return castsync.Cast{}, false, nil
	}
	if err != nil {
		return castsync.Cast{}, false, fmt.Errorf("getting cast: %s", err)
	}

	cast.FID = castsync.FID(fid)
	cast.ParentHash = nullableString(parentHash)
	cast.ParentURL = nullableString(parentURL)
	cast.Embeds = nullableString(embeds)
	if parentFID.Valid {
		pfid := castsync.FID(parentFID.Int64)
		cast.ParentFID = &pfid
	}
	return cast, true, nil
}

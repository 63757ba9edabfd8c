package impl

import (
	"context"
	"fmt"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/metrics"
	"github.com/castsync/go-castsync/pkg/sqlstore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"
)

// InstrumentedStore implements an instrumented sqlstore.Store.
type InstrumentedStore struct {
	store            sqlstore.Store
	callCount        instrument.Int64Counter
	latencyHistogram instrument.Int64Histogram
}

var _ sqlstore.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore creates a new instrumented store.
func NewInstrumentedStore(store sqlstore.Store) (*InstrumentedStore, error) {
	meter := global.MeterProvider().Meter("castsync")
	callCount, err := meter.Int64Counter("castsync.sqlstore.call.count")
	if err != nil {
		return nil, fmt.Errorf("registering call counter: %s", err)
	}
	latencyHistogram, err := meter.Int64Histogram("castsync.sqlstore.call.latency")
	if err != nil {
		return nil, fmt.Errorf("registering latency histogram: %s", err)
	}

	return &InstrumentedStore{
		store:            store,
		callCount:        callCount,
		latencyHistogram: latencyHistogram,
	}, nil
}

func (s *InstrumentedStore) record(ctx context.Context, method string, start time.Time, err error) {
	attributes := append([]attribute.KeyValue{
		{Key: "method", Value: attribute.StringValue(method)},
		{Key: "success", Value: attribute.BoolValue(err == nil)},
	}, metrics.BaseAttrs...)

	s.callCount.Add(ctx, 1, attributes...)
	s.latencyHistogram.Record(ctx, time.Since(start).Milliseconds(), attributes...)
}

// EnsureTarget implements sqlstore.TargetStore.
func (s *InstrumentedStore) EnsureTarget(ctx context.Context, fid castsync.FID, isRoot bool) (bool, error) {
	start := time.Now()
	inserted, err := s.store.EnsureTarget(ctx, fid, isRoot)
	s.record(ctx, "EnsureTarget", start, err)
	return inserted, err
}

// GetTarget implements sqlstore.TargetStore.
func (s *InstrumentedStore) GetTarget(
	ctx context.Context,
	fid castsync.FID,
) (castsync.Target, bool, error) {
	start := time.Now()
	target, found, err := s.store.GetTarget(ctx, fid)
	s.record(ctx, "GetTarget", start, err)
	return target, found, err
}

// DeleteTarget implements sqlstore.TargetStore.
func (s *InstrumentedStore) DeleteTarget(ctx context.Context, fid castsync.FID) (bool, error) {
	start := time.Now()
	deleted, err := s.store.DeleteTarget(ctx, fid)
	s.record(ctx, "DeleteTarget", start, err)
	return deleted, err
}

// SetRootTarget implements sqlstore.TargetStore.
func (s *InstrumentedStore) SetRootTarget(ctx context.Context, fid castsync.FID, isRoot bool) (bool, error) {
	start := time.Now()
	updated, err := s.store.SetRootTarget(ctx, fid, isRoot)
	s.record(ctx, "SetRootTarget", start, err)
	return updated, err
}

// MarkSynced implements sqlstore.TargetStore.
func (s *InstrumentedStore) MarkSynced(ctx context.Context, fid castsync.FID, syncedAt time.Time) error {
	start := time.Now()
	err := s.store.MarkSynced(ctx, fid, syncedAt)
	s.record(ctx, "MarkSynced", start, err)
	return err
}

// TargetFIDs implements sqlstore.TargetStore.
func (s *InstrumentedStore) TargetFIDs(ctx context.Context) ([]castsync.FID, error) {
	start := time.Now()
	fids, err := s.store.TargetFIDs(ctx)
	s.record(ctx, "TargetFIDs", start, err)
	return fids, err
}

// ListTargets implements sqlstore.TargetStore.
func (s *InstrumentedStore) ListTargets(
	ctx context.Context,
	params sqlstore.ListTargetsParams,
) ([]castsync.Target, sqlstore.TargetCounts, error) {
	start := time.Now()
	targets, counts, err := s.store.ListTargets(ctx, params)
	s.record(ctx, "ListTargets", start, err)
	return targets, counts, err
}

// EnsureClientTarget implements sqlstore.TargetStore.
func (s *InstrumentedStore) EnsureClientTarget(ctx context.Context, fid castsync.FID) (bool, error) {
	start := time.Now()
	inserted, err := s.store.EnsureClientTarget(ctx, fid)
	s.record(ctx, "EnsureClientTarget", start, err)
	return inserted, err
}

// DeleteClientTarget implements sqlstore.TargetStore.
func (s *InstrumentedStore) DeleteClientTarget(ctx context.Context, fid castsync.FID) (bool, error) {
	start := time.Now()
	deleted, err := s.store.DeleteClientTarget(ctx, fid)
	s.record(ctx, "DeleteClientTarget", start, err)
	return deleted, err
}

// ClientTargets implements sqlstore.TargetStore.
func (s *InstrumentedStore) ClientTargets(ctx context.Context) ([]castsync.ClientTarget, error) {
	start := time.Now()
	clientTargets, err := s.store.ClientTargets(ctx)
	s.record(ctx, "ClientTargets", start, err)
	return clientTargets, err
}

// CountRootFollowers implements sqlstore.TargetStore.
func (s *InstrumentedStore) CountRootFollowers(
	ctx context.Context,
	target, excluding castsync.FID,
) (int64, error) {
	start := time.Now()
	count, err := s.store.CountRootFollowers(ctx, target, excluding)
	s.record(ctx, "CountRootFollowers", start, err)
	return count, err
}

// InsertCasts implements sqlstore.MessageStore.
func (s *InstrumentedStore) InsertCasts(ctx context.Context, casts []castsync.Cast, batchSize int) error {
	start := time.Now()
	err := s.store.InsertCasts(ctx, casts, batchSize)
	s.record(ctx, "InsertCasts", start, err)
	return err
}

// InsertReactions implements sqlstore.MessageStore.
func (s *InstrumentedStore) InsertReactions(
	ctx context.Context,
	reactions []castsync.Reaction,
	batchSize int,
) error {
	start := time.Now()
	err := s.store.InsertReactions(ctx, reactions, batchSize)
	s.record(ctx, "InsertReactions", start, err)
	return err
}

// InsertLinks implements sqlstore.MessageStore.
func (s *InstrumentedStore) InsertLinks(ctx context.Context, links []castsync.Link, batchSize int) error {
	start := time.Now()
	err := s.store.InsertLinks(ctx, links, batchSize)
	s.record(ctx, "InsertLinks", start, err)
	return err
}

// InsertVerifications implements sqlstore.MessageStore.
func (s *InstrumentedStore) InsertVerifications(
	ctx context.Context,
	verifications []castsync.Verification,
	batchSize int,
) error {
	start := time.Now()
	err := s.store.InsertVerifications(ctx, verifications, batchSize)
	s.record(ctx, "InsertVerifications", start, err)
	return err
}

// InsertUserData implements sqlstore.MessageStore.
func (s *InstrumentedStore) InsertUserData(
	ctx context.Context,
	entries []castsync.UserDataEntry,
	batchSize int,
) error {
	start := time.Now()
	err := s.store.InsertUserData(ctx, entries, batchSize)
	s.record(ctx, "InsertUserData", start, err)
	return err
}

// InsertOnChainEvents implements sqlstore.MessageStore.
func (s *InstrumentedStore) InsertOnChainEvents(
	ctx context.Context,
	events []castsync.OnChainEvent,
	batchSize int,
) error {
	start := time.Now()
	err := s.store.InsertOnChainEvents(ctx, events, batchSize)
	s.record(ctx, "InsertOnChainEvents", start, err)
	return err
}

// DeleteCast implements sqlstore.MessageStore.
func (s *InstrumentedStore) DeleteCast(ctx context.Context, hash string) (bool, error) {
	start := time.Now()
	deleted, err := s.store.DeleteCast(ctx, hash)
	s.record(ctx, "DeleteCast", start, err)
	return deleted, err
}

// DeleteReaction implements sqlstore.MessageStore.
func (s *InstrumentedStore) DeleteReaction(ctx context.Context, hash string) (bool, error) {
	start := time.Now()
	deleted, err := s.store.DeleteReaction(ctx, hash)
	s.record(ctx, "DeleteReaction", start, err)
	return deleted, err
}

// DeleteLink implements sqlstore.MessageStore.
func (s *InstrumentedStore) DeleteLink(ctx context.Context, hash string) (bool, error) {
	start := time.Now()
	deleted, err := s.store.DeleteLink(ctx, hash)
	s.record(ctx, "DeleteLink", start, err)
	return deleted, err
}

// DeleteVerification implements sqlstore.MessageStore.
func (s *InstrumentedStore) DeleteVerification(ctx context.Context, hash string) (bool, error) {
	start := time.Now()
	deleted, err := s.store.DeleteVerification(ctx, hash)
	s.record(ctx, "DeleteVerification", start, err)
	return deleted, err
}

// DeleteUserData implements sqlstore.MessageStore.
func (s *InstrumentedStore) DeleteUserData(ctx context.Context, hash string) (bool, error) {
	start := time.Now()
	deleted, err := s.store.DeleteUserData(ctx, hash)
	s.record(ctx, "DeleteUserData", start, err)
	return deleted, err
}

// GetCast implements sqlstore.MessageStore.
func (s *InstrumentedStore) GetCast(ctx context.Context, hash string) (castsync.Cast, bool, error) {
	start := time.Now()
	cast, found, err := s.store.GetCast(ctx, hash)
	s.record(ctx, "GetCast", start, err)
	return cast, found, err
}

// RefreshUserView implements sqlstore.MessageStore.
func (s *InstrumentedStore) RefreshUserView(ctx context.Context, fids ...castsync.FID) error {
	start := time.Now()
	err := s.store.RefreshUserView(ctx, fids...)
	s.record(ctx, "RefreshUserView", start, err)
	return err
}

// GetUserView implements sqlstore.MessageStore.
func (s *InstrumentedStore) GetUserView(
	ctx context.Context,
	fid castsync.FID,
) (castsync.UserView, bool, error) {
	start := time.Now()
	view, found, err := s.store.GetUserView(ctx, fid)
	s.record(ctx, "GetUserView", start, err)
	return view, found, err
}

// GetLastEventID implements sqlstore.StateStore.
func (s *InstrumentedStore) GetLastEventID(ctx context.Context) (uint64, bool, error) {
	start := time.Now()
	eventID, found, err := s.store.GetLastEventID(ctx)
	s.record(ctx, "GetLastEventID", start, err)
	return eventID, found, err
}

// SetLastEventID implements sqlstore.StateStore.
func (s *InstrumentedStore) SetLastEventID(ctx context.Context, eventID uint64) error {
	start := time.Now()
	err := s.store.SetLastEventID(ctx, eventID)
	s.record(ctx, "SetLastEventID", start, err)
	return err
}

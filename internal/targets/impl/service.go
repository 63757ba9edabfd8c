package impl

import (
	"context"
	"fmt"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/internal/targets"
	"github.com/castsync/go-castsync/pkg/hub"
	"github.com/castsync/go-castsync/pkg/jobqueue"
	"github.com/castsync/go-castsync/pkg/sharedmemory"
	"github.com/castsync/go-castsync/pkg/sqlstore"
	registry "github.com/castsync/go-castsync/pkg/targets"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
)

// TargetsService is the admin service backed by the registry, queue admin,
// hub client, and shared worker state.
type TargetsService struct {
	registry   registry.Registry
	queueAdmin jobqueue.Admin
	hub        hub.Client
	state      sqlstore.StateStore
	sm         *sharedmemory.SharedMemory

	log zerolog.Logger
}

var _ targets.TargetsService = (*TargetsService)(nil)

// NewTargetsService creates a new admin service.
func NewTargetsService(
	reg registry.Registry,
	queueAdmin jobqueue.Admin,
	hubClient hub.Client,
	state sqlstore.StateStore,
	sm *sharedmemory.SharedMemory,
) *TargetsService {
	return &TargetsService{
		registry:   reg,
		queueAdmin: queueAdmin,
		hub:        hubClient,
		state:      state,
		sm:         sm,
		log: logger.With().
			Str("component", "targetsservice").
			Logger(),
	}
}

// AddTarget registers a new target and enqueues its backfill.
func (s *TargetsService) AddTarget(ctx context.Context, fid castsync.FID, isRoot bool) error {
	return s.registry.Add(ctx, fid, isRoot)
}

// RemoveTarget deletes a target from the registry and cache.
func (s *TargetsService) RemoveTarget(ctx context.Context, fid castsync.FID) error {
	return s.registry.Remove(ctx, fid)
}

// UpdateTarget changes the root flag of a target.
func (s *TargetsService) UpdateTarget(ctx context.Context, fid castsync.FID, isRoot bool) error {
	return s.registry.Update(ctx, fid, isRoot)
}

// ListTargets returns a page of targets with their sync status, plus counts.
func (s *TargetsService) ListTargets(
	ctx context.Context,
	params sqlstore.ListTargetsParams,
) ([]registry.TargetInfo, sqlstore.TargetCounts, error) {
	return s.registry.List(ctx, params)
}

// TriggerBackfill re-enqueues the backfill of an existing target.
func (s *TargetsService) TriggerBackfill(ctx context.Context, fid castsync.FID) error {
	return s.registry.EnqueueBackfill(ctx, fid)
}

// AddClientTarget registers a client target for signer discovery.
func (s *TargetsService) AddClientTarget(ctx context.Context, fid castsync.FID) error {
	return s.registry.AddClientTarget(ctx, fid)
}

// RemoveClientTarget deletes a client target.
func (s *TargetsService) RemoveClientTarget(ctx context.Context, fid castsync.FID) error {
	return s.registry.RemoveClientTarget(ctx, fid)
}

// ClientTargets lists all client targets.
func (s *TargetsService) ClientTargets(ctx context.Context) ([]castsync.ClientTarget, error) {
	return s.registry.ClientTargets(ctx)
}

// QueueCounts returns the aggregate counters of a queue.
func (s *TargetsService) QueueCounts(ctx context.Context, queue string) (jobqueue.Counts, error) {
	if err := validQueue(queue); err != nil {
		return jobqueue.Counts{}, err
	}
	return s.queueAdmin.Counts(ctx, queue)
}

// PauseQueue stops dequeueing from a queue.
func (s *TargetsService) PauseQueue(ctx context.Context, queue string) error {
	if err := validQueue(queue); err != nil {
		return err
	}
	s.log.Info().Str("queue", queue).Msg("pausing queue")
	return s.queueAdmin.Pause(ctx, queue)
}

// ResumeQueue resumes dequeueing from a queue.
func (s *TargetsService) ResumeQueue(ctx context.Context, queue string) error {
	if err := validQueue(queue); err != nil {
		return err
	}
	s.log.Info().Str("queue", queue).Msg("resuming queue")
	return s.queueAdmin.Resume(ctx, queue)
}

// ClearQueue drops pending jobs of a queue.
func (s *TargetsService) ClearQueue(ctx context.Context, queue string) error {
	if err := validQueue(queue); err != nil {
		return err
	}
	s.log.Info().Str("queue", queue).Msg("clearing queue")
	return s.queueAdmin.Clear(ctx, queue)
}

// Status builds the operational snapshot: persisted and in-memory cursors,
// worker liveness, and the registry invariant check.
func (s *TargetsService) Status(ctx context.Context) (targets.Status, error) {
	status := targets.Status{}

	lastEventID, found, err := s.state.GetLastEventID(ctx)
	if err != nil {
		return targets.Status{}, fmt.Errorf("reading cursor: %s", err)
	}
	if found {
		status.LastEventID = lastEventID
	}
	if seen, ok := s.sm.GetLastSeenEventID(); ok {
		status.LastSeenEventID = seen
	}
	if lastFlush, ok := s.sm.GetLastFlush(); ok {
		status.LastFlush = &lastFlush
	}
	status.Workers = s.sm.Heartbeats()

	report, err := s.registry.InvariantCheck(ctx)
	if err != nil {
		return targets.Status{}, fmt.Errorf("checking invariants: %s", err)
	}
	status.Invariants = report

	return status, nil
}

// HubInfo proxies the hub information endpoint.
func (s *TargetsService) HubInfo(ctx context.Context) (hub.Info, error) {
	return s.hub.GetHubInfo(ctx)
}

func validQueue(queue string) error {
	switch queue {
	case jobqueue.QueueBackfill, jobqueue.QueueRealtime, jobqueue.QueueProcessEvent:
		return nil
	}
	return fmt.Errorf("%w: %s", targets.ErrUnknownQueue, queue)
}

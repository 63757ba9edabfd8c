// Package targets has the service layer behind the admin HTTP API.
package targets

import (
	"context"
	"errors"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/hub"
	"github.com/castsync/go-castsync/pkg/jobqueue"
	"github.com/castsync/go-castsync/pkg/sqlstore"
	registry "github.com/castsync/go-castsync/pkg/targets"
)

// ErrUnknownQueue indicates a queue name outside the known queues.
var ErrUnknownQueue = errors.New("unknown queue")

// Status is the operational snapshot served by the status endpoint.
type Status struct {
	LastEventID     uint64                   `json:"last_event_id"`
	LastSeenEventID uint64                   `json:"last_seen_event_id"`
	LastFlush       *time.Time               `json:"last_flush"`
	Workers         map[string]time.Time     `json:"workers"`
	Invariants      registry.InvariantReport `json:"invariants"`
}

// TargetsService defines what admin operations can be done.
type TargetsService interface {
	AddTarget(ctx context.Context, fid castsync.FID, isRoot bool) error
	RemoveTarget(ctx context.Context, fid castsync.FID) error
	UpdateTarget(ctx context.Context, fid castsync.FID, isRoot bool) error
	ListTargets(
		ctx context.Context,
		params sqlstore.ListTargetsParams,
	) ([]registry.TargetInfo, sqlstore.TargetCounts, error)
	TriggerBackfill(ctx context.Context, fid castsync.FID) error

	AddClientTarget(ctx context.Context, fid castsync.FID) error
	RemoveClientTarget(ctx context.Context, fid castsync.FID) error
	ClientTargets(ctx context.Context) ([]castsync.ClientTarget, error)

	QueueCounts(ctx context.Context, queue string) (jobqueue.Counts, error)
	PauseQueue(ctx context.Context, queue string) error
	ResumeQueue(ctx context.Context, queue string) error
	ClearQueue(ctx context.Context, queue string) error

	Status(ctx context.Context) (Status, error)
	HubInfo(ctx context.Context) (hub.Info, error)
}

// Package jobqueue defines the durable queue contract the workers are built
// on. Jobs are delivered at least once; a job key deduplicates enqueues of
// work that is already pending or running.
package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/castsync/go-castsync/internal/castsync"
)

// Queue names.
const (
	QueueBackfill     = "backfill"
	QueueRealtime     = "realtime"
	QueueProcessEvent = "process-event"
)

// ErrAlreadyQueued indicates the job key is already pending or active, so the
// enqueue was dropped.
var ErrAlreadyQueued = errors.New("a job with this key is already queued")

// BackfillKey is the dedup key of the backfill job for fid. It guarantees
// at-most-one in-flight backfill per fid.
func BackfillKey(fid castsync.FID) string {
	return fmt.Sprintf("backfill:%d", fid)
}

// RealtimeKey is the dedup key of the singleton realtime job.
func RealtimeKey() string {
	return "realtime"
}

// ProcessEventKey is the dedup key of the process-event job for a hub event.
func ProcessEventKey(eventID uint64) string {
	return fmt.Sprintf("process-event:%d", eventID)
}

// BackfillPayload is the payload of a backfill job.
type BackfillPayload struct {
	FID    castsync.FID `json:"fid"`
	IsRoot bool         `json:"is_root"`
}

// RealtimePayload is the payload of the realtime job. A nil LastEventID means
// the worker reads the persisted cursor.
type RealtimePayload struct {
	LastEventID *uint64 `json:"last_event_id,omitempty"`
}

// Job is one unit of work delivered to a handler.
type Job struct {
	Queue   string
	Key     string
	Payload []byte
}

// Handler processes one job. A non-nil error makes the queue retry the job
// with backoff.
type Handler func(ctx context.Context, job Job) error

// Enqueuer adds jobs to a queue.
type Enqueuer interface {
	// Enqueue adds a job. A non-empty key deduplicates: if a job with the
	// same key is pending or active, ErrAlreadyQueued is returned.
	Enqueue(ctx context.Context, queue, key string, payload []byte) error
}

// JobStatus is the queue-side state of a job key.
type JobStatus string

// Job statuses reported by StatusForFIDs.
const (
	JobStatusPending JobStatus = "pending"
	JobStatusActive  JobStatus = "active"
	JobStatusAbsent  JobStatus = "absent"
)

// Counts are the aggregate counters of one queue.
type Counts struct {
	Active    int64 `json:"active"`
	Waiting   int64 `json:"waiting"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Paused    bool  `json:"paused"`
}

// Admin exposes the operator surface of the queues.
type Admin interface {
	Pause(ctx context.Context, queue string) error
	Resume(ctx context.Context, queue string) error
	Clear(ctx context.Context, queue string) error
	Counts(ctx context.Context, queue string) (Counts, error)

	// StatusForFIDs reports the backfill job status of each given fid.
	StatusForFIDs(ctx context.Context, fids []castsync.FID) (map[castsync.FID]JobStatus, error)
}

// Server is a single-queue consumer. Register must be called before Start.
type Server interface {
	Register(handler Handler)
	Start() error
	Shutdown()
}

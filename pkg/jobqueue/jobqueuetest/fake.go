// Package jobqueuetest has an in-memory jobqueue used by worker unit tests.
package jobqueuetest

import (
	"context"
	"sync"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/jobqueue"
)

// Queue is an in-memory jobqueue.Enqueuer and jobqueue.Admin. Jobs are held
// until a test drains them explicitly; dedup keys behave like the durable
// implementation.
type Queue struct {
	mu     sync.Mutex
	jobs   map[string][]jobqueue.Job
	keys   map[string]struct{}
	paused map[string]bool
}

var (
	_ jobqueue.Enqueuer = (*Queue)(nil)
	_ jobqueue.Admin    = (*Queue)(nil)
)

// New creates an empty in-memory queue.
func New() *Queue {
	return &Queue{
		jobs:   map[string][]jobqueue.Job{},
		keys:   map[string]struct{}{},
		paused: map[string]bool{},
	}
}

// Enqueue adds a job, honoring key dedup.
func (q *Queue) Enqueue(_ context.Context, queue, key string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if key != "" {
		dedupKey := queue + "/" + key
		if _, ok := q.keys[dedupKey]; ok {
			return jobqueue.ErrAlreadyQueued
		}
		q.keys[dedupKey] = struct{}{}
	}
	q.jobs[queue] = append(q.jobs[queue], jobqueue.Job{Queue: queue, Key: key, Payload: payload})
	return nil
}

// Jobs returns the pending jobs of a queue.
func (q *Queue) Jobs(queue string) []jobqueue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]jobqueue.Job{}, q.jobs[queue]...)
}

// HasKey reports whether a job with the given key is pending.
func (q *Queue) HasKey(queue, key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.keys[queue+"/"+key]
	return ok
}

// Drain pops every pending job of a queue and runs handler on each. Jobs
// enqueued by the handler itself are left pending.
func (q *Queue) Drain(ctx context.Context, queue string, handler jobqueue.Handler) error {
	q.mu.Lock()
	pending := q.jobs[queue]
	q.jobs[queue] = nil
	for _, job := range pending {
		delete(q.keys, queue+"/"+job.Key)
	}
	q.mu.Unlock()

	for _, job := range pending {
		if err := handler(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// Pause marks the queue paused.
func (q *Queue) Pause(_ context.Context, queue string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused[queue] = true
	return nil
}

// Resume unmarks the queue paused.
func (q *Queue) Resume(_ context.Context, queue string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused[queue] = false
	return nil
}

// Clear drops all pending jobs of the queue.
func (q *Queue) Clear(_ context.Context, queue string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.jobs[queue] {
		delete(q.keys, queue+"/"+job.Key)
	}
	q.jobs[queue] = nil
	return nil
}

// Counts returns the pending counters of the queue.
func (q *Queue) Counts(_ context.Context, queue string) (jobqueue.Counts, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return jobqueue.Counts{
		Waiting: int64(len(q.jobs[queue])),
		Paused:  q.paused[queue],
	}, nil
}

// StatusForFIDs reports pending backfill jobs.
func (q *Queue) StatusForFIDs(
	_ context.Context,
	fids []castsync.FID,
) (map[castsync.FID]jobqueue.JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	statuses := make(map[castsync.FID]jobqueue.JobStatus, len(fids))
	for _, fid := range fids {
		dedupKey := jobqueue.QueueBackfill + "/" + jobqueue.BackfillKey(fid)
		if _, ok := q.keys[dedupKey]; ok {
			statuses[fid] = jobqueue.JobStatusPending
		} else {
			statuses[fid] = jobqueue.JobStatusAbsent
		}
	}
	return statuses, nil
}

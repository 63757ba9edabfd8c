// Package impl implements the jobqueue contract on asynq, which gives the
// indexer durable redis-backed queues with retries, dedup task ids and an
// inspector for the operator surface.
package impl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/pkg/jobqueue"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
)

// completedRetention is how long finished process-event jobs are kept around.
// It doubles as the event dedup window and feeds the completed counter of the
// admin API. Backfill and realtime jobs are not retained: a retained task id
// would block legitimate re-enqueues, and their dedup must only cover
// in-flight work.
const completedRetention = time.Hour * 24

// Enqueuer is a jobqueue.Enqueuer backed by an asynq client.
type Enqueuer struct {
	client *asynq.Client
}

var _ jobqueue.Enqueuer = (*Enqueuer)(nil)

// NewEnqueuer creates a new enqueuer.
func NewEnqueuer(redisOpt asynq.RedisClientOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(redisOpt)}
}

// Enqueue adds a job to a queue, deduplicating on key when present.
func (e *Enqueuer) Enqueue(ctx context.Context, queue, key string, payload []byte) error {
	opts := []asynq.Option{
		asynq.Queue(queue),
	}
	if queue == jobqueue.QueueProcessEvent {
		opts = append(opts, asynq.Retention(completedRetention))
	}
	if key != "" {
		opts = append(opts, asynq.TaskID(key))
	}

	_, err := e.client.EnqueueContext(ctx, asynq.NewTask(queue, payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return jobqueue.ErrAlreadyQueued
	}
	if err != nil {
		return fmt.Errorf("enqueuing job in %s: %s", queue, err)
	}
	return nil
}

// Close closes the underlying client.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// Server is a jobqueue.Server consuming exactly one queue. Running one asynq
// server per queue is what makes the per-queue concurrency limits real;
// asynq queue weights inside a single server are priorities, not caps.
type Server struct {
	queue   string
	server  *asynq.Server
	handler jobqueue.Handler
	log     zerolog.Logger
}

var _ jobqueue.Server = (*Server)(nil)

// NewServer creates a consumer for queue with the given worker concurrency.
func NewServer(redisOpt asynq.RedisClientOpt, queue string, concurrency int) *Server {
	log := logger.With().
		Str("component", "jobqueue").
		Str("queue", queue).
		Logger()

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      asynqLogger{log: log},
		LogLevel:    asynq.WarnLevel,
	})

	return &Server{queue: queue, server: server, log: log}
}

// Register sets the handler for the queue's jobs.
func (s *Server) Register(handler jobqueue.Handler) {
	s.handler = handler
}

// Start starts consuming jobs in background goroutines.
func (s *Server) Start() error {
	if s.handler == nil {
		return fmt.Errorf("no handler registered for queue %s", s.queue)
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(s.queue, func(ctx context.Context, task *asynq.Task) error {
		key := ""
		if id, ok := asynq.GetTaskID(ctx); ok {
			key = id
		}
		return s.handler(ctx, jobqueue.Job{
			Queue:   s.queue,
			Key:     key,
			Payload: task.Payload(),
		})
	})

	if err := s.server.Start(mux); err != nil {
		return fmt.Errorf("starting consumer of %s: %s", s.queue, err)
	}
	s.log.Info().Msg("queue consumer started")
	return nil
}

// Shutdown stops dequeuing and waits for in-flight jobs to finish.
func (s *Server) Shutdown() {
	s.server.Shutdown()
	s.log.Info().Msg("queue consumer stopped")
}

// Admin is a jobqueue.Admin backed by an asynq inspector.
type Admin struct {
	inspector *asynq.Inspector
}

var _ jobqueue.Admin = (*Admin)(nil)

// NewAdmin creates a new queue admin.
func NewAdmin(redisOpt asynq.RedisClientOpt) *Admin {
	return &Admin{inspector: asynq.NewInspector(redisOpt)}
}

// Pause stops dequeuing from the queue until Resume.
func (a *Admin) Pause(_ context.Context, queue string) error {
	if err := a.inspector.PauseQueue(queue); err != nil {
		return fmt.Errorf("pausing queue %s: %s", queue, err)
	}
	return nil
}

// Resume re-enables dequeuing from the queue.
func (a *Admin) Resume(_ context.Context, queue string) error {
	if err := a.inspector.UnpauseQueue(queue); err != nil {
		return fmt.Errorf("resuming queue %s: %s", queue, err)
	}
	return nil
}

// Clear drops every job of the queue that isn't currently running.
func (a *Admin) Clear(_ context.Context, queue string) error {
	deletes := []func(string) (int, error){
		a.inspector.DeleteAllPendingTasks,
		a.inspector.DeleteAllScheduledTasks,
		a.inspector.DeleteAllRetryTasks,
		a.inspector.DeleteAllArchivedTasks,
		a.inspector.DeleteAllCompletedTasks,
	}
	for _, del := range deletes {
		if _, err := del(queue); err != nil {
			return fmt.Errorf("clearing queue %s: %s", queue, err)
		}
	}
	return nil
}

// Counts returns the aggregate counters of the queue.
func (a *Admin) Counts(_ context.Context, queue string) (jobqueue.Counts, error) {
	info, err := a.inspector.GetQueueInfo(queue)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return jobqueue.Counts{}, nil
		}
		return jobqueue.Counts{}, fmt.Errorf("getting counters of queue %s: %s", queue, err)
	}

	return jobqueue.Counts{
		Active:    int64(info.Active),
		Waiting:   int64(info.Pending),
		Completed: int64(info.Completed),
		Failed:    int64(info.Archived),
		Delayed:   int64(info.Scheduled + info.Retry),
		Paused:    info.Paused,
	}, nil
}

// StatusForFIDs reports the backfill job status of each given fid.
func (a *Admin) StatusForFIDs(
	_ context.Context,
	fids []castsync.FID,
) (map[castsync.FID]jobqueue.JobStatus, error) {
	statuses := make(map[castsync.FID]jobqueue.JobStatus, len(fids))
	for _, fid := range fids {
		info, err := a.inspector.GetTaskInfo(jobqueue.QueueBackfill, jobqueue.BackfillKey(fid))
		if err != nil {
			if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
				statuses[fid] = jobqueue.JobStatusAbsent
				continue
			}
			return nil, fmt.Errorf("getting backfill task of fid %d: %s", fid, err)
		}

		switch info.State {
		case asynq.TaskStateActive:
			statuses[fid] = jobqueue.JobStatusActive
		case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry:
			statuses[fid] = jobqueue.JobStatusPending
		default:
			statuses[fid] = jobqueue.JobStatusAbsent
		}
	}
	return statuses, nil
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }

// Package fullstack builds a complete in-process castsync node for
// end-to-end tests: real store, registry, and workers over a fake hub and an
// in-memory job queue, fronted by the admin API and its Go client.
package fullstack

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/castsync/go-castsync/internal/router"
	targetsimpl "github.com/castsync/go-castsync/internal/targets/impl"
	"github.com/castsync/go-castsync/pkg/backfill"
	"github.com/castsync/go-castsync/pkg/client"
	"github.com/castsync/go-castsync/pkg/database"
	"github.com/castsync/go-castsync/pkg/eventprocessor"
	epimpl "github.com/castsync/go-castsync/pkg/eventprocessor/impl"
	"github.com/castsync/go-castsync/pkg/jobqueue"
	"github.com/castsync/go-castsync/pkg/jobqueue/jobqueuetest"
	"github.com/castsync/go-castsync/pkg/realtime"
	"github.com/castsync/go-castsync/pkg/sharedmemory"
	"github.com/castsync/go-castsync/pkg/sqlstore"
	storeimpl "github.com/castsync/go-castsync/pkg/sqlstore/impl"
	"github.com/castsync/go-castsync/pkg/targets"
	registryimpl "github.com/castsync/go-castsync/pkg/targets/impl"
	targetsetimpl "github.com/castsync/go-castsync/pkg/targetset/impl"
	"github.com/castsync/go-castsync/tests"
	"github.com/castsync/go-castsync/tests/fakehub"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// APIKey protects the admin API of the test node.
const APIKey = "fullstack-key"

// FullStack holds all components of an in-process castsync node.
type FullStack struct {
	Hub       *fakehub.Hub
	Store     sqlstore.Store
	Registry  targets.Registry
	Queue     *jobqueuetest.Queue
	Processor *epimpl.EventProcessor
	Backfill  *backfill.Worker
	Realtime  *realtime.Worker
	SM        *sharedmemory.SharedMemory
	Server    *httptest.Server
	Client    *client.Client
}

// CreateFullStack creates a node with client discovery enabled and the
// processor flushing on every event.
func CreateFullStack(t *testing.T) FullStack {
	t.Helper()

	sqliteDB, err := database.Open(tests.Sqlite3URL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteDB.Close() })
	store := storeimpl.NewStore(sqliteDB)

	redisClient := redis.NewClient(tests.RedisOptions(t))
	t.Cleanup(func() { _ = redisClient.Close() })
	targetCache := targetsetimpl.NewRedisSet(redisClient, "targets")
	clientCache := targetsetimpl.NewRedisSet(redisClient, "client-targets")

	queue := jobqueuetest.New()
	registry := registryimpl.NewRegistry(store, targetCache, clientCache, queue, queue, registryimpl.Strategy{})
	require.NoError(t, registry.Bootstrap(context.Background()))

	fake := fakehub.New()
	sm := sharedmemory.NewSharedMemory()

	processor, err := epimpl.New(store, sm, eventprocessor.WithBatchSize(1))
	require.NoError(t, err)

	backfillWorker, err := backfill.New(fake, store, registry)
	require.NoError(t, err)

	realtimeWorker, err := realtime.New(fake, store, registry, queue, sm,
		realtime.WithClientDiscovery(true))
	require.NoError(t, err)

	service := targetsimpl.NewTargetsService(registry, queue, fake, store, sm)
	configuredRouter, err := router.ConfiguredRouter(10000, time.Minute, APIKey, service)
	require.NoError(t, err)
	server := httptest.NewServer(configuredRouter.Handler())
	t.Cleanup(server.Close)

	apiClient, err := client.NewClient(server.URL, client.NewClientAPIKey(APIKey))
	require.NoError(t, err)

	return FullStack{
		Hub:       fake,
		Store:     store,
		Registry:  registry,
		Queue:     queue,
		Processor: processor,
		Backfill:  backfillWorker,
		Realtime:  realtimeWorker,
		SM:        sm,
		Server:    server,
		Client:    apiClient,
	}
}

// DrainBackfills runs every pending backfill job, including the ones jobs
// themselves enqueue through graph expansion.
func (fs FullStack) DrainBackfills(t *testing.T) {
	t.Helper()
	for len(fs.Queue.Jobs(jobqueue.QueueBackfill)) > 0 {
		require.NoError(t, fs.Queue.Drain(context.Background(), jobqueue.QueueBackfill, fs.Backfill.Handle))
	}
}

// Tick runs one realtime poll followed by all the process-event jobs it
// produced, flushing the processor at the end.
func (fs FullStack) Tick(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	err := fs.Queue.Enqueue(ctx, jobqueue.QueueRealtime, jobqueue.RealtimeKey(), []byte("{}"))
	if err != nil {
		require.ErrorIs(t, err, jobqueue.ErrAlreadyQueued)
	}
	require.NoError(t, fs.Queue.Drain(ctx, jobqueue.QueueRealtime, fs.Realtime.Handle))
	require.NoError(t, fs.Queue.Drain(ctx, jobqueue.QueueProcessEvent, fs.Processor.Handle))
	fs.Processor.Flush(ctx)
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/castsync/go-castsync/buildinfo"
	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/internal/router"
	targetsimpl "github.com/castsync/go-castsync/internal/targets/impl"
	"github.com/castsync/go-castsync/pkg/backfill"
	"github.com/castsync/go-castsync/pkg/backup"
	"github.com/castsync/go-castsync/pkg/database"
	"github.com/castsync/go-castsync/pkg/eventprocessor"
	epimpl "github.com/castsync/go-castsync/pkg/eventprocessor/impl"
	"github.com/castsync/go-castsync/pkg/hub"
	hubimpl "github.com/castsync/go-castsync/pkg/hub/impl"
	"github.com/castsync/go-castsync/pkg/jobqueue"
	queueimpl "github.com/castsync/go-castsync/pkg/jobqueue/impl"
	"github.com/castsync/go-castsync/pkg/logging"
	"github.com/castsync/go-castsync/pkg/metrics"
	"github.com/castsync/go-castsync/pkg/realtime"
	"github.com/castsync/go-castsync/pkg/sharedmemory"
	storeimpl "github.com/castsync/go-castsync/pkg/sqlstore/impl"
	registryimpl "github.com/castsync/go-castsync/pkg/targets/impl"
	targetsetimpl "github.com/castsync/go-castsync/pkg/targetset/impl"
	"github.com/castsync/go-castsync/pkg/telemetry"
	"github.com/castsync/go-castsync/pkg/telemetry/publisher"
	"github.com/castsync/go-castsync/pkg/telemetry/storage"
	"github.com/castsync/go-castsync/pkg/telemetry/targetscollector"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := setupConfig()
	logging.SetupLogger(buildinfo.GitCommit, cfg.Log.Debug, cfg.Log.Human)
	if err := metrics.SetupInstrumentation(":"+cfg.Metrics.Port, "castsync:api"); err != nil {
		log.Fatal().Err(err).Str("port", cfg.Metrics.Port).Msg("could not setup instrumentation")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	sqliteDB, err := database.Open(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("opening database")
	}
	store, err := storeimpl.NewInstrumentedStore(storeimpl.NewStore(sqliteDB))
	if err != nil {
		log.Fatal().Err(err).Msg("instrumenting store")
	}

	telemetryDB, err := storage.New(cfg.Telemetry.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Telemetry.DBPath).Msg("opening telemetry database")
	}
	telemetry.SetMetricStore(telemetryDB)
	if err := telemetry.Collect(ctx, buildinfo.GetSummary()); err != nil {
		log.Error().Err(err).Msg("collecting git summary metric")
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	enqueuer := queueimpl.NewEnqueuer(redisOpt)
	queueAdmin := queueimpl.NewAdmin(redisOpt)

	redisClient := targetsetimpl.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	targetCache := targetsetimpl.NewRedisSet(redisClient, "targets")
	clientCache := targetsetimpl.NewRedisSet(redisClient, "client-targets")

	registry := registryimpl.NewRegistry(store, targetCache, clientCache, enqueuer, queueAdmin, registryimpl.Strategy{
		RootTargets:   toFIDs(cfg.Seed.RootTargets),
		TargetClients: toFIDs(cfg.Seed.ClientTargets),
	})
	// Caches must reflect the target tables before any worker dequeues.
	if err := registry.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("bootstrapping target registry")
	}

	sm := sharedmemory.NewSharedMemory()

	// Event processor is the single writer of the message tables.
	processor, err := epimpl.New(store, sm,
		eventprocessor.WithBatchSize(cfg.EventProcessor.BatchSize),
		eventprocessor.WithBatchTimeout(parseDuration(cfg.EventProcessor.BatchTimeout, "EventProcessor.BatchTimeout")),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("creating event processor")
	}
	if err := processor.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting event processor")
	}
	processorServer := queueimpl.NewServer(redisOpt, jobqueue.QueueProcessEvent, 1)
	processorServer.Register(processor.Handle)
	if err := processorServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting process-event consumer")
	}

	backfillWorker, err := backfill.New(newHubClient(cfg), store, registry,
		backfill.WithBatchSize(cfg.Backfill.BatchSize))
	if err != nil {
		log.Fatal().Err(err).Msg("creating backfill worker")
	}
	backfillServer := queueimpl.NewServer(redisOpt, jobqueue.QueueBackfill, cfg.Backfill.Concurrency)
	backfillServer.Register(backfillWorker.Handle)
	if err := backfillServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting backfill consumer")
	}

	realtimeWorker, err := realtime.New(newHubClient(cfg), store, registry, enqueuer, sm,
		realtime.WithPageSize(cfg.Realtime.PageSize),
		realtime.WithPollInterval(parseDuration(cfg.Realtime.PollInterval, "Realtime.PollInterval")),
		realtime.WithClientDiscovery(cfg.Realtime.EnableClientDiscovery),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("creating realtime worker")
	}
	realtimeServer := queueimpl.NewServer(redisOpt, jobqueue.QueueRealtime, 1)
	realtimeServer.Register(realtimeWorker.Handle)
	if err := realtimeServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting realtime consumer")
	}
	if err := enqueuer.Enqueue(ctx, jobqueue.QueueRealtime, jobqueue.RealtimeKey(), []byte("{}")); err != nil &&
		!errors.Is(err, jobqueue.ErrAlreadyQueued) {
		log.Fatal().Err(err).Msg("enqueuing initial realtime job")
	}
	tickerCtx, tickerCancel := context.WithCancel(context.Background())
	go realtimeWorker.RunTicker(tickerCtx)

	collector, err := targetscollector.New(store, parseDuration(cfg.Telemetry.CollectFrequency, "Telemetry.CollectFrequency"))
	if err != nil {
		log.Fatal().Err(err).Msg("creating targets collector")
	}
	collectorCtx, collectorCancel := context.WithCancel(context.Background())
	go collector.Start(collectorCtx)

	var metricsPublisher *publisher.Publisher
	if cfg.Telemetry.Publisher.Enabled {
		exporter, err := publisher.NewHTTPExporter(
			cfg.Telemetry.Publisher.Endpoint,
			cfg.Telemetry.Publisher.NodeID,
			cfg.Telemetry.Publisher.APIKey,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("creating metrics exporter")
		}
		metricsPublisher = publisher.NewPublisher(
			telemetryDB,
			exporter,
			parseDuration(cfg.Telemetry.Publisher.Interval, "Telemetry.Publisher.Interval"),
		)
		metricsPublisher.Start()
	}

	var backupScheduler *backup.Scheduler
	if cfg.BackupScheduler.Enabled {
		backuper, err := backup.NewBackuper(cfg.DB.Path, cfg.BackupScheduler.Dir,
			backup.WithVacuum(cfg.BackupScheduler.Vacuum),
			backup.WithCompression(cfg.BackupScheduler.Compression),
			backup.WithPruning(cfg.BackupScheduler.Pruning.Enabled, cfg.BackupScheduler.Pruning.KeepFiles),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("creating backuper")
		}
		backupScheduler = backup.NewScheduler(
			parseDuration(cfg.BackupScheduler.Interval, "BackupScheduler.Interval"), backuper, false)
		go backupScheduler.Run()
	}

	service := targetsimpl.NewTargetsService(registry, queueAdmin, newHubClient(cfg), store, sm)
	configuredRouter, err := router.ConfiguredRouter(
		cfg.HTTP.MaxRPI,
		parseDuration(cfg.HTTP.RateLimInterval, "HTTP.RateLimInterval"),
		cfg.HTTP.APIKey,
		service,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("configuring router")
	}
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           configuredRouter.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("port", cfg.HTTP.Port).Msg("could not start server")
		}
	}()
	log.Info().
		Str("version", buildinfo.GitSummary).
		Str("port", cfg.HTTP.Port).
		Msg("daemon started")

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutting down http server")
	}
	tickerCancel()
	realtimeServer.Shutdown()
	backfillServer.Shutdown()
	processorServer.Shutdown()
	processor.Stop()
	collectorCancel()
	if metricsPublisher != nil {
		metricsPublisher.Stop()
	}
	if backupScheduler != nil {
		backupScheduler.Shutdown()
	}
	if err := enqueuer.Close(); err != nil {
		log.Error().Err(err).Msg("closing enqueuer")
	}
	if err := redisClient.Close(); err != nil {
		log.Error().Err(err).Msg("closing redis client")
	}
	if err := telemetryDB.Close(); err != nil {
		log.Error().Err(err).Msg("closing telemetry database")
	}
	if err := sqliteDB.Close(); err != nil {
		log.Error().Err(err).Msg("closing database")
	}
	log.Info().Msg("daemon closed")
}

// newHubClient builds a hub client from the configured endpoints. Workers get
// their own client so per-endpoint failover state is not shared.
func newHubClient(cfg *config) hub.Client {
	if len(cfg.Hubs) == 0 {
		log.Fatal().Msg("at least one hub endpoint must be configured")
	}
	endpoints := make([]hub.Endpoint, len(cfg.Hubs))
	for i, hc := range cfg.Hubs {
		endpoint := hub.Endpoint{Name: hc.Name, URL: hc.URL}
		if hc.APIKey != "" {
			apiKey := hc.APIKey
			endpoint.RequestTransform = func(r *http.Request) {
				r.Header.Set("x-api-key", apiKey)
			}
		}
		endpoints[i] = endpoint
	}
	client, err := hubimpl.NewClient(endpoints)
	if err != nil {
		log.Fatal().Err(err).Msg("creating hub client")
	}
	return client
}

func toFIDs(raw []uint64) []castsync.FID {
	fids := make([]castsync.FID, len(raw))
	for i, v := range raw {
		fids[i] = castsync.FID(v)
	}
	return fids
}

func parseDuration(raw, name string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatal().Err(err).Msgf("%s has invalid format: %s", name, raw)
	}
	return d
}

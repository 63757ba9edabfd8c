package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"github.com/castsync/go-castsync/internal/castsync"
)

var (
	metricStore MetricStore
	log         zerolog.Logger

	mu   = &sync.Mutex{}
	once sync.Once
)

func init() {
	log = logger.With().
		Str("component", "telemetry").
		Logger()
}

// MetricStore specifies the methods for persisting a metric.
type MetricStore interface {
	StoreMetric(context.Context, Metric) error
	Close() error
}

// SetMetricStore sets the store implementation.
// Only the first call will have an effect. If Collect is called without setting a MetricStore, it will be a noop.
func SetMetricStore(s MetricStore) {
	once.Do(func() {
		metricStore = s
	})
}

// GitSummary is the build information of the running binary.
type GitSummary interface {
	GetGitCommit() string
	GetGitBranch() string
	GetGitState() string
	GetGitSummary() string
	GetBuildDate() string
	GetBinaryVersion() string
}

// SyncCursor is the realtime worker's position in the hub event stream.
type SyncCursor struct {
	LastEventID uint64
}

// BackfillSummary is the outcome of one completed backfill job.
type BackfillSummary struct {
	FID               castsync.FID
	IsRoot            bool
	Casts             int
	Reactions         int
	Links             int
	Verifications     int
	UserData          int
	OnChainEvents     int
	DiscoveredTargets int
	TookMilli         int64
}

// TargetsSummary is a snapshot of the target table counters.
type TargetsSummary struct {
	Total    int64
	Synced   int64
	Unsynced int64
	Root     int64
}

// Collect collects the metric by persisting locally for later publication.
// If Collect is called before setting the metric store, it will simply log the metric without persisting it.
func Collect(ctx context.Context, metric interface{}) error {
	mu.Lock()
	defer mu.Unlock()
	if metricStore == nil {
		log.Warn().Msg("no metric store was set")
		return nil
	}

	switch v := metric.(type) {
	case GitSummary:
		if err := metricStore.StoreMetric(ctx, Metric{
			Version:   1,
			Timestamp: time.Now().UTC(),
			Type:      GitSummaryType,
			Payload: GitSummaryMetric{
				Version:       GitSummaryMetricV1,
				GitCommit:     v.GetGitCommit(),
				GitBranch:     v.GetGitBranch(),
				GitState:      v.GetGitState(),
				GitSummary:    v.GetGitSummary(),
				BuildDate:     v.GetBuildDate(),
				BinaryVersion: v.GetBinaryVersion(),
			},
		}); err != nil {
			return errors.Errorf("store git summary metric: %s", err)
		}
		return nil
	case SyncCursor:
		if err := metricStore.StoreMetric(ctx, Metric{
			Version:   1,
			Timestamp: time.Now().UTC(),
			Type:      SyncCursorType,
			Payload: SyncCursorMetric{
				Version:     SyncCursorMetricV1,
				LastEventID: v.LastEventID,
			},
		}); err != nil {
			return errors.Errorf("store sync cursor metric: %s", err)
		}
		return nil
	case BackfillSummary:
		if err := metricStore.StoreMetric(ctx, Metric{
			Version:   1,
			Timestamp: time.Now().UTC(),
			Type:      BackfillSummaryType,
			Payload: BackfillSummaryMetric{
				Version:           BackfillSummaryMetricV1,
				FID:               v.FID,
				IsRoot:            v.IsRoot,
				Casts:             v.Casts,
				Reactions:         v.Reactions,
				Links:             v.Links,
				Verifications:     v.Verifications,
				UserData:          v.UserData,
				OnChainEvents:     v.OnChainEvents,
				DiscoveredTargets: v.DiscoveredTargets,
				TookMilli:         v.TookMilli,
			},
		}); err != nil {
			return errors.Errorf("store backfill summary metric: %s", err)
		}
		return nil
	case TargetsSummary:
		if err := metricStore.StoreMetric(ctx, Metric{
			Version:   1,
			Timestamp: time.Now().UTC(),
			Type:      TargetsSummaryType,
			Payload: TargetsSummaryMetric{
				Version:  TargetsSummaryMetricV1,
				Total:    v.Total,
				Synced:   v.Synced,
				Unsynced: v.Unsynced,
				Root:     v.Root,
			},
		}); err != nil {
			return errors.Errorf("store targets summary metric: %s", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown metric type %T", v)
	}
}

// Package targetscollector captures target table metrics with a defined frequency.
package targetscollector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"github.com/castsync/go-castsync/pkg/sqlstore"
	"github.com/castsync/go-castsync/pkg/telemetry"
)

// TargetsCollector snapshots the target table counters with a defined frequency.
type TargetsCollector struct {
	log              zerolog.Logger
	store            sqlstore.TargetStore
	collectFrequency time.Duration
}

// New returns a new *TargetsCollector.
func New(store sqlstore.TargetStore, collectFrequency time.Duration) (*TargetsCollector, error) {
	if collectFrequency <= time.Second {
		return nil, fmt.Errorf("collect frequency should be greater than one second")
	}
	return &TargetsCollector{
		log:              logger.With().Str("component", "targetscollector").Logger(),
		store:            store,
		collectFrequency: collectFrequency,
	}, nil
}

// Start starts collecting target metrics until the context is canceled.
func (tc *TargetsCollector) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			tc.log.Info().Msg("gracefully closed")
			return
		case <-time.After(tc.collectFrequency):
			_, counts, err := tc.store.ListTargets(ctx, sqlstore.ListTargetsParams{Limit: 1})
			if err != nil {
				tc.log.Error().Err(err).Msg("counting targets")
				continue
			}
			metric := telemetry.TargetsSummary{
				Total:    counts.Total,
				Synced:   counts.Synced,
				Unsynced: counts.Unsynced,
				Root:     counts.Root,
			}
			if err := telemetry.Collect(ctx, metric); err != nil {
				tc.log.Error().Err(err).Msg("collecting targets summary metric")
			}
		}
	}
}

package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/castsync/go-castsync/pkg/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
)

func (w *Worker) initMetrics() error {
	meter := global.MeterProvider().Meter("castsync")

	var err error
	w.mJobCount, err = meter.Int64Counter("castsync.backfill.job.count")
	if err != nil {
		return fmt.Errorf("creating job count instrument: %s", err)
	}
	w.mJobDuration, err = meter.Int64Histogram("castsync.backfill.job.duration")
	if err != nil {
		return fmt.Errorf("creating job duration instrument: %s", err)
	}
	w.mRowsWritten, err = meter.Int64Counter("castsync.backfill.rows.count")
	if err != nil {
		return fmt.Errorf("creating rows written instrument: %s", err)
	}

	return nil
}

func (w *Worker) recordJob(took time.Duration, success bool) {
	attributes := append([]attribute.KeyValue{
		{Key: "success", Value: attribute.BoolValue(success)},
	}, metrics.BaseAttrs...)

	ctx := context.Background()
	w.mJobCount.Add(ctx, 1, attributes...)
	w.mJobDuration.Record(ctx, took.Milliseconds(), attributes...)
}

func (w *Worker) recordRows(count int) {
	w.mRowsWritten.Add(context.Background(), int64(count), metrics.BaseAttrs...)
}

package realtime

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
	w.mEventCount, err = meter.Int64Counter("castsync.realtime.event.count")
	if err != nil {
		return fmt.Errorf("creating event count instrument: %s", err)
	}
	w.mTickDuration, err = meter.Int64Histogram("castsync.realtime.tick.duration")
	if err != nil {
		return fmt.Errorf("creating tick duration instrument: %s", err)
	}

	return nil
}

func (w *Worker) recordEvent(relevant bool) {
	attributes := append([]attribute.KeyValue{
		{Key: "relevant", Value: attribute.BoolValue(relevant)},
	}, metrics.BaseAttrs...)

	w.mEventCount.Add(context.Background(), 1, attributes...)
}

func (w *Worker) recordTick(took time.Duration) {
	w.mTickDuration.Record(context.Background(), took.Milliseconds(), metrics.BaseAttrs...)
}

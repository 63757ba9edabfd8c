package impl

import (
	"context"
	"fmt"
	"time"

	"github.com/castsync/go-castsync/pkg/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
)

func (ep *EventProcessor) initMetrics() error {
	meter := global.MeterProvider().Meter("castsync")

	// Async instruments.
	mBufferedRows, err := meter.Int64ObservableGauge("castsync.eventprocessor.buffered.rows")
	if err != nil {
		return fmt.Errorf("creating buffered rows gauge: %s", err)
	}
	_, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(mBufferedRows, ep.mBufferedRows.Load(), metrics.BaseAttrs...)
			return nil
		},
		mBufferedRows,
	)
	if err != nil {
		return fmt.Errorf("registering async metric callback: %s", err)
	}

	// Sync instruments.
	ep.mEventCount, err = meter.Int64Counter("castsync.eventprocessor.event.count")
	if err != nil {
		return fmt.Errorf("creating event count instrument: %s", err)
	}
	ep.mFlushLatency, err = meter.Int64Histogram("castsync.eventprocessor.flush.latency")
	if err != nil {
		return fmt.Errorf("creating flush latency instrument: %s", err)
	}

	return nil
}

func (ep *EventProcessor) recordEvent(kind string) {
	attributes := append([]attribute.KeyValue{
		{Key: "kind", Value: attribute.StringValue(kind)},
	}, metrics.BaseAttrs...)

	ep.mEventCount.Add(context.Background(), 1, attributes...)
}

func (ep *EventProcessor) recordFlush(took time.Duration) {
	ep.mFlushLatency.Record(context.Background(), took.Milliseconds(), metrics.BaseAttrs...)
}

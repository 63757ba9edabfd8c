package impl

import (
	"context"
	"fmt"
	"time"

	"github.com/castsync/go-castsync/pkg/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
)

func (c *Client) initMetrics() error {
	meter := global.MeterProvider().Meter("castsync")

	var err error
	c.mRequestCount, err = meter.Int64Counter("castsync.hub.request.count")
	if err != nil {
		return fmt.Errorf("creating request count instrument: %s", err)
	}
	c.mRequestLatency, err = meter.Int64Histogram("castsync.hub.request.latency")
	if err != nil {
		return fmt.Errorf("creating request latency instrument: %s", err)
	}

	return nil
}

func (c *Client) recordRequest(hubName string, latency time.Duration, success bool) {
	attributes := append([]attribute.KeyValue{
		{Key: "hub", Value: attribute.StringValue(hubName)},
		{Key: "success", Value: attribute.BoolValue(success)},
	}, metrics.BaseAttrs...)

	ctx := context.Background()
	c.mRequestCount.Add(ctx, 1, attributes...)
	c.mRequestLatency.Record(ctx, latency.Milliseconds(), attributes...)
}

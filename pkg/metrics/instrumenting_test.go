package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/global"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestRuntimeInstruments(t *testing.T) {
	provider := sdkmetric.NewMeterProvider()
	global.SetMeterProvider(provider)

	require.NoError(t, startCollectingRuntimeMetrics())
	require.NoError(t, startCollectingMemoryMetrics())
}

package publisher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/castsync/go-castsync/pkg/telemetry"
)

func TestPublisher(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Api-Key") != "metricshub-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	exporter, err := NewHTTPExporter(ts.URL, "node-1", "metricshub-key")
	require.NoError(t, err)
	store := newStore()

	p := NewPublisher(store, exporter, 100*time.Millisecond)
	p.Start()

	require.Eventually(t, func() bool {
		return store.Len() == 0
	}, 5*time.Second, 100*time.Millisecond)

	p.Stop()
}

func TestPublisherExportFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	exporter, err := NewHTTPExporter(ts.URL, "node-1", "metricshub-key")
	require.NoError(t, err)
	store := newStore()

	p := NewPublisher(store, exporter, 100*time.Millisecond)
	p.Start()
	defer p.Stop()

	// Failed exports must leave the metrics unpublished.
	time.Sleep(500 * time.Millisecond)
	require.Equal(t, 1, store.Len())
}

type store struct {
	mu          sync.Mutex
	unpublished []telemetry.Metric
}

func newStore() *store {
	s := &store{}
	s.unpublished = []telemetry.Metric{
		{
			RowID:     1,
			Version:   1,
			Timestamp: time.Now().UTC(),
			Type:      telemetry.SyncCursorType,
			Payload: telemetry.SyncCursorMetric{
				Version:     telemetry.SyncCursorMetricV1,
				LastEventID: 42,
			},
		},
	}
	return s
}

func (s *store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unpublished)
}

func (s *store) FetchUnpublishedMetrics(_ context.Context, _ int) ([]telemetry.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unpublished, nil
}

func (s *store) MarkAsPublished(_ context.Context, _ []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unpublished = []telemetry.Metric{}
	return nil
}

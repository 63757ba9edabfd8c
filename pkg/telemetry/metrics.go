package telemetry

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/castsync/go-castsync/internal/castsync"
)

// MetricType defines the metric type.
type MetricType int

const (
	// GitSummaryType is the type for the GitSummaryMetric.
	GitSummaryType MetricType = iota
	// SyncCursorType is the type for the SyncCursorMetric.
	SyncCursorType
	// BackfillSummaryType is the type for the BackfillSummaryMetric.
	BackfillSummaryType
	// TargetsSummaryType is the type for the TargetsSummaryMetric.
	TargetsSummaryType
)

// Metric defines a metric.
type Metric struct {
	RowID     int64       `json:"-"`
	Version   int         `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Type      MetricType  `json:"type"`
	Payload   interface{} `json:"payload"`
}

// Serialize serializes the metric.
func (m Metric) Serialize() ([]byte, error) {
	b, err := json.Marshal(m.Payload)
	if err != nil {
		return []byte(nil), errors.Errorf("marshal: %s", err)
	}

	return b, nil
}

// GitSummaryMetricVersion is a type for versioning GitSummary metrics.
type GitSummaryMetricVersion int64

// GitSummaryMetricV1 is the V1 version of GitSummary metric.
const GitSummaryMetricV1 GitSummaryMetricVersion = iota

// GitSummaryMetric contains Git information of the binary.
type GitSummaryMetric struct {
	Version GitSummaryMetricVersion `json:"version"`

	GitCommit     string `json:"git_commit"`
	GitBranch     string `json:"git_branch"`
	GitState      string `json:"git_state"`
	GitSummary    string `json:"git_summary"`
	BuildDate     string `json:"build_date"`
	BinaryVersion string `json:"binary_version"`
}

// SyncCursorMetricVersion is a type for versioning SyncCursor metrics.
type SyncCursorMetricVersion int64

// SyncCursorMetricV1 is the V1 version of SyncCursor metric.
const SyncCursorMetricV1 SyncCursorMetricVersion = iota

// SyncCursorMetric reports how far the realtime worker has read the hub
// event stream.
type SyncCursorMetric struct {
	Version SyncCursorMetricVersion `json:"version"`

	LastEventID uint64 `json:"last_event_id"`
}

// BackfillSummaryMetricVersion is a type for versioning BackfillSummary metrics.
type BackfillSummaryMetricVersion int64

// BackfillSummaryMetricV1 is the V1 version of BackfillSummary metric.
const BackfillSummaryMetricV1 BackfillSummaryMetricVersion = iota

// BackfillSummaryMetric summarizes one completed backfill job.
type BackfillSummaryMetric struct {
	Version BackfillSummaryMetricVersion `json:"version"`

	FID               castsync.FID `json:"fid"`
	IsRoot            bool         `json:"is_root"`
	Casts             int          `json:"casts"`
	Reactions         int          `json:"reactions"`
	Links             int          `json:"links"`
	Verifications     int          `json:"verifications"`
	UserData          int          `json:"user_data"`
	OnChainEvents     int          `json:"onchain_events"`
	DiscoveredTargets int          `json:"discovered_targets"`
	TookMilli         int64        `json:"took_milli"`
}

// TargetsSummaryMetricVersion is a type for versioning TargetsSummary metrics.
type TargetsSummaryMetricVersion int64

// TargetsSummaryMetricV1 is the V1 version of TargetsSummary metric.
const TargetsSummaryMetricV1 TargetsSummaryMetricVersion = iota

// TargetsSummaryMetric reports the size and sync progress of the target set.
type TargetsSummaryMetric struct {
	Version TargetsSummaryMetricVersion `json:"version"`

	Total    int64 `json:"total"`
	Synced   int64 `json:"synced"`
	Unsynced int64 `json:"unsynced"`
	Root     int64 `json:"root"`
}

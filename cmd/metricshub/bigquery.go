package main

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
)

// bigQueryStore implements the Store interface for inserting metrics into BigQuery.
type bigQueryStore struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// newBigQueryStore creates a BigQuery-backed store with a shared client.
func newBigQueryStore(ctx context.Context, project, dataset, table string) (*bigQueryStore, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %s", err)
	}
	return &bigQueryStore{
		client:  client,
		dataset: dataset,
		table:   table,
	}, nil
}

// Insert insert payload from a Request into Bigquery.
func (s *bigQueryStore) insert(ctx context.Context, req request) error {
	rows, err := s.toBigQueryRows(req)
	if err != nil {
		return fmt.Errorf("to bigquery rows: %s", err)
	}

	inserter := s.client.Dataset(s.dataset).Table(s.table).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("inserter put: %s", err)
	}
	return nil
}

func (s *bigQueryStore) toBigQueryRows(req request) ([]*row, error) {
	rows := make([]*row, len(req.Metrics))

	for i, m := range req.Metrics {
		payload, err := m.Serialize()
		if err != nil {
			return []*row{}, fmt.Errorf("serialize: %s", err)
		}
		rows[i] = &row{
			Version:   m.Version,
			Timestamp: strings.TrimSuffix(m.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"), "Z"), // RFC3339 mili without Z
			Type:      int(m.Type),
			Payload:   string(payload),
			NodeID:    req.NodeID,
		}
	}
	return rows, nil
}

// row represents a row in BigQuery.
type row struct {
	Version   int
	Timestamp string
	Type      int
	Payload   string
	NodeID    string
}

// Save implements the ValueSaver interface. Publishers deliver at least once,
// so the insert id dedupes re-sent metrics.
func (r *row) Save() (map[string]bigquery.Value, string, error) { // nolint
	return map[string]bigquery.Value{
		"version":   r.Version,
		"timestamp": r.Timestamp,
		"type":      r.Type,
		"payload":   r.Payload,
		"node_id":   r.NodeID,
	}, fmt.Sprintf("%s:%d:%s", r.NodeID, r.Type, r.Timestamp), nil
}

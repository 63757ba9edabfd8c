package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3" // migration for sqlite3
	bindata "github.com/golang-migrate/migrate/v4/source/go_bindata"

	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"github.com/castsync/go-castsync/pkg/telemetry"
	"github.com/castsync/go-castsync/pkg/telemetry/storage/migrations"
	"go.opentelemetry.io/otel/attribute"
)

// TelemetryDatabase implements the MetricStore interface and provides storage for a metric.
type TelemetryDatabase struct {
	log   zerolog.Logger
	sqlDB *sql.DB
}

// New returns a new TelemetryDatabase backed by database/sql.
func New(dbURI string) (*TelemetryDatabase, error) {
	sqlDB, err := otelsql.Open("sqlite3", dbURI, otelsql.WithAttributes(
		attribute.String("name", "telemetrydb"),
	))
	if err != nil {
		return nil, fmt.Errorf("connecting to db: %s", err)
	}
	sqlDB.SetMaxIdleConns(0)
	if err := otelsql.RegisterDBStatsMetrics(sqlDB, otelsql.WithAttributes(
		attribute.String("name", "telemetrydb"),
	)); err != nil {
		return nil, fmt.Errorf("registering dbstats: %s", err)
	}

	log := logger.With().
		Str("component", "telemetrydb").
		Logger()

	db := &TelemetryDatabase{
		log:   log,
		sqlDB: sqlDB,
	}

	as := bindata.Resource(migrations.AssetNames(), migrations.Asset)
	if err := db.executeMigration(dbURI, as); err != nil {
		return nil, fmt.Errorf("initializing db connection: %s", err)
	}

	return db, nil
}

// StoreMetric persists a metric.
func (db *TelemetryDatabase) StoreMetric(ctx context.Context, metric telemetry.Metric) error {
	payloadJSON, err := metric.Serialize()
	if err != nil {
		return fmt.Errorf("marshal json: %s", err)
	}

	_, err = db.sqlDB.ExecContext(ctx,
		`INSERT INTO system_telemetry ("version", "timestamp", "type", "payload", "published") VALUES (?1, ?2, ?3, ?4, ?5)`,
		metric.Version, metric.Timestamp.UnixMilli(), metric.Type, payloadJSON, 0,
	)
	if err != nil {
		return fmt.Errorf("insert into system_telemetry: %s", err)
	}

	return nil
}

// FetchUnpublishedMetrics returns up to amount metrics not yet published.
func (db *TelemetryDatabase) FetchUnpublishedMetrics(ctx context.Context, amount int) ([]telemetry.Metric, error) {
	rows, err := db.sqlDB.QueryContext(ctx,
		`SELECT id, version, timestamp, type, payload FROM system_telemetry WHERE published = 0 ORDER BY id LIMIT ?1`,
		amount,
	)
	if err != nil {
		return nil, fmt.Errorf("select from system_telemetry: %s", err)
	}
	defer func() { _ = rows.Close() }()

	var metrics []telemetry.Metric
	for rows.Next() {
		var metric telemetry.Metric
		var timestampMilli int64
		var payload []byte
		if err := rows.Scan(&metric.RowID, &metric.Version, &timestampMilli, &metric.Type, &payload); err != nil {
			return nil, fmt.Errorf("scan row: %s", err)
		}
		metric.Timestamp = milliToTime(timestampMilli)

		var decoded json.RawMessage
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %s", err)
		}
		metric.Payload = decoded
		metrics = append(metrics, metric)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %s", err)
	}

	return metrics, nil
}

// MarkAsPublished marks the metrics with the given row ids as published.
func (db *TelemetryDatabase) MarkAsPublished(ctx context.Context, rowIDs []int64) error {
	if len(rowIDs) == 0 {
		return nil
	}

	placeholders := make([]string, len(rowIDs))
	args := make([]interface{}, len(rowIDs))
	for i, id := range rowIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(
		"UPDATE system_telemetry SET published = 1 WHERE id IN (%s)",
		strings.Join(placeholders, ","))
	if _, err := db.sqlDB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update system_telemetry: %s", err)
	}

	return nil
}

func milliToTime(milli int64) time.Time {
	return time.UnixMilli(milli).UTC()
}

// Close closes the database.
func (db *TelemetryDatabase) Close() error {
	if err := db.sqlDB.Close(); err != nil {
		return fmt.Errorf("close: %s", err)
	}

	return nil
}

// executeMigration run db migrations and return a ready to use connection to the SQLite database.
func (db *TelemetryDatabase) executeMigration(dbURI string, as *bindata.AssetSource) error {
	d, err := bindata.WithInstance(as)
	if err != nil {
		return fmt.Errorf("creating source driver: %s", err)
	}

	m, err := migrate.NewWithSourceInstance("go-bindata", d, "sqlite3://"+dbURI)
	if err != nil {
		return fmt.Errorf("creating migration: %s", err)
	}
	version, dirty, err := m.Version()
	db.log.Info().
		Uint("dbVersion", version).
		Bool("dirty", dirty).
		Err(err).
		Msg("database migration executed")

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migration up: %s", err)
	}

	return nil
}

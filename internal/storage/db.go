// Package storage provides the SQLite log store for the DrTrace daemon.
//
// It manages a single database/sql handle (modernc.org/sqlite, WAL mode),
// an internal write mutex so concurrent ingest handlers serialize cleanly,
// batched transactional appends, and the time-indexed query path.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"
	_ "modernc.org/sqlite"

	"github.com/drtrace/drtrace/internal/telemetry"
)

// DB wraps the SQLite handle for the log store.
type DB struct {
	sql    *sql.DB
	logger *slog.Logger

	// writeMu serializes write transactions. SQLite allows a single writer;
	// funneling writers through one mutex avoids SQLITE_BUSY churn under
	// concurrent ingest handlers.
	writeMu sync.Mutex

	appendCounter metric.Int64Counter
}

// Open creates (or opens) the store at path. Use ":memory:" for an
// in-process ephemeral store in tests.
func Open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	if path == ":memory:" {
		// A shared-cache in-memory DB keeps all pool connections on the same data.
		dsn = "file::memory:?mode=memory&cache=shared&_pragma=busy_timeout(5000)"
	}

	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	// WAL mode supports parallel readers but still one writer; a small pool
	// is enough and keeps lock contention predictable.
	handle.SetMaxOpenConns(4)

	if err := handle.PingContext(ctx); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("storage: ping %s: %w", path, err)
	}

	db := &DB{sql: handle, logger: logger}
	return db, nil
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.sql.PingContext(ctx)
}

// Close shuts down the underlying handle.
func (db *DB) Close() error {
	return db.sql.Close()
}

// RegisterMetrics registers OTEL instruments for store health monitoring.
// Call after the global meter provider has been initialized.
func (db *DB) RegisterMetrics() {
	meter := telemetry.Meter("drtrace/storage")

	_, _ = meter.Int64ObservableGauge("drtrace.store.records",
		metric.WithDescription("Current number of stored log records"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			n, err := db.CountRecords(ctx)
			if err != nil {
				return nil // gauge is best-effort
			}
			o.Observe(n)
			return nil
		}),
	)

	counter, err := meter.Int64Counter("drtrace.store.appended_total",
		metric.WithDescription("Total log records accepted by the store"),
	)
	if err == nil {
		db.appendCounter = counter
	}
}

// CountRecords returns the total number of stored records.
func (db *DB) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count records: %w", err)
	}
	return n, nil
}

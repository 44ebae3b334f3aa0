// Package retention runs the periodic deletion of expired log records.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/drtrace/drtrace/internal/storage"
)

const secondsPerDay = 86400

// Worker deletes records older than the configured window on a fixed period.
// Deletion is chunked inside the store, so a run never blocks ingest or
// query for more than one chunk.
type Worker struct {
	db       *storage.DB
	logger   *slog.Logger
	days     int
	interval time.Duration

	done chan struct{}
}

// NewWorker creates a retention worker. days is the retention window;
// interval is how often a purge cycle runs.
func NewWorker(db *storage.DB, logger *slog.Logger, days int, interval time.Duration) *Worker {
	return &Worker{
		db:       db,
		logger:   logger,
		days:     days,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the background purge loop. The loop exits when ctx is
// cancelled; Wait blocks until it has fully stopped.
func (w *Worker) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Wait blocks until the purge loop has exited.
func (w *Worker) Wait() {
	<-w.done
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single purge cycle: cutoff = now − days × 86400.
func (w *Worker) RunOnce(ctx context.Context) {
	cutoff := float64(time.Now().UTC().UnixNano())/1e9 - float64(w.days)*secondsPerDay

	start := time.Now()
	deleted, err := w.db.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		w.logger.Warn("retention purge failed", "error", err, "deleted_before_failure", deleted)
		return
	}
	if deleted > 0 {
		w.logger.Info("retention purge complete",
			"deleted", deleted,
			"retention_days", w.days,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

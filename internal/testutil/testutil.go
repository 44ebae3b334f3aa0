// Package testutil provides shared test infrastructure: an ephemeral
// migrated store and a quiet logger.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/drtrace/drtrace/internal/storage"
	"github.com/drtrace/drtrace/migrations"
)

// NewLogger returns a logger that discards everything. Handler output is
// noise in test runs; failures speak through assertions.
func NewLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OpenStore opens a file-backed store under t.TempDir, runs migrations, and
// registers cleanup. A file path rather than :memory: keeps each test's
// store isolated even when tests share a process.
func OpenStore(t *testing.T) *storage.DB {
	t.Helper()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "drtrace.db")

	db, err := storage.Open(ctx, path, NewLogger(t))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}

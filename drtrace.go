// Package drtrace is the public API for embedding the DrTrace log daemon.
//
// Consumers import this package to run the daemon in-process:
//
//	app, err := drtrace.New(
//	    drtrace.WithVersion(version),
//	    drtrace.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: drtrace (root) imports
// internal/*, but internal/* never imports drtrace (root).
package drtrace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/drtrace/drtrace/api"
	"github.com/drtrace/drtrace/internal/config"
	"github.com/drtrace/drtrace/internal/server"
	"github.com/drtrace/drtrace/internal/service/retention"
	"github.com/drtrace/drtrace/internal/storage"
	"github.com/drtrace/drtrace/internal/telemetry"
	"github.com/drtrace/drtrace/migrations"
)

// App is the DrTrace daemon lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	ret          *retention.Worker
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the daemon. It opens the store, runs migrations, and wires
// all subsystems. It does NOT start any goroutines or accept HTTP
// connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.host != "" {
		cfg.Host = o.host
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databasePath != "" {
		cfg.DatabasePath = o.databasePath
	}
	if o.retentionDays != 0 {
		cfg.RetentionDays = o.retentionDays
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("options: %w", err)
		}
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("drtrace starting", "version", version, "host", cfg.Host, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.Open(context.Background(), cfg.DatabasePath, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		_ = db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}
	db.RegisterMetrics()

	ret := retention.NewWorker(db, logger, cfg.RetentionDays, cfg.RetentionInterval)

	srv := server.New(server.ServerConfig{
		DB:                  db,
		Logger:              logger,
		Host:                cfg.Host,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		RetentionDays:       cfg.RetentionDays,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		ret:          ret,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Handler returns the daemon's root HTTP handler for in-process tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the retention worker and the HTTP server, then blocks until
// ctx is cancelled or a fatal server error occurs. On return, Shutdown has
// been performed — callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.ret.Start(runCtx)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Block until signal or fatal server error.
	select {
	case <-ctx.Done():
	case <-gctx.Done():
	}

	shutdownErr := a.Shutdown(context.Background())
	cancel()
	a.ret.Wait()
	if err := g.Wait(); err != nil {
		return err
	}
	return shutdownErr
}

// Shutdown performs a two-phase graceful shutdown:
// (1) stop accepting HTTP requests and drain in-flight,
// (2) close the store and the telemetry providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("drtrace shutting down")

	httpCtx, httpCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	_ = a.otelShutdown(context.Background())
	if err := a.db.Close(); err != nil {
		a.logger.Warn("store close error", "error", err)
	}

	a.logger.Info("drtrace stopped")
	return nil
}

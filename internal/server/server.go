package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/drtrace/drtrace/internal/storage"
)

// Server is the DrTrace daemon HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	DB     *storage.DB
	Logger *slog.Logger

	Host                string
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	RetentionDays       int
	MaxRequestBodyBytes int64

	// Embedded OpenAPI JSON served at /openapi.json.
	OpenAPISpec []byte
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:            cfg.DB,
		Logger:        cfg.Logger,
		Version:       cfg.Version,
		Host:          cfg.Host,
		Port:          cfg.Port,
		RetentionDays: cfg.RetentionDays,
		OpenAPISpec:   cfg.OpenAPISpec,
	})

	mux := http.NewServeMux()

	// Ingestion. Body size is capped so one oversized batch cannot exhaust memory.
	mux.Handle("POST /logs/ingest", maxBodyBytes(cfg.MaxRequestBodyBytes, http.HandlerFunc(h.HandleIngest)))

	// Query.
	mux.HandleFunc("GET /logs/query", h.HandleQuery)

	// Administrative purge.
	mux.HandleFunc("POST /logs/clear", h.HandleClear)

	// Schema publisher and liveness.
	mux.HandleFunc("GET /openapi.json", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /status", h.HandleStatus)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// maxBodyBytes limits the request body to n bytes.
func maxBodyBytes(n int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, n)
		}
		next.ServeHTTP(w, r)
	})
}

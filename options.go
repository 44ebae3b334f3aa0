package drtrace

import "log/slog"

// Option configures New.
type Option func(*resolvedOptions)

type resolvedOptions struct {
	logger        *slog.Logger
	version       string
	host          string
	port          int
	databasePath  string
	retentionDays int
}

// WithLogger sets the structured logger used by all daemon subsystems.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = l }
}

// WithVersion sets the version string reported by /status.
func WithVersion(v string) Option {
	return func(o *resolvedOptions) { o.version = v }
}

// WithListenAddr overrides the bind host and port from configuration.
func WithListenAddr(host string, port int) Option {
	return func(o *resolvedOptions) {
		o.host = host
		o.port = port
	}
}

// WithDatabasePath overrides the SQLite store location. Use ":memory:" for
// an ephemeral store.
func WithDatabasePath(path string) Option {
	return func(o *resolvedOptions) { o.databasePath = path }
}

// WithRetentionDays overrides the retention window.
func WithRetentionDays(days int) Option {
	return func(o *resolvedOptions) { o.retentionDays = days }
}

// Package config loads the daemon configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Retention window bounds in days.
const (
	MinRetentionDays     = 1
	MaxRetentionDays     = 365
	DefaultRetentionDays = 7
)

// Config holds all daemon configuration.
type Config struct {
	// Server settings.
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Store settings.
	DatabasePath string

	// Retention settings.
	RetentionDays     int
	RetentionInterval time.Duration

	// Request limits.
	MaxRequestBodyBytes int64

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Host:                envStr("DRTRACE_DAEMON_HOST", "127.0.0.1"),
		Port:                envInt("DRTRACE_DAEMON_PORT", 8001),
		ReadTimeout:         envDuration("DRTRACE_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("DRTRACE_WRITE_TIMEOUT", 30*time.Second),
		DatabasePath:        envStr("DRTRACE_DB_PATH", "drtrace.db"),
		RetentionDays:       envInt("DRTRACE_RETENTION_DAYS", DefaultRetentionDays),
		RetentionInterval:   envDuration("DRTRACE_RETENTION_INTERVAL", time.Hour),
		MaxRequestBodyBytes: int64(envInt("DRTRACE_MAX_REQUEST_BODY_BYTES", 10*1024*1024)),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "drtrace"),
		LogLevel:            envStr("DRTRACE_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that configuration values are inside their allowed ranges.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: DRTRACE_DAEMON_PORT must be in 1..65535, got %d", c.Port)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("config: DRTRACE_DB_PATH is required")
	}
	if c.RetentionDays < MinRetentionDays || c.RetentionDays > MaxRetentionDays {
		return fmt.Errorf("config: DRTRACE_RETENTION_DAYS must be in %d..%d, got %d",
			MinRetentionDays, MaxRetentionDays, c.RetentionDays)
	}
	if c.RetentionInterval <= 0 {
		return fmt.Errorf("config: DRTRACE_RETENTION_INTERVAL must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: DRTRACE_MAX_REQUEST_BODY_BYTES must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

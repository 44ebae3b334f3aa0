package drtrace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the resolved client settings. Resolution happens once at
// client construction; later environment changes do not affect a live client.
type Config struct {
	// ApplicationID is the logical partition key attached to every record.
	ApplicationID string

	// DaemonURL is the full ingest endpoint, not a base URL.
	DaemonURL string

	// ServiceName is an optional coarser grouping attached to every record.
	ServiceName string

	// Enabled gates the whole pipeline. When false, every log call is a no-op.
	Enabled bool

	// MinLevel drops records below this level before they reach the buffer.
	MinLevel Level

	// BatchSize is the size-triggered flush threshold.
	BatchSize int

	// FlushInterval is the time-triggered flush period.
	FlushInterval time.Duration

	// MaxBufferSize caps the pending-record buffer. 0 means unbounded.
	MaxBufferSize int

	// HTTPTimeout is the per-attempt transport deadline.
	HTTPTimeout time.Duration

	// RetryBackoff is the base backoff; attempt n sleeps RetryBackoff * n.
	RetryBackoff time.Duration

	// MaxRetries is the total attempts per batch.
	MaxRetries int

	// CircuitResetInterval is the cooldown between probes while the circuit
	// is open.
	CircuitResetInterval time.Duration
}

// DefaultConfig returns the hard-coded defaults, the lowest-priority layer
// of resolution.
func DefaultConfig() Config {
	return Config{
		ApplicationID:        "my-app",
		DaemonURL:            "http://localhost:8001/logs/ingest",
		Enabled:              true,
		MinLevel:             LevelDebug,
		BatchSize:            10,
		FlushInterval:        5 * time.Second,
		MaxBufferSize:        10000,
		HTTPTimeout:          1 * time.Second,
		RetryBackoff:         100 * time.Millisecond,
		MaxRetries:           3,
		CircuitResetInterval: 30 * time.Second,
	}
}

// configFileName is looked up under a "_drtrace" directory at the working
// directory or any of its ancestors.
const (
	configDirName  = "_drtrace"
	configFileName = "config.json"
)

// fileConfig is the on-disk shape of _drtrace/config.json. Durations are
// milliseconds. Pointer fields distinguish "absent" from zero values.
type fileConfig struct {
	ApplicationID   *string `json:"application_id"`
	DaemonURL       *string `json:"daemon_url"`
	ServiceName     *string `json:"service_name"`
	Enabled         *bool   `json:"enabled"`
	MinLevel        *string `json:"min_level"`
	BatchSize       *int    `json:"batch_size"`
	FlushIntervalMS *int    `json:"flush_interval"`
	MaxBufferSize   *int    `json:"max_buffer_size"`
	HTTPTimeoutMS   *int    `json:"http_timeout"`
	RetryBackoffMS  *int    `json:"retry_backoff"`
	MaxRetries      *int    `json:"max_retries"`
	CircuitResetMS  *int    `json:"circuit_reset_interval"`
}

// ResolveConfig merges environment variables, the project config file, and
// defaults. Priority, highest first: environment, file, default. Invalid or
// non-parseable values fall back to the next layer without failing.
func ResolveConfig() Config {
	cfg := DefaultConfig()
	applyFileConfig(&cfg)
	applyEnvConfig(&cfg)
	cfg.sanitize()
	return cfg
}

// findConfigFile walks from the working directory toward the filesystem root
// looking for _drtrace/config.json. Returns "" when none exists.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, configDirName, configFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func applyFileConfig(cfg *Config) {
	path := findConfigFile()
	if path == "" {
		return
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return
	}

	if fc.ApplicationID != nil && *fc.ApplicationID != "" {
		cfg.ApplicationID = *fc.ApplicationID
	}
	if fc.DaemonURL != nil && *fc.DaemonURL != "" {
		cfg.DaemonURL = *fc.DaemonURL
	}
	if fc.ServiceName != nil {
		cfg.ServiceName = *fc.ServiceName
	}
	if fc.Enabled != nil {
		cfg.Enabled = *fc.Enabled
	}
	if fc.MinLevel != nil {
		if lvl, ok := ParseLevel(*fc.MinLevel); ok {
			cfg.MinLevel = lvl
		}
	}
	if fc.BatchSize != nil && *fc.BatchSize > 0 {
		cfg.BatchSize = *fc.BatchSize
	}
	if fc.FlushIntervalMS != nil && *fc.FlushIntervalMS > 0 {
		cfg.FlushInterval = time.Duration(*fc.FlushIntervalMS) * time.Millisecond
	}
	if fc.MaxBufferSize != nil && *fc.MaxBufferSize >= 0 {
		cfg.MaxBufferSize = *fc.MaxBufferSize
	}
	if fc.HTTPTimeoutMS != nil && *fc.HTTPTimeoutMS > 0 {
		cfg.HTTPTimeout = time.Duration(*fc.HTTPTimeoutMS) * time.Millisecond
	}
	if fc.RetryBackoffMS != nil && *fc.RetryBackoffMS > 0 {
		cfg.RetryBackoff = time.Duration(*fc.RetryBackoffMS) * time.Millisecond
	}
	if fc.MaxRetries != nil && *fc.MaxRetries > 0 {
		cfg.MaxRetries = *fc.MaxRetries
	}
	if fc.CircuitResetMS != nil && *fc.CircuitResetMS > 0 {
		cfg.CircuitResetInterval = time.Duration(*fc.CircuitResetMS) * time.Millisecond
	}
}

func applyEnvConfig(cfg *Config) {
	if v := os.Getenv("DRTRACE_APPLICATION_ID"); v != "" {
		cfg.ApplicationID = v
	}
	if v := os.Getenv("DRTRACE_DAEMON_URL"); v != "" {
		cfg.DaemonURL = v
	}
	if v := os.Getenv("DRTRACE_SERVICE_NAME"); v != "" {
		cfg.ServiceName = v
	}
	if v := os.Getenv("DRTRACE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Enabled = b
		}
	}
	if v := os.Getenv("DRTRACE_MIN_LEVEL"); v != "" {
		if lvl, ok := ParseLevel(v); ok {
			cfg.MinLevel = lvl
		}
	}
	if v, ok := envInt("DRTRACE_MAX_BUFFER_SIZE"); ok && v >= 0 {
		cfg.MaxBufferSize = v
	}
	if v, ok := envInt("DRTRACE_HTTP_TIMEOUT_MS"); ok && v > 0 {
		cfg.HTTPTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("DRTRACE_RETRY_BACKOFF_MS"); ok && v > 0 {
		cfg.RetryBackoff = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("DRTRACE_MAX_RETRIES"); ok && v > 0 {
		cfg.MaxRetries = v
	}
	if v, ok := envInt("DRTRACE_CIRCUIT_RESET_MS"); ok && v > 0 {
		cfg.CircuitResetInterval = time.Duration(v) * time.Millisecond
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// sanitize repairs values that no layer set to something usable. The client
// must never fail to construct over configuration.
func (c *Config) sanitize() {
	def := DefaultConfig()
	if c.ApplicationID == "" {
		c.ApplicationID = def.ApplicationID
	}
	if c.DaemonURL == "" {
		c.DaemonURL = def.DaemonURL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.MaxBufferSize < 0 {
		c.MaxBufferSize = def.MaxBufferSize
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = def.HTTPTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.CircuitResetInterval <= 0 {
		c.CircuitResetInterval = def.CircuitResetInterval
	}
}

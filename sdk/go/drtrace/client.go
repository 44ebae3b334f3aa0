// Package drtrace provides the Go client for the DrTrace log daemon.
//
// A Client buffers records in memory and ships them to the daemon in
// batches from a single background worker. Logging calls never block on
// network I/O and never return errors; delivery problems are absorbed by
// retries, a circuit breaker, and bounded drop-oldest buffering.
package drtrace

import (
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Client is the ingestion pipeline: record builder, bounded buffer,
// background flusher, and HTTP transport. All methods are safe for
// concurrent use.
type Client struct {
	cfg        Config
	moduleName string

	buf *buffer
	tr  *transport

	flushCh chan struct{}
	stop    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
}

// Option customises New.
type Option func(*Client)

// WithConfig bypasses environment and file resolution entirely. Intended
// for tests and embedders that manage configuration themselves.
func WithConfig(cfg Config) Option {
	return func(c *Client) {
		cfg.sanitize()
		c.cfg = cfg
	}
}

// WithModuleName fixes the module_name attached to every record. Without
// it, the module name is derived from the calling function's package.
func WithModuleName(name string) Option {
	return func(c *Client) { c.moduleName = name }
}

// New builds a client from the resolved configuration and, when enabled,
// starts the background flush worker. New never fails: configuration
// problems fall back to defaults.
func New(opts ...Option) *Client {
	c := &Client{
		cfg:     ResolveConfig(),
		flushCh: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, fn := range opts {
		fn(c)
	}

	c.buf = newBuffer(c.cfg.MaxBufferSize)
	c.tr = newTransport(c.cfg)

	if c.cfg.Enabled {
		go c.flushLoop()
	} else {
		close(c.done)
	}
	return c
}

// IsEnabled reports whether logging calls do anything.
func (c *Client) IsEnabled() bool {
	return c.cfg.Enabled
}

// Dropped reports how many records the bounded buffer has evicted. Drops
// are never surfaced as errors; this counter is the only signal.
func (c *Client) Dropped() uint64 {
	return c.buf.Dropped()
}

// Log records one message at the given level.
func (c *Client) Log(level Level, message string) {
	c.log(level, message)
}

func (c *Client) Debug(message string)    { c.log(LevelDebug, message) }
func (c *Client) Info(message string)     { c.log(LevelInfo, message) }
func (c *Client) Warn(message string)     { c.log(LevelWarn, message) }
func (c *Client) Error(message string)    { c.log(LevelError, message) }
func (c *Client) Critical(message string) { c.log(LevelCritical, message) }

// log builds and enqueues one record. It never blocks on I/O and never
// fails; disabled clients, sub-threshold levels, and closed clients are
// all silent no-ops.
func (c *Client) log(level Level, message string) {
	if !c.cfg.Enabled || c.closed.Load() {
		return
	}
	if level < c.cfg.MinLevel {
		return
	}

	rec := Record{
		TS:            float64(time.Now().UnixNano()) / 1e9,
		Level:         level.String(),
		Message:       message,
		ApplicationID: c.cfg.ApplicationID,
		ModuleName:    c.moduleName,
		ServiceName:   c.cfg.ServiceName,
		Context: map[string]any{
			"language":  "go",
			"thread_id": goroutineID(),
		},
	}

	// Two frames up: log -> Log/Debug/... -> caller.
	if pc, file, line, ok := runtime.Caller(2); ok {
		rec.FilePath = file
		rec.LineNo = line
		if rec.ModuleName == "" {
			rec.ModuleName = callerPackage(pc)
		}
	}
	if rec.ModuleName == "" {
		rec.ModuleName = "main"
	}

	if n := c.buf.Add(rec); n >= c.cfg.BatchSize {
		c.signalFlush()
	}
}

// signalFlush nudges the worker without blocking; a pending signal is
// enough.
func (c *Client) signalFlush() {
	select {
	case c.flushCh <- struct{}{}:
	default:
	}
}

// Flush synchronously drains the buffer and attempts delivery on the
// caller's goroutine. It returns normally even when delivery fails, and is
// safe to call after Close.
func (c *Client) Flush() {
	if !c.cfg.Enabled {
		return
	}
	if records := c.buf.Drain(); len(records) > 0 {
		c.tr.SendBatch(records)
	}
}

// Close stops the worker, joins it, performs a final inline flush, and
// tears down the transport. Idempotent. Log calls racing with Close are
// dropped.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if !c.cfg.Enabled {
		return
	}

	close(c.stop)
	<-c.done

	if records := c.buf.Drain(); len(records) > 0 {
		c.tr.SendBatch(records)
	}
	c.tr.Close()
}

// flushLoop is the single background worker. It drains on the flush
// interval, on an explicit signal, and once more on its way out.
func (c *Client) flushLoop() {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.flushOnce()
		case <-c.flushCh:
			c.flushOnce()
		}
	}
}

func (c *Client) flushOnce() {
	if records := c.buf.Drain(); len(records) > 0 {
		c.tr.SendBatch(records)
	}
}

// goroutineID parses the current goroutine's id from its stack header.
// Good enough for a diagnostic context field.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// callerPackage extracts the package path from a program counter, e.g.
// "github.com/acme/shop/checkout.(*Cart).Add" yields "checkout".
func callerPackage(pc uintptr) string {
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}
	name := fn.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[:i]
	}
	return name
}

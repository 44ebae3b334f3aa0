package drtrace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

var errShutdown = errors.New("drtrace: transport is shut down")

// transport owns the shared HTTP client for batch delivery. The client is
// guarded by a mutex end-to-end across an attempt loop, and a circuit
// breaker short-circuits delivery while the daemon is known-unavailable.
type transport struct {
	cfg      Config
	mu       sync.Mutex
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	shutdown atomic.Bool
}

func newTransport(cfg Config) *transport {
	return &transport{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "drtrace-ingest",
			MaxRequests: 1,
			Timeout:     cfg.CircuitResetInterval,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				// One exhausted retry loop opens the circuit.
				return counts.ConsecutiveFailures >= 1
			},
		}),
	}
}

// SendBatch delivers one batch. It returns false when the batch was not
// delivered: shutdown in progress, open circuit, or all attempts failed.
// Failed batches are dropped; the circuit breaker is the backpressure
// signal, not re-enqueueing.
func (t *transport) SendBatch(records []Record) bool {
	if len(records) == 0 {
		return true
	}
	if t.shutdown.Load() {
		return false
	}

	payload, err := json.Marshal(batchPayload{
		ApplicationID: t.cfg.ApplicationID,
		Logs:          records,
	})
	if err != nil {
		return false
	}

	// While the circuit is open Execute returns ErrOpenState without
	// invoking the function, so no network I/O happens on this path.
	_, err = t.breaker.Execute(func() (any, error) {
		return nil, t.post(payload)
	})
	return err == nil
}

// post runs the retry loop under the transport mutex. One call here is one
// circuit-breaker execution: success closes the circuit, an exhausted loop
// counts as a single failure.
func (t *transport) post(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.shutdown.Load() || t.client == nil {
		return errShutdown
	}

	var lastErr error
	for n := 1; n <= t.cfg.MaxRetries; n++ {
		if t.shutdown.Load() {
			return errShutdown
		}

		resp, err := t.client.Post(t.cfg.DaemonURL, "application/json", bytes.NewReader(payload))
		if err == nil {
			ok := resp.StatusCode >= 200 && resp.StatusCode < 300
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if ok {
				return nil
			}
			lastErr = fmt.Errorf("drtrace: daemon returned status %d", resp.StatusCode)
		} else {
			lastErr = err
		}

		if n < t.cfg.MaxRetries {
			time.Sleep(t.cfg.RetryBackoff * time.Duration(n))
		}
	}
	return lastErr
}

// Close tears down the HTTP client. It first waits, bounded, for any
// in-flight send to release the mutex; the final unconditional Lock is the
// correctness anchor that guarantees no I/O uses the client after teardown.
func (t *transport) Close() {
	t.shutdown.Store(true)

	deadline := time.Now().Add(t.cfg.HTTPTimeout + 2*time.Second)
	acquired := false
	for time.Now().Before(deadline) {
		if t.mu.TryLock() {
			acquired = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !acquired {
		t.mu.Lock()
	}
	defer t.mu.Unlock()

	if t.client != nil {
		t.client.CloseIdleConnections()
		t.client = nil
	}
}

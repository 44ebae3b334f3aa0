package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	sqlite "modernc.org/sqlite"
)

// SQLite primary result codes that indicate a transient lock conflict.
const (
	codeBusy   = 5 // SQLITE_BUSY
	codeLocked = 6 // SQLITE_LOCKED
)

// isRetriable returns true for SQLite errors that indicate a transient
// lock conflict rather than a real failure.
func isRetriable(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() & 0xff {
	case codeBusy, codeLocked:
		return true
	default:
		return false
	}
}

// withRetry executes fn, retrying up to maxRetries times on busy/locked
// errors. Retries use jittered exponential backoff starting at baseDelay.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := range maxRetries + 1 {
		err = fn()
		if err == nil || !isRetriable(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(baseDelay)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay + jitter):
		}
		baseDelay *= 2
	}
	return err
}

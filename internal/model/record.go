// Package model defines the wire types shared by the ingest and query
// endpoints, plus validation helpers for incoming batches.
package model

import (
	"fmt"
	"strings"
)

// Level is a log severity token. Stored lowercase; compared ordinally.
type Level string

// The five recognized severity tokens, in ascending order.
const (
	LevelDebug    Level = "debug"
	LevelInfo     Level = "info"
	LevelWarn     Level = "warn"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

var levelOrdinals = map[Level]int{
	LevelDebug:    0,
	LevelInfo:     1,
	LevelWarn:     2,
	LevelError:    3,
	LevelCritical: 4,
}

// ParseLevel normalizes a level token to lowercase and validates it against
// the enumerated set. Input comparison is case-insensitive.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(s))
	if _, ok := levelOrdinals[l]; !ok {
		return "", fmt.Errorf("model: unknown level %q", s)
	}
	return l, nil
}

// Ordinal returns the fixed rank of the level (debug=0 … critical=4).
// Unknown levels rank below debug so they never pass a level floor.
func (l Level) Ordinal() int {
	if n, ok := levelOrdinals[l]; ok {
		return n
	}
	return -1
}

// AtLeast reports whether l is at or above the floor level.
func (l Level) AtLeast(floor Level) bool {
	return l.Ordinal() >= floor.Ordinal()
}

// LogRecord is the unified wire record carried client → daemon.
// Timestamps are UTC seconds since the Unix epoch with sub-second precision.
type LogRecord struct {
	TS            float64        `json:"ts"`
	Level         Level          `json:"level"`
	Message       string         `json:"message"`
	ApplicationID string         `json:"application_id"`
	ModuleName    string         `json:"module_name"`
	ServiceName   string         `json:"service_name,omitempty"`
	FilePath      string         `json:"file_path,omitempty"`
	LineNo        int            `json:"line_no,omitempty"`
	ExceptionType string         `json:"exception_type,omitempty"`
	Stacktrace    string         `json:"stacktrace,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// LogBatch is the body of POST /logs/ingest.
type LogBatch struct {
	ApplicationID string      `json:"application_id"`
	Logs          []LogRecord `json:"logs"`
}

// StoredRecord is a LogRecord plus the store-assigned monotonic id.
type StoredRecord struct {
	ID int64 `json:"id"`
	LogRecord
}

// ValidateRecord checks the required fields of a single wire record and
// returns the normalized (level-lowercased) copy.
func ValidateRecord(r LogRecord) (LogRecord, error) {
	if r.TS == 0 {
		return r, fmt.Errorf("missing required field ts")
	}
	if r.Level == "" {
		return r, fmt.Errorf("missing required field level")
	}
	if r.Message == "" {
		return r, fmt.Errorf("missing required field message")
	}
	if r.ApplicationID == "" {
		return r, fmt.Errorf("missing required field application_id")
	}
	if r.ModuleName == "" {
		return r, fmt.Errorf("missing required field module_name")
	}
	if r.LineNo < 0 {
		return r, fmt.Errorf("line_no must be >= 0")
	}
	level, err := ParseLevel(string(r.Level))
	if err != nil {
		return r, fmt.Errorf("level %q is not one of debug, info, warn, error, critical", r.Level)
	}
	r.Level = level
	return r, nil
}

// ValidateBatch validates every record of a batch, normalizing levels.
// A batch is all-or-nothing: the first invalid record rejects the whole
// batch, with the error naming the offending index.
func ValidateBatch(b LogBatch) ([]LogRecord, error) {
	if b.ApplicationID == "" {
		return nil, fmt.Errorf("missing required field application_id")
	}
	if len(b.Logs) == 0 {
		return nil, fmt.Errorf("logs must contain at least one record")
	}
	out := make([]LogRecord, len(b.Logs))
	for i, r := range b.Logs {
		rec, err := ValidateRecord(r)
		if err != nil {
			return nil, fmt.Errorf("logs[%d]: %w", i, err)
		}
		out[i] = rec
	}
	return out, nil
}

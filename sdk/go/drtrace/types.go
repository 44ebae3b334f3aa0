package drtrace

import "strings"

// Level is the client-side severity scale. Ordering is significant: records
// below the configured minimum level are dropped at the call site.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
)

var levelNames = [...]string{"debug", "info", "warn", "error", "critical"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelCritical {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLevel maps a case-insensitive level token to its Level. The second
// return is false for unrecognized tokens.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn":
		return LevelWarn, true
	case "error":
		return LevelError, true
	case "critical":
		return LevelCritical, true
	default:
		return LevelDebug, false
	}
}

// Record is the wire shape of one log event. Field names match the daemon's
// published schema; "ts" is UTC seconds since the Unix epoch with sub-second
// precision.
type Record struct {
	TS            float64        `json:"ts"`
	Level         string         `json:"level"`
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

// batchPayload is the ingest request body.
type batchPayload struct {
	ApplicationID string   `json:"application_id"`
	Logs          []Record `json:"logs"`
}

// StoredRecord is a Record as returned by the daemon's query endpoint, with
// the daemon-assigned id.
type StoredRecord struct {
	ID int64 `json:"id"`
	Record
}

// QueryResult is the body of a successful GET /logs/query.
type QueryResult struct {
	Results []StoredRecord `json:"results"`
	Count   int            `json:"count"`
}

// Status is the body of GET /status.
type Status struct {
	Service       string `json:"service"`
	Version       string `json:"version"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	RetentionDays int    `json:"retention_days"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

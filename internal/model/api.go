package model

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Query limits. Limit defaults to DefaultQueryLimit and is capped at
// MaxQueryLimit; a regex filter longer than MaxRegexLen is rejected before
// compilation.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
	MaxRegexLen       = 500
)

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is the error response envelope: {"detail": {"code", "message"}}.
type APIError struct {
	Detail ErrorDetail `json:"detail"`
}

// ErrorCode constants published in the API schema.
const (
	ErrCodeInvalidParams     = "INVALID_PARAMS"
	ErrCodeInvalidTimeRange  = "INVALID_TIME_RANGE"
	ErrCodeInvalidLevel      = "INVALID_LEVEL"
	ErrCodeInvalidTimeFormat = "INVALID_TIME_FORMAT"
	ErrCodeInvalidQueryType  = "INVALID_QUERY_TYPE"
	ErrCodeQueryNotFound     = "QUERY_NOT_FOUND"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// IngestResponse is the body of a 202 from POST /logs/ingest.
type IngestResponse struct {
	Accepted int `json:"accepted"`
}

// QueryResponse is the body of GET /logs/query.
type QueryResponse struct {
	Results []StoredRecord `json:"results"`
	Count   int            `json:"count"`
}

// ClearResponse is the body of POST /logs/clear.
type ClearResponse struct {
	Deleted int64 `json:"deleted"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Service       string `json:"service"`
	Version       string `json:"version"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	RetentionDays int    `json:"retention_days"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// QueryParams is the validated parameter set of GET /logs/query.
type QueryParams struct {
	StartTS         float64
	EndTS           float64
	ApplicationID   string
	ModuleName      string
	MinLevel        Level // empty = no floor
	MessageContains string
	MessageRegex    *regexp.Regexp
	Limit           int
}

// ParamError is a query-parameter validation failure carrying its API error code.
type ParamError struct {
	Code    string
	Message string
}

func (e *ParamError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// ParseQueryParams validates raw GET /logs/query parameters. Raw values come
// straight from url.Values.Get, so absent parameters are empty strings.
func ParseQueryParams(raw map[string]string) (QueryParams, error) {
	var p QueryParams

	if raw["start_ts"] == "" || raw["end_ts"] == "" {
		return p, &ParamError{ErrCodeInvalidParams, "start_ts and end_ts are required"}
	}

	var err error
	p.StartTS, err = ParseTimestamp(raw["start_ts"])
	if err != nil {
		return p, &ParamError{ErrCodeInvalidTimeFormat, fmt.Sprintf("start_ts: %v", err)}
	}
	p.EndTS, err = ParseTimestamp(raw["end_ts"])
	if err != nil {
		return p, &ParamError{ErrCodeInvalidTimeFormat, fmt.Sprintf("end_ts: %v", err)}
	}
	if p.StartTS > p.EndTS {
		return p, &ParamError{ErrCodeInvalidTimeRange, "start_ts must be <= end_ts"}
	}

	p.ApplicationID = raw["application_id"]
	p.ModuleName = raw["module_name"]

	if v := raw["min_level"]; v != "" {
		level, err := ParseLevel(v)
		if err != nil {
			return p, &ParamError{ErrCodeInvalidLevel, fmt.Sprintf("min_level %q is not a valid level", v)}
		}
		p.MinLevel = level
	}

	contains := raw["message_contains"]
	pattern := raw["message_regex"]
	if contains != "" && pattern != "" {
		// Hard invariant: never silently prefer one filter over the other.
		return p, &ParamError{ErrCodeInvalidParams, "Cannot use both filters"}
	}
	p.MessageContains = contains
	if pattern != "" {
		if len(pattern) > MaxRegexLen {
			return p, &ParamError{ErrCodeInvalidParams, fmt.Sprintf("message_regex exceeds %d characters", MaxRegexLen)}
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return p, &ParamError{ErrCodeInvalidParams, fmt.Sprintf("message_regex does not compile: %v", err)}
		}
		p.MessageRegex = re
	}

	// limit=0 is rejected rather than treated as "no results": an explicit
	// zero is almost always a caller bug, and the API contract documents the
	// rejection.
	p.Limit = DefaultQueryLimit
	if v := raw["limit"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return p, &ParamError{ErrCodeInvalidParams, fmt.Sprintf("limit %q must be a positive integer", v)}
		}
		p.Limit = n
	}
	if p.Limit > MaxQueryLimit {
		p.Limit = MaxQueryLimit
	}

	return p, nil
}

// ParseTimestamp accepts float seconds since the Unix epoch or an ISO 8601
// string. Strings without a zone suffix are interpreted as UTC.
func ParseTimestamp(s string) (float64, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return float64(t.UnixNano()) / 1e9, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return float64(t.UnixNano()) / 1e9, nil
		}
	}
	return 0, fmt.Errorf("timestamp %q is neither epoch seconds nor ISO 8601", s)
}

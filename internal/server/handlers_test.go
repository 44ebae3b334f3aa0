package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drtrace/drtrace/internal/model"
	"github.com/drtrace/drtrace/internal/server"
	"github.com/drtrace/drtrace/internal/testutil"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db := testutil.OpenStore(t)
	srv := server.New(server.ServerConfig{
		DB:                  db,
		Logger:              testutil.NewLogger(t),
		Host:                "127.0.0.1",
		Port:                8001,
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        5 * time.Second,
		Version:             "test",
		RetentionDays:       7,
		MaxRequestBodyBytes: 1 << 20,
		OpenAPISpec:         []byte(`{"openapi":"3.1.0"}`),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func wireRecord(ts float64, level, message string) map[string]any {
	return map[string]any{
		"ts":             ts,
		"level":          level,
		"message":        message,
		"application_id": "shop",
		"module_name":    "checkout",
	}
}

func postBatch(t *testing.T, base string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(base+"/logs/ingest", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) model.APIError {
	t.Helper()
	defer resp.Body.Close()
	var apiErr model.APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	return apiErr
}

func TestIngestAccepted(t *testing.T) {
	ts := newTestServer(t)

	resp := postBatch(t, ts.URL, map[string]any{
		"application_id": "shop",
		"logs": []map[string]any{
			wireRecord(1700000000.1, "info", "one"),
			wireRecord(1700000000.2, "ERROR", "two"),
		},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out model.IngestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 2, out.Accepted)
}

func TestIngestRejectsMalformedJSON(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/logs/ingest", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	apiErr := decodeError(t, resp)
	assert.Equal(t, model.ErrCodeInvalidParams, apiErr.Detail.Code)
}

func TestIngestRejectsInvalidRecord(t *testing.T) {
	ts := newTestServer(t)

	bad := wireRecord(1700000000.1, "info", "ok")
	delete(bad, "module_name")
	resp := postBatch(t, ts.URL, map[string]any{
		"application_id": "shop",
		"logs":           []map[string]any{wireRecord(1700000000.0, "info", "fine"), bad},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	apiErr := decodeError(t, resp)
	assert.Contains(t, apiErr.Detail.Message, "logs[1]")

	// All-or-nothing: the valid record was not stored either.
	q, err := http.Get(ts.URL + "/logs/query?start_ts=0&end_ts=2000000000")
	require.NoError(t, err)
	defer q.Body.Close()
	var result model.QueryResponse
	require.NoError(t, json.NewDecoder(q.Body).Decode(&result))
	assert.Zero(t, result.Count)
}

func TestIngestRejectsUnknownLevel(t *testing.T) {
	ts := newTestServer(t)

	resp := postBatch(t, ts.URL, map[string]any{
		"application_id": "shop",
		"logs":           []map[string]any{wireRecord(1700000000.1, "verbose", "bad level")},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestQueryRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	resp := postBatch(t, ts.URL, map[string]any{
		"application_id": "shop",
		"logs": []map[string]any{
			wireRecord(100, "info", "early"),
			wireRecord(300, "error", "late"),
			wireRecord(200, "WARN", "middle"),
		},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	q, err := http.Get(ts.URL + "/logs/query?start_ts=0&end_ts=1000")
	require.NoError(t, err)
	defer q.Body.Close()
	require.Equal(t, http.StatusOK, q.StatusCode)

	var result model.QueryResponse
	require.NoError(t, json.NewDecoder(q.Body).Decode(&result))
	require.Equal(t, 3, result.Count)
	assert.Equal(t, "early", result.Results[0].Message)
	assert.Equal(t, "middle", result.Results[1].Message)
	assert.Equal(t, "late", result.Results[2].Message)
	// Level tokens come back lowercased.
	assert.Equal(t, model.LevelWarn, result.Results[1].Level)
	for _, rec := range result.Results {
		assert.Positive(t, rec.ID)
	}
}

func TestQueryValidationMatrix(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name     string
		query    string
		wantCode string
	}{
		{"missing window", "", model.ErrCodeInvalidParams},
		{"inverted window", "start_ts=10&end_ts=5", model.ErrCodeInvalidTimeRange},
		{"bad timestamp", "start_ts=whenever&end_ts=10", model.ErrCodeInvalidTimeFormat},
		{"bad level", "start_ts=0&end_ts=10&min_level=loud", model.ErrCodeInvalidLevel},
		{"both filters", "start_ts=0&end_ts=10&message_contains=a&message_regex=b", model.ErrCodeInvalidParams},
		{"bad regex", "start_ts=0&end_ts=10&message_regex=(", model.ErrCodeInvalidParams},
		{"zero limit", "start_ts=0&end_ts=10&limit=0", model.ErrCodeInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/logs/query?" + tc.query)
			require.NoError(t, err)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			apiErr := decodeError(t, resp)
			assert.Equal(t, tc.wantCode, apiErr.Detail.Code)
		})
	}
}

func TestQueryMutuallyExclusiveFiltersBody(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/logs/query?start_ts=0&end_ts=10&message_contains=a&message_regex=b")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	apiErr := decodeError(t, resp)
	assert.Equal(t, model.ErrCodeInvalidParams, apiErr.Detail.Code)
	assert.Equal(t, "Cannot use both filters", apiErr.Detail.Message)
}

func TestQueryLimitCap(t *testing.T) {
	ts := newTestServer(t)

	logs := make([]map[string]any, 0, 1100)
	for i := 0; i < 1100; i++ {
		logs = append(logs, wireRecord(float64(i), "info", fmt.Sprintf("msg %d", i)))
	}
	resp := postBatch(t, ts.URL, map[string]any{"application_id": "shop", "logs": logs})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	q, err := http.Get(ts.URL + "/logs/query?start_ts=0&end_ts=2000&limit=9999")
	require.NoError(t, err)
	defer q.Body.Close()
	var result model.QueryResponse
	require.NoError(t, json.NewDecoder(q.Body).Decode(&result))
	assert.Equal(t, model.MaxQueryLimit, result.Count)
}

func TestClearTwice(t *testing.T) {
	ts := newTestServer(t)

	resp := postBatch(t, ts.URL, map[string]any{
		"application_id": "shop",
		"logs":           []map[string]any{wireRecord(100, "info", "x")},
	})
	resp.Body.Close()

	clear := func() model.ClearResponse {
		resp, err := http.Post(ts.URL+"/logs/clear?application_id=shop", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out model.ClearResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	assert.Equal(t, int64(1), clear().Deleted)
	assert.Equal(t, int64(0), clear().Deleted)
}

func TestClearRequiresApplicationID(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/logs/clear", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	apiErr := decodeError(t, resp)
	assert.Equal(t, model.ErrCodeInvalidParams, apiErr.Detail.Code)
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status model.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "drtrace", status.Service)
	assert.Equal(t, "test", status.Version)
	assert.Equal(t, 7, status.RetentionDays)
	assert.Equal(t, 8001, status.Port)
}

func TestOpenAPISpecServed(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/openapi.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "3.1.0", doc["openapi"])
}

func TestRequestIDPropagated(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

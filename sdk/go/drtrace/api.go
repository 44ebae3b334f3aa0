package drtrace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIClient is a read-side client for the daemon's query and admin
// endpoints. It is independent of the ingestion Client; diagnostic tools
// typically use only this half.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient builds a client against the daemon's base URL, e.g.
// "http://localhost:8001".
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// QueryRequest mirrors the daemon's GET /logs/query parameters.
// MessageContains and MessageRegex are mutually exclusive; the daemon
// rejects requests carrying both.
type QueryRequest struct {
	StartTS         float64
	EndTS           float64
	ApplicationID   string
	ModuleName      string
	MinLevel        string
	MessageContains string
	MessageRegex    string
	Limit           int
}

// Query retrieves records in ascending (ts, id) order.
func (c *APIClient) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	params := url.Values{}
	params.Set("start_ts", strconv.FormatFloat(req.StartTS, 'f', -1, 64))
	params.Set("end_ts", strconv.FormatFloat(req.EndTS, 'f', -1, 64))
	if req.ApplicationID != "" {
		params.Set("application_id", req.ApplicationID)
	}
	if req.ModuleName != "" {
		params.Set("module_name", req.ModuleName)
	}
	if req.MinLevel != "" {
		params.Set("min_level", req.MinLevel)
	}
	if req.MessageContains != "" {
		params.Set("message_contains", req.MessageContains)
	}
	if req.MessageRegex != "" {
		params.Set("message_regex", req.MessageRegex)
	}
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}

	var result QueryResult
	if err := c.get(ctx, "/logs/query?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status fetches the daemon's service metadata.
func (c *APIClient) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.get(ctx, "/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Clear deletes all records for an application and returns the count
// removed.
func (c *APIClient) Clear(ctx context.Context, applicationID string) (int64, error) {
	params := url.Values{}
	params.Set("application_id", applicationID)

	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.post(ctx, "/logs/clear?"+params.Encode(), &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// OpenAPISpec fetches the daemon's published schema. Consumers should
// discover field names from this document rather than hard-code them.
func (c *APIClient) OpenAPISpec(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/openapi.json", nil)
	if err != nil {
		return nil, fmt.Errorf("drtrace: create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drtrace: GET /openapi.json: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("drtrace: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func (c *APIClient) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("drtrace: create request: %w", err)
	}
	return c.doRequest(req, dest)
}

func (c *APIClient) post(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("drtrace: create request: %w", err)
	}
	return c.doRequest(req, dest)
}

func (c *APIClient) doRequest(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("drtrace: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("drtrace: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, body)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("drtrace: decode response: %w", err)
	}
	return nil
}

// errorEnvelope is the daemon's error body, {"detail":{"code","message"}}.
type errorEnvelope struct {
	Detail struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"detail"`
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Detail.Message != "" {
		apiErr.Code = envelope.Detail.Code
		apiErr.Message = envelope.Detail.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}
	return apiErr
}

package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/drtrace/drtrace/internal/model"
	"github.com/drtrace/drtrace/internal/storage"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db            *storage.DB
	logger        *slog.Logger
	version       string
	host          string
	port          int
	retentionDays int
	openAPISpec   []byte
	startedAt     time.Time
}

// HandlersDeps are the dependencies for NewHandlers.
type HandlersDeps struct {
	DB            *storage.DB
	Logger        *slog.Logger
	Version       string
	Host          string
	Port          int
	RetentionDays int
	OpenAPISpec   []byte
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		db:            deps.DB,
		logger:        deps.Logger,
		version:       deps.Version,
		host:          deps.Host,
		port:          deps.Port,
		retentionDays: deps.RetentionDays,
		openAPISpec:   deps.OpenAPISpec,
		startedAt:     time.Now(),
	}
}

// HandleStatus serves GET /status. Cheap; intended for liveness probing.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.StatusResponse{
		Service:       "drtrace",
		Version:       h.version,
		Host:          h.host,
		Port:          h.port,
		RetentionDays: h.retentionDays,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleOpenAPISpec serves the embedded OpenAPI document at GET /openapi.json.
// Consumers discover field names (ts, level, …) from this document rather
// than hard-coding them, so the served bytes are the single source of truth.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openAPISpec)
}

// HandleIngest serves POST /logs/ingest. The whole batch is validated before
// any record is stored: one bad record rejects the batch with 422.
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var batch model.LogBatch
	if err := decodeJSON(r, &batch); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidParams, "request body is not valid JSON")
		return
	}

	records, err := model.ValidateBatch(batch)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, model.ErrCodeInvalidParams, err.Error())
		return
	}

	accepted, err := h.db.Append(r.Context(), records)
	if err != nil {
		h.logger.Error("ingest append failed", "error", err, "batch_size", len(records),
			"request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to store batch")
		return
	}

	writeJSON(w, http.StatusAccepted, model.IngestResponse{Accepted: accepted})
}

// HandleQuery serves GET /logs/query.
func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := map[string]string{
		"start_ts":         q.Get("start_ts"),
		"end_ts":           q.Get("end_ts"),
		"application_id":   q.Get("application_id"),
		"module_name":      q.Get("module_name"),
		"min_level":        q.Get("min_level"),
		"message_contains": q.Get("message_contains"),
		"message_regex":    q.Get("message_regex"),
		"limit":            q.Get("limit"),
	}

	params, err := model.ParseQueryParams(raw)
	if err != nil {
		var perr *model.ParamError
		if errors.As(err, &perr) {
			writeError(w, http.StatusBadRequest, perr.Code, perr.Message)
			return
		}
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidParams, err.Error())
		return
	}

	results, err := h.db.Query(r.Context(), params)
	if err != nil {
		h.logger.Error("query failed", "error", err,
			"request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, model.ErrCodeInternalError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, model.QueryResponse{Results: results, Count: len(results)})
}

// HandleClear serves POST /logs/clear?application_id=…, the administrative purge.
func (h *Handlers) HandleClear(w http.ResponseWriter, r *http.Request) {
	appID := r.URL.Query().Get("application_id")
	if appID == "" {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidParams, "application_id is required")
		return
	}

	deleted, err := h.db.Clear(r.Context(), appID)
	if err != nil {
		h.logger.Error("clear failed", "error", err, "application_id", appID,
			"request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, model.ErrCodeInternalError, "clear failed")
		return
	}

	h.logger.Info("application logs cleared", "application_id", appID, "deleted", deleted)
	writeJSON(w, http.StatusOK, model.ClearResponse{Deleted: deleted})
}

/*
handlers.go - HTTP API handlers for the policy engine

PURPOSE:
  Exposes the ingestion engine and the stored policy corpus via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Service:
    GET    /                        Service descriptor
    GET    /health                  Liveness probe

  Policies:
    GET    /api/policies            List policies (paged, filterable)
    GET    /api/policies/{id}       Get one policy
    GET    /api/categories          Category list with counts
    GET    /api/stats               Corpus-wide statistics

  Ingestion:
    POST   /api/ingest/trigger      Kick off a manual ingestion pass
    GET    /api/ingest/status       Live scheduler snapshot
    POST   /api/ingest/toggle       Enable/disable scheduled passes
    POST   /api/ingest/retry        Re-run analysis for unanalyzed records
    GET    /api/ingest/runs         Persisted run history

  Admin:
    POST   /api/admin/sample-data   Load the demo corpus

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - Scheduler: Ingestion scheduling and manual triggers
  - Retryer: Analysis retry passes

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (scheduler, retryer, store)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (ingestion or retry already running)
  - 500: Internal errors
  - 503: Database unreachable (health endpoint)

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - sample.go: Demo corpus loader
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/budgetlens/policy-engine/ingest"
	"github.com/budgetlens/policy-engine/policy"
	"github.com/budgetlens/policy-engine/store/sqlite"
)

const (
	serviceName    = "policy-engine"
	serviceVersion = "1.0.0"

	defaultPageSize = 50
	maxPageSize     = 100

	defaultRunsPageSize = 20
	maxRunsPageSize     = 50

	maxRetryLimit = 200
)

// Handler holds the dependencies shared by all endpoints.
type Handler struct {
	Store     *sqlite.Store
	Scheduler *ingest.Scheduler
	Retryer   *ingest.Retryer
	Logger    *slog.Logger

	// RetryLimit is the batch size for retry passes when the request does
	// not carry one. Zero falls back to ingest.DefaultRetryLimit.
	RetryLimit int
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(store *sqlite.Store, sched *ingest.Scheduler, retryer *ingest.Retryer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:     store,
		Scheduler: sched,
		Retryer:   retryer,
		Logger:    logger,
	}
}

// =============================================================================
// SERVICE ENDPOINTS
// =============================================================================

// Root returns the service descriptor.
// GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	st := h.Scheduler.Status()
	writeJSON(w, http.StatusOK, ServiceInfoDTO{
		Name:    serviceName,
		Version: serviceVersion,
		Status:  "running",
		Ingestion: IngestSummaryDTO{
			Enabled:         st.Enabled,
			IntervalSeconds: st.IntervalSeconds,
			RunOnStartup:    st.RunOnStartup,
			TotalRuns:       st.TotalRuns,
		},
		Endpoints: map[string]string{
			"health":         "GET /health",
			"policies":       "GET /api/policies?limit=50&offset=0&category=food&analyzed=true",
			"policy_by_id":   "GET /api/policies/{id}",
			"categories":     "GET /api/categories",
			"stats":          "GET /api/stats",
			"ingest_trigger": "POST /api/ingest/trigger",
			"ingest_status":  "GET /api/ingest/status",
			"ingest_toggle":  "POST /api/ingest/toggle",
			"ingest_retry":   "POST /api/ingest/retry?limit=50",
			"ingest_runs":    "GET /api/ingest/runs",
			"sample_data":    "POST /api/admin/sample-data",
		},
	})
}

// Health reports liveness. The database is pinged on every call; a failed
// ping keeps the endpoint answering but flips status to degraded with 503.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.Scheduler.Status()
	dto := HealthDTO{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Ingestion: HealthIngestionDTO{
			IsRunning: st.IsRunning,
			LastRun:   timePtr(st.LastRun),
			TotalRuns: st.TotalRuns,
		},
	}
	status := http.StatusOK
	if err := h.Store.Ping(r.Context()); err != nil {
		h.Logger.Error("health check: database unreachable", "error", err)
		dto.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, dto)
}

// =============================================================================
// POLICY ENDPOINTS
// =============================================================================

// ListPolicies returns a page of stored policies, newest first.
// GET /api/policies?limit=50&offset=0&category=food&analyzed=true
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := queryInt(r, "limit", defaultPageSize)
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	filter := sqlite.ListFilter{Limit: limit, Offset: offset}

	if raw := r.URL.Query().Get("category"); raw != "" {
		cat := policy.Category(raw)
		if !cat.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown category %q", raw), nil)
			return
		}
		filter.Category = cat
	}
	if raw := r.URL.Query().Get("analyzed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid analyzed filter, want true or false", err)
			return
		}
		filter.Analyzed = &v
	}

	records, err := h.Store.ListRecords(ctx, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list policies", err)
		return
	}

	dtos := make([]PolicyDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toPolicyDTO(rec))
	}

	writeJSON(w, http.StatusOK, PolicyListResponse{
		Data:   dtos,
		Count:  len(dtos),
		Offset: offset,
		Limit:  limit,
	})
}

// GetPolicy returns one policy by ID.
// GET /api/policies/{id}
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy ID", err)
		return
	}

	rec, err := h.Store.GetRecord(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get policy", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Policy not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toPolicyDTO(*rec))
}

// GetCategories returns every category in display order with record counts.
// Categories with no records appear with a zero count.
// GET /api/categories
func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Store.CategoryCounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count categories", err)
		return
	}

	all := policy.Categories()
	resp := CategoriesResponse{
		Categories: make([]string, 0, len(all)),
		Counts:     make(map[string]int, len(all)),
	}
	for _, c := range all {
		resp.Categories = append(resp.Categories, string(c))
		resp.Counts[string(c)] = counts[c]
		resp.Total += counts[c]
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetStats returns corpus-wide statistics.
// GET /api/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.Store.GetStats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stats", err)
		return
	}
	counts, err := h.Store.CategoryCounts(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count categories", err)
		return
	}

	rate := "0%"
	if stats.TotalRecords > 0 {
		rate = fmt.Sprintf("%.1f%%", float64(stats.AnalyzedRecords)/float64(stats.TotalRecords)*100)
	}
	byCategory := make(map[string]int, len(counts))
	for c, n := range counts {
		byCategory[string(c)] = n
	}

	writeJSON(w, http.StatusOK, StatsDTO{
		TotalPolicies:      stats.TotalRecords,
		AnalyzedPolicies:   stats.AnalyzedRecords,
		UnanalyzedPolicies: stats.UnanalyzedRecords,
		RecentPolicies24h:  stats.Recent24h,
		AnalysisRate:       rate,
		TotalRuns:          stats.TotalRuns,
		ByCategory:         byCategory,
		LatestPolicyAt:     timePtr(stats.LatestRecordAt),
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// INGESTION ENDPOINTS
// =============================================================================

// TriggerIngest starts a manual ingestion pass in the background. Returns
// 409 when a pass is already in flight; manual triggers are never queued.
// POST /api/ingest/trigger
func (h *Handler) TriggerIngest(w http.ResponseWriter, r *http.Request) {
	if !h.Scheduler.TriggerRun() {
		writeError(w, http.StatusConflict, "Ingestion is already running, wait for it to complete", nil)
		return
	}
	writeJSON(w, http.StatusAccepted, TriggerResponse{
		Message:   "Ingestion started in background",
		Status:    "started",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// IngestStatus returns the live scheduler snapshot.
// GET /api/ingest/status
func (h *Handler) IngestStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toIngestStatusDTO(h.Scheduler.Status()))
}

// ToggleIngest enables or disables scheduled passes. Manual triggers keep
// working while disabled.
// POST /api/ingest/toggle
func (h *Handler) ToggleIngest(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "Missing required field: enabled", nil)
		return
	}

	enabled := h.Scheduler.SetEnabled(*req.Enabled)
	msg := "Scheduled ingestion disabled"
	if enabled {
		msg = "Scheduled ingestion enabled"
	}
	writeJSON(w, http.StatusOK, ToggleResponse{
		Message:   msg,
		Enabled:   enabled,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RetryAnalysis starts a background pass that re-runs extraction for
// records stuck at analyzed=false, oldest first. Returns 409 when a retry
// pass is already in flight.
// POST /api/ingest/retry?limit=50
func (h *Handler) RetryAnalysis(w http.ResponseWriter, r *http.Request) {
	fallback := h.RetryLimit
	if fallback < 1 {
		fallback = ingest.DefaultRetryLimit
	}
	limit := queryInt(r, "limit", fallback)
	if limit < 1 {
		limit = fallback
	}
	if limit > maxRetryLimit {
		limit = maxRetryLimit
	}

	if !h.Retryer.TriggerRetry(limit) {
		writeError(w, http.StatusConflict, "Retry analysis is already running, wait for it to complete", nil)
		return
	}
	writeJSON(w, http.StatusAccepted, TriggerResponse{
		Message:   fmt.Sprintf("Analysis retry started for up to %d unanalyzed policies", limit),
		Status:    "started",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ListRuns returns persisted run history, newest first.
// GET /api/ingest/runs?limit=20
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultRunsPageSize)
	if limit < 1 {
		limit = defaultRunsPageSize
	}
	if limit > maxRunsPageSize {
		limit = maxRunsPageSize
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, RunListResponse{Data: dtos, Count: len(dtos)})
}

// =============================================================================
// DTO CONVERSION
// =============================================================================

func toPolicyDTO(rec policy.Record) PolicyDTO {
	dto := PolicyDTO{
		ID:            rec.ID,
		Fingerprint:   rec.Fingerprint,
		Title:         rec.Title,
		Summary:       rec.Summary,
		Link:          rec.Link,
		PublishedDate: rec.PublishedDate,
		Source:        rec.Source,
		Category:      string(rec.Category()),
		Analyzed:      rec.Analyzed,
		CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if e := rec.Enrichment; e != nil {
		dto.ImpactType = strPtr(string(e.ImpactType))
		dto.ImpactValue = strPtr(e.ImpactValue.String())
		if e.OldValue.Valid {
			dto.OldValue = strPtr(e.OldValue.Decimal.String())
		}
		if e.NewValue.Valid {
			dto.NewValue = strPtr(e.NewValue.Decimal.String())
		}
		dto.AffectedItems = e.AffectedItems
		dto.Description = strPtr(e.Description)
	}
	return dto
}

func toRunResultDTO(res ingest.RunResult) RunResultDTO {
	dto := RunResultDTO{
		Status:                string(res.Status),
		ItemsSeen:             res.ItemsSeen,
		ItemsSaved:            res.ItemsSaved,
		ItemsSkippedDuplicate: res.DuplicateSkips,
		ItemsUnenriched:       res.Unenriched,
	}
	if res.Err != nil {
		dto.Error = res.Err.Error()
	}
	return dto
}

func toIngestStatusDTO(st ingest.SchedulerStatus) IngestStatusDTO {
	dto := IngestStatusDTO{
		IsRunning:       st.IsRunning,
		Enabled:         st.Enabled,
		LastRun:         timePtr(st.LastRun),
		TotalRuns:       st.TotalRuns,
		IntervalSeconds: st.IntervalSeconds,
		RunOnStartup:    st.RunOnStartup,
	}
	if st.LastResult != nil {
		res := toRunResultDTO(*st.LastResult)
		dto.LastResult = &res
	}
	return dto
}

func toRunDTO(run ingest.RunRecord) RunDTO {
	return RunDTO{
		ID:                    run.ID,
		Trigger:               run.Trigger,
		Status:                run.Status,
		StartedAt:             run.StartedAt.UTC().Format(time.RFC3339),
		CompletedAt:           timePtr(run.CompletedAt),
		ItemsSeen:             run.ItemsSeen,
		ItemsSaved:            run.ItemsSaved,
		ItemsSkippedDuplicate: run.DuplicateSkips,
		ItemsUnenriched:       run.Unenriched,
		Error:                 run.Error,
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// queryInt parses an integer query parameter, falling back on absence or
// garbage.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func strPtr(s string) *string {
	return &s
}

// timePtr formats t as RFC3339 UTC, or nil for the zero time.
func timePtr(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	return strPtr(t.UTC().Format(time.RFC3339))
}

/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Policies:
    PolicyDTO, PolicyListResponse

  Ingestion:
    RunResultDTO, IngestStatusDTO, RunDTO, RunListResponse,
    TriggerResponse, ToggleRequest, ToggleResponse

  Corpus:
    CategoriesResponse, StatsDTO

  Service:
    ServiceInfoDTO, HealthDTO, SampleDataResponse

DECIMAL HANDLING:
  Impact values are rendered as decimal strings: "0.25" must round-trip
  exactly, and a float64 cannot promise that. Clients parse them with
  their own decimal library.

NULL HANDLING:
  Enrichment fields on PolicyDTO are pointers WITHOUT omitempty so an
  unanalyzed record serializes with explicit nulls rather than missing
  keys. Clients can rely on the keys always being present.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/

package api

// =============================================================================
// POLICY DTOs
// =============================================================================

// PolicyDTO is the wire shape of one stored announcement. The enrichment
// group (impact_type through description) is null until the record has
// been analyzed; category falls back to "general" in the meantime.
type PolicyDTO struct {
	ID            int64    `json:"id"`
	Fingerprint   string   `json:"fingerprint"`
	Title         string   `json:"title"`
	Summary       string   `json:"summary,omitempty"`
	Link          string   `json:"link,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	Source        string   `json:"source,omitempty"`
	Category      string   `json:"category"`
	ImpactType    *string  `json:"impact_type"`
	ImpactValue   *string  `json:"impact_value"`
	OldValue      *string  `json:"old_value"`
	NewValue      *string  `json:"new_value"`
	AffectedItems []string `json:"affected_items,omitempty"`
	Description   *string  `json:"description"`
	Analyzed      bool     `json:"analyzed"`
	CreatedAt     string   `json:"created_at"`
}

// PolicyListResponse wraps a page of policies with its paging echo.
type PolicyListResponse struct {
	Data   []PolicyDTO `json:"data"`
	Count  int         `json:"count"`
	Offset int         `json:"offset"`
	Limit  int         `json:"limit"`
}

// =============================================================================
// INGESTION DTOs
// =============================================================================

// RunResultDTO reports the counters of one ingestion pass.
type RunResultDTO struct {
	Status                string `json:"status"`
	ItemsSeen             int    `json:"items_seen"`
	ItemsSaved            int    `json:"items_saved"`
	ItemsSkippedDuplicate int    `json:"items_skipped_duplicate"`
	ItemsUnenriched       int    `json:"items_unenriched"`
	Error                 string `json:"error,omitempty"`
}

// IngestStatusDTO is the live scheduler snapshot.
type IngestStatusDTO struct {
	IsRunning       bool          `json:"is_running"`
	Enabled         bool          `json:"enabled"`
	LastRun         *string       `json:"last_run"`
	LastResult      *RunResultDTO `json:"last_result"`
	TotalRuns       int           `json:"total_runs"`
	IntervalSeconds int           `json:"interval_seconds"`
	RunOnStartup    bool          `json:"run_on_startup"`
}

// RunDTO is one row of persisted run history. CompletedAt is null while
// the pass is still in flight.
type RunDTO struct {
	ID                    string  `json:"id"`
	Trigger               string  `json:"trigger"`
	Status                string  `json:"status"`
	StartedAt             string  `json:"started_at"`
	CompletedAt           *string `json:"completed_at"`
	ItemsSeen             int     `json:"items_seen"`
	ItemsSaved            int     `json:"items_saved"`
	ItemsSkippedDuplicate int     `json:"items_skipped_duplicate"`
	ItemsUnenriched       int     `json:"items_unenriched"`
	Error                 string  `json:"error,omitempty"`
}

// RunListResponse wraps the run history listing.
type RunListResponse struct {
	Data  []RunDTO `json:"data"`
	Count int      `json:"count"`
}

// TriggerResponse acknowledges a manual ingestion or retry kick-off.
// The work itself runs in the background.
type TriggerResponse struct {
	Message   string `json:"message"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ToggleRequest flips scheduled ingestion on or off. Enabled is a pointer
// so an absent field can be told apart from an explicit false.
type ToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// ToggleResponse echoes the new scheduler state.
type ToggleResponse struct {
	Message   string `json:"message"`
	Enabled   bool   `json:"enabled"`
	Timestamp string `json:"timestamp"`
}

// =============================================================================
// CORPUS DTOs
// =============================================================================

// CategoriesResponse lists every category in display order with
// per-category record counts. Counts include zero entries so clients can
// render a full breakdown without merging in the category list themselves.
type CategoriesResponse struct {
	Categories []string       `json:"categories"`
	Counts     map[string]int `json:"counts"`
	Total      int            `json:"total"`
}

// StatsDTO summarizes the whole corpus.
type StatsDTO struct {
	TotalPolicies      int            `json:"total_policies"`
	AnalyzedPolicies   int            `json:"analyzed_policies"`
	UnanalyzedPolicies int            `json:"unanalyzed_policies"`
	RecentPolicies24h  int            `json:"recent_policies_24h"`
	AnalysisRate       string         `json:"analysis_rate"`
	TotalRuns          int            `json:"total_runs"`
	ByCategory         map[string]int `json:"by_category"`
	LatestPolicyAt     *string        `json:"latest_policy_at,omitempty"`
	Timestamp          string         `json:"timestamp"`
}

// =============================================================================
// SERVICE DTOs
// =============================================================================

// ServiceInfoDTO is the root endpoint payload: identity plus a map of
// everything the API offers.
type ServiceInfoDTO struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Ingestion IngestSummaryDTO  `json:"ingestion"`
	Endpoints map[string]string `json:"endpoints"`
}

// IngestSummaryDTO is the abbreviated scheduler state shown on the root
// endpoint.
type IngestSummaryDTO struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
	RunOnStartup    bool `json:"run_on_startup"`
	TotalRuns       int  `json:"total_runs"`
}

// HealthDTO is the liveness payload. Status is "healthy" when the
// database answers, "degraded" otherwise.
type HealthDTO struct {
	Status    string             `json:"status"`
	Timestamp string             `json:"timestamp"`
	Ingestion HealthIngestionDTO `json:"ingestion"`
}

// HealthIngestionDTO is the scheduler fragment of the health payload.
type HealthIngestionDTO struct {
	IsRunning bool    `json:"is_running"`
	LastRun   *string `json:"last_run"`
	TotalRuns int     `json:"total_runs"`
}

// SampleDataResponse reports how much of the demo corpus was loaded.
type SampleDataResponse struct {
	Message               string `json:"message"`
	ItemsSaved            int    `json:"items_saved"`
	ItemsSkippedDuplicate int    `json:"items_skipped_duplicate"`
	Timestamp             string `json:"timestamp"`
}

// =============================================================================
// ERROR RESPONSE
// =============================================================================

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

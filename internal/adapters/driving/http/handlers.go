package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/swaggo/swag"

	"github.com/custodia-labs/drive-index/internal/core/domain"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// ReadyResponse reports readiness per backing store
// @Description Readiness status with per-check results
type ReadyResponse struct {
	Status string            `json:"status" example:"ready"`
	Checks map[string]string `json:"checks,omitempty"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// SearchRequest is the body of a search call. The principal is taken from
// the bearer token, never from the body.
// @Description Faceted search request
type SearchRequest struct {
	Text         string            `json:"text" example:"garden"`
	FacetFilters map[string]string `json:"facet_filters,omitempty"`
	Page         int               `json:"page" example:"1"`
	PageSize     int               `json:"page_size" example:"20"`
}

// ResolveAssetRequest carries operator-confirmed tags.
// A blank value removes the facet.
// @Description Asset tag resolution
type ResolveAssetRequest struct {
	Tags map[string]string `json:"tags"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the configured stores
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Status: "ready", Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for name, p := range s.checks {
		if p == nil {
			continue
		}
		if err := p.Ping(r.Context()); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "not ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

func (s *Server) handleSwaggerDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusNotFound, "api doc not registered")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// Search endpoint

// handleSearch godoc
// @Summary      Search assets
// @Description  Faceted, permission-filtered search over indexed assets
// @Tags         Search
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      SearchRequest  true  "Search query"
// @Success      200      {object}  domain.SearchResult
// @Failure      400      {object}  ErrorResponse  "Invalid request"
// @Failure      401      {object}  ErrorResponse  "Unauthorized"
// @Router       /search [post]
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q := domain.SearchQuery{
		Text:         req.Text,
		FacetFilters: toTags(req.FacetFilters),
		Page:         req.Page,
		PageSize:     req.PageSize,
	}
	if authCtx := GetAuthContext(r.Context()); authCtx != nil {
		q.Principal = authCtx.Principal
	}

	result, err := s.searchService.Search(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, err, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Crawl dashboard endpoints

// handleCrawlStatus godoc
// @Summary      Crawl status of a scope
// @Description  Latest job state, asset count and halt flag of a root scope
// @Tags         Crawl
// @Produce      json
// @Security     BearerAuth
// @Param        scope  path      string  true  "Scope folder ID"
// @Success      200    {object}  domain.CrawlStatus
// @Failure      403    {object}  ErrorResponse  "Operator access required"
// @Router       /crawl/status/{scope} [get]
func (s *Server) handleCrawlStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.crawlService.CrawlStatus(r.Context(), r.PathValue("scope"))
	if err != nil {
		s.writeServiceError(w, err, "failed to get crawl status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleTriggerFullCrawl godoc
// @Summary      Trigger a full crawl
// @Description  Enqueue a full crawl of a root scope
// @Tags         Crawl
// @Produce      json
// @Security     BearerAuth
// @Param        scope  path      string  true  "Scope folder ID"
// @Success      202    {object}  domain.CrawlJob
// @Failure      409    {object}  ErrorResponse  "Scope halted"
// @Router       /crawl/scopes/{scope}/full [post]
func (s *Server) handleTriggerFullCrawl(w http.ResponseWriter, r *http.Request) {
	job, err := s.crawlService.TriggerFullCrawl(r.Context(), r.PathValue("scope"))
	if err != nil {
		s.writeServiceError(w, err, "failed to trigger crawl")
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// handleResumeScope godoc
// @Summary      Resume a halted scope
// @Description  Clear an authorization halt so crawling of the scope continues
// @Tags         Crawl
// @Produce      json
// @Security     BearerAuth
// @Param        scope  path      string  true  "Scope folder ID"
// @Success      200    {object}  StatusResponse
// @Router       /crawl/scopes/{scope}/resume [post]
func (s *Server) handleResumeScope(w http.ResponseWriter, r *http.Request) {
	if err := s.crawlService.ResumeScope(r.Context(), r.PathValue("scope"), actorOf(r.Context())); err != nil {
		s.writeServiceError(w, err, "failed to resume scope")
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "resumed"})
}

// handleListJobs godoc
// @Summary      List crawl jobs
// @Description  List jobs in one dashboard column
// @Tags         Crawl
// @Produce      json
// @Security     BearerAuth
// @Param        state  query     string  false  "Job state (default queued)"
// @Param        limit  query     int     false  "Maximum jobs"
// @Success      200    {array}   domain.CrawlJob
// @Failure      400    {object}  ErrorResponse  "Unknown state"
// @Router       /crawl/jobs [get]
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	state := domain.JobState(r.URL.Query().Get("state"))
	if state == "" {
		state = domain.JobStateQueued
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	jobs, err := s.crawlService.ListJobs(r.Context(), state, limit)
	if err != nil {
		s.writeServiceError(w, err, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*domain.CrawlJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleGetJob godoc
// @Summary      Get a crawl job
// @Tags         Crawl
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Job ID"
// @Success      200  {object}  domain.CrawlJob
// @Failure      404  {object}  ErrorResponse  "Job not found"
// @Router       /crawl/jobs/{id} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.crawlService.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to get job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleJobTransitions godoc
// @Summary      Job audit trail
// @Description  State transitions of a job, oldest first
// @Tags         Crawl
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Job ID"
// @Success      200  {array}   domain.JobTransition
// @Failure      404  {object}  ErrorResponse  "Job not found"
// @Router       /crawl/jobs/{id}/transitions [get]
func (s *Server) handleJobTransitions(w http.ResponseWriter, r *http.Request) {
	transitions, err := s.crawlService.Transitions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to get transitions")
		return
	}
	if transitions == nil {
		transitions = []domain.JobTransition{}
	}
	writeJSON(w, http.StatusOK, transitions)
}

// handleCancelJob godoc
// @Summary      Cancel a crawl job
// @Description  Stop a queued or processing job; it ends in failed
// @Tags         Crawl
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Job ID"
// @Success      200  {object}  StatusResponse
// @Failure      409  {object}  ErrorResponse  "Job already finished"
// @Router       /crawl/jobs/{id}/cancel [post]
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if err := s.crawlService.CancelJob(r.Context(), r.PathValue("id"), actorOf(r.Context())); err != nil {
		s.writeServiceError(w, err, "failed to cancel job")
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "cancelled"})
}

// handleResolveJob godoc
// @Summary      Resolve a job in review
// @Tags         Crawl
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Job ID"
// @Success      200  {object}  StatusResponse
// @Failure      409  {object}  ErrorResponse  "Job not in review"
// @Router       /crawl/jobs/{id}/resolve [post]
func (s *Server) handleResolveJob(w http.ResponseWriter, r *http.Request) {
	if err := s.crawlService.ResolveReview(r.Context(), r.PathValue("id"), actorOf(r.Context())); err != nil {
		s.writeServiceError(w, err, "failed to resolve job")
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "done"})
}

// handleRetryJob godoc
// @Summary      Retry a failed job
// @Tags         Crawl
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Job ID"
// @Success      200  {object}  StatusResponse
// @Failure      409  {object}  ErrorResponse  "Job not failed or scope halted"
// @Router       /crawl/jobs/{id}/retry [post]
func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	if err := s.crawlService.RetryJob(r.Context(), r.PathValue("id"), actorOf(r.Context())); err != nil {
		s.writeServiceError(w, err, "failed to retry job")
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "queued"})
}

// handleListSchedules godoc
// @Summary      List crawl schedules
// @Tags         Crawl
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.ScheduledCrawl
// @Failure      503  {object}  ErrorResponse  "Scheduler not configured"
// @Router       /crawl/schedules [get]
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	if s.schedules == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	schedules, err := s.schedules.ListSchedules(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "failed to list schedules")
		return
	}
	if schedules == nil {
		schedules = []*domain.ScheduledCrawl{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

// handleTriggerSchedule godoc
// @Summary      Run a schedule now
// @Tags         Crawl
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Schedule ID"
// @Success      202  {object}  domain.CrawlJob
// @Failure      409  {object}  ErrorResponse  "Crawl already pending"
// @Router       /crawl/schedules/{id}/trigger [post]
func (s *Server) handleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	if s.schedules == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	job, err := s.schedules.TriggerNow(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to trigger schedule")
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// handleResolveAsset godoc
// @Summary      Resolve asset tags
// @Description  Set operator-confirmed tags on an asset and mark it indexed
// @Tags         Assets
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string               true  "File ID"
// @Param        request  body      ResolveAssetRequest  true  "Tags"
// @Success      200      {object}  domain.Asset
// @Failure      400      {object}  ErrorResponse  "Invalid tags or asset not servable"
// @Failure      404      {object}  ErrorResponse  "Asset not found"
// @Router       /assets/{id}/resolve [post]
func (s *Server) handleResolveAsset(w http.ResponseWriter, r *http.Request) {
	var req ResolveAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	asset, err := s.crawlService.ResolveAsset(r.Context(), r.PathValue("id"), toTags(req.Tags), actorOf(r.Context()))
	if err != nil {
		s.writeServiceError(w, err, "failed to resolve asset")
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// handleListAlerts godoc
// @Summary      Recent alerts
// @Description  Operator alerts raised by the crawl engine, oldest first
// @Tags         Crawl
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  domain.Alert
// @Router       /alerts [get]
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := []domain.Alert{}
	if s.alerts != nil {
		recent, err := s.alerts.Recent(r.Context())
		if err != nil {
			s.writeServiceError(w, err, "failed to list alerts")
			return
		}
		alerts = append(alerts, recent...)
	}
	writeJSON(w, http.StatusOK, alerts)
}

// Helper functions

func toTags(in map[string]string) domain.Tags {
	if len(in) == 0 {
		return nil
	}
	tags := make(domain.Tags, len(in))
	for k, v := range in {
		tags[domain.Facet(strings.TrimSpace(k))] = v
	}
	return tags
}

// writeServiceError maps domain sentinels to status codes
func (s *Server) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrScopeHalted),
		errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrServiceUnavailable), domain.IsTransient(err):
		writeError(w, http.StatusServiceUnavailable, fallback)
	default:
		s.logger.Error(fallback, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

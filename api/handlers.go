/*
handlers.go - HTTP API handlers for the escalation engine

PURPOSE:
  Exposes the escalation workflow via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to workflow.Service.

ENDPOINTS:
  Agents:
    GET    /api/agents                      List agents
    POST   /api/agents                      Create or update agent
    GET    /api/agents/{id}                 Get agent
    GET    /api/agents/{id}/warnings        Warning history (?metric=&active=true&at=)
    POST   /api/agents/{id}/warnings        Record warning
    POST   /api/agents/{id}/evaluate        Evaluate escalation (Cases A/B/C)
    POST   /api/agents/{id}/actions         Log corrective action
    POST   /api/agents/{id}/performance     Upsert weekly performance

  Recommendations:
    GET    /api/recommendations             List (?agent=&metric=&pending=true)
    GET    /api/recommendations/{id}        Get recommendation
    POST   /api/recommendations/{id}/action Mark actioned (once)

  Leaders:
    POST   /api/leaders/{id}/evaluate       Evaluate accountability (Cases D/E)
    GET    /api/leaders/{id}/reports        Reports (?active=true&at=)
    POST   /api/leaders/sweep               Sweep every agent now

  Other:
    GET    /api/at-risk                     At-risk agents (?metric=&from=&to=)
    GET    /api/policy                      Effective policy
    GET    /api/scenarios                   List demo scenarios
    POST   /api/scenarios/load              Load a demo scenario

REQUEST FLOW:
  1. Validate body against its JSON schema (schema.go)
  2. Convert to workflow request
  3. Call workflow.Service
  4. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, agent without a leader
  - 404: Agent or recommendation not found
  - 409: Already actioned
  - 500: Store errors
  A Review recommendation is a normal 201, not an error.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/deadlyrat/qperform-server-dev/discipline"
	"github.com/deadlyrat/qperform-server-dev/factory"
	"github.com/deadlyrat/qperform-server-dev/performance"
	"github.com/deadlyrat/qperform-server-dev/store/sqlite"
	"github.com/deadlyrat/qperform-server-dev/workflow"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *workflow.Service
	Store     *sqlite.Store
	Metrics   *Metrics
	Scheduler *LeadershipScheduler

	schemas map[string]*jsonschema.Schema

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. The store is used directly only to reset
// the database when a scenario is loaded.
func NewHandler(service *workflow.Service, store *sqlite.Store, metrics *Metrics) (*Handler, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Handler{
		Service:   service,
		Store:     store,
		Metrics:   metrics,
		Scheduler: NewLeadershipScheduler(service),
		schemas:   schemas,
	}, nil
}

// =============================================================================
// AGENT HANDLERS
// =============================================================================

// ListAgents returns all agents.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Service.ListAgents(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to list agents", err)
		return
	}

	dtos := make([]AgentDTO, len(agents))
	for i, a := range agents {
		dtos[i] = toAgentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAgent returns a single agent.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Service.GetAgent(r.Context(), agentParam(r))
	if err != nil {
		writeServiceError(w, "Failed to get agent", err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentDTO(*agent))
}

// CreateAgent creates or updates an agent.
func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := h.decodeBody(r, "agent.json", &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	agent, err := h.Service.SaveAgent(r.Context(), discipline.Agent{
		ID:       discipline.AgentID(req.ID),
		Name:     req.Name,
		LeaderID: discipline.LeaderID(req.LeaderID),
		Client:   req.Client,
	})
	if err != nil {
		writeServiceError(w, "Failed to save agent", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgentDTO(*agent))
}

// =============================================================================
// WARNING HANDLERS
// =============================================================================

// ListWarnings returns the agent's warnings. With active=true only those
// counting toward escalation at the date are returned.
func (h *Handler) ListWarnings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := agentParam(r)
	q := r.URL.Query()

	at, err := dateParam(q.Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid at", err)
		return
	}
	if at.IsZero() {
		at = h.Service.Today()
	}
	metrics, err := metricsParam(q.Get("metric"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid metric", err)
		return
	}

	var warnings []discipline.Warning
	if boolParam(q.Get("active")) {
		for _, m := range metrics {
			active, err := h.Service.ActiveWarnings(ctx, agentID, m, at)
			if err != nil {
				writeServiceError(w, "Failed to list warnings", err)
				return
			}
			warnings = append(warnings, active...)
		}
	} else {
		all, err := h.Service.ListWarnings(ctx, agentID)
		if err != nil {
			writeServiceError(w, "Failed to list warnings", err)
			return
		}
		for _, wr := range all {
			if containsMetric(metrics, wr.Metric) {
				warnings = append(warnings, wr)
			}
		}
	}

	dtos := make([]WarningDTO, len(warnings))
	for i, wr := range warnings {
		dtos[i] = toWarningDTO(wr, at)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordWarning records a new warning for the agent.
func (h *Handler) RecordWarning(w http.ResponseWriter, r *http.Request) {
	var req RecordWarningRequest
	if err := h.decodeBody(r, "warning.json", &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	issuedAt, err := dateParam(req.IssuedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid issued_at", err)
		return
	}
	var weeks discipline.WeekRange
	if req.WeekStart != "" || req.WeekEnd != "" {
		weeks, err = weekRangeParam(req.WeekStart, req.WeekEnd)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid weeks", err)
			return
		}
	}

	warning, err := h.Service.RecordWarning(r.Context(), discipline.WarningRequest{
		AgentID:  agentParam(r),
		Kind:     discipline.WarningKind(req.Kind),
		Metric:   discipline.MetricType(req.Metric),
		Subtype:  req.Subtype,
		Notes:    req.Notes,
		IssuedBy: req.IssuedBy,
		IssuedAt: issuedAt,
		Weeks:    weeks,
		Client:   req.Client,
		Category: req.Category,
	})
	if err != nil {
		writeServiceError(w, "Failed to record warning", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWarningDTO(*warning, h.Service.Today()))
}

// =============================================================================
// RECOMMENDATION HANDLERS
// =============================================================================

// Evaluate runs the escalation ladder for one agent, metric and period.
// A repeated trigger returns the stored recommendation with 200.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := h.decodeBody(r, "evaluate.json", &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	weeks, err := weekRangeParam(req.WeekStart, req.WeekEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid weeks", err)
		return
	}
	at, err := dateParam(req.At)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid at", err)
		return
	}

	res, err := h.Service.Evaluate(r.Context(), discipline.EvaluationRequest{
		AgentID: agentParam(r),
		Metric:  discipline.MetricType(req.Metric),
		Weeks:   weeks,
		At:      at,
	})
	if err != nil {
		writeServiceError(w, "Failed to evaluate", err)
		return
	}

	dto := toRecommendationDTO(*res.Recommendation)
	if res.Duplicate {
		dto.Duplicate = true
		writeJSON(w, http.StatusOK, dto)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

// ListRecommendations returns recommendations, optionally filtered.
func (h *Handler) ListRecommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := discipline.RecommendationFilter{PendingOnly: boolParam(q.Get("pending"))}
	if agent := q.Get("agent"); agent != "" {
		id := discipline.AgentID(agent)
		filter.AgentID = &id
	}
	if metric := q.Get("metric"); metric != "" {
		m := discipline.MetricType(metric)
		if !m.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid metric", fmt.Errorf("%q: must be Production or QA", metric))
			return
		}
		filter.Metric = &m
	}

	recs, err := h.Service.ListRecommendations(r.Context(), filter)
	if err != nil {
		writeServiceError(w, "Failed to list recommendations", err)
		return
	}

	dtos := make([]RecommendationDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toRecommendationDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRecommendation returns a single recommendation.
func (h *Handler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.GetRecommendation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Failed to get recommendation", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecommendationDTO(*rec))
}

// MarkActioned records the human follow-up. A second call is a 409.
func (h *Handler) MarkActioned(w http.ResponseWriter, r *http.Request) {
	var req MarkActionedRequest
	if err := h.decodeBody(r, "actioned.json", &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Service.MarkActioned(r.Context(), chi.URLParam(r, "id"), req.ActionedBy, req.Notes)
	if err != nil {
		writeServiceError(w, "Failed to mark recommendation actioned", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecommendationDTO(*rec))
}

// =============================================================================
// ACTION LOG AND PERFORMANCE HANDLERS
// =============================================================================

// LogAction notes a corrective action taken by a leader for the agent.
func (h *Handler) LogAction(w http.ResponseWriter, r *http.Request) {
	var req LogActionRequest
	if err := h.decodeBody(r, "action.json", &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	loggedAt, err := dateParam(req.LoggedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid logged_at", err)
		return
	}

	entry, err := h.Service.LogAction(r.Context(), workflow.ActionRequest{
		AgentID:  agentParam(r),
		Author:   req.Author,
		LoggedAt: loggedAt,
		Note:     req.Note,
	})
	if err != nil {
		writeServiceError(w, "Failed to log action", err)
		return
	}
	writeJSON(w, http.StatusCreated, ActionLogDTO{
		ID:       entry.ID,
		AgentID:  string(entry.AgentID),
		Author:   entry.Author,
		LoggedAt: entry.LoggedAt.String(),
		Note:     entry.Note,
	})
}

// RecordPerformance upserts one weekly performance row.
func (h *Handler) RecordPerformance(w http.ResponseWriter, r *http.Request) {
	var req PerformanceRequest
	if err := h.decodeBody(r, "performance.json", &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	week, err := weekRangeParam(req.WeekStart, req.WeekEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid week", err)
		return
	}
	score, err := decimal.NewFromString(req.Score)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid score", err)
		return
	}
	target := decimal.Zero
	if req.Target != "" {
		if target, err = decimal.NewFromString(req.Target); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid target", err)
			return
		}
	}

	row := performance.WeeklyPerformance{
		AgentID: agentParam(r),
		Metric:  discipline.MetricType(req.Metric),
		Week:    week,
		Score:   score,
		Target:  target,
		Flag:    performance.Flag(req.Flag),
	}
	if err := h.Service.RecordPerformance(r.Context(), row); err != nil {
		writeServiceError(w, "Failed to record performance", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"agent_id":   string(row.AgentID),
		"metric":     string(row.Metric),
		"week_start": row.Week.Start.String(),
		"flag":       string(row.Resolve(h.Service.Policy())),
	})
}

// =============================================================================
// LEADERSHIP HANDLERS
// =============================================================================

// EvaluateLeader checks whether the leader failed to act on an agent's
// lapse and persists any accountability reports.
func (h *Handler) EvaluateLeader(w http.ResponseWriter, r *http.Request) {
	var req LeaderEvaluateRequest
	if err := h.decodeBody(r, "leader_evaluate.json", &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	lr := workflow.LeaderRequest{
		LeaderID: discipline.LeaderID(chi.URLParam(r, "id")),
		AgentID:  discipline.AgentID(req.AgentID),
		Metric:   discipline.MetricType(req.Metric),
		IssuedBy: req.IssuedBy,
	}
	var err error
	if lr.At, err = dateParam(req.At); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid at", err)
		return
	}

	if req.Weeks != nil {
		lr.Weeks = make([]discipline.WeekResult, 0, len(req.Weeks))
		for _, wk := range req.Weeks {
			week, err := weekRangeParam(wk.WeekStart, wk.WeekEnd)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid week", err)
				return
			}
			lr.Weeks = append(lr.Weeks, discipline.WeekResult{Week: week, Underperforming: wk.Underperforming})
		}
	} else if req.WindowStart != "" || req.WindowEnd != "" {
		if lr.Window, err = weekRangeParam(req.WindowStart, req.WindowEnd); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid window", err)
			return
		}
	} else {
		lr.Window = RecentWindow(h.Service.Today(), DefaultWindowWeeks)
	}

	res, err := h.Service.EvaluateLeader(r.Context(), lr)
	if err != nil {
		writeServiceError(w, "Failed to evaluate leader", err)
		return
	}

	status := http.StatusOK
	if res.Outcome.Applies {
		status = http.StatusCreated
	}
	writeJSON(w, status, toLeaderEvaluationDTO(*res))
}

// LeaderReports lists a leader's accountability reports.
func (h *Handler) LeaderReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	at, err := dateParam(q.Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid at", err)
		return
	}
	if at.IsZero() {
		at = h.Service.Today()
	}

	reports, err := h.Service.LeadershipReports(r.Context(), discipline.LeaderID(chi.URLParam(r, "id")), boolParam(q.Get("active")), at)
	if err != nil {
		writeServiceError(w, "Failed to list leadership reports", err)
		return
	}

	dtos := make([]LeadershipReportDTO, len(reports))
	for i, rep := range reports {
		dtos[i] = toReportDTO(rep)
		dtos[i].Active = rep.IsActive(at)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Sweep runs the leadership sweep immediately.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		writeServiceError(w, "Sweep failed", err)
		return
	}

	dto := SweepDTO{Evaluated: res.Evaluated, Reported: make([]LeaderEvaluationDTO, 0, len(res.Reported))}
	for _, rep := range res.Reported {
		dto.Reported = append(dto.Reported, toLeaderEvaluationDTO(rep))
	}
	for _, e := range res.Errors {
		dto.Errors = append(dto.Errors, e.Error())
	}
	if next := h.Scheduler.GetNextRunTime(); !next.IsZero() {
		dto.NextRun = &next
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// AT-RISK AND POLICY HANDLERS
// =============================================================================

// AtRisk lists agents whose recent performance crossed the week threshold.
func (h *Handler) AtRisk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var metric *discipline.MetricType
	if s := q.Get("metric"); s != "" {
		m := discipline.MetricType(s)
		if !m.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid metric", fmt.Errorf("%q: must be Production or QA", s))
			return
		}
		metric = &m
	}

	window := RecentWindow(h.Service.Today(), DefaultWindowWeeks)
	if q.Get("from") != "" || q.Get("to") != "" {
		var err error
		if window, err = weekRangeParam(q.Get("from"), q.Get("to")); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid window", err)
			return
		}
	}

	flags, err := h.Service.AtRisk(r.Context(), metric, window)
	if err != nil {
		writeServiceError(w, "Failed to compute at-risk agents", err)
		return
	}

	dtos := make([]AtRiskDTO, len(flags))
	for i, f := range flags {
		dtos[i] = toAtRiskDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPolicy returns the effective escalation policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.FileFromPolicy(h.Service.Policy()))
}

// =============================================================================
// HELPERS
// =============================================================================

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

// writeServiceError maps workflow errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case discipline.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case discipline.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case discipline.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func agentParam(r *http.Request) discipline.AgentID {
	return discipline.AgentID(chi.URLParam(r, "id"))
}

// dateParam parses an optional YYYY-MM-DD value. Empty gives the zero date.
func dateParam(s string) (discipline.TimePoint, error) {
	if s == "" {
		return discipline.TimePoint{}, nil
	}
	return discipline.ParseDate(s)
}

func weekRangeParam(start, end string) (discipline.WeekRange, error) {
	if start == "" || end == "" {
		return discipline.WeekRange{}, errors.New("both start and end dates are required")
	}
	s, err := discipline.ParseDate(start)
	if err != nil {
		return discipline.WeekRange{}, err
	}
	e, err := discipline.ParseDate(end)
	if err != nil {
		return discipline.WeekRange{}, err
	}
	wr := discipline.WeekRange{Start: s, End: e}
	return wr, wr.Validate()
}

// metricsParam returns the requested metric, or both when empty.
func metricsParam(s string) ([]discipline.MetricType, error) {
	if s == "" {
		return []discipline.MetricType{discipline.MetricProduction, discipline.MetricQA}, nil
	}
	m := discipline.MetricType(s)
	if !m.Valid() {
		return nil, fmt.Errorf("%q: must be Production or QA", s)
	}
	return []discipline.MetricType{m}, nil
}

func containsMetric(ms []discipline.MetricType, m discipline.MetricType) bool {
	for _, x := range ms {
		if x == m {
			return true
		}
	}
	return false
}

func boolParam(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

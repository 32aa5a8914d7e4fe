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

DATES:
  Calendar dates are "YYYY-MM-DD" strings. Timestamps are RFC3339.

VALIDATION:
  Request bodies are checked against the JSON schemas in schema.go before
  they are decoded into these types. Domain rules are enforced by the
  workflow layer, not here.

SEE ALSO:
  - handlers.go: Uses these types
  - schema.go: Request schemas
*/
package api

import (
	"time"

	"github.com/deadlyrat/qperform-server-dev/discipline"
	"github.com/deadlyrat/qperform-server-dev/performance"
	"github.com/deadlyrat/qperform-server-dev/workflow"
)

// =============================================================================
// AGENTS
// =============================================================================

type AgentDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LeaderID  string `json:"leader_id,omitempty"`
	Client    string `json:"client,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CreateAgentRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	LeaderID string `json:"leader_id"`
	Client   string `json:"client"`
}

func toAgentDTO(a discipline.Agent) AgentDTO {
	dto := AgentDTO{
		ID:       string(a.ID),
		Name:     a.Name,
		LeaderID: string(a.LeaderID),
		Client:   a.Client,
	}
	if !a.CreatedAt.IsZero() {
		dto.CreatedAt = a.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// WARNINGS
// =============================================================================

type WarningDTO struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	Kind      string `json:"kind"`
	Metric    string `json:"metric"`
	Subtype   string `json:"subtype,omitempty"`
	Notes     string `json:"notes,omitempty"`
	IssuedBy  string `json:"issued_by"`
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Status    string `json:"status"`
	WeekStart string `json:"week_start,omitempty"`
	WeekEnd   string `json:"week_end,omitempty"`
	Client    string `json:"client,omitempty"`
	Category  string `json:"category,omitempty"`
	// Active is computed for the request's evaluation date.
	Active bool `json:"active"`
}

type RecordWarningRequest struct {
	Kind      string `json:"kind"`
	Metric    string `json:"metric"`
	Subtype   string `json:"subtype"`
	Notes     string `json:"notes"`
	IssuedBy  string `json:"issued_by"`
	IssuedAt  string `json:"issued_at"`
	WeekStart string `json:"week_start"`
	WeekEnd   string `json:"week_end"`
	Client    string `json:"client"`
	Category  string `json:"category"`
}

func toWarningDTO(w discipline.Warning, at discipline.TimePoint) WarningDTO {
	dto := WarningDTO{
		ID:       w.ID,
		AgentID:  string(w.AgentID),
		Kind:     string(w.Kind),
		Metric:   string(w.Metric),
		Subtype:  w.Subtype,
		Notes:    w.Notes,
		IssuedBy: w.IssuedBy,
		IssuedAt: w.IssuedAt.String(),
		Status:   string(w.Status),
		Client:   w.Client,
		Category: w.Category,
		Active:   w.IsActive(at),
	}
	if w.ExpiresAt != nil {
		dto.ExpiresAt = w.ExpiresAt.String()
	}
	if !w.Weeks.IsZero() {
		dto.WeekStart = w.Weeks.Start.String()
		dto.WeekEnd = w.Weeks.End.String()
	}
	return dto
}

// =============================================================================
// RECOMMENDATIONS
// =============================================================================

type EvaluateRequest struct {
	Metric    string `json:"metric"`
	WeekStart string `json:"week_start"`
	WeekEnd   string `json:"week_end"`
	// At overrides the evaluation date (defaults to today).
	At string `json:"at"`
}

type CountsDTO struct {
	Coaching int `json:"coaching"`
	Verbal   int `json:"verbal"`
	Written  int `json:"written"`
}

type RecommendationDTO struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	Case        string    `json:"case"`
	Metric      string    `json:"metric"`
	Action      string    `json:"action"`
	Priority    string    `json:"priority"`
	Counts      CountsDTO `json:"counts"`
	Reason      string    `json:"reason,omitempty"`
	GeneratedAt string    `json:"generated_at"`
	WeekStart   string    `json:"week_start"`
	WeekEnd     string    `json:"week_end"`
	Actioned    bool      `json:"actioned"`
	ActionedBy  string    `json:"actioned_by,omitempty"`
	ActionedAt  string    `json:"actioned_at,omitempty"`
	ActionNotes string    `json:"action_notes,omitempty"`
	Duplicate   bool      `json:"duplicate,omitempty"`
}

type MarkActionedRequest struct {
	ActionedBy string `json:"actioned_by"`
	Notes      string `json:"notes"`
}

func toRecommendationDTO(rec discipline.Recommendation) RecommendationDTO {
	dto := RecommendationDTO{
		ID:       rec.ID,
		AgentID:  string(rec.AgentID),
		Case:     string(rec.Case),
		Metric:   string(rec.Metric),
		Action:   rec.Action,
		Priority: string(rec.Priority),
		Counts: CountsDTO{
			Coaching: rec.Details.Counts.Coaching,
			Verbal:   rec.Details.Counts.Verbal,
			Written:  rec.Details.Counts.Written,
		},
		Reason:      rec.Details.Reason,
		GeneratedAt: rec.GeneratedAt.Format(time.RFC3339),
		WeekStart:   rec.Weeks.Start.String(),
		WeekEnd:     rec.Weeks.End.String(),
		Actioned:    rec.Actioned,
		ActionedBy:  rec.ActionedBy,
		ActionNotes: rec.ActionNotes,
	}
	if rec.ActionedAt != nil {
		dto.ActionedAt = rec.ActionedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// ACTION LOG AND PERFORMANCE
// =============================================================================

type LogActionRequest struct {
	Author   string `json:"author"`
	LoggedAt string `json:"logged_at"`
	Note     string `json:"note"`
}

type ActionLogDTO struct {
	ID       string `json:"id"`
	AgentID  string `json:"agent_id"`
	Author   string `json:"author"`
	LoggedAt string `json:"logged_at"`
	Note     string `json:"note"`
}

type PerformanceRequest struct {
	Metric    string `json:"metric"`
	WeekStart string `json:"week_start"`
	WeekEnd   string `json:"week_end"`
	Score     string `json:"score"`
	Target    string `json:"target"`
	Flag      string `json:"flag"`
}

// =============================================================================
// LEADERSHIP
// =============================================================================

type WeekResultDTO struct {
	WeekStart       string `json:"week_start"`
	WeekEnd         string `json:"week_end"`
	Underperforming bool   `json:"underperforming"`
}

type LeaderEvaluateRequest struct {
	AgentID string `json:"agent_id"`
	Metric  string `json:"metric"`
	// Either a window to read stored performance from, or explicit weeks.
	WindowStart string          `json:"window_start"`
	WindowEnd   string          `json:"window_end"`
	Weeks       []WeekResultDTO `json:"weeks"`
	At          string          `json:"at"`
	IssuedBy    string          `json:"issued_by"`
}

type LeadershipReportDTO struct {
	ID        string `json:"id"`
	LeaderID  string `json:"leader_id"`
	AgentID   string `json:"agent_id"`
	Metric    string `json:"metric"`
	Kind      string `json:"kind"`
	IssuedBy  string `json:"issued_by"`
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Active    bool   `json:"active"`
	Reason    string `json:"reason,omitempty"`
	WeekStart string `json:"week_start"`
	WeekEnd   string `json:"week_end"`
}

type LeaderEvaluationDTO struct {
	LeaderID             string                `json:"leader_id"`
	AgentID              string                `json:"agent_id"`
	Metric               string                `json:"metric"`
	Applies              bool                  `json:"applies"`
	AlreadyReported      bool                  `json:"already_reported"`
	Case                 string                `json:"case,omitempty"`
	Priority             string                `json:"priority,omitempty"`
	Action               string                `json:"action,omitempty"`
	UnderperformingWeeks int                   `json:"underperforming_weeks"`
	FirstWeek            string                `json:"first_week,omitempty"`
	ActionFound          bool                  `json:"action_found"`
	Reports              []LeadershipReportDTO `json:"reports"`
}

type SweepDTO struct {
	Evaluated int                   `json:"evaluated"`
	Reported  []LeaderEvaluationDTO `json:"reported"`
	Errors    []string              `json:"errors,omitempty"`
	NextRun   *time.Time            `json:"next_run,omitempty"`
}

func toReportDTO(r discipline.LeadershipReport) LeadershipReportDTO {
	dto := LeadershipReportDTO{
		ID:        r.ID,
		LeaderID:  string(r.LeaderID),
		AgentID:   string(r.AgentID),
		Metric:    string(r.Metric),
		Kind:      string(r.Kind),
		IssuedBy:  r.IssuedBy,
		IssuedAt:  r.IssuedAt.String(),
		Active:    r.Active,
		Reason:    r.Reason,
		WeekStart: r.Weeks.Start.String(),
		WeekEnd:   r.Weeks.End.String(),
	}
	if r.ExpiresAt != nil {
		dto.ExpiresAt = r.ExpiresAt.String()
	}
	return dto
}

func toLeaderEvaluationDTO(res workflow.LeaderResult) LeaderEvaluationDTO {
	out := res.Outcome
	dto := LeaderEvaluationDTO{
		LeaderID:             string(res.LeaderID),
		AgentID:              string(res.AgentID),
		Metric:               string(res.Metric),
		Applies:              out.Applies,
		AlreadyReported:      out.AlreadyReported,
		Case:                 string(out.Case),
		Priority:             string(out.Priority),
		Action:               out.Action,
		UnderperformingWeeks: out.UnderperformingWeeks,
		ActionFound:          out.ActionFound,
		Reports:              make([]LeadershipReportDTO, 0, len(out.Reports)),
	}
	if !out.FirstWeek.IsZero() {
		dto.FirstWeek = out.FirstWeek.String()
	}
	for _, r := range out.Reports {
		dto.Reports = append(dto.Reports, toReportDTO(r))
	}
	return dto
}

// =============================================================================
// AT-RISK
// =============================================================================

type AtRiskDTO struct {
	AgentID              string `json:"agent_id"`
	Metric               string `json:"metric"`
	PeriodStart          string `json:"period_start"`
	PeriodEnd            string `json:"period_end"`
	UnderperformingWeeks int    `json:"underperforming_weeks"`
	FirstWeek            string `json:"first_week"`
	LatestFlag           string `json:"latest_flag"`
}

func toAtRiskDTO(f performance.AtRiskFlag) AtRiskDTO {
	return AtRiskDTO{
		AgentID:              string(f.AgentID),
		Metric:               string(f.Metric),
		PeriodStart:          f.Period.Start.String(),
		PeriodEnd:            f.Period.End.String(),
		UnderperformingWeeks: f.UnderperformingWeeks,
		FirstWeek:            f.FirstWeek.String(),
		LatestFlag:           string(f.LatestFlag),
	}
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Expect      string `json:"expect"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

/*
Package discipline provides the escalation-decision engine.

PURPOSE:
  Given an agent's warning history and current-period performance, the
  engine selects the single next disciplinary or coaching action (Cases A-C
  plus the "First" baseline) and, on a separate trigger, holds leaders
  accountable when they fail to act (Cases D and E).

KEY CONCEPTS IN THIS FILE (types.go):
  - Warning: One disciplinary action issued to an agent
  - Recommendation: The engine's decision artifact for one evaluation
  - LeadershipReport: Accountability record against a leader
  - ActionLogEntry: Free-text corrective action noted by a leader

DESIGN PRINCIPLES:
  1. Stateless: The engine owns no storage. It reads snapshots through the
     interfaces in store.go and returns values for the caller to persist.
  2. Time-derived status: "Active" is computed at read time via IsActive(at),
     never flipped by a background job.
  3. Type Safety: Distinct ID types prevent mixing agents and leaders.

USAGE:
  w := discipline.Warning{
      AgentID:  "jane@example.com",
      Kind:     discipline.KindVerbal,
      Metric:   discipline.MetricQA,
      IssuedAt: discipline.NewTimePoint(2025, time.March, 3),
      Status:   discipline.StatusActive,
  }
  if w.IsActive(discipline.Today()) { ... }

SEE ALSO:
  - ladder.go: Case A/B/C evaluators
  - resolver.go: Escalation resolver
  - leadership.go: Case D/E evaluator
  - warning.go: Warning lifecycle
*/
package discipline

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

// AgentID identifies an agent. In practice this is the agent's email.
type AgentID string

// LeaderID identifies a team leader (supervisor).
type LeaderID string

// =============================================================================
// ENUMS
// =============================================================================

// MetricType is the performance metric a warning or evaluation applies to.
type MetricType string

const (
	MetricProduction MetricType = "Production"
	MetricQA         MetricType = "QA"
)

// Valid reports whether m is a known metric.
func (m MetricType) Valid() bool {
	return m == MetricProduction || m == MetricQA
}

// WarningKind is the type of disciplinary action.
type WarningKind string

const (
	KindCoaching WarningKind = "Coaching"
	KindVerbal   WarningKind = "Verbal"
	KindWritten  WarningKind = "Written"
)

// Severity orders kinds: Coaching < Verbal < Written. Unknown kinds are 0.
func (k WarningKind) Severity() int {
	switch k {
	case KindCoaching:
		return 1
	case KindVerbal:
		return 2
	case KindWritten:
		return 3
	default:
		return 0
	}
}

func (k WarningKind) Valid() bool { return k.Severity() > 0 }

// WarningStatus is the stored status of a warning or report.
type WarningStatus string

const (
	StatusActive   WarningStatus = "Active"
	StatusInactive WarningStatus = "Inactive"
)

// Case names a rung of the escalation ladder.
type Case string

const (
	CaseA     Case = "A"     // Second Verbal + Coaching
	CaseB     Case = "B"     // Written Warning
	CaseC     Case = "C"     // Offboarding
	CaseD     Case = "D"     // Leader's first failure to act
	CaseE     Case = "E"     // Leader's repeat failure to act
	CaseFirst Case = "First" // Baseline first Verbal warning

	// CaseReview is returned when the ladder cannot classify the warning set
	// unambiguously. Callers route it to a human instead of acting on it.
	CaseReview Case = "Review"
)

// Priority of a recommendation.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// Rank orders priorities: Low < Medium < High < Critical.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	default:
		return 0
	}
}

// ReportKind is the kind of a leadership accountability record.
type ReportKind string

const (
	ReportFirst          ReportKind = "First Report"
	ReportSecond         ReportKind = "Second Report"
	ReportVerbalWarning  ReportKind = "Verbal Warning"
	ReportWrittenWarning ReportKind = "Written Warning"
)

// =============================================================================
// WARNING - One disciplinary action issued to an agent
// =============================================================================

type Warning struct {
	ID        string
	AgentID   AgentID
	Kind      WarningKind
	Metric    MetricType
	Subtype   string
	Notes     string
	IssuedBy  string
	IssuedAt  TimePoint
	ExpiresAt *TimePoint // nil = never expires
	Status    WarningStatus
	Weeks     WeekRange // performance weeks that prompted the warning
	Client    string
	Category  string
	CreatedAt time.Time
}

// IsActive reports whether the warning counts toward escalation at the given
// evaluation date: status Active and not yet expired. The expiration date
// itself is still valid (boundary-inclusive).
func (w Warning) IsActive(at TimePoint) bool {
	if w.Status != StatusActive {
		return false
	}
	return w.ExpiresAt == nil || w.ExpiresAt.AfterOrEqual(at)
}

// =============================================================================
// RECOMMENDATION - Decision artifact for one evaluation
// =============================================================================

type Recommendation struct {
	ID          string
	AgentID     AgentID
	Case        Case
	Metric      MetricType
	Action      string
	Priority    Priority
	Details     Details
	GeneratedAt time.Time
	Weeks       WeekRange

	// Set exactly once by MarkActioned.
	Actioned    bool
	ActionedBy  string
	ActionedAt  *time.Time
	ActionNotes string
}

// Details records what the decision was based on.
type Details struct {
	Counts Counts `json:"counts"`
	Reason string `json:"reason,omitempty"`
}

// MarkActioned records the human follow-up. It is a one-way transition.
func (r *Recommendation) MarkActioned(by string, at time.Time, notes string) error {
	if r.Actioned {
		return ErrAlreadyActioned
	}
	if by == "" {
		return &InputError{Field: "actioned_by", Reason: "required"}
	}
	r.Actioned = true
	r.ActionedBy = by
	r.ActionedAt = &at
	r.ActionNotes = notes
	return nil
}

// =============================================================================
// LEADERSHIP REPORT - Accountability record against a leader
// =============================================================================

type LeadershipReport struct {
	ID        string
	LeaderID  LeaderID
	AgentID   AgentID
	Metric    MetricType
	Kind      ReportKind
	IssuedBy  string
	IssuedAt  TimePoint
	ExpiresAt *TimePoint
	Active    bool
	Reason    string
	Weeks     WeekRange
	CreatedAt time.Time
}

// IsActive applies the same validity rule as Warning.IsActive.
func (r LeadershipReport) IsActive(at TimePoint) bool {
	if !r.Active {
		return false
	}
	return r.ExpiresAt == nil || r.ExpiresAt.AfterOrEqual(at)
}

// =============================================================================
// ACTION LOG - Free-text corrective actions
// =============================================================================

type ActionLogEntry struct {
	ID       string
	AgentID  AgentID
	Author   string
	LoggedAt TimePoint
	Note     string
}

// =============================================================================
// AGENT - Directory entry
// =============================================================================

// Agent is a directory entry. LeaderID is the supervisor held accountable
// under Cases D and E.
type Agent struct {
	ID        AgentID
	Name      string
	LeaderID  LeaderID
	Client    string
	CreatedAt time.Time
}

/*
store.go - Persistence interfaces for the escalation engine

PURPOSE:
  Defines the boundary between the engine and the record store. The engine
  only ever reads snapshots through these interfaces; writes are explicit
  steps performed by the caller with the values the engine returns.

KEY INTERFACES:
  WarningStore:        insert + read-active warnings
  LeadershipStore:     insert + read-active leadership reports
  RecommendationStore: insert, get, list, mark-actioned
  ActionLogStore:      free-text corrective action log
  AgentDirectory:      agents and their assigned leaders

READ-TIME EXPIRY:
  "Active" readers MUST apply: status = Active AND (expires_at IS NULL OR
  expires_at >= at). Nothing flips a stored status when a date passes, so
  reads never cause a state transition and two reads against the same
  state return the same set.

UNIQUENESS:
  InsertRecommendation must reject a second row for the same
  (agent, metric, week start, week end) with ErrDuplicateRecommendation.
  InsertLeadershipReports must reject a repeated
  (leader, agent, metric, kind, week start, week end) with ErrDuplicateReport.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - discipline/store/memory.go: In-memory for testing
*/
package discipline

import "context"

// ActiveWarningReader is the only read the escalation resolver needs.
type ActiveWarningReader interface {
	// ActiveWarnings returns the agent's warnings for the metric that are
	// active at the given date.
	ActiveWarnings(ctx context.Context, agentID AgentID, metric MetricType, at TimePoint) ([]Warning, error)
}

// WarningStore persists warnings.
type WarningStore interface {
	ActiveWarningReader

	// InsertWarning writes one new warning row.
	InsertWarning(ctx context.Context, w Warning) error

	// ListWarnings returns every warning for the agent, any status, ordered by IssuedAt.
	ListWarnings(ctx context.Context, agentID AgentID) ([]Warning, error)
}

// LeadershipStore persists leadership accountability reports.
type LeadershipStore interface {
	// InsertLeadershipReports writes reports atomically. Either all succeed or none do.
	InsertLeadershipReports(ctx context.Context, reports []LeadershipReport) error

	// ActiveLeadershipReports returns the leader's reports active at the given date.
	ActiveLeadershipReports(ctx context.Context, leaderID LeaderID, at TimePoint) ([]LeadershipReport, error)

	// ListLeadershipReports returns every report for the leader, any status.
	ListLeadershipReports(ctx context.Context, leaderID LeaderID) ([]LeadershipReport, error)
}

// RecommendationStore persists engine output.
type RecommendationStore interface {
	InsertRecommendation(ctx context.Context, rec Recommendation) error
	GetRecommendation(ctx context.Context, id string) (*Recommendation, error)

	// FindRecommendation returns the row for a trigger, or nil.
	FindRecommendation(ctx context.Context, agentID AgentID, metric MetricType, weeks WeekRange) (*Recommendation, error)

	ListRecommendations(ctx context.Context, filter RecommendationFilter) ([]Recommendation, error)

	// MarkRecommendationActioned sets the actioned fields. Must fail with
	// ErrAlreadyActioned if they are already set.
	MarkRecommendationActioned(ctx context.Context, rec Recommendation) error
}

type RecommendationFilter struct {
	AgentID     *AgentID
	Metric      *MetricType
	PendingOnly bool
}

// ActionLogStore persists free-text corrective actions.
type ActionLogStore interface {
	InsertAction(ctx context.Context, entry ActionLogEntry) error

	// ListActions returns the agent's entries logged within [from, to].
	ListActions(ctx context.Context, agentID AgentID, from, to TimePoint) ([]ActionLogEntry, error)
}

// AgentDirectory resolves agents and their assigned leaders.
type AgentDirectory interface {
	SaveAgent(ctx context.Context, a Agent) error

	// GetAgent returns nil, nil when the agent is unknown.
	GetAgent(ctx context.Context, id AgentID) (*Agent, error)
	ListAgents(ctx context.Context) ([]Agent, error)
}

// Store is the full record store the workflow layer works against.
type Store interface {
	WarningStore
	LeadershipStore
	RecommendationStore
	ActionLogStore
}

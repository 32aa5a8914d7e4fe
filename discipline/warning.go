package discipline

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// =============================================================================
// WARNING LIFECYCLE - Record and read-active
// =============================================================================

// WarningRequest is what a supervisor submits when recording a warning.
type WarningRequest struct {
	AgentID  AgentID
	Kind     WarningKind
	Metric   MetricType
	Subtype  string
	Notes    string
	IssuedBy string
	// IssuedAt defaults to today.
	IssuedAt TimePoint
	Weeks    WeekRange
	Client   string
	Category string
}

func (r WarningRequest) Validate() error {
	if r.AgentID == "" {
		return &InputError{Field: "agent_id", Reason: "required"}
	}
	if !r.Kind.Valid() {
		return &InputError{Field: "kind", Reason: "must be Coaching, Verbal or Written"}
	}
	if !r.Metric.Valid() {
		return &InputError{Field: "metric", Reason: "must be Production or QA"}
	}
	if r.IssuedBy == "" {
		return &InputError{Field: "issued_by", Reason: "required"}
	}
	if !r.Weeks.IsZero() {
		return r.Weeks.Validate()
	}
	return nil
}

// Lifecycle writes new warnings and reads active ones.
type Lifecycle struct {
	Store  WarningStore
	Policy Policy
	Clock  Clock
}

func NewLifecycle(store WarningStore, policy Policy) *Lifecycle {
	return &Lifecycle{Store: store, Policy: policy}
}

// NewWarning builds the Active row for a request without writing it.
// Expiry is issue date + the policy duration for the kind.
func (l *Lifecycle) NewWarning(req WarningRequest) (Warning, error) {
	if err := req.Validate(); err != nil {
		return Warning{}, err
	}
	now := l.Clock.now()
	issued := req.IssuedAt
	if issued.IsZero() {
		issued = FromTime(now)
	}
	return Warning{
		ID:        uuid.NewString(),
		AgentID:   req.AgentID,
		Kind:      req.Kind,
		Metric:    req.Metric,
		Subtype:   req.Subtype,
		Notes:     req.Notes,
		IssuedBy:  req.IssuedBy,
		IssuedAt:  issued,
		ExpiresAt: l.Policy.ExpiryFor(req.Kind, issued),
		Status:    StatusActive,
		Weeks:     req.Weeks,
		Client:    req.Client,
		Category:  req.Category,
		CreatedAt: now,
	}, nil
}

// Record validates, computes expiry and writes one Active row.
func (l *Lifecycle) Record(ctx context.Context, req WarningRequest) (*Warning, error) {
	w, err := l.NewWarning(req)
	if err != nil {
		return nil, err
	}
	if err := l.Store.InsertWarning(ctx, w); err != nil {
		return nil, &StoreError{Op: "insert warning", Err: err}
	}
	return &w, nil
}

// Active returns the agent's active warnings for a metric at the given date.
func (l *Lifecycle) Active(ctx context.Context, agentID AgentID, metric MetricType, at TimePoint) ([]Warning, error) {
	if agentID == "" {
		return nil, &InputError{Field: "agent_id", Reason: "required"}
	}
	if !metric.Valid() {
		return nil, &InputError{Field: "metric", Reason: "must be Production or QA"}
	}
	ws, err := l.Store.ActiveWarnings(ctx, agentID, metric, at)
	if err != nil {
		return nil, &StoreError{Op: "read active warnings", Err: err}
	}
	return ws, nil
}

// FilterActive keeps warnings active at the given date for the metric,
// ordered by IssuedAt. Store implementations use it to share the rule.
func FilterActive(ws []Warning, agentID AgentID, metric MetricType, at TimePoint) []Warning {
	var out []Warning
	for _, w := range ws {
		if w.AgentID == agentID && w.Metric == metric && w.IsActive(at) {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

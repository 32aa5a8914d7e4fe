package discipline

import (
	"context"

	"github.com/google/uuid"
)

// =============================================================================
// ESCALATION RESOLVER
// =============================================================================

// EvaluationRequest identifies one agent/metric/period to evaluate.
type EvaluationRequest struct {
	AgentID AgentID
	Metric  MetricType
	Weeks   WeekRange
	// At is the evaluation date. Zero means "today" per the resolver's clock.
	At TimePoint
}

// Validate rejects requests before anything is read.
func (r EvaluationRequest) Validate() error {
	if r.AgentID == "" {
		return &InputError{Field: "agent_id", Reason: "required"}
	}
	if !r.Metric.Valid() {
		return &InputError{Field: "metric", Reason: "must be Production or QA"}
	}
	return r.Weeks.Validate()
}

// Resolver orchestrates the ladder for one evaluation. It has no side
// effects: persisting the returned recommendation is the caller's job.
type Resolver struct {
	Warnings ActiveWarningReader
	Ladder   []Rule
	Clock    Clock
}

func NewResolver(warnings ActiveWarningReader) *Resolver {
	return &Resolver{Warnings: warnings, Ladder: DefaultLadder()}
}

// Resolve returns exactly one recommendation, or an error with no result.
// A failed warning read aborts evaluation: an incomplete list must never
// yield an under-escalated recommendation.
func (r *Resolver) Resolve(ctx context.Context, req EvaluationRequest) (*Recommendation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.Clock.now()
	at := req.At
	if at.IsZero() {
		at = FromTime(now)
	}

	warnings, err := r.Warnings.ActiveWarnings(ctx, req.AgentID, req.Metric, at)
	if err != nil {
		return nil, &StoreError{Op: "read active warnings", Err: err}
	}

	active := make([]Warning, 0, len(warnings))
	for _, w := range warnings {
		if w.AgentID == req.AgentID && w.Metric == req.Metric && w.IsActive(at) {
			active = append(active, w)
		}
	}

	ladder := r.Ladder
	if ladder == nil {
		ladder = DefaultLadder()
	}
	out := EvaluateLadder(ladder, active)

	return &Recommendation{
		ID:          uuid.NewString(),
		AgentID:     req.AgentID,
		Case:        out.Case,
		Metric:      req.Metric,
		Action:      out.Action,
		Priority:    out.Priority,
		Details:     out.Details,
		GeneratedAt: now,
		Weeks:       req.Weeks,
	}, nil
}

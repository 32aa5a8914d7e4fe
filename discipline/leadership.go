/*
leadership.go - Leadership accountability evaluator (Cases D and E)

PURPOSE:
  A second state machine, independent of the agent ladder, that disciplines
  a leader who failed to act on a subordinate's underperformance.

RULES:
  Inaction:
    underperforming weeks in the period > Policy.WeekThreshold
    AND no warning issued to the agent and no action-log entry within
    +/- Policy.ActionWindowDays of the first underperforming week's start
    (boundary-inclusive).

  Case D (first offense): inaction and the leader has no active report.
    -> First Report + Verbal Warning for the leader. Priority High.

  Case E (repeat offense): inaction and the leader has >= 1 active report.
    -> Second Report + Written Warning for the leader. Priority Critical.
    More prior reports never raise severity beyond E.

  Already reported: an active report for the same leader, agent and metric
  whose week range overlaps the period means this lapse was already
  handled; nothing further applies. A trailing sweep window that slides
  forward therefore never escalates its own earlier report to Case E.

COUNTING MODE:
  CountTotal counts every underperforming week in the supplied period.
  CountConsecutive counts the longest run of calendar-adjacent weeks and
  anchors the action window at the start of that run.

SEE ALSO:
  - performance/reader.go: Builds []WeekResult from weekly rows
  - workflow/service.go: Persists the returned reports
*/
package discipline

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// LeadershipRequest carries one leader/agent/period to evaluate.
type LeadershipRequest struct {
	LeaderID LeaderID
	AgentID  AgentID
	Metric   MetricType
	Weeks    []WeekResult
	// At is the evaluation date. Zero means today.
	At       TimePoint
	IssuedBy string
}

func (r LeadershipRequest) Validate() error {
	if r.LeaderID == "" {
		return &InputError{Field: "leader_id", Reason: "required"}
	}
	if r.AgentID == "" {
		return &InputError{Field: "agent_id", Reason: "required"}
	}
	if !r.Metric.Valid() {
		return &InputError{Field: "metric", Reason: "must be Production or QA"}
	}
	for _, w := range r.Weeks {
		if err := w.Week.Validate(); err != nil {
			return err
		}
	}

	sorted := make([]WeekResult, len(r.Weeks))
	copy(sorted, r.Weeks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Week.Start.Before(sorted[j].Week.Start) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Week.Overlaps(sorted[i-1].Week) {
			return &InputError{Field: "weeks", Reason: fmt.Sprintf("week %s overlaps %s", sorted[i].Week, sorted[i-1].Week)}
		}
	}
	return nil
}

// Period spans the supplied weeks.
func (r LeadershipRequest) Period() WeekRange {
	var p WeekRange
	for i, w := range r.Weeks {
		if i == 0 || w.Week.Start.Before(p.Start) {
			p.Start = w.Week.Start
		}
		if i == 0 || w.Week.End.After(p.End) {
			p.End = w.Week.End
		}
	}
	return p
}

// LeadershipOutcome is the evaluator's result.
type LeadershipOutcome struct {
	Applies         bool
	AlreadyReported bool
	Case            Case
	Priority        Priority
	Action          string
	// Reports to persist: the accountability report and the mandated
	// warning for the leader.
	Reports              []LeadershipReport
	UnderperformingWeeks int
	FirstWeek            TimePoint
	ActionFound          bool
}

// LeadershipEvaluator holds leaders accountable for inaction.
type LeadershipEvaluator struct {
	Reports  LeadershipStore
	Warnings WarningStore
	Actions  ActionLogStore
	Policy   Policy
	Clock    Clock
}

func NewLeadershipEvaluator(store Store, policy Policy) *LeadershipEvaluator {
	return &LeadershipEvaluator{Reports: store, Warnings: store, Actions: store, Policy: policy}
}

// Evaluate decides between no action, Case D and Case E.
func (e *LeadershipEvaluator) Evaluate(ctx context.Context, req LeadershipRequest) (*LeadershipOutcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := e.Clock.now()
	at := req.At
	if at.IsZero() {
		at = FromTime(now)
	}

	count, first := CountUnderperforming(req.Weeks, e.Policy.CountingMode)
	out := &LeadershipOutcome{UnderperformingWeeks: count, FirstWeek: first}
	if count <= e.Policy.WeekThreshold {
		return out, nil
	}

	acted, err := e.leaderActed(ctx, req.AgentID, first)
	if err != nil {
		return nil, err
	}
	out.ActionFound = acted
	if acted {
		return out, nil
	}

	active, err := e.Reports.ActiveLeadershipReports(ctx, req.LeaderID, at)
	if err != nil {
		return nil, &StoreError{Op: "read active leadership reports", Err: err}
	}

	period := req.Period()
	var prior int
	for _, r := range active {
		if !r.IsActive(at) {
			continue
		}
		if r.AgentID == req.AgentID && r.Metric == req.Metric && r.Weeks.Overlaps(period) {
			out.AlreadyReported = true
			return out, nil
		}
		prior++
	}

	issuer := req.IssuedBy
	if issuer == "" {
		issuer = "system"
	}
	reason := fmt.Sprintf("%d underperforming %s weeks for %s since %s with no corrective action within %d days",
		count, req.Metric, req.AgentID, first, e.Policy.ActionWindowDays)

	report := func(kind ReportKind) LeadershipReport {
		return LeadershipReport{
			ID:        uuid.NewString(),
			LeaderID:  req.LeaderID,
			AgentID:   req.AgentID,
			Metric:    req.Metric,
			Kind:      kind,
			IssuedBy:  issuer,
			IssuedAt:  at,
			ExpiresAt: e.Policy.ReportExpiryFor(at),
			Active:    true,
			Reason:    reason,
			Weeks:     period,
			CreatedAt: now,
		}
	}

	out.Applies = true
	if prior > 0 {
		out.Case = CaseE
		out.Priority = PriorityCritical
		out.Action = ActionLeaderWritten
		out.Reports = []LeadershipReport{report(ReportSecond), report(ReportWrittenWarning)}
	} else {
		out.Case = CaseD
		out.Priority = PriorityHigh
		out.Action = ActionLeaderVerbal
		out.Reports = []LeadershipReport{report(ReportFirst), report(ReportVerbalWarning)}
	}
	return out, nil
}

// leaderActed looks for any warning issued to the agent or any logged action
// within the window around the first underperforming week.
func (e *LeadershipEvaluator) leaderActed(ctx context.Context, agentID AgentID, first TimePoint) (bool, error) {
	window := e.Policy.ActionWindowDays
	from, to := first.AddDays(-window), first.AddDays(window)

	warnings, err := e.Warnings.ListWarnings(ctx, agentID)
	if err != nil {
		return false, &StoreError{Op: "list warnings", Err: err}
	}
	for _, w := range warnings {
		if w.Kind == KindCoaching && !e.Policy.CoachingCountsAsAction {
			continue
		}
		if w.IssuedAt.AfterOrEqual(from) && w.IssuedAt.BeforeOrEqual(to) {
			return true, nil
		}
	}

	actions, err := e.Actions.ListActions(ctx, agentID, from, to)
	if err != nil {
		return false, &StoreError{Op: "list actions", Err: err}
	}
	for _, a := range actions {
		if WithinDays(a.LoggedAt, first, window) {
			return true, nil
		}
	}
	return false, nil
}

// CountUnderperforming counts underperforming weeks per mode and returns the
// start of the first counted week.
func CountUnderperforming(weeks []WeekResult, mode CountingMode) (int, TimePoint) {
	sorted := make([]WeekResult, len(weeks))
	copy(sorted, weeks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Week.Start.Before(sorted[j].Week.Start) })

	if mode == CountConsecutive {
		var best, run int
		var bestStart, runStart TimePoint
		var prev *WeekResult
		for i := range sorted {
			w := sorted[i]
			if !w.Underperforming {
				run, prev = 0, nil
				continue
			}
			if prev != nil && DaysBetween(prev.Week.End, w.Week.Start) <= 1 {
				run++
			} else {
				run, runStart = 1, w.Week.Start
			}
			if run > best {
				best, bestStart = run, runStart
			}
			prev = &sorted[i]
		}
		return best, bestStart
	}

	var count int
	var first TimePoint
	for _, w := range sorted {
		if !w.Underperforming {
			continue
		}
		if count == 0 {
			first = w.Week.Start
		}
		count++
	}
	return count, first
}

/*
Package performance supplies weekly performance data to the escalation engine.

PURPOSE:
  The Performance Window Reader. Weekly rows hold a score per agent and
  metric; this package classifies each week (OK / Low / Critical), turns a
  period's rows into the []discipline.WeekResult the leadership evaluator
  consumes, and derives the AtRiskFlag used by dashboards.

CLASSIFICATION:
  A row may arrive already flagged (imported from the QA/production
  reports). When the flag is empty it is derived from the score:

    score <  Critical threshold  -> Critical
    score <  Low threshold       -> Low
    otherwise                    -> OK

  Scores and thresholds are decimal.Decimal so a 79.995% QA score is never
  rounded across a cut-off.

AT-RISK:
  Derived, never authoritative, never an engine input. An agent is at risk
  once the underperforming-week count (per the policy's counting mode)
  reaches the policy's week threshold, one week before Case D can fire.

SEE ALSO:
  - discipline/leadership.go: Consumes WeekResult
  - store/sqlite/sqlite.go: Persists WeeklyPerformance rows
*/
package performance

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/deadlyrat/qperform-server-dev/discipline"
)

// Flag is the classification of one performance week.
type Flag string

const (
	FlagOK       Flag = "OK"
	FlagLow      Flag = "Low"
	FlagCritical Flag = "Critical"
)

// Underperforming reports whether the flag counts toward escalation.
func (f Flag) Underperforming() bool {
	return f == FlagLow || f == FlagCritical
}

func (f Flag) Valid() bool {
	return f == FlagOK || f == FlagLow || f == FlagCritical
}

// WeeklyPerformance is one agent/metric/week row.
type WeeklyPerformance struct {
	AgentID discipline.AgentID
	Metric  discipline.MetricType
	Week    discipline.WeekRange
	Score   decimal.Decimal
	Target  decimal.Decimal
	Flag    Flag
}

// Store reads and writes weekly rows.
type Store interface {
	UpsertPerformance(ctx context.Context, row WeeklyPerformance) error

	// ListPerformance returns rows whose week starts within [from, to], ordered by week start.
	ListPerformance(ctx context.Context, agentID discipline.AgentID, metric discipline.MetricType, from, to discipline.TimePoint) ([]WeeklyPerformance, error)
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Classify derives a flag from a score. Without thresholds every score is OK.
func Classify(score decimal.Decimal, th *discipline.Thresholds) Flag {
	if th == nil {
		return FlagOK
	}
	if score.LessThan(th.Critical) {
		return FlagCritical
	}
	if score.LessThan(th.Low) {
		return FlagLow
	}
	return FlagOK
}

// Resolve returns the row's stored flag, or classifies the score when none
// was supplied.
func (r WeeklyPerformance) Resolve(policy discipline.Policy) Flag {
	if r.Flag != "" {
		return r.Flag
	}
	th, ok := policy.Thresholds[r.Metric]
	if !ok {
		return FlagOK
	}
	return Classify(r.Score, &th)
}

// Weeks converts rows into the evaluator's week results, ordered by start.
func Weeks(rows []WeeklyPerformance, policy discipline.Policy) []discipline.WeekResult {
	out := make([]discipline.WeekResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, discipline.WeekResult{
			Week:            r.Week,
			Underperforming: r.Resolve(policy).Underperforming(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Week.Start.Before(out[j].Week.Start) })
	return out
}

// =============================================================================
// AT-RISK FLAG
// =============================================================================

// AtRiskFlag marks an agent whose underperformance crossed the reporting threshold.
type AtRiskFlag struct {
	AgentID              discipline.AgentID
	Metric               discipline.MetricType
	Period               discipline.WeekRange
	UnderperformingWeeks int
	FirstWeek            discipline.TimePoint
	LatestFlag           Flag
}

// AtRisk derives the flag for one agent/metric from a period's rows.
func AtRisk(rows []WeeklyPerformance, policy discipline.Policy) (*AtRiskFlag, bool) {
	if len(rows) == 0 {
		return nil, false
	}
	weeks := Weeks(rows, policy)
	count, first := discipline.CountUnderperforming(weeks, policy.CountingMode)
	threshold := policy.WeekThreshold
	if threshold < 1 {
		threshold = 1
	}
	if count < threshold {
		return nil, false
	}

	latest := rows[0]
	for _, r := range rows[1:] {
		if r.Week.Start.After(latest.Week.Start) {
			latest = r
		}
	}
	return &AtRiskFlag{
		AgentID:              rows[0].AgentID,
		Metric:               rows[0].Metric,
		Period:               discipline.WeekRange{Start: weeks[0].Week.Start, End: weeks[len(weeks)-1].Week.End},
		UnderperformingWeeks: count,
		FirstWeek:            first,
		LatestFlag:           latest.Resolve(policy),
	}, true
}

// =============================================================================
// READER
// =============================================================================

// Reader answers "how did this agent perform over this window".
type Reader struct {
	Store  Store
	Policy discipline.Policy
}

func NewReader(store Store, policy discipline.Policy) *Reader {
	return &Reader{Store: store, Policy: policy}
}

// Weeks reads rows for the window and classifies them.
func (r *Reader) Weeks(ctx context.Context, agentID discipline.AgentID, metric discipline.MetricType, window discipline.WeekRange) ([]discipline.WeekResult, error) {
	rows, err := r.Store.ListPerformance(ctx, agentID, metric, window.Start, window.End)
	if err != nil {
		return nil, &discipline.StoreError{Op: "list performance", Err: err}
	}
	return Weeks(rows, r.Policy), nil
}

// AtRisk reads rows for the window and derives the flag.
func (r *Reader) AtRisk(ctx context.Context, agentID discipline.AgentID, metric discipline.MetricType, window discipline.WeekRange) (*AtRiskFlag, bool, error) {
	rows, err := r.Store.ListPerformance(ctx, agentID, metric, window.Start, window.End)
	if err != nil {
		return nil, false, &discipline.StoreError{Op: "list performance", Err: err}
	}
	flag, ok := AtRisk(rows, r.Policy)
	return flag, ok, nil
}

// Validate checks a row before it is written.
func (r WeeklyPerformance) Validate() error {
	if r.AgentID == "" {
		return &discipline.InputError{Field: "agent_id", Reason: "required"}
	}
	if !r.Metric.Valid() {
		return &discipline.InputError{Field: "metric", Reason: "must be Production or QA"}
	}
	if r.Flag != "" && !r.Flag.Valid() {
		return &discipline.InputError{Field: "flag", Reason: "must be OK, Low or Critical"}
	}
	return r.Week.Validate()
}

/*
policy.go - Escalation policy configuration

PURPOSE:
  Every tunable the engine depends on lives in a Policy value handed to the
  evaluators at construction. Nothing is read from package-level state, so
  tests can run the same inputs under several policies side by side.

TUNABLES:
  Expiry:                 Days each warning kind stays active (0 = never)
  ReportExpiryDays:       Days a leadership report stays active
  WeekThreshold:          Case D needs MORE than this many underperforming weeks
  CountingMode:           total weeks in the period, or longest consecutive run
  ActionWindowDays:       +/- days around the first underperforming week in
                          which any warning or logged action counts as "acted"
  CoachingCountsAsAction: whether a Coaching warning satisfies that check
  Thresholds:             Score cut-offs that classify a week Low/Critical

EXAMPLE:
  p := discipline.Policy{
      Expiry:           map[WarningKind]int{KindVerbal: 90, KindWritten: 180},
      ReportExpiryDays: 180,
      WeekThreshold:    2,
      CountingMode:     CountTotal,
      ActionWindowDays: 7,
  }

SEE ALSO:
  - factory/policy.go: Defaults and TOML/JSON loading
*/
package discipline

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CountingMode decides how underperforming weeks are counted for Case D.
type CountingMode string

const (
	// CountTotal counts every underperforming week in the period.
	CountTotal CountingMode = "total"
	// CountConsecutive counts the longest run of adjacent underperforming weeks.
	CountConsecutive CountingMode = "consecutive"
)

// Policy holds the escalation configuration.
type Policy struct {
	Expiry                 map[WarningKind]int
	ReportExpiryDays       int
	WeekThreshold          int
	CountingMode           CountingMode
	ActionWindowDays       int
	CoachingCountsAsAction bool
	Thresholds             map[MetricType]Thresholds
}

// Thresholds classify a weekly score. A score below Low is "Low"; below
// Critical is "Critical". Critical must not exceed Low.
type Thresholds struct {
	Low      decimal.Decimal
	Critical decimal.Decimal
}

// ExpiryFor returns the expiration date for a warning of the given kind
// issued on the given day, or nil if that kind never expires.
func (p Policy) ExpiryFor(kind WarningKind, issued TimePoint) *TimePoint {
	days := p.Expiry[kind]
	if days <= 0 {
		return nil
	}
	exp := issued.AddDays(days)
	return &exp
}

// ReportExpiryFor returns the expiration date of a leadership report.
func (p Policy) ReportExpiryFor(issued TimePoint) *TimePoint {
	if p.ReportExpiryDays <= 0 {
		return nil
	}
	exp := issued.AddDays(p.ReportExpiryDays)
	return &exp
}

// Validate rejects configurations the engine cannot apply.
func (p Policy) Validate() error {
	for kind, days := range p.Expiry {
		if !kind.Valid() {
			return &PolicyError{Field: "expiry", Reason: fmt.Sprintf("unknown warning kind %q", kind)}
		}
		if days < 0 {
			return &PolicyError{Field: "expiry." + string(kind), Reason: "must not be negative"}
		}
	}
	if p.ReportExpiryDays < 0 {
		return &PolicyError{Field: "report_expiry_days", Reason: "must not be negative"}
	}
	if p.WeekThreshold < 0 {
		return &PolicyError{Field: "week_threshold", Reason: "must not be negative"}
	}
	if p.ActionWindowDays < 0 {
		return &PolicyError{Field: "action_window_days", Reason: "must not be negative"}
	}
	switch p.CountingMode {
	case CountTotal, CountConsecutive:
	default:
		return &PolicyError{Field: "counting_mode", Reason: fmt.Sprintf("unknown mode %q", p.CountingMode)}
	}
	for metric, th := range p.Thresholds {
		if !metric.Valid() {
			return &PolicyError{Field: "thresholds", Reason: fmt.Sprintf("unknown metric %q", metric)}
		}
		if th.Critical.GreaterThan(th.Low) {
			return &PolicyError{Field: "thresholds." + string(metric), Reason: "critical above low"}
		}
	}
	return nil
}

package discipline

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Calendar date used for issue/expiry/evaluation dates
// =============================================================================

// TimePoint is a calendar day in UTC. All escalation comparisons are
// day-granular: a warning expiring on the 10th is still active on the 10th.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func FromTime(t time.Time) TimePoint {
	t = t.UTC()
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

func Today() TimePoint { return FromTime(time.Now()) }

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return FromTime(t), nil
}

const DateLayout = "2006-01-02"

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.day().Before(other.day()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.day().Equal(other.day()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.day().After(other.day()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

func (tp TimePoint) day() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.day().AddDate(0, 0, n)} }

func (tp TimePoint) IsZero() bool   { return tp.Time.IsZero() }
func (tp TimePoint) String() string { return tp.Time.Format(DateLayout) }

// DaysBetween returns the signed number of days from -> to.
func DaysBetween(from, to TimePoint) int {
	return int(to.day().Sub(from.day()).Hours() / 24)
}

// WithinDays reports whether a and b are at most n days apart (inclusive).
func WithinDays(a, b TimePoint, n int) bool {
	d := DaysBetween(a, b)
	if d < 0 {
		d = -d
	}
	return d <= n
}

// Clock supplies the evaluation date. Tests pin it.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// =============================================================================
// WEEK RANGE - The performance weeks an evaluation covers
// =============================================================================

// WeekRange is an inclusive [Start, End] span of performance weeks.
type WeekRange struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the day is within [Start, End].
func (w WeekRange) Contains(t TimePoint) bool {
	return t.AfterOrEqual(w.Start) && t.BeforeOrEqual(w.End)
}

func (w WeekRange) Equal(other WeekRange) bool {
	return w.Start.Equal(other.Start) && w.End.Equal(other.End)
}

// Overlaps returns true if the two ranges share at least one day.
func (w WeekRange) Overlaps(other WeekRange) bool {
	return !w.End.Before(other.Start) && !other.End.Before(w.Start)
}

func (w WeekRange) IsZero() bool { return w.Start.IsZero() && w.End.IsZero() }

// Validate rejects ranges whose end precedes their start.
func (w WeekRange) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return &InputError{Field: "weeks", Reason: "start and end are required"}
	}
	if w.End.Before(w.Start) {
		return &InputError{Field: "weeks", Reason: "end before start"}
	}
	return nil
}

func (w WeekRange) String() string {
	return "[" + w.Start.String() + ", " + w.End.String() + "]"
}

// WeekResult is one performance week of an evaluation period, already
// classified by the performance reader.
type WeekResult struct {
	Week            WeekRange
	Underperforming bool
}

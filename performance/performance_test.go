package performance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deadlyrat/qperform-server-dev/discipline"
	"github.com/deadlyrat/qperform-server-dev/performance"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func policy() discipline.Policy {
	return discipline.Policy{
		WeekThreshold: 2,
		CountingMode:  discipline.CountTotal,
		Thresholds: map[discipline.MetricType]discipline.Thresholds{
			discipline.MetricQA: {Low: decimal.NewFromInt(85), Critical: decimal.NewFromInt(75)},
		},
	}
}

func row(week int, score string, flag performance.Flag) performance.WeeklyPerformance {
	start := discipline.NewTimePoint(2025, time.April, 7).AddDays(7 * week)
	return performance.WeeklyPerformance{
		AgentID: "agent@example.com",
		Metric:  discipline.MetricQA,
		Week:    discipline.WeekRange{Start: start, End: start.AddDays(6)},
		Score:   decimal.RequireFromString(score),
		Target:  decimal.NewFromInt(90),
		Flag:    flag,
	}
}

type fakeStore struct {
	rows []performance.WeeklyPerformance
	err  error
}

func (f *fakeStore) UpsertPerformance(_ context.Context, r performance.WeeklyPerformance) error {
	f.rows = append(f.rows, r)
	return f.err
}

func (f *fakeStore) ListPerformance(_ context.Context, _ discipline.AgentID, _ discipline.MetricType, _, _ discipline.TimePoint) ([]performance.WeeklyPerformance, error) {
	return f.rows, f.err
}

// =============================================================================
// TESTS
// =============================================================================

func TestClassify(t *testing.T) {
	th := policy().Thresholds[discipline.MetricQA]

	tests := []struct {
		score string
		want  performance.Flag
	}{
		{"92.5", performance.FlagOK},
		{"85", performance.FlagOK},
		{"84.999", performance.FlagLow},
		{"75", performance.FlagLow},
		{"74.99", performance.FlagCritical},
		{"0", performance.FlagCritical},
	}
	for _, tt := range tests {
		t.Run(tt.score, func(t *testing.T) {
			assert.Equal(t, tt.want, performance.Classify(decimal.RequireFromString(tt.score), &th))
		})
	}

	assert.Equal(t, performance.FlagOK, performance.Classify(decimal.Zero, nil))
}

func TestResolve_PrefersSuppliedFlag(t *testing.T) {
	r := row(0, "99", performance.FlagCritical)
	assert.Equal(t, performance.FlagCritical, r.Resolve(policy()))

	r = row(0, "80", "")
	assert.Equal(t, performance.FlagLow, r.Resolve(policy()))

	r.Metric = discipline.MetricProduction
	assert.Equal(t, performance.FlagOK, r.Resolve(policy()), "no production thresholds configured")
}

func TestWeeks_SortedAndClassified(t *testing.T) {
	rows := []performance.WeeklyPerformance{row(2, "70", ""), row(0, "90", ""), row(1, "80", "")}

	weeks := performance.Weeks(rows, policy())
	require.Len(t, weeks, 3)
	assert.Equal(t, "2025-04-07", weeks[0].Week.Start.String())
	assert.False(t, weeks[0].Underperforming)
	assert.True(t, weeks[1].Underperforming)
	assert.True(t, weeks[2].Underperforming)
}

func TestAtRisk(t *testing.T) {
	// GIVEN: Two underperforming weeks out of three
	// THEN: At risk (threshold reached), latest flag Critical
	rows := []performance.WeeklyPerformance{row(0, "90", ""), row(1, "80", ""), row(2, "70", "")}

	flag, ok := performance.AtRisk(rows, policy())
	require.True(t, ok)
	assert.Equal(t, 2, flag.UnderperformingWeeks)
	assert.Equal(t, "2025-04-14", flag.FirstWeek.String())
	assert.Equal(t, performance.FlagCritical, flag.LatestFlag)
	assert.Equal(t, "2025-04-07", flag.Period.Start.String())
	assert.Equal(t, "2025-04-27", flag.Period.End.String())

	_, ok = performance.AtRisk(rows[:2], policy())
	assert.False(t, ok)

	_, ok = performance.AtRisk(nil, policy())
	assert.False(t, ok)
}

func TestReader_PropagatesStoreErrors(t *testing.T) {
	reader := performance.NewReader(&fakeStore{err: errors.New("locked")}, policy())
	window := discipline.WeekRange{Start: discipline.NewTimePoint(2025, time.April, 7), End: discipline.NewTimePoint(2025, time.May, 4)}

	_, err := reader.Weeks(context.Background(), "agent@example.com", discipline.MetricQA, window)
	assert.ErrorIs(t, err, discipline.ErrStoreUnavailable)

	_, _, err = reader.AtRisk(context.Background(), "agent@example.com", discipline.MetricQA, window)
	assert.ErrorIs(t, err, discipline.ErrStoreUnavailable)
}

func TestValidate(t *testing.T) {
	r := row(0, "90", "")
	assert.NoError(t, r.Validate())

	r.Flag = "Bad"
	assert.ErrorIs(t, r.Validate(), discipline.ErrInvalidInput)

	r = row(0, "90", "")
	r.Week.End = r.Week.Start.AddDays(-1)
	assert.ErrorIs(t, r.Validate(), discipline.ErrInvalidInput)
}

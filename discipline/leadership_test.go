package discipline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deadlyrat/qperform-server-dev/discipline"
	"github.com/deadlyrat/qperform-server-dev/discipline/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const leader discipline.LeaderID = "lead@example.com"

// weeks builds consecutive Monday-Sunday weeks starting 2025-04-07.
// flags[i] marks week i underperforming.
func weeks(flags ...bool) []discipline.WeekResult {
	start := date(2025, time.April, 7)
	out := make([]discipline.WeekResult, len(flags))
	for i, f := range flags {
		s := start.AddDays(7 * i)
		out[i] = discipline.WeekResult{
			Week:            discipline.WeekRange{Start: s, End: s.AddDays(6)},
			Underperforming: f,
		}
	}
	return out
}

func newEvaluator(t *testing.T, policy discipline.Policy) (*discipline.LeadershipEvaluator, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	e := discipline.NewLeadershipEvaluator(mem, policy)
	e.Clock = fixedClock(date(2025, time.May, 5))
	return e, mem
}

func leadershipRequest(ws []discipline.WeekResult) discipline.LeadershipRequest {
	return discipline.LeadershipRequest{
		LeaderID: leader,
		AgentID:  agent,
		Metric:   discipline.MetricQA,
		Weeks:    ws,
	}
}

// =============================================================================
// CASE D
// =============================================================================

func TestLeadership_ThreeWeeksNoAction_CaseD(t *testing.T) {
	// GIVEN: Three underperforming weeks, no warning, no logged action
	// WHEN: Evaluating the leader
	// THEN: Case D with a First Report and a Verbal Warning for the leader
	e, _ := newEvaluator(t, testPolicy())

	out, err := e.Evaluate(context.Background(), leadershipRequest(weeks(true, true, true, false)))
	require.NoError(t, err)

	require.True(t, out.Applies)
	assert.Equal(t, discipline.CaseD, out.Case)
	assert.Equal(t, discipline.PriorityHigh, out.Priority)
	assert.Equal(t, 3, out.UnderperformingWeeks)
	assert.Equal(t, "2025-04-07", out.FirstWeek.String())

	require.Len(t, out.Reports, 2)
	assert.Equal(t, discipline.ReportFirst, out.Reports[0].Kind)
	assert.Equal(t, discipline.ReportVerbalWarning, out.Reports[1].Kind)
	for _, r := range out.Reports {
		assert.Equal(t, leader, r.LeaderID)
		assert.Equal(t, agent, r.AgentID)
		assert.True(t, r.Active)
		assert.Equal(t, "2025-05-05", r.IssuedAt.String())
		require.NotNil(t, r.ExpiresAt)
		assert.Equal(t, "2025-11-01", r.ExpiresAt.String())
		assert.Equal(t, "2025-04-07", r.Weeks.Start.String())
		assert.Equal(t, "2025-05-04", r.Weeks.End.String())
	}
}

func TestLeadership_TwoWeeks_NotEnough(t *testing.T) {
	e, _ := newEvaluator(t, testPolicy())

	out, err := e.Evaluate(context.Background(), leadershipRequest(weeks(true, false, true, false)))
	require.NoError(t, err)
	assert.False(t, out.Applies, "threshold is strictly more than 2 weeks")
	assert.Equal(t, 2, out.UnderperformingWeeks)
}

func TestLeadership_ActionWindowBoundary(t *testing.T) {
	first := date(2025, time.April, 7)

	tests := []struct {
		name     string
		loggedAt discipline.TimePoint
		acted    bool
	}{
		{"exactly 7 days before", first.AddDays(-7), true},
		{"exactly 7 days after", first.AddDays(7), true},
		{"same day", first, true},
		{"8 days before", first.AddDays(-8), false},
		{"8 days after", first.AddDays(8), false},
	}

	for _, tt := range tests {
		t.Run("action log "+tt.name, func(t *testing.T) {
			e, mem := newEvaluator(t, testPolicy())
			require.NoError(t, mem.InsertAction(context.Background(), discipline.ActionLogEntry{
				ID: "a1", AgentID: agent, Author: string(leader), LoggedAt: tt.loggedAt, Note: "1:1 held",
			}))

			out, err := e.Evaluate(context.Background(), leadershipRequest(weeks(true, true, true)))
			require.NoError(t, err)
			assert.Equal(t, tt.acted, out.ActionFound)
			assert.Equal(t, !tt.acted, out.Applies)
		})

		t.Run("warning "+tt.name, func(t *testing.T) {
			e, mem := newEvaluator(t, testPolicy())
			require.NoError(t, mem.InsertWarning(context.Background(), discipline.Warning{
				ID: "w1", AgentID: agent, Kind: discipline.KindVerbal, Metric: discipline.MetricProduction,
				IssuedAt: tt.loggedAt, Status: discipline.StatusActive,
			}))

			out, err := e.Evaluate(context.Background(), leadershipRequest(weeks(true, true, true)))
			require.NoError(t, err)
			assert.Equal(t, tt.acted, out.ActionFound)
		})
	}
}

func TestLeadership_CoachingAsAction_Configurable(t *testing.T) {
	coaching := discipline.Warning{
		ID: "c1", AgentID: agent, Kind: discipline.KindCoaching, Metric: discipline.MetricQA,
		IssuedAt: date(2025, time.April, 9), Status: discipline.StatusActive,
	}

	e, mem := newEvaluator(t, testPolicy())
	require.NoError(t, mem.InsertWarning(context.Background(), coaching))
	out, err := e.Evaluate(context.Background(), leadershipRequest(weeks(true, true, true)))
	require.NoError(t, err)
	assert.False(t, out.Applies, "coaching counts as acting by default")

	strict := testPolicy()
	strict.CoachingCountsAsAction = false
	e, mem = newEvaluator(t, strict)
	require.NoError(t, mem.InsertWarning(context.Background(), coaching))
	out, err = e.Evaluate(context.Background(), leadershipRequest(weeks(true, true, true)))
	require.NoError(t, err)
	assert.True(t, out.Applies)
	assert.Equal(t, discipline.CaseD, out.Case)
}

// =============================================================================
// CASE E
// =============================================================================

func TestLeadership_PriorActiveReport_CaseE(t *testing.T) {
	// GIVEN: Leader already holds an active report for another agent
	// WHEN: A second lapse is detected
	// THEN: Case E, Second Report + Written Warning, Critical
	e, mem := newEvaluator(t, testPolicy())
	exp := date(2025, time.August, 1)
	require.NoError(t, mem.InsertLeadershipReports(context.Background(), []discipline.LeadershipReport{{
		ID: "r0", LeaderID: leader, AgentID: "other@example.com", Metric: discipline.MetricQA,
		Kind: discipline.ReportFirst, IssuedAt: date(2025, time.March, 1), ExpiresAt: &exp, Active: true,
		Weeks: discipline.WeekRange{Start: date(2025, time.February, 3), End: date(2025, time.March, 2)},
	}}))

	out, err := e.Evaluate(context.Background(), leadershipRequest(weeks(true, true, true)))
	require.NoError(t, err)
	require.True(t, out.Applies)
	assert.Equal(t, discipline.CaseE, out.Case)
	assert.Equal(t, discipline.PriorityCritical, out.Priority)
	require.Len(t, out.Reports, 2)
	assert.Equal(t, discipline.ReportSecond, out.Reports[0].Kind)
	assert.Equal(t, discipline.ReportWrittenWarning, out.Reports[1].Kind)
}

func TestLeadership_ExpiredPriorReport_FallsBackToD(t *testing.T) {
	e, mem := newEvaluator(t, testPolicy())
	exp := date(2025, time.January, 31)
	require.NoError(t, mem.InsertLeadershipReports(context.Background(), []discipline.LeadershipReport{{
		ID: "r0", LeaderID: leader, AgentID: "other@example.com", Metric: discipline.MetricQA,
		Kind: discipline.ReportFirst, IssuedAt: date(2024, time.August, 1), ExpiresAt: &exp, Active: true,
	}}))

	out, err := e.Evaluate(context.Background(), leadershipRequest(weeks(true, true, true)))
	require.NoError(t, err)
	assert.Equal(t, discipline.CaseD, out.Case)
}

func TestLeadership_ManyPriorReports_CappedAtE(t *testing.T) {
	e, mem := newEvaluator(t, testPolicy())
	for i, other := range []discipline.AgentID{"a@example.com", "b@example.com", "c@example.com"} {
		s := date(2025, time.January, 6).AddDays(28 * i)
		require.NoError(t, mem.InsertLeadershipReports(context.Background(), []discipline.LeadershipReport{{
			ID: string(other), LeaderID: leader, AgentID: other, Metric: discipline.MetricQA,
			Kind: discipline.ReportSecond, IssuedAt: date(2025, time.April, 1), Active: true,
			Weeks: discipline.WeekRange{Start: s, End: s.AddDays(27)},
		}}))
	}

	out, err := e.Evaluate(context.Background(), leadershipRequest(weeks(true, true, true)))
	require.NoError(t, err)
	assert.Equal(t, discipline.CaseE, out.Case)
	assert.Equal(t, discipline.PriorityCritical, out.Priority)
}

func TestLeadership_SameLapseNotEscalatedTwice(t *testing.T) {
	// GIVEN: Case D was persisted for this agent and period
	// WHEN: The same period is evaluated again
	// THEN: Nothing further applies (no self-escalation to E)
	e, mem := newEvaluator(t, testPolicy())
	ctx := context.Background()
	req := leadershipRequest(weeks(true, true, true, true))

	out, err := e.Evaluate(ctx, req)
	require.NoError(t, err)
	require.Equal(t, discipline.CaseD, out.Case)
	require.NoError(t, mem.InsertLeadershipReports(ctx, out.Reports))

	again, err := e.Evaluate(ctx, req)
	require.NoError(t, err)
	assert.False(t, again.Applies)
	assert.True(t, again.AlreadyReported)
}

func TestLeadership_OverlappingReportedPeriodNotEscalated(t *testing.T) {
	// GIVEN: Case D was persisted for Apr 7 - May 4
	e, mem := newEvaluator(t, testPolicy())
	ctx := context.Background()

	out, err := e.Evaluate(ctx, leadershipRequest(weeks(true, true, true, true)))
	require.NoError(t, err)
	require.Equal(t, discipline.CaseD, out.Case)
	require.NoError(t, mem.InsertLeadershipReports(ctx, out.Reports))

	// WHEN: The trailing window slides forward one week over the same lapse
	slid := weeks(true, true, true, true, true)[1:]
	again, err := e.Evaluate(ctx, leadershipRequest(slid))
	require.NoError(t, err)

	// THEN: The existing report covers it
	assert.False(t, again.Applies)
	assert.True(t, again.AlreadyReported)

	// WHEN: A later lapse shares no week with the reported one
	later := weeks(false, false, false, false, true, true, true, true)[4:]
	fresh, err := e.Evaluate(ctx, leadershipRequest(later))
	require.NoError(t, err)

	// THEN: It is a repeat offense
	assert.True(t, fresh.Applies)
	assert.Equal(t, discipline.CaseE, fresh.Case)
}

func TestLeadership_RepeatedWeeksRejected(t *testing.T) {
	e, _ := newEvaluator(t, testPolicy())
	one := weeks(true)[0]

	// GIVEN: One low week supplied three times
	// WHEN: Evaluating
	// THEN: The request is rejected instead of counting three weeks
	_, err := e.Evaluate(context.Background(), leadershipRequest([]discipline.WeekResult{one, one, one}))
	assert.ErrorIs(t, err, discipline.ErrInvalidInput)

	// Weeks that share days are rejected too
	shifted := discipline.WeekResult{
		Week:            discipline.WeekRange{Start: one.Week.Start.AddDays(3), End: one.Week.End.AddDays(3)},
		Underperforming: true,
	}
	err = leadershipRequest([]discipline.WeekResult{shifted, one}).Validate()
	assert.ErrorIs(t, err, discipline.ErrInvalidInput)

	// Adjacent weeks are fine
	assert.NoError(t, leadershipRequest(weeks(true, true, true)).Validate())
}

// =============================================================================
// COUNTING MODES AND ERRORS
// =============================================================================

func TestCountUnderperforming_Modes(t *testing.T) {
	ws := weeks(true, true, false, true, true, true, false)

	n, first := discipline.CountUnderperforming(ws, discipline.CountTotal)
	assert.Equal(t, 5, n)
	assert.Equal(t, "2025-04-07", first.String())

	n, first = discipline.CountUnderperforming(ws, discipline.CountConsecutive)
	assert.Equal(t, 3, n)
	assert.Equal(t, "2025-04-28", first.String())
}

func TestCountUnderperforming_GapBreaksRun(t *testing.T) {
	// Weeks 1 and 3 missing from the data: not adjacent.
	ws := weeks(true, true, true, true)
	ws = []discipline.WeekResult{ws[0], ws[2], ws[3]}

	n, _ := discipline.CountUnderperforming(ws, discipline.CountConsecutive)
	assert.Equal(t, 2, n)
	n, _ = discipline.CountUnderperforming(ws, discipline.CountTotal)
	assert.Equal(t, 3, n)
}

func TestLeadership_ConsecutiveMode(t *testing.T) {
	p := testPolicy()
	p.CountingMode = discipline.CountConsecutive
	e, _ := newEvaluator(t, p)

	out, err := e.Evaluate(context.Background(), leadershipRequest(weeks(true, false, true, false, true)))
	require.NoError(t, err)
	assert.False(t, out.Applies, "three scattered weeks are not consecutive")

	out, err = e.Evaluate(context.Background(), leadershipRequest(weeks(false, true, true, true)))
	require.NoError(t, err)
	assert.True(t, out.Applies)
	assert.Equal(t, "2025-04-14", out.FirstWeek.String())
}

func TestLeadership_StoreFailure(t *testing.T) {
	e, mem := newEvaluator(t, testPolicy())
	mem.FailWith = errors.New("disk I/O error")

	out, err := e.Evaluate(context.Background(), leadershipRequest(weeks(true, true, true)))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, discipline.ErrStoreUnavailable)
}

func TestLeadership_InvalidInput(t *testing.T) {
	e, _ := newEvaluator(t, testPolicy())
	req := leadershipRequest(weeks(true))
	req.LeaderID = ""

	_, err := e.Evaluate(context.Background(), req)
	assert.ErrorIs(t, err, discipline.ErrInvalidInput)
}

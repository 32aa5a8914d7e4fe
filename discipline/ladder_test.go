package discipline_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/deadlyrat/qperform-server-dev/discipline"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) discipline.TimePoint {
	return discipline.NewTimePoint(year, month, day)
}

func active(kind discipline.WarningKind, n int) []discipline.Warning {
	ws := make([]discipline.Warning, n)
	for i := range ws {
		ws[i] = discipline.Warning{
			ID:       fmt.Sprintf("%s-%d", kind, i),
			AgentID:  "agent@example.com",
			Kind:     kind,
			Metric:   discipline.MetricQA,
			IssuedAt: date(2025, time.March, 1),
			Status:   discipline.StatusActive,
		}
	}
	return ws
}

func mix(sets ...[]discipline.Warning) []discipline.Warning {
	var out []discipline.Warning
	for _, s := range sets {
		out = append(out, s...)
	}
	return out
}

// =============================================================================
// LADDER PRECEDENCE
// =============================================================================

func TestLadder_Precedence(t *testing.T) {
	tests := []struct {
		name     string
		warnings []discipline.Warning
		wantCase discipline.Case
		wantPrio discipline.Priority
	}{
		{"no warnings", nil, discipline.CaseFirst, discipline.PriorityLow},
		{"coaching only", active(discipline.KindCoaching, 3), discipline.CaseFirst, discipline.PriorityLow},
		{"one verbal", active(discipline.KindVerbal, 1), discipline.CaseA, discipline.PriorityMedium},
		{"one verbal plus coaching", mix(active(discipline.KindVerbal, 1), active(discipline.KindCoaching, 2)), discipline.CaseA, discipline.PriorityMedium},
		{"one verbal one written", mix(active(discipline.KindVerbal, 1), active(discipline.KindWritten, 1)), discipline.CaseA, discipline.PriorityMedium},
		{"two verbal", active(discipline.KindVerbal, 2), discipline.CaseB, discipline.PriorityHigh},
		{"three verbal", active(discipline.KindVerbal, 3), discipline.CaseB, discipline.PriorityHigh},
		{"five verbal one written", mix(active(discipline.KindVerbal, 5), active(discipline.KindWritten, 1)), discipline.CaseB, discipline.PriorityHigh},
		{"two written", active(discipline.KindWritten, 2), discipline.CaseC, discipline.PriorityCritical},
		{"two written three verbal", mix(active(discipline.KindWritten, 2), active(discipline.KindVerbal, 3)), discipline.CaseC, discipline.PriorityCritical},
		{"two written one verbal", mix(active(discipline.KindWritten, 2), active(discipline.KindVerbal, 1)), discipline.CaseC, discipline.PriorityCritical},
		{"one written alone", active(discipline.KindWritten, 1), discipline.CaseReview, discipline.PriorityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := discipline.EvaluateLadder(discipline.DefaultLadder(), tt.warnings)
			if !out.Applies {
				t.Fatal("ladder must always produce an outcome")
			}
			if out.Case != tt.wantCase {
				t.Errorf("expected case %s, got %s", tt.wantCase, out.Case)
			}
			if out.Priority != tt.wantPrio {
				t.Errorf("expected priority %s, got %s", tt.wantPrio, out.Priority)
			}
		})
	}
}

func TestLadder_VerbalMonotonic(t *testing.T) {
	// Adding Verbal warnings never de-escalates.
	prev := 0
	for n := 0; n <= 6; n++ {
		out := discipline.EvaluateLadder(discipline.DefaultLadder(), active(discipline.KindVerbal, n))
		if out.Priority.Rank() < prev {
			t.Errorf("verbal=%d de-escalated to %s", n, out.Priority)
		}
		prev = out.Priority.Rank()
	}
}

func TestLadder_ReviewCarriesReason(t *testing.T) {
	out := discipline.EvaluateLadder(discipline.DefaultLadder(), active(discipline.KindWritten, 1))
	if out.Details.Reason == "" {
		t.Error("review outcome should explain why it could not classify")
	}
	if out.Details.Counts.Written != 1 {
		t.Errorf("expected written count 1, got %d", out.Details.Counts.Written)
	}
}

func TestRule_DoesNotApply(t *testing.T) {
	out := discipline.RuleCaseC.Evaluate(discipline.Counts{Written: 1})
	if out.Applies {
		t.Error("case C must not fire with one written warning")
	}
	if out.Case != "" {
		t.Errorf("non-applying outcome should carry no case, got %s", out.Case)
	}
}

func TestLadder_InsertedRungKeepsExistingPrecedence(t *testing.T) {
	// GIVEN: A custom rung inserted after C
	// WHEN: Evaluating two written warnings
	// THEN: C still wins because it precedes the new rung
	custom := discipline.Rule{
		Case: "X", Priority: discipline.PriorityHigh, Action: "custom",
		Applies: func(c discipline.Counts) bool { return c.Coaching >= 1 || c.Written >= 1 },
	}
	ladder := discipline.DefaultLadder()
	ladder = append(ladder[:1], append([]discipline.Rule{custom}, ladder[1:]...)...)

	out := discipline.EvaluateLadder(ladder, active(discipline.KindWritten, 2))
	if out.Case != discipline.CaseC {
		t.Errorf("expected C, got %s", out.Case)
	}

	out = discipline.EvaluateLadder(ladder, active(discipline.KindCoaching, 1))
	if out.Case != "X" {
		t.Errorf("expected custom rung, got %s", out.Case)
	}

	if len(discipline.DefaultLadder()) != 3 {
		t.Error("DefaultLadder must not be mutated by callers")
	}
}

// =============================================================================
// WARNING VALIDITY
// =============================================================================

func TestWarning_IsActive(t *testing.T) {
	exp := date(2025, time.June, 10)
	w := discipline.Warning{Status: discipline.StatusActive, ExpiresAt: &exp}

	if !w.IsActive(date(2025, time.June, 9)) {
		t.Error("warning should be active before expiry")
	}
	if !w.IsActive(date(2025, time.June, 10)) {
		t.Error("warning should be active on its expiration date")
	}
	if w.IsActive(date(2025, time.June, 11)) {
		t.Error("warning should be inactive after expiry")
	}

	w.Status = discipline.StatusInactive
	if w.IsActive(date(2025, time.June, 1)) {
		t.Error("inactive status never counts")
	}

	never := discipline.Warning{Status: discipline.StatusActive}
	if !never.IsActive(date(2099, time.January, 1)) {
		t.Error("warning without expiry stays active")
	}
}

func TestWarningKind_Severity(t *testing.T) {
	if !(discipline.KindCoaching.Severity() < discipline.KindVerbal.Severity() &&
		discipline.KindVerbal.Severity() < discipline.KindWritten.Severity()) {
		t.Error("expected Coaching < Verbal < Written")
	}
	if discipline.WarningKind("Final").Valid() {
		t.Error("unknown kind must be invalid")
	}
}

func TestRecommendation_MarkActionedOnce(t *testing.T) {
	rec := discipline.Recommendation{ID: "r1"}
	at := time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)

	if err := rec.MarkActioned("lead@example.com", at, "done"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.Actioned || rec.ActionedBy != "lead@example.com" || rec.ActionedAt == nil {
		t.Error("actioned fields not set")
	}
	if err := rec.MarkActioned("other@example.com", at, ""); err != discipline.ErrAlreadyActioned {
		t.Errorf("expected ErrAlreadyActioned, got %v", err)
	}
	if rec.ActionedBy != "lead@example.com" {
		t.Error("second call must not overwrite actioned-by")
	}
}

/*
ladder.go - Case A/B/C evaluators

PURPOSE:
  The agent-facing escalation ladder as an ordered table of
  predicate/outcome pairs. The first rule whose predicate holds wins;
  when none does, the "First" baseline applies.

PRECEDENCE (most severe first):
  C  active Written >= 2   Critical  Offboarding
  B  active Verbal  >= 2   High      Written Warning
  A  active Verbal  == 1   Medium    Second Verbal + Coaching
  -- otherwise             Low       First Verbal Warning

  Severity-first: an agent with 2 Written and 3 Verbal warnings goes to C.
  Coaching warnings never gate any rung.

AMBIGUITY:
  The baseline presumes the agent holds no relevant active warnings. A set
  with one active Written and no active Verbal reaches the baseline while a
  Written warning is still in force; recommending a first Verbal there
  would de-escalate, so the ladder returns CaseReview instead.

SEE ALSO:
  - resolver.go: Feeds the ladder from the record store
*/
package discipline

// Counts summarizes an already-filtered set of active warnings.
type Counts struct {
	Coaching int `json:"coaching"`
	Verbal   int `json:"verbal"`
	Written  int `json:"written"`
}

// CountActive tallies warnings by kind. The caller is expected to pass only
// active warnings for one agent and one metric.
func CountActive(warnings []Warning) Counts {
	var c Counts
	for _, w := range warnings {
		switch w.Kind {
		case KindCoaching:
			c.Coaching++
		case KindVerbal:
			c.Verbal++
		case KindWritten:
			c.Written++
		}
	}
	return c
}

// Rule is one rung of the ladder.
type Rule struct {
	Case     Case
	Priority Priority
	Action   string
	Applies  func(Counts) bool
}

// Outcome is the result of running a rule or the whole ladder.
type Outcome struct {
	Applies  bool
	Case     Case
	Priority Priority
	Action   string
	Details  Details
}

// Evaluate runs a single rule.
func (r Rule) Evaluate(c Counts) Outcome {
	if !r.Applies(c) {
		return Outcome{Applies: false}
	}
	return Outcome{
		Applies:  true,
		Case:     r.Case,
		Priority: r.Priority,
		Action:   r.Action,
		Details:  Details{Counts: c},
	}
}

const (
	ActionOffboarding   = "Offboarding: escalate to HR for separation review"
	ActionWritten       = "Issue Written Warning"
	ActionSecondVerbal  = "Issue second Verbal Warning and schedule Coaching"
	ActionFirstVerbal   = "Issue first Verbal Warning"
	ActionManualReview  = "Manual review required"
	ActionLeaderVerbal  = "Issue Verbal Warning to leader for failing to act"
	ActionLeaderWritten = "Issue Written Warning to leader for repeated failure to act"
)

var (
	RuleCaseC = Rule{
		Case: CaseC, Priority: PriorityCritical, Action: ActionOffboarding,
		Applies: func(c Counts) bool { return c.Written >= 2 },
	}
	RuleCaseB = Rule{
		Case: CaseB, Priority: PriorityHigh, Action: ActionWritten,
		Applies: func(c Counts) bool { return c.Verbal >= 2 },
	}
	RuleCaseA = Rule{
		Case: CaseA, Priority: PriorityMedium, Action: ActionSecondVerbal,
		Applies: func(c Counts) bool { return c.Verbal == 1 },
	}
)

// DefaultLadder returns the rules in precedence order. A fresh slice is
// returned so callers may insert rungs without touching the defaults.
func DefaultLadder() []Rule {
	return []Rule{RuleCaseC, RuleCaseB, RuleCaseA}
}

// EvaluateLadder runs rules in order, first match wins. It always returns
// an applying outcome whose case is one of A, B, C, First or Review. Review
// is returned only when no rung applies and an active Written warning remains.
func EvaluateLadder(rules []Rule, active []Warning) Outcome {
	c := CountActive(active)
	for _, r := range rules {
		if out := r.Evaluate(c); out.Applies {
			return out
		}
	}

	if c.Written > 0 {
		return Outcome{
			Applies:  true,
			Case:     CaseReview,
			Priority: PriorityHigh,
			Action:   ActionManualReview,
			Details: Details{
				Counts: c,
				Reason: "active Written warning without active Verbal warnings; first-warning baseline would de-escalate",
			},
		}
	}

	return Outcome{
		Applies:  true,
		Case:     CaseFirst,
		Priority: PriorityLow,
		Action:   ActionFirstVerbal,
		Details:  Details{Counts: c},
	}
}

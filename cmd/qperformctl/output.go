package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/deadlyrat/qperform-server-dev/discipline"
	"github.com/deadlyrat/qperform-server-dev/workflow"
)

// priorityColor maps a priority to its terminal color.
func priorityColor(p discipline.Priority) *color.Color {
	switch p {
	case discipline.PriorityCritical:
		return color.New(color.FgRed, color.Bold)
	case discipline.PriorityHigh:
		return color.New(color.FgYellow)
	case discipline.PriorityMedium:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgGreen)
	}
}

func okMark() string   { return color.New(color.FgGreen).Sprint("✓") }
func failMark() string { return color.New(color.FgRed).Sprint("✗") }

func activeLabel(s string) string   { return color.New(color.FgGreen).Sprintf("%-8s", s) }
func inactiveLabel(s string) string { return color.New(color.FgHiBlack).Sprintf("%-8s", s) }

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func expiryLabel(tp *discipline.TimePoint) string {
	if tp == nil {
		return "never"
	}
	return tp.String()
}

func printRecommendation(w io.Writer, rec discipline.Recommendation, duplicate bool) {
	prio := priorityColor(rec.Priority).Sprintf("[%s]", rec.Priority)
	fmt.Fprintf(w, "%s Case %s: %s\n", prio, rec.Case, rec.Action)
	fmt.Fprintf(w, "  agent:   %s (%s, %s)\n", rec.AgentID, rec.Metric, rec.Weeks)
	fmt.Fprintf(w, "  active:  %d verbal, %d written, %d coaching\n",
		rec.Details.Counts.Verbal, rec.Details.Counts.Written, rec.Details.Counts.Coaching)
	if rec.Details.Reason != "" {
		fmt.Fprintf(w, "  reason:  %s\n", rec.Details.Reason)
	}
	if duplicate {
		fmt.Fprintf(w, "  %s\n", color.New(color.FgHiBlack).Sprintf("already evaluated as %s", rec.ID))
	} else {
		fmt.Fprintf(w, "  id:      %s\n", rec.ID)
	}
}

func printLeaderResult(w io.Writer, res workflow.LeaderResult) {
	out := res.Outcome
	switch {
	case out.Applies:
		prio := priorityColor(out.Priority).Sprintf("[%s]", out.Priority)
		fmt.Fprintf(w, "%s Case %s: %s\n", prio, out.Case, out.Action)
		fmt.Fprintf(w, "  leader:  %s\n", res.LeaderID)
		fmt.Fprintf(w, "  agent:   %s (%s), %d weeks since %s\n", res.AgentID, res.Metric, out.UnderperformingWeeks, out.FirstWeek)
		for _, r := range out.Reports {
			fmt.Fprintf(w, "  report:  %s expires %s\n", r.Kind, expiryLabel(r.ExpiresAt))
		}
	case out.AlreadyReported:
		fmt.Fprintf(w, "%s %s already reported for %s (%s)\n", okMark(), res.LeaderID, res.AgentID, res.Metric)
	case out.ActionFound:
		fmt.Fprintf(w, "%s %s acted on %s (%s)\n", okMark(), res.LeaderID, res.AgentID, res.Metric)
	default:
		fmt.Fprintf(w, "%s %s: %d underperforming %s weeks, no accountability case\n", okMark(), res.AgentID, out.UnderperformingWeeks, res.Metric)
	}
}

func optionalDate(s string) (discipline.TimePoint, error) {
	if s == "" {
		return discipline.TimePoint{}, nil
	}
	return discipline.ParseDate(s)
}

func dateRange(from, to string) (discipline.WeekRange, error) {
	start, err := discipline.ParseDate(from)
	if err != nil {
		return discipline.WeekRange{}, fmt.Errorf("--from: %w", err)
	}
	end, err := discipline.ParseDate(to)
	if err != nil {
		return discipline.WeekRange{}, fmt.Errorf("--to: %w", err)
	}
	wr := discipline.WeekRange{Start: start, End: end}
	return wr, wr.Validate()
}

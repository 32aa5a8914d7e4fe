/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with agents,
	warnings and weekly performance that land on a specific rung of the
	escalation ladder or the leadership accountability check.

AVAILABLE SCENARIOS:

	first-warning:     No history, baseline first Verbal
	second-verbal:     One active Verbal (Case A)
	written-warning:   Two active Verbals (Case B)
	offboarding:       Two active Writtens (Case C)
	ambiguous-written: One Written, no Verbal (Review)
	expired-history:   Expired warnings ignored (Case A)
	leader-inaction:   Four low QA weeks, no leader action (Case D)
	repeat-inaction:   Leader already reported once (Case E)

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create agents with their leader
 3. Record warnings relative to today
 4. Upsert weekly performance for the trailing window

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "offboarding"}

	then POST /api/agents/{id}/evaluate or POST /api/leaders/sweep.

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Evaluate, Sweep handlers
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/deadlyrat/qperform-server-dev/discipline"
	"github.com/deadlyrat/qperform-server-dev/performance"
	"github.com/deadlyrat/qperform-server-dev/workflow"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const (
	demoLeader     = "lead@example.com"
	demoSupervisor = "supervisor@example.com"
	demoAgent      = "agent@example.com"
	demoTeammate   = "teammate@example.com"
)

var scenarios = []ScenarioDTO{
	{
		ID:          "first-warning",
		Name:        "First Warning",
		Description: "Agent with no disciplinary history",
		Expect:      string(discipline.CaseFirst),
	},
	{
		ID:          "second-verbal",
		Name:        "Second Verbal",
		Description: "One active QA Verbal warning",
		Expect:      string(discipline.CaseA),
	},
	{
		ID:          "written-warning",
		Name:        "Written Warning",
		Description: "Two active QA Verbal warnings",
		Expect:      string(discipline.CaseB),
	},
	{
		ID:          "offboarding",
		Name:        "Offboarding",
		Description: "Two active QA Written warnings plus a Verbal",
		Expect:      string(discipline.CaseC),
	},
	{
		ID:          "ambiguous-written",
		Name:        "Ambiguous Written",
		Description: "One active Written warning and no Verbal; routed to manual review",
		Expect:      string(discipline.CaseReview),
	},
	{
		ID:          "expired-history",
		Name:        "Expired History",
		Description: "Two expired Verbals and one active Verbal",
		Expect:      string(discipline.CaseA),
	},
	{
		ID:          "leader-inaction",
		Name:        "Leader Inaction",
		Description: "Four low QA weeks and no warning or logged action by the leader",
		Expect:      string(discipline.CaseD),
	},
	{
		ID:          "repeat-inaction",
		Name:        "Repeat Inaction",
		Description: "Leader already reported for one agent, second agent lapses",
		Expect:      string(discipline.CaseE),
	},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context) error{
	"first-warning":     (*Handler).loadFirstWarningScenario,
	"second-verbal":     (*Handler).loadSecondVerbalScenario,
	"written-warning":   (*Handler).loadWrittenWarningScenario,
	"offboarding":       (*Handler).loadOffboardingScenario,
	"ambiguous-written": (*Handler).loadAmbiguousWrittenScenario,
	"expired-history":   (*Handler).loadExpiredHistoryScenario,
	"leader-inaction":   (*Handler).loadLeaderInactionScenario,
	"repeat-inaction":   (*Handler).loadRepeatInactionScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decodeBody(r, "scenario.json", &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	loader, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := loader(h, ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFirstWarningScenario(ctx context.Context) error {
	return h.seedAgents(ctx, demoAgent)
}

func (h *Handler) loadSecondVerbalScenario(ctx context.Context) error {
	if err := h.seedAgents(ctx, demoAgent); err != nil {
		return err
	}
	return h.seedWarning(ctx, demoAgent, discipline.KindVerbal, 20)
}

func (h *Handler) loadWrittenWarningScenario(ctx context.Context) error {
	if err := h.seedAgents(ctx, demoAgent); err != nil {
		return err
	}
	for _, daysAgo := range []int{45, 15} {
		if err := h.seedWarning(ctx, demoAgent, discipline.KindVerbal, daysAgo); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadOffboardingScenario(ctx context.Context) error {
	if err := h.seedAgents(ctx, demoAgent); err != nil {
		return err
	}
	seeds := []struct {
		kind    discipline.WarningKind
		daysAgo int
	}{
		{discipline.KindVerbal, 80},
		{discipline.KindWritten, 60},
		{discipline.KindWritten, 10},
	}
	for _, s := range seeds {
		if err := h.seedWarning(ctx, demoAgent, s.kind, s.daysAgo); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadAmbiguousWrittenScenario(ctx context.Context) error {
	if err := h.seedAgents(ctx, demoAgent); err != nil {
		return err
	}
	return h.seedWarning(ctx, demoAgent, discipline.KindWritten, 30)
}

func (h *Handler) loadExpiredHistoryScenario(ctx context.Context) error {
	if err := h.seedAgents(ctx, demoAgent); err != nil {
		return err
	}
	// Verbal warnings expire after 90 days under the default policy.
	for _, daysAgo := range []int{200, 120, 5} {
		if err := h.seedWarning(ctx, demoAgent, discipline.KindVerbal, daysAgo); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadLeaderInactionScenario(ctx context.Context) error {
	if err := h.seedAgents(ctx, demoAgent); err != nil {
		return err
	}
	return h.seedLowWeeks(ctx, demoAgent, discipline.MetricQA)
}

func (h *Handler) loadRepeatInactionScenario(ctx context.Context) error {
	if err := h.seedAgents(ctx, demoTeammate, demoAgent); err != nil {
		return err
	}
	for _, id := range []string{demoTeammate, demoAgent} {
		if err := h.seedLowWeeks(ctx, id, discipline.MetricQA); err != nil {
			return err
		}
	}

	// The leader's first report, for the teammate.
	_, err := h.Service.EvaluateLeader(ctx, workflow.LeaderRequest{
		AgentID: discipline.AgentID(demoTeammate),
		Metric:  discipline.MetricQA,
		Window:  RecentWindow(h.Service.Today(), DefaultWindowWeeks),
	})
	return err
}

// =============================================================================
// SEED HELPERS
// =============================================================================

func (h *Handler) seedAgents(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		_, err := h.Service.SaveAgent(ctx, discipline.Agent{
			ID:       discipline.AgentID(id),
			Name:     id,
			LeaderID: demoLeader,
			Client:   "Demo",
		})
		if err != nil {
			return fmt.Errorf("save agent %s: %w", id, err)
		}
	}
	return nil
}

func (h *Handler) seedWarning(ctx context.Context, agentID string, kind discipline.WarningKind, daysAgo int) error {
	_, err := h.Service.RecordWarning(ctx, discipline.WarningRequest{
		AgentID:  discipline.AgentID(agentID),
		Kind:     kind,
		Metric:   discipline.MetricQA,
		IssuedBy: demoSupervisor,
		IssuedAt: h.Service.Today().AddDays(-daysAgo),
		Notes:    "demo",
	})
	if err != nil {
		return fmt.Errorf("record %s warning: %w", kind, err)
	}
	return nil
}

// seedLowWeeks fills the trailing default window with below-threshold weeks.
func (h *Handler) seedLowWeeks(ctx context.Context, agentID string, metric discipline.MetricType) error {
	window := RecentWindow(h.Service.Today(), DefaultWindowWeeks)
	for i := 0; i < DefaultWindowWeeks; i++ {
		start := window.Start.AddDays(7 * i)
		row := performance.WeeklyPerformance{
			AgentID: discipline.AgentID(agentID),
			Metric:  metric,
			Week:    discipline.WeekRange{Start: start, End: start.AddDays(6)},
			Score:   decimal.NewFromInt(70),
			Target:  decimal.NewFromInt(90),
		}
		if err := h.Service.RecordPerformance(ctx, row); err != nil {
			return fmt.Errorf("record performance week %s: %w", start, err)
		}
	}
	return nil
}

/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Schema validation of request bodies
- Evaluate: 201 for new, 200 for a repeated trigger
- Mark actioned: one-way, 409 on repeat
- Warning listing with the active filter
- Leader evaluation, reports and at-risk
- Metrics and policy endpoints
*/
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deadlyrat/qperform-server-dev/factory"
	"github.com/deadlyrat/qperform-server-dev/store/sqlite"
	"github.com/deadlyrat/qperform-server-dev/workflow"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2025, time.May, 5, 12, 0, 0, 0, time.UTC)

func setupTestServer(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	metrics := NewMetrics()
	svc := workflow.New(store, factory.DefaultPolicy(),
		workflow.WithObserver(metrics),
		workflow.WithClock(func() time.Time { return testNow }),
	)
	h, err := NewHandler(svc, store, metrics)
	require.NoError(t, err)
	return h, NewRouter(h)
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const (
	testAgent  = "agent@example.com"
	testLeader = "lead@example.com"
	aprilEval  = `{"metric":"QA","week_start":"2025-04-07","week_end":"2025-05-04"}`
)

func createAgent(t *testing.T, router http.Handler) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/agents",
		`{"id":"`+testAgent+`","name":"Agent","leader_id":"`+testLeader+`","client":"Acme"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func recordVerbal(t *testing.T, router http.Handler, issuedAt string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/agents/"+testAgent+"/warnings",
		`{"kind":"Verbal","metric":"QA","issued_by":"sup@example.com","issued_at":"`+issuedAt+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func seedLowAprilWeeks(t *testing.T, router http.Handler) {
	t.Helper()
	for _, start := range []string{"2025-04-07", "2025-04-14", "2025-04-21", "2025-04-28"} {
		end, err := time.Parse("2006-01-02", start)
		require.NoError(t, err)
		body := `{"metric":"QA","week_start":"` + start + `","week_end":"` + end.AddDate(0, 0, 6).Format("2006-01-02") + `","score":"70","target":"90"}`
		rec := do(t, router, http.MethodPost, "/api/agents/"+testAgent+"/performance", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

// =============================================================================
// AGENTS
// =============================================================================

func TestAgents_CreateGetList(t *testing.T) {
	_, router := setupTestServer(t)

	// GIVEN: One agent created through the API
	createAgent(t, router)

	// WHEN: Fetching it
	rec := do(t, router, http.MethodGet, "/api/agents/"+testAgent, "")

	// THEN: The directory entry comes back
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[AgentDTO](t, rec)
	assert.Equal(t, testLeader, got.LeaderID)
	assert.Equal(t, "Acme", got.Client)

	list := decode[[]AgentDTO](t, do(t, router, http.MethodGet, "/api/agents", ""))
	assert.Len(t, list, 1)

	rec = do(t, router, http.MethodGet, "/api/agents/missing@example.com", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgents_SchemaRejectsMissingID(t *testing.T) {
	_, router := setupTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/agents", `{"name":"No ID"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decode[ErrorResponse](t, rec).Error)
}

// =============================================================================
// EVALUATE
// =============================================================================

func TestEvaluate_CreatedThenDuplicate(t *testing.T) {
	_, router := setupTestServer(t)

	// GIVEN: An agent holding one active QA Verbal warning
	createAgent(t, router)
	recordVerbal(t, router, "2025-04-20")

	// WHEN: Evaluating the April period
	rec := do(t, router, http.MethodPost, "/api/agents/"+testAgent+"/evaluate", aprilEval)

	// THEN: Case A is created
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[RecommendationDTO](t, rec)
	assert.Equal(t, "A", first.Case)
	assert.Equal(t, "Medium", first.Priority)
	assert.Equal(t, 1, first.Counts.Verbal)
	assert.False(t, first.Duplicate)

	// WHEN: The same trigger is evaluated again
	rec = do(t, router, http.MethodPost, "/api/agents/"+testAgent+"/evaluate", aprilEval)

	// THEN: The stored row is returned with 200
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[RecommendationDTO](t, rec)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.Duplicate)
}

func TestEvaluate_RejectsBadBodies(t *testing.T) {
	_, router := setupTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"unknown metric", `{"metric":"Sales","week_start":"2025-04-07","week_end":"2025-05-04"}`},
		{"missing week_end", `{"metric":"QA","week_start":"2025-04-07"}`},
		{"unknown field", `{"metric":"QA","week_start":"2025-04-07","week_end":"2025-05-04","extra":1}`},
		{"bad date", `{"metric":"QA","week_start":"04/07/2025","week_end":"2025-05-04"}`},
		{"end before start", `{"metric":"QA","week_start":"2025-05-04","week_end":"2025-04-07"}`},
		{"malformed json", `{"metric":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/agents/"+testAgent+"/evaluate", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	list := decode[[]RecommendationDTO](t, do(t, router, http.MethodGet, "/api/recommendations", ""))
	assert.Empty(t, list)
}

func TestEvaluate_AmbiguousIsReviewNotError(t *testing.T) {
	_, router := setupTestServer(t)

	// GIVEN: One Written warning and no Verbal
	createAgent(t, router)
	rec := do(t, router, http.MethodPost, "/api/agents/"+testAgent+"/warnings",
		`{"kind":"Written","metric":"QA","issued_by":"sup@example.com","issued_at":"2025-04-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: Evaluating
	rec = do(t, router, http.MethodPost, "/api/agents/"+testAgent+"/evaluate", aprilEval)

	// THEN: A Review recommendation is created
	require.Equal(t, http.StatusCreated, rec.Code)
	got := decode[RecommendationDTO](t, rec)
	assert.Equal(t, "Review", got.Case)
	assert.NotEmpty(t, got.Reason)
}

// =============================================================================
// RECOMMENDATIONS
// =============================================================================

func TestMarkActioned_OnceThenConflict(t *testing.T) {
	_, router := setupTestServer(t)
	createAgent(t, router)
	created := decode[RecommendationDTO](t, do(t, router, http.MethodPost, "/api/agents/"+testAgent+"/evaluate", aprilEval))

	// Missing actioned_by fails schema validation
	rec := do(t, router, http.MethodPost, "/api/recommendations/"+created.ID+"/action", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/recommendations/"+created.ID+"/action", `{"actioned_by":"sup@example.com","notes":"done"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[RecommendationDTO](t, rec)
	assert.True(t, got.Actioned)
	assert.Equal(t, "sup@example.com", got.ActionedBy)
	assert.NotEmpty(t, got.ActionedAt)

	rec = do(t, router, http.MethodPost, "/api/recommendations/"+created.ID+"/action", `{"actioned_by":"other@example.com"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/recommendations/nope/action", `{"actioned_by":"sup@example.com"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	pending := decode[[]RecommendationDTO](t, do(t, router, http.MethodGet, "/api/recommendations?pending=true", ""))
	assert.Empty(t, pending)
	all := decode[[]RecommendationDTO](t, do(t, router, http.MethodGet, "/api/recommendations?agent="+testAgent, ""))
	assert.Len(t, all, 1)
}

func TestGetRecommendation_NotFound(t *testing.T) {
	_, router := setupTestServer(t)
	rec := do(t, router, http.MethodGet, "/api/recommendations/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// WARNINGS
// =============================================================================

func TestListWarnings_ActiveFilter(t *testing.T) {
	_, router := setupTestServer(t)

	// GIVEN: A Verbal that expired on Apr 2 and one issued Apr 20
	createAgent(t, router)
	recordVerbal(t, router, "2025-01-02")
	recordVerbal(t, router, "2025-04-20")

	// WHEN: Listing all and active-only
	all := decode[[]WarningDTO](t, do(t, router, http.MethodGet, "/api/agents/"+testAgent+"/warnings", ""))
	active := decode[[]WarningDTO](t, do(t, router, http.MethodGet, "/api/agents/"+testAgent+"/warnings?active=true", ""))

	// THEN: The expired one is history only
	assert.Len(t, all, 2)
	require.Len(t, active, 1)
	assert.Equal(t, "2025-04-20", active[0].IssuedAt)
	assert.Equal(t, "2025-07-19", active[0].ExpiresAt)
	assert.True(t, active[0].Active)

	// At an earlier date the January warning had not yet expired
	earlier := decode[[]WarningDTO](t, do(t, router, http.MethodGet, "/api/agents/"+testAgent+"/warnings?active=true&at=2025-03-01", ""))
	require.Len(t, earlier, 2)
	assert.Equal(t, "2025-01-02", earlier[0].IssuedAt)

	prod := decode[[]WarningDTO](t, do(t, router, http.MethodGet, "/api/agents/"+testAgent+"/warnings?metric=Production", ""))
	assert.Empty(t, prod)

	rec := do(t, router, http.MethodGet, "/api/agents/"+testAgent+"/warnings?metric=Sales", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ACTIONS, PERFORMANCE, LEADERS
// =============================================================================

func TestLogAction_DefaultsToToday(t *testing.T) {
	_, router := setupTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/agents/"+testAgent+"/actions", `{"author":"`+testLeader+`","note":"1:1 held"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decode[ActionLogDTO](t, rec)
	assert.Equal(t, "2025-05-05", got.LoggedAt)

	rec = do(t, router, http.MethodPost, "/api/agents/"+testAgent+"/actions", `{"author":"`+testLeader+`","note":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordPerformance_ClassifiesFlag(t *testing.T) {
	_, router := setupTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/agents/"+testAgent+"/performance",
		`{"metric":"QA","week_start":"2025-04-07","week_end":"2025-04-13","score":"80"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Low", decode[map[string]string](t, rec)["flag"])

	rec = do(t, router, http.MethodPost, "/api/agents/"+testAgent+"/performance",
		`{"metric":"QA","week_start":"2025-04-07","week_end":"2025-04-13","score":"eighty"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateLeader_CaseDThenAlreadyReported(t *testing.T) {
	_, router := setupTestServer(t)

	// GIVEN: Four low QA weeks in April and no leader action
	createAgent(t, router)
	seedLowAprilWeeks(t, router)
	body := `{"agent_id":"` + testAgent + `","metric":"QA","window_start":"2025-04-07","window_end":"2025-05-04"}`

	// WHEN: Evaluating the leader
	rec := do(t, router, http.MethodPost, "/api/leaders/"+testLeader+"/evaluate", body)

	// THEN: Case D with two reports
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decode[LeaderEvaluationDTO](t, rec)
	assert.True(t, got.Applies)
	assert.Equal(t, "D", got.Case)
	assert.Equal(t, "High", got.Priority)
	assert.Equal(t, 4, got.UnderperformingWeeks)
	assert.Equal(t, "2025-04-07", got.FirstWeek)
	assert.Len(t, got.Reports, 2)

	// WHEN: The same lapse is evaluated again
	rec = do(t, router, http.MethodPost, "/api/leaders/"+testLeader+"/evaluate", body)

	// THEN: Nothing new is reported
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[LeaderEvaluationDTO](t, rec)
	assert.False(t, again.Applies)
	assert.True(t, again.AlreadyReported)

	reports := decode[[]LeadershipReportDTO](t, do(t, router, http.MethodGet, "/api/leaders/"+testLeader+"/reports?active=true", ""))
	assert.Len(t, reports, 2)
	for _, r := range reports {
		assert.True(t, r.Active)
	}
}

func TestEvaluateLeader_SuppliedWeeks(t *testing.T) {
	_, router := setupTestServer(t)

	body := `{"agent_id":"` + testAgent + `","metric":"QA","weeks":[
		{"week_start":"2025-04-07","week_end":"2025-04-13","underperforming":true},
		{"week_start":"2025-04-14","week_end":"2025-04-20","underperforming":false}
	]}`
	rec := do(t, router, http.MethodPost, "/api/leaders/"+testLeader+"/evaluate", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[LeaderEvaluationDTO](t, rec)
	assert.False(t, got.Applies)
	assert.Equal(t, 1, got.UnderperformingWeeks)
}

func TestEvaluateLeader_RejectsRepeatedWeeks(t *testing.T) {
	_, router := setupTestServer(t)
	week := `{"week_start":"2025-04-07","week_end":"2025-04-13","underperforming":true}`

	// Identical entries fail schema validation
	body := `{"agent_id":"` + testAgent + `","metric":"QA","weeks":[` + week + `,` + week + `,` + week + `]}`
	rec := do(t, router, http.MethodPost, "/api/leaders/"+testLeader+"/evaluate", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	// Overlapping entries fail request validation
	body = `{"agent_id":"` + testAgent + `","metric":"QA","weeks":[` + week + `,
		{"week_start":"2025-04-10","week_end":"2025-04-16","underperforming":true},
		{"week_start":"2025-04-14","week_end":"2025-04-20","underperforming":true}
	]}`
	rec = do(t, router, http.MethodPost, "/api/leaders/"+testLeader+"/evaluate", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestAtRisk(t *testing.T) {
	_, router := setupTestServer(t)
	createAgent(t, router)
	seedLowAprilWeeks(t, router)

	got := decode[[]AtRiskDTO](t, do(t, router, http.MethodGet, "/api/at-risk?metric=QA&from=2025-04-07&to=2025-05-04", ""))
	require.Len(t, got, 1)
	assert.Equal(t, testAgent, got[0].AgentID)
	assert.Equal(t, 4, got[0].UnderperformingWeeks)
	assert.Equal(t, "Critical", got[0].LatestFlag)

	none := decode[[]AtRiskDTO](t, do(t, router, http.MethodGet, "/api/at-risk?metric=Production&from=2025-04-07&to=2025-05-04", ""))
	assert.Empty(t, none)
}

// =============================================================================
// POLICY AND METRICS
// =============================================================================

func TestGetPolicy(t *testing.T) {
	_, router := setupTestServer(t)

	got := decode[factory.PolicyFile](t, do(t, router, http.MethodGet, "/api/policy", ""))
	assert.Equal(t, 2, got.WeekThreshold)
	assert.Equal(t, 90, got.Expiry.Verbal)
	assert.Equal(t, "total", got.CountingMode)
}

func TestMetrics_CountsRecommendations(t *testing.T) {
	_, router := setupTestServer(t)
	createAgent(t, router)
	recordVerbal(t, router, "2025-04-20")
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/agents/"+testAgent+"/evaluate", aprilEval).Code)

	rec := do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `qperform_recommendations_total{case="A"} 1`)
	assert.Contains(t, body, `qperform_warnings_recorded_total{kind="Verbal"} 1`)
}

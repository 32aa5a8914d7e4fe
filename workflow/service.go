/*
Package workflow orchestrates the escalation engine for the HTTP and CLI surfaces.

PURPOSE:
  The engine in package discipline reads and decides; it never writes.
  Service wraps it with the explicit steps around each decision:

    read snapshot -> evaluate -> persist -> publish event -> count metric

  Persistence failures abort the operation. Publish failures are logged and
  swallowed: a recommendation that was stored is never rolled back because
  a downstream consumer was unreachable.

DUPLICATE EVALUATIONS:
  A second Evaluate for the same (agent, metric, weeks) hits the store's
  unique index; Service returns the stored row with Duplicate=true instead
  of an error, so retries are safe.

SEE ALSO:
  - discipline/resolver.go: Cases A/B/C
  - discipline/leadership.go: Cases D/E
  - api/handlers.go: HTTP surface
  - cmd/qperformctl: CLI surface
*/
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/deadlyrat/qperform-server-dev/discipline"
	"github.com/deadlyrat/qperform-server-dev/events"
	"github.com/deadlyrat/qperform-server-dev/performance"
)

// Store is everything the service persists.
type Store interface {
	discipline.Store
	discipline.AgentDirectory
	performance.Store
}

// Observer is notified after successful writes. The API layer counts these
// in Prometheus.
type Observer interface {
	RecommendationCreated(c discipline.Case)
	LeadershipReported(c discipline.Case)
	WarningRecorded(k discipline.WarningKind)
}

type nopObserver struct{}

func (nopObserver) RecommendationCreated(discipline.Case)   {}
func (nopObserver) LeadershipReported(discipline.Case)      {}
func (nopObserver) WarningRecorded(discipline.WarningKind) {}

// Service runs every escalation operation.
type Service struct {
	store      Store
	policy     discipline.Policy
	clock      discipline.Clock
	resolver   *discipline.Resolver
	lifecycle  *discipline.Lifecycle
	leadership *discipline.LeadershipEvaluator
	reader     *performance.Reader
	publisher  events.Publisher
	observer   Observer
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithClock pins "today". Tests use it.
func WithClock(c discipline.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLadder replaces the A/B/C ladder.
func WithLadder(rules []discipline.Rule) Option {
	return func(s *Service) { s.resolver.Ladder = rules }
}

// New wires the engine components around one store and policy.
func New(store Store, policy discipline.Policy, opts ...Option) *Service {
	s := &Service{
		store:      store,
		policy:     policy,
		resolver:   discipline.NewResolver(store),
		lifecycle:  discipline.NewLifecycle(store, policy),
		leadership: discipline.NewLeadershipEvaluator(store, policy),
		reader:     performance.NewReader(store, policy),
		publisher:  events.Nop{},
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolver.Clock = s.clock
	s.lifecycle.Clock = s.clock
	s.leadership.Clock = s.clock
	return s
}

// Policy returns the policy the service was built with.
func (s *Service) Policy() discipline.Policy { return s.policy }

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

// Today is the service's evaluation date.
func (s *Service) Today() discipline.TimePoint {
	return discipline.FromTime(s.now())
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		log.Printf("[Workflow] publish %s failed: %v", e.Subject, err)
	}
}

// =============================================================================
// AGENTS
// =============================================================================

func (s *Service) SaveAgent(ctx context.Context, a discipline.Agent) (*discipline.Agent, error) {
	if a.ID == "" {
		return nil, &discipline.InputError{Field: "id", Reason: "required"}
	}
	if err := s.store.SaveAgent(ctx, a); err != nil {
		return nil, &discipline.StoreError{Op: "save agent", Err: err}
	}
	return s.GetAgent(ctx, a.ID)
}

// GetAgent fails with ErrAgentNotFound for unknown IDs.
func (s *Service) GetAgent(ctx context.Context, id discipline.AgentID) (*discipline.Agent, error) {
	a, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return nil, &discipline.StoreError{Op: "get agent", Err: err}
	}
	if a == nil {
		return nil, fmt.Errorf("%s: %w", id, discipline.ErrAgentNotFound)
	}
	return a, nil
}

func (s *Service) ListAgents(ctx context.Context) ([]discipline.Agent, error) {
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, &discipline.StoreError{Op: "list agents", Err: err}
	}
	return agents, nil
}

// =============================================================================
// WARNINGS
// =============================================================================

// RecordWarning writes a new Active warning.
func (s *Service) RecordWarning(ctx context.Context, req discipline.WarningRequest) (*discipline.Warning, error) {
	w, err := s.lifecycle.Record(ctx, req)
	if err != nil {
		return nil, err
	}
	s.observer.WarningRecorded(w.Kind)
	s.publish(ctx, events.WarningRecorded(*w))
	return w, nil
}

// ActiveWarnings returns warnings counting toward escalation at the date.
// A zero date means today.
func (s *Service) ActiveWarnings(ctx context.Context, agentID discipline.AgentID, metric discipline.MetricType, at discipline.TimePoint) ([]discipline.Warning, error) {
	if at.IsZero() {
		at = s.Today()
	}
	return s.lifecycle.Active(ctx, agentID, metric, at)
}

// ListWarnings returns the agent's full history.
func (s *Service) ListWarnings(ctx context.Context, agentID discipline.AgentID) ([]discipline.Warning, error) {
	ws, err := s.store.ListWarnings(ctx, agentID)
	if err != nil {
		return nil, &discipline.StoreError{Op: "list warnings", Err: err}
	}
	return ws, nil
}

// =============================================================================
// RECOMMENDATIONS
// =============================================================================

// EvaluateResult is the outcome of one evaluation trigger.
type EvaluateResult struct {
	Recommendation *discipline.Recommendation
	// Duplicate is true when the trigger was already evaluated and the
	// stored recommendation is returned unchanged.
	Duplicate bool
}

// Evaluate resolves and persists one recommendation.
func (s *Service) Evaluate(ctx context.Context, req discipline.EvaluationRequest) (*EvaluateResult, error) {
	rec, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	err = s.store.InsertRecommendation(ctx, *rec)
	if errors.Is(err, discipline.ErrDuplicateRecommendation) {
		existing, findErr := s.store.FindRecommendation(ctx, req.AgentID, req.Metric, req.Weeks)
		if findErr != nil {
			return nil, &discipline.StoreError{Op: "find recommendation", Err: findErr}
		}
		if existing == nil {
			return nil, err
		}
		return &EvaluateResult{Recommendation: existing, Duplicate: true}, nil
	}
	if err != nil {
		return nil, &discipline.StoreError{Op: "insert recommendation", Err: err}
	}

	s.observer.RecommendationCreated(rec.Case)
	s.publish(ctx, events.RecommendationCreated(*rec))
	return &EvaluateResult{Recommendation: rec}, nil
}

// GetRecommendation fails with ErrRecommendationNotFound for unknown IDs.
func (s *Service) GetRecommendation(ctx context.Context, id string) (*discipline.Recommendation, error) {
	rec, err := s.store.GetRecommendation(ctx, id)
	if err != nil {
		return nil, &discipline.StoreError{Op: "get recommendation", Err: err}
	}
	if rec == nil {
		return nil, fmt.Errorf("%s: %w", id, discipline.ErrRecommendationNotFound)
	}
	return rec, nil
}

func (s *Service) ListRecommendations(ctx context.Context, filter discipline.RecommendationFilter) ([]discipline.Recommendation, error) {
	recs, err := s.store.ListRecommendations(ctx, filter)
	if err != nil {
		return nil, &discipline.StoreError{Op: "list recommendations", Err: err}
	}
	return recs, nil
}

// MarkActioned records the human follow-up on a recommendation, once.
func (s *Service) MarkActioned(ctx context.Context, id, by, notes string) (*discipline.Recommendation, error) {
	rec, err := s.GetRecommendation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rec.MarkActioned(by, s.now(), notes); err != nil {
		return nil, err
	}
	if err := s.store.MarkRecommendationActioned(ctx, *rec); err != nil {
		if errors.Is(err, discipline.ErrAlreadyActioned) || errors.Is(err, discipline.ErrRecommendationNotFound) {
			return nil, err
		}
		return nil, &discipline.StoreError{Op: "mark actioned", Err: err}
	}
	s.publish(ctx, events.RecommendationActioned(*rec))
	return rec, nil
}

// =============================================================================
// ACTION LOG AND PERFORMANCE
// =============================================================================

// ActionRequest is a leader noting a corrective action.
type ActionRequest struct {
	AgentID  discipline.AgentID
	Author   string
	LoggedAt discipline.TimePoint
	Note     string
}

func (s *Service) LogAction(ctx context.Context, req ActionRequest) (*discipline.ActionLogEntry, error) {
	if req.AgentID == "" {
		return nil, &discipline.InputError{Field: "agent_id", Reason: "required"}
	}
	if req.Author == "" {
		return nil, &discipline.InputError{Field: "author", Reason: "required"}
	}
	if req.Note == "" {
		return nil, &discipline.InputError{Field: "note", Reason: "required"}
	}
	entry := discipline.ActionLogEntry{
		ID:       uuid.NewString(),
		AgentID:  req.AgentID,
		Author:   req.Author,
		LoggedAt: req.LoggedAt,
		Note:     req.Note,
	}
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = s.Today()
	}
	if err := s.store.InsertAction(ctx, entry); err != nil {
		return nil, &discipline.StoreError{Op: "insert action", Err: err}
	}
	return &entry, nil
}

// RecordPerformance upserts one weekly row.
func (s *Service) RecordPerformance(ctx context.Context, row performance.WeeklyPerformance) error {
	if err := row.Validate(); err != nil {
		return err
	}
	if err := s.store.UpsertPerformance(ctx, row); err != nil {
		return &discipline.StoreError{Op: "upsert performance", Err: err}
	}
	return nil
}

// =============================================================================
// LEADERSHIP
// =============================================================================

// LeaderRequest asks whether a leader failed to act on an agent's lapse.
type LeaderRequest struct {
	// LeaderID defaults to the agent's assigned leader.
	LeaderID discipline.LeaderID
	AgentID  discipline.AgentID
	Metric   discipline.MetricType
	// Window bounds the performance weeks read from the store. Ignored
	// when Weeks is supplied.
	Window   discipline.WeekRange
	Weeks    []discipline.WeekResult
	At       discipline.TimePoint
	IssuedBy string
}

// LeaderResult is the evaluator outcome plus what was persisted.
type LeaderResult struct {
	LeaderID discipline.LeaderID
	AgentID  discipline.AgentID
	Metric   discipline.MetricType
	Outcome  *discipline.LeadershipOutcome
}

// EvaluateLeader runs Case D/E for one agent and persists any reports.
func (s *Service) EvaluateLeader(ctx context.Context, req LeaderRequest) (*LeaderResult, error) {
	if req.AgentID == "" {
		return nil, &discipline.InputError{Field: "agent_id", Reason: "required"}
	}
	if !req.Metric.Valid() {
		return nil, &discipline.InputError{Field: "metric", Reason: "must be Production or QA"}
	}

	leader := req.LeaderID
	if leader == "" {
		agent, err := s.GetAgent(ctx, req.AgentID)
		if err != nil {
			return nil, err
		}
		if agent.LeaderID == "" {
			return nil, fmt.Errorf("%s: %w", req.AgentID, discipline.ErrNoLeader)
		}
		leader = agent.LeaderID
	}

	weeks := req.Weeks
	if weeks == nil {
		if err := req.Window.Validate(); err != nil {
			return nil, err
		}
		var err error
		weeks, err = s.reader.Weeks(ctx, req.AgentID, req.Metric, req.Window)
		if err != nil {
			return nil, err
		}
	}

	out, err := s.leadership.Evaluate(ctx, discipline.LeadershipRequest{
		LeaderID: leader,
		AgentID:  req.AgentID,
		Metric:   req.Metric,
		Weeks:    weeks,
		At:       req.At,
		IssuedBy: req.IssuedBy,
	})
	if err != nil {
		return nil, err
	}
	result := &LeaderResult{LeaderID: leader, AgentID: req.AgentID, Metric: req.Metric, Outcome: out}
	if !out.Applies {
		return result, nil
	}

	err = s.store.InsertLeadershipReports(ctx, out.Reports)
	if errors.Is(err, discipline.ErrDuplicateReport) {
		// A concurrent sweep got there first.
		out.Applies = false
		out.AlreadyReported = true
		out.Reports = nil
		return result, nil
	}
	if err != nil {
		return nil, &discipline.StoreError{Op: "insert leadership reports", Err: err}
	}

	s.observer.LeadershipReported(out.Case)
	s.publish(ctx, events.LeadershipReported(*out, leader, req.AgentID, req.Metric))
	return result, nil
}

// SweepResult summarizes one pass over the directory.
type SweepResult struct {
	Evaluated int
	Reported  []LeaderResult
	Errors    []error
}

// SweepLeaders evaluates every agent with an assigned leader, for both
// metrics, over the window. One agent's failure does not stop the sweep.
func (s *Service) SweepLeaders(ctx context.Context, window discipline.WeekRange, at discipline.TimePoint) (*SweepResult, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	agents, err := s.ListAgents(ctx)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	for _, agent := range agents {
		if agent.LeaderID == "" {
			continue
		}
		for _, metric := range []discipline.MetricType{discipline.MetricProduction, discipline.MetricQA} {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			res, err := s.EvaluateLeader(ctx, LeaderRequest{
				LeaderID: agent.LeaderID,
				AgentID:  agent.ID,
				Metric:   metric,
				Window:   window,
				At:       at,
			})
			result.Evaluated++
			if err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("%s/%s: %w", agent.ID, metric, err))
				continue
			}
			if res.Outcome.Applies {
				result.Reported = append(result.Reported, *res)
			}
		}
	}
	return result, nil
}

// LeadershipReports lists a leader's reports, optionally only those active
// at the date.
func (s *Service) LeadershipReports(ctx context.Context, leader discipline.LeaderID, activeOnly bool, at discipline.TimePoint) ([]discipline.LeadershipReport, error) {
	var (
		reports []discipline.LeadershipReport
		err     error
	)
	if activeOnly {
		if at.IsZero() {
			at = s.Today()
		}
		reports, err = s.store.ActiveLeadershipReports(ctx, leader, at)
	} else {
		reports, err = s.store.ListLeadershipReports(ctx, leader)
	}
	if err != nil {
		return nil, &discipline.StoreError{Op: "list leadership reports", Err: err}
	}
	return reports, nil
}

// =============================================================================
// AT-RISK
// =============================================================================

// AtRisk derives at-risk flags for every agent over the window. A nil
// metric checks both.
func (s *Service) AtRisk(ctx context.Context, metric *discipline.MetricType, window discipline.WeekRange) ([]performance.AtRiskFlag, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	metrics := []discipline.MetricType{discipline.MetricProduction, discipline.MetricQA}
	if metric != nil {
		metrics = []discipline.MetricType{*metric}
	}

	agents, err := s.ListAgents(ctx)
	if err != nil {
		return nil, err
	}

	var flags []performance.AtRiskFlag
	for _, agent := range agents {
		for _, m := range metrics {
			flag, ok, err := s.reader.AtRisk(ctx, agent.ID, m, window)
			if err != nil {
				return nil, err
			}
			if ok {
				flags = append(flags, *flag)
			}
		}
	}
	return flags, nil
}

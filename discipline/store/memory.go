// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/deadlyrat/qperform-server-dev/discipline"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu              sync.RWMutex
	warnings        map[discipline.AgentID][]discipline.Warning
	reports         map[discipline.LeaderID][]discipline.LeadershipReport
	recommendations map[string]discipline.Recommendation
	triggers        map[trigger]string
	actions         map[discipline.AgentID][]discipline.ActionLogEntry

	// FailWith makes every call return this error. Used to simulate an
	// unavailable store.
	FailWith error
}

type trigger struct {
	AgentID discipline.AgentID
	Metric  discipline.MetricType
	Start   string
	End     string
}

type reportKey struct {
	LeaderID discipline.LeaderID
	AgentID  discipline.AgentID
	Metric   discipline.MetricType
	Kind     discipline.ReportKind
	Start    string
	End      string
}

func NewMemory() *Memory {
	return &Memory{
		warnings:        make(map[discipline.AgentID][]discipline.Warning),
		reports:         make(map[discipline.LeaderID][]discipline.LeadershipReport),
		recommendations: make(map[string]discipline.Recommendation),
		triggers:        make(map[trigger]string),
		actions:         make(map[discipline.AgentID][]discipline.ActionLogEntry),
	}
}

var _ discipline.Store = (*Memory)(nil)

// =============================================================================
// WARNINGS
// =============================================================================

// InsertWarning keeps each agent's warnings ordered by IssuedAt.
func (m *Memory) InsertWarning(_ context.Context, w discipline.Warning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}

	ws := m.warnings[w.AgentID]
	i := sort.Search(len(ws), func(i int) bool {
		return ws[i].IssuedAt.After(w.IssuedAt)
	})
	ws = append(ws, discipline.Warning{})
	copy(ws[i+1:], ws[i:])
	ws[i] = w
	m.warnings[w.AgentID] = ws
	return nil
}

func (m *Memory) ListWarnings(_ context.Context, agentID discipline.AgentID) ([]discipline.Warning, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	result := make([]discipline.Warning, len(m.warnings[agentID]))
	copy(result, m.warnings[agentID])
	return result, nil
}

func (m *Memory) ActiveWarnings(_ context.Context, agentID discipline.AgentID, metric discipline.MetricType, at discipline.TimePoint) ([]discipline.Warning, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	return discipline.FilterActive(m.warnings[agentID], agentID, metric, at), nil
}

// ExpireWarning flips a stored status to Inactive (manual rescind).
func (m *Memory) ExpireWarning(_ context.Context, agentID discipline.AgentID, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.warnings[agentID] {
		if w.ID == id {
			m.warnings[agentID][i].Status = discipline.StatusInactive
		}
	}
}

// =============================================================================
// LEADERSHIP REPORTS
// =============================================================================

func keyOf(r discipline.LeadershipReport) reportKey {
	return reportKey{
		LeaderID: r.LeaderID, AgentID: r.AgentID, Metric: r.Metric, Kind: r.Kind,
		Start: r.Weeks.Start.String(), End: r.Weeks.End.String(),
	}
}

// InsertLeadershipReports appends atomically.
func (m *Memory) InsertLeadershipReports(_ context.Context, reports []discipline.LeadershipReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}

	// Check all keys first (atomic check)
	seen := make(map[reportKey]bool)
	for _, rs := range m.reports {
		for _, r := range rs {
			seen[keyOf(r)] = true
		}
	}
	for _, r := range reports {
		k := keyOf(r)
		if seen[k] {
			return discipline.ErrDuplicateReport
		}
		seen[k] = true
	}

	for _, r := range reports {
		m.reports[r.LeaderID] = append(m.reports[r.LeaderID], r)
	}
	return nil
}

func (m *Memory) ActiveLeadershipReports(_ context.Context, leaderID discipline.LeaderID, at discipline.TimePoint) ([]discipline.LeadershipReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	var result []discipline.LeadershipReport
	for _, r := range m.reports[leaderID] {
		if r.IsActive(at) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *Memory) ListLeadershipReports(_ context.Context, leaderID discipline.LeaderID) ([]discipline.LeadershipReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	result := make([]discipline.LeadershipReport, len(m.reports[leaderID]))
	copy(result, m.reports[leaderID])
	return result, nil
}

// =============================================================================
// RECOMMENDATIONS
// =============================================================================

func triggerOf(agentID discipline.AgentID, metric discipline.MetricType, weeks discipline.WeekRange) trigger {
	return trigger{AgentID: agentID, Metric: metric, Start: weeks.Start.String(), End: weeks.End.String()}
}

func (m *Memory) InsertRecommendation(_ context.Context, rec discipline.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}

	t := triggerOf(rec.AgentID, rec.Metric, rec.Weeks)
	if _, exists := m.triggers[t]; exists {
		return discipline.ErrDuplicateRecommendation
	}
	m.triggers[t] = rec.ID
	m.recommendations[rec.ID] = rec
	return nil
}

func (m *Memory) GetRecommendation(_ context.Context, id string) (*discipline.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	rec, ok := m.recommendations[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) FindRecommendation(_ context.Context, agentID discipline.AgentID, metric discipline.MetricType, weeks discipline.WeekRange) (*discipline.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	id, ok := m.triggers[triggerOf(agentID, metric, weeks)]
	if !ok {
		return nil, nil
	}
	rec := m.recommendations[id]
	return &rec, nil
}

func (m *Memory) ListRecommendations(_ context.Context, filter discipline.RecommendationFilter) ([]discipline.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	var result []discipline.Recommendation
	for _, rec := range m.recommendations {
		if filter.AgentID != nil && rec.AgentID != *filter.AgentID {
			continue
		}
		if filter.Metric != nil && rec.Metric != *filter.Metric {
			continue
		}
		if filter.PendingOnly && rec.Actioned {
			continue
		}
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].GeneratedAt.Before(result[j].GeneratedAt) })
	return result, nil
}

func (m *Memory) MarkRecommendationActioned(_ context.Context, rec discipline.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}

	existing, ok := m.recommendations[rec.ID]
	if !ok {
		return discipline.ErrRecommendationNotFound
	}
	if existing.Actioned {
		return discipline.ErrAlreadyActioned
	}
	existing.Actioned = true
	existing.ActionedBy = rec.ActionedBy
	existing.ActionedAt = rec.ActionedAt
	existing.ActionNotes = rec.ActionNotes
	m.recommendations[rec.ID] = existing
	return nil
}

// =============================================================================
// ACTION LOG
// =============================================================================

func (m *Memory) InsertAction(_ context.Context, entry discipline.ActionLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.actions[entry.AgentID] = append(m.actions[entry.AgentID], entry)
	return nil
}

func (m *Memory) ListActions(_ context.Context, agentID discipline.AgentID, from, to discipline.TimePoint) ([]discipline.ActionLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	var result []discipline.ActionLogEntry
	for _, a := range m.actions[agentID] {
		if from.BeforeOrEqual(a.LoggedAt) && a.LoggedAt.BeforeOrEqual(to) {
			result = append(result, a)
		}
	}
	return result, nil
}

// Package events publishes escalation outcomes to downstream consumers
// (dashboards, notification workers). Publication is fire-and-report: the
// write that produced an event is never rolled back because the publish failed.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/deadlyrat/qperform-server-dev/discipline"
)

// Subjects.
const (
	SubjectRecommendationCreated  = "qperform.recommendation.created"
	SubjectRecommendationActioned = "qperform.recommendation.actioned"
	SubjectWarningRecorded        = "qperform.warning.recorded"
	SubjectLeadershipReported     = "qperform.leadership.reported"
)

// Event is a subject plus a JSON-encodable payload.
type Event struct {
	Subject string
	Payload any
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// =============================================================================
// PAYLOADS
// =============================================================================

type RecommendationPayload struct {
	ID          string     `json:"id"`
	AgentID     string     `json:"agent_id"`
	Case        string     `json:"case"`
	Metric      string     `json:"metric"`
	Action      string     `json:"action"`
	Priority    string     `json:"priority"`
	WeekStart   string     `json:"week_start"`
	WeekEnd     string     `json:"week_end"`
	GeneratedAt time.Time  `json:"generated_at"`
	ActionedBy  string     `json:"actioned_by,omitempty"`
	ActionedAt  *time.Time `json:"actioned_at,omitempty"`
}

type WarningPayload struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	Kind      string `json:"kind"`
	Metric    string `json:"metric"`
	IssuedBy  string `json:"issued_by"`
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type LeadershipPayload struct {
	LeaderID  string   `json:"leader_id"`
	AgentID   string   `json:"agent_id"`
	Metric    string   `json:"metric"`
	Case      string   `json:"case"`
	Priority  string   `json:"priority"`
	Reports   []string `json:"reports"`
	WeekStart string   `json:"week_start"`
	WeekEnd   string   `json:"week_end"`
}

func recommendationPayload(rec discipline.Recommendation) RecommendationPayload {
	return RecommendationPayload{
		ID:          rec.ID,
		AgentID:     string(rec.AgentID),
		Case:        string(rec.Case),
		Metric:      string(rec.Metric),
		Action:      rec.Action,
		Priority:    string(rec.Priority),
		WeekStart:   rec.Weeks.Start.String(),
		WeekEnd:     rec.Weeks.End.String(),
		GeneratedAt: rec.GeneratedAt,
		ActionedBy:  rec.ActionedBy,
		ActionedAt:  rec.ActionedAt,
	}
}

func RecommendationCreated(rec discipline.Recommendation) Event {
	return Event{Subject: SubjectRecommendationCreated, Payload: recommendationPayload(rec)}
}

func RecommendationActioned(rec discipline.Recommendation) Event {
	return Event{Subject: SubjectRecommendationActioned, Payload: recommendationPayload(rec)}
}

func WarningRecorded(w discipline.Warning) Event {
	p := WarningPayload{
		ID:       w.ID,
		AgentID:  string(w.AgentID),
		Kind:     string(w.Kind),
		Metric:   string(w.Metric),
		IssuedBy: w.IssuedBy,
		IssuedAt: w.IssuedAt.String(),
	}
	if w.ExpiresAt != nil {
		p.ExpiresAt = w.ExpiresAt.String()
	}
	return Event{Subject: SubjectWarningRecorded, Payload: p}
}

func LeadershipReported(out discipline.LeadershipOutcome, leader discipline.LeaderID, agent discipline.AgentID, metric discipline.MetricType) Event {
	p := LeadershipPayload{
		LeaderID: string(leader),
		AgentID:  string(agent),
		Metric:   string(metric),
		Case:     string(out.Case),
		Priority: string(out.Priority),
	}
	for _, r := range out.Reports {
		p.Reports = append(p.Reports, string(r.Kind))
		p.WeekStart = r.Weeks.Start.String()
		p.WeekEnd = r.Weeks.End.String()
	}
	return Event{Subject: SubjectLeadershipReported, Payload: p}
}

// =============================================================================
// NO-OP AND RECORDING PUBLISHERS
// =============================================================================

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Subjects returns the subjects published so far, in order.
func (r *Recorder) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Subject
	}
	return out
}

// Events returns a copy of everything published.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

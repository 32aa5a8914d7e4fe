package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deadlyrat/qperform-server-dev/discipline"
	"github.com/deadlyrat/qperform-server-dev/events"
)

func startEmbeddedServer(t *testing.T) *natsserver.Server {
	t.Helper()

	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1, NoSystemAccount: true}
	srv, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server failed to start")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func sampleRecommendation() discipline.Recommendation {
	return discipline.Recommendation{
		ID:          "rec-1",
		AgentID:     "agent@example.com",
		Case:        discipline.CaseC,
		Metric:      discipline.MetricQA,
		Action:      discipline.ActionOffboarding,
		Priority:    discipline.PriorityCritical,
		GeneratedAt: time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC),
		Weeks: discipline.WeekRange{
			Start: discipline.NewTimePoint(2025, time.April, 7),
			End:   discipline.NewTimePoint(2025, time.April, 27),
		},
	}
}

func TestNATSPublisher_DeliversJSON(t *testing.T) {
	srv := startEmbeddedServer(t)

	// GIVEN: A subscriber on the recommendation subject
	sub, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	msgs, err := sub.SubscribeSync(events.SubjectRecommendationCreated)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := events.ConnectNATS(srv.ClientURL(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { pub.Close() })

	// WHEN: Publishing a created event
	require.NoError(t, pub.Publish(context.Background(), events.RecommendationCreated(sampleRecommendation())))

	// THEN: The payload arrives as JSON
	msg, err := msgs.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var got events.RecommendationPayload
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "rec-1", got.ID)
	assert.Equal(t, "C", got.Case)
	assert.Equal(t, "Critical", got.Priority)
	assert.Equal(t, "2025-04-07", got.WeekStart)
}

func TestNATSPublisher_ClosedAndInvalid(t *testing.T) {
	_, err := events.ConnectNATS("", time.Second)
	assert.ErrorIs(t, err, events.ErrInvalidURL)

	srv := startEmbeddedServer(t)
	pub, err := events.ConnectNATS(srv.ClientURL(), time.Second)
	require.NoError(t, err)

	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())

	err = pub.Publish(context.Background(), events.RecommendationCreated(sampleRecommendation()))
	assert.ErrorIs(t, err, events.ErrClosed)
}

func TestNATSPublisher_CancelledContext(t *testing.T) {
	srv := startEmbeddedServer(t)
	pub, err := events.ConnectNATS(srv.ClientURL(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { pub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = pub.Publish(ctx, events.RecommendationCreated(sampleRecommendation()))
	assert.ErrorIs(t, err, events.ErrPublishFailed)
}

func TestRecorder(t *testing.T) {
	r := &events.Recorder{}
	ctx := context.Background()

	exp := discipline.NewTimePoint(2025, time.June, 1)
	require.NoError(t, r.Publish(ctx, events.WarningRecorded(discipline.Warning{ID: "w1", Kind: discipline.KindVerbal, ExpiresAt: &exp})))
	require.NoError(t, r.Publish(ctx, events.RecommendationActioned(sampleRecommendation())))

	assert.Equal(t, []string{events.SubjectWarningRecorded, events.SubjectRecommendationActioned}, r.Subjects())
	payload := r.Events()[0].Payload.(events.WarningPayload)
	assert.Equal(t, "2025-06-01", payload.ExpiresAt)

	r.Err = errors.New("broker down")
	assert.Error(t, r.Publish(ctx, events.WarningRecorded(discipline.Warning{})))
	assert.Len(t, r.Events(), 2)
}

func TestLeadershipReported_Payload(t *testing.T) {
	weeks := discipline.WeekRange{Start: discipline.NewTimePoint(2025, time.April, 7), End: discipline.NewTimePoint(2025, time.May, 4)}
	out := discipline.LeadershipOutcome{
		Applies:  true,
		Case:     discipline.CaseD,
		Priority: discipline.PriorityHigh,
		Reports: []discipline.LeadershipReport{
			{Kind: discipline.ReportFirst, Weeks: weeks},
			{Kind: discipline.ReportVerbalWarning, Weeks: weeks},
		},
	}

	e := events.LeadershipReported(out, "lead@example.com", "agent@example.com", discipline.MetricQA)
	p := e.Payload.(events.LeadershipPayload)
	assert.Equal(t, events.SubjectLeadershipReported, e.Subject)
	assert.Equal(t, []string{"First Report", "Verbal Warning"}, p.Reports)
	assert.Equal(t, "2025-05-04", p.WeekEnd)
}

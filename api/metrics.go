package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deadlyrat/qperform-server-dev/discipline"
)

// Metrics counts engine writes. It implements workflow.Observer.
type Metrics struct {
	registry          *prometheus.Registry
	recommendations   *prometheus.CounterVec
	leadershipReports *prometheus.CounterVec
	warnings          *prometheus.CounterVec
}

// NewMetrics builds the counters on a private registry so tests can create
// as many as they like.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recommendations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qperform_recommendations_total",
				Help: "Recommendations created, by escalation case",
			},
			[]string{"case"},
		),
		leadershipReports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qperform_leadership_reports_total",
				Help: "Leadership accountability outcomes persisted, by case",
			},
			[]string{"case"},
		),
		warnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qperform_warnings_recorded_total",
				Help: "Warnings recorded, by kind",
			},
			[]string{"kind"},
		),
	}
	m.registry.MustRegister(
		m.recommendations,
		m.leadershipReports,
		m.warnings,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) RecommendationCreated(c discipline.Case) {
	m.recommendations.WithLabelValues(string(c)).Inc()
}

func (m *Metrics) LeadershipReported(c discipline.Case) {
	m.leadershipReports.WithLabelValues(string(c)).Inc()
}

func (m *Metrics) WarningRecorded(k discipline.WarningKind) {
	m.warnings.WithLabelValues(string(k)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the review module.
type Metrics struct {
	// Decisions by outcome
	Decisions *prometheus.CounterVec

	// Full decide latency including the store transaction
	DecideLatency prometheus.Histogram
}

// New creates a Metrics instance with all review module metrics registered.
func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dutyguard_review_decisions_total",
			Help: "Total review decisions by outcome",
		}, []string{"outcome"}),

		DecideLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dutyguard_review_decide_duration_seconds",
			Help:    "Duration of decide operations including the store transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementDecision records a committed decision outcome.
func (m *Metrics) IncrementDecision(outcome string) {
	if m != nil {
		m.Decisions.WithLabelValues(outcome).Inc()
	}
}

// ObserveDecideLatency records the duration of a decide call.
func (m *Metrics) ObserveDecideLatency(d time.Duration) {
	if m != nil {
		m.DecideLatency.Observe(d.Seconds())
	}
}

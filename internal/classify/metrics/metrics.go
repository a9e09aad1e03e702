package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the classification router.
type Metrics struct {
	// Classifications by routing outcome: "auto" or "review"
	Routed *prometheus.CounterVec

	// Scorer call latency
	ScoreLatency prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Routed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dutyguard_classifications_total",
			Help: "Total classifications by routing outcome",
		}, []string{"routing"}),

		ScoreLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dutyguard_classify_score_duration_seconds",
			Help:    "Duration of scorer calls",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// IncrementRouted records a routing outcome.
func (m *Metrics) IncrementRouted(routing string) {
	if m != nil {
		m.Routed.WithLabelValues(routing).Inc()
	}
}

// ObserveScoreLatency records the duration of one scorer call.
func (m *Metrics) ObserveScoreLatency(d time.Duration) {
	if m != nil {
		m.ScoreLatency.Observe(d.Seconds())
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for claim packet generation.
type Metrics struct {
	Generated prometheus.Counter
	Recovery  prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Generated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dutyguard_claim_packets_generated_total",
			Help: "Total claim packets generated",
		}),
		Recovery: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dutyguard_claim_recovery_value_total",
			Help: "Cumulative total_recovery across generated packets",
		}),
	}
}

// RecordPacket records one generated packet and its recovery value.
func (m *Metrics) RecordPacket(totalRecovery float64) {
	if m != nil {
		m.Generated.Inc()
		m.Recovery.Add(totalRecovery)
	}
}

package host

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeCommitted = "committed"
	OutcomeAborted   = "aborted"
	OutcomeError     = "error"
)

// Metrics are the prover host's Prometheus collectors.
type Metrics struct {
	runs          *prometheus.CounterVec
	proofDuration *prometheus.HistogramVec
}

// NewMetrics registers the host collectors with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zkredit",
				Name:      "runs_total",
				Help:      "Proof program runs by variant and outcome",
			},
			[]string{"variant", "outcome"},
		),
		proofDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "zkredit",
				Name:      "proof_duration_seconds",
				Help:      "Groth16 proving time in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"variant"},
		),
	}
}

func (m *Metrics) run(variant, outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(variant, outcome).Inc()
}

func (m *Metrics) proved(variant string, seconds float64) {
	if m == nil {
		return
	}
	m.proofDuration.WithLabelValues(variant).Observe(seconds)
}

// Package metrics exposes Prometheus instrumentation for the judgment pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for judgments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Rule engine verdicts by status and offense
	Verdicts *prometheus.CounterVec

	// Probation transitions by action and mode
	Transitions *prometheus.CounterVec

	// Dollar value written to the ledger
	RecoveredValue prometheus.Counter

	// Per-link failures by kind: invalid_snapshot, store, script
	ProcessErrors *prometheus.CounterVec

	// Time to process one snapshot end to end
	ProcessLatency prometheus.Histogram
}

// New creates a Metrics instance registered with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "linkmind_verdicts_total",
			Help: "Total rule engine verdicts by status and offense",
		}, []string{"status", "offense"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "linkmind_probation_transitions_total",
			Help: "Total probation transitions by action and mode",
		}, []string{"action", "mode"}), // mode: "live", "simulation"

		RecoveredValue: f.NewCounter(prometheus.CounterOpts{
			Name: "linkmind_recovered_value_dollars_total",
			Help: "Total value recovered by liquidations",
		}),

		ProcessErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "linkmind_process_errors_total",
			Help: "Total per-link processing failures by kind",
		}, []string{"kind"}),

		ProcessLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkmind_process_duration_seconds",
			Help:    "Duration of processing one snapshot including store writes",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),
	}
}

// IncrementVerdict records a rule engine verdict.
func (m *Metrics) IncrementVerdict(status, offense string) {
	if m != nil {
		m.Verdicts.WithLabelValues(status, offense).Inc()
	}
}

// IncrementTransition records a probation transition.
func (m *Metrics) IncrementTransition(action, mode string) {
	if m != nil {
		m.Transitions.WithLabelValues(action, mode).Inc()
	}
}

// AddRecovered adds a liquidation's value to the recovered total.
func (m *Metrics) AddRecovered(value float64) {
	if m != nil && value > 0 {
		m.RecoveredValue.Add(value)
	}
}

// IncrementError records a per-link failure.
func (m *Metrics) IncrementError(kind string) {
	if m != nil {
		m.ProcessErrors.WithLabelValues(kind).Inc()
	}
}

// ObserveProcessLatency records the duration of one Process call.
func (m *Metrics) ObserveProcessLatency(d time.Duration) {
	if m != nil {
		m.ProcessLatency.Observe(d.Seconds())
	}
}

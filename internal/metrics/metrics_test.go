package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementVerdict("Offending", "LICENSE_HOARDING")
	m.IncrementVerdict("Offending", "LICENSE_HOARDING")
	m.IncrementTransition("liquidated", "live")
	m.AddRecovered(3500)
	m.AddRecovered(-1)
	m.IncrementError("store")
	m.ObserveProcessLatency(2 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Verdicts.WithLabelValues("Offending", "LICENSE_HOARDING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("liquidated", "live")))
	assert.Equal(t, 3500.0, testutil.ToFloat64(m.RecoveredValue))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProcessErrors.WithLabelValues("store")))

	n, err := testutil.GatherAndCount(reg, "linkmind_process_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.IncrementVerdict("Compliant", "NONE")
		m.IncrementTransition("pardoned", "live")
		m.AddRecovered(10)
		m.IncrementError("script")
		m.ObserveProcessLatency(time.Second)
	})
}

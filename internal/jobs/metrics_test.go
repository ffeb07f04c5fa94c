package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("dashboard:warmup").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("dashboard:warmup").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("dashboard:warmup", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("dashboard:warmup", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("dashboard:warmup")))
}

func TestGaugesAndCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddDiscrepancies(2)
	m.AddDiscrepancies(0)
	m.SetLowStock(4)
	m.SetLowStock(1)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.discrepancies))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lowStock))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddDiscrepancies(3)
	m.SetLowStock(3)
	assert.NoError(t, m.Track("x").End(nil))
}

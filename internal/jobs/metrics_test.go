package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("warehouse:drift-sweep").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("warehouse:drift-sweep").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("warehouse:drift-sweep", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("warehouse:drift-sweep", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("warehouse:drift-sweep")))
}

func TestAddSweepAndNilSafety(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddSweep(10, 2)
	m.AddSweep(0, 0)
	require.Equal(t, 10.0, testutil.ToFloat64(m.swept))
	require.Equal(t, 2.0, testutil.ToFloat64(m.drifted))

	var nilMetrics *Metrics
	nilMetrics.AddSweep(1, 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}

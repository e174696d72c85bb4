package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-wms/internal/jobs"
	"github.com/odyssey-erp/odyssey-wms/jobs"
)

func TestJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	for i := 0; i < 40; i++ {
		tracker := metrics.Track(jobs.TaskLineRepair)
		time.Sleep(2 * time.Millisecond)
		require.NoError(t, tracker.End(nil))
	}
	for i := 0; i < 5; i++ {
		tracker := metrics.Track(jobs.TaskDriftSweep)
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, tracker.End(nil))
		metrics.AddSweep(200, i%2)
	}
	for i := 0; i < 2; i++ {
		tracker := metrics.Track(jobs.TaskLineRepair)
		require.Error(t, tracker.End(errors.New("line locked")))
	}

	families, err := reg.Gather()
	require.NoError(t, err)

	success := metricValue(t, families, "wms_jobs_total", map[string]string{"job": jobs.TaskLineRepair, "status": "success"})
	failure := metricValue(t, families, "wms_jobs_total", map[string]string{"job": jobs.TaskLineRepair, "status": "failure"})
	require.GreaterOrEqual(t, success/(success+failure), 0.9)

	require.Equal(t, 1000.0, metricValue(t, families, "wms_sweep_checked_lines_total", nil))
	require.Equal(t, 2.0, metricValue(t, families, "wms_sweep_drifted_lines_total", nil))

	require.Less(t, histogramMean(t, families, "wms_job_duration_seconds", map[string]string{"job": jobs.TaskDriftSweep}), 2.0)
	require.Less(t, histogramMean(t, families, "wms_job_duration_seconds", map[string]string{"job": jobs.TaskLineRepair}), 0.5)
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

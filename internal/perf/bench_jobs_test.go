package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/stockbook/stockbook/internal/jobs"
	"github.com/stockbook/stockbook/jobs"
)

func TestInventoryJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	// Low-stock scans are short and nearly always succeed.
	for i := 0; i < 40; i++ {
		tracker := metrics.Track(jobs.TaskLowStockScan)
		time.Sleep(2 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending scan tracker: %v", err)
		}
	}

	// Ledger audits walk every product and take longer.
	for i := 0; i < 10; i++ {
		tracker := metrics.Track(jobs.TaskLedgerAudit)
		time.Sleep(10 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending audit tracker: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		tracker := metrics.Track(jobs.TaskLowStockScan)
		time.Sleep(3 * time.Millisecond)
		if err := tracker.End(errors.New("redis unavailable")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "stockbook_jobs_total", map[string]string{"job": jobs.TaskLowStockScan, "status": "success"})
	failure := metricValue(t, families, "stockbook_jobs_total", map[string]string{"job": jobs.TaskLowStockScan, "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no scan executions recorded")
	}
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("scan success ratio too low: %f", ratio)
	}

	if mean := histogramMean(t, families, "stockbook_job_duration_seconds", map[string]string{"job": jobs.TaskLedgerAudit}); mean > 2.0 {
		t.Fatalf("ledger audit duration above budget: %f", mean)
	}
	if mean := histogramMean(t, families, "stockbook_job_duration_seconds", map[string]string{"job": jobs.TaskLowStockScan}); mean > 0.5 {
		t.Fatalf("scan duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				switch fam.GetType() {
				case dto.MetricType_COUNTER:
					return metric.GetCounter().GetValue()
				case dto.MetricType_GAUGE:
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
	matched := 0
	for _, lp := range metric.GetLabel() {
		want, ok := labels[lp.GetName()]
		if !ok {
			continue
		}
		if lp.GetValue() != want {
			return false
		}
		matched++
	}
	return matched == len(labels)
}

package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestInitRegistersInstruments(t *testing.T) {
	Init()
	Init() // idempotent

	if AnalysesStarted == nil || AnalysesSucceeded == nil || AnalysesFailed == nil {
		t.Error("analysis counters not initialized")
	}
	if LinesParsed == nil || EventsAccepted == nil || PresetsSkipped == nil {
		t.Error("pipeline counters not initialized")
	}
	if AnalysisDuration == nil || PresetDuration == nil {
		t.Error("duration histograms not initialized")
	}
	if BacklogGauge == nil || RecordingLive == nil {
		t.Error("gauges not initialized")
	}
}

func TestGaugeHelpers(t *testing.T) {
	Init()
	for _, n := range []int{0, 10, 100} {
		SetBacklog(n)
	}
	SetRecordingLive(true)
	SetRecordingLive(false)
	AddCounter(LinesParsed, 5)
	AddCounter(LinesParsed, 0)
	AddCounter(nil, 3) // nil-safe
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})
	prometheus.MustRegister(testHistogram)
	defer prometheus.Unregister(testHistogram)

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})
	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || *metric.Histogram.SampleCount == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation on empty ctx = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q, want abc-123", got)
	}
	if l := LoggerWithCorr(ctx); l == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}

// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	AnalysesStarted   prometheus.Counter
	AnalysesSucceeded prometheus.Counter
	AnalysesFailed    prometheus.Counter
	LinesParsed       prometheus.Counter
	EventsAccepted    prometheus.Counter
	PresetsSkipped    prometheus.Counter
	WebhooksSent      prometheus.Counter
	WebhooksFailed    prometheus.Counter
	ChatRecorded      prometheus.Counter

	// Histograms (seconds)
	AnalysisDuration prometheus.Observer
	PresetDuration   prometheus.Observer

	// Gauges
	BacklogGauge  prometheus.Gauge // unanalyzed VODs with imported chat
	RecordingLive prometheus.Gauge // 1 while the live recorder is attached
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		AnalysesStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "vod_analyses_started_total", Help: "Number of VOD analyses started"})
		AnalysesSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "vod_analyses_succeeded_total", Help: "Number of VOD analyses succeeded"})
		AnalysesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "vod_analyses_failed_total", Help: "Number of VOD analyses failed"})
		LinesParsed = promauto.NewCounter(prometheus.CounterOpts{Name: "vod_chat_lines_parsed_total", Help: "Transcript lines consumed across preset passes"})
		EventsAccepted = promauto.NewCounter(prometheus.CounterOpts{Name: "vod_chat_events_accepted_total", Help: "Chat events accepted into bucket indexes"})
		PresetsSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "vod_presets_skipped_total", Help: "Preset evaluations skipped due to errors or empty results"})
		WebhooksSent = promauto.NewCounter(prometheus.CounterOpts{Name: "vod_webhooks_sent_total", Help: "Discord webhook messages delivered"})
		WebhooksFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "vod_webhooks_failed_total", Help: "Discord webhook deliveries failed"})
		ChatRecorded = promauto.NewCounter(prometheus.CounterOpts{Name: "vod_chat_messages_recorded_total", Help: "Live chat messages written to storage"})
		AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "vod_analysis_duration_seconds", Help: "Full analysis run duration seconds", Buckets: prometheus.DefBuckets})
		PresetDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "vod_preset_duration_seconds", Help: "Single preset evaluation duration seconds", Buckets: prometheus.DefBuckets})
		BacklogGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "vod_analysis_backlog", Help: "VODs with imported chat awaiting analysis"})
		RecordingLive = promauto.NewGauge(prometheus.GaugeOpts{Name: "vod_chat_recording_live", Help: "Live chat recorder attached=1 idle=0"})
	})
}

// SetBacklog records the current number of VODs awaiting analysis.
func SetBacklog(n int) {
	if BacklogGauge != nil {
		BacklogGauge.Set(float64(n))
	}
}

// SetRecordingLive flips the live-recorder gauge.
func SetRecordingLive(live bool) {
	if RecordingLive == nil {
		return
	}
	if live {
		RecordingLive.Set(1)
	} else {
		RecordingLive.Set(0)
	}
}

// AddCounter increments a counter if registered, by n.
func AddCounter(c prometheus.Counter, n int) {
	if c != nil && n > 0 {
		c.Add(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}

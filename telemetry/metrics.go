// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and correlation-id aware logging helpers.
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
	PollCycles      prometheus.Counter
	PollFailures    *prometheus.CounterVec // kind=request|response
	BatchesEmitted  prometheus.Counter
	MessagesEmitted prometheus.Counter
	ItemsDropped    *prometheus.CounterVec // reason=unsupported|invalid
	AuthAttempts    *prometheus.CounterVec // outcome=authorized|rejected|exchange_failed
	ArchiveWrites   *prometheus.CounterVec // result=ok|error

	// Histograms (seconds)
	PollDuration prometheus.Observer

	// Gauges
	PollIntervalGauge        prometheus.Gauge
	ConsecutiveFailuresGauge prometheus.Gauge
	SSESubscribersGauge      prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_poll_cycles_total", Help: "Number of live chat poll cycles started"})
		PollFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ytchat_poll_failures_total", Help: "Poll cycles that failed and were retried at the last known interval"}, []string{"kind"})
		BatchesEmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_batches_emitted_total", Help: "Non-empty message batches delivered to subscribers"})
		MessagesEmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_messages_emitted_total", Help: "Validated chat messages delivered to subscribers"})
		ItemsDropped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ytchat_items_dropped_total", Help: "Chat items dropped by the parser"}, []string{"reason"})
		AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ytchat_oauth_redirects_total", Help: "OAuth redirects handled by outcome"}, []string{"outcome"})
		ArchiveWrites = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ytchat_archive_writes_total", Help: "Batches written to the message archive"}, []string{"result"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "ytchat_poll_request_duration_seconds", Help: "liveChat/messages request duration seconds", Buckets: prometheus.DefBuckets})
		PollIntervalGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "ytchat_poll_interval_seconds", Help: "Provider supplied polling interval currently in effect"})
		ConsecutiveFailuresGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "ytchat_poll_consecutive_failures", Help: "Poll cycles failed in a row"})
		SSESubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "ytchat_sse_subscribers", Help: "Connected /chat/stream clients"})
	})
}

// RecordPollCycle counts a started poll cycle.
func RecordPollCycle() {
	if PollCycles != nil {
		PollCycles.Inc()
	}
}

// RecordPollFailure counts a failed cycle and sets the consecutive failure gauge.
func RecordPollFailure(kind string, consecutive int) {
	if PollFailures != nil {
		PollFailures.WithLabelValues(kind).Inc()
	}
	if ConsecutiveFailuresGauge != nil {
		ConsecutiveFailuresGauge.Set(float64(consecutive))
	}
}

// RecordPollSuccess resets the failure gauge and records the interval now in effect.
func RecordPollSuccess(interval time.Duration) {
	if ConsecutiveFailuresGauge != nil {
		ConsecutiveFailuresGauge.Set(0)
	}
	if PollIntervalGauge != nil {
		PollIntervalGauge.Set(interval.Seconds())
	}
}

// RecordBatch counts one emitted batch of n messages.
func RecordBatch(n int) {
	if BatchesEmitted != nil {
		BatchesEmitted.Inc()
	}
	if MessagesEmitted != nil {
		MessagesEmitted.Add(float64(n))
	}
}

// RecordDropped counts an item the parser dropped.
func RecordDropped(reason string) {
	if ItemsDropped != nil {
		ItemsDropped.WithLabelValues(reason).Inc()
	}
}

// RecordAuth counts a handled OAuth redirect.
func RecordAuth(outcome string) {
	if AuthAttempts != nil {
		AuthAttempts.WithLabelValues(outcome).Inc()
	}
}

// RecordArchive counts an archive write.
func RecordArchive(err error) {
	if ArchiveWrites == nil {
		return
	}
	if err != nil {
		ArchiveWrites.WithLabelValues("error").Inc()
		return
	}
	ArchiveWrites.WithLabelValues("ok").Inc()
}

// AddSSESubscribers adjusts the subscriber gauge by delta.
func AddSSESubscribers(delta int) {
	if SSESubscribersGauge != nil {
		SSESubscribersGauge.Add(float64(delta))
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

// WithCorrelation returns a new context embedding the correlation id.
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

// Package metrics exposes Prometheus counters for the relay pipelines. All
// methods are safe to call on a nil *Metrics so components can run without
// instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the translation relay
type Metrics struct {
	registry *prometheus.Registry

	// Capture pipeline
	ChunksCaptured prometheus.Counter
	OverflowFrames prometheus.Counter

	// Send pipeline
	ChunksSent  prometheus.Counter
	QueueLength prometheus.Gauge

	// Receive and playback
	ChunksReceived   prometheus.Counter
	ChunksPlayed     prometheus.Counter
	ChunksDiscarded  prometheus.Counter
	PlaybackErrors   prometheus.Counter
	Interruptions    prometheus.Counter
	TurnsCompleted   prometheus.Counter
	SessionsStarted  prometheus.Counter
	SessionsFailed   prometheus.Counter
	SessionActive    prometheus.Gauge
	SessionDurations prometheus.Histogram
}

// New creates the metrics and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ChunksCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lt_capture_chunks_total",
			Help: "Total number of audio chunks read from the input device",
		}),
		OverflowFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lt_capture_overflow_frames_total",
			Help: "Total number of capture frames dropped due to device overflow",
		}),
		ChunksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lt_send_chunks_total",
			Help: "Total number of audio chunks sent to the translation session",
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lt_send_queue_length",
			Help: "Current number of captured chunks waiting to be sent",
		}),
		ChunksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lt_receive_audio_chunks_total",
			Help: "Total number of translated audio chunks received",
		}),
		ChunksPlayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lt_playback_chunks_total",
			Help: "Total number of audio chunks written to the output device",
		}),
		ChunksDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lt_playback_discarded_chunks_total",
			Help: "Total number of queued chunks discarded by interruptions",
		}),
		PlaybackErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lt_playback_write_errors_total",
			Help: "Total number of failed output device writes",
		}),
		Interruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lt_interruptions_total",
			Help: "Total number of interruption events received",
		}),
		TurnsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lt_turns_completed_total",
			Help: "Total number of completed translation turns",
		}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lt_sessions_started_total",
			Help: "Total number of translation sessions started",
		}),
		SessionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lt_sessions_failed_total",
			Help: "Total number of translation sessions ended by a fatal error",
		}),
		SessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lt_session_active",
			Help: "1 while a translation session is running",
		}),
		SessionDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lt_session_duration_seconds",
			Help:    "Duration of translation sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),
	}

	m.registry.MustRegister(
		m.ChunksCaptured,
		m.OverflowFrames,
		m.ChunksSent,
		m.QueueLength,
		m.ChunksReceived,
		m.ChunksPlayed,
		m.ChunksDiscarded,
		m.PlaybackErrors,
		m.Interruptions,
		m.TurnsCompleted,
		m.SessionsStarted,
		m.SessionsFailed,
		m.SessionActive,
		m.SessionDurations,
	)
	return m
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the metrics in Prometheus format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Captured records a chunk read from the input device.
func (m *Metrics) Captured() {
	if m != nil {
		m.ChunksCaptured.Inc()
	}
}

// Overflow records a dropped capture frame.
func (m *Metrics) Overflow() {
	if m != nil {
		m.OverflowFrames.Inc()
	}
}

// Sent records a chunk sent to the session and the remaining queue length.
func (m *Metrics) Sent(queued int) {
	if m != nil {
		m.ChunksSent.Inc()
		m.QueueLength.Set(float64(queued))
	}
}

// Received records a translated audio chunk.
func (m *Metrics) Received() {
	if m != nil {
		m.ChunksReceived.Inc()
	}
}

// Played records a chunk written to the output device.
func (m *Metrics) Played() {
	if m != nil {
		m.ChunksPlayed.Inc()
	}
}

// Discarded records chunks dropped by an interruption.
func (m *Metrics) Discarded(n int) {
	if m != nil {
		m.Interruptions.Inc()
		m.ChunksDiscarded.Add(float64(n))
	}
}

// PlaybackError records a failed output write.
func (m *Metrics) PlaybackError() {
	if m != nil {
		m.PlaybackErrors.Inc()
	}
}

// TurnCompleted records a completed turn.
func (m *Metrics) TurnCompleted() {
	if m != nil {
		m.TurnsCompleted.Inc()
	}
}

// SessionStarted marks a session as running.
func (m *Metrics) SessionStarted() {
	if m != nil {
		m.SessionsStarted.Inc()
		m.SessionActive.Set(1)
	}
}

// SessionEnded marks the session as stopped after running for seconds.
func (m *Metrics) SessionEnded(seconds float64, failed bool) {
	if m != nil {
		m.SessionActive.Set(0)
		m.SessionDurations.Observe(seconds)
		if failed {
			m.SessionsFailed.Inc()
		}
	}
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Frame kinds used as label values.
const (
	KindVideo    = "video"
	KindAudio    = "audio"
	KindRawVideo = "raw_video"
)

// Collector defines the interface for metrics collection
type Collector interface {
	// Session metrics
	SessionCreated()
	SessionClosed()
	PeerStateChanged(state string)
	OfferFailed(stage string)

	// Frame delivery metrics
	FrameSent(kind string, sizeBytes int)
	FrameDropped(kind, reason string, count int)
	FrameSkipped(count int)
	PacingLag(lag time.Duration)
	KeyframeRequested(reason string)
	DriftReset()

	// Capture metrics
	CaptureStarted(app string)
	CaptureStopped(app string)
	CaptureFailed(reason string)

	// Input channel metrics
	InputEvent(kind string)
	InputRejected(reason string)
	FeedbackSent(kind string, recipients int)

	// HTTP handler for metrics endpoint
	Handler() http.Handler
}

// PrometheusCollector implements the Collector interface using Prometheus
type PrometheusCollector struct {
	gatherer prometheus.Gatherer

	activeSessions prometheus.Gauge
	sessions       *prometheus.CounterVec
	peerStates     *prometheus.CounterVec
	offerFailures  *prometheus.CounterVec

	framesSent     *prometheus.CounterVec
	frameSizeBytes *prometheus.HistogramVec
	framesDropped  *prometheus.CounterVec
	framesSkipped  prometheus.Counter
	pacingLag      prometheus.Histogram
	keyframeReqs   *prometheus.CounterVec
	driftResets    prometheus.Counter

	captureActive prometheus.Gauge
	captureEvents *prometheus.CounterVec

	inputEvents   *prometheus.CounterVec
	inputRejected *prometheus.CounterVec
	feedbackSent  *prometheus.CounterVec
}

// NewPrometheusCollector creates a new PrometheusCollector registered on reg.
// A nil registry uses the process-wide default registry.
func NewPrometheusCollector(reg *prometheus.Registry) *PrometheusCollector {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	return &PrometheusCollector{
		gatherer: gatherer,

		// Session metrics
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hivecast_active_sessions",
			Help: "Number of live sessions",
		}),

		sessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hivecast_sessions_total",
				Help: "Total number of session lifecycle events",
			},
			[]string{"event"},
		),

		peerStates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hivecast_peer_state_changes_total",
				Help: "Total number of peer connection state transitions",
			},
			[]string{"state"},
		),

		offerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hivecast_offer_failures_total",
				Help: "Total number of abandoned offer attempts",
			},
			[]string{"stage"},
		),

		// Frame metrics
		framesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hivecast_frames_sent_total",
				Help: "Total number of frames handed to the media engine",
			},
			[]string{"kind"},
		),

		frameSizeBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hivecast_frame_size_bytes",
				Help:    "Size of sent frames in bytes",
				Buckets: prometheus.ExponentialBuckets(256, 2, 12), // 256B to 512KB
			},
			[]string{"kind"},
		),

		framesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hivecast_frames_dropped_total",
				Help: "Total number of frames dropped",
			},
			[]string{"kind", "reason"},
		),

		framesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "hivecast_frames_skipped_total",
			Help: "Total number of non-keyframes skipped while waiting for a keyframe",
		}),

		pacingLag: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hivecast_pacing_lag_seconds",
			Help:    "Delay between a frame's target send time and its actual hand-off",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10), // 0.5ms to 256ms
		}),

		keyframeReqs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hivecast_keyframe_requests_total",
				Help: "Total number of keyframe requests sent to the capture pipeline",
			},
			[]string{"reason"},
		),

		driftResets: factory.NewCounter(prometheus.CounterOpts{
			Name: "hivecast_drift_resets_total",
			Help: "Total number of pacing anchor resets",
		}),

		// Capture metrics
		captureActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hivecast_capture_active",
			Help: "Whether a capture pipeline is running",
		}),

		captureEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hivecast_capture_events_total",
				Help: "Total number of capture pipeline lifecycle events",
			},
			[]string{"event", "value"},
		),

		// Input metrics
		inputEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hivecast_input_events_total",
				Help: "Total number of input events passed to the host",
			},
			[]string{"kind"},
		),

		inputRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hivecast_input_rejected_total",
				Help: "Total number of input messages rejected",
			},
			[]string{"reason"},
		),

		feedbackSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hivecast_feedback_messages_total",
				Help: "Total number of feedback messages delivered to clients",
			},
			[]string{"kind"},
		),
	}
}

// SessionCreated records a new session
func (c *PrometheusCollector) SessionCreated() {
	c.sessions.WithLabelValues("created").Inc()
	c.activeSessions.Inc()
}

// SessionClosed records a closed session
func (c *PrometheusCollector) SessionClosed() {
	c.sessions.WithLabelValues("closed").Inc()
	c.activeSessions.Dec()
}

// PeerStateChanged records a peer connection state transition
func (c *PrometheusCollector) PeerStateChanged(state string) {
	c.peerStates.WithLabelValues(state).Inc()
}

// OfferFailed records an abandoned offer attempt
func (c *PrometheusCollector) OfferFailed(stage string) {
	c.offerFailures.WithLabelValues(stage).Inc()
}

// FrameSent records a frame handed to the media engine
func (c *PrometheusCollector) FrameSent(kind string, sizeBytes int) {
	c.framesSent.WithLabelValues(kind).Inc()
	c.frameSizeBytes.WithLabelValues(kind).Observe(float64(sizeBytes))
}

// FrameDropped records dropped frames
func (c *PrometheusCollector) FrameDropped(kind, reason string, count int) {
	if count <= 0 {
		return
	}
	c.framesDropped.WithLabelValues(kind, reason).Add(float64(count))
}

// FrameSkipped records non-keyframes skipped while waiting for a keyframe
func (c *PrometheusCollector) FrameSkipped(count int) {
	if count <= 0 {
		return
	}
	c.framesSkipped.Add(float64(count))
}

// PacingLag records how late a frame was handed off
func (c *PrometheusCollector) PacingLag(lag time.Duration) {
	if lag < 0 {
		lag = 0
	}
	c.pacingLag.Observe(lag.Seconds())
}

// KeyframeRequested records a keyframe request
func (c *PrometheusCollector) KeyframeRequested(reason string) {
	c.keyframeReqs.WithLabelValues(reason).Inc()
}

// DriftReset records a pacing anchor reset
func (c *PrometheusCollector) DriftReset() {
	c.driftResets.Inc()
}

// CaptureStarted records a capture pipeline start
func (c *PrometheusCollector) CaptureStarted(app string) {
	c.captureEvents.WithLabelValues("started", app).Inc()
	c.captureActive.Set(1)
}

// CaptureStopped records a capture pipeline stop
func (c *PrometheusCollector) CaptureStopped(app string) {
	c.captureEvents.WithLabelValues("stopped", app).Inc()
	c.captureActive.Set(0)
}

// CaptureFailed records a refused or failed capture start
func (c *PrometheusCollector) CaptureFailed(reason string) {
	c.captureEvents.WithLabelValues("failed", reason).Inc()
}

// InputEvent records an input event passed to the host
func (c *PrometheusCollector) InputEvent(kind string) {
	c.inputEvents.WithLabelValues(kind).Inc()
}

// InputRejected records a rejected input message
func (c *PrometheusCollector) InputRejected(reason string) {
	c.inputRejected.WithLabelValues(reason).Inc()
}

// FeedbackSent records a feedback message broadcast
func (c *PrometheusCollector) FeedbackSent(kind string, recipients int) {
	c.feedbackSent.WithLabelValues(kind).Add(float64(recipients))
}

// Handler returns an HTTP handler for metrics endpoint
func (c *PrometheusCollector) Handler() http.Handler {
	if c.gatherer == prometheus.DefaultGatherer {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

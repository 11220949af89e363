package monitoring

import (
	"homestream/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Counters
	framesReceived  *prometheus.CounterVec
	framesDisplayed *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	audioChunks     *prometheus.CounterVec
	audioDropped    *prometheus.CounterVec
	reconnects      prometheus.Counter
	protocolErrors  prometheus.Counter
	unroutedDropped prometheus.Counter

	// Gauges
	connectionState prometheus.Gauge
	currentFPS      *prometheus.GaugeVec
	audioQueueDepth *prometheus.GaugeVec
	subscriptions   prometheus.Gauge

	// Histograms
	frameLatency prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		framesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "homestream_frames_received_total",
			Help: "Total frames received per device",
		}, []string{"device_id"}),

		framesDisplayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "homestream_frames_displayed_total",
			Help: "Frames that passed the display rate limiter",
		}, []string{"device_id"}),

		framesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "homestream_frames_dropped_total",
			Help: "Frames dropped by the display rate limiter",
		}, []string{"device_id"}),

		audioChunks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "homestream_audio_chunks_total",
			Help: "Audio chunks enqueued for playback per device",
		}, []string{"device_id"}),

		audioDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "homestream_audio_chunks_dropped_total",
			Help: "Audio chunks evicted by queue overflow or decode failure",
		}, []string{"device_id"}),

		reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "homestream_reconnect_attempts_total",
			Help: "Total reconnect attempts",
		}),

		protocolErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "homestream_protocol_errors_total",
			Help: "Malformed or unrecognized broker messages",
		}),

		unroutedDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "homestream_unrouted_messages_total",
			Help: "Messages dropped because the device is not subscribed",
		}),

		connectionState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "homestream_connection_state",
			Help: "Connection state (0=disconnected 1=connecting 2=connected 3=reconnecting)",
		}),

		currentFPS: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "homestream_current_fps",
			Help: "Rolling display FPS per device",
		}, []string{"device_id"}),

		audioQueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "homestream_audio_queue_depth",
			Help: "Pending audio buffers per device",
		}, []string{"device_id"}),

		subscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "homestream_subscribed_devices",
			Help: "Number of currently subscribed devices",
		}),

		frameLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "homestream_frame_latency_seconds",
			Help:    "Receive-time minus capture-time for displayed frames",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
	}
}

func (p *PrometheusCollector) RecordFrame(deviceID domain.DeviceID, displayed bool, latencySeconds float64) {
	id := string(deviceID)
	p.framesReceived.WithLabelValues(id).Inc()
	if displayed {
		p.framesDisplayed.WithLabelValues(id).Inc()
		if latencySeconds > 0 {
			p.frameLatency.Observe(latencySeconds)
		}
	} else {
		p.framesDropped.WithLabelValues(id).Inc()
	}
}

func (p *PrometheusCollector) RecordFPS(deviceID domain.DeviceID, fps float64) {
	p.currentFPS.WithLabelValues(string(deviceID)).Set(fps)
}

func (p *PrometheusCollector) RecordAudioChunk(deviceID domain.DeviceID) {
	p.audioChunks.WithLabelValues(string(deviceID)).Inc()
}

func (p *PrometheusCollector) RecordAudioDropped(deviceID domain.DeviceID) {
	p.audioDropped.WithLabelValues(string(deviceID)).Inc()
}

func (p *PrometheusCollector) RecordAudioQueueDepth(deviceID domain.DeviceID, depth int) {
	p.audioQueueDepth.WithLabelValues(string(deviceID)).Set(float64(depth))
}

func (p *PrometheusCollector) RecordConnectionState(state domain.ConnectionState) {
	var v float64
	switch state {
	case domain.StateConnecting:
		v = 1
	case domain.StateConnected:
		v = 2
	case domain.StateReconnecting:
		v = 3
	}
	p.connectionState.Set(v)
}

func (p *PrometheusCollector) RecordReconnectAttempt() {
	p.reconnects.Inc()
}

func (p *PrometheusCollector) RecordProtocolError() {
	p.protocolErrors.Inc()
}

func (p *PrometheusCollector) RecordUnroutedMessage() {
	p.unroutedDropped.Inc()
}

func (p *PrometheusCollector) RecordSubscriptionCount(n int) {
	p.subscriptions.Set(float64(n))
}

// RemoveDevice clears the per-device series after an unsubscribe so stale
// devices do not linger in scrapes.
func (p *PrometheusCollector) RemoveDevice(deviceID domain.DeviceID) {
	id := string(deviceID)
	p.framesReceived.DeleteLabelValues(id)
	p.framesDisplayed.DeleteLabelValues(id)
	p.framesDropped.DeleteLabelValues(id)
	p.audioChunks.DeleteLabelValues(id)
	p.audioDropped.DeleteLabelValues(id)
	p.currentFPS.DeleteLabelValues(id)
	p.audioQueueDepth.DeleteLabelValues(id)
}

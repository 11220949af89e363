package broker

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"homestream/internal/core/domain"
	"homestream/internal/core/ports"
	"homestream/internal/core/services"
	"homestream/pkg/tracing"

	"go.uber.org/zap"
)

// Collector receives router-level measurements. The prometheus collector
// implements it; a nil collector disables measurement.
type Collector interface {
	RecordFrame(deviceID domain.DeviceID, displayed bool, latencySeconds float64)
	RecordFPS(deviceID domain.DeviceID, fps float64)
	RecordAudioChunk(deviceID domain.DeviceID)
	RecordProtocolError()
	RecordUnroutedMessage()
	RecordConnectionState(state domain.ConnectionState)
	RecordReconnectAttempt()
	RecordSubscriptionCount(n int)
	RemoveDevice(deviceID domain.DeviceID)
}

// Router classifies each inbound broker message by its type discriminant
// and dispatches it to per-device state. Only messages for currently
// subscribed devices are accepted; everything else is a diagnostic or a
// silent drop. Route is called from the client's single run loop, so
// per-device updates are applied in arrival order.
type Router struct {
	registry  *Registry
	store     *services.StateStore
	notifier  ports.Notifier
	audio     ports.AudioPlayer
	metrics   Collector
	snapshots ports.SnapshotRepository
	exporter  func(domain.StreamMetrics)
	onFrame   ports.FrameHandler

	limiterCfg services.LimiterConfig
	limitersMu sync.Mutex
	limiters   map[domain.DeviceID]*services.Limiter

	logger *zap.SugaredLogger
}

type RouterOptions struct {
	Registry   *Registry
	Store      *services.StateStore
	Notifier   ports.Notifier
	Audio      ports.AudioPlayer
	Metrics    Collector
	Snapshots  ports.SnapshotRepository
	Exporter   func(domain.StreamMetrics)
	OnFrame    ports.FrameHandler
	LimiterCfg services.LimiterConfig
	Logger     *zap.SugaredLogger
}

func NewRouter(opts RouterOptions) *Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Router{
		registry:   opts.Registry,
		store:      opts.Store,
		notifier:   opts.Notifier,
		audio:      opts.Audio,
		metrics:    opts.Metrics,
		snapshots:  opts.Snapshots,
		exporter:   opts.Exporter,
		onFrame:    opts.OnFrame,
		limiterCfg: opts.LimiterCfg,
		limiters:   make(map[domain.DeviceID]*services.Limiter),
		logger:     opts.Logger,
	}
}

// Limiter returns the device's rate limiter, creating it on first use.
func (r *Router) Limiter(deviceID domain.DeviceID) *services.Limiter {
	r.limitersMu.Lock()
	defer r.limitersMu.Unlock()

	l, exists := r.limiters[deviceID]
	if !exists {
		l = services.NewLimiter(r.limiterCfg)
		r.limiters[deviceID] = l
	}
	return l
}

// Metrics returns the current metrics snapshot for a device.
func (r *Router) Metrics(deviceID domain.DeviceID) (domain.StreamMetrics, bool) {
	r.limitersMu.Lock()
	l, exists := r.limiters[deviceID]
	r.limitersMu.Unlock()
	if !exists {
		return domain.StreamMetrics{}, false
	}
	return l.Snapshot(deviceID), true
}

// Forget synchronously drops everything held for a device: stream state,
// rate limiter, audio queue, metric series. Called on unsubscribe.
func (r *Router) Forget(deviceID domain.DeviceID) {
	r.store.Remove(deviceID)

	r.limitersMu.Lock()
	delete(r.limiters, deviceID)
	r.limitersMu.Unlock()

	if r.audio != nil {
		r.audio.Drop(deviceID)
	}
	if r.metrics != nil {
		r.metrics.RemoveDevice(deviceID)
	}
	if r.snapshots != nil {
		if err := r.snapshots.Remove(context.Background(), deviceID); err != nil {
			r.logger.Warnw("snapshot removal failed", "device_id", deviceID, "error", err)
		}
	}
}

// Route parses and dispatches one raw text frame. Malformed input is
// logged and dropped; it never propagates an error to the connection.
func (r *Router) Route(ctx context.Context, data []byte) {
	var env envelope
	if err := decodeInto(data, &env); err != nil {
		r.logger.Warnw("dropping malformed broker message", "error", err, "size", len(data))
		if r.metrics != nil {
			r.metrics.RecordProtocolError()
		}
		return
	}

	ctx, span := tracing.TraceMessage(ctx, env.Type, env.DeviceID)
	defer span.End()

	switch env.Type {
	case TypeFrame:
		r.routeFrame(ctx, data, env)
	case TypeStatus:
		r.routeStatus(ctx, data, env)
	case TypeAlert:
		r.routeAlert(ctx, data, env)
	case TypeError:
		r.routeError(data)
	case TypeConnection, TypeConnected:
		r.routeConnection(data, env)
	case TypePong:
		r.diagnostic(TypePong, "", "pong received")
	case TypeStats:
		r.routeStats(data)
	case TypeSubscriptionConfirmed, TypeUnsubscriptionConfirmed, TypeStatsAck:
		r.diagnostic(env.Type, domain.DeviceID(env.DeviceID), "broker acknowledgement")
	default:
		r.logger.Warnw("unknown broker message type", "type", env.Type)
		if r.metrics != nil {
			r.metrics.RecordProtocolError()
		}
	}
}

// accept applies the subscription policy: messages without a device id are
// system-level (diagnostic only); messages for unsubscribed devices are
// silently dropped.
func (r *Router) accept(kind, deviceID string) (domain.DeviceID, bool) {
	if deviceID == "" {
		r.diagnostic(kind, "", "system-level message without device_id")
		return "", false
	}
	id := domain.DeviceID(deviceID)
	if !r.registry.Contains(id) {
		r.logger.Debugw("dropping message for unsubscribed device", "type", kind, "device_id", deviceID)
		if r.metrics != nil {
			r.metrics.RecordUnroutedMessage()
		}
		return "", false
	}
	return id, true
}

func (r *Router) routeFrame(ctx context.Context, data []byte, env envelope) {
	id, ok := r.accept(TypeFrame, env.DeviceID)
	if !ok {
		return
	}

	var msg frameMessage
	if err := decodeInto(data, &msg); err != nil {
		r.logger.Warnw("dropping undecodable frame message", "device_id", id, "error", err)
		if r.metrics != nil {
			r.metrics.RecordProtocolError()
		}
		return
	}

	now := time.Now()
	captured := parseTimestamp(msg.Timestamp)

	// A single frame message may multiplex image and audio for a combined
	// camera+microphone payload; either part may be absent.
	if msg.Image != "" {
		imageBytes, err := base64.StdEncoding.DecodeString(msg.Image)
		if err != nil {
			r.logger.Warnw("skipping frame with undecodable image", "device_id", id, "error", err)
			tracing.RecordError(ctx, err)
		} else {
			image := domain.Image{
				Data:       imageBytes,
				Timestamp:  captured,
				Location:   msg.Location,
				DeviceType: msg.DeviceType,
				HouseID:    msg.HouseID,
			}
			if msg.Metadata != nil {
				image.Resolution = msg.Metadata.Resolution
				image.Quality = msg.Metadata.Quality
				if image.Location == "" {
					image.Location = msg.Metadata.Location
				}
				if image.DeviceType == "" {
					image.DeviceType = msg.Metadata.DeviceType
				}
			}
			r.store.ApplyImage(id, image)

			limiter := r.Limiter(id)
			displayed := limiter.Observe(captured, now)
			var latency float64
			if !captured.IsZero() {
				latency = now.Sub(captured).Seconds()
			}
			if r.metrics != nil {
				r.metrics.RecordFrame(id, displayed, latency)
			}
			if displayed {
				if r.onFrame != nil {
					r.onFrame(id, image)
				}
				snapshot := limiter.Snapshot(id)
				if r.metrics != nil {
					r.metrics.RecordFPS(id, snapshot.CurrentFPS)
				}
				if (r.exporter != nil || r.snapshots != nil) && limiter.AllowExport() {
					if r.snapshots != nil {
						if err := r.snapshots.SaveMetrics(ctx, snapshot); err != nil {
							r.logger.Warnw("failed to persist metrics snapshot", "device_id", id, "error", err)
						}
					}
					if r.exporter != nil {
						r.exporter(snapshot)
					}
				}
			}
		}
	}

	if msg.Audio != nil {
		r.routeAudio(id, msg.Audio, captured)
	}
}

func (r *Router) routeAudio(id domain.DeviceID, payload *audioPayload, captured time.Time) {
	pcm, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		r.logger.Warnw("skipping audio chunk with undecodable payload", "device_id", id, "error", err)
		return
	}

	chunk := domain.AudioChunk{
		Data:       pcm,
		SampleRate: payload.SampleRate,
		Channels:   payload.Channels,
		Format:     payload.Format,
		Timestamp:  captured,
	}
	r.store.ApplyAudio(id, chunk)

	if r.audio == nil {
		return
	}
	if err := r.audio.Enqueue(id, chunk); err != nil {
		r.logger.Warnw("audio enqueue failed", "device_id", id, "error", err)
		return
	}
	if r.metrics != nil {
		r.metrics.RecordAudioChunk(id)
	}
}

func (r *Router) routeStatus(ctx context.Context, data []byte, env envelope) {
	id, ok := r.accept(TypeStatus, env.DeviceID)
	if !ok {
		return
	}

	var msg statusMessage
	if err := decodeInto(data, &msg); err != nil {
		r.logger.Warnw("dropping undecodable status message", "device_id", id, "error", err)
		return
	}

	status := domain.StatusInfo{
		Value:    domain.DeviceStatus(msg.Status),
		LastSeen: parseTimestamp(msg.LastSeen),
	}
	if status.LastSeen.IsZero() {
		status.LastSeen = parseTimestamp(msg.Timestamp)
	}

	prev, changed := r.store.ApplyStatus(id, status)
	if changed {
		if r.notifier != nil {
			r.notifier.StatusChanged(id, prev, status.Value, status)
		}
		if r.snapshots != nil {
			if err := r.snapshots.SaveStatus(ctx, id, status); err != nil {
				r.logger.Warnw("status snapshot save failed", "device_id", id, "error", err)
			}
		}
	}
}

func (r *Router) routeAlert(ctx context.Context, data []byte, env envelope) {
	id, ok := r.accept(TypeAlert, env.DeviceID)
	if !ok {
		return
	}

	var msg alertMessage
	if err := decodeInto(data, &msg); err != nil {
		r.logger.Warnw("dropping undecodable alert message", "device_id", id, "error", err)
		return
	}

	alert := domain.Alert{
		Message:   msg.Alert,
		Severity:  msg.Severity,
		Timestamp: parseTimestamp(msg.Timestamp),
	}
	r.store.ApplyAlert(id, alert)
	if r.notifier != nil {
		r.notifier.AlertReceived(id, alert)
	}
}

func (r *Router) routeError(data []byte) {
	var msg errorMessage
	if err := decodeInto(data, &msg); err != nil {
		return
	}
	r.logger.Warnw("broker reported error", "message", msg.Message, "code", msg.Code, "device_id", msg.DeviceID)
	r.diagnostic(TypeError, domain.DeviceID(msg.DeviceID), msg.Message)
}

func (r *Router) routeConnection(data []byte, env envelope) {
	var msg connectionMessage
	if err := decodeInto(data, &msg); err != nil {
		return
	}
	detail := msg.Status
	if detail == "" {
		detail = msg.Message
	}
	r.diagnostic(env.Type, "", detail)
}

func (r *Router) routeStats(data []byte) {
	var msg statsMessage
	if err := decodeInto(data, &msg); err != nil || msg.payload() == nil {
		r.diagnostic(TypeStats, "", "stats message without payload")
		return
	}

	payload := msg.payload()
	stats := domain.ServerStats{
		TotalConnections: payload.TotalConnections,
		Subscriptions:    make(map[domain.DeviceID]int, len(payload.DeviceSubscriptions)),
		Timestamp:        parseTimestamp(msg.Timestamp),
	}
	for id, n := range payload.DeviceSubscriptions {
		stats.Subscriptions[domain.DeviceID(id)] = n
	}
	if r.notifier != nil {
		r.notifier.ServerStats(stats)
	}
}

func (r *Router) diagnostic(kind string, deviceID domain.DeviceID, message string) {
	if r.notifier != nil {
		r.notifier.Diagnostic(kind, deviceID, message)
	}
}

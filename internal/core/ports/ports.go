package ports

import (
	"context"

	"homestream/internal/core/domain"
)

// SnapshotRepository mirrors the latest per-device status and metrics for
// out-of-process readers. Implementations keep present values only.
type SnapshotRepository interface {
	SaveStatus(ctx context.Context, deviceID domain.DeviceID, status domain.StatusInfo) error
	SaveMetrics(ctx context.Context, metrics domain.StreamMetrics) error
	GetStatus(ctx context.Context, deviceID domain.DeviceID) (*domain.StatusInfo, error)
	Remove(ctx context.Context, deviceID domain.DeviceID) error
}

// Notifier receives user-facing notifications and diagnostic events from
// the telemetry client. The notification bus is the default implementation;
// renderers subscribe to it.
type Notifier interface {
	ConnectionStateChanged(info domain.ConnectionInfo)
	ConnectionRestored(afterAttempts int)
	ConnectionUnstable(attempts int)
	ConnectionFailed(lastError string)
	StatusChanged(deviceID domain.DeviceID, from, to domain.DeviceStatus, lastSeen domain.StatusInfo)
	AlertReceived(deviceID domain.DeviceID, alert domain.Alert)
	Diagnostic(kind string, deviceID domain.DeviceID, message string)
	ServerStats(stats domain.ServerStats)
}

// AudioSink renders one decoded buffer at a time to the audio output.
// Play must not block; done is invoked once the buffer has been fully
// consumed by the device.
type AudioSink interface {
	Play(samples []float32, done func()) error
	SetGain(gain float64)
	Close() error
}

// AudioPlayer owns per-device playback queues. Enqueue hands one decoded
// chunk to the device's queue; Drop tears the queue down on unsubscribe.
type AudioPlayer interface {
	Enqueue(deviceID domain.DeviceID, chunk domain.AudioChunk) error
	Drop(deviceID domain.DeviceID)
}

// FrameHandler is invoked for every frame that passes the display rate
// limiter. It runs on the client's dispatch goroutine and must be quick.
type FrameHandler func(deviceID domain.DeviceID, image domain.Image)

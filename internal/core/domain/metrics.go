package domain

import "time"

// StreamMetrics is a derived snapshot of one rendering surface's rolling
// windows and lifetime counters.
type StreamMetrics struct {
	DeviceID       DeviceID
	CurrentFPS     float64
	AverageLatency time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	TotalFrames    int64
	DroppedFrames  int64
	LowFPS         bool
	HighLatency    bool
	Timestamp      time.Time
}

// DisplayedFrames is the number of frames that passed the rate limiter.
func (m StreamMetrics) DisplayedFrames() int64 {
	return m.TotalFrames - m.DroppedFrames
}

// ServerStats is the broker-side fan-out telemetry carried by a server
// stats message.
type ServerStats struct {
	TotalConnections int
	Subscriptions    map[DeviceID]int
	Timestamp        time.Time
}

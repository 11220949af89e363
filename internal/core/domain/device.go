package domain

import "time"

type DeviceID string
type SessionID string

type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
)

// Image is the latest decoded camera frame for a device. Data holds the
// JPEG bytes as delivered by the broker.
type Image struct {
	Data       []byte
	Timestamp  time.Time
	Location   string
	Resolution string
	Quality    string
	DeviceType string
	HouseID    string
}

// AudioChunk is one PCM16 audio payload as carried inside a frame message.
// Data holds the raw little-endian samples after base64 decoding.
type AudioChunk struct {
	Data       []byte
	SampleRate int
	Channels   int
	Format     string
	Timestamp  time.Time
}

type Alert struct {
	Message   string
	Severity  string
	Timestamp time.Time
}

type StatusInfo struct {
	Value    DeviceStatus
	LastSeen time.Time
}

// DeviceStream holds the present value of every stream kind for one device.
// Each field keeps at most the most recent arrival; no history is retained.
type DeviceStream struct {
	DeviceID    DeviceID
	LatestImage *Image
	LatestAudio *AudioChunk
	LatestAlert *Alert
	LatestStatus *StatusInfo
	UpdatedAt   time.Time
}

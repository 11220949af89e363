package broker

import (
	"encoding/json"
	"time"
)

// Client -> server actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
	ActionStats       = "stats"
)

// Server -> client message kinds.
const (
	TypeFrame      = "frame"
	TypeStatus     = "status"
	TypeAlert      = "alert"
	TypeError      = "error"
	TypeConnection = "connection"
	TypePong       = "pong"
	TypeStats      = "stats"

	// Acknowledgement kinds emitted by the broker around the core seven.
	TypeConnected               = "connected"
	TypeSubscriptionConfirmed   = "subscription_confirmed"
	TypeUnsubscriptionConfirmed = "unsubscription_confirmed"
	TypeStatsAck                = "stats_ack"
)

type clientMessage struct {
	Action    string        `json:"action"`
	DeviceID  string        `json:"device_id,omitempty"`
	Metrics   *statsPayload `json:"metrics,omitempty"`
	Timestamp string        `json:"timestamp,omitempty"`
}

// statsPayload mirrors the metric field names the broker logs.
type statsPayload struct {
	CurrentFPS     float64 `json:"currentFps"`
	AverageLatency int64   `json:"averageLatency"`
	MinLatency     int64   `json:"minLatency"`
	MaxLatency     int64   `json:"maxLatency"`
	TotalFrames    int64   `json:"totalFrames"`
	DroppedFrames  int64   `json:"droppedFrames"`
}

// envelope carries the discriminant fields shared by every server message.
type envelope struct {
	Type      string `json:"type"`
	DeviceID  string `json:"device_id"`
	Timestamp string `json:"timestamp"`
}

type frameMessage struct {
	DeviceID   string         `json:"device_id"`
	Timestamp  string         `json:"timestamp"`
	Image      string         `json:"image"`
	Audio      *audioPayload  `json:"audio"`
	Metadata   *frameMetadata `json:"metadata"`
	ThingName  string         `json:"thing_name"`
	HouseID    string         `json:"house_id"`
	Location   string         `json:"location"`
	DeviceType string         `json:"device_type"`
}

type audioPayload struct {
	Data       string `json:"data"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Format     string `json:"format"`
}

type frameMetadata struct {
	Location   string `json:"location"`
	Resolution string `json:"resolution"`
	Quality    string `json:"quality"`
	DeviceType string `json:"device_type"`
	Format     string `json:"format"`
}

type statusMessage struct {
	DeviceID  string `json:"device_id"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	LastSeen  string `json:"last_seen"`
}

type alertMessage struct {
	DeviceID  string `json:"device_id"`
	Alert     string `json:"alert"`
	Severity  string `json:"severity"`
	Timestamp string `json:"timestamp"`
}

type errorMessage struct {
	DeviceID  string `json:"device_id"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
}

type connectionMessage struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type statsMessage struct {
	Data      *serverStatsPayload `json:"data"`
	Stats     *serverStatsPayload `json:"stats"`
	Timestamp string              `json:"timestamp"`
}

type serverStatsPayload struct {
	TotalConnections    int            `json:"total_connections"`
	DeviceSubscriptions map[string]int `json:"device_subscriptions"`
}

func (m statsMessage) payload() *serverStatsPayload {
	if m.Data != nil {
		return m.Data
	}
	return m.Stats
}

// timestampLayouts covers RFC3339 and the broker's zone-less isoformat.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// parseTimestamp parses an ISO-8601 timestamp. The zero time is returned
// for empty or unparseable values; callers treat that as "no timestamp".
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func decodeInto(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

package notify

import (
	"time"

	"homestream/internal/core/domain"
)

// Event type constants for kelindar/event.
const (
	TypeConnectionState uint32 = iota + 1
	TypeConnectionRestored
	TypeConnectionUnstable
	TypeConnectionFailed
	TypeStatusChanged
	TypeAlert
	TypeDiagnostic
	TypeServerStats
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ConnectionStateEvent is published on every connection state transition.
type ConnectionStateEvent struct {
	Info      domain.ConnectionInfo `json:"info"`
	Timestamp time.Time             `json:"timestamp"`
}

func (e ConnectionStateEvent) Type() uint32 { return TypeConnectionState }

// ConnectionRestoredEvent is published when a connection comes back after
// one or more failed attempts.
type ConnectionRestoredEvent struct {
	AfterAttempts int       `json:"after_attempts"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e ConnectionRestoredEvent) Type() uint32 { return TypeConnectionRestored }

// ConnectionUnstableEvent is the one-shot "unable to reach the broker"
// notification. It is re-armed by the next successful connection.
type ConnectionUnstableEvent struct {
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}

func (e ConnectionUnstableEvent) Type() uint32 { return TypeConnectionUnstable }

// ConnectionFailedEvent is published when the reconnect budget is spent
// and the client gives up.
type ConnectionFailedEvent struct {
	LastError string    `json:"last_error"`
	Timestamp time.Time `json:"timestamp"`
}

func (e ConnectionFailedEvent) Type() uint32 { return TypeConnectionFailed }

// StatusChangedEvent is published on an observed device status
// transition, never on repeated identical values.
type StatusChangedEvent struct {
	DeviceID  domain.DeviceID     `json:"device_id"`
	From      domain.DeviceStatus `json:"from"`
	To        domain.DeviceStatus `json:"to"`
	LastSeen  domain.StatusInfo   `json:"last_seen"`
	Timestamp time.Time           `json:"timestamp"`
}

func (e StatusChangedEvent) Type() uint32 { return TypeStatusChanged }

// AlertEvent carries a device alert to the renderers.
type AlertEvent struct {
	DeviceID  domain.DeviceID `json:"device_id"`
	Alert     domain.Alert    `json:"alert"`
	Timestamp time.Time       `json:"timestamp"`
}

func (e AlertEvent) Type() uint32 { return TypeAlert }

// DiagnosticEvent carries low-importance protocol chatter: broker errors,
// acks, connection banners.
type DiagnosticEvent struct {
	Kind      string          `json:"kind"`
	DeviceID  domain.DeviceID `json:"device_id,omitempty"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

func (e DiagnosticEvent) Type() uint32 { return TypeDiagnostic }

// ServerStatsEvent carries broker-wide statistics pushed by the server.
type ServerStatsEvent struct {
	Stats     domain.ServerStats `json:"stats"`
	Timestamp time.Time          `json:"timestamp"`
}

func (e ServerStatsEvent) Type() uint32 { return TypeServerStats }

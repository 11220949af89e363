package domain

import "time"

type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// ConnectionInfo is a snapshot of the connection manager's observable state.
// Attempts counts failed connection attempts since the last successful open;
// Unstable is derived from it (more than 3 consecutive failures).
type ConnectionInfo struct {
	State     ConnectionState
	SessionID SessionID
	Attempts  int
	Unstable  bool
	LastError string
	Since     time.Time
}

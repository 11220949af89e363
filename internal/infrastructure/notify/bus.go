package notify

import (
	"time"

	"homestream/internal/core/domain"

	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. It implements ports.Notifier, so
// the connection manager and router publish through it without knowing
// who listens; renderers subscribe to the event types they care about.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new notification bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish broadcasts an event to all subscribers of its type.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ConnectionStateEvent:
		event.Publish(b.dispatcher, e)
	case ConnectionRestoredEvent:
		event.Publish(b.dispatcher, e)
	case ConnectionUnstableEvent:
		event.Publish(b.dispatcher, e)
	case ConnectionFailedEvent:
		event.Publish(b.dispatcher, e)
	case StatusChangedEvent:
		event.Publish(b.dispatcher, e)
	case AlertEvent:
		event.Publish(b.dispatcher, e)
	case DiagnosticEvent:
		event.Publish(b.dispatcher, e)
	case ServerStatsEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a handler; the handler's parameter type selects the
// events it receives. It returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e AlertEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ConnectionStateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConnectionRestoredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConnectionUnstableEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConnectionFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StatusChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(AlertEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DiagnosticEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ServerStatsEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

func (b *Bus) ConnectionStateChanged(info domain.ConnectionInfo) {
	b.Publish(ConnectionStateEvent{Info: info, Timestamp: time.Now()})
}

func (b *Bus) ConnectionRestored(afterAttempts int) {
	b.Publish(ConnectionRestoredEvent{AfterAttempts: afterAttempts, Timestamp: time.Now()})
}

func (b *Bus) ConnectionUnstable(attempts int) {
	b.Publish(ConnectionUnstableEvent{Attempts: attempts, Timestamp: time.Now()})
}

func (b *Bus) ConnectionFailed(lastError string) {
	b.Publish(ConnectionFailedEvent{LastError: lastError, Timestamp: time.Now()})
}

func (b *Bus) StatusChanged(deviceID domain.DeviceID, from, to domain.DeviceStatus, lastSeen domain.StatusInfo) {
	b.Publish(StatusChangedEvent{DeviceID: deviceID, From: from, To: to, LastSeen: lastSeen, Timestamp: time.Now()})
}

func (b *Bus) AlertReceived(deviceID domain.DeviceID, alert domain.Alert) {
	b.Publish(AlertEvent{DeviceID: deviceID, Alert: alert, Timestamp: time.Now()})
}

func (b *Bus) Diagnostic(kind string, deviceID domain.DeviceID, message string) {
	b.Publish(DiagnosticEvent{Kind: kind, DeviceID: deviceID, Message: message, Timestamp: time.Now()})
}

func (b *Bus) ServerStats(stats domain.ServerStats) {
	b.Publish(ServerStatsEvent{Stats: stats, Timestamp: time.Now()})
}

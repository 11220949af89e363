package broker

import (
	"context"
	"net/http"
	"sync"
	"time"

	"homestream/internal/core/domain"
	"homestream/internal/core/ports"
	"homestream/pkg/backoff"
	"homestream/pkg/tracing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Config holds the connection manager settings.
type Config struct {
	URL              string
	Token            string
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	Backoff          backoff.Policy

	// UnstableAfter marks the connection unstable once attempts exceed it;
	// NotifyAfter fires the one-shot "unable to connect" notification.
	UnstableAfter int
	NotifyAfter   int
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = backoff.DefaultPolicy()
	}
	if c.UnstableAfter <= 0 {
		c.UnstableAfter = 3
	}
	if c.NotifyAfter <= 0 {
		c.NotifyAfter = 5
	}
	return c
}

// Client owns the single websocket connection to the broker and drives the
// reconnect state machine. No other component may open a second socket to
// the same endpoint; all inbound traffic is handed to the router from one
// run loop, preserving arrival order.
type Client struct {
	cfg      Config
	router   *Router
	registry *Registry
	notifier ports.Notifier
	metrics  Collector
	logger   *zap.SugaredLogger
	dialer   *websocket.Dialer

	mu       sync.RWMutex
	conn     *websocket.Conn
	info     domain.ConnectionInfo
	notified bool
	running  bool
	closing  bool

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewClient(cfg Config, router *Router, registry *Registry, notifier ports.Notifier, metrics Collector, logger *zap.SugaredLogger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		cfg:      cfg,
		router:   router,
		registry: registry,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		info: domain.ConnectionInfo{State: domain.StateDisconnected},
	}
}

// Connect starts the connection state machine. It returns immediately; the
// run loop dials, reconnects with backoff on unclean closes, and stops
// only on a clean Close, context cancellation, or attempt exhaustion. A
// new Connect after exhaustion starts a fresh episode with attempts reset.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return domain.ErrAlreadyConnected
	}
	c.running = true
	c.closing = false
	c.notified = false
	c.info = domain.ConnectionInfo{State: domain.StateConnecting, Since: time.Now()}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.setState(domain.StateConnecting)

	c.wg.Add(1)
	go c.run()
	return nil
}

func (c *Client) run() {
	defer c.wg.Done()

	for {
		conn, err := c.dial()
		if err != nil {
			if c.failed(err) {
				return
			}
			continue
		}

		c.onOpen(conn)

		err = c.readLoop(conn)
		conn.Close()

		c.mu.Lock()
		c.conn = nil
		closing := c.closing
		c.mu.Unlock()

		if closing || c.ctx.Err() != nil || isCleanClose(err) {
			c.setState(domain.StateDisconnected)
			return
		}

		if c.failed(err) {
			return
		}
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	c.mu.RLock()
	attempt := c.info.Attempts
	c.mu.RUnlock()

	ctx, span := tracing.TraceConnect(c.ctx, string(c.sessionID()), attempt)
	defer span.End()

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return conn, nil
}

// failed records one failed attempt and sleeps the backoff delay. It
// returns true when the machine should stop: context cancelled or the
// attempt budget spent.
func (c *Client) failed(err error) bool {
	c.mu.Lock()
	c.info.Attempts++
	attempts := c.info.Attempts
	c.info.Unstable = attempts > c.cfg.UnstableAfter
	if err != nil {
		c.info.LastError = err.Error()
	}
	notify := attempts > c.cfg.NotifyAfter && !c.notified
	if notify {
		c.notified = true
	}
	lastError := c.info.LastError
	c.mu.Unlock()

	c.logger.Warnw("connection attempt failed",
		"url", c.cfg.URL,
		"attempts", attempts,
		"error", lastError,
	)
	if c.metrics != nil {
		c.metrics.RecordReconnectAttempt()
	}
	if notify && c.notifier != nil {
		c.notifier.ConnectionUnstable(attempts)
	}

	if c.cfg.Backoff.Exhausted(attempts) {
		c.logger.Errorw("giving up on broker connection", "attempts", attempts, "last_error", lastError)
		c.setState(domain.StateDisconnected)
		c.mu.Lock()
		c.running = false
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if c.notifier != nil {
			c.notifier.ConnectionFailed(lastError)
		}
		return true
	}

	delay := c.cfg.Backoff.Delay(attempts - 1)
	c.setState(domain.StateReconnecting)
	c.logger.Infow("scheduling reconnect", "delay", delay, "attempts", attempts)

	select {
	case <-c.ctx.Done():
		c.setState(domain.StateDisconnected)
		return true
	case <-time.After(delay):
		return false
	}
}

func (c *Client) onOpen(conn *websocket.Conn) {
	c.mu.Lock()
	restoredAfter := c.info.Attempts
	c.conn = conn
	c.info.Attempts = 0
	c.info.Unstable = false
	c.info.LastError = ""
	c.info.SessionID = domain.SessionID(uuid.NewString())
	c.info.State = domain.StateConnected
	c.info.Since = time.Now()
	c.notified = false
	info := c.info
	c.mu.Unlock()

	c.logger.Infow("connected to broker",
		"url", c.cfg.URL,
		"session_id", info.SessionID,
		"recovered_after", restoredAfter,
	)
	if c.metrics != nil {
		c.metrics.RecordConnectionState(domain.StateConnected)
	}
	if c.notifier != nil {
		c.notifier.ConnectionStateChanged(info)
		if restoredAfter > 0 {
			c.notifier.ConnectionRestored(restoredAfter)
		}
	}

	// Replay every current subscription; the wire protocol has no ack for
	// subscribe, so replay is fire-and-forget and idempotent server-side.
	for _, id := range c.registry.List() {
		if err := c.send(clientMessage{Action: ActionSubscribe, DeviceID: string(id)}); err != nil {
			c.logger.Warnw("subscription replay failed", "device_id", id, "error", err)
		}
	}
	if c.metrics != nil {
		c.metrics.RecordSubscriptionCount(c.registry.Len())
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	messageChan := make(chan []byte, 16)
	errorChan := make(chan error, 1)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errorChan <- err
				return
			}
			select {
			case messageChan <- data:
			case <-c.ctx.Done():
				return
			}
		}
	}()

	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case data := <-messageChan:
			c.router.Route(c.ctx, data)

		case <-pingTicker.C:
			if err := c.send(clientMessage{Action: ActionPing}); err != nil {
				c.logger.Warnw("ping failed", "error", err)
			}

		case err := <-errorChan:
			return err

		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}
}

// Subscribe adds the device to the registry and, when connected, tells the
// broker immediately. When disconnected the membership is remembered and
// replayed on the next successful open.
func (c *Client) Subscribe(deviceID domain.DeviceID) error {
	if !c.registry.Add(deviceID) {
		return nil
	}
	if c.metrics != nil {
		c.metrics.RecordSubscriptionCount(c.registry.Len())
	}

	err := c.send(clientMessage{Action: ActionSubscribe, DeviceID: string(deviceID)})
	if err == domain.ErrNotConnected {
		// Remembered; replayed after (re)connect.
		return nil
	}
	return err
}

// Unsubscribe removes the device from the registry, tells the broker when
// connected, and synchronously drops all state held for the device so
// stale data cannot linger.
func (c *Client) Unsubscribe(deviceID domain.DeviceID) error {
	present := c.registry.Remove(deviceID)
	c.router.Forget(deviceID)
	if !present {
		return nil
	}
	if c.metrics != nil {
		c.metrics.RecordSubscriptionCount(c.registry.Len())
	}

	err := c.send(clientMessage{Action: ActionUnsubscribe, DeviceID: string(deviceID)})
	if err == domain.ErrNotConnected {
		return nil
	}
	return err
}

// SendStats pushes one metrics snapshot upstream. Rate limiting is the
// caller's concern (the router gates exports per device).
func (c *Client) SendStats(m domain.StreamMetrics) error {
	return c.send(clientMessage{
		Action:   ActionStats,
		DeviceID: string(m.DeviceID),
		Metrics: &statsPayload{
			CurrentFPS:     m.CurrentFPS,
			AverageLatency: m.AverageLatency.Milliseconds(),
			MinLatency:     m.MinLatency.Milliseconds(),
			MaxLatency:     m.MaxLatency.Milliseconds(),
			TotalFrames:    m.TotalFrames,
			DroppedFrames:  m.DroppedFrames,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// send marshals and writes one message. Send failures while disconnected
// are never retried; callers resubmit after reconnection if still relevant.
func (c *Client) send(msg clientMessage) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.info.State == domain.StateConnected
	c.mu.RUnlock()

	if conn == nil || !connected {
		c.mu.Lock()
		c.info.LastError = domain.ErrNotConnected.Error()
		c.mu.Unlock()
		return domain.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		c.mu.Lock()
		c.info.LastError = err.Error()
		c.mu.Unlock()
		return err
	}
	return nil
}

// Close performs a clean shutdown: close code 1000, no reconnect, no
// attempt increment.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	conn := c.conn
	cancel := c.cancel
	c.mu.Unlock()

	var errs error
	if conn != nil {
		deadline := time.Now().Add(c.cfg.WriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown")
		if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && err != websocket.ErrCloseSent {
			errs = multierr.Append(errs, err)
		}
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.running = false
	c.conn = nil
	c.mu.Unlock()
	return errs
}

// Info returns a snapshot of the observable connection state.
func (c *Client) Info() domain.ConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// IsConnected reports whether a connection is currently open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info.State == domain.StateConnected
}

func (c *Client) sessionID() domain.SessionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info.SessionID
}

func (c *Client) setState(state domain.ConnectionState) {
	c.mu.Lock()
	if c.info.State == state {
		c.mu.Unlock()
		return
	}
	c.info.State = state
	c.info.Since = time.Now()
	info := c.info
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordConnectionState(state)
	}
	if c.notifier != nil {
		c.notifier.ConnectionStateChanged(info)
	}
}

func isCleanClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure)
}

package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"homestream/internal/core/domain"
	"homestream/internal/core/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu             sync.Mutex
	stateChanges   []domain.ConnectionInfo
	restored       []int
	unstable       []int
	failed         []string
	statusChanges  []domain.DeviceStatus
	alerts         []domain.Alert
	diagnostics    []string
	diagnosticIDs  []domain.DeviceID
	serverStats    []domain.ServerStats
	alertDeviceIDs []domain.DeviceID
}

func (f *fakeNotifier) ConnectionStateChanged(info domain.ConnectionInfo) {
	f.mu.Lock()
	f.stateChanges = append(f.stateChanges, info)
	f.mu.Unlock()
}

func (f *fakeNotifier) ConnectionRestored(afterAttempts int) {
	f.mu.Lock()
	f.restored = append(f.restored, afterAttempts)
	f.mu.Unlock()
}

func (f *fakeNotifier) ConnectionUnstable(attempts int) {
	f.mu.Lock()
	f.unstable = append(f.unstable, attempts)
	f.mu.Unlock()
}

func (f *fakeNotifier) ConnectionFailed(lastError string) {
	f.mu.Lock()
	f.failed = append(f.failed, lastError)
	f.mu.Unlock()
}

func (f *fakeNotifier) StatusChanged(_ domain.DeviceID, _, to domain.DeviceStatus, _ domain.StatusInfo) {
	f.mu.Lock()
	f.statusChanges = append(f.statusChanges, to)
	f.mu.Unlock()
}

func (f *fakeNotifier) AlertReceived(deviceID domain.DeviceID, alert domain.Alert) {
	f.mu.Lock()
	f.alerts = append(f.alerts, alert)
	f.alertDeviceIDs = append(f.alertDeviceIDs, deviceID)
	f.mu.Unlock()
}

func (f *fakeNotifier) Diagnostic(kind string, deviceID domain.DeviceID, _ string) {
	f.mu.Lock()
	f.diagnostics = append(f.diagnostics, kind)
	f.diagnosticIDs = append(f.diagnosticIDs, deviceID)
	f.mu.Unlock()
}

func (f *fakeNotifier) ServerStats(stats domain.ServerStats) {
	f.mu.Lock()
	f.serverStats = append(f.serverStats, stats)
	f.mu.Unlock()
}

type fakeCollector struct {
	mu             sync.Mutex
	frames         int
	displayed      int
	protocolErrors int
	unrouted       int
	audioChunks    int
	reconnects     int
	removedDevices []domain.DeviceID
	states         []domain.ConnectionState
	subCounts      []int
}

func (f *fakeCollector) RecordFrame(_ domain.DeviceID, displayed bool, _ float64) {
	f.mu.Lock()
	f.frames++
	if displayed {
		f.displayed++
	}
	f.mu.Unlock()
}

func (f *fakeCollector) RecordFPS(domain.DeviceID, float64) {}

func (f *fakeCollector) RecordAudioChunk(domain.DeviceID) {
	f.mu.Lock()
	f.audioChunks++
	f.mu.Unlock()
}

func (f *fakeCollector) RecordProtocolError() {
	f.mu.Lock()
	f.protocolErrors++
	f.mu.Unlock()
}

func (f *fakeCollector) RecordUnroutedMessage() {
	f.mu.Lock()
	f.unrouted++
	f.mu.Unlock()
}

func (f *fakeCollector) RecordConnectionState(state domain.ConnectionState) {
	f.mu.Lock()
	f.states = append(f.states, state)
	f.mu.Unlock()
}

func (f *fakeCollector) RecordReconnectAttempt() {
	f.mu.Lock()
	f.reconnects++
	f.mu.Unlock()
}

func (f *fakeCollector) RecordSubscriptionCount(n int) {
	f.mu.Lock()
	f.subCounts = append(f.subCounts, n)
	f.mu.Unlock()
}

func (f *fakeCollector) RemoveDevice(deviceID domain.DeviceID) {
	f.mu.Lock()
	f.removedDevices = append(f.removedDevices, deviceID)
	f.mu.Unlock()
}

type fakePlayer struct {
	mu       sync.Mutex
	enqueued []domain.AudioChunk
	dropped  []domain.DeviceID
}

func (f *fakePlayer) Enqueue(_ domain.DeviceID, chunk domain.AudioChunk) error {
	f.mu.Lock()
	f.enqueued = append(f.enqueued, chunk)
	f.mu.Unlock()
	return nil
}

func (f *fakePlayer) Drop(deviceID domain.DeviceID) {
	f.mu.Lock()
	f.dropped = append(f.dropped, deviceID)
	f.mu.Unlock()
}

type fakeSnapshots struct {
	mu            sync.Mutex
	savedStatuses []domain.DeviceID
	savedMetrics  []domain.StreamMetrics
	removed       []domain.DeviceID
}

func (f *fakeSnapshots) SaveStatus(_ context.Context, deviceID domain.DeviceID, _ domain.StatusInfo) error {
	f.mu.Lock()
	f.savedStatuses = append(f.savedStatuses, deviceID)
	f.mu.Unlock()
	return nil
}

func (f *fakeSnapshots) SaveMetrics(_ context.Context, metrics domain.StreamMetrics) error {
	f.mu.Lock()
	f.savedMetrics = append(f.savedMetrics, metrics)
	f.mu.Unlock()
	return nil
}

func (f *fakeSnapshots) GetStatus(_ context.Context, _ domain.DeviceID) (*domain.StatusInfo, error) {
	return nil, domain.ErrDeviceNotFound
}

func (f *fakeSnapshots) Remove(_ context.Context, deviceID domain.DeviceID) error {
	f.mu.Lock()
	f.removed = append(f.removed, deviceID)
	f.mu.Unlock()
	return nil
}

type routerFixture struct {
	router    *Router
	registry  *Registry
	store     *services.StateStore
	notifier  *fakeNotifier
	collector *fakeCollector
	player    *fakePlayer
	snapshots *fakeSnapshots
	frames    []domain.DeviceID
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		registry:  NewRegistry(),
		store:     services.NewStateStore(),
		notifier:  &fakeNotifier{},
		collector: &fakeCollector{},
		player:    &fakePlayer{},
		snapshots: &fakeSnapshots{},
	}
	f.router = NewRouter(RouterOptions{
		Registry:  f.registry,
		Store:     f.store,
		Notifier:  f.notifier,
		Audio:     f.player,
		Metrics:   f.collector,
		Snapshots: f.snapshots,
		OnFrame: func(deviceID domain.DeviceID, _ domain.Image) {
			f.frames = append(f.frames, deviceID)
		},
		LimiterCfg: services.LimiterConfig{MaxFPS: 30},
	})
	return f
}

func TestRouter_FrameForSubscribedDevice(t *testing.T) {
	f := newRouterFixture(t)
	f.registry.Add("camera-1")

	msg := `{"type":"frame","device_id":"camera-1","timestamp":"2026-08-30T10:15:00Z","image":"aGVsbG8=","metadata":{"resolution":"640x480","quality":"high","location":"kitchen"}}`
	f.router.Route(context.Background(), []byte(msg))

	stream, ok := f.store.Get("camera-1")
	require.True(t, ok)
	require.NotNil(t, stream.LatestImage)
	assert.Equal(t, []byte("hello"), stream.LatestImage.Data)
	assert.Equal(t, "kitchen", stream.LatestImage.Location)
	assert.Equal(t, "640x480", stream.LatestImage.Resolution)

	assert.Equal(t, []domain.DeviceID{"camera-1"}, f.frames)
	assert.Equal(t, 1, f.collector.frames)
	assert.Equal(t, 1, f.collector.displayed)
}

func TestRouter_DisplayedFramePersistsMetricsSnapshot(t *testing.T) {
	f := newRouterFixture(t)
	f.registry.Add("camera-1")

	msg := `{"type":"frame","device_id":"camera-1","image":"aGVsbG8="}`
	f.router.Route(context.Background(), []byte(msg))

	require.Len(t, f.snapshots.savedMetrics, 1)
	assert.Equal(t, domain.DeviceID("camera-1"), f.snapshots.savedMetrics[0].DeviceID)
	assert.Equal(t, int64(1), f.snapshots.savedMetrics[0].TotalFrames)
}

func TestRouter_FrameForUnsubscribedDeviceIsDropped(t *testing.T) {
	f := newRouterFixture(t)

	msg := `{"type":"frame","device_id":"camera-9","image":"aGVsbG8="}`
	f.router.Route(context.Background(), []byte(msg))

	_, ok := f.store.Get("camera-9")
	assert.False(t, ok)
	assert.Empty(t, f.frames)
	assert.Equal(t, 1, f.collector.unrouted)
	assert.Zero(t, f.collector.protocolErrors)
}

func TestRouter_MalformedMessageNeverPanics(t *testing.T) {
	f := newRouterFixture(t)

	f.router.Route(context.Background(), []byte(`{nope`))
	f.router.Route(context.Background(), []byte(``))
	f.router.Route(context.Background(), []byte(`42`))

	assert.Equal(t, 3, f.collector.protocolErrors)
}

func TestRouter_UnknownTypeIsCountedNotFatal(t *testing.T) {
	f := newRouterFixture(t)

	f.router.Route(context.Background(), []byte(`{"type":"telemetry_v2","device_id":"camera-1"}`))
	assert.Equal(t, 1, f.collector.protocolErrors)
}

func TestRouter_FrameWithBadImagePayload(t *testing.T) {
	f := newRouterFixture(t)
	f.registry.Add("camera-1")

	msg := `{"type":"frame","device_id":"camera-1","image":"not base64!!"}`
	f.router.Route(context.Background(), []byte(msg))

	stream, ok := f.store.Get("camera-1")
	if ok {
		assert.Nil(t, stream.LatestImage)
	}
	assert.Empty(t, f.frames)
}

func TestRouter_StatusTransitions(t *testing.T) {
	f := newRouterFixture(t)
	f.registry.Add("camera-1")

	online := `{"type":"status","device_id":"camera-1","status":"online","timestamp":"2026-08-30T10:00:00Z"}`
	offline := `{"type":"status","device_id":"camera-1","status":"offline","timestamp":"2026-08-30T10:01:00Z"}`

	// First observation is a transition from unknown; a repeat is not.
	f.router.Route(context.Background(), []byte(online))
	f.router.Route(context.Background(), []byte(online))
	f.router.Route(context.Background(), []byte(offline))

	assert.Equal(t, []domain.DeviceStatus{domain.StatusOnline, domain.StatusOffline}, f.notifier.statusChanges)
}

func TestRouter_AlertRouted(t *testing.T) {
	f := newRouterFixture(t)
	f.registry.Add("camera-1")

	msg := `{"type":"alert","device_id":"camera-1","alert":"motion detected","severity":"warning","timestamp":"2026-08-30T10:00:00Z"}`
	f.router.Route(context.Background(), []byte(msg))

	require.Len(t, f.notifier.alerts, 1)
	assert.Equal(t, "motion detected", f.notifier.alerts[0].Message)
	assert.Equal(t, []domain.DeviceID{"camera-1"}, f.notifier.alertDeviceIDs)

	stream, ok := f.store.Get("camera-1")
	require.True(t, ok)
	require.NotNil(t, stream.LatestAlert)
	assert.Equal(t, "warning", stream.LatestAlert.Severity)
}

func TestRouter_AudioInFrameMessage(t *testing.T) {
	f := newRouterFixture(t)
	f.registry.Add("camera-1")

	// Frame carrying audio only; AAAA is four zero PCM bytes.
	msg := `{"type":"frame","device_id":"camera-1","audio":{"data":"AAAA","sample_rate":16000,"channels":1,"format":"pcm16"}}`
	f.router.Route(context.Background(), []byte(msg))

	require.Len(t, f.player.enqueued, 1)
	assert.Equal(t, 16000, f.player.enqueued[0].SampleRate)
	assert.Equal(t, 1, f.collector.audioChunks)

	stream, ok := f.store.Get("camera-1")
	require.True(t, ok)
	assert.NotNil(t, stream.LatestAudio)
}

func TestRouter_ServerStats(t *testing.T) {
	f := newRouterFixture(t)

	msg := `{"type":"stats","data":{"total_connections":4,"device_subscriptions":{"camera-1":2,"camera-2":1}}}`
	f.router.Route(context.Background(), []byte(msg))

	require.Len(t, f.notifier.serverStats, 1)
	assert.Equal(t, 4, f.notifier.serverStats[0].TotalConnections)
	assert.Equal(t, 2, f.notifier.serverStats[0].Subscriptions["camera-1"])
}

func TestRouter_AcknowledgementsAreDiagnostics(t *testing.T) {
	f := newRouterFixture(t)

	f.router.Route(context.Background(), []byte(`{"type":"subscription_confirmed","device_id":"camera-1"}`))
	f.router.Route(context.Background(), []byte(`{"type":"pong"}`))
	f.router.Route(context.Background(), []byte(`{"type":"connected","status":"ok"}`))
	f.router.Route(context.Background(), []byte(`{"type":"error","message":"bad subscription","code":"E42"}`))

	assert.Equal(t, []string{TypeSubscriptionConfirmed, TypePong, TypeConnected, TypeError}, f.notifier.diagnostics)
	assert.Equal(t, domain.DeviceID("camera-1"), f.notifier.diagnosticIDs[0])
	assert.Zero(t, f.collector.protocolErrors)
}

func TestRouter_Forget(t *testing.T) {
	f := newRouterFixture(t)
	f.registry.Add("camera-1")

	msg := `{"type":"frame","device_id":"camera-1","image":"aGVsbG8="}`
	f.router.Route(context.Background(), []byte(msg))
	_, ok := f.store.Get("camera-1")
	require.True(t, ok)

	f.router.Forget("camera-1")

	_, ok = f.store.Get("camera-1")
	assert.False(t, ok)
	assert.Equal(t, []domain.DeviceID{"camera-1"}, f.player.dropped)
	assert.Equal(t, []domain.DeviceID{"camera-1"}, f.collector.removedDevices)

	_, ok = f.router.Metrics("camera-1")
	assert.False(t, ok)
}

func TestRouter_DisplayRateLimiting(t *testing.T) {
	f := newRouterFixture(t)
	f.router.limiterCfg = services.LimiterConfig{MaxFPS: 5}
	f.registry.Add("camera-1")

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	limiter := f.router.Limiter("camera-1")

	displayed := 0
	for i := 0; i < 20; i++ {
		if limiter.Observe(time.Time{}, base.Add(time.Duration(i)*50*time.Millisecond)) {
			displayed++
		}
	}
	assert.Equal(t, 5, displayed)
}

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"homestream/internal/core/domain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnection struct {
	info         domain.ConnectionInfo
	subscribed   []domain.DeviceID
	unsubscribed []domain.DeviceID
	err          error
}

func (f *fakeConnection) Info() domain.ConnectionInfo { return f.info }

func (f *fakeConnection) IsConnected() bool { return f.info.State == domain.StateConnected }

func (f *fakeConnection) Subscribe(id domain.DeviceID) error {
	if f.err != nil {
		return f.err
	}
	f.subscribed = append(f.subscribed, id)
	return nil
}

func (f *fakeConnection) Unsubscribe(id domain.DeviceID) error {
	if f.err != nil {
		return f.err
	}
	f.unsubscribed = append(f.unsubscribed, id)
	return nil
}

type fakeStreams struct {
	streams map[domain.DeviceID]domain.DeviceStream
}

func (f *fakeStreams) Get(id domain.DeviceID) (domain.DeviceStream, bool) {
	s, ok := f.streams[id]
	return s, ok
}

func (f *fakeStreams) Devices() []domain.DeviceID {
	ids := make([]domain.DeviceID, 0, len(f.streams))
	for id := range f.streams {
		ids = append(ids, id)
	}
	return ids
}

type fakeMetrics struct {
	metrics map[domain.DeviceID]domain.StreamMetrics
}

func (f *fakeMetrics) Metrics(id domain.DeviceID) (domain.StreamMetrics, bool) {
	m, ok := f.metrics[id]
	return m, ok
}

type fakeSnapshots struct {
	statuses map[domain.DeviceID]domain.StatusInfo
}

func (f *fakeSnapshots) GetStatus(_ context.Context, id domain.DeviceID) (*domain.StatusInfo, error) {
	status, ok := f.statuses[id]
	if !ok {
		return nil, domain.ErrDeviceNotFound
	}
	return &status, nil
}

func setupHandler(conn *fakeConnection, streams *fakeStreams, metrics *fakeMetrics) *gin.Engine {
	return setupHandlerWithSnapshots(conn, streams, metrics, nil)
}

func setupHandlerWithSnapshots(conn *fakeConnection, streams *fakeStreams, metrics *fakeMetrics, snapshots SnapshotReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewStatusHandler(conn, streams, metrics, snapshots).SetupRoutes(router)
	return router
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestStatusHandler_Health(t *testing.T) {
	conn := &fakeConnection{info: domain.ConnectionInfo{State: domain.StateConnected}}
	router := setupHandler(conn, &fakeStreams{}, &fakeMetrics{})

	w := doRequest(router, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["connected"])
}

func TestStatusHandler_GetConnection(t *testing.T) {
	conn := &fakeConnection{info: domain.ConnectionInfo{
		State:    domain.StateReconnecting,
		Attempts: 4,
		Unstable: true,
	}}
	router := setupHandler(conn, &fakeStreams{}, &fakeMetrics{})

	w := doRequest(router, http.MethodGet, "/api/v1/connection")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"attempts":4`)
	assert.Contains(t, w.Body.String(), `"unstable":true`)
}

func TestStatusHandler_GetDevice(t *testing.T) {
	streams := &fakeStreams{streams: map[domain.DeviceID]domain.DeviceStream{
		"camera-1": {
			DeviceID: "camera-1",
			LatestImage: &domain.Image{
				Data:       []byte("jpegjpeg"),
				Resolution: "640x480",
				Location:   "kitchen",
			},
			LatestStatus: &domain.StatusInfo{Value: domain.StatusOnline, LastSeen: time.Now()},
		},
	}}
	router := setupHandler(&fakeConnection{}, streams, &fakeMetrics{})

	w := doRequest(router, http.MethodGet, "/api/v1/devices/camera-1")
	require.Equal(t, http.StatusOK, w.Code)

	// Raw image bytes never cross the API, only the size.
	assert.NotContains(t, w.Body.String(), "jpegjpeg")
	assert.Contains(t, w.Body.String(), `"bytes":8`)
	assert.Contains(t, w.Body.String(), `"status":"online"`)
}

func TestStatusHandler_GetDeviceNotFound(t *testing.T) {
	router := setupHandler(&fakeConnection{}, &fakeStreams{}, &fakeMetrics{})

	w := doRequest(router, http.MethodGet, "/api/v1/devices/ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusHandler_GetDeviceFallsBackToSnapshot(t *testing.T) {
	snapshots := &fakeSnapshots{statuses: map[domain.DeviceID]domain.StatusInfo{
		"sensor-1": {Value: domain.StatusOffline, LastSeen: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)},
	}}
	router := setupHandlerWithSnapshots(&fakeConnection{}, &fakeStreams{}, &fakeMetrics{}, snapshots)

	w := doRequest(router, http.MethodGet, "/api/v1/devices/sensor-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"offline"`)
	assert.Contains(t, w.Body.String(), `"live":false`)

	w = doRequest(router, http.MethodGet, "/api/v1/devices/ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusHandler_ListDevices(t *testing.T) {
	streams := &fakeStreams{streams: map[domain.DeviceID]domain.DeviceStream{
		"camera-1": {DeviceID: "camera-1"},
		"camera-2": {DeviceID: "camera-2"},
	}}
	router := setupHandler(&fakeConnection{}, streams, &fakeMetrics{})

	w := doRequest(router, http.MethodGet, "/api/v1/devices")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
}

func TestStatusHandler_GetDeviceMetrics(t *testing.T) {
	metrics := &fakeMetrics{metrics: map[domain.DeviceID]domain.StreamMetrics{
		"camera-1": {DeviceID: "camera-1", CurrentFPS: 4.8, TotalFrames: 200, DroppedFrames: 50},
	}}
	router := setupHandler(&fakeConnection{}, &fakeStreams{}, metrics)

	w := doRequest(router, http.MethodGet, "/api/v1/devices/camera-1/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"current_fps":4.8`)

	w = doRequest(router, http.MethodGet, "/api/v1/devices/ghost/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusHandler_SubscribeAndUnsubscribe(t *testing.T) {
	conn := &fakeConnection{}
	router := setupHandler(conn, &fakeStreams{}, &fakeMetrics{})

	w := doRequest(router, http.MethodPost, "/api/v1/devices/camera-1/subscribe")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []domain.DeviceID{"camera-1"}, conn.subscribed)

	w = doRequest(router, http.MethodDelete, "/api/v1/devices/camera-1/subscribe")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []domain.DeviceID{"camera-1"}, conn.unsubscribed)
}

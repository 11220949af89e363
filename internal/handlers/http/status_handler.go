package http

import (
	"context"
	"net/http"

	"homestream/internal/core/domain"

	"github.com/gin-gonic/gin"
)

// ConnectionController is the slice of the broker client the handler
// needs: observable state plus subscription control.
type ConnectionController interface {
	Info() domain.ConnectionInfo
	IsConnected() bool
	Subscribe(deviceID domain.DeviceID) error
	Unsubscribe(deviceID domain.DeviceID) error
}

// StreamReader exposes the latest per-device stream state.
type StreamReader interface {
	Get(deviceID domain.DeviceID) (domain.DeviceStream, bool)
	Devices() []domain.DeviceID
}

// MetricsReader exposes per-device display metrics.
type MetricsReader interface {
	Metrics(deviceID domain.DeviceID) (domain.StreamMetrics, bool)
}

// SnapshotReader reads persisted status for devices that have no live
// stream entry, such as a device seen before the last reconnect.
type SnapshotReader interface {
	GetStatus(ctx context.Context, deviceID domain.DeviceID) (*domain.StatusInfo, error)
}

// StatusHandler serves the local diagnostic API: connection state, device
// stream summaries and metrics, and subscription control.
type StatusHandler struct {
	connection ConnectionController
	streams    StreamReader
	metrics    MetricsReader
	snapshots  SnapshotReader
}

func NewStatusHandler(connection ConnectionController, streams StreamReader, metrics MetricsReader, snapshots SnapshotReader) *StatusHandler {
	return &StatusHandler{
		connection: connection,
		streams:    streams,
		metrics:    metrics,
		snapshots:  snapshots,
	}
}

func (h *StatusHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	api := router.Group("/api/v1")
	{
		api.GET("/connection", h.GetConnection)
		api.GET("/devices", h.ListDevices)
		api.GET("/devices/:id", h.GetDevice)
		api.GET("/devices/:id/metrics", h.GetDeviceMetrics)
		api.POST("/devices/:id/subscribe", h.SubscribeDevice)
		api.DELETE("/devices/:id/subscribe", h.UnsubscribeDevice)
	}
}

func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"connected": h.connection.IsConnected(),
	})
}

func (h *StatusHandler) GetConnection(c *gin.Context) {
	info := h.connection.Info()
	c.JSON(http.StatusOK, gin.H{
		"connection": gin.H{
			"state":      info.State,
			"session_id": info.SessionID,
			"attempts":   info.Attempts,
			"unstable":   info.Unstable,
			"last_error": info.LastError,
			"since":      info.Since,
		},
	})
}

func (h *StatusHandler) ListDevices(c *gin.Context) {
	ids := h.streams.Devices()
	devices := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		stream, ok := h.streams.Get(id)
		if !ok {
			continue
		}
		devices = append(devices, deviceSummary(stream))
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
		"count":   len(devices),
	})
}

func (h *StatusHandler) GetDevice(c *gin.Context) {
	id := domain.DeviceID(c.Param("id"))

	stream, ok := h.streams.Get(id)
	if !ok {
		if h.snapshots != nil {
			if status, err := h.snapshots.GetStatus(c.Request.Context(), id); err == nil {
				c.JSON(http.StatusOK, gin.H{
					"device": gin.H{
						"device_id": id,
						"status":    status.Value,
						"last_seen": status.LastSeen,
						"live":      false,
					},
				})
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device": deviceSummary(stream),
	})
}

func (h *StatusHandler) GetDeviceMetrics(c *gin.Context) {
	id := domain.DeviceID(c.Param("id"))

	metrics, ok := h.metrics.Metrics(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no metrics for device"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metrics": gin.H{
			"device_id":        metrics.DeviceID,
			"current_fps":      metrics.CurrentFPS,
			"average_latency":  metrics.AverageLatency.Milliseconds(),
			"min_latency":      metrics.MinLatency.Milliseconds(),
			"max_latency":      metrics.MaxLatency.Milliseconds(),
			"total_frames":     metrics.TotalFrames,
			"displayed_frames": metrics.DisplayedFrames(),
			"dropped_frames":   metrics.DroppedFrames,
			"low_fps":          metrics.LowFPS,
			"high_latency":     metrics.HighLatency,
		},
	})
}

func (h *StatusHandler) SubscribeDevice(c *gin.Context) {
	id := domain.DeviceID(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device id must not be empty"})
		return
	}

	if err := h.connection.Subscribe(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id":  id,
		"subscribed": true,
	})
}

func (h *StatusHandler) UnsubscribeDevice(c *gin.Context) {
	id := domain.DeviceID(c.Param("id"))

	if err := h.connection.Unsubscribe(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id":  id,
		"subscribed": false,
	})
}

// deviceSummary trims the stream for transport: image payloads are
// reported by size, not shipped as raw bytes.
func deviceSummary(stream domain.DeviceStream) gin.H {
	summary := gin.H{
		"device_id":  stream.DeviceID,
		"updated_at": stream.UpdatedAt,
	}

	if stream.LatestStatus != nil {
		summary["status"] = stream.LatestStatus.Value
		summary["last_seen"] = stream.LatestStatus.LastSeen
	}
	if stream.LatestImage != nil {
		summary["image"] = gin.H{
			"bytes":      len(stream.LatestImage.Data),
			"timestamp":  stream.LatestImage.Timestamp,
			"resolution": stream.LatestImage.Resolution,
			"quality":    stream.LatestImage.Quality,
			"location":   stream.LatestImage.Location,
		}
	}
	if stream.LatestAudio != nil {
		summary["audio"] = gin.H{
			"bytes":       len(stream.LatestAudio.Data),
			"sample_rate": stream.LatestAudio.SampleRate,
			"channels":    stream.LatestAudio.Channels,
			"format":      stream.LatestAudio.Format,
		}
	}
	if stream.LatestAlert != nil {
		summary["alert"] = stream.LatestAlert
	}
	return summary
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"homestream/internal/core/domain"
	"homestream/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// snapshotTTL expires stale mirrors; a healthy client refreshes the keys
// far more often than this.
const snapshotTTL = 10 * time.Minute

// RedisSnapshotRepository mirrors the latest per-device status and
// metrics into Redis. Every write overwrites the previous value; there
// is no history.
type RedisSnapshotRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisSnapshotRepository(client *redis.Client) ports.SnapshotRepository {
	return &RedisSnapshotRepository{
		client: client,
		prefix: "homestream:device:",
	}
}

func (r *RedisSnapshotRepository) statusKey(id domain.DeviceID) string {
	return r.prefix + string(id) + ":status"
}

func (r *RedisSnapshotRepository) metricsKey(id domain.DeviceID) string {
	return r.prefix + string(id) + ":metrics"
}

func (r *RedisSnapshotRepository) SaveStatus(ctx context.Context, deviceID domain.DeviceID, status domain.StatusInfo) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if err := r.client.Set(ctx, r.statusKey(deviceID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to set status in Redis: %w", err)
	}
	return nil
}

func (r *RedisSnapshotRepository) SaveMetrics(ctx context.Context, metrics domain.StreamMetrics) error {
	data, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := r.client.Set(ctx, r.metricsKey(metrics.DeviceID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to set metrics in Redis: %w", err)
	}
	return nil
}

func (r *RedisSnapshotRepository) GetStatus(ctx context.Context, deviceID domain.DeviceID) (*domain.StatusInfo, error) {
	data, err := r.client.Get(ctx, r.statusKey(deviceID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status from Redis: %w", err)
	}

	var status domain.StatusInfo
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &status, nil
}

func (r *RedisSnapshotRepository) Remove(ctx context.Context, deviceID domain.DeviceID) error {
	if err := r.client.Del(ctx, r.statusKey(deviceID), r.metricsKey(deviceID)).Err(); err != nil {
		return fmt.Errorf("failed to delete device keys from Redis: %w", err)
	}
	return nil
}

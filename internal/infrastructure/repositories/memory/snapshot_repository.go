package memory

import (
	"context"
	"sync"

	"homestream/internal/core/domain"
	"homestream/internal/core/ports"
)

// MemorySnapshotRepository is the in-process fallback when Redis is
// disabled or unreachable. Latest values only.
type MemorySnapshotRepository struct {
	mu       sync.RWMutex
	statuses map[domain.DeviceID]domain.StatusInfo
	metrics  map[domain.DeviceID]domain.StreamMetrics
}

func NewMemorySnapshotRepository() ports.SnapshotRepository {
	return &MemorySnapshotRepository{
		statuses: make(map[domain.DeviceID]domain.StatusInfo),
		metrics:  make(map[domain.DeviceID]domain.StreamMetrics),
	}
}

func (r *MemorySnapshotRepository) SaveStatus(_ context.Context, deviceID domain.DeviceID, status domain.StatusInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[deviceID] = status
	return nil
}

func (r *MemorySnapshotRepository) SaveMetrics(_ context.Context, metrics domain.StreamMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[metrics.DeviceID] = metrics
	return nil
}

func (r *MemorySnapshotRepository) GetStatus(_ context.Context, deviceID domain.DeviceID) (*domain.StatusInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.statuses[deviceID]
	if !ok {
		return nil, domain.ErrDeviceNotFound
	}
	return &status, nil
}

func (r *MemorySnapshotRepository) Remove(_ context.Context, deviceID domain.DeviceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.statuses, deviceID)
	delete(r.metrics, deviceID)
	return nil
}

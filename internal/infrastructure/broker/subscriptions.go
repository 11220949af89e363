package broker

import (
	"sort"
	"sync"

	"homestream/internal/core/domain"
)

// Registry tracks which device ids the caller currently wants streamed.
// It is the sole authority for whether an inbound message is accepted, and
// its membership is replayed to the broker after every reconnect.
type Registry struct {
	mu      sync.RWMutex
	devices map[domain.DeviceID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{devices: make(map[domain.DeviceID]struct{})}
}

// Add inserts the id and reports whether it was newly added. Subscribing
// twice is a no-op.
func (r *Registry) Add(deviceID domain.DeviceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[deviceID]; exists {
		return false
	}
	r.devices[deviceID] = struct{}{}
	return true
}

// Remove deletes the id and reports whether it was present.
func (r *Registry) Remove(deviceID domain.DeviceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[deviceID]; !exists {
		return false
	}
	delete(r.devices, deviceID)
	return true
}

// Contains reports whether the id is currently subscribed.
func (r *Registry) Contains(deviceID domain.DeviceID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.devices[deviceID]
	return exists
}

// List returns the subscribed ids in sorted order.
func (r *Registry) List() []domain.DeviceID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.DeviceID, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the current subscription count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

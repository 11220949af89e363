package services

import (
	"sync"
	"time"

	"homestream/internal/core/domain"
)

// StateStore is the single source of truth for per-device present values.
// Entries are created lazily on the first accepted message and removed when
// the device is unsubscribed. Mutated only by the message router.
type StateStore struct {
	mu      sync.RWMutex
	streams map[domain.DeviceID]*domain.DeviceStream
}

func NewStateStore() *StateStore {
	return &StateStore{
		streams: make(map[domain.DeviceID]*domain.DeviceStream),
	}
}

func (s *StateStore) stream(deviceID domain.DeviceID) *domain.DeviceStream {
	st, exists := s.streams[deviceID]
	if !exists {
		st = &domain.DeviceStream{DeviceID: deviceID}
		s.streams[deviceID] = st
	}
	return st
}

// ApplyImage replaces the latest image for the device.
func (s *StateStore) ApplyImage(deviceID domain.DeviceID, image domain.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stream(deviceID)
	st.LatestImage = &image
	st.UpdatedAt = time.Now()
}

// ApplyAudio replaces the latest audio chunk for the device.
func (s *StateStore) ApplyAudio(deviceID domain.DeviceID, chunk domain.AudioChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stream(deviceID)
	st.LatestAudio = &chunk
	st.UpdatedAt = time.Now()
}

// ApplyStatus replaces the latest status and reports whether the status
// value changed relative to the previously stored one. A first observation
// counts as a change from unknown.
func (s *StateStore) ApplyStatus(deviceID domain.DeviceID, status domain.StatusInfo) (prev domain.DeviceStatus, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stream(deviceID)
	if st.LatestStatus != nil {
		prev = st.LatestStatus.Value
	}
	changed = st.LatestStatus == nil || st.LatestStatus.Value != status.Value
	st.LatestStatus = &status
	st.UpdatedAt = time.Now()
	return prev, changed
}

// ApplyAlert replaces the latest alert for the device. Alert history is an
// external collaborator's concern; only the most recent alert is kept.
func (s *StateStore) ApplyAlert(deviceID domain.DeviceID, alert domain.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stream(deviceID)
	st.LatestAlert = &alert
	st.UpdatedAt = time.Now()
}

// Get returns a copy of the device's stream state.
func (s *StateStore) Get(deviceID domain.DeviceID) (domain.DeviceStream, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.streams[deviceID]
	if !exists {
		return domain.DeviceStream{}, false
	}

	out := domain.DeviceStream{DeviceID: st.DeviceID, UpdatedAt: st.UpdatedAt}
	if st.LatestImage != nil {
		img := *st.LatestImage
		out.LatestImage = &img
	}
	if st.LatestAudio != nil {
		au := *st.LatestAudio
		out.LatestAudio = &au
	}
	if st.LatestAlert != nil {
		al := *st.LatestAlert
		out.LatestAlert = &al
	}
	if st.LatestStatus != nil {
		stt := *st.LatestStatus
		out.LatestStatus = &stt
	}
	return out, true
}

// Remove drops the device's entry entirely.
func (s *StateStore) Remove(deviceID domain.DeviceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, deviceID)
}

// Devices returns the ids currently held in the store.
func (s *StateStore) Devices() []domain.DeviceID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]domain.DeviceID, 0, len(s.streams))
	for id := range s.streams {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of tracked devices.
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams)
}

package services

import (
	"testing"
	"time"

	"homestream/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestStateStore_LazyCreateAndReplace(t *testing.T) {
	s := NewStateStore()
	assert.Equal(t, 0, s.Len())

	s.ApplyImage("cam-1", domain.Image{Data: []byte{1}, Timestamp: time.Now()})
	assert.Equal(t, 1, s.Len())

	st, ok := s.Get("cam-1")
	assert.True(t, ok)
	assert.Equal(t, []byte{1}, st.LatestImage.Data)
	assert.Nil(t, st.LatestAudio)
	assert.Nil(t, st.LatestAlert)
	assert.Nil(t, st.LatestStatus)

	// A new arrival fully replaces the old value
	s.ApplyImage("cam-1", domain.Image{Data: []byte{2, 3}})
	st, _ = s.Get("cam-1")
	assert.Equal(t, []byte{2, 3}, st.LatestImage.Data)
}

func TestStateStore_EachKindIndependent(t *testing.T) {
	s := NewStateStore()

	s.ApplyImage("cam-1", domain.Image{Data: []byte{1}})
	s.ApplyAudio("cam-1", domain.AudioChunk{Data: []byte{9}, SampleRate: 16000, Channels: 1})
	s.ApplyAlert("cam-1", domain.Alert{Message: "motion detected"})
	s.ApplyStatus("cam-1", domain.StatusInfo{Value: domain.StatusOnline})

	st, _ := s.Get("cam-1")
	assert.NotNil(t, st.LatestImage)
	assert.NotNil(t, st.LatestAudio)
	assert.Equal(t, "motion detected", st.LatestAlert.Message)
	assert.Equal(t, domain.StatusOnline, st.LatestStatus.Value)
	assert.Equal(t, 16000, st.LatestAudio.SampleRate)
}

func TestStateStore_StatusTransitions(t *testing.T) {
	s := NewStateStore()

	// First observation counts as a change from unknown
	prev, changed := s.ApplyStatus("cam-1", domain.StatusInfo{Value: domain.StatusOnline})
	assert.True(t, changed)
	assert.Empty(t, prev)

	// Repeats of the same value are not transitions
	_, changed = s.ApplyStatus("cam-1", domain.StatusInfo{Value: domain.StatusOnline})
	assert.False(t, changed)

	// online -> offline -> online: exactly two transitions
	transitions := 0
	for _, v := range []domain.DeviceStatus{domain.StatusOffline, domain.StatusOnline} {
		if _, c := s.ApplyStatus("cam-1", domain.StatusInfo{Value: v}); c {
			transitions++
		}
	}
	assert.Equal(t, 2, transitions)

	prev, changed = s.ApplyStatus("cam-1", domain.StatusInfo{Value: domain.StatusOffline})
	assert.True(t, changed)
	assert.Equal(t, domain.StatusOnline, prev)
}

func TestStateStore_RemoveDropsEntry(t *testing.T) {
	s := NewStateStore()
	s.ApplyImage("cam-1", domain.Image{Data: []byte{1}})
	s.ApplyImage("cam-2", domain.Image{Data: []byte{2}})

	s.Remove("cam-1")

	_, ok := s.Get("cam-1")
	assert.False(t, ok)
	_, ok = s.Get("cam-2")
	assert.True(t, ok)
	assert.ElementsMatch(t, []domain.DeviceID{"cam-2"}, s.Devices())
}

func TestStateStore_GetReturnsCopy(t *testing.T) {
	s := NewStateStore()
	s.ApplyStatus("cam-1", domain.StatusInfo{Value: domain.StatusOnline})

	st, _ := s.Get("cam-1")
	st.LatestStatus.Value = domain.StatusOffline

	again, _ := s.Get("cam-1")
	assert.Equal(t, domain.DeviceStatus("online"), again.LatestStatus.Value)
}

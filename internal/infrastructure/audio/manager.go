package audio

import (
	"sync"

	"homestream/internal/core/domain"
	"homestream/internal/core/ports"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Observer receives playback accounting events. The metrics collector
// satisfies it; a nil observer disables accounting.
type Observer interface {
	RecordAudioDropped(deviceID domain.DeviceID)
	RecordAudioQueueDepth(deviceID domain.DeviceID, depth int)
}

// SinkFactory opens a playback sink for one device's stream parameters.
// Streams may differ in sample rate and channel count, so each device
// gets its own sink, created lazily on the first chunk.
type SinkFactory func(sampleRate, channels int) (ports.AudioSink, error)

// MalgoSinkFactory opens a hardware sink per device.
func MalgoSinkFactory(sampleRate, channels int) (ports.AudioSink, error) {
	return NewMalgoSink(sampleRate, channels)
}

// NopSinkFactory is used when audio playback is disabled.
func NopSinkFactory(int, int) (ports.AudioSink, error) {
	return NewNopSink(), nil
}

// Manager implements ports.AudioPlayer: it decodes incoming chunks and
// maintains one playback queue and sink per device.
type Manager struct {
	newSink  SinkFactory
	observer Observer
	logger   *zap.SugaredLogger
	queueCap int

	mu     sync.Mutex
	queues map[domain.DeviceID]*queue
	gain   float64
}

func NewManager(newSink SinkFactory, queueCap int, observer Observer, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if queueCap <= 0 {
		queueCap = DefaultQueueCap
	}
	return &Manager{
		newSink:  newSink,
		observer: observer,
		logger:   logger,
		queueCap: queueCap,
		queues:   make(map[domain.DeviceID]*queue),
		gain:     1,
	}
}

// Enqueue decodes one chunk and hands it to the device's queue. Chunks in
// an unknown format or with corrupt payloads are skipped; one bad chunk
// must not stall the stream behind it.
func (m *Manager) Enqueue(deviceID domain.DeviceID, chunk domain.AudioChunk) error {
	if !SupportedFormat(chunk.Format) {
		m.logger.Warnw("skipping audio chunk in unsupported format",
			"device_id", deviceID,
			"format", chunk.Format,
		)
		return nil
	}

	samples, err := DecodePCM16(chunk.Data)
	if err != nil {
		m.logger.Warnw("skipping undecodable audio chunk", "device_id", deviceID, "error", err)
		return nil
	}
	if len(samples) == 0 {
		return nil
	}

	q, err := m.queue(deviceID, chunk.SampleRate, chunk.Channels)
	if err != nil {
		return err
	}

	before := q.droppedCount()
	if err := q.enqueue(samples); err != nil {
		return err
	}

	if m.observer != nil {
		if q.droppedCount() > before {
			m.observer.RecordAudioDropped(deviceID)
		}
		m.observer.RecordAudioQueueDepth(deviceID, q.depth())
	}
	return nil
}

// Drop tears down the device's queue and sink, discarding everything
// pending.
func (m *Manager) Drop(deviceID domain.DeviceID) {
	m.mu.Lock()
	q, ok := m.queues[deviceID]
	if ok {
		delete(m.queues, deviceID)
	}
	m.mu.Unlock()

	if ok {
		q.close()
		if err := q.sink.Close(); err != nil {
			m.logger.Warnw("closing audio sink failed", "device_id", deviceID, "error", err)
		}
	}
	if m.observer != nil {
		m.observer.RecordAudioQueueDepth(deviceID, 0)
	}
}

// SetVolume adjusts the gain on every open sink, 0.0 silencing playback
// and 1.0 passing samples through unchanged. Sinks opened later inherit
// the setting.
func (m *Manager) SetVolume(gain float64) {
	m.mu.Lock()
	m.gain = gain
	queues := make([]*queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.Unlock()

	for _, q := range queues {
		q.sink.SetGain(gain)
	}
}

// Close drops every queue and releases all sinks.
func (m *Manager) Close() error {
	m.mu.Lock()
	queues := m.queues
	m.queues = make(map[domain.DeviceID]*queue)
	m.mu.Unlock()

	var errs error
	for _, q := range queues {
		q.close()
		errs = multierr.Append(errs, q.sink.Close())
	}
	return errs
}

func (m *Manager) queue(deviceID domain.DeviceID, sampleRate, channels int) (*queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[deviceID]
	if !ok {
		sink, err := m.newSink(sampleRate, channels)
		if err != nil {
			return nil, err
		}
		sink.SetGain(m.gain)
		q = newQueue(sink, m.queueCap)
		m.queues[deviceID] = q
	}
	return q, nil
}

package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// ErrSinkBusy is returned by Play when a buffer is already on the device.
// The per-device queues serialize playback, so hitting it indicates a
// sequencing bug in the caller.
var ErrSinkBusy = errors.New("audio: sink is already playing a buffer")

// MalgoSink renders float32 buffers through the system's default playback
// device. One buffer plays at a time; the device callback pulls samples
// and fires the completion callback when the buffer is exhausted.
type MalgoSink struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu      sync.Mutex
	current []float32
	pos     int
	done    func()
	gain    float32
}

// NewMalgoSink opens the default playback device at the given sample rate
// and channel count and starts it immediately.
func NewMalgoSink(sampleRate, channels int) (*MalgoSink, error) {
	s := &MalgoSink{gain: 1}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	s.ctx = ctx

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(channels)
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{Data: s.dataCallback})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, err
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return nil, err
	}
	return s, nil
}

func (s *MalgoSink) Play(samples []float32, done func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return ErrSinkBusy
	}
	s.current = samples
	s.pos = 0
	s.done = done
	return nil
}

func (s *MalgoSink) SetGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	s.mu.Lock()
	s.gain = float32(gain)
	s.mu.Unlock()
}

// dataCallback runs on the audio thread. It must never block; the done
// callback is dispatched on its own goroutine for the same reason.
func (s *MalgoSink) dataCallback(pOutput, _ []byte, _ uint32) {
	slots := len(pOutput) / 4

	s.mu.Lock()
	gain := s.gain
	n := 0
	for n < slots && s.pos < len(s.current) {
		bits := math.Float32bits(s.current[s.pos] * gain)
		binary.LittleEndian.PutUint32(pOutput[n*4:], bits)
		s.pos++
		n++
	}
	var done func()
	if s.current != nil && s.pos >= len(s.current) {
		done = s.done
		s.current = nil
		s.done = nil
		s.pos = 0
	}
	s.mu.Unlock()

	// Underrun or buffer boundary: pad with silence.
	for i := n * 4; i < len(pOutput); i++ {
		pOutput[i] = 0
	}

	if done != nil {
		go done()
	}
}

func (s *MalgoSink) Close() error {
	if s.device != nil {
		s.device.Uninit()
	}
	if s.ctx != nil {
		if err := s.ctx.Uninit(); err != nil {
			return err
		}
		s.ctx.Free()
	}
	return nil
}

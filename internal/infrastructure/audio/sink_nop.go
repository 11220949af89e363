package audio

// NopSink consumes buffers instantly without touching any hardware. It is
// used when audio playback is disabled in the configuration.
type NopSink struct{}

func NewNopSink() *NopSink { return &NopSink{} }

func (NopSink) Play(_ []float32, done func()) error {
	if done != nil {
		go done()
	}
	return nil
}

func (NopSink) SetGain(float64) {}

func (NopSink) Close() error { return nil }

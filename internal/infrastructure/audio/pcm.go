package audio

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// pcm16Scale converts a signed 16-bit sample to the float range [-1, 1).
const pcm16Scale = 32768.0

// DecodePCM16 converts little-endian signed 16-bit PCM bytes into
// normalized float32 samples. A trailing odd byte is rejected rather
// than silently truncated so corrupt chunks never reach the device.
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm16 payload has odd length %d", len(data))
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		raw := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(raw) / pcm16Scale
	}
	return samples, nil
}

// SupportedFormat reports whether the chunk format can be decoded.
// Only 16-bit PCM is spoken by the capture devices today.
func SupportedFormat(format string) bool {
	switch strings.ToLower(format) {
	case "", "pcm16", "pcm_s16le":
		return true
	default:
		return false
	}
}

// Package pcm holds the canonical audio-frame definitions shared by the whole
// engine, plus the pooled sample buffers and ring buffer used on the hot path.
//
// Every stage downstream of the decoders works on interleaved 16-bit signed
// stereo at 48 kHz. One frame is 20 ms: 960 samples per channel, 1920 samples
// interleaved.
package pcm

// Canonical output format. Discord voice is 48 kHz stereo Opus at 20 ms frames.
const (
	SampleRate = 48000
	Channels   = 2
	FrameMs    = 20

	// FrameSize is the number of samples per channel per 20 ms frame.
	FrameSize = SampleRate * FrameMs / 1000 // 960

	// FrameSamples is the interleaved stereo sample count of one frame.
	FrameSamples = FrameSize * Channels // 1920

	// FrameBytes is one frame as little-endian int16 bytes.
	FrameBytes = FrameSamples * 2 // 3840
)

// BytesToInt16 converts little-endian PCM bytes to int16 samples.
func BytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return out
}

// Int16ToBytes converts int16 samples to little-endian PCM bytes.
func Int16ToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// Clamp16 saturates a 32-bit intermediate value to the int16 range.
func Clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// FloatTo16 converts a normalized float sample to int16 with saturating
// rounding. Inputs outside [-1, 1] clamp rather than wrap.
func FloatTo16(f float64) int16 {
	v := f * 32767.0
	if v >= 0 {
		v += 0.5
	} else {
		v -= 0.5
	}
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

package dsp

import "math"

// vibratoMaxDelayMs bounds the modulated delay window.
const vibratoMaxDelayMs = 20.0

// Vibrato applies LFO-driven pitch modulation through per-channel fractional
// delay lines.
type Vibrato struct {
	lfo   lfo
	left  *delayLine
	right *delayLine
}

// NewVibrato creates a vibrato at the given LFO frequency and depth. Depth is
// clamped to [0, 2].
func NewVibrato(frequency, depth float64) *Vibrato {
	if depth < 0 {
		depth = 0
	}
	if depth > 2 {
		depth = 2
	}
	size := int(math.Ceil(sampleRate * vibratoMaxDelayMs / 1000))
	return &Vibrato{
		lfo:   lfo{frequency: frequency, depth: depth},
		left:  newDelayLine(size),
		right: newDelayLine(size),
	}
}

func (v *Vibrato) Process(samples []int16) {
	if !v.Enabled() {
		v.left.clear()
		v.right.clear()
		return
	}

	maxWidth := v.lfo.depth * sampleRate * 0.005
	center := maxWidth

	for off := 0; off+1 < len(samples); off += 2 {
		delay := float32(center + v.lfo.value()*maxWidth)

		v.left.write(float32(samples[off]))
		samples[off] = clamp16(int32(v.left.read(delay)))

		v.right.write(float32(samples[off+1]))
		samples[off+1] = clamp16(int32(v.right.read(delay)))
	}
}

func (v *Vibrato) Enabled() bool {
	return v.lfo.depth > 0 && v.lfo.frequency > 0
}

func (v *Vibrato) Reset() {
	v.lfo.reset()
	v.left.clear()
	v.right.clear()
}

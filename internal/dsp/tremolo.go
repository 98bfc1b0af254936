package dsp

// Tremolo applies LFO-driven amplitude modulation. Both channels of a sample
// pair share the multiplier sequence sample-by-sample.
type Tremolo struct {
	lfo lfo
}

// NewTremolo creates a tremolo at the given LFO frequency and depth. Depth is
// clamped to [0, 1].
func NewTremolo(frequency, depth float64) *Tremolo {
	if depth < 0 {
		depth = 0
	}
	if depth > 1 {
		depth = 1
	}
	return &Tremolo{lfo: lfo{frequency: frequency, depth: depth}}
}

func (t *Tremolo) Process(samples []int16) {
	if !t.Enabled() {
		return
	}
	for i, s := range samples {
		m := t.lfo.amplitude()
		samples[i] = clamp16(int32(float64(s) * m))
	}
}

func (t *Tremolo) Enabled() bool {
	return t.lfo.depth > 0 && t.lfo.frequency > 0
}

func (t *Tremolo) Reset() { t.lfo.reset() }

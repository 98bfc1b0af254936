package dsp

// Rotation pans audio between channels with a sine LFO ("8D audio").
type Rotation struct {
	lfo lfo
}

// NewRotation creates a rotation filter cycling at rotationHz.
func NewRotation(rotationHz float64) *Rotation {
	return &Rotation{lfo: lfo{frequency: rotationHz, depth: 1}}
}

func (r *Rotation) Process(samples []int16) {
	if !r.Enabled() {
		return
	}
	for off := 0; off+1 < len(samples); off += 2 {
		v := r.lfo.value()
		leftFactor := (1 - v) / 2
		rightFactor := (1 + v) / 2

		samples[off] = clamp16(int32(float64(samples[off]) * leftFactor))
		samples[off+1] = clamp16(int32(float64(samples[off+1]) * rightFactor))
	}
}

func (r *Rotation) Enabled() bool { return r.lfo.frequency != 0 }

func (r *Rotation) Reset() { r.lfo.reset() }

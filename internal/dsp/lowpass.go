package dsp

// LowPass is the Lavalink-style one-pole smoothing filter. Smoothing values
// at or below 1.0 disable it.
type LowPass struct {
	smoothing float32
	factor    float64
	prevLeft  float64
	prevRight float64
}

// NewLowPass creates a low-pass filter with the given smoothing.
func NewLowPass(smoothing float32) *LowPass {
	lp := &LowPass{smoothing: smoothing}
	if smoothing > 1 {
		lp.factor = 1 / float64(smoothing)
	}
	return lp
}

func (l *LowPass) Process(samples []int16) {
	if !l.Enabled() {
		return
	}
	for off := 0; off+1 < len(samples); off += 2 {
		left := float64(samples[off])
		l.prevLeft += l.factor * (left - l.prevLeft)
		samples[off] = clamp16(int32(l.prevLeft))

		right := float64(samples[off+1])
		l.prevRight += l.factor * (right - l.prevRight)
		samples[off+1] = clamp16(int32(l.prevRight))
	}
}

func (l *LowPass) Enabled() bool { return l.smoothing > 1 }

func (l *LowPass) Reset() {
	l.prevLeft = 0
	l.prevRight = 0
}

// Package dsp implements the per-frame audio effects and their ordered
// composition into a filter chain. All filters operate in place on
// interleaved 16-bit stereo frames at 48 kHz; only the timescale filter
// changes sample counts, buffering through an engine-owned FIFO that the
// chain drains one exact frame per tick.
package dsp

import "math"

// sampleRate is the fixed processing rate. Filters run downstream of the
// resampler and never see any other rate.
const sampleRate = 48000.0

// Filter is one effect stage. Process mutates samples in place; the slice
// length is always even (interleaved stereo). A filter whose parameters sit
// at their identity defaults reports Enabled() == false and is skipped.
type Filter interface {
	Process(samples []int16)
	Enabled() bool
	Reset()
}

// clamp16 saturates an intermediate value to the int16 range.
func clamp16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// lfo is a sine low-frequency oscillator shared by tremolo, vibrato, and
// rotation.
type lfo struct {
	phase     float64
	frequency float64
	depth     float64
}

// value returns the raw sine value in [-1, 1] and advances the phase.
func (l *lfo) value() float64 {
	if l.frequency == 0 {
		return 0
	}
	v := math.Sin(l.phase)
	l.phase += 2 * math.Pi * l.frequency / sampleRate
	if l.phase > 2*math.Pi {
		l.phase -= 2 * math.Pi
	}
	return v
}

// amplitude returns a tremolo multiplier: 1 - depth*(sin+1)/2.
func (l *lfo) amplitude() float64 {
	if l.depth == 0 || l.frequency == 0 {
		return 1
	}
	return 1 - l.depth*(l.value()+1)/2
}

func (l *lfo) reset() { l.phase = 0 }

// delayLine is a circular fractional-delay buffer used by the vibrato filter.
type delayLine struct {
	buf      []float32
	writeIdx int
}

func newDelayLine(size int) *delayLine {
	return &delayLine{buf: make([]float32, size)}
}

func (d *delayLine) write(sample float32) {
	d.buf[d.writeIdx] = sample
	d.writeIdx = (d.writeIdx + 1) % len(d.buf)
}

// read returns the sample delayed by the (fractional) given sample count,
// linearly interpolating between the two neighbours.
func (d *delayLine) read(delay float32) float32 {
	size := len(d.buf)
	safe := delay
	if safe < 0 {
		safe = 0
	}
	if m := float32(size - 1); safe > m {
		safe = m
	}
	intDelay := int(safe)
	frac := safe - float32(intDelay)

	i0 := (d.writeIdx + size - intDelay) % size
	i1 := (d.writeIdx + size - intDelay - 1) % size
	return d.buf[i0]*(1-frac) + d.buf[i1]*frac
}

func (d *delayLine) clear() {
	clear(d.buf)
}

// biquadCoeffs holds normalised biquad coefficients (a0 divided out).
type biquadCoeffs struct {
	b0, b1, b2, a1, a2 float64
}

// lowpassCoeffs computes RBJ low-pass coefficients.
func lowpassCoeffs(freq, q float64) biquadCoeffs {
	omega := 2 * math.Pi * freq / sampleRate
	sin, cos := math.Sincos(omega)
	alpha := sin / (2 * q)
	inv := 1 / (1 + alpha)
	return biquadCoeffs{
		b0: (1 - cos) * 0.5 * inv,
		b1: (1 - cos) * inv,
		b2: (1 - cos) * 0.5 * inv,
		a1: -2 * cos * inv,
		a2: (1 - alpha) * inv,
	}
}

// highpassCoeffs computes RBJ high-pass coefficients.
func highpassCoeffs(freq, q float64) biquadCoeffs {
	omega := 2 * math.Pi * freq / sampleRate
	sin, cos := math.Sincos(omega)
	alpha := sin / (2 * q)
	inv := 1 / (1 + alpha)
	return biquadCoeffs{
		b0: (1 + cos) * 0.5 * inv,
		b1: -(1 + cos) * inv,
		b2: (1 + cos) * 0.5 * inv,
		a1: -2 * cos * inv,
		a2: (1 - alpha) * inv,
	}
}

// biquadState is one channel's Direct Form I filter memory.
type biquadState struct {
	x1, x2, y1, y2 float64
}

// process runs one sample through the filter, flushing state on NaN/Inf so a
// bad sample cannot poison the recursion.
func (s *biquadState) process(in float64, c biquadCoeffs) float64 {
	out := c.b0*in + c.b1*s.x1 + c.b2*s.x2 - c.a1*s.y1 - c.a2*s.y2
	if math.IsNaN(out) || math.IsInf(out, 0) {
		*s = biquadState{}
		return 0
	}
	s.x2, s.x1 = s.x1, in
	s.y2, s.y1 = s.y1, out
	return out
}

func (s *biquadState) reset() { *s = biquadState{} }

// catmullRom evaluates the 4-point Catmull-Rom polynomial at t in [0, 1).
func catmullRom(p0, p1, p2, p3, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	return 0.5 * (2*p1 +
		(-p0+p2)*t +
		(2*p0-5*p1+4*p2-p3)*t2 +
		(-p0+3*p1-3*p2+p3)*t3)
}

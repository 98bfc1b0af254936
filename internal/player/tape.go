package player

import (
	"math"
	"sync"

	"github.com/appujet/baja/pkg/pcm"
)

// Curve shapes the tape transition rate over time.
type Curve string

const (
	CurveLinear      Curve = "linear"
	CurveExponential Curve = "exponential"
	CurveSinusoidal  Curve = "sinusoidal"
)

// value maps normalised time t in [0, 1] onto the curve.
func (c Curve) value(t float64) float64 {
	switch c {
	case CurveLinear:
		return t
	case CurveExponential:
		return t * t
	default: // sinusoidal
		return 0.5 * (1 - math.Cos(t*math.Pi))
	}
}

// Tape rates. A stopping ramp targets effectively-zero rather than zero so
// the read head keeps creeping until the state machine flips.
const (
	tapeRateFull    = 1.0
	tapeRateStopped = 0.01

	// tapeRingSeconds is the sliding window of recent PCM the effect
	// reads from.
	tapeRingSeconds = 10

	// tapeCompactSeconds is the midpoint past which the ring drops
	// consumed history.
	tapeCompactSeconds = 2
)

// tapeRamp is one in-flight rate transition.
type tapeRamp struct {
	start    float64
	target   float64
	duration float64 // ms
	elapsed  float64 // ms
	curve    Curve
}

// Tape emulates a cassette spinning down on pause and back up on resume: a
// fractional-rate read over a sliding ring of recent PCM, with 4-tap
// Catmull-Rom interpolation between source samples.
type Tape struct {
	mu sync.Mutex

	ring     *pcm.Ring
	readPos  float64 // fractional interleaved index into the ring
	rate     float64
	ramp     *tapeRamp
	rampDone bool // latch, consumed by the mixer's state machine
}

// NewTape creates a tape effect with the standard 10-second window.
func NewTape() *Tape {
	return &Tape{
		ring: pcm.NewRing(tapeRingSeconds * pcm.SampleRate * pcm.Channels),
		rate: tapeRateFull,
	}
}

// RampDown starts the slow-down transition (pause).
func (t *Tape) RampDown(durationMs float64, curve Curve) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rampTo(tapeRateStopped, durationMs, curve)
}

// RampUp starts the speed-up transition (resume).
func (t *Tape) RampUp(durationMs float64, curve Curve) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rampTo(tapeRateFull, durationMs, curve)
}

func (t *Tape) rampTo(target, durationMs float64, curve Curve) {
	if durationMs <= 0 {
		// Zero-length transition completes within the next frame.
		t.rate = target
		t.ramp = nil
		t.rampDone = true
		return
	}
	t.ramp = &tapeRamp{
		start:    t.rate,
		target:   target,
		duration: durationMs,
		curve:    curve,
	}
	t.rampDone = false
}

// RampCompleted reports and clears the completion latch. The mixer advances
// the track state machine when it fires.
func (t *Tape) RampCompleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	done := t.rampDone
	t.rampDone = false
	return done
}

// Rate returns the current read rate.
func (t *Tape) Rate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rate
}

// Push appends freshly decoded samples to the sliding window.
func (t *Tape) Push(samples []int16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ring.Write(samples)
}

// Buffered reports how many interleaved samples remain ahead of the read
// head.
func (t *Tape) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ring.Len() - int(t.readPos)
}

// Fill renders one frame at the current (ramping) rate. The read head
// advances by rate×2 per output pair; each output sample interpolates over
// four source taps around the head. Exhausted source fills with silence.
func (t *Tape) Fill(frame []int16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	const sampleMs = 1000.0 / pcm.SampleRate

	for out := 0; out+1 < len(frame); out += 2 {
		if t.ramp != nil {
			r := t.ramp
			r.elapsed += sampleMs
			tt := math.Min(r.elapsed/r.duration, 1)
			t.rate = r.start + (r.target-r.start)*r.curve.value(tt)
			if tt >= 1 {
				t.rate = r.target
				t.ramp = nil
				t.rampDone = true
			}
		}

		if t.rate <= tapeRateStopped && t.ramp == nil {
			frame[out] = 0
			frame[out+1] = 0
			continue
		}

		// Pair-align the read head and check the interpolation lookahead.
		iPos := int(t.readPos) / pcm.Channels * pcm.Channels
		if iPos+pcm.Channels*3 >= t.ring.Len() {
			frame[out] = 0
			frame[out+1] = 0
			continue
		}
		frac := (t.readPos - float64(iPos)) / pcm.Channels

		for c := 0; c < pcm.Channels; c++ {
			p1 := float64(t.ring.At(iPos + c))
			p0 := p1
			if iPos >= pcm.Channels {
				p0 = float64(t.ring.At(iPos - pcm.Channels + c))
			}
			p2 := float64(t.ring.At(iPos + pcm.Channels + c))
			p3 := float64(t.ring.At(iPos + 2*pcm.Channels + c))

			v := catmullRom(p0, p1, p2, p3, frac)
			frame[out+c] = pcm.Clamp16(int32(v))
		}

		t.readPos += t.rate * pcm.Channels
	}

	t.compact()
}

// compact drops consumed history once the head passes the 2-second midpoint,
// keeping the window bounded without disturbing fractional alignment.
func (t *Tape) compact() {
	if t.readPos <= tapeCompactSeconds*pcm.SampleRate*pcm.Channels {
		return
	}
	whole := int(t.readPos) / pcm.Channels * pcm.Channels
	skipped := t.ring.Skip(whole)
	t.readPos -= float64(skipped)
}

// Reset clears the window and rate state. Called on seek.
func (t *Tape) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ring.Clear()
	t.readPos = 0
	t.rate = tapeRateFull
	t.ramp = nil
	t.rampDone = false
}

// catmullRom evaluates the 4-point Catmull-Rom polynomial at t in [0, 1).
func catmullRom(p0, p1, p2, p3, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	return 0.5 * (2*p1 +
		(-p0+p2)*t +
		(2*p0-5*p1+4*p2-p3)*t2 +
		(-p0+3*p1-3*p2+p3)*t3)
}

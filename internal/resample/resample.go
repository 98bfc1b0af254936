// Package resample converts decoded PCM to the engine's fixed 48 kHz output
// rate with a streaming four-point cubic Hermite (Catmull-Rom) interpolator.
// Per-channel history carries across calls so block boundaries produce no
// discontinuity; the fractional phase is renormalised every block so rounding
// error cannot accumulate over long sessions.
package resample

import (
	"github.com/appujet/baja/pkg/pcm"
)

// Resampler converts interleaved int16 PCM from a source rate to 48 kHz.
// When the source is already 48 kHz, Passthrough reports true and Process
// reproduces its input sample for sample.
type Resampler struct {
	ratio    float64 // source frames consumed per output frame
	index    float64 // fractional read head within the current block
	channels int
	hist     [][4]int16 // last 4 frames per channel, newest at [3]
}

// New creates a resampler from sourceRate to the canonical 48 kHz.
func New(sourceRate, channels int) *Resampler {
	return &Resampler{
		ratio:    float64(sourceRate) / float64(pcm.SampleRate),
		channels: channels,
		hist:     make([][4]int16, channels),
	}
}

// Passthrough reports whether the source rate already matches 48 kHz.
func (r *Resampler) Passthrough() bool {
	return r.ratio == 1.0
}

// hermite evaluates the Catmull-Rom polynomial over four evenly spaced taps.
// The output lies between p1 and p2 at t in [0, 1).
func hermite(p0, p1, p2, p3 float64, t float64) float64 {
	c1 := 0.5 * (p2 - p0)
	c2 := p0 - 2.5*p1 + 2.0*p2 - 0.5*p3
	c3 := 0.5*(p3-p0) + 1.5*(p1-p2)
	return ((c3*t+c2)*t+c1)*t + p1
}

// Process resamples input (interleaved int16) and appends the converted
// samples to out, returning the extended slice. For each call the output
// length is ceil(n*48000/sourceRate) ± 1 interleaved frames.
func (r *Resampler) Process(input []int16, out []int16) []int16 {
	ch := r.channels
	numFrames := len(input) / ch
	if numFrames == 0 {
		return out
	}

	for r.index < float64(numFrames) {
		base := int(r.index)
		t := r.index - float64(base)

		for c := 0; c < ch; c++ {
			p0 := r.tap(input, base-1, c, numFrames)
			p1 := r.tap(input, base, c, numFrames)
			p2 := r.tap(input, base+1, c, numFrames)
			p3 := r.tap(input, base+2, c, numFrames)
			v := hermite(p0, p1, p2, p3, t)
			out = append(out, pcm.Clamp16(int32(v)))
		}
		r.index += r.ratio
	}

	// Renormalise the phase relative to the next block.
	r.index -= float64(numFrames)

	// Carry the last 4 frames into history for the next block's negative taps.
	kept := min(numFrames, 4)
	for c := 0; c < ch; c++ {
		h := r.hist[c]
		copy(h[:], h[kept:]) // shift out the oldest frames
		for k := 0; k < kept; k++ {
			h[4-kept+k] = input[(numFrames-kept+k)*ch+c]
		}
		r.hist[c] = h
	}
	return out
}

// tap fetches the sample at frame index i for channel c, reaching into the
// history ring for negative indexes and clamping at the block edge.
func (r *Resampler) tap(input []int16, i, c, numFrames int) float64 {
	switch {
	case i < 0:
		return float64(r.hist[c][4+i])
	case i >= numFrames:
		return float64(input[(numFrames-1)*r.channels+c])
	default:
		return float64(input[i*r.channels+c])
	}
}

// Reset clears history and phase. Called on seek.
func (r *Resampler) Reset() {
	r.index = 0
	for c := range r.hist {
		r.hist[c] = [4]int16{}
	}
}

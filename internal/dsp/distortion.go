package dsp

import "math"

const maxInt16f = 32767.0

// Distortion shapes the waveform through sin/cos/tan terms with configurable
// offsets and scales, then rescales back to the int16 range.
type Distortion struct {
	sinOffset, sinScale float64
	cosOffset, cosScale float64
	tanOffset, tanScale float64
	offset, scale       float64
}

// NewDistortion creates a distortion filter with the given shaping terms.
func NewDistortion(sinOffset, sinScale, cosOffset, cosScale, tanOffset, tanScale, offset, scale float64) *Distortion {
	return &Distortion{
		sinOffset: sinOffset, sinScale: sinScale,
		cosOffset: cosOffset, cosScale: cosScale,
		tanOffset: tanOffset, tanScale: tanScale,
		offset: offset, scale: scale,
	}
}

func (d *Distortion) Process(samples []int16) {
	for i, s := range samples {
		normalized := float64(s) / maxInt16f

		var shaped float64
		if d.sinScale != 0 {
			shaped += math.Sin(normalized*d.sinScale + d.sinOffset)
		}
		if d.cosScale != 0 {
			shaped += math.Cos(normalized*d.cosScale + d.cosOffset)
		}
		if d.tanScale != 0 {
			// Keep the tangent input away from its asymptotes.
			in := normalized*d.tanScale + d.tanOffset
			in = math.Max(-math.Pi/2+0.01, math.Min(math.Pi/2-0.01, in))
			shaped += math.Tan(in)
		}

		shaped = (shaped*d.scale + d.offset) * maxInt16f
		samples[i] = clamp16(int32(shaped))
	}
}

func (d *Distortion) Enabled() bool {
	return d.sinOffset != 0 || d.sinScale != 1 ||
		d.cosOffset != 0 || d.cosScale != 1 ||
		d.tanOffset != 0 || d.tanScale != 1 ||
		d.offset != 0 || d.scale != 1
}

func (d *Distortion) Reset() {}

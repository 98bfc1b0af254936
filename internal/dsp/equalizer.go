package dsp

import "math"

// BandCount is the number of fixed equalizer bands
// (25/40/63/100/160/250/400/630/1000/1600/2500/4000/6300/10000/16000 Hz).
const BandCount = 15

// defaultMakeupGain compensates for the 0.25 dry scaling of the parallel
// band structure.
const defaultMakeupGain = 4.0

// eqCoefficients are the LavaPlayer band coefficients for 48 kHz, one triple
// (beta, alpha, gamma) per band from 25 Hz up to 16 kHz.
var eqCoefficients = [BandCount][3]float32{
	{9.9847546664e-01, 7.6226668143e-04, 1.9984647656e+00},
	{9.9756184654e-01, 1.2190767289e-03, 1.9975344645e+00},
	{9.9616261379e-01, 1.9186931041e-03, 1.9960947369e+00},
	{9.9391578543e-01, 3.0421072865e-03, 1.9937449618e+00},
	{9.9028307215e-01, 4.8584639242e-03, 1.9898465702e+00},
	{9.8485897264e-01, 7.5705136795e-03, 1.9837962543e+00},
	{9.7588512657e-01, 1.2057436715e-02, 1.9731772447e+00},
	{9.6228521814e-01, 1.8857390928e-02, 1.9556164694e+00},
	{9.4080933132e-01, 2.9595334338e-02, 1.9242054384e+00},
	{9.0702059196e-01, 4.6489704022e-02, 1.8653476166e+00},
	{8.5868004289e-01, 7.0659978553e-02, 1.7600401337e+00},
	{7.8409610788e-01, 1.0795194606e-01, 1.5450725522e+00},
	{6.8332861002e-01, 1.5833569499e-01, 1.1426447155e+00},
	{5.5267518228e-01, 2.2366240886e-01, 4.0186190803e-01},
	{4.1811888447e-01, 2.9094055777e-01, -7.0905944223e-01},
}

// eqBandState carries one channel's history for one band.
type eqBandState struct {
	x1, x2, y1, y2 float32
}

func (s *eqBandState) process(sample float32, band int) float32 {
	c := &eqCoefficients[band]
	result := c[1]*(sample-s.x2) + c[2]*s.y1 - c[0]*s.y2

	s.x2 = s.x1
	s.x1 = sample
	s.y2 = s.y1

	if math.IsNaN(float64(result)) || math.IsInf(float64(result), 0) {
		s.y1 = 0
		return 0
	}
	s.y1 = result
	return result
}

func (s *eqBandState) reset() { *s = eqBandState{} }

// Equalizer is the 15-band parallel equalizer. Band gains sit in
// [-0.25, 1.0]; the output passes through a tanh soft clip after makeup gain.
type Equalizer struct {
	gains      [BandCount]float32
	states     [BandCount][2]eqBandState
	makeupGain float32
}

// Band is one (index, gain) pair of the wire format.
type Band struct {
	Band int     `json:"band"`
	Gain float32 `json:"gain"`
}

// NewEqualizer creates an equalizer from the given band settings; absent
// bands stay at zero gain.
func NewEqualizer(bands []Band) *Equalizer {
	eq := &Equalizer{}
	for _, b := range bands {
		if b.Band >= 0 && b.Band < BandCount {
			g := b.Gain
			if g < -0.25 {
				g = -0.25
			}
			if g > 1.0 {
				g = 1.0
			}
			eq.gains[b.Band] = g
		}
	}

	var positiveSum float32
	for _, g := range eq.gains {
		if g > 0 {
			positiveSum += g
		}
	}
	if positiveSum > 1 {
		eq.makeupGain = defaultMakeupGain / (1 + (positiveSum-1)*0.5)
	} else {
		eq.makeupGain = defaultMakeupGain
	}
	return eq
}

func (e *Equalizer) Process(samples []int16) {
	for off := 0; off+1 < len(samples); off += 2 {
		leftIn := float32(samples[off]) / 32768.0
		rightIn := float32(samples[off+1]) / 32768.0

		// Dry signal scaled down; bands sum in parallel on top.
		resultLeft := leftIn * 0.25
		resultRight := rightIn * 0.25

		for b := 0; b < BandCount; b++ {
			gain := e.gains[b]
			bandLeft := e.states[b][0].process(leftIn, b)
			bandRight := e.states[b][1].process(rightIn, b)
			if gain == 0 {
				// State still advances so enabling a band later
				// does not click.
				continue
			}
			resultLeft += bandLeft * gain
			resultRight += bandRight * gain
		}

		outLeft := math.Tanh(float64(resultLeft * e.makeupGain))
		outRight := math.Tanh(float64(resultRight * e.makeupGain))

		samples[off] = int16(math.Round(outLeft * 32767.0))
		samples[off+1] = int16(math.Round(outRight * 32767.0))
	}
}

func (e *Equalizer) Enabled() bool {
	for _, g := range e.gains {
		if g != 0 {
			return true
		}
	}
	return false
}

func (e *Equalizer) Reset() {
	for b := range e.states {
		e.states[b][0].reset()
		e.states[b][1].reset()
	}
}

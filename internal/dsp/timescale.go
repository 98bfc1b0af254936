package dsp

// Timescale changes playback speed/pitch/rate by cubic-interpolation
// resampling. Because it changes the sample count it cannot run in place:
// input frames accumulate in an internal buffer, resampled output lands in a
// FIFO, and the chain drains exactly one frame's worth per tick (silence on
// underflow).
type Timescale struct {
	speed, pitch, rate float64
	finalRate          float64

	input []int16 // leftover interleaved input frames
	fifo  []int16 // resampled output awaiting drain
}

// clampTimescale bounds each parameter to [0.1, 5.0] as the wire contract
// documents.
func clampTimescale(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 5.0 {
		return 5.0
	}
	return v
}

// NewTimescale creates a timescale filter. The effective rate is the product
// of speed, pitch, and rate.
func NewTimescale(speed, pitch, rate float64) *Timescale {
	speed = clampTimescale(speed)
	pitch = clampTimescale(pitch)
	rate = clampTimescale(rate)
	return &Timescale{
		speed: speed, pitch: pitch, rate: rate,
		finalRate: speed * pitch * rate,
	}
}

// Push feeds one frame of input and resamples whatever the interpolator can
// consume into the FIFO.
func (t *Timescale) Push(samples []int16) {
	if t.finalRate == 1.0 {
		t.fifo = append(t.fifo, samples...)
		return
	}

	t.input = append(t.input, samples...)

	// Cubic interpolation needs 4 stereo frames of context.
	numInputFrames := len(t.input) / 2
	if numInputFrames < 4 {
		return
	}

	outputFrame := 0
	for {
		inputPos := float64(outputFrame) * t.finalRate
		i1 := int(inputPos)
		frac := inputPos - float64(i1)

		if i1+2 >= numInputFrames {
			break
		}
		i0 := i1 - 1
		if i0 < 0 {
			i0 = 0
		}

		for c := 0; c < 2; c++ {
			p0 := float64(t.input[i0*2+c])
			p1 := float64(t.input[i1*2+c])
			p2 := float64(t.input[(i1+1)*2+c])
			p3 := float64(t.input[(i1+2)*2+c])
			t.fifo = append(t.fifo, clamp16(int32(catmullRom(p0, p1, p2, p3, frac))))
		}
		outputFrame++
	}

	// Drop the consumed input frames, keeping the interpolation tail.
	consumedFrames := int(float64(outputFrame) * t.finalRate)
	if consumed := consumedFrames * 2; consumed < len(t.input) {
		n := copy(t.input, t.input[consumed:])
		t.input = t.input[:n]
	} else {
		t.input = t.input[:0]
	}
}

// Fill drains exactly len(frame) samples from the FIFO into frame. Returns
// false (leaving frame untouched) when the FIFO holds less than one frame.
func (t *Timescale) Fill(frame []int16) bool {
	if len(t.fifo) < len(frame) {
		return false
	}
	copy(frame, t.fifo[:len(frame)])
	n := copy(t.fifo, t.fifo[len(frame):])
	t.fifo = t.fifo[:n]
	return true
}

// Pending reports how many samples are buffered in the output FIFO.
func (t *Timescale) Pending() int { return len(t.fifo) }

// Process is a no-op: the chain routes frames through Push/Fill instead
// because the sample count changes.
func (t *Timescale) Process(samples []int16) {}

func (t *Timescale) Enabled() bool { return t.finalRate != 1.0 }

func (t *Timescale) Reset() {
	t.input = t.input[:0]
	t.fifo = t.fifo[:0]
}

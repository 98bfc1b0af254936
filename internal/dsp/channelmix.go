package dsp


// ChannelMix applies a 2x2 mixing matrix across the stereo pair.
type ChannelMix struct {
	ll, lr, rl, rr float32
}

// NewChannelMix creates a channel mixer. Each factor is clamped to [0, 1].
func NewChannelMix(leftToLeft, leftToRight, rightToLeft, rightToRight float32) *ChannelMix {
	clamp := func(f float32) float32 {
		if f < 0 {
			return 0
		}
		if f > 1 {
			return 1
		}
		return f
	}
	return &ChannelMix{
		ll: clamp(leftToLeft),
		lr: clamp(leftToRight),
		rl: clamp(rightToLeft),
		rr: clamp(rightToRight),
	}
}

func (c *ChannelMix) Process(samples []int16) {
	for off := 0; off+1 < len(samples); off += 2 {
		left := float64(samples[off])
		right := float64(samples[off+1])

		newLeft := left*float64(c.ll) + right*float64(c.rl)
		newRight := left*float64(c.lr) + right*float64(c.rr)

		samples[off] = clamp16(int32(newLeft))
		samples[off+1] = clamp16(int32(newRight))
	}
}

func (c *ChannelMix) Enabled() bool {
	return c.ll != 1 || c.lr != 0 || c.rl != 0 || c.rr != 1
}

func (c *ChannelMix) Reset() {}

package dsp

// Config is the wire-level filter configuration. Absent (nil) sections leave
// the corresponding filter out of the chain entirely; applying a Config
// always builds a fresh chain, never merges into an old one.
type Config struct {
	Volume     *float32          `json:"volume,omitempty"`
	Equalizer  []Band            `json:"equalizer,omitempty"`
	Karaoke    *KaraokeConfig    `json:"karaoke,omitempty"`
	Timescale  *TimescaleConfig  `json:"timescale,omitempty"`
	Tremolo    *TremoloConfig    `json:"tremolo,omitempty"`
	Vibrato    *VibratoConfig    `json:"vibrato,omitempty"`
	Distortion *DistortionConfig `json:"distortion,omitempty"`
	Rotation   *RotationConfig   `json:"rotation,omitempty"`
	ChannelMix *ChannelMixConfig `json:"channelMix,omitempty"`
	LowPass    *LowPassConfig    `json:"lowPass,omitempty"`
}

// KaraokeConfig carries the karaoke wire parameters.
type KaraokeConfig struct {
	Level       *float32 `json:"level,omitempty"`
	MonoLevel   *float32 `json:"monoLevel,omitempty"`
	FilterBand  *float32 `json:"filterBand,omitempty"`
	FilterWidth *float32 `json:"filterWidth,omitempty"`
}

// TimescaleConfig carries the timescale wire parameters.
type TimescaleConfig struct {
	Speed *float64 `json:"speed,omitempty"`
	Pitch *float64 `json:"pitch,omitempty"`
	Rate  *float64 `json:"rate,omitempty"`
}

// TremoloConfig carries the tremolo wire parameters.
type TremoloConfig struct {
	Frequency *float64 `json:"frequency,omitempty"`
	Depth     *float64 `json:"depth,omitempty"`
}

// VibratoConfig carries the vibrato wire parameters.
type VibratoConfig struct {
	Frequency *float64 `json:"frequency,omitempty"`
	Depth     *float64 `json:"depth,omitempty"`
}

// DistortionConfig carries the distortion wire parameters.
type DistortionConfig struct {
	SinOffset *float64 `json:"sinOffset,omitempty"`
	SinScale  *float64 `json:"sinScale,omitempty"`
	CosOffset *float64 `json:"cosOffset,omitempty"`
	CosScale  *float64 `json:"cosScale,omitempty"`
	TanOffset *float64 `json:"tanOffset,omitempty"`
	TanScale  *float64 `json:"tanScale,omitempty"`
	Offset    *float64 `json:"offset,omitempty"`
	Scale     *float64 `json:"scale,omitempty"`
}

// RotationConfig carries the rotation wire parameters.
type RotationConfig struct {
	RotationHz *float64 `json:"rotationHz,omitempty"`
}

// ChannelMixConfig carries the channel-mix wire parameters.
type ChannelMixConfig struct {
	LeftToLeft   *float32 `json:"leftToLeft,omitempty"`
	LeftToRight  *float32 `json:"leftToRight,omitempty"`
	RightToLeft  *float32 `json:"rightToLeft,omitempty"`
	RightToRight *float32 `json:"rightToRight,omitempty"`
}

// LowPassConfig carries the low-pass wire parameters.
type LowPassConfig struct {
	Smoothing *float32 `json:"smoothing,omitempty"`
}

func orf32(p *float32, def float32) float32 {
	if p == nil {
		return def
	}
	return *p
}

func orf64(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// Chain is an ordered filter composition applied to each 20 ms frame. The
// signal-flow order is fixed: low-pass, channel mix, rotation, distortion,
// vibrato, tremolo, timescale, karaoke, equalizer, volume. Custom filters, if
// any, sit before all built-ins.
type Chain struct {
	filters   []Filter
	timescale *Timescale
}

// NewChain builds a chain from cfg. Sections absent from cfg produce no
// filter; filters whose parameters sit at identity are constructed but
// report disabled and are skipped per frame. custom filters are placed at
// the input side.
func NewChain(cfg Config, custom ...Filter) *Chain {
	c := &Chain{}
	c.filters = append(c.filters, custom...)

	if cfg.LowPass != nil {
		c.filters = append(c.filters, NewLowPass(orf32(cfg.LowPass.Smoothing, 20)))
	}
	if cfg.ChannelMix != nil {
		c.filters = append(c.filters, NewChannelMix(
			orf32(cfg.ChannelMix.LeftToLeft, 1),
			orf32(cfg.ChannelMix.LeftToRight, 0),
			orf32(cfg.ChannelMix.RightToLeft, 0),
			orf32(cfg.ChannelMix.RightToRight, 1),
		))
	}
	if cfg.Rotation != nil {
		c.filters = append(c.filters, NewRotation(orf64(cfg.Rotation.RotationHz, 0)))
	}
	if cfg.Distortion != nil {
		c.filters = append(c.filters, NewDistortion(
			orf64(cfg.Distortion.SinOffset, 0),
			orf64(cfg.Distortion.SinScale, 1),
			orf64(cfg.Distortion.CosOffset, 0),
			orf64(cfg.Distortion.CosScale, 1),
			orf64(cfg.Distortion.TanOffset, 0),
			orf64(cfg.Distortion.TanScale, 1),
			orf64(cfg.Distortion.Offset, 0),
			orf64(cfg.Distortion.Scale, 1),
		))
	}
	if cfg.Vibrato != nil {
		c.filters = append(c.filters, NewVibrato(
			orf64(cfg.Vibrato.Frequency, 2),
			orf64(cfg.Vibrato.Depth, 0.5),
		))
	}
	if cfg.Tremolo != nil {
		c.filters = append(c.filters, NewTremolo(
			orf64(cfg.Tremolo.Frequency, 2),
			orf64(cfg.Tremolo.Depth, 0.5),
		))
	}
	if cfg.Timescale != nil {
		c.timescale = NewTimescale(
			orf64(cfg.Timescale.Speed, 1),
			orf64(cfg.Timescale.Pitch, 1),
			orf64(cfg.Timescale.Rate, 1),
		)
		c.filters = append(c.filters, c.timescale)
	}
	if cfg.Karaoke != nil {
		c.filters = append(c.filters, NewKaraoke(
			orf32(cfg.Karaoke.Level, 1),
			orf32(cfg.Karaoke.MonoLevel, 1),
			orf32(cfg.Karaoke.FilterBand, 220),
			orf32(cfg.Karaoke.FilterWidth, 100),
		))
	}
	if len(cfg.Equalizer) > 0 {
		c.filters = append(c.filters, NewEqualizer(cfg.Equalizer))
	}
	if cfg.Volume != nil {
		c.filters = append(c.filters, NewVolume(orf32(cfg.Volume, 1)))
	}
	return c
}

// Enabled reports whether any filter in the chain is active.
func (c *Chain) Enabled() bool {
	if c == nil {
		return false
	}
	for _, f := range c.filters {
		if f.Enabled() {
			return true
		}
	}
	return false
}

// TimescaleActive reports whether the chain carries an active timescale
// stage; the speak loop then drains its FIFO instead of assuming in-place
// frame counts.
func (c *Chain) TimescaleActive() bool {
	return c != nil && c.timescale != nil && c.timescale.Enabled()
}

// Process runs frame through every enabled filter in order. The timescale
// stage routes through its FIFO: the frame feeds the interpolator and is
// replaced by one drained frame (silence on underflow).
func (c *Chain) Process(frame []int16) {
	if c == nil {
		return
	}
	for _, f := range c.filters {
		if !f.Enabled() {
			continue
		}
		if ts, ok := f.(*Timescale); ok {
			ts.Push(frame)
			if !ts.Fill(frame) {
				clear(frame)
			}
			continue
		}
		f.Process(frame)
	}
}

// Reset clears all filter state. Called on seek.
func (c *Chain) Reset() {
	if c == nil {
		return
	}
	for _, f := range c.filters {
		f.Reset()
	}
}

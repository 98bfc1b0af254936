package dsp

import "testing"

func f32(v float32) *float32 { return &v }
func f64(v float64) *float64 { return &v }

func TestEmptyChainIsIdentity(t *testing.T) {
	c := NewChain(Config{})
	if c.Enabled() {
		t.Fatal("empty chain must be disabled")
	}

	frame := makeFrame(1920)
	orig := append([]int16(nil), frame...)
	c.Process(frame)

	for i := range orig {
		if frame[i] != orig[i] {
			t.Fatalf("sample %d changed: %d != %d", i, frame[i], orig[i])
		}
	}
}

func TestIdentityParametersAreBitExact(t *testing.T) {
	// Every section present but at identity defaults: all filters report
	// disabled, so the frame must come through bit-identical.
	cfg := Config{
		Volume:     f32(1.0),
		Timescale:  &TimescaleConfig{Speed: f64(1), Pitch: f64(1), Rate: f64(1)},
		Tremolo:    &TremoloConfig{Frequency: f64(2), Depth: f64(0)},
		Vibrato:    &VibratoConfig{Frequency: f64(2), Depth: f64(0)},
		Rotation:   &RotationConfig{RotationHz: f64(0)},
		ChannelMix: &ChannelMixConfig{LeftToLeft: f32(1), LeftToRight: f32(0), RightToLeft: f32(0), RightToRight: f32(1)},
		LowPass:    &LowPassConfig{Smoothing: f32(1.0)},
		Distortion: &DistortionConfig{},
	}
	c := NewChain(cfg)
	if c.Enabled() {
		t.Fatal("identity chain must report disabled")
	}

	frame := makeFrame(1920)
	orig := append([]int16(nil), frame...)
	c.Process(frame)

	for i := range orig {
		if frame[i] != orig[i] {
			t.Fatalf("sample %d changed: %d != %d", i, frame[i], orig[i])
		}
	}
}

func TestChainAppliesVolume(t *testing.T) {
	c := NewChain(Config{Volume: f32(0.5)})
	if !c.Enabled() {
		t.Fatal("chain with volume 0.5 must be enabled")
	}

	frame := []int16{1000, 1000}
	c.Process(frame)
	if frame[0] != 500 || frame[1] != 500 {
		t.Errorf("frame = %v, want [500 500]", frame)
	}
}

func TestChainReplacementIsNotAMerge(t *testing.T) {
	old := NewChain(Config{Volume: f32(0.5), LowPass: &LowPassConfig{Smoothing: f32(20)}})
	if !old.Enabled() {
		t.Fatal("old chain should be enabled")
	}

	// The new config drops low-pass entirely; only tremolo remains.
	replacement := NewChain(Config{Tremolo: &TremoloConfig{Frequency: f64(4), Depth: f64(0.5)}})

	var lowPassCount, tremoloCount int
	for _, f := range replacement.filters {
		switch f.(type) {
		case *LowPass:
			lowPassCount++
		case *Tremolo:
			tremoloCount++
		}
	}
	if lowPassCount != 0 {
		t.Error("replacement chain still carries a low-pass filter")
	}
	if tremoloCount != 1 {
		t.Errorf("replacement chain has %d tremolo filters, want 1", tremoloCount)
	}
}

func TestChainSignalFlowOrder(t *testing.T) {
	cfg := Config{
		Volume:     f32(0.5),
		Equalizer:  []Band{{Band: 0, Gain: 0.1}},
		Karaoke:    &KaraokeConfig{},
		Timescale:  &TimescaleConfig{Speed: f64(1.5)},
		Tremolo:    &TremoloConfig{},
		Vibrato:    &VibratoConfig{},
		Distortion: &DistortionConfig{Scale: f64(2)},
		Rotation:   &RotationConfig{RotationHz: f64(0.2)},
		ChannelMix: &ChannelMixConfig{},
		LowPass:    &LowPassConfig{},
	}
	c := NewChain(cfg)

	wantOrder := []string{
		"*dsp.LowPass", "*dsp.ChannelMix", "*dsp.Rotation", "*dsp.Distortion",
		"*dsp.Vibrato", "*dsp.Tremolo", "*dsp.Timescale", "*dsp.Karaoke",
		"*dsp.Equalizer", "*dsp.Volume",
	}
	if len(c.filters) != len(wantOrder) {
		t.Fatalf("chain has %d filters, want %d", len(c.filters), len(wantOrder))
	}
	for i, f := range c.filters {
		if got := typeName(f); got != wantOrder[i] {
			t.Errorf("position %d: %s, want %s", i, got, wantOrder[i])
		}
	}
}

func typeName(f Filter) string {
	switch f.(type) {
	case *LowPass:
		return "*dsp.LowPass"
	case *ChannelMix:
		return "*dsp.ChannelMix"
	case *Rotation:
		return "*dsp.Rotation"
	case *Distortion:
		return "*dsp.Distortion"
	case *Vibrato:
		return "*dsp.Vibrato"
	case *Tremolo:
		return "*dsp.Tremolo"
	case *Timescale:
		return "*dsp.Timescale"
	case *Karaoke:
		return "*dsp.Karaoke"
	case *Equalizer:
		return "*dsp.Equalizer"
	case *Volume:
		return "*dsp.Volume"
	}
	return "unknown"
}

func TestChainTimescaleUnderflowYieldsSilence(t *testing.T) {
	// Speed 3 consumes three input frames per output frame, so the first
	// frame cannot fill the FIFO.
	c := NewChain(Config{Timescale: &TimescaleConfig{Speed: f64(3)}})
	if !c.TimescaleActive() {
		t.Fatal("timescale should be active at speed 3")
	}

	frame := makeFrame(1920)
	c.Process(frame)
	for i, s := range frame {
		if s != 0 {
			t.Fatalf("sample %d = %d, want silence on underflow", i, s)
		}
	}
}

func TestNilChainIsSafe(t *testing.T) {
	var c *Chain
	if c.Enabled() {
		t.Error("nil chain reports enabled")
	}
	c.Process(make([]int16, 1920))
	c.Reset()
}

package pcm

import "testing"

func TestInt16BytesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 12345, -12345}
	out := BytesToInt16(Int16ToBytes(in))
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: %d != %d", i, out[i], in[i])
		}
	}
}

func TestClamp16(t *testing.T) {
	cases := []struct {
		in   int32
		want int16
	}{
		{0, 0},
		{32767, 32767},
		{32768, 32767},
		{100000, 32767},
		{-32768, -32768},
		{-32769, -32768},
		{-100000, -32768},
	}
	for _, c := range cases {
		if got := Clamp16(c.in); got != c.want {
			t.Errorf("Clamp16(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestFloatTo16(t *testing.T) {
	cases := []struct {
		in   float64
		want int16
	}{
		{0, 0},
		{1.0, 32767},
		{-1.0, -32767},
		{2.0, 32767},
		{-2.0, -32768},
		{0.5, 16384},
	}
	for _, c := range cases {
		if got := FloatTo16(c.in); got != c.want {
			t.Errorf("FloatTo16(%g) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestFrameConstants(t *testing.T) {
	if FrameSize != 960 {
		t.Errorf("FrameSize = %d, want 960", FrameSize)
	}
	if FrameSamples != 1920 {
		t.Errorf("FrameSamples = %d, want 1920", FrameSamples)
	}
	if FrameBytes != 3840 {
		t.Errorf("FrameBytes = %d, want 3840", FrameBytes)
	}
}

package player

import (
	"context"
	"testing"

	"github.com/appujet/baja/pkg/pcm"
)

// newTestTrack builds a track wired for direct mixer testing.
func newTestTrack(id string, tape *Tape, paused bool) *Track {
	_, cancel := context.WithCancel(context.Background())
	h := newHandle(id, "g", tape != nil, paused)
	return newTrack(h, tape, 0, cancel)
}

// frameOf returns a pooled frame with every sample set to v.
func frameOf(v int16) *pcm.Buffer {
	buf := pcm.GetFrame()
	for i := range buf.Samples {
		buf.Samples[i] = v
	}
	return buf
}

func TestMixerSilenceWithoutTracks(t *testing.T) {
	m := NewMixer()
	out := m.Tick()
	if !out.Silence() {
		t.Fatal("empty mixer should produce silence")
	}
}

func TestMixerSingleTrack(t *testing.T) {
	m := NewMixer()
	tr := newTestTrack("g:1", nil, false)
	m.Add(tr)

	tr.frames <- frameOf(1000)
	out := m.Tick()

	if out.Frame == nil {
		t.Fatal("expected a mixed frame")
	}
	defer out.Frame.Release()

	if len(out.Frame.Samples) != pcm.FrameSamples {
		t.Fatalf("frame has %d samples, want %d", len(out.Frame.Samples), pcm.FrameSamples)
	}
	for i, s := range out.Frame.Samples {
		if s != 1000 {
			t.Fatalf("sample %d = %d, want 1000", i, s)
		}
	}
	if got := tr.handle.PositionMs(); got != pcm.FrameMs {
		t.Errorf("position = %dms, want %d", got, pcm.FrameMs)
	}
}

func TestMixerSumsAndSaturates(t *testing.T) {
	m := NewMixer()
	a := newTestTrack("g:1", nil, false)
	b := newTestTrack("g:2", nil, false)
	m.Add(a)
	m.Add(b)

	a.frames <- frameOf(20000)
	b.frames <- frameOf(20000)

	out := m.Tick()
	if out.Frame == nil {
		t.Fatal("expected a mixed frame")
	}
	defer out.Frame.Release()

	// 20000 + 20000 saturates at 32767 through the 32-bit accumulator.
	for i, s := range out.Frame.Samples {
		if s != 32767 {
			t.Fatalf("sample %d = %d, want 32767", i, s)
		}
	}
}

func TestMixerVolumeScaling(t *testing.T) {
	m := NewMixer()
	tr := newTestTrack("g:1", nil, false)
	tr.handle.SetVolume(0.5)
	m.Add(tr)

	tr.frames <- frameOf(1000)
	out := m.Tick()
	if out.Frame == nil {
		t.Fatal("expected a frame")
	}
	defer out.Frame.Release()

	if out.Frame.Samples[0] != 500 {
		t.Errorf("sample = %d, want 500", out.Frame.Samples[0])
	}
}

func TestMixerVolumeZeroStillContributes(t *testing.T) {
	m := NewMixer()
	tr := newTestTrack("g:1", nil, false)
	tr.handle.SetVolume(0)
	m.Add(tr)

	tr.frames <- frameOf(1000)
	out := m.Tick()

	// An all-zero frame is audible silence, not a nulled tick.
	if out.Frame == nil {
		t.Fatal("volume 0 should still produce a frame")
	}
	defer out.Frame.Release()
	if out.Nulled != 0 {
		t.Errorf("nulled = %d, want 0", out.Nulled)
	}
	for i, s := range out.Frame.Samples {
		if s != 0 {
			t.Fatalf("sample %d = %d, want 0", i, s)
		}
	}
}

func TestMixerStarvedTrackIsNulled(t *testing.T) {
	m := NewMixer()
	tr := newTestTrack("g:1", nil, false)
	m.Add(tr)

	out := m.Tick()
	if !out.Silence() {
		t.Fatal("starved track should yield silence")
	}
	if out.Nulled != 1 {
		t.Errorf("nulled = %d, want 1", out.Nulled)
	}
	if got := tr.handle.PositionMs(); got != 0 {
		t.Errorf("starved track advanced position to %dms", got)
	}
}

func TestMixerPausedTrackDoesNotConsume(t *testing.T) {
	m := NewMixer()
	tr := newTestTrack("g:1", nil, true)
	m.Add(tr)

	tr.frames <- frameOf(1000)
	out := m.Tick()

	if !out.Silence() {
		t.Fatal("paused track should not contribute")
	}
	if len(tr.frames) != 1 {
		t.Errorf("paused track consumed its frame")
	}
}

func TestMixerPassthroughWins(t *testing.T) {
	m := NewMixer()
	pcmTrack := newTestTrack("g:1", nil, false)
	passTrack := newTestTrack("g:2", nil, false)
	m.Add(pcmTrack)
	m.Add(passTrack)

	pcmTrack.frames <- frameOf(1000)
	packet := []byte{0xAA, 0xBB, 0xCC}
	passTrack.packets <- packet

	out := m.Tick()
	if out.Opus == nil {
		t.Fatal("passthrough packet should win the tick")
	}
	if &out.Opus[0] != &packet[0] {
		t.Error("packet bytes were copied instead of forwarded")
	}
	// The PCM track's frame must remain queued for the next tick.
	if len(pcmTrack.frames) != 1 {
		t.Error("PCM mixing ran on a passthrough tick")
	}

	// Passthrough advances the position by one frame (20 ms).
	if got := passTrack.handle.PositionMs(); got != pcm.FrameMs {
		t.Errorf("passthrough position = %dms, want %d", got, pcm.FrameMs)
	}
}

func TestMixerEndOfStream(t *testing.T) {
	m := NewMixer()
	tr := newTestTrack("g:1", nil, false)
	m.Add(tr)

	tr.frames <- frameOf(7)
	close(tr.frames)
	close(tr.packets)

	// First tick consumes the buffered frame.
	out := m.Tick()
	if out.Frame == nil {
		t.Fatal("buffered frame should drain before EOS")
	}
	out.Frame.Release()

	// Second tick observes the close and marks the track terminal.
	m.Tick()
	if !tr.eos.Load() {
		t.Error("eos not observed")
	}
	if tr.handle.State() != StateStopped {
		t.Errorf("state = %v, want stopped", tr.handle.State())
	}

	// The track stays listed until its end event is reported, then the
	// next tick reaps it.
	m.Tick()
	if n := len(m.Tracks()); n != 1 {
		t.Errorf("unreported track was reaped early (%d listed)", n)
	}
	tr.reported.Store(true)
	m.Tick()
	if n := len(m.Tracks()); n != 0 {
		t.Errorf("track list has %d entries after reap, want 0", n)
	}
}

func TestMixerTapeTransitionProducesFrames(t *testing.T) {
	m := NewMixer()
	tape := NewTape()
	tr := newTestTrack("g:1", tape, false)
	m.Add(tr)

	// Prime with one playing tick so the tape ring holds audio.
	tr.frames <- frameOf(8000)
	out := m.Tick()
	if out.Frame == nil {
		t.Fatal("expected playing frame")
	}
	out.Frame.Release()

	// Pause with a 40 ms ramp: two transition ticks then Paused.
	tape.RampDown(40, CurveLinear)
	tr.handle.Pause()
	if tr.handle.State() != StateStopping {
		t.Fatalf("state = %v, want stopping", tr.handle.State())
	}

	for i := 0; i < 2; i++ {
		out = m.Tick()
		if out.Frame == nil {
			t.Fatalf("transition tick %d produced no frame", i)
		}
		out.Frame.Release()
	}

	if got := tr.handle.State(); got != StatePaused {
		t.Errorf("state after ramp = %v, want paused", got)
	}
}

func TestMixerImmediateTransitionWithoutTape(t *testing.T) {
	m := NewMixer()
	tr := newTestTrack("g:1", nil, false)
	m.Add(tr)

	// Force the transition states directly: without a tape the mixer
	// collapses them on the next tick.
	tr.handle.setState(StateStopping)
	m.Tick()
	if got := tr.handle.State(); got != StatePaused {
		t.Errorf("stopping -> %v, want paused", got)
	}

	tr.handle.setState(StateStarting)
	m.Tick()
	if got := tr.handle.State(); got != StatePlaying {
		t.Errorf("starting -> %v, want playing", got)
	}
}

package player

import (
	"testing"

	"github.com/appujet/baja/pkg/pcm"
)

func TestHandleInitialState(t *testing.T) {
	h := newHandle("g:1", "g", false, false)
	if h.State() != StatePlaying {
		t.Errorf("initial state = %v, want playing", h.State())
	}
	if h.Volume() != 1.0 {
		t.Errorf("initial volume = %f, want 1.0", h.Volume())
	}

	paused := newHandle("g:2", "g", false, true)
	if paused.State() != StatePaused {
		t.Errorf("paused start state = %v, want paused", paused.State())
	}
}

func TestHandleImmediateTransitions(t *testing.T) {
	h := newHandle("g:1", "g", false, false)

	h.Pause()
	if h.State() != StatePaused {
		t.Errorf("after pause: %v, want paused", h.State())
	}
	h.Play()
	if h.State() != StatePlaying {
		t.Errorf("after play: %v, want playing", h.State())
	}
}

func TestHandleTapeTransitions(t *testing.T) {
	h := newHandle("g:1", "g", true, false)

	h.Pause()
	if h.State() != StateStopping {
		t.Errorf("after pause with tape: %v, want stopping", h.State())
	}

	// Resume mid-stop flips straight to starting.
	h.Play()
	if h.State() != StateStarting {
		t.Errorf("after play mid-stop: %v, want starting", h.State())
	}

	// Pause mid-start flips back to stopping.
	h.Pause()
	if h.State() != StateStopping {
		t.Errorf("after pause mid-start: %v, want stopping", h.State())
	}
}

func TestHandleStopIsTerminal(t *testing.T) {
	h := newHandle("g:1", "g", true, false)
	h.Stop()
	if h.State() != StateStopped {
		t.Fatalf("after stop: %v, want stopped", h.State())
	}

	// Play/Pause must not resurrect a stopped track.
	h.Play()
	if h.State() != StateStopped {
		t.Errorf("play resurrected a stopped track: %v", h.State())
	}
	h.Pause()
	if h.State() != StateStopped {
		t.Errorf("pause changed a stopped track: %v", h.State())
	}

	// Stop also enqueues the processor command.
	select {
	case cmd := <-h.commands():
		if !cmd.Stop {
			t.Errorf("command = %+v, want Stop", cmd)
		}
	default:
		t.Error("no stop command queued")
	}
}

func TestHandleVolumeClamping(t *testing.T) {
	h := newHandle("g:1", "g", false, false)

	h.SetVolume(2.5)
	if h.Volume() != 2.5 {
		t.Errorf("volume = %f, want 2.5", h.Volume())
	}
	h.SetVolume(-1)
	if h.Volume() != 0 {
		t.Errorf("negative volume = %f, want 0", h.Volume())
	}
	h.SetVolume(10)
	if h.Volume() != 5 {
		t.Errorf("oversized volume = %f, want 5", h.Volume())
	}
}

func TestHandleSeekJumpsPosition(t *testing.T) {
	h := newHandle("g:1", "g", false, false)

	if !h.Seek(15000) {
		t.Fatal("seek dropped")
	}
	if got := h.PositionMs(); got != 15000 {
		t.Errorf("position = %dms, want 15000", got)
	}
	select {
	case cmd := <-h.commands():
		if cmd.SeekMs != 15000 || cmd.Stop {
			t.Errorf("command = %+v, want Seek(15000)", cmd)
		}
	default:
		t.Error("no seek command queued")
	}
}

func TestHandlePositionMath(t *testing.T) {
	h := newHandle("g:1", "g", false, false)

	// 50 frames of 960 per-channel samples = one second.
	for i := 0; i < 50; i++ {
		h.advance(pcm.FrameSize)
	}
	if got := h.PositionMs(); got != 1000 {
		t.Errorf("position = %dms, want 1000", got)
	}
}

package player

import (
	"context"
	"sync/atomic"

	"github.com/appujet/baja/pkg/pcm"
)

// pcmChannelCap bounds the per-track frame channel. The processor blocks once
// four frames are queued, which backpressures the decoder, the reader, and
// ultimately the prefetch worker.
const pcmChannelCap = 4

// Track is one playing entity inside a guild: either a PCM track fed by a
// transcode processor, or a passthrough track carrying raw Opus packets.
// Exactly one of frames/packets is used.
type Track struct {
	handle *Handle

	frames  chan *pcm.Buffer // transcode lane
	packets chan []byte      // passthrough lane

	// tape drives pause/resume shaping when enabled for the guild.
	tape *Tape

	// endTimeMs stops the track once position passes it. 0 disables.
	endTimeMs int64

	// errCh is the processor's one-shot error channel: at most one
	// message, then close. A close without a message is a clean end.
	errCh chan string

	// firstFrame flips once the mixer consumed any audio from this track;
	// it separates loadFailed from mid-stream failures.
	firstFrame atomic.Bool

	// eos flips when the mixer observes the frame channel closed.
	eos atomic.Bool

	// endReason, when set by a control operation, overrides the natural
	// reason the supervisor would infer.
	endReason atomic.Value // events-compatible string

	// reported flips once the supervisor emitted this track's end event.
	reported atomic.Bool

	// isPassthrough flips when the probe selected the passthrough lane.
	isPassthrough atomic.Bool

	// cancel aborts the processor worker.
	cancel context.CancelFunc
}

// newTrack builds a track shell; the processor wires itself to the channels.
func newTrack(h *Handle, tape *Tape, endTimeMs int64, cancel context.CancelFunc) *Track {
	return &Track{
		handle:    h,
		frames:    make(chan *pcm.Buffer, pcmChannelCap),
		packets:   make(chan []byte, pcmChannelCap),
		tape:      tape,
		endTimeMs: endTimeMs,
		errCh:     make(chan string, 1),
		cancel:    cancel,
	}
}

// Handle returns the track's control surface.
func (t *Track) Handle() *Handle { return t.handle }

// setEndReason records a control-plane-caused end (stopped, replaced,
// cleanup). Only the first call wins.
func (t *Track) setEndReason(reason string) {
	t.endReason.CompareAndSwap(nil, reason)
}

// overriddenReason returns the recorded reason, or "".
func (t *Track) overriddenReason() string {
	if v := t.endReason.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// stop cancels the worker and marks the terminal state.
func (t *Track) stop(reason string) {
	t.setEndReason(reason)
	t.handle.Stop()
	t.cancel()
}

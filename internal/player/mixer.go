package player

import (
	"sync"

	"github.com/appujet/baja/pkg/pcm"
)

// TickResult is one mixer tick's output: a raw Opus packet (passthrough
// wins), a mixed PCM frame, or neither (silence).
type TickResult struct {
	Opus  []byte
	Frame *pcm.Buffer

	// Nulled counts tracks that were Playing but had no frame ready.
	Nulled int
}

// Silence reports whether the tick produced no audio.
func (r TickResult) Silence() bool { return r.Opus == nil && r.Frame == nil }

// Mixer composes a guild's tracks into one frame per 20 ms tick. Frame
// assembly never blocks: channel reads are non-blocking and state reads are
// single atomic loads. Only the track list mutations take the mutex, briefly.
type Mixer struct {
	mu     sync.Mutex
	tracks []*Track

	acc     [pcm.FrameSamples]int32
	scratch [pcm.FrameSamples]int16
}

// NewMixer creates an empty mixer.
func NewMixer() *Mixer {
	return &Mixer{}
}

// Add registers a track for mixing.
func (m *Mixer) Add(t *Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = append(m.tracks, t)
}

// Remove drops a track from the mix.
func (m *Mixer) Remove(t *Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.tracks {
		if cur == t {
			m.tracks = append(m.tracks[:i], m.tracks[i+1:]...)
			return
		}
	}
}

// snapshot copies the current track list so the tick never holds the lock
// while mixing.
func (m *Mixer) snapshot() []*Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Track(nil), m.tracks...)
}

// reap drains terminal tracks and drops them once their end has been
// observed and reported. A stopped track's processor may still be flushing;
// draining here is what lets the channel close become visible.
func (m *Mixer) reap() {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.tracks[:0]
	for _, t := range m.tracks {
		if t.handle.State().Terminal() {
			if !t.eos.Load() {
				drainTerminal(t)
			}
			// Keep the track listed until the supervisor has emitted
			// its end event; dropping earlier would lose the event.
			if t.eos.Load() && t.reported.Load() {
				continue
			}
		}
		kept = append(kept, t)
	}
	m.tracks = kept
}

// drainTerminal discards whatever a terminal track still has queued so the
// processor's channel close becomes observable.
func drainTerminal(t *Track) {
	for {
		select {
		case buf, ok := <-t.frames:
			if !ok {
				t.eos.Store(true)
				return
			}
			buf.Release()
		default:
			// Packets need no recycling, just discarding.
			select {
			case _, ok := <-t.packets:
				if !ok {
					t.eos.Store(true)
				}
				return
			default:
				return
			}
		}
	}
}

// Tick produces the guild's next 20 ms of audio.
//
// A passthrough track with a packet available wins the tick outright. PCM
// tracks otherwise accumulate into a 32-bit mix buffer (headroom against sum
// overflow) with fixed-point volume scaling, then saturate back to int16.
// Each track contributes at most one frame per tick; a playing track with
// nothing buffered contributes silence and is counted as nulled.
func (m *Mixer) Tick() TickResult {
	m.reap()
	tracks := m.snapshot()

	// Passthrough short-circuit.
	for _, t := range tracks {
		if t.handle.State() != StatePlaying {
			continue
		}
		select {
		case pkt, ok := <-t.packets:
			if !ok {
				// End of stream is observed on the frame channel, so
				// PCM frames still queued behind a closed packet
				// channel get played first.
				continue
			}
			t.firstFrame.Store(true)
			t.handle.advance(pcm.FrameSize)
			return TickResult{Opus: pkt}
		default:
		}
	}

	clear(m.acc[:])
	contributed := false
	nulled := 0

	for _, t := range tracks {
		switch t.handle.State() {
		case StatePaused, StateStopped:
			// No contribution; the tape ring keeps its history for a
			// later resume.

		case StateStopping, StateStarting:
			if m.tickTransition(t) {
				contributed = true
			}

		case StatePlaying:
			switch m.tickPlaying(t) {
			case tickContributed:
				contributed = true
			case tickNulled:
				nulled++
			}
		}
	}

	if !contributed {
		return TickResult{Nulled: nulled}
	}

	out := pcm.GetFrame()
	for i, v := range m.acc {
		out.Samples[i] = pcm.Clamp16(v)
	}
	return TickResult{Frame: out, Nulled: nulled}
}

type tickOutcome int

const (
	tickSilent tickOutcome = iota
	tickContributed
	tickNulled
)

// tickPlaying consumes at most one frame from a playing track and
// accumulates it. Reports whether the track contributed, was nulled, or hit
// end of stream.
func (m *Mixer) tickPlaying(t *Track) tickOutcome {
	select {
	case buf, ok := <-t.frames:
		if !ok {
			m.markEnded(t)
			return tickSilent
		}
		t.firstFrame.Store(true)
		if t.tape != nil {
			// Keep the tape window primed so a pause ramp has
			// recent audio to stretch.
			t.tape.Push(buf.Samples)
		}
		m.accumulate(buf.Samples, t.handle.Volume())
		t.handle.advance(pcm.FrameSize)
		buf.Release()
		return tickContributed
	default:
		return tickNulled
	}
}

// tickTransition drives the tape ramp for a track in Stopping or Starting,
// advancing the state machine when the ramp lands.
func (m *Mixer) tickTransition(t *Track) bool {
	if t.tape == nil {
		// Tape disabled: transitions collapse immediately.
		if !t.handle.transition(StateStopping, StatePaused) {
			t.handle.transition(StateStarting, StatePlaying)
		}
		return false
	}

	// Top up the ring so a starting ramp has fresh audio to accelerate
	// into.
	if t.tape.Buffered() < 2*pcm.FrameSamples {
		select {
		case buf, ok := <-t.frames:
			if ok {
				t.firstFrame.Store(true)
				t.tape.Push(buf.Samples)
				t.handle.advance(pcm.FrameSize)
				buf.Release()
			} else {
				m.markEnded(t)
			}
		default:
		}
	}

	t.tape.Fill(m.scratch[:])
	m.accumulate(m.scratch[:], t.handle.Volume())

	if t.tape.RampCompleted() {
		if !t.handle.transition(StateStopping, StatePaused) {
			t.handle.transition(StateStarting, StatePlaying)
		}
	}
	return true
}

// markEnded records that the processor closed the track's channel.
func (m *Mixer) markEnded(tr *Track) {
	tr.eos.Store(true)
	if !tr.handle.State().Terminal() {
		tr.handle.setState(StateStopped)
	}
}

// accumulate adds one frame into the mix buffer with 16.16 fixed-point
// volume scaling. Unity gain skips the multiply.
func (m *Mixer) accumulate(samples []int16, volume float32) {
	fixed := int64(volume*65536 + 0.5)
	if fixed == 65536 {
		for i, s := range samples {
			m.acc[i] += int32(s)
		}
		return
	}
	for i, s := range samples {
		m.acc[i] += int32(int64(s) * fixed >> 16)
	}
}

// Tracks returns a snapshot of the current track list (supervisor use).
func (m *Mixer) Tracks() []*Track {
	return m.snapshot()
}

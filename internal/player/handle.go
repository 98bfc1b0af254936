// Package player implements the per-guild audio engine: track processors,
// the 20 ms mixer and speak loop, the tape pause/resume effect, and the
// supervisor that turns engine observations into control-plane events.
package player

import (
	"math"
	"sync/atomic"

	"github.com/appujet/baja/pkg/pcm"
)

// State is the playback state machine of one track, stored as a 32-bit value
// in an atomic.Uint32, not as a single byte. With the tape effect enabled, pause and resume travel through
// Stopping and Starting while the transition ramp runs; without it they
// switch immediately. Stopped is terminal.
type State uint32

const (
	StatePlaying State = iota
	StateStopping
	StatePaused
	StateStarting
	StateStopped
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool { return s == StateStopped }

// Advancing reports whether position is expected to move in this state.
func (s State) Advancing() bool {
	return s == StatePlaying || s == StateStarting || s == StateStopping
}

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StateStopping:
		return "stopping"
	case StatePaused:
		return "paused"
	case StateStarting:
		return "starting"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Command is a control message consumed by the track's processor between
// packets.
type Command struct {
	// SeekMs is the seek target. Meaningful when Stop is false.
	SeekMs int64

	// Stop ends the decode loop.
	Stop bool
}

// commandBuffer bounds the handle's command channel.
const commandBuffer = 8

// Handle is the cloneable lock-free control surface of one track, shared
// between the control plane, the mixer, and the supervisor. All methods are
// safe for concurrent use; the hot path reads are single atomic loads.
type Handle struct {
	id      string
	guildID string

	state    atomic.Uint32
	volume   atomic.Uint32 // float32 bit pattern
	position atomic.Uint64 // per-channel sample frames played

	cmds chan Command

	// tape marks whether play/pause route through Starting/Stopping.
	tape bool
}

// newHandle creates a handle in the given initial state.
func newHandle(id, guildID string, tape bool, paused bool) *Handle {
	h := &Handle{
		id:      id,
		guildID: guildID,
		cmds:    make(chan Command, commandBuffer),
		tape:    tape,
	}
	h.volume.Store(math.Float32bits(1.0))
	if paused {
		h.state.Store(uint32(StatePaused))
	} else {
		h.state.Store(uint32(StatePlaying))
	}
	return h
}

// ID returns the track fingerprint (guild id plus monotonic counter).
func (h *Handle) ID() string { return h.id }

// State returns the current playback state.
func (h *Handle) State() State { return State(h.state.Load()) }

// setState stores the state unconditionally. Used by the mixer's transition
// machine and the processor's terminal paths.
func (h *Handle) setState(s State) { h.state.Store(uint32(s)) }

// transition swaps from into to, reporting whether the swap happened.
func (h *Handle) transition(from, to State) bool {
	return h.state.CompareAndSwap(uint32(from), uint32(to))
}

// Play resumes playback: Starting when the tape effect is enabled, Playing
// otherwise. A no-op unless the track is Paused or mid-Stopping.
func (h *Handle) Play() {
	target := StatePlaying
	if h.tape {
		target = StateStarting
	}
	if !h.transition(StatePaused, target) {
		h.transition(StateStopping, target)
	}
}

// Pause suspends playback: Stopping when the tape effect is enabled, Paused
// otherwise. A no-op unless the track is Playing or mid-Starting.
func (h *Handle) Pause() {
	target := StatePaused
	if h.tape {
		target = StateStopping
	}
	if !h.transition(StatePlaying, target) {
		h.transition(StateStarting, target)
	}
}

// Stop moves to the terminal state. The atomic store is sequentially
// consistent, so the next mixer tick observes it.
func (h *Handle) Stop() {
	h.setState(StateStopped)
	select {
	case h.cmds <- Command{Stop: true}:
	default:
		// Processor already draining or gone; terminal state suffices.
	}
}

// SetVolume stores the linear gain, clamped to [0, 5].
func (h *Handle) SetVolume(gain float32) {
	if gain < 0 {
		gain = 0
	}
	if gain > 5 {
		gain = 5
	}
	h.volume.Store(math.Float32bits(gain))
}

// Volume returns the current linear gain.
func (h *Handle) Volume() float32 {
	return math.Float32frombits(h.volume.Load())
}

// Seek repositions the track: the position atomic jumps immediately so
// monitors see the new value, and the processor receives a Seek command.
// Returns false when the command queue is full.
func (h *Handle) Seek(ms int64) bool {
	if ms < 0 {
		ms = 0
	}
	h.position.Store(uint64(ms * pcm.SampleRate / 1000))
	select {
	case h.cmds <- Command{SeekMs: ms}:
		return true
	default:
		return false
	}
}

// PositionMs returns the playback position in milliseconds.
func (h *Handle) PositionMs() int64 {
	return int64(h.position.Load()) * 1000 / pcm.SampleRate
}

// positionSamples returns the raw per-channel frame counter.
func (h *Handle) positionSamples() uint64 { return h.position.Load() }

// advance adds n per-channel frames to the position counter.
func (h *Handle) advance(n uint64) { h.position.Add(n) }

// commands exposes the processor side of the command queue.
func (h *Handle) commands() <-chan Command { return h.cmds }

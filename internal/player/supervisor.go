package player

import (
	"context"
	"time"

	"github.com/appujet/baja/internal/events"
	"github.com/appujet/baja/pkg/rtp"
)

// supervisorInterval is the polling cadence for track health checks.
const supervisorInterval = 500 * time.Millisecond

// supervisor watches a guild's tracks and turns engine observations into
// control-plane events: Stuck when position stagnates, End (with reason)
// when a track terminates, and the periodic PlayerUpdate. It holds the guild
// only through narrow accessors so the guild can die independently.
type supervisor struct {
	guildID   string
	mixer     *Mixer
	transport *rtp.Transport
	sink      events.Sink

	stuckThreshold time.Duration
	updateInterval time.Duration

	// stagnation bookkeeping per track id.
	lastPosition map[string]uint64
	stagnantFor  map[string]time.Duration
	stuckSent    map[string]bool
}

func newSupervisor(guildID string, mixer *Mixer, transport *rtp.Transport, sink events.Sink, stuckThresholdMs, updateIntervalSec int) *supervisor {
	return &supervisor{
		guildID:        guildID,
		mixer:          mixer,
		transport:      transport,
		sink:           sink,
		stuckThreshold: time.Duration(stuckThresholdMs) * time.Millisecond,
		updateInterval: time.Duration(updateIntervalSec) * time.Second,
		lastPosition:   make(map[string]uint64),
		stagnantFor:    make(map[string]time.Duration),
		stuckSent:      make(map[string]bool),
	}
}

// run polls until the guild context cancels.
func (s *supervisor) run(ctx context.Context) {
	ticker := time.NewTicker(supervisorInterval)
	defer ticker.Stop()

	var sinceUpdate time.Duration

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, t := range s.mixer.Tracks() {
			s.checkEnd(t)
			s.checkEndTime(t)
			s.checkStuck(t)
		}

		sinceUpdate += supervisorInterval
		if sinceUpdate >= s.updateInterval {
			sinceUpdate = 0
			s.transport.Keepalive()
			s.emitUpdate()
		}
	}
}

// checkEnd emits the terminal event sequence once a track has fully ended.
// An error before the first frame is a load failure; later errors are common
// exceptions on an otherwise finished track.
func (s *supervisor) checkEnd(t *Track) {
	if !t.handle.State().Terminal() || !t.eos.Load() || t.reported.Load() {
		return
	}
	if !t.reported.CompareAndSwap(false, true) {
		return
	}

	reason := events.EndReason(t.overriddenReason())

	var errMsg string
	select {
	case errMsg = <-t.errCh:
	default:
	}

	if errMsg != "" {
		severity := events.SeverityCommon
		if !t.firstFrame.Load() {
			severity = events.SeveritySuspicious
			if reason == "" {
				reason = events.ReasonLoadFailed
			}
		}
		s.sink.Emit(events.TrackException{
			GuildID:  s.guildID,
			Track:    t.handle.ID(),
			Message:  errMsg,
			Severity: severity,
		})
	}
	if reason == "" {
		reason = events.ReasonFinished
	}

	s.sink.Emit(events.TrackEnd{
		GuildID: s.guildID,
		Track:   t.handle.ID(),
		Reason:  reason,
	})

	delete(s.lastPosition, t.handle.ID())
	delete(s.stagnantFor, t.handle.ID())
	delete(s.stuckSent, t.handle.ID())
}

// checkEndTime stops a track that played past its configured end time.
func (s *supervisor) checkEndTime(t *Track) {
	if t.endTimeMs <= 0 || t.handle.State().Terminal() {
		return
	}
	if t.handle.PositionMs() >= t.endTimeMs {
		t.stop(string(events.ReasonFinished))
	}
}

// checkStuck emits a single TrackStuck per stagnation episode: position
// unchanged for the threshold while the state is Playing. Advisory only —
// the track keeps running.
func (s *supervisor) checkStuck(t *Track) {
	id := t.handle.ID()
	pos := t.handle.positionSamples()

	if t.handle.State() != StatePlaying {
		s.stagnantFor[id] = 0
		s.lastPosition[id] = pos
		return
	}

	if last, seen := s.lastPosition[id]; seen && last == pos {
		s.stagnantFor[id] += supervisorInterval
	} else {
		s.stagnantFor[id] = 0
		s.stuckSent[id] = false
	}
	s.lastPosition[id] = pos

	if s.stagnantFor[id] >= s.stuckThreshold && !s.stuckSent[id] {
		s.stuckSent[id] = true
		s.sink.Emit(events.TrackStuck{
			GuildID:     s.guildID,
			Track:       id,
			ThresholdMs: s.stuckThreshold.Milliseconds(),
		})
	}
}

// emitUpdate reports the leading track's position plus transport health.
func (s *supervisor) emitUpdate() {
	var positionMs int64
	for _, t := range s.mixer.Tracks() {
		if !t.handle.State().Terminal() {
			positionMs = t.handle.PositionMs()
			break
		}
	}
	s.sink.Emit(events.PlayerUpdate{
		GuildID:    s.guildID,
		PositionMs: positionMs,
		Connected:  true,
		PingMs:     s.transport.PingMs(),
	})
}

package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/appujet/baja/internal/config"
	"github.com/appujet/baja/internal/dsp"
	"github.com/appujet/baja/internal/events"
	"github.com/appujet/baja/internal/observe"
	"github.com/appujet/baja/internal/source"
	"github.com/appujet/baja/pkg/opus"
	"github.com/appujet/baja/pkg/rtp"
)

// PlayOptions carries the optional parameters of a play request.
type PlayOptions struct {
	// EndTimeMs stops the track once its position reaches this. 0 plays
	// to the end.
	EndTimeMs int64

	// NoReplace makes the request a no-op when a track is already active.
	NoReplace bool

	// Paused starts the track without producing audio.
	Paused bool
}

// Guild is one guild's audio engine: the mixer, the guild-level filter
// chain, the speak loop, the RTP transport, and the supervisor. Created by
// Manager.CreateGuild, destroyed explicitly or on fatal transport errors.
type Guild struct {
	id string

	mixer     *Mixer
	transport *rtp.Transport
	sink      events.Sink
	met       *observe.Metrics

	playerCfg  config.PlayerConfig
	readerOpts source.Options

	// chain is swapped whole under chainMu; the speak loop grabs the
	// pointer per tick and runs DSP outside the lock.
	chainMu   sync.Mutex
	chain     *dsp.Chain
	filterCfg dsp.Config

	mu       sync.Mutex
	current  *Track
	trackSeq uint64

	counters counters
	cancel   context.CancelFunc
	ctx      context.Context

	destroyed atomic.Bool
	onClosed  func(guildID string)
}

// newGuild wires up a guild engine and starts its speak loop and supervisor.
func newGuild(
	id string,
	endpoint string,
	ssrc uint32,
	secretKey []byte,
	mode rtp.Mode,
	cfg *config.Config,
	sink events.Sink,
	met *observe.Metrics,
	e2ee FrameTransformer,
	onClosed func(guildID string),
) (*Guild, error) {
	transport, err := rtp.Dial(endpoint)
	if err != nil {
		return nil, fmt.Errorf("guild %s: %w", id, err)
	}

	pkt, err := rtp.NewPacketizer(ssrc, secretKey, mode)
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("guild %s: %w", id, err)
	}

	enc, err := opus.NewEncoder(cfg.Player.OpusBitrate)
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("guild %s: %w", id, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Guild{
		id:        id,
		mixer:     NewMixer(),
		transport: transport,
		sink:      sink,
		met:       met,
		playerCfg: cfg.Player,
		readerOpts: source.Options{
			HighWater:     cfg.Reader.HighWaterBytes,
			SocketSkip:    cfg.Reader.SocketSkipBytes,
			OpenTimeout:   cfg.Reader.OpenTimeout(),
			ChunkTimeout:  cfg.Reader.ChunkTimeout(),
			RetryAttempts: cfg.Reader.RetryAttempts,
		},
		chain:    dsp.NewChain(dsp.Config{}),
		cancel:   cancel,
		ctx:      ctx,
		onClosed: onClosed,
	}
	if e2ee == nil {
		e2ee = noopTransformer{}
	}

	loop := &speakLoop{
		guildID:       id,
		mixer:         g.mixer,
		chain:         g.currentChain,
		enc:           enc,
		pkt:           pkt,
		transport:     transport,
		e2ee:          e2ee,
		silenceFrames: cfg.Player.SilenceFrames,
		counters:      &g.counters,
		met:           met,
		onFault: func(err error) {
			slog.Error("guild: speak loop fault", "guild", id, "error", err)
			g.Destroy()
		},
	}
	sup := newSupervisor(id, g.mixer, transport, sink,
		cfg.Player.StuckThresholdMs, cfg.Player.UpdateIntervalSeconds)

	go loop.run(ctx)
	go sup.run(ctx)

	met.ActiveGuilds.Add(ctx, 1)
	slog.Info("guild: created", "guild", id, "endpoint", endpoint, "mode", string(mode), "local", transport.LocalAddr())
	return g, nil
}

// currentChain returns the active filter chain pointer.
func (g *Guild) currentChain() *dsp.Chain {
	g.chainMu.Lock()
	defer g.chainMu.Unlock()
	return g.chain
}

// Play starts a new track from src, replacing any current one (unless
// NoReplace is set and something is already active). Source opening, probing
// and decoding run on the track's worker; failures surface as TrackException
// + TrackEnd(loadFailed) through the supervisor.
func (g *Guild) Play(src source.Resolved, opts PlayOptions) error {
	if g.destroyed.Load() {
		return fmt.Errorf("guild %s: destroyed", g.id)
	}

	g.mu.Lock()
	if opts.NoReplace && g.current != nil && !g.current.handle.State().Terminal() {
		g.mu.Unlock()
		return nil
	}
	old := g.current

	g.trackSeq++
	id := fmt.Sprintf("%s:%d", g.id, g.trackSeq)

	var tape *Tape
	if g.playerCfg.TapeDurationMs > 0 {
		tape = NewTape()
	}

	trackCtx, trackCancel := context.WithCancel(g.ctx)
	handle := newHandle(id, g.id, tape != nil, opts.Paused)
	track := newTrack(handle, tape, opts.EndTimeMs, trackCancel)
	g.current = track
	g.mu.Unlock()

	if old != nil && !old.handle.State().Terminal() {
		old.stop(string(events.ReasonReplaced))
		// Report synchronously so TrackEnd(replaced) always precedes the
		// new track's TrackStart.
		if old.reported.CompareAndSwap(false, true) {
			g.sink.Emit(events.TrackEnd{GuildID: g.id, Track: old.handle.ID(), Reason: events.ReasonReplaced})
		}
	}

	g.mixer.Add(track)
	g.met.ActiveTracks.Add(g.ctx, 1)

	proc := &processor{
		track:         track,
		src:           src,
		srcOpts:       g.readerOpts,
		passthroughOK: g.passthroughFree,
		onOpen: func(passthrough bool) {
			track.isPassthrough.Store(passthrough)
			g.sink.Emit(events.TrackStart{GuildID: g.id, Track: id})
		},
		met: g.met,
	}
	go func() {
		defer g.met.ActiveTracks.Add(g.ctx, -1)
		proc.run(trackCtx)
	}()

	slog.Info("guild: play", "guild", g.id, "track", id, "paused", opts.Paused, "noReplace", opts.NoReplace)
	return nil
}

// passthroughFree reports whether the passthrough slot is open: no active
// filters and no live passthrough track.
func (g *Guild) passthroughFree() bool {
	if g.currentChain().Enabled() {
		return false
	}
	for _, t := range g.mixer.Tracks() {
		if t.isPassthrough.Load() && !t.handle.State().Terminal() {
			return false
		}
	}
	return true
}

// Pause suspends or resumes the current track, running the tape transition
// when the guild has one configured.
func (g *Guild) Pause(paused bool) {
	t := g.currentTrack()
	if t == nil {
		return
	}
	if t.tape != nil {
		duration := float64(g.playerCfg.TapeDurationMs)
		curve := Curve(g.playerCfg.TapeCurve)
		if paused {
			t.tape.RampDown(duration, curve)
		} else {
			t.tape.RampUp(duration, curve)
		}
	}
	if paused {
		t.handle.Pause()
	} else {
		t.handle.Play()
	}
}

// Stop ends the current track with reason "stopped".
func (g *Guild) Stop() {
	if t := g.currentTrack(); t != nil {
		t.stop(string(events.ReasonStopped))
	}
}

// Seek repositions the current track.
func (g *Guild) Seek(ms int64) {
	t := g.currentTrack()
	if t == nil {
		return
	}
	if t.tape != nil {
		t.tape.Reset()
	}
	// Filter state (EQ history, LFO phase, timescale FIFO) must not carry
	// across a seek; a fresh chain swap resets it without touching the
	// speak loop's in-flight pointer.
	g.chainMu.Lock()
	g.chain = dsp.NewChain(g.filterCfg)
	g.chainMu.Unlock()
	if !t.handle.Seek(ms) {
		slog.Warn("guild: seek dropped, command queue full", "guild", g.id, "targetMs", ms)
	}
}

// SetVolume applies the linear gain (0.0–5.0) to the current track.
func (g *Guild) SetVolume(gain float32) {
	if t := g.currentTrack(); t != nil {
		t.handle.SetVolume(gain)
	}
}

// SetFilters builds a fresh chain from cfg and swaps it in whole. Filters
// absent from cfg are gone; there is no merge.
func (g *Guild) SetFilters(cfg dsp.Config) {
	chain := dsp.NewChain(cfg)
	g.chainMu.Lock()
	g.chain = chain
	g.filterCfg = cfg
	g.chainMu.Unlock()
	slog.Debug("guild: filters replaced", "guild", g.id, "active", chain.Enabled())
}

// Counters returns the frames sent/nulled totals.
func (g *Guild) Counters() (sent, nulled uint64) {
	return g.counters.framesSent.Load(), g.counters.framesNulled.Load()
}

// currentTrack returns the live track, or nil.
func (g *Guild) currentTrack() *Track {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil || g.current.handle.State().Terminal() {
		return nil
	}
	return g.current
}

// Destroy tears the guild down: cancels the speak loop and supervisor, ends
// the current track with reason "cleanup", and closes the socket. Idempotent.
func (g *Guild) Destroy() {
	if !g.destroyed.CompareAndSwap(false, true) {
		return
	}

	g.mu.Lock()
	t := g.current
	g.current = nil
	g.mu.Unlock()

	if t != nil && !t.handle.State().Terminal() {
		t.stop(string(events.ReasonCleanup))
		// The supervisor dies with the guild context, so report the
		// cleanup end here.
		if t.reported.CompareAndSwap(false, true) {
			g.sink.Emit(events.TrackEnd{GuildID: g.id, Track: t.handle.ID(), Reason: events.ReasonCleanup})
		}
	}

	g.cancel()
	g.transport.Close()
	g.met.ActiveGuilds.Add(context.Background(), -1)
	if g.onClosed != nil {
		g.onClosed(g.id)
	}
	slog.Info("guild: destroyed", "guild", g.id)
}

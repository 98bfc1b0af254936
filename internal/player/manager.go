package player

import (
	"context"
	"fmt"
	"sync"

	"github.com/appujet/baja/internal/config"
	"github.com/appujet/baja/internal/dsp"
	"github.com/appujet/baja/internal/events"
	"github.com/appujet/baja/internal/observe"
	"github.com/appujet/baja/internal/source"
	"github.com/appujet/baja/pkg/pcm"
	"github.com/appujet/baja/pkg/rtp"
)

// Manager owns all guild engines and is the surface the control plane calls.
// All methods are safe for concurrent use.
type Manager struct {
	cfg  *config.Config
	sink events.Sink
	met  *observe.Metrics

	mu     sync.Mutex
	guilds map[string]*Guild
}

// NewManager creates a manager. sink receives all supervisor events; nil
// selects the log sink.
func NewManager(cfg *config.Config, sink events.Sink) *Manager {
	if sink == nil {
		sink = events.LogSink{}
	}
	pcm.InitDefaultPool(pcm.PoolConfig{
		MaxBytes:         cfg.Pool.MaxBytes,
		MaxBucketEntries: cfg.Pool.MaxBucketEntries,
		IdleEvict:        cfg.Pool.IdleEvict(),
	})
	return &Manager{
		cfg:    cfg,
		sink:   sink,
		met:    observe.DefaultMetrics(),
		guilds: make(map[string]*Guild),
	}
}

// CreateGuild sets up the audio engine for a guild with a negotiated voice
// session: UDP endpoint, SSRC, 32-byte secret key, and AEAD mode. Creating
// over an existing guild destroys the old engine first.
func (m *Manager) CreateGuild(guildID, endpoint string, ssrc uint32, secretKey []byte, mode rtp.Mode) error {
	m.mu.Lock()
	old := m.guilds[guildID]
	delete(m.guilds, guildID)
	m.mu.Unlock()
	if old != nil {
		old.Destroy()
	}

	g, err := newGuild(guildID, endpoint, ssrc, secretKey, mode, m.cfg, m.sink, m.met, nil, m.forget)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.guilds[guildID] = g
	m.mu.Unlock()
	return nil
}

// forget drops a guild that destroyed itself (fault path).
func (m *Manager) forget(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.guilds, guildID)
}

// guild looks up a guild engine.
func (m *Manager) guild(guildID string) (*Guild, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guilds[guildID]
	if !ok {
		return nil, fmt.Errorf("player: no engine for guild %s", guildID)
	}
	return g, nil
}

// Play starts a track on the guild's engine.
func (m *Manager) Play(guildID string, src source.Resolved, opts PlayOptions) error {
	g, err := m.guild(guildID)
	if err != nil {
		return err
	}
	return g.Play(src, opts)
}

// Pause suspends or resumes the guild's current track.
func (m *Manager) Pause(guildID string, paused bool) error {
	g, err := m.guild(guildID)
	if err != nil {
		return err
	}
	g.Pause(paused)
	return nil
}

// Stop ends the guild's current track.
func (m *Manager) Stop(guildID string) error {
	g, err := m.guild(guildID)
	if err != nil {
		return err
	}
	g.Stop()
	return nil
}

// Seek repositions the guild's current track.
func (m *Manager) Seek(guildID string, ms int64) error {
	g, err := m.guild(guildID)
	if err != nil {
		return err
	}
	g.Seek(ms)
	return nil
}

// SetVolume applies a linear gain in [0.0, 5.0]; values above 1.0 can clip.
func (m *Manager) SetVolume(guildID string, gain float32) error {
	g, err := m.guild(guildID)
	if err != nil {
		return err
	}
	g.SetVolume(gain)
	return nil
}

// SetFilters replaces the guild's filter chain from the wire configuration.
func (m *Manager) SetFilters(guildID string, cfg dsp.Config) error {
	g, err := m.guild(guildID)
	if err != nil {
		return err
	}
	g.SetFilters(cfg)
	return nil
}

// Destroy tears down the guild's engine.
func (m *Manager) Destroy(guildID string) error {
	m.mu.Lock()
	g, ok := m.guilds[guildID]
	delete(m.guilds, guildID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("player: no engine for guild %s", guildID)
	}
	g.Destroy()
	return nil
}

// NotifyGatewayClosed reports a voice gateway close underneath a guild. The
// event is forwarded to the control plane and the engine is destroyed on
// abnormal closes.
func (m *Manager) NotifyGatewayClosed(guildID string, code int, reason string, byRemote bool) {
	m.sink.Emit(events.WebSocketClosed{
		GuildID:  guildID,
		Code:     code,
		Reason:   reason,
		ByRemote: byRemote,
	})
	if code != 1000 {
		_ = m.Destroy(guildID)
	}
}

// Stats is a point-in-time snapshot of engine health.
type Stats struct {
	Guilds       int
	FramesSent   uint64
	FramesNulled uint64
	Pool         pcm.Stats
}

// Snapshot aggregates counters across guilds and records pool occupancy.
func (m *Manager) Snapshot(ctx context.Context) Stats {
	m.mu.Lock()
	guilds := make([]*Guild, 0, len(m.guilds))
	for _, g := range m.guilds {
		guilds = append(guilds, g)
	}
	m.mu.Unlock()

	s := Stats{Guilds: len(guilds), Pool: pcm.DefaultPool().Stats()}
	for _, g := range guilds {
		sent, nulled := g.Counters()
		s.FramesSent += sent
		s.FramesNulled += nulled
	}
	m.met.PoolBytes.Record(ctx, int64(s.Pool.TotalBytes))
	return s
}

// Shutdown destroys every guild engine.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	guilds := make([]*Guild, 0, len(m.guilds))
	for _, g := range m.guilds {
		guilds = append(guilds, g)
	}
	m.guilds = make(map[string]*Guild)
	m.mu.Unlock()

	for _, g := range guilds {
		g.Destroy()
	}
}

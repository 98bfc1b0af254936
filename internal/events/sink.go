package events

import "log/slog"

// LogSink writes events to the structured log. It is the default sink when
// no control-plane endpoint is configured.
type LogSink struct{}

// Emit logs the event: track start and end at info level, exceptions, stuck
// tracks and closed websockets at warn level, player updates at debug level.
func (LogSink) Emit(e Event) {
	switch ev := e.(type) {
	case TrackStart:
		slog.Info("event: track start", "guild", ev.GuildID, "track", ev.Track)
	case TrackEnd:
		slog.Info("event: track end", "guild", ev.GuildID, "track", ev.Track, "reason", ev.Reason)
	case TrackException:
		slog.Warn("event: track exception", "guild", ev.GuildID, "track", ev.Track, "severity", ev.Severity, "message", ev.Message)
	case TrackStuck:
		slog.Warn("event: track stuck", "guild", ev.GuildID, "track", ev.Track, "thresholdMs", ev.ThresholdMs)
	case PlayerUpdate:
		slog.Debug("event: player update", "guild", ev.GuildID, "positionMs", ev.PositionMs, "connected", ev.Connected, "pingMs", ev.PingMs)
	case WebSocketClosed:
		slog.Warn("event: websocket closed", "guild", ev.GuildID, "code", ev.Code, "reason", ev.Reason, "byRemote", ev.ByRemote)
	}
}

// ChanSink buffers events on a channel for tests. Events overflow-drop once
// the buffer is full so a stalled test consumer cannot block the supervisor.
type ChanSink struct {
	C chan Event
}

// NewChanSink creates a ChanSink with the given buffer size.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{C: make(chan Event, buffer)}
}

// Emit delivers e to the channel, dropping when full.
func (s *ChanSink) Emit(e Event) {
	select {
	case s.C <- e:
	default:
	}
}

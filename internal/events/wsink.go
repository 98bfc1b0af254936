package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsDialTimeout  = 10 * time.Second
	wsBuffer       = 256
)

// WebSocketSink ships events to the control plane as Lavalink v4 JSON
// messages over a WebSocket connection. A background writer drains a bounded
// queue; when the queue overflows or the connection is down, events are
// dropped with a warning rather than stalling the supervisor.
type WebSocketSink struct {
	url       string
	sessionID string

	queue  chan Event
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
}

// NewWebSocketSink starts a sink writing to url. The connection is tagged
// with a generated session id header; dialing and redialing happen in the
// background.
func NewWebSocketSink(url string) *WebSocketSink {
	ctx, cancel := context.WithCancel(context.Background())
	s := &WebSocketSink{
		url:       url,
		sessionID: uuid.NewString(),
		queue:     make(chan Event, wsBuffer),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// SessionID returns the generated id sent on the Session-Id header.
func (s *WebSocketSink) SessionID() string { return s.sessionID }

// Emit enqueues e for delivery, dropping when the queue is full.
func (s *WebSocketSink) Emit(e Event) {
	select {
	case s.queue <- e:
	default:
		slog.Warn("events: queue full, dropping event", "guild", e.Guild())
	}
}

// Close stops the writer and closes the connection.
func (s *WebSocketSink) Close() error {
	s.closeOnce.Do(s.cancel)
	<-s.done
	return nil
}

// run owns the connection: dial, drain the queue, redial on failure.
func (s *WebSocketSink) run(ctx context.Context) {
	defer close(s.done)

	var conn *websocket.Conn
	defer func() {
		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "shutdown")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.queue:
			payload, err := json.Marshal(wireEvent(e))
			if err != nil {
				slog.Warn("events: marshal failed", "error", err)
				continue
			}

			for attempt := 0; attempt < 2; attempt++ {
				if conn == nil {
					conn = s.dial(ctx)
					if conn == nil {
						break // event dropped; redial on the next one
					}
				}
				wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
				err = conn.Write(wctx, websocket.MessageText, payload)
				cancel()
				if err == nil {
					break
				}
				conn.Close(websocket.StatusAbnormalClosure, "write failed")
				conn = nil
			}
		}
	}
}

func (s *WebSocketSink) dial(ctx context.Context) *websocket.Conn {
	dctx, cancel := context.WithTimeout(ctx, wsDialTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Session-Id", s.sessionID)

	conn, _, err := websocket.Dial(dctx, s.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		slog.Warn("events: dial failed", "url", s.url, "error", err)
		return nil
	}
	slog.Info("events: connected to control plane", "url", s.url, "sessionId", s.sessionID)
	return conn
}

// wireEvent converts an Event to its Lavalink v4 JSON shape.
func wireEvent(e Event) map[string]any {
	switch ev := e.(type) {
	case TrackStart:
		return map[string]any{
			"op": "event", "type": "TrackStartEvent",
			"guildId": ev.GuildID, "track": ev.Track,
		}
	case TrackEnd:
		return map[string]any{
			"op": "event", "type": "TrackEndEvent",
			"guildId": ev.GuildID, "track": ev.Track, "reason": string(ev.Reason),
		}
	case TrackException:
		return map[string]any{
			"op": "event", "type": "TrackExceptionEvent",
			"guildId": ev.GuildID, "track": ev.Track,
			"exception": map[string]any{
				"message": ev.Message, "severity": string(ev.Severity),
			},
		}
	case TrackStuck:
		return map[string]any{
			"op": "event", "type": "TrackStuckEvent",
			"guildId": ev.GuildID, "track": ev.Track, "thresholdMs": ev.ThresholdMs,
		}
	case PlayerUpdate:
		return map[string]any{
			"op": "playerUpdate", "guildId": ev.GuildID,
			"state": map[string]any{
				"time":      time.Now().UnixMilli(),
				"position":  ev.PositionMs,
				"connected": ev.Connected,
				"ping":      ev.PingMs,
			},
		}
	case WebSocketClosed:
		return map[string]any{
			"op": "event", "type": "WebSocketClosedEvent",
			"guildId": ev.GuildID, "code": ev.Code, "reason": ev.Reason, "byRemote": ev.ByRemote,
		}
	}
	return map[string]any{"op": "event", "guildId": e.Guild()}
}

package events

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEndReasonMayStartNext(t *testing.T) {
	cases := map[EndReason]bool{
		ReasonFinished:   true,
		ReasonLoadFailed: true,
		ReasonStopped:    false,
		ReasonReplaced:   false,
		ReasonCleanup:    false,
	}
	for reason, want := range cases {
		if got := reason.MayStartNext(); got != want {
			t.Errorf("%s.MayStartNext() = %v, want %v", reason, got, want)
		}
	}
}

func TestWireEventShapes(t *testing.T) {
	cases := []struct {
		name  string
		event Event
		want  map[string]any
	}{
		{
			name:  "track start",
			event: TrackStart{GuildID: "123", Track: "123:1"},
			want: map[string]any{
				"op": "event", "type": "TrackStartEvent",
				"guildId": "123", "track": "123:1",
			},
		},
		{
			name:  "track end",
			event: TrackEnd{GuildID: "123", Track: "123:1", Reason: ReasonReplaced},
			want: map[string]any{
				"op": "event", "type": "TrackEndEvent",
				"guildId": "123", "track": "123:1", "reason": "replaced",
			},
		},
		{
			name:  "track exception",
			event: TrackException{GuildID: "123", Track: "123:1", Message: "boom", Severity: SeverityFault},
			want: map[string]any{
				"op": "event", "type": "TrackExceptionEvent",
				"guildId": "123", "track": "123:1",
				"exception": map[string]any{"message": "boom", "severity": "fault"},
			},
		},
		{
			name:  "track stuck",
			event: TrackStuck{GuildID: "123", Track: "123:1", ThresholdMs: 10000},
			want: map[string]any{
				"op": "event", "type": "TrackStuckEvent",
				"guildId": "123", "track": "123:1", "thresholdMs": int64(10000),
			},
		},
		{
			name:  "websocket closed",
			event: WebSocketClosed{GuildID: "123", Code: 4006, Reason: "session expired", ByRemote: true},
			want: map[string]any{
				"op": "event", "type": "WebSocketClosedEvent",
				"guildId": "123", "code": 4006, "reason": "session expired", "byRemote": true,
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := wireEvent(c.event)
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("wireEvent mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWirePlayerUpdate(t *testing.T) {
	got := wireEvent(PlayerUpdate{GuildID: "9", PositionMs: 1500, Connected: true, PingMs: 40})
	if got["op"] != "playerUpdate" || got["guildId"] != "9" {
		t.Fatalf("envelope = %v", got)
	}
	state, ok := got["state"].(map[string]any)
	if !ok {
		t.Fatalf("state missing: %v", got)
	}
	if state["position"] != int64(1500) || state["connected"] != true || state["ping"] != int64(40) {
		t.Errorf("state = %v", state)
	}
	if _, ok := state["time"]; !ok {
		t.Error("state.time missing")
	}
}

func TestChanSinkDropsWhenFull(t *testing.T) {
	s := NewChanSink(1)
	s.Emit(TrackStart{GuildID: "1"})
	s.Emit(TrackStart{GuildID: "2"}) // dropped, must not block

	if len(s.C) != 1 {
		t.Fatalf("buffered = %d, want 1", len(s.C))
	}
	e := <-s.C
	if e.Guild() != "1" {
		t.Errorf("kept event guild = %s, want 1", e.Guild())
	}
}

package player

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/appujet/baja/internal/dsp"
	"github.com/appujet/baja/internal/observe"
	"github.com/appujet/baja/pkg/opus"
	"github.com/appujet/baja/pkg/pcm"
	"github.com/appujet/baja/pkg/rtp"
)

// maxConsecutiveSendErrors raises a guild fault once encode/seal failures
// persist across this many ticks.
const maxConsecutiveSendErrors = 10

// FrameTransformer is the end-to-end encryption hook applied between Opus
// encoding and transport AEAD. The default is pass-through; an MLS group
// session implementation can replace it per guild.
type FrameTransformer interface {
	TransformOpus(pkt []byte) ([]byte, error)
}

// noopTransformer passes frames through unchanged.
type noopTransformer struct{}

func (noopTransformer) TransformOpus(pkt []byte) ([]byte, error) { return pkt, nil }

// counters are the per-guild transmission statistics shared with the
// supervisor.
type counters struct {
	framesSent   atomic.Uint64
	framesNulled atomic.Uint64
}

// speakLoop drives one guild's 20 ms cadence: pull a frame from the mixer,
// run the guild filter chain, Opus-encode, apply E2EE and transport AEAD,
// and transmit. The interval ticker drops missed ticks, so a stall skips
// frames rather than bunching them.
type speakLoop struct {
	guildID   string
	mixer     *Mixer
	chain     func() *dsp.Chain // current guild chain; swapped whole elsewhere
	enc       *opus.Encoder
	pkt       *rtp.Packetizer
	transport *rtp.Transport
	e2ee      FrameTransformer

	silenceFrames int
	counters      *counters
	met           *observe.Metrics

	// onFault cancels the guild after persistent encode/seal failure.
	onFault func(err error)
}

// run loops until the guild context cancels.
func (l *speakLoop) run(ctx context.Context) {
	ticker := time.NewTicker(pcm.FrameMs * time.Millisecond)
	defer ticker.Stop()

	silenceSent := l.silenceFrames // nothing to flush before first audio
	sendErrors := 0
	guildAttr := observe.GuildAttr(l.guildID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		start := time.Now()

		out := l.mixer.Tick()
		if out.Nulled > 0 {
			l.counters.framesNulled.Add(uint64(out.Nulled))
			l.met.FramesNulled.Add(ctx, int64(out.Nulled), guildAttr)
		}

		var payload []byte
		var err error

		switch {
		case out.Opus != nil:
			payload = out.Opus
			silenceSent = 0

		case out.Frame != nil:
			chain := l.chain()
			chain.Process(out.Frame.Samples)
			payload, err = l.enc.Encode(out.Frame.Samples)
			out.Frame.Release()
			silenceSent = 0

		default:
			// Timescale buffers output across ticks: with the FIFO
			// still charged, a silent mixer tick must keep draining.
			if chain := l.chain(); chain.TimescaleActive() {
				frame := pcm.GetFrame()
				chain.Process(frame.Samples)
				payload, err = l.enc.Encode(frame.Samples)
				frame.Release()
				break
			}

			// Silence policy: a few silence frames close the Opus
			// decoder state on the far side, then transmission
			// pauses entirely.
			if silenceSent >= l.silenceFrames {
				continue
			}
			silenceSent++
			payload = opus.SilenceFrame
		}

		if err == nil {
			payload, err = l.e2ee.TransformOpus(payload)
		}

		var sealed []byte
		if err == nil {
			sealed, err = l.pkt.Seal(payload)
		}

		if err != nil {
			l.counters.framesNulled.Add(1)
			l.met.FramesNulled.Add(ctx, 1, guildAttr)
			sendErrors++
			slog.Warn("speakloop: tick failed", "guild", l.guildID, "error", err)
			if sendErrors >= maxConsecutiveSendErrors {
				l.onFault(err)
				return
			}
			continue
		}
		sendErrors = 0

		if err := l.transport.Send(sealed); err != nil {
			slog.Warn("speakloop: send failed", "guild", l.guildID, "error", err)
			continue
		}

		l.counters.framesSent.Add(1)
		l.met.FramesSent.Add(ctx, 1, guildAttr)
		l.met.TickDuration.Record(ctx, time.Since(start).Seconds())
	}
}

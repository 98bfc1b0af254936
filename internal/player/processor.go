package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/appujet/baja/internal/observe"
	"github.com/appujet/baja/internal/probe"
	"github.com/appujet/baja/internal/resample"
	"github.com/appujet/baja/internal/source"
	"github.com/appujet/baja/pkg/pcm"
)

// maxConsecutiveDecodeErrors bounds how many bad packets in a row a track
// tolerates before declaring a fatal end.
const maxConsecutiveDecodeErrors = 3

// commandDrainLimit bounds how many queued commands one loop iteration
// services, so a command flood cannot starve decoding.
const commandDrainLimit = 8

// processor owns one track's decode worker: open the source, probe it, then
// demux/decode/resample/partition until end of stream or a Stop command.
// Runs on its own goroutine because decoding is synchronous blocking work.
type processor struct {
	track   *Track
	src     source.Resolved
	srcOpts source.Options

	// passthroughOK folds in the guild-level conditions (no active
	// filters, free passthrough slot) at probe time.
	passthroughOK func() bool

	// onOpen fires once the pipeline opened successfully, before the
	// first frame; the guild emits TrackStart from it.
	onOpen func(passthrough bool)

	met *observe.Metrics
}

// run executes the processor until the stream ends or the context cancels.
// The one-shot error channel receives at most one message; closing the PCM
// channel without one signals a clean end of stream.
func (p *processor) run(ctx context.Context) {
	defer close(p.track.frames)
	defer close(p.track.packets)

	byteSrc, err := source.Open(p.src, p.srcOpts)
	if err != nil {
		p.fail(fmt.Errorf("open source: %w", err))
		return
	}
	defer byteSrc.Close()

	hint := p.src.Hint
	if hint == "" {
		hint = byteSrc.ContentType()
	}
	allowPassthrough := p.src.AllowPassthrough && p.passthroughOK()

	opened, err := probe.Open(byteSrc, hint, allowPassthrough)
	if err != nil {
		p.fail(fmt.Errorf("probe source: %w", err))
		return
	}
	defer opened.Close()

	if p.onOpen != nil {
		p.onOpen(opened.Passthrough())
	}

	if opened.Passthrough() {
		p.runPassthrough(ctx, opened.Packets)
		return
	}
	p.runTranscode(ctx, opened)
}

// runPassthrough forwards raw Opus packets onto the bounded packet channel.
// The mixer consumes one per tick, so the channel's capacity paces the
// demuxer naturally.
func (p *processor) runPassthrough(ctx context.Context, packets probe.PacketReader) {
	for {
		if p.drainCommands(nil, nil) {
			return
		}

		pkt, err := packets.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			p.fail(fmt.Errorf("read packet: %w", err))
			return
		}

		select {
		case p.track.packets <- pkt:
		case <-ctx.Done():
			return
		}
	}
}

// runTranscode decodes to PCM, resamples to 48 kHz, and partitions output
// into exact frames on the bounded PCM channel.
func (p *processor) runTranscode(ctx context.Context, opened *probe.Opened) {
	dec := opened.Decoder
	rs := resample.New(dec.SampleRate(), dec.Channels())

	slog.Debug("processor: transcoding",
		"track", p.track.handle.ID(),
		"kind", opened.Kind,
		"sourceRate", dec.SampleRate(),
		"channels", dec.Channels(),
	)

	// pending accumulates resampled samples until full frames split off.
	var pending []int16
	decodeErrors := 0

	for {
		if p.drainCommands(dec, func() {
			rs.Reset()
			pending = pending[:0]
		}) {
			return
		}

		block, err := dec.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return // clean end; trailing partial frame is dropped
			}
			decodeErrors++
			p.met.RecordDecodeError(ctx, string(opened.Kind))
			if decodeErrors >= maxConsecutiveDecodeErrors {
				p.fail(fmt.Errorf("decode: %d consecutive errors, last: %w", decodeErrors, err))
				return
			}
			slog.Warn("processor: recoverable decode error",
				"track", p.track.handle.ID(), "error", err)
			continue
		}
		decodeErrors = 0
		if len(block) == 0 {
			continue
		}

		if rs.Passthrough() {
			pending = append(pending, block...)
		} else {
			pending = rs.Process(block, pending)
		}

		// Ship every complete frame; sending blocks when the mixer is
		// behind, which is the backpressure path.
		for len(pending) >= pcm.FrameSamples {
			buf := pcm.GetFrame()
			copy(buf.Samples, pending[:pcm.FrameSamples])
			n := copy(pending, pending[pcm.FrameSamples:])
			pending = pending[:n]

			select {
			case p.track.frames <- buf:
			case <-ctx.Done():
				buf.Release()
				return
			}
		}
	}
}

// drainCommands services up to commandDrainLimit queued commands. Returns
// true when a Stop arrived. onSeek, when non-nil, resets downstream state
// after a successful demuxer seek.
func (p *processor) drainCommands(dec probe.Decoder, onSeek func()) bool {
	for i := 0; i < commandDrainLimit; i++ {
		select {
		case cmd := <-p.track.handle.commands():
			if cmd.Stop {
				return true
			}
			if dec == nil {
				continue // passthrough has no seek surface
			}
			if err := dec.Seek(cmd.SeekMs); err != nil {
				slog.Warn("processor: seek failed",
					"track", p.track.handle.ID(), "targetMs", cmd.SeekMs, "error", err)
				continue
			}
			if onSeek != nil {
				onSeek()
			}
		default:
			return false
		}
	}
	return false
}

// fail pushes the one-shot error and exits. The supervisor turns it into a
// TrackException followed by the appropriate end reason.
func (p *processor) fail(err error) {
	slog.Warn("processor: fatal", "track", p.track.handle.ID(), "error", err)
	select {
	case p.track.errCh <- err.Error():
	default:
	}
}

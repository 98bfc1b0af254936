package probe

import (
	"errors"
	"fmt"
	"io"

	"github.com/jonas747/ogg"

	"github.com/appujet/baja/pkg/opus"
	"github.com/appujet/baja/pkg/pcm"
)

// oggHeaderPackets is the number of metadata packets (OpusHead, OpusTags)
// preceding audio in an Ogg/Opus stream.
const oggHeaderPackets = 2

// oggOpusPackets streams raw Opus packets out of an Ogg container for the
// passthrough path.
type oggOpusPackets struct {
	src     byteStream
	dec     *ogg.PacketDecoder
	skipped int
}

// byteStream is the subset of the byte source the ogg readers need.
type byteStream interface {
	io.Reader
	io.Seeker
	io.Closer
}

func newOggOpusPackets(src byteStream) (*oggOpusPackets, error) {
	return &oggOpusPackets{
		src: src,
		dec: ogg.NewPacketDecoder(ogg.NewDecoder(src)),
	}, nil
}

func (p *oggOpusPackets) Next() ([]byte, error) {
	for {
		packet, _, err := p.dec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("probe: ogg packet: %w", err)
		}
		if p.skipped < oggHeaderPackets {
			p.skipped++
			continue
		}
		// Copy out: the demuxer reuses its page buffer.
		out := make([]byte, len(packet))
		copy(out, packet)
		return out, nil
	}
}

func (p *oggOpusPackets) Close() error { return p.src.Close() }

// oggOpusDecoder transcodes Ogg/Opus to PCM when passthrough is not allowed
// (guild filters active, or the slot is taken). Output is already 48 kHz
// stereo, so the resampler runs in identity mode.
type oggOpusDecoder struct {
	packets *oggOpusPackets
	dec     *opus.Decoder
}

func newOggOpusDecoder(src byteStream) (*oggOpusDecoder, error) {
	dec, err := opus.NewDecoder()
	if err != nil {
		return nil, err
	}
	packets, err := newOggOpusPackets(src)
	if err != nil {
		return nil, err
	}
	return &oggOpusDecoder{packets: packets, dec: dec}, nil
}

func (d *oggOpusDecoder) Read() ([]int16, error) {
	pkt, err := d.packets.Next()
	if err != nil {
		return nil, err
	}
	return d.dec.Decode(pkt)
}

func (d *oggOpusDecoder) SampleRate() int { return pcm.SampleRate }
func (d *oggOpusDecoder) Channels() int   { return pcm.Channels }

// Seek rewinds the container and demuxes forward to the target time. Ogg
// carries no packet index, but audio packets are a fixed 20 ms, so the
// packet count gives the position without decoding.
func (d *oggOpusDecoder) Seek(ms int64) error {
	if err := d.packets.rewind(); err != nil {
		return err
	}
	skip := ms / pcm.FrameMs
	for i := int64(0); i < skip; i++ {
		if _, err := d.packets.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (d *oggOpusDecoder) Close() error { return d.packets.Close() }

// rewind restarts demuxing from the top of the stream.
func (p *oggOpusPackets) rewind() error {
	if _, err := p.src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("probe: ogg rewind: %w", err)
	}
	p.dec = ogg.NewPacketDecoder(ogg.NewDecoder(p.src))
	p.skipped = 0
	return nil
}

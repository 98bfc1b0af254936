// Package probe detects the container and codec of a byte source and opens
// the matching demuxer/decoder. Ogg-wrapped Opus can be relayed without
// transcoding (passthrough) when the caller permits it; everything else
// decodes to interleaved int16 PCM at its native rate for the resampler.
package probe

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/appujet/baja/internal/source"
)

// Kind identifies a detected container/codec pairing.
type Kind string

const (
	KindOggOpus   Kind = "ogg/opus"
	KindOggVorbis Kind = "ogg/vorbis"
	KindMP3       Kind = "mp3"
	KindFLAC      Kind = "flac"
	KindWAV       Kind = "wav"
)

// ErrUnknownFormat is returned when neither sniffing nor the hint identifies
// the container.
var ErrUnknownFormat = errors.New("probe: unknown container format")

// Decoder produces interleaved int16 PCM at the source's native rate.
type Decoder interface {
	// Read returns the next block of interleaved samples, io.EOF at the
	// end of the stream.
	Read() ([]int16, error)

	SampleRate() int
	Channels() int

	// Seek repositions decoding at the given track time.
	Seek(ms int64) error

	Close() error
}

// PacketReader yields raw Opus packets for the passthrough path.
type PacketReader interface {
	// Next returns the next packet's bytes, io.EOF at end of stream.
	Next() ([]byte, error)
	Close() error
}

// Opened is the probe result: exactly one of Decoder or Packets is set.
type Opened struct {
	Kind    Kind
	Decoder Decoder
	Packets PacketReader
}

// Passthrough reports whether the track runs in passthrough mode.
func (o *Opened) Passthrough() bool { return o.Packets != nil }

// Close releases whichever half is open.
func (o *Opened) Close() error {
	if o.Decoder != nil {
		return o.Decoder.Close()
	}
	if o.Packets != nil {
		return o.Packets.Close()
	}
	return nil
}

// Open sniffs src and opens it. Passthrough is chosen iff the container is
// Ogg/Opus and allowPassthrough is true (the caller folds in "no guild
// filters" and "free passthrough slot").
func Open(src source.ByteSource, hint string, allowPassthrough bool) (*Opened, error) {
	kind, err := Detect(src, hint)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindOggOpus:
		if allowPassthrough {
			pr, err := newOggOpusPackets(src)
			if err != nil {
				return nil, err
			}
			return &Opened{Kind: kind, Packets: pr}, nil
		}
		dec, err := newOggOpusDecoder(src)
		if err != nil {
			return nil, err
		}
		return &Opened{Kind: kind, Decoder: dec}, nil

	case KindOggVorbis, KindMP3, KindFLAC, KindWAV:
		dec, err := newBeepDecoder(src, kind)
		if err != nil {
			return nil, err
		}
		return &Opened{Kind: kind, Decoder: dec}, nil
	}
	return nil, ErrUnknownFormat
}

// Detect identifies the container from magic bytes, consulting the hint only
// when sniffing is inconclusive. The source is rewound to offset zero.
func Detect(src io.ReadSeeker, hint string) (Kind, error) {
	var head [512]byte
	n, err := io.ReadFull(src, head[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("probe: sniff: %w", err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("probe: rewind: %w", err)
	}
	b := head[:n]

	switch {
	case len(b) >= 4 && string(b[:4]) == "OggS":
		// The codec id packet sits inside the first page.
		if containsAt(b, "OpusHead") {
			return KindOggOpus, nil
		}
		if containsAt(b, "\x01vorbis") {
			return KindOggVorbis, nil
		}
		// Opaque first page; fall back on the hint.
		if strings.Contains(hint, "opus") || strings.Contains(hint, "webm") {
			return KindOggOpus, nil
		}
		return KindOggVorbis, nil

	case len(b) >= 4 && string(b[:4]) == "fLaC":
		return KindFLAC, nil

	case len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WAVE":
		return KindWAV, nil

	case len(b) >= 3 && string(b[:3]) == "ID3":
		return KindMP3, nil

	case len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0:
		return KindMP3, nil
	}

	switch normalizeHint(hint) {
	case "opus", "ogg/opus":
		return KindOggOpus, nil
	case "vorbis", "ogg", "ogg/vorbis":
		return KindOggVorbis, nil
	case "mp3", "mpeg", "audio/mpeg":
		return KindMP3, nil
	case "flac":
		return KindFLAC, nil
	case "wav", "wave":
		return KindWAV, nil
	}
	return "", ErrUnknownFormat
}

func normalizeHint(hint string) string {
	h := strings.ToLower(strings.TrimSpace(hint))
	return strings.TrimPrefix(h, "audio/")
}

func containsAt(b []byte, marker string) bool {
	return strings.Contains(string(b), marker)
}

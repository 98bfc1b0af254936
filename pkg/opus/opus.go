// Package opus wraps the gopus codec with the fixed 48 kHz stereo 20 ms
// configuration Discord voice expects.
package opus

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/appujet/baja/pkg/pcm"
)

// maxPacketBytes is the output ceiling handed to the encoder. Opus packets at
// our bitrates stay far below this.
const maxPacketBytes = 4000

// SilenceFrame is the three-byte Opus silence payload Discord documents for
// ending a transmission.
var SilenceFrame = []byte{0xF8, 0xFF, 0xFE}

// IsSilenceFrame reports whether pkt is the canonical 3-byte silence payload.
func IsSilenceFrame(pkt []byte) bool {
	return len(pkt) == 3 && pkt[0] == 0xF8 && pkt[1] == 0xFF && pkt[2] == 0xFE
}

// Encoder encodes 960-sample stereo frames to Opus packets. Not safe for
// concurrent use; each speak loop owns one.
type Encoder struct {
	enc *gopus.Encoder
}

// NewEncoder creates an encoder with the "audio" application hint. A bitrate
// of 0 leaves the codec default (bitrate auto) in place.
func NewEncoder(bitrate int) (*Encoder, error) {
	enc, err := gopus.NewEncoder(pcm.SampleRate, pcm.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	if bitrate > 0 {
		enc.SetBitrate(bitrate)
	}
	return &Encoder{enc: enc}, nil
}

// Encode encodes exactly one frame of interleaved stereo samples
// (len == pcm.FrameSamples) into an Opus packet.
func (e *Encoder) Encode(samples []int16) ([]byte, error) {
	if len(samples) != pcm.FrameSamples {
		return nil, fmt.Errorf("opus: encode: frame has %d samples, want %d", len(samples), pcm.FrameSamples)
	}
	pkt, err := e.enc.Encode(samples, pcm.FrameSize, maxPacketBytes)
	if err != nil {
		return nil, fmt.Errorf("opus: encode: %w", err)
	}
	return pkt, nil
}

// Decoder decodes Opus packets back to interleaved stereo samples. Used by
// the Ogg/Opus transcode path and by round-trip tests.
type Decoder struct {
	dec *gopus.Decoder
}

// NewDecoder creates a 48 kHz stereo decoder.
func NewDecoder() (*Decoder, error) {
	dec, err := gopus.NewDecoder(pcm.SampleRate, pcm.Channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{dec: dec}, nil
}

// Decode decodes one packet into interleaved stereo samples.
func (d *Decoder) Decode(pkt []byte) ([]int16, error) {
	samples, err := d.dec.Decode(pkt, pcm.FrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	return samples, nil
}

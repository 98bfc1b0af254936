package probe

import (
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/appujet/baja/pkg/pcm"
)

// beepBlockFrames is the decode granularity of the adapter.
const beepBlockFrames = 1024

// beepDecoder adapts the beep codec family (MP3, Vorbis, FLAC, WAV) to the
// engine's [Decoder] contract. beep streams normalized float frames; the
// adapter converts to interleaved int16 with saturating rounding.
type beepDecoder struct {
	stream beep.StreamSeekCloser
	format beep.Format
	buf    [beepBlockFrames][2]float64
}

func newBeepDecoder(src byteStream, kind Kind) (*beepDecoder, error) {
	var (
		stream beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch kind {
	case KindMP3:
		stream, format, err = mp3.Decode(src)
	case KindOggVorbis:
		stream, format, err = vorbis.Decode(src)
	case KindFLAC:
		stream, format, err = flac.Decode(src)
	case KindWAV:
		stream, format, err = wav.Decode(src)
	default:
		return nil, fmt.Errorf("probe: no decoder for %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("probe: open %s decoder: %w", kind, err)
	}
	return &beepDecoder{stream: stream, format: format}, nil
}

func (d *beepDecoder) Read() ([]int16, error) {
	n, ok := d.stream.Stream(d.buf[:])
	if n == 0 {
		if !ok {
			if err := d.stream.Err(); err != nil {
				return nil, fmt.Errorf("probe: decode: %w", err)
			}
			return nil, io.EOF
		}
		return nil, nil
	}

	out := make([]int16, n*2)
	for i := 0; i < n; i++ {
		out[i*2] = pcm.FloatTo16(d.buf[i][0])
		out[i*2+1] = pcm.FloatTo16(d.buf[i][1])
	}
	return out, nil
}

func (d *beepDecoder) SampleRate() int { return int(d.format.SampleRate) }

// Channels is always 2: beep streams stereo sample pairs, duplicating mono
// sources into both channels at decode time.
func (d *beepDecoder) Channels() int { return 2 }

func (d *beepDecoder) Seek(ms int64) error {
	target := int(int64(d.format.SampleRate) * ms / 1000)
	if l := d.stream.Len(); l > 0 && target > l {
		target = l
	}
	if err := d.stream.Seek(target); err != nil {
		return fmt.Errorf("probe: seek to %dms: %w", ms, err)
	}
	return nil
}

func (d *beepDecoder) Close() error { return d.stream.Close() }

package probe

import (
	"bytes"
	"errors"
	"testing"
)

// seekBuf wraps a bytes.Reader to satisfy Detect's ReadSeeker input.
func seekBuf(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

// oggPage wraps payload in a minimal OggS page prefix so the sniffer finds
// the codec id within the first bytes.
func oggPage(codecID string) []byte {
	page := []byte("OggS")
	page = append(page, make([]byte, 22)...) // version..serial padding
	page = append(page, 1, 255)              // one segment, max lace
	page = append(page, []byte(codecID)...)
	return page
}

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		hint string
		want Kind
	}{
		{"ogg opus", oggPage("OpusHead"), "", KindOggOpus},
		{"ogg vorbis", oggPage("\x01vorbis"), "", KindOggVorbis},
		{"flac", []byte("fLaC\x00\x00\x00\x22"), "", KindFLAC},
		{"wav", append([]byte("RIFF\x24\x08\x00\x00WAVE"), make([]byte, 16)...), "", KindWAV},
		{"mp3 id3", []byte("ID3\x04\x00\x00\x00\x00\x00\x00"), "", KindMP3},
		{"mp3 sync", []byte{0xFF, 0xFB, 0x90, 0x00}, "", KindMP3},
		{"hint mp3", []byte{0x00, 0x01, 0x02}, "audio/mpeg", KindMP3},
		{"hint opus", []byte{0x00, 0x01, 0x02}, "opus", KindOggOpus},
		{"hint flac", []byte{0x00, 0x01, 0x02}, "flac", KindFLAC},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Detect(seekBuf(c.data), c.hint)
			if err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Errorf("Detect = %q, want %q", got, c.want)
			}
		})
	}
}

func TestDetectUnknown(t *testing.T) {
	_, err := Detect(seekBuf([]byte{1, 2, 3, 4}), "")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
}

func TestDetectRewindsSource(t *testing.T) {
	data := oggPage("OpusHead")
	r := seekBuf(data)
	if _, err := Detect(r, ""); err != nil {
		t.Fatal(err)
	}
	// The probe must leave the cursor at zero for the demuxer.
	var head [4]byte
	if _, err := r.Read(head[:]); err != nil {
		t.Fatal(err)
	}
	if string(head[:]) != "OggS" {
		t.Errorf("source not rewound: next bytes %q", head[:])
	}
}

func TestNormalizeHint(t *testing.T) {
	cases := map[string]string{
		"audio/mpeg": "mpeg",
		"MP3":        "mp3",
		" flac ":     "flac",
		"audio/ogg":  "ogg",
	}
	for in, want := range cases {
		if got := normalizeHint(in); got != want {
			t.Errorf("normalizeHint(%q) = %q, want %q", in, got, want)
		}
	}
}

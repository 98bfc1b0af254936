// Package source implements the seekable byte sources the audio engine reads
// from: a prefetching HTTP range reader and a segmented reader that stitches
// ordered segment URLs (HLS/DASH style) into one logical stream.
package source

import (
	"io"
	"time"
)

// ByteSource is the random-access byte stream handed to the container probe.
// Read blocks until data is available or the stream ends; Seek follows the
// three-tier strategy described on [Reader].
type ByteSource interface {
	io.Reader
	io.Seeker
	io.Closer

	// Length returns the total byte length, or -1 when unknown.
	Length() int64

	// ContentType returns the Content-Type reported by the remote server,
	// or "" when absent.
	ContentType() string
}

// Resolved describes a playable source as produced by an external resolver:
// a direct URL or an ordered segment list, plus the container hint and
// passthrough permission the probe consumes.
type Resolved struct {
	// URL is the direct stream URL. Ignored when Segments is non-empty.
	URL string

	// Hint is an optional container hint ("ogg", "mp3", "flac", ...).
	Hint string

	// AllowPassthrough indicates the resolver permits relaying Opus
	// packets without transcoding.
	AllowPassthrough bool

	// Segments, when non-empty, selects the segmented reader.
	Segments []string

	// Key and IV enable AES-128-CBC segment decryption when both are set.
	Key []byte
	IV  []byte
}

// Options tunes reader behaviour. The zero value selects the documented
// defaults.
type Options struct {
	// HighWater parks the prefetch worker once this many unconsumed bytes
	// are buffered. Default 8 MiB.
	HighWater int

	// SocketSkip is the largest forward seek served by draining the live
	// stream instead of reopening. Default 1 MiB.
	SocketSkip int

	// OpenTimeout bounds connection setup + response headers. Default 15 s.
	OpenTimeout time.Duration

	// ChunkTimeout bounds one body read. Default 30 s.
	ChunkTimeout time.Duration

	// RetryAttempts is the transient-failure budget per request. Default 6.
	RetryAttempts int
}

func (o Options) withDefaults() Options {
	if o.HighWater <= 0 {
		o.HighWater = 8 << 20
	}
	if o.SocketSkip <= 0 {
		o.SocketSkip = 1 << 20
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = 15 * time.Second
	}
	if o.ChunkTimeout <= 0 {
		o.ChunkTimeout = 30 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 6
	}
	return o
}

// Open returns a [ByteSource] for src: a segmented reader when src carries a
// segment list, the plain HTTP reader otherwise.
func Open(src Resolved, opts Options) (ByteSource, error) {
	if len(src.Segments) > 0 {
		return OpenSegmented(src.Segments, src.Key, src.IV, opts)
	}
	return OpenURL(src.URL, opts)
}

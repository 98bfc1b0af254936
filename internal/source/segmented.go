package source

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Segmented stitches an ordered list of segment URLs (HLS/DASH media
// segments) into one logical byte stream. While segment N is consumed the
// next segment downloads in the background. When a key and IV are configured
// each segment body is decrypted with AES-128-CBC before use.
//
// An index table of cumulative offsets maps logical positions back to
// (segment, offset-within-segment) pairs for Seek; entries appear as segment
// sizes become known.
type Segmented struct {
	urls   []string
	key    []byte
	iv     []byte
	opts   Options
	client *http.Client

	mu      sync.Mutex
	cur     []byte // decrypted bytes of the current segment
	curIdx  int
	curOff  int
	offsets []int64 // offsets[i] = logical offset of segment i; len == known+1
	closed  bool

	prefetch chan prefetched
}

type prefetched struct {
	idx  int
	data []byte
	err  error
}

// OpenSegmented opens the first segment and starts prefetching the second.
func OpenSegmented(urls []string, key, iv []byte, opts Options) (*Segmented, error) {
	if len(urls) == 0 {
		return nil, errors.New("source: segmented: no segments")
	}
	if (key == nil) != (iv == nil) {
		return nil, errors.New("source: segmented: key and iv must both be set or both absent")
	}

	s := &Segmented{
		urls:     urls,
		key:      key,
		iv:       iv,
		opts:     opts.withDefaults(),
		client:   &http.Client{Timeout: opts.withDefaults().OpenTimeout + opts.withDefaults().ChunkTimeout},
		offsets:  []int64{0},
		prefetch: make(chan prefetched, 1),
	}

	data, err := s.fetchSegment(0)
	if err != nil {
		return nil, err
	}
	s.install(0, data)
	s.startPrefetch(1)
	return s, nil
}

// Length returns the total stream length once every segment size is known,
// -1 before that.
func (s *Segmented) Length() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.offsets) == len(s.urls)+1 {
		return s.offsets[len(s.urls)]
	}
	return -1
}

// ContentType is unknown for segmented sources; the probe sniffs bytes.
func (s *Segmented) ContentType() string { return "" }

// Read serves bytes from the current segment, advancing to the prefetched
// next segment at each boundary.
func (s *Segmented) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.closed {
			return 0, ErrClosed
		}
		if s.curOff < len(s.cur) {
			n := copy(p, s.cur[s.curOff:])
			s.curOff += n
			return n, nil
		}
		if s.curIdx+1 >= len(s.urls) {
			return 0, io.EOF
		}
		if err := s.advanceLocked(); err != nil {
			return 0, err
		}
	}
}

// advanceLocked installs segment curIdx+1, waiting for its prefetch to land.
func (s *Segmented) advanceLocked() error {
	want := s.curIdx + 1

	var data []byte
	select {
	case pf := <-s.prefetch:
		if pf.err != nil {
			return pf.err
		}
		if pf.idx == want {
			data = pf.data
		}
	default:
	}

	if data == nil {
		// Prefetch missed (seek raced it, or first advance); fetch inline.
		s.mu.Unlock()
		fetched, err := s.fetchSegment(want)
		s.mu.Lock()
		if err != nil {
			return err
		}
		data = fetched
	}

	s.install(want, data)
	s.startPrefetch(want + 1)
	return nil
}

// install makes data the current segment and extends the offset table.
// Callers hold mu (or run before the reader is shared).
func (s *Segmented) install(idx int, data []byte) {
	s.cur = data
	s.curIdx = idx
	s.curOff = 0
	if len(s.offsets) == idx+1 {
		s.offsets = append(s.offsets, s.offsets[idx]+int64(len(data)))
	}
}

// Seek maps a logical offset to (segment, intra-offset) through the index
// table, loading segment sizes forward as needed.
func (s *Segmented) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.offsets[s.curIdx] + int64(s.curOff) + offset
	case io.SeekEnd:
		if len(s.offsets) != len(s.urls)+1 {
			return 0, errors.New("source: segmented: seek from end: length unknown")
		}
		abs = s.offsets[len(s.urls)] + offset
	default:
		return 0, fmt.Errorf("source: segmented: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("source: segmented: negative offset %d", abs)
	}

	// Extend the index table until it covers abs (or the list ends).
	for len(s.offsets) < len(s.urls)+1 && s.offsets[len(s.offsets)-1] <= abs {
		idx := len(s.offsets) - 1
		s.mu.Unlock()
		data, err := s.fetchSegment(idx)
		s.mu.Lock()
		if err != nil {
			return 0, err
		}
		s.offsets = append(s.offsets, s.offsets[idx]+int64(len(data)))
		if idx == len(s.offsets)-2 && s.offsets[idx] <= abs && abs < s.offsets[idx+1] {
			s.cur = data
			s.curIdx = idx
			s.curOff = int(abs - s.offsets[idx])
			s.startPrefetch(idx + 1)
			return abs, nil
		}
	}

	// Locate the owning segment in the known table.
	for i := 0; i < len(s.offsets)-1; i++ {
		if abs >= s.offsets[i] && abs < s.offsets[i+1] {
			if i == s.curIdx {
				s.curOff = int(abs - s.offsets[i])
				return abs, nil
			}
			s.mu.Unlock()
			data, err := s.fetchSegment(i)
			s.mu.Lock()
			if err != nil {
				return 0, err
			}
			s.cur = data
			s.curIdx = i
			s.curOff = int(abs - s.offsets[i])
			s.startPrefetch(i + 1)
			return abs, nil
		}
	}

	// Past the end: position at EOF.
	if len(s.offsets) == len(s.urls)+1 {
		s.curIdx = len(s.urls) - 1
		s.curOff = len(s.cur)
		return abs, nil
	}
	return 0, fmt.Errorf("source: segmented: offset %d outside stream", abs)
}

// Close stops the reader. In-flight prefetches finish and are discarded.
func (s *Segmented) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// startPrefetch downloads segment idx in the background into the single-slot
// prefetch channel.
func (s *Segmented) startPrefetch(idx int) {
	if idx >= len(s.urls) {
		return
	}
	// Drain a stale slot so the worker below can always deliver.
	select {
	case <-s.prefetch:
	default:
	}
	go func() {
		data, err := s.fetchSegment(idx)
		select {
		case s.prefetch <- prefetched{idx: idx, data: data, err: err}:
		default:
		}
	}()
}

// fetchSegment downloads one segment with the retry policy and decrypts it
// when a key is configured.
func (s *Segmented) fetchSegment(idx int) ([]byte, error) {
	url := s.urls[idx]
	var lastErr error

	for attempt := 0; attempt < s.opts.RetryAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.OpenTimeout+s.opts.ChunkTimeout)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("source: segmented: build request: %w", err)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			if !transientErr(err) {
				return nil, fmt.Errorf("source: segmented: fetch segment %d: %w", idx, err)
			}
			lastErr = err
		} else {
			if resp.StatusCode == http.StatusOK {
				data, readErr := io.ReadAll(resp.Body)
				resp.Body.Close()
				cancel()
				if readErr == nil {
					return s.decrypt(data)
				}
				lastErr = readErr
			} else {
				resp.Body.Close()
				cancel()
				if !transientStatus(resp.StatusCode) {
					return nil, fmt.Errorf("source: segmented: fetch segment %d: status %s", idx, resp.Status)
				}
				lastErr = fmt.Errorf("status %s", resp.Status)
			}
		}

		delay := backoffDelay(attempt)
		slog.Warn("segmented: transient fetch failure, retrying",
			"segment", idx, "attempt", attempt+1, "delay", delay, "error", lastErr)
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("source: segmented: fetch segment %d: retries exhausted: %w", idx, lastErr)
}

// decrypt applies AES-128-CBC with PKCS#7 unpadding when a key is configured.
func (s *Segmented) decrypt(data []byte) ([]byte, error) {
	if s.key == nil {
		return data, nil
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("source: segmented: init cipher: %w", err)
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("source: segmented: ciphertext length %d not block aligned", len(data))
	}
	cipher.NewCBCDecrypter(block, s.iv).CryptBlocks(data, data)

	// PKCS#7 unpadding.
	if len(data) > 0 {
		pad := int(data[len(data)-1])
		if pad > 0 && pad <= aes.BlockSize && pad <= len(data) {
			data = data[:len(data)-pad]
		}
	}
	return data, nil
}

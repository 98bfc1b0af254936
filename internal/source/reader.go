package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/appujet/baja/internal/observe"
)

// ErrClosed is returned by Read and Seek after Close.
var ErrClosed = errors.New("source: reader closed")

// errRangeNotSatisfiable marks a 416 answer so the seek path can decide
// between end-of-stream and rewind.
var errRangeNotSatisfiable = errors.New("source: range not satisfiable")

// chunkSize is the prefetch read granularity.
const chunkSize = 64 << 10

// Reader is a seekable byte source backed by a one-shot ranged HTTP stream.
// A background prefetch worker extends the buffered window; the worker parks
// once HighWater unconsumed bytes are buffered and resumes as the consumer
// drains them.
//
// Seek is three-tier: a target inside the buffered window is a pure cursor
// move; a short forward target (≤ SocketSkip) is served by draining the live
// stream, avoiding TCP/TLS teardown; anything else aborts the request and
// issues a new range request.
type Reader struct {
	url    string
	client *http.Client
	opts   Options

	mu   sync.Mutex
	cond *sync.Cond

	// ready holds the buffered window; ready[0] sits at absolute offset
	// base. pos is the consumer cursor.
	ready []byte
	base  int64
	pos   int64

	length       int64 // -1 unknown
	contentType  string
	acceptRanges bool

	pendingSeek int64 // -1 when no seek is queued
	eof         bool
	readErr     error
	closed      bool

	// cancel aborts the in-flight HTTP request; swapped per request.
	cancel context.CancelFunc
}

// OpenURL opens url and starts the prefetch worker. The initial request
// starts at offset zero and stays open-ended.
func OpenURL(url string, opts Options) (*Reader, error) {
	opts = opts.withDefaults()
	r := &Reader{
		url:    url,
		client: &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: opts.OpenTimeout}},
		opts:   opts,
		length: -1,

		pendingSeek: -1,
	}
	r.cond = sync.NewCond(&r.mu)

	resp, err := r.fetch(0)
	if err != nil {
		return nil, err
	}
	r.noteResponse(resp)
	slog.Debug("reader: opened", "url", url, "length", r.length, "contentType", r.contentType)

	go r.prefetch(resp.Body, 0)
	return r, nil
}

// Length returns the total byte length, or -1 when the server did not report
// one.
func (r *Reader) Length() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.length
}

// ContentType returns the server-reported Content-Type, or "".
func (r *Reader) ContentType() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contentType
}

// Read copies buffered bytes at the cursor, blocking until the prefetch
// worker delivers them or the stream ends.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if r.closed {
			return 0, ErrClosed
		}
		if avail := r.base + int64(len(r.ready)) - r.pos; avail > 0 && r.pos >= r.base && r.pendingSeek < 0 {
			off := int(r.pos - r.base)
			n := copy(p, r.ready[off:])
			r.pos += int64(n)
			r.compactLocked()
			r.cond.Broadcast()
			return n, nil
		}
		if r.readErr != nil {
			return 0, r.readErr
		}
		if r.eof && r.pendingSeek < 0 {
			return 0, io.EOF
		}
		r.cond.Wait()
	}
}

// Seek repositions the cursor. Targets inside the buffered window move the
// cursor without I/O; everything else is queued for the prefetch worker.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.pos + offset
	case io.SeekEnd:
		if r.length < 0 {
			return 0, fmt.Errorf("source: seek from end: length unknown")
		}
		abs = r.length + offset
	default:
		return 0, fmt.Errorf("source: seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("source: seek: negative offset %d", abs)
	}

	// Tier one: inside the buffered window.
	if abs >= r.base && abs <= r.base+int64(len(r.ready)) && r.pendingSeek < 0 {
		r.pos = abs
		r.cond.Broadcast()
		return abs, nil
	}

	r.pos = abs
	r.pendingSeek = abs
	r.eof = false
	r.readErr = nil
	r.cond.Broadcast()
	return abs, nil
}

// Close aborts the in-flight request and releases the worker.
func (r *Reader) Close() error {
	r.mu.Lock()
	r.closed = true
	cancel := r.cancel
	r.cond.Broadcast()
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// compactLocked drops consumed history beyond one socket-skip window, keeping
// short backward seeks free while releasing writer slots.
func (r *Reader) compactLocked() {
	consumed := int(r.pos - r.base)
	if consumed <= r.opts.SocketSkip {
		return
	}
	drop := min(consumed-r.opts.SocketSkip, len(r.ready))
	if drop <= 0 {
		return
	}
	n := copy(r.ready, r.ready[drop:])
	r.ready = r.ready[:n]
	r.base += int64(drop)
}

// buffered reports unconsumed bytes ahead of the cursor. Caller holds mu.
func (r *Reader) bufferedLocked() int {
	return int(r.base + int64(len(r.ready)) - r.pos)
}

// fetch issues a ranged GET with the retry policy. A 416 answer is returned
// as errRangeNotSatisfiable for the caller to interpret.
func (r *Reader) fetch(offset int64) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithCancel(context.Background())
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			cancel()
			return nil, ErrClosed
		}
		r.cancel = cancel
		r.mu.Unlock()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("source: build request: %w", err)
		}
		req.Header.Set("Accept", "*/*")
		req.Header.Set("Accept-Encoding", "identity")
		if offset > 0 {
			req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
		}

		resp, err := r.client.Do(req)
		if err == nil {
			switch {
			case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
				return resp, nil
			case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
				resp.Body.Close()
				cancel()
				return nil, errRangeNotSatisfiable
			case transientStatus(resp.StatusCode):
				resp.Body.Close()
				err = fmt.Errorf("source: fetch %q: status %s", r.url, resp.Status)
			default:
				resp.Body.Close()
				cancel()
				return nil, fmt.Errorf("source: fetch %q: status %s", r.url, resp.Status)
			}
		} else if !transientErr(err) {
			cancel()
			return nil, fmt.Errorf("source: fetch %q: %w", r.url, err)
		}
		cancel()

		if attempt+1 >= r.opts.RetryAttempts {
			return nil, fmt.Errorf("source: fetch %q: retries exhausted: %w", r.url, err)
		}
		delay := backoffDelay(attempt)
		slog.Warn("reader: transient fetch failure, retrying", "url", r.url, "attempt", attempt+1, "delay", delay, "error", err)
		time.Sleep(delay)
	}
}

// noteResponse records length, content type, and range support from the
// first response.
func (r *Reader) noteResponse(resp *http.Response) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.contentType = resp.Header.Get("Content-Type")
	r.acceptRanges = strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes")

	if cr := resp.Header.Get("Content-Range"); cr != "" {
		// "bytes start-end/total"
		if i := strings.LastIndexByte(cr, '/'); i >= 0 {
			if total, err := strconv.ParseInt(cr[i+1:], 10, 64); err == nil {
				r.length = total
				return
			}
		}
	}
	if resp.ContentLength >= 0 && resp.StatusCode == http.StatusOK {
		r.length = resp.ContentLength
	}
}

// prefetch is the background worker. It appends body chunks to the window,
// parks on the high-water mark, and services queued seeks.
func (r *Reader) prefetch(body io.ReadCloser, cur int64) {
	buf := make([]byte, chunkSize)
	met := observe.DefaultMetrics()

	defer func() {
		if body != nil {
			body.Close()
		}
	}()

	for {
		r.mu.Lock()
		for !r.closed && r.pendingSeek < 0 && (r.eof || r.bufferedLocked() >= r.opts.HighWater) {
			r.cond.Wait()
		}
		if r.closed {
			r.mu.Unlock()
			return
		}
		target := r.pendingSeek
		r.pendingSeek = -1
		r.mu.Unlock()

		if target >= 0 {
			var err error
			body, cur, err = r.reposition(body, cur, target)
			if err != nil {
				r.fail(err)
				return
			}
			continue
		}

		if body == nil {
			resp, err := r.fetch(cur)
			if err != nil {
				if errors.Is(err, errRangeNotSatisfiable) {
					// Reading past the end of a finished stream.
					r.mu.Lock()
					r.eof = true
					r.cond.Broadcast()
					r.mu.Unlock()
					continue
				}
				r.fail(err)
				return
			}
			met.ReaderReopens.Add(context.Background(), 1)
			body = resp.Body
		}

		n, err := r.readChunk(body, buf)
		if n > 0 {
			r.mu.Lock()
			r.ready = append(r.ready, buf[:n]...)
			cur += int64(n)
			r.compactLocked()
			r.cond.Broadcast()
			r.mu.Unlock()
		}
		if err != nil {
			body.Close()
			body = nil
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				r.mu.Lock()
				early := r.length >= 0 && cur < r.length
				if !early {
					r.eof = true
					r.cond.Broadcast()
				}
				r.mu.Unlock()
				if early {
					// Server hung up mid-stream; resume from the
					// current offset on the next iteration.
					slog.Debug("reader: early close, resuming", "url", r.url, "offset", cur)
				}
				continue
			}
			slog.Warn("reader: chunk read failed, reconnecting", "url", r.url, "offset", cur, "error", err)
		}
	}
}

// reposition services a queued seek: socket skip over the live stream when
// the target is a short hop forward, full reconnect otherwise.
func (r *Reader) reposition(body io.ReadCloser, cur, target int64) (io.ReadCloser, int64, error) {
	met := observe.DefaultMetrics()
	lastValid := cur

	delta := target - cur
	if body != nil && delta > 0 && delta <= int64(r.opts.SocketSkip) {
		if err := r.discard(body, delta); err == nil {
			met.ReaderSocketSkips.Add(context.Background(), 1)
			slog.Debug("reader: socket skip", "url", r.url, "bytes", delta)
			r.resetWindow(target)
			return body, target, nil
		}
		// Fall through to a reconnect on drain failure.
		body.Close()
		body = nil
	}

	if body != nil {
		body.Close()
	}

	resp, err := r.fetch(target)
	if errors.Is(err, errRangeNotSatisfiable) {
		if !r.acceptRanges {
			// Origin ignores ranges; rewind to the last offset the
			// stream actually reached.
			if resp2, err2 := r.fetch(lastValid); err2 == nil {
				met.ReaderReopens.Add(context.Background(), 1)
				r.resetWindow(lastValid)
				return resp2.Body, lastValid, nil
			}
		}
		// Target beyond end of stream: report EOF at the cursor.
		r.mu.Lock()
		r.base = target
		r.ready = r.ready[:0]
		r.eof = true
		r.cond.Broadcast()
		r.mu.Unlock()
		return nil, target, nil
	}
	if err != nil {
		return nil, cur, err
	}
	met.ReaderReopens.Add(context.Background(), 1)
	start := target
	if resp.StatusCode == http.StatusOK && target != 0 {
		// Origin ignored the Range header and restarted from zero; the
		// worker re-buffers forward until it reaches the cursor.
		start = 0
	}
	r.resetWindow(start)
	return resp.Body, start, nil
}

// resetWindow clears the buffered window and rebases it at offset.
func (r *Reader) resetWindow(offset int64) {
	r.mu.Lock()
	r.ready = r.ready[:0]
	r.base = offset
	r.eof = false
	r.cond.Broadcast()
	r.mu.Unlock()
}

// discard drains n bytes from body with the chunk watchdog applied.
func (r *Reader) discard(body io.Reader, n int64) error {
	buf := make([]byte, chunkSize)
	for n > 0 {
		take := int64(len(buf))
		if take > n {
			take = n
		}
		read, err := r.readChunk(body, buf[:take])
		n -= int64(read)
		if err != nil {
			return err
		}
	}
	return nil
}

// readChunk performs one body read bounded by ChunkTimeout. A stalled read
// aborts the underlying request.
func (r *Reader) readChunk(body io.Reader, buf []byte) (int, error) {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	var timer *time.Timer
	if cancel != nil {
		timer = time.AfterFunc(r.opts.ChunkTimeout, cancel)
	}
	n, err := body.Read(buf)
	if timer != nil {
		timer.Stop()
	}
	return n, err
}

// fail parks the reader in a terminal error state.
func (r *Reader) fail(err error) {
	r.mu.Lock()
	r.readErr = err
	r.cond.Broadcast()
	r.mu.Unlock()
	slog.Warn("reader: fatal", "url", r.url, "error", err)
}

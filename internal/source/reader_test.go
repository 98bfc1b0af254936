package source

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// testContent builds a deterministic byte pattern so offsets are
// self-describing.
func testContent(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i * 31)
	}
	return out
}

// rangeServer serves content with full Range support and counts requests.
func rangeServer(t *testing.T, content []byte) (*httptest.Server, *int) {
	t.Helper()
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "audio/mpeg")
		http.ServeContent(w, r, "track.mp3", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

// smallOpts keeps buffers tiny so tests exercise the windowing logic.
func smallOpts() Options {
	return Options{
		HighWater:     16 << 10,
		SocketSkip:    4 << 10,
		OpenTimeout:   5 * time.Second,
		ChunkTimeout:  5 * time.Second,
		RetryAttempts: 3,
	}
}

func TestReaderSequentialRead(t *testing.T) {
	content := testContent(64 << 10)
	srv, _ := rangeServer(t, content)

	r, err := OpenURL(srv.URL, smallOpts())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("read %d bytes, mismatch with %d-byte source", len(got), len(content))
	}
}

func TestReaderMetadata(t *testing.T) {
	content := testContent(4096)
	srv, _ := rangeServer(t, content)

	r, err := OpenURL(srv.URL, smallOpts())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if got := r.Length(); got != 4096 {
		t.Errorf("Length = %d, want 4096", got)
	}
	if got := r.ContentType(); got != "audio/mpeg" {
		t.Errorf("ContentType = %q, want audio/mpeg", got)
	}
}

func TestReaderSeekEquivalence(t *testing.T) {
	// The spec contract: seek(t) then read(n) must equal a fresh open at
	// t for every reachable t.
	content := testContent(128 << 10)
	srv, _ := rangeServer(t, content)

	r, err := OpenURL(srv.URL, smallOpts())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	// Prime the window.
	buf := make([]byte, 1024)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatal(err)
	}

	targets := []int64{
		512,        // backward, inside the window
		2048,       // short forward: socket-skip territory
		100 << 10,  // far forward: range re-request
		1 << 10,    // far backward after the jump: range re-request
	}
	for _, target := range targets {
		t.Run(fmt.Sprintf("offset_%d", target), func(t *testing.T) {
			if _, err := r.Seek(target, io.SeekStart); err != nil {
				t.Fatal(err)
			}
			got := make([]byte, 1024)
			if _, err := io.ReadFull(r, got); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, content[target:target+1024]) {
				t.Errorf("bytes at %d do not match source", target)
			}
		})
	}
}

func TestReaderSeekCurrentAndEnd(t *testing.T) {
	content := testContent(8192)
	srv, _ := rangeServer(t, content)

	r, err := OpenURL(srv.URL, smallOpts())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if pos, err := r.Seek(100, io.SeekStart); err != nil || pos != 100 {
		t.Fatalf("SeekStart: pos=%d err=%v", pos, err)
	}
	if pos, err := r.Seek(50, io.SeekCurrent); err != nil || pos != 150 {
		t.Fatalf("SeekCurrent: pos=%d err=%v", pos, err)
	}
	if pos, err := r.Seek(-192, io.SeekEnd); err != nil || pos != 8000 {
		t.Fatalf("SeekEnd: pos=%d err=%v", pos, err)
	}

	got := make([]byte, 192)
	if _, err := io.ReadFull(r, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content[8000:]) {
		t.Error("tail read mismatch")
	}
}

func TestReaderEOFAtEnd(t *testing.T) {
	content := testContent(2048)
	srv, _ := rangeServer(t, content)

	r, err := OpenURL(srv.URL, smallOpts())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if _, err := io.ReadAll(r); err != nil {
		t.Fatal(err)
	}
	n, err := r.Read(make([]byte, 16))
	if n != 0 || err != io.EOF {
		t.Errorf("read past end: n=%d err=%v, want 0, EOF", n, err)
	}
}

func TestReaderResumesAfterEarlyClose(t *testing.T) {
	// First response promises the full length but delivers only half; the
	// reader must reopen with the right offset and deliver the remainder
	// without gap or duplication.
	content := testContent(32 << 10)
	half := len(content) / 2
	requests := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Content-Length", fmt.Sprint(len(content)))
			w.WriteHeader(http.StatusOK)
			w.Write(content[:half])
			w.(http.Flusher).Flush()
			// Aborting the handler with the Content-Length unmet
			// makes the server cut the connection mid-stream.
			panic(http.ErrAbortHandler)
		}
		http.ServeContent(w, r, "track.bin", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(srv.Close)

	r, err := OpenURL(srv.URL, smallOpts())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("resumed read does not match source (got %d bytes, want %d)", len(got), len(content))
	}
	if requests < 2 {
		t.Errorf("expected a resume request, saw %d requests", requests)
	}
}

func TestReaderFatalStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	_, err := OpenURL(srv.URL, smallOpts())
	if err == nil {
		t.Fatal("expected error for 403 origin")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error %q does not mention the status", err)
	}
}

func TestReaderClosedErrors(t *testing.T) {
	content := testContent(1024)
	srv, _ := rangeServer(t, content)

	r, err := OpenURL(srv.URL, smallOpts())
	if err != nil {
		t.Fatal(err)
	}
	r.Close()

	if _, err := r.Read(make([]byte, 4)); err != ErrClosed {
		t.Errorf("Read after close: %v, want ErrClosed", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != ErrClosed {
		t.Errorf("Seek after close: %v, want ErrClosed", err)
	}
}

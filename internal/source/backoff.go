package source

import (
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// Retry policy for transient HTTP failures: exponential backoff with ±20%
// jitter, base 200 ms, factor 2, capped at 5 s.
const (
	backoffBase   = 200 * time.Millisecond
	backoffFactor = 2
	backoffCap    = 5 * time.Second
	backoffJitter = 0.2
)

// backoffDelay returns the sleep before retry attempt (0-based).
func backoffDelay(attempt int) time.Duration {
	d := backoffBase
	for i := 0; i < attempt && d < backoffCap; i++ {
		d *= backoffFactor
	}
	if d > backoffCap {
		d = backoffCap
	}
	// rand/v2 is concurrency-safe with the global source.
	jitter := 1 + backoffJitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * jitter)
}

// transientStatus reports whether an HTTP status is worth retrying. 4xx other
// than 429 is a fatal answer from the origin; 416 is handled by the seek path.
func transientStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// transientErr reports whether a transport error (reset, timeout, temporary
// DNS failure) is worth retrying.
func transientErr(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	// Connection resets surface as *url.Error wrapping syscall errors;
	// net.Error covers timeouts, so treat any remaining opErr as transient.
	var oe *net.OpError
	return errors.As(err, &oe)
}

package rtp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"
)

// keepalive tuning. Discord echoes the 8-byte keepalive payload back, which
// gives us a cheap round-trip measurement.
const (
	keepaliveTimeout = 2 * time.Second
	sendDeadline     = 5 * time.Millisecond
)

// Transport owns the voice UDP socket for one guild. Only the speak loop
// writes audio packets; the supervisor reads the ping gauge.
type Transport struct {
	conn *net.UDPConn
	addr *net.UDPAddr

	drops     atomic.Uint64
	pingMs    atomic.Int64
	keepalive uint64
}

// Dial binds a UDP socket connected to the voice endpoint.
func Dial(endpoint string) (*Transport, error) {
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("rtp: resolve %q: %w", endpoint, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("rtp: dial %q: %w", endpoint, err)
	}
	return &Transport{conn: conn, addr: addr}, nil
}

// Send transmits one packet without blocking the 20 ms cadence. A send that
// cannot complete within the short deadline is dropped and counted; sequence
// and timestamp progression already happened in the packetizer, so cadence
// invariants hold.
func (t *Transport) Send(pkt []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(sendDeadline)); err != nil {
		return fmt.Errorf("rtp: set deadline: %w", err)
	}
	_, err := t.conn.Write(pkt)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() || errors.Is(err, os.ErrDeadlineExceeded) {
			t.drops.Add(1)
			return nil
		}
		return fmt.Errorf("rtp: send: %w", err)
	}
	return nil
}

// Keepalive sends the 8-byte keepalive counter and, when the remote echoes it,
// records the round-trip time. Runs on the supervisor cadence, never the speak
// loop.
func (t *Transport) Keepalive() {
	t.keepalive++
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], t.keepalive)

	start := time.Now()
	if _, err := t.conn.Write(buf[:]); err != nil {
		return
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(keepaliveTimeout)); err != nil {
		return
	}
	var echo [8]byte
	n, err := t.conn.Read(echo[:])
	if err != nil || n < 8 {
		return
	}
	if binary.LittleEndian.Uint64(echo[:]) == t.keepalive {
		t.pingMs.Store(time.Since(start).Milliseconds())
	}
}

// PingMs returns the last measured keepalive round trip in milliseconds, or 0
// if none has completed yet.
func (t *Transport) PingMs() int64 { return t.pingMs.Load() }

// Drops returns the number of packets discarded on send deadline.
func (t *Transport) Drops() uint64 { return t.drops.Load() }

// LocalAddr exposes the bound local address (used in logs).
func (t *Transport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// Close releases the socket.
func (t *Transport) Close() error { return t.conn.Close() }

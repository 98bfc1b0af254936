// Package rtp implements the Discord voice RTP framing: 12-byte headers with
// fixed sequence/timestamp progression and the two transport AEAD modes
// (XSalsa20-Poly1305 and AES-256-GCM with a trailing nonce counter).
package rtp

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// HeaderSize is the fixed RTP header length.
const HeaderSize = 12

// Header constants for Discord voice: RTP version 2, payload type 120 (Opus).
const (
	versionByte     = 0x80
	payloadTypeByte = 0x78
)

// Mode selects the transport encryption scheme, named as on the Discord wire.
type Mode string

const (
	ModeAES256GCM        Mode = "aead_aes256_gcm_rtpsize"
	ModeXSalsa20Poly1305 Mode = "xsalsa20_poly1305"
)

// ErrUnknownMode is returned for AEAD mode strings outside the two supported
// schemes.
var ErrUnknownMode = errors.New("rtp: unknown encryption mode")

// KeySize is the secret key length shared by both AEAD modes.
const KeySize = 32

// Packetizer owns the per-session RTP state: sequence, timestamp, SSRC, and
// the AES-GCM nonce counter. It is used exclusively by one speak loop, so its
// counters need no synchronisation.
type Packetizer struct {
	ssrc      uint32
	sequence  uint16
	timestamp uint32
	nonce     uint32

	mode  Mode
	key   [KeySize]byte
	aes   cipher.AEAD
	scrap []byte // reused packet assembly buffer
}

// NewPacketizer creates a packetizer for one voice session. key must be the
// 32-byte negotiated secret.
func NewPacketizer(ssrc uint32, key []byte, mode Mode) (*Packetizer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("rtp: secret key is %d bytes, want %d", len(key), KeySize)
	}
	p := &Packetizer{ssrc: ssrc, mode: mode}
	copy(p.key[:], key)

	switch mode {
	case ModeXSalsa20Poly1305:
	case ModeAES256GCM:
		block, err := aes.NewCipher(p.key[:])
		if err != nil {
			return nil, fmt.Errorf("rtp: init aes: %w", err)
		}
		p.aes, err = cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("rtp: init gcm: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return p, nil
}

// Sequence returns the sequence number of the next packet.
func (p *Packetizer) Sequence() uint16 { return p.sequence }

// Timestamp returns the RTP timestamp of the next packet.
func (p *Packetizer) Timestamp() uint32 { return p.timestamp }

// header writes the 12-byte RTP header for the current sequence/timestamp.
func (p *Packetizer) header(dst []byte) {
	dst[0] = versionByte
	dst[1] = payloadTypeByte
	binary.BigEndian.PutUint16(dst[2:4], p.sequence)
	binary.BigEndian.PutUint32(dst[4:8], p.timestamp)
	binary.BigEndian.PutUint32(dst[8:12], p.ssrc)
}

// Seal builds the next encrypted voice packet around payload and advances
// sequence by 1 and timestamp by 960. The returned slice is valid until the
// next Seal call.
func (p *Packetizer) Seal(payload []byte) ([]byte, error) {
	var hdr [HeaderSize]byte
	p.header(hdr[:])

	var pkt []byte
	switch p.mode {
	case ModeXSalsa20Poly1305:
		// Nonce is the RTP header zero-padded to 24 bytes. Output is
		// header || ciphertext || 16-byte tag.
		var nonce [24]byte
		copy(nonce[:], hdr[:])
		p.scrap = append(p.scrap[:0], hdr[:]...)
		pkt = secretbox.Seal(p.scrap, payload, &nonce, &p.key)

	case ModeAES256GCM:
		// Nonce carries a monotonically increasing 32-bit counter in its
		// first four bytes; the same counter trails the packet so the
		// receiver can reconstruct it.
		p.nonce++
		var counter [4]byte
		binary.BigEndian.PutUint32(counter[:], p.nonce)
		var nonce [12]byte
		copy(nonce[:4], counter[:])

		p.scrap = append(p.scrap[:0], hdr[:]...)
		pkt = p.aes.Seal(p.scrap, nonce[:], payload, hdr[:])
		pkt = append(pkt, counter[:]...)
	}
	p.scrap = pkt

	p.sequence++
	p.timestamp += 960
	return pkt, nil
}

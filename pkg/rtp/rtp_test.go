package rtp

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"testing"

	"golang.org/x/crypto/nacl/secretbox"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i * 7)
	}
	return key
}

func TestNewPacketizerRejectsBadKey(t *testing.T) {
	if _, err := NewPacketizer(1, make([]byte, 16), ModeXSalsa20Poly1305); err == nil {
		t.Fatal("expected error for 16-byte key")
	}
	if _, err := NewPacketizer(1, testKey(), Mode("bogus")); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestHeaderLayout(t *testing.T) {
	p, err := NewPacketizer(0xDEADBEEF, testKey(), ModeXSalsa20Poly1305)
	if err != nil {
		t.Fatal(err)
	}

	pkt, err := p.Seal([]byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}

	if pkt[0] != 0x80 {
		t.Errorf("version byte = %#x, want 0x80", pkt[0])
	}
	if pkt[1] != 0x78 {
		t.Errorf("payload type = %#x, want 0x78", pkt[1])
	}
	if seq := binary.BigEndian.Uint16(pkt[2:4]); seq != 0 {
		t.Errorf("first sequence = %d, want 0", seq)
	}
	if ts := binary.BigEndian.Uint32(pkt[4:8]); ts != 0 {
		t.Errorf("first timestamp = %d, want 0", ts)
	}
	if ssrc := binary.BigEndian.Uint32(pkt[8:12]); ssrc != 0xDEADBEEF {
		t.Errorf("ssrc = %#x, want 0xDEADBEEF", ssrc)
	}
}

func TestSequenceTimestampProgression(t *testing.T) {
	p, err := NewPacketizer(1, testKey(), ModeXSalsa20Poly1305)
	if err != nil {
		t.Fatal(err)
	}

	for k := 0; k < 100; k++ {
		pkt, err := p.Seal([]byte{0xF8, 0xFF, 0xFE})
		if err != nil {
			t.Fatal(err)
		}
		seq := binary.BigEndian.Uint16(pkt[2:4])
		ts := binary.BigEndian.Uint32(pkt[4:8])
		if seq != uint16(k) {
			t.Fatalf("packet %d: sequence = %d", k, seq)
		}
		if ts != uint32(k)*960 {
			t.Fatalf("packet %d: timestamp = %d, want %d", k, ts, k*960)
		}
	}
}

func TestXSalsaRoundTrip(t *testing.T) {
	key := testKey()
	p, err := NewPacketizer(42, key, ModeXSalsa20Poly1305)
	if err != nil {
		t.Fatal(err)
	}

	payload := []byte("twenty milliseconds of opus")
	pkt, err := p.Seal(payload)
	if err != nil {
		t.Fatal(err)
	}

	// Packet = header || ciphertext+tag. Nonce = header zero-padded.
	if len(pkt) != HeaderSize+len(payload)+secretbox.Overhead {
		t.Fatalf("packet length = %d, want %d", len(pkt), HeaderSize+len(payload)+secretbox.Overhead)
	}

	var nonce [24]byte
	copy(nonce[:], pkt[:HeaderSize])
	var k [KeySize]byte
	copy(k[:], key)

	opened, ok := secretbox.Open(nil, pkt[HeaderSize:], &nonce, &k)
	if !ok {
		t.Fatal("secretbox.Open failed")
	}
	if !bytes.Equal(opened, payload) {
		t.Errorf("decrypted %q, want %q", opened, payload)
	}
}

func TestAESGCMRoundTrip(t *testing.T) {
	key := testKey()
	p, err := NewPacketizer(42, key, ModeAES256GCM)
	if err != nil {
		t.Fatal(err)
	}

	payload := []byte("twenty milliseconds of opus")
	pkt, err := p.Seal(payload)
	if err != nil {
		t.Fatal(err)
	}

	// Packet = header || ciphertext || 16-byte tag || 4-byte counter.
	if len(pkt) != HeaderSize+len(payload)+16+4 {
		t.Fatalf("packet length = %d, want %d", len(pkt), HeaderSize+len(payload)+16+4)
	}

	counter := pkt[len(pkt)-4:]
	if got := binary.BigEndian.Uint32(counter); got != 1 {
		t.Errorf("first nonce counter = %d, want 1", got)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatal(err)
	}

	var nonce [12]byte
	copy(nonce[:4], counter)

	header := pkt[:HeaderSize]
	ciphertext := pkt[HeaderSize : len(pkt)-4]
	opened, err := gcm.Open(nil, nonce[:], ciphertext, header)
	if err != nil {
		t.Fatalf("gcm.Open: %v", err)
	}
	if !bytes.Equal(opened, payload) {
		t.Errorf("decrypted %q, want %q", opened, payload)
	}
}

func TestAESGCMCounterAdvances(t *testing.T) {
	p, err := NewPacketizer(1, testKey(), ModeAES256GCM)
	if err != nil {
		t.Fatal(err)
	}
	for want := uint32(1); want <= 5; want++ {
		pkt, err := p.Seal([]byte{1})
		if err != nil {
			t.Fatal(err)
		}
		got := binary.BigEndian.Uint32(pkt[len(pkt)-4:])
		if got != want {
			t.Fatalf("counter = %d, want %d", got, want)
		}
	}
}

package wirebuf

import (
	"bytes"
	"crypto/rand"
	"testing"
)

// xorCipher is a minimal SealingCipher/OpeningCipher used only to exercise
// the framing logic in this package without pulling in a real AEAD; see
// the ciphers package for a production-grade chacha20-poly1305 cipher.
type xorCipher struct {
	key byte
}

func (c xorCipher) BlockSize() int { return 8 }
func (c xorCipher) Overhead() int  { return 4 } // fake 4-byte "tag": xor checksum

func (c xorCipher) xor(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[i] = v ^ c.key
	}
	return out
}

func (c xorCipher) checksum(seqn uint32, ad, plaintext []byte) [4]byte {
	var sum [4]byte
	sum[0] = byte(seqn)
	for i, v := range ad {
		sum[i%4] ^= v
	}
	for i, v := range plaintext {
		sum[i%4] ^= v
	}
	return sum
}

func (c xorCipher) Seal(seqn uint32, ad, plaintext, dst []byte) []byte {
	sum := c.checksum(seqn, ad, plaintext)
	dst = append(dst, c.xor(plaintext)...)
	dst = append(dst, sum[:]...)
	return dst
}

func (c xorCipher) Open(seqn uint32, ad, ciphertext, dst []byte) ([]byte, error) {
	if len(ciphertext) < 4 {
		return nil, ErrMACMismatch
	}
	body := ciphertext[:len(ciphertext)-4]
	tag := ciphertext[len(ciphertext)-4:]
	plaintext := c.xor(body)
	want := c.checksum(seqn, ad, plaintext)
	if !bytes.Equal(tag, want[:]) {
		return nil, ErrMACMismatch
	}
	dst = append(dst, plaintext...)
	return dst, nil
}

func noPadding(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}

func TestAppendReadPacketRoundTrip(t *testing.T) {
	cipher := xorCipher{key: 0x5a}
	buf := New()

	payloads := [][]byte{
		[]byte("hello, channel"),
		{},
		bytes.Repeat([]byte{0xAB}, 4096),
	}

	for _, p := range payloads {
		if err := AppendPacket(buf, cipher, p, noPadding); err != nil {
			t.Fatalf("AppendPacket: %v", err)
		}
	}

	r := bytes.NewReader(buf.Bytes())
	for i, want := range payloads {
		got, err := ReadPacket(r, cipher, uint32(i))
		if err != nil {
			t.Fatalf("ReadPacket #%d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("ReadPacket #%d: got %q want %q", i, got, want)
		}
	}
}

func TestReadPacketRejectsBadMAC(t *testing.T) {
	cipher := xorCipher{key: 0x5a}
	buf := New()
	if err := AppendPacket(buf, cipher, []byte("payload"), noPadding); err != nil {
		t.Fatalf("AppendPacket: %v", err)
	}

	corrupted := append([]byte(nil), buf.Bytes()...)
	corrupted[len(corrupted)-1] ^= 0xff

	if _, err := ReadPacket(bytes.NewReader(corrupted), cipher, 0); err == nil {
		t.Fatal("expected MAC failure, got nil error")
	}
}

func TestSeqnIncrementsByOnePerPacket(t *testing.T) {
	cipher := xorCipher{key: 0x11}
	buf := New()
	for i := 0; i < 5; i++ {
		if err := AppendPacket(buf, cipher, []byte("x"), noPadding); err != nil {
			t.Fatalf("AppendPacket: %v", err)
		}
		if buf.Seqn() != uint32(i+1) {
			t.Fatalf("after packet %d: seqn = %d, want %d", i, buf.Seqn(), i+1)
		}
	}
}

func TestIDStringRendering(t *testing.T) {
	std := Standard("SSH-2.0-sshmux_1.0")
	if string(std.Bytes()) != "SSH-2.0-sshmux_1.0\r\n" {
		t.Fatalf("standard id string: got %q", std.Bytes())
	}

	raw := Raw("SSH-2.0-oddpeer\n")
	if string(raw.Bytes()) != "SSH-2.0-oddpeer\n" {
		t.Fatalf("raw id string: got %q", raw.Bytes())
	}
}

package wirebuf

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// minPacketLength is the minimum total packet size (length field
	// excluded) RFC 4253 requires: padding_length byte + payload + padding,
	// at least 16 bytes including MAC/tag overhead in the classic
	// construction. We apply the same floor to the AEAD-style framing used
	// here.
	minPacketLength = 16

	// maxPacketLength bounds a single packet's length field to guard
	// against a peer claiming an absurd allocation.
	maxPacketLength = 32 * 1024 * 1024

	// minBlockSize is the lowest padding multiple this codec will honor,
	// matching RFC 4253's 8-byte floor even for stream ciphers.
	minBlockSize = 8
)

// SealingCipher turns a plaintext packet body into its on-wire ciphertext.
// Implementations own whatever key material and nonce derivation they need;
// the codec only ever passes the current sequence number and the cleartext
// length header as associated data. Cipher primitives are an external
// collaborator of this package — see the ciphers package for reference
// implementations.
type SealingCipher interface {
	// BlockSize is the padding multiple AppendPacket must round the
	// plaintext body up to; must be >= 8.
	BlockSize() int
	// Overhead is the number of authentication-tag bytes Seal appends
	// beyond len(plaintext).
	Overhead() int
	// Seal encrypts and authenticates plaintext, appending the result to
	// dst and returning the extended slice. additionalData (the cleartext
	// length header) is authenticated but not encrypted.
	Seal(seqn uint32, additionalData, plaintext, dst []byte) []byte
}

// OpeningCipher is the receive-side counterpart to SealingCipher.
type OpeningCipher interface {
	BlockSize() int
	Overhead() int
	// Open authenticates and decrypts ciphertext, appending the plaintext
	// to dst. It returns a non-nil error on authentication failure, which
	// ReadPacket reports as ErrMACMismatch (wrapped).
	Open(seqn uint32, additionalData, ciphertext, dst []byte) ([]byte, error)
}

// AppendPacket frames payload as one SSH binary packet and appends the
// sealed wire bytes to buf. It computes padding so that the padding-length
// byte, payload and padding together are a multiple of the cipher's block
// size and the whole packet is at least minPacketLength bytes, seals the
// result, and advances buf's sequence number and byte counters.
func AppendPacket(buf *Buffer, cipher SealingCipher, payload []byte, randomPadding func(n int) []byte) error {
	blockSize := cipher.BlockSize()
	if blockSize < minBlockSize {
		blockSize = minBlockSize
	}

	// body = 1 (padding-length byte) + payload + padding
	padLen := blockSize - (1+len(payload))%blockSize
	if padLen < 4 {
		padLen += blockSize
	}
	for 1+len(payload)+padLen < minPacketLength {
		padLen += blockSize
	}
	if padLen > 255 {
		return errors.Errorf("wirebuf: computed padding %d exceeds one byte (block size %d)", padLen, blockSize)
	}

	body := make([]byte, 0, 1+len(payload)+padLen)
	body = append(body, byte(padLen))
	body = append(body, payload...)
	body = append(body, randomPadding(padLen)...)

	cipherLen := len(body) + cipher.Overhead()
	var lengthField [4]byte
	binary.BigEndian.PutUint32(lengthField[:], uint32(cipherLen))

	out := buf.buf.AvailableBuffer()
	out = append(out, lengthField[:]...)
	out = cipher.Seal(buf.seqn, lengthField[:], body, out)

	if _, err := buf.buf.Write(out); err != nil {
		return err
	}
	buf.advance(len(out))
	return nil
}

// ReadPacket reads one SSH binary packet from r, decrypts and authenticates
// it with cipher using seqn, strips padding, and returns the payload. seqn
// is the caller's responsibility to track and increment; ReadPacket does
// not mutate any Buffer (the session loop owns a single read path and
// advances its own counters on success, matching AppendPacket's contract on
// the write side).
func ReadPacket(r io.Reader, cipher OpeningCipher, seqn uint32) ([]byte, error) {
	var lengthField [4]byte
	if _, err := io.ReadFull(r, lengthField[:]); err != nil {
		return nil, errors.Wrap(err, "wirebuf: reading length header")
	}
	cipherLen := binary.BigEndian.Uint32(lengthField[:])

	if cipherLen < uint32(minPacketLength+cipher.Overhead()) || cipherLen > maxPacketLength {
		return nil, ErrImpossibleLength
	}

	ciphertext := make([]byte, cipherLen)
	if _, err := io.ReadFull(r, ciphertext); err != nil {
		return nil, errors.Wrap(ErrTruncated, err.Error())
	}

	body, err := cipher.Open(seqn, lengthField[:], ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(ErrMACMismatch, err.Error())
	}
	if len(body) < 1 {
		return nil, ErrPaddingOverrun
	}

	padLen := int(body[0])
	if 1+padLen > len(body) {
		return nil, ErrPaddingOverrun
	}
	payload := body[1 : len(body)-padLen]
	return payload, nil
}

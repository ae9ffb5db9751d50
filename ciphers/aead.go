// Package ciphers provides reference SealingCipher/OpeningCipher and
// Compressor implementations for the wirebuf/sshmux core. The core itself
// treats ciphers and compression as injected collaborators (spec §6); this
// package is the "bring your own crypto" answer used by cmd/sshd and by
// tests that want a real AEAD instead of a toy one.
package ciphers

import (
	"crypto/cipher"
	"crypto/sha1"
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

// kdfSalt mirrors the fixed salt the teacher (kcptun) uses when deriving a
// shared session key from a pre-shared passphrase via PBKDF2. Kept for
// continuity with the teacher's own key-derivation idiom, not as an
// independent security recommendation.
const kdfSalt = "sshmux-shared-secret"

// DeriveKey stretches a passphrase into a key of the requested length using
// PBKDF2-HMAC-SHA1, 4096 iterations — the same construction kcptun's
// std/crypt.go uses to turn its "-key" flag into a cipher key.
func DeriveKey(passphrase []byte, length int) []byte {
	return pbkdf2.Key(passphrase, []byte(kdfSalt), 4096, length, sha1.New)
}

// AEAD implements wirebuf.SealingCipher and wirebuf.OpeningCipher over
// chacha20-poly1305. The nonce is derived deterministically from the packet
// sequence number, so encryption and decryption never need out-of-band
// nonce transport — the same approach OpenSSH's
// chacha20-poly1305@openssh.com cipher uses.
type AEAD struct {
	aead cipher.AEAD
}

// NewAEAD builds an AEAD cipher from a 32-byte key. Use DeriveKey to turn a
// human passphrase into key material of the right length.
func NewAEAD(key []byte) (*AEAD, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &AEAD{aead: aead}, nil
}

func (c *AEAD) BlockSize() int { return 8 }
func (c *AEAD) Overhead() int  { return c.aead.Overhead() }

func nonceFromSeqn(seqn uint32) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint32(nonce[len(nonce)-4:], seqn)
	return nonce
}

// Seal implements wirebuf.SealingCipher.
func (c *AEAD) Seal(seqn uint32, additionalData, plaintext, dst []byte) []byte {
	return c.aead.Seal(dst, nonceFromSeqn(seqn), plaintext, additionalData)
}

// Open implements wirebuf.OpeningCipher.
func (c *AEAD) Open(seqn uint32, additionalData, ciphertext, dst []byte) ([]byte, error) {
	return c.aead.Open(dst, nonceFromSeqn(seqn), ciphertext, additionalData)
}

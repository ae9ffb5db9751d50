package ciphers

// Null is a no-op cipher: payloads pass through unchanged and no
// authentication is performed. It exists for tests that want to assert on
// plaintext framing, and for local-loopback debugging where confidentiality
// is irrelevant (analogous to kcptun's "null"/"none" crypt methods).
type Null struct{}

func (Null) BlockSize() int { return 8 }
func (Null) Overhead() int  { return 0 }

func (Null) Seal(_ uint32, _ []byte, plaintext, dst []byte) []byte {
	return append(dst, plaintext...)
}

func (Null) Open(_ uint32, _ []byte, ciphertext, dst []byte) ([]byte, error) {
	return append(dst, ciphertext...), nil
}

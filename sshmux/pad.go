package sshmux

import "crypto/rand"

// randomPadding returns n cryptographically random bytes, satisfying
// wirebuf.AppendPacket's padding callback (RFC 4253 §6 requires the padding
// bytes be random, not merely arbitrary).
func randomPadding(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

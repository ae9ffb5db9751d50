// Package wirebuf implements the leaf-level framing primitives for an SSH v2
// binary packet stream: an append-only outbound byte buffer paired with a
// wrapping sequence number, and the length/padding/MAC packet codec built on
// top of it (RFC 4253 §6). Cipher primitives themselves are external
// collaborators — see the SealingCipher/OpeningCipher interfaces in codec.go.
package wirebuf

import "bytes"

// Buffer is an append-only accumulator of outbound bytes for one direction
// of a connection, paired with the running packet sequence number and a
// lifetime byte counter. One Buffer exists per direction; it is never reset
// except when a new connection is established.
type Buffer struct {
	buf bytes.Buffer

	// seqn is the 32-bit wrapping packet counter for this direction. It is
	// incremented once per packet appended and is never reset across a
	// rekey. ReadPacket does not use it; the reader tracks its own seqn.
	seqn uint32

	// totalBytes is a lifetime counter of bytes that have passed through
	// this buffer, used only for diagnostics (cf. metrics package).
	totalBytes uint64

	// bytesSinceRekey and packetsSinceRekey drive the rekey trigger; both
	// are zeroed by ResetRekeyCounters when a key exchange completes.
	bytesSinceRekey   uint64
	packetsSinceRekey uint64
}

// New returns an empty Buffer with its sequence number at zero, as for a
// freshly established connection.
func New() *Buffer {
	return &Buffer{}
}

// Bytes returns the accumulated outbound bytes awaiting transmission. The
// returned slice is only valid until the next call to Drain or AppendPacket.
func (b *Buffer) Bytes() []byte {
	return b.buf.Bytes()
}

// Len reports how many outbound bytes are currently buffered.
func (b *Buffer) Len() int {
	return b.buf.Len()
}

// Drain clears the buffer after its contents have been written to the
// transport. It does not touch the sequence number or byte counters.
func (b *Buffer) Drain() {
	b.buf.Reset()
}

// Seqn returns the current packet sequence number for this direction.
func (b *Buffer) Seqn() uint32 {
	return b.seqn
}

// advance records one packet's worth of bookkeeping: the wrapping sequence
// number increments, and both the lifetime and since-rekey byte counters
// grow by n.
func (b *Buffer) advance(n int) {
	b.seqn++
	b.totalBytes += uint64(n)
	b.bytesSinceRekey += uint64(n)
	b.packetsSinceRekey++
}

// ResetRekeyCounters zeroes the since-rekey counters. Called once a key
// exchange completes, whether at connection start or after a mid-session
// rekey.
func (b *Buffer) ResetRekeyCounters() {
	b.bytesSinceRekey = 0
	b.packetsSinceRekey = 0
}

// RekeyLimits bounds how many bytes or packets may pass in one direction
// before a rekey must be initiated. There is no time-based limit.
type RekeyLimits struct {
	Bytes    uint64
	Packets  uint64
}

// ExceedsRekeyLimits reports whether this direction has crossed the
// configured byte or packet thresholds since the last key exchange.
func (b *Buffer) ExceedsRekeyLimits(limits RekeyLimits) bool {
	if limits.Bytes > 0 && b.bytesSinceRekey >= limits.Bytes {
		return true
	}
	if limits.Packets > 0 && b.packetsSinceRekey >= limits.Packets {
		return true
	}
	return false
}

// IDString carries an SSH identification line (RFC 4253 §4.2). Standard
// strings have "\r\n" appended when written to the wire; Raw strings are
// sent exactly as given (used to replay a peer's unusual banner verbatim,
// or to probe non-conformant peers in tests).
type IDString struct {
	raw   bool
	value string
}

// Standard wraps s as an identification line whose terminator is appended
// on send.
func Standard(s string) IDString {
	return IDString{value: s}
}

// Raw wraps s as a pre-formatted identification line sent verbatim,
// including whatever terminator it already carries.
func Raw(s string) IDString {
	return IDString{raw: true, value: s}
}

// Bytes renders the identification line as it should appear on the wire.
func (id IDString) Bytes() []byte {
	if id.raw {
		return []byte(id.value)
	}
	return []byte(id.value + "\r\n")
}

func (id IDString) String() string {
	return id.value
}

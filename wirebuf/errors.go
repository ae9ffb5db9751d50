package wirebuf

import "github.com/pkg/errors"

// Sentinel errors surfaced by the wire buffer and packet codec. Callers
// compare with errors.Is; the session loop treats all of these as
// protocol-fatal and disconnects.
var (
	// ErrMACMismatch is returned by ReadPacket when a cipher rejects a
	// packet's authentication tag.
	ErrMACMismatch = errors.New("wirebuf: message authentication failed")

	// ErrImpossibleLength is returned when the cleartext length field is
	// smaller than the minimum packet size or larger than the protocol
	// maximum (32 KiB * 1024, per RFC 4253 guidance).
	ErrImpossibleLength = errors.New("wirebuf: impossible packet length")

	// ErrTruncated is returned when the transport returns fewer bytes than
	// the length field promised.
	ErrTruncated = errors.New("wirebuf: truncated packet")

	// ErrPaddingOverrun is returned when the claimed padding length would
	// consume more than the decrypted plaintext contains.
	ErrPaddingOverrun = errors.New("wirebuf: padding length exceeds packet")
)

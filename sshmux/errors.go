package sshmux

import "github.com/pkg/errors"

// Error taxonomy (spec §7):
//
//   - Protocol-fatal: malformed packet, unknown critical opcode, an
//     operation attempted against an absent or unconfirmed channel when
//     consistency is required. The session disconnects.
//   - Peer-reported: CHANNEL_OPEN_FAILURE, REQUEST_FAILURE. Surfaced to the
//     caller, not fatal to the session.
//   - Send-failed: a caller posted to a mailbox whose receiver is gone
//     (reported as ErrSessionClosed).
var (
	// ErrMalformedPacket is protocol-fatal: a channel opcode's payload did
	// not parse.
	ErrMalformedPacket = errors.New("sshmux: malformed channel packet")

	// ErrUnknownChannel is protocol-fatal when consistency is required: an
	// operation referenced a ChannelId absent from the table (including
	// after mutual CHANNEL_CLOSE has removed it).
	ErrUnknownChannel = errors.New("sshmux: unknown or closed channel")

	// ErrChannelNotConfirmed is protocol-fatal: data or a request was
	// attempted on a channel whose CHANNEL_OPEN_CONFIRMATION has not yet
	// been received.
	ErrChannelNotConfirmed = errors.New("sshmux: channel not confirmed")

	// ErrChannelHalfClosed is protocol-fatal: data was attempted on a
	// channel that has already sent EOF. A peer's EOF does not stop us
	// sending.
	ErrChannelHalfClosed = errors.New("sshmux: channel is in EOF state")

	// ErrConsumed mirrors smux's ErrConsumed: a peer's WINDOW_ADJUST
	// arithmetic implied it consumed more than was ever sent.
	ErrConsumed = errors.New("sshmux: peer acknowledged consuming more than was sent")

	// ErrSendFailed names the send-failed class. No function in this
	// package returns it: a post to a session that has exited its event
	// loop reports ErrSessionClosed.
	ErrSendFailed = errors.New("sshmux: send failed, receiver is gone")

	// ErrSessionClosed is returned by Handle/Channel operations once the
	// session has exited its event loop.
	ErrSessionClosed = errors.New("sshmux: session closed")

	// ErrOpenFailure wraps a peer's CHANNEL_OPEN_FAILURE (peer-reported,
	// not fatal).
	ErrOpenFailure = errors.New("sshmux: peer refused to open channel")

	// ErrRequestFailure wraps a peer's REQUEST_FAILURE for a global
	// request.
	ErrRequestFailure = errors.New("sshmux: peer rejected global request")
)

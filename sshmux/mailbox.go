package sshmux

import "context"

// sessionCommand is one application-initiated operation posted to a
// Session's bounded inbound mailbox (spec §4's "session-inbound" mailbox).
// The session's event loop drains these once per iteration, applying each
// to its EncryptedState synchronously — this is what lets EncryptedState
// stay single-goroutine-owned even though ChannelHandle/Handle are called
// from arbitrary application goroutines.
type sessionCommand struct {
	apply  func(es *EncryptedState) (any, error)
	result chan<- commandResult
}

type commandResult struct {
	value any
	err   error
}

// post delivers cmd to mailbox and waits for its result, honoring ctx
// cancellation and the session's own shutdown signal at both the send and
// the receive step. A cancellation at the send step leaves no trace in the
// session: the command never lands and apply never runs. Once the send has
// landed, apply runs on the session goroutine even if the caller is
// cancelled while waiting; its result is then discarded here (never
// partial).
func post(ctx context.Context, mailbox chan<- sessionCommand, closed <-chan struct{}, apply func(es *EncryptedState) (any, error)) (any, error) {
	result := make(chan commandResult, 1)
	cmd := sessionCommand{apply: apply, result: result}

	select {
	case mailbox <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-closed:
		return nil, ErrSessionClosed
	}

	select {
	case r := <-result:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-closed:
		return nil, ErrSessionClosed
	}
}

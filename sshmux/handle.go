package sshmux

import (
	"context"
	"io"
)

// ChannelHandle is the application-facing object for one channel, usable
// from any goroutine (spec §4.3). It is obtained either from a Handler
// callback (for a peer-initiated channel the Handler chose to hand off) or
// from Handle.ChannelOpen* (for a locally-initiated channel). All its
// methods are safe for concurrent use by multiple goroutines, though
// ordering data written by concurrent callers is, as usual, the caller's
// problem.
type ChannelHandle struct {
	id        ChannelId
	mailbox   chan<- sessionCommand
	closed    <-chan struct{}
	inbox     *eventQueue
	window    *windowCell
	maxPacket uint32
}

// ID returns the channel's locally assigned identifier.
func (h *ChannelHandle) ID() ChannelId { return h.id }

func (h *ChannelHandle) post(ctx context.Context, apply func(es *EncryptedState) (any, error)) (any, error) {
	return post(ctx, h.mailbox, h.closed, apply)
}

// Data writes data as one or more CHANNEL_DATA packets, chunking against
// the channel's current sender window and maximum packet size and blocking
// only when the window is exhausted. A cancelled write refunds any window
// credit it had speculatively claimed for an unsent chunk, leaving the
// channel's flow-control state exactly as if the call had never been made
// past the last chunk that was actually posted.
func (h *ChannelHandle) Data(ctx context.Context, data []byte) error {
	return h.writeChunks(ctx, data, func(es *EncryptedState, chunk []byte) (any, error) {
		return nil, es.Data(h.id, chunk)
	})
}

// ExtendedData is Data's counterpart for CHANNEL_EXTENDED_DATA.
func (h *ChannelHandle) ExtendedData(ctx context.Context, ext uint32, data []byte) error {
	return h.writeChunks(ctx, data, func(es *EncryptedState, chunk []byte) (any, error) {
		return nil, es.ExtendedData(h.id, ext, chunk)
	})
}

func (h *ChannelHandle) writeChunks(ctx context.Context, data []byte, apply func(es *EncryptedState, chunk []byte) (any, error)) error {
	for len(data) > 0 {
		limit := uint32(len(data))
		if h.maxPacket > 0 && limit > h.maxPacket {
			limit = h.maxPacket
		}

		avail := h.window.Value()
		if avail == 0 {
			if err := h.window.WaitForGrowth(ctx); err != nil {
				return err
			}
			continue
		}
		chunk := limit
		if avail < chunk {
			chunk = avail
		}
		if !h.window.TryTake(chunk) {
			continue
		}

		piece := data[:chunk]
		if _, err := h.post(ctx, func(es *EncryptedState) (any, error) { return apply(es, piece) }); err != nil {
			h.window.Refund(chunk)
			return err
		}
		data = data[chunk:]
	}
	return nil
}

// Wait blocks for the next peer-initiated event on this channel.
func (h *ChannelHandle) Wait(ctx context.Context) (ChannelMsg, bool) {
	return h.inbox.Pop(ctx)
}

// Eof sends CHANNEL_EOF. No further Data/ExtendedData may follow.
func (h *ChannelHandle) Eof(ctx context.Context) error {
	_, err := h.post(ctx, func(es *EncryptedState) (any, error) { return nil, es.Eof(h.id) })
	return err
}

// Close sends CHANNEL_CLOSE, auto-completing once the peer answers in kind.
func (h *ChannelHandle) Close(ctx context.Context) error {
	_, err := h.post(ctx, func(es *EncryptedState) (any, error) { return nil, es.Close(h.id) })
	return err
}

func (h *ChannelHandle) request(ctx context.Context, reqType string, wantReply bool, extra func(es *EncryptedState) error) error {
	_, err := h.post(ctx, func(es *EncryptedState) (any, error) { return nil, extra(es) })
	return err
}

// RequestPty sends a "pty-req" channel request.
func (h *ChannelHandle) RequestPty(ctx context.Context, wantReply bool, term string, cols, rows, pixW, pixH uint32, modes []byte) error {
	return h.request(ctx, "pty-req", wantReply, func(es *EncryptedState) error {
		return es.RequestPty(h.id, wantReply, term, cols, rows, pixW, pixH, modes)
	})
}

// RequestShell sends a "shell" channel request.
func (h *ChannelHandle) RequestShell(ctx context.Context, wantReply bool) error {
	return h.request(ctx, "shell", wantReply, func(es *EncryptedState) error {
		return es.RequestShell(h.id, wantReply)
	})
}

// RequestExec sends an "exec" channel request.
func (h *ChannelHandle) RequestExec(ctx context.Context, wantReply bool, command string) error {
	return h.request(ctx, "exec", wantReply, func(es *EncryptedState) error {
		return es.RequestExec(h.id, wantReply, command)
	})
}

// RequestSubsystem sends a "subsystem" channel request.
func (h *ChannelHandle) RequestSubsystem(ctx context.Context, wantReply bool, name string) error {
	return h.request(ctx, "subsystem", wantReply, func(es *EncryptedState) error {
		return es.RequestSubsystem(h.id, wantReply, name)
	})
}

// RequestSignal sends a "signal" channel request.
func (h *ChannelHandle) RequestSignal(ctx context.Context, signalName string) error {
	return h.request(ctx, "signal", false, func(es *EncryptedState) error {
		return es.RequestSignal(h.id, signalName)
	})
}

// RequestX11 sends an "x11-req" channel request.
func (h *ChannelHandle) RequestX11(ctx context.Context, wantReply, singleConnection bool, authProtocol, authCookie string, screenNumber uint32) error {
	return h.request(ctx, "x11-req", wantReply, func(es *EncryptedState) error {
		return es.RequestX11(h.id, wantReply, singleConnection, authProtocol, authCookie, screenNumber)
	})
}

// SetEnv sends an "env" channel request.
func (h *ChannelHandle) SetEnv(ctx context.Context, wantReply bool, name, value string) error {
	return h.request(ctx, "env", wantReply, func(es *EncryptedState) error {
		return es.RequestEnv(h.id, wantReply, name, value)
	})
}

// WindowChange sends a "window-change" channel request.
func (h *ChannelHandle) WindowChange(ctx context.Context, cols, rows, pixW, pixH uint32) error {
	return h.request(ctx, "window-change", false, func(es *EncryptedState) error {
		return es.RequestWindowChange(h.id, cols, rows, pixW, pixH)
	})
}

// RequestAgentForward sends an "agent-req" channel request.
func (h *ChannelHandle) RequestAgentForward(ctx context.Context, wantReply bool) error {
	return h.request(ctx, "agent-req", wantReply, func(es *EncryptedState) error {
		return es.RequestAgentForward(h.id, wantReply)
	})
}

// XonXoff sends an "xon-xoff" channel request.
func (h *ChannelHandle) XonXoff(ctx context.Context, clientCanDo bool) error {
	return h.request(ctx, "xon-xoff", false, func(es *EncryptedState) error {
		return es.XonXoff(h.id, clientCanDo)
	})
}

// ExitStatus sends an "exit-status" channel request.
func (h *ChannelHandle) ExitStatus(ctx context.Context, status uint32) error {
	return h.request(ctx, "exit-status", false, func(es *EncryptedState) error {
		return es.ExitStatus(h.id, status)
	})
}

// ExitSignal sends an "exit-signal" channel request.
func (h *ChannelHandle) ExitSignal(ctx context.Context, signalName string, coreDumped bool, errorMessage, langTag string) error {
	return h.request(ctx, "exit-signal", false, func(es *EncryptedState) error {
		return es.ExitSignal(h.id, signalName, coreDumped, errorMessage, langTag)
	})
}

// Reply answers a wants-reply CHANNEL_REQUEST with CHANNEL_SUCCESS or
// CHANNEL_FAILURE.
func (h *ChannelHandle) Reply(ctx context.Context, ok bool) error {
	_, err := h.post(ctx, func(es *EncryptedState) (any, error) {
		if ok {
			return nil, es.ChannelSuccess(h.id)
		}
		return nil, es.ChannelFailure(h.id)
	})
	return err
}

// IntoStream adapts the channel to io.ReadWriteCloser, bridging Data/Wait
// through a blocking Read/Write pair (spec §4.3; mirrors smux's Stream
// satisfying net.Conn so generic io.Copy-based plumbing, e.g. pipeio, works
// unmodified against it).
func (h *ChannelHandle) IntoStream(ctx context.Context) *ChannelStream {
	return &ChannelStream{handle: h, ctx: ctx}
}

// ChannelStream is the io.ReadWriteCloser view of a ChannelHandle.
type ChannelStream struct {
	handle   *ChannelHandle
	ctx      context.Context
	leftover []byte
	eof      bool
}

func (s *ChannelStream) Read(p []byte) (int, error) {
	for len(s.leftover) == 0 {
		if s.eof {
			return 0, io.EOF
		}
		msg, ok := s.handle.Wait(s.ctx)
		if !ok {
			s.eof = true
			return 0, io.EOF
		}
		switch msg.Kind {
		case MsgData, MsgExtendedData:
			s.leftover = msg.Data
		case MsgEof, MsgClose:
			s.eof = true
			return 0, io.EOF
		}
	}
	n := copy(p, s.leftover)
	s.leftover = s.leftover[n:]
	return n, nil
}

func (s *ChannelStream) Write(p []byte) (int, error) {
	if err := s.handle.Data(s.ctx, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends EOF then CLOSE.
func (s *ChannelStream) Close() error {
	_ = s.handle.Eof(s.ctx)
	return s.handle.Close(s.ctx)
}

// Handle is a cloneable, session-wide sender (spec §4.5): it can open new
// channels and issue global requests, but is not bound to any one channel.
// Safe for concurrent use; any number of Handles may share one Session.
type Handle struct {
	mailbox chan<- sessionCommand
	closed  <-chan struct{}
}

func (h *Handle) post(ctx context.Context, apply func(es *EncryptedState) (any, error)) (any, error) {
	return post(ctx, h.mailbox, h.closed, apply)
}

// openAndWait posts an open command, then blocks for the peer's
// CHANNEL_OPEN_CONFIRMATION/FAILURE, returning a ready-to-use ChannelHandle.
func (h *Handle) openAndWait(ctx context.Context, open func(es *EncryptedState) ChannelId) (*ChannelHandle, error) {
	waitCh := make(chan openResult, 1)

	idVal, err := h.post(ctx, func(es *EncryptedState) (any, error) {
		id := open(es)
		es.AwaitOpen(id, waitCh)
		return id, nil
	})
	if err != nil {
		return nil, err
	}
	id := idVal.(ChannelId)

	select {
	case res := <-waitCh:
		if res.err != nil {
			return nil, res.err
		}
		return h.attach(ctx, id, res.maxPacket)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.closed:
		return nil, ErrSessionClosed
	}
}

func (h *Handle) attach(ctx context.Context, id ChannelId, maxPacket uint32) (*ChannelHandle, error) {
	type attached struct {
		window *windowCell
		inbox  *eventQueue
	}
	val, err := h.post(ctx, func(es *EncryptedState) (any, error) {
		window, ok := es.AttachWindowCell(id)
		if !ok {
			return nil, ErrUnknownChannel
		}
		inbox, _ := es.AttachInbox(id)
		return attached{window: window, inbox: inbox}, nil
	})
	if err != nil {
		return nil, err
	}
	a := val.(attached)
	return &ChannelHandle{
		id:        id,
		mailbox:   h.mailbox,
		closed:    h.closed,
		inbox:     a.inbox,
		window:    a.window,
		maxPacket: maxPacket,
	}, nil
}

// ChannelOpenSession opens a new "session" channel.
func (h *Handle) ChannelOpenSession(ctx context.Context, window, maxPacket uint32) (*ChannelHandle, error) {
	return h.openAndWait(ctx, func(es *EncryptedState) ChannelId {
		return es.OpenSession(window, maxPacket)
	})
}

// ChannelOpenDirectTCPIP opens a new "direct-tcpip" channel, asking the
// peer to connect onward to hostToConnect:portToConnect.
func (h *Handle) ChannelOpenDirectTCPIP(ctx context.Context, hostToConnect string, portToConnect uint32, originatorAddr string, originatorPort uint32, window, maxPacket uint32) (*ChannelHandle, error) {
	return h.openAndWait(ctx, func(es *EncryptedState) ChannelId {
		return es.OpenDirectTCPIP(hostToConnect, portToConnect, originatorAddr, originatorPort, window, maxPacket)
	})
}

// ChannelOpenForwardedTCPIP opens a new "forwarded-tcpip" channel,
// announcing an inbound connection on a port the peer asked us to forward.
func (h *Handle) ChannelOpenForwardedTCPIP(ctx context.Context, connectedAddr string, connectedPort uint32, originatorAddr string, originatorPort uint32, window, maxPacket uint32) (*ChannelHandle, error) {
	return h.openAndWait(ctx, func(es *EncryptedState) ChannelId {
		return es.OpenForwardedTCPIP(connectedAddr, connectedPort, originatorAddr, originatorPort, window, maxPacket)
	})
}

func (h *Handle) globalRequestAndWait(ctx context.Context, issue func(es *EncryptedState, waiter chan<- error)) error {
	waitCh := make(chan error, 1)
	_, err := h.post(ctx, func(es *EncryptedState) (any, error) {
		issue(es, waitCh)
		return nil, nil
	})
	if err != nil {
		return err
	}
	select {
	case err := <-waitCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-h.closed:
		return ErrSessionClosed
	}
}

// RequestTCPIPForward issues the "tcpip-forward" global request, asking the
// peer to listen on bindAddr:bindPort and forward inbound connections to us
// as "forwarded-tcpip" channels. Blocks for REQUEST_SUCCESS/FAILURE.
func (h *Handle) RequestTCPIPForward(ctx context.Context, bindAddr string, bindPort uint32) error {
	return h.globalRequestAndWait(ctx, func(es *EncryptedState, waiter chan<- error) {
		es.GlobalRequestTCPIPForward(bindAddr, bindPort, waiter)
	})
}

// CancelTCPIPForward issues the "cancel-tcpip-forward" global request.
func (h *Handle) CancelTCPIPForward(ctx context.Context, bindAddr string, bindPort uint32) error {
	return h.globalRequestAndWait(ctx, func(es *EncryptedState, waiter chan<- error) {
		es.GlobalRequestCancelTCPIPForward(bindAddr, bindPort, waiter)
	})
}

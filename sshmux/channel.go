package sshmux

import (
	"math"

	"github.com/pkg/errors"

	"github.com/xtaci/sshmux/wirebuf"
)

// channelState names the coarse state-machine position of a Channel record
// (spec §4.2). It is diagnostic — the real state lives in the confirmed/
// localEOF/peerEOF/localClosed/peerClosed fields — but tests and logging
// want a single label.
type channelState int

const (
	stateOpenSent channelState = iota
	stateOpen
	stateEofSent
	stateEofReceived
	stateClosedBothSides
)

func (s channelState) String() string {
	switch s {
	case stateOpenSent:
		return "OpenSent"
	case stateOpen:
		return "Open"
	case stateEofSent:
		return "EofSent"
	case stateEofReceived:
		return "EofReceived"
	case stateClosedBothSides:
		return "ClosedBothSides"
	default:
		return "unknown"
	}
}

// pendingChunk is one unsent slice of data (or extended data) queued
// because the sender window or max packet size did not allow it to be
// emitted immediately.
type pendingChunk struct {
	isExt bool
	ext   uint32
	data  []byte
}

// Channel is the per-channel record owned exclusively by the session's
// EncryptedState (spec §3). Field names mirror the spec's data model
// directly: sender* fields describe credit for sending TO the peer,
// recipient* fields describe the window/packet-size WE have granted the
// peer for sending to US.
type Channel struct {
	localID          ChannelId
	recipientChannel ChannelId

	senderWindowSize       uint32
	senderMaximumPacket    uint32
	recipientWindowSize    uint32
	recipientMaximumPacket uint32

	confirmed  bool
	wantsReply bool

	pending []pendingChunk

	localEOF, peerEOF       bool
	localClosed, peerClosed bool

	state channelState

	// window mirrors senderWindowSize for a ChannelHandle's use outside the
	// session goroutine (queue.go). Nil until a handle is obtained for this
	// channel; only ever grown here, so it never needs to track drain's
	// consumption (see EncryptedState.AttachWindowCell).
	window *windowCell

	// inbox is where peer-initiated events for this channel are delivered
	// once a ChannelHandle exists for it; nil means the Handler consumes
	// them synchronously instead (see EncryptedState.AttachInbox/PushEvent).
	inbox *eventQueue

	// openWait is set for a locally-initiated channel whose caller is
	// blocked awaiting CHANNEL_OPEN_CONFIRMATION/FAILURE (Handle.ChannelOpen*).
	openWait chan<- openResult
}

// openResult is delivered exactly once to a Channel.openWait channel when
// the peer answers a locally-initiated CHANNEL_OPEN.
type openResult struct {
	recipientChannel ChannelId
	window           uint32
	maxPacket        uint32
	err              error
}

// ID returns the channel's locally assigned identifier.
func (c *Channel) ID() ChannelId { return c.localID }

// State reports the channel's coarse state-machine position.
func (c *Channel) State() channelState { return c.state }

// Confirmed reports whether CHANNEL_OPEN_CONFIRMATION has been processed
// for this channel.
func (c *Channel) Confirmed() bool { return c.confirmed }

// SenderWindowSize returns the remaining credit to send to the peer.
func (c *Channel) SenderWindowSize() uint32 { return c.senderWindowSize }

// SenderMaximumPacket returns the largest single DATA payload this channel
// may send to the peer.
func (c *Channel) SenderMaximumPacket() uint32 { return c.senderMaximumPacket }

func (c *Channel) updateState() {
	switch {
	case c.localClosed && c.peerClosed:
		c.state = stateClosedBothSides
	case c.localEOF && !c.peerEOF:
		c.state = stateEofSent
	case c.peerEOF && !c.localEOF:
		c.state = stateEofReceived
	case c.localEOF && c.peerEOF:
		c.state = stateEofSent
	case c.confirmed:
		c.state = stateOpen
	default:
		c.state = stateOpenSent
	}
}

func saturatingAddU32(a, b uint32) uint32 {
	sum := uint64(a) + uint64(b)
	if sum > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(sum)
}

// EncryptedState owns all post-handshake protocol state for one connection:
// the channel table, the queue of not-yet-sealed outbound messages,
// compression, and rekey-in-progress tracking (spec §4.2, §3).
//
// Grounded on smux's Session: the channels map mirrors Session.streams, and
// queueMessage/Flush split what smux's sendLoop does in one step into the
// two stages spec.md's flush() requires (enqueue plaintext, then seal).
type EncryptedState struct {
	ids      idAllocator
	channels map[ChannelId]*Channel

	// messages holds plaintext packet payloads (opcode byte included)
	// waiting to be sealed by Flush. Appending here never blocks; sealing
	// happens once per session-loop iteration.
	messages [][]byte

	compress   Compressor
	decompress Compressor

	rekeying bool

	// pendingGlobalRequests is the FIFO of waiters for outstanding
	// connection-scoped (non-channel) requests; see global.go.
	pendingGlobalRequests []chan<- error
}

// NewEncryptedState returns an EncryptedState with an empty channel table
// and identity compression.
func NewEncryptedState() *EncryptedState {
	return &EncryptedState{
		channels:   make(map[ChannelId]*Channel),
		compress:   NullCompressor{},
		decompress: NullCompressor{},
	}
}

// SetCompressor installs the compressor/decompressor pair used for
// subsequent traffic (normally set once, at key-exchange completion).
func (es *EncryptedState) SetCompressor(c Compressor) {
	es.compress = c
	es.decompress = c
}

// IsRekeying reports whether a key exchange is in progress. While true, the
// session loop must not dispatch application-mailbox messages (spec §4.4).
func (es *EncryptedState) IsRekeying() bool { return es.rekeying }

// StartRekey marks a key exchange as begun.
func (es *EncryptedState) StartRekey() { es.rekeying = true }

// FinishRekey marks a key exchange as complete.
func (es *EncryptedState) FinishRekey() { es.rekeying = false }

// Channel looks up a channel by id without requiring confirmation.
func (es *EncryptedState) Channel(id ChannelId) (*Channel, bool) {
	ch, ok := es.channels[id]
	return ch, ok
}

// NumChannels reports how many channels remain in the table.
func (es *EncryptedState) NumChannels() int { return len(es.channels) }

// AttachWindowCell lazily creates the windowCell a ChannelHandle uses to
// throttle Data/ExtendedData without taking the session's lock, seeded with
// the channel's current sender window. Safe to call more than once; later
// calls return the same cell.
func (es *EncryptedState) AttachWindowCell(id ChannelId) (*windowCell, bool) {
	ch, ok := es.channels[id]
	if !ok {
		return nil, false
	}
	if ch.window == nil {
		ch.window = newWindowCell(ch.senderWindowSize)
	}
	return ch.window, true
}

// AttachInbox lazily creates the eventQueue a ChannelHandle drains via
// Wait. Safe to call more than once; later calls return the same queue.
func (es *EncryptedState) AttachInbox(id ChannelId) (*eventQueue, bool) {
	ch, ok := es.channels[id]
	if !ok {
		return nil, false
	}
	if ch.inbox == nil {
		ch.inbox = newEventQueue()
	}
	return ch.inbox, true
}

// PushEvent delivers msg to id's inbox if a ChannelHandle has attached one,
// reporting whether it did. The caller (the session's dispatch loop) falls
// back to invoking the Handler synchronously when it did not.
func (es *EncryptedState) PushEvent(id ChannelId, msg ChannelMsg) bool {
	ch, ok := es.channels[id]
	if !ok || ch.inbox == nil {
		return false
	}
	ch.inbox.Push(msg)
	return true
}

func (es *EncryptedState) requireConfirmed(id ChannelId) (*Channel, error) {
	ch, ok := es.channels[id]
	if !ok {
		return nil, ErrUnknownChannel
	}
	if !ch.confirmed {
		return nil, ErrChannelNotConfirmed
	}
	return ch, nil
}

func (es *EncryptedState) queueMessage(payload []byte) {
	es.messages = append(es.messages, payload)
}

func encodeHeader(opcode byte, recipient ChannelId) []byte {
	b := make([]byte, 0, 5)
	b = putByte(b, opcode)
	b = putUint32(b, uint32(recipient))
	return b
}

// --- local (this side initiated) channel open --------------------------

func (es *EncryptedState) newLocalChannel(window, maxPacket uint32) *Channel {
	id := es.ids.allocate(es.channels)
	ch := &Channel{
		localID:                id,
		recipientWindowSize:    window,
		recipientMaximumPacket: maxPacket,
		state:                  stateOpenSent,
	}
	es.channels[id] = ch
	return ch
}

// AwaitOpen registers waitCh to receive the single openResult produced when
// id's CHANNEL_OPEN_CONFIRMATION or CHANNEL_OPEN_FAILURE is processed.
// waitCh must have capacity at least 1.
func (es *EncryptedState) AwaitOpen(id ChannelId, waitCh chan<- openResult) {
	if ch, ok := es.channels[id]; ok {
		ch.openWait = waitCh
	}
}

// OpenSession allocates a new "session" channel and queues its CHANNEL_OPEN
// message. window/maxPacket are the credit WE grant the peer for sending to
// us.
func (es *EncryptedState) OpenSession(window, maxPacket uint32) ChannelId {
	ch := es.newLocalChannel(window, maxPacket)
	payload := putByte(nil, msgChannelOpen)
	payload = putString(payload, openTypeSession)
	payload = putUint32(payload, uint32(ch.localID))
	payload = putUint32(payload, window)
	payload = putUint32(payload, maxPacket)
	es.queueMessage(payload)
	return ch.localID
}

// OpenDirectTCPIP allocates a new "direct-tcpip" channel (client requesting
// the server connect onward to hostToConnect:portToConnect) and queues its
// CHANNEL_OPEN message.
func (es *EncryptedState) OpenDirectTCPIP(hostToConnect string, portToConnect uint32, originatorAddr string, originatorPort uint32, window, maxPacket uint32) ChannelId {
	ch := es.newLocalChannel(window, maxPacket)
	payload := putByte(nil, msgChannelOpen)
	payload = putString(payload, openTypeDirectTCPIP)
	payload = putUint32(payload, uint32(ch.localID))
	payload = putUint32(payload, window)
	payload = putUint32(payload, maxPacket)
	payload = putString(payload, hostToConnect)
	payload = putUint32(payload, portToConnect)
	payload = putString(payload, originatorAddr)
	payload = putUint32(payload, originatorPort)
	es.queueMessage(payload)
	return ch.localID
}

// OpenForwardedTCPIP allocates a new "forwarded-tcpip" channel (server
// announcing an inbound connection on a port the peer asked to forward) and
// queues its CHANNEL_OPEN message.
func (es *EncryptedState) OpenForwardedTCPIP(connectedAddr string, connectedPort uint32, originatorAddr string, originatorPort uint32, window, maxPacket uint32) ChannelId {
	ch := es.newLocalChannel(window, maxPacket)
	payload := putByte(nil, msgChannelOpen)
	payload = putString(payload, openTypeForwardedTCPIP)
	payload = putUint32(payload, uint32(ch.localID))
	payload = putUint32(payload, window)
	payload = putUint32(payload, maxPacket)
	payload = putString(payload, connectedAddr)
	payload = putUint32(payload, connectedPort)
	payload = putString(payload, originatorAddr)
	payload = putUint32(payload, originatorPort)
	es.queueMessage(payload)
	return ch.localID
}

// HandleOpenConfirmation processes a peer's CHANNEL_OPEN_CONFIRMATION for a
// channel we opened locally: OpenSent -> Open.
func (es *EncryptedState) HandleOpenConfirmation(id ChannelId, recipientChannel ChannelId, window, maxPacket uint32) error {
	ch, ok := es.channels[id]
	if !ok {
		return ErrUnknownChannel
	}
	ch.recipientChannel = recipientChannel
	ch.senderWindowSize = window
	ch.senderMaximumPacket = maxPacket
	ch.confirmed = true
	ch.updateState()
	if ch.openWait != nil {
		ch.openWait <- openResult{recipientChannel: recipientChannel, window: window, maxPacket: maxPacket}
		ch.openWait = nil
	}
	return nil
}

// HandleOpenFailure processes a peer's CHANNEL_OPEN_FAILURE: the record is
// removed, OpenSent -> terminal.
func (es *EncryptedState) HandleOpenFailure(id ChannelId, reasonCode uint32, description string) error {
	ch, ok := es.channels[id]
	if !ok {
		return ErrUnknownChannel
	}
	if ch.openWait != nil {
		ch.openWait <- openResult{err: errors.Wrapf(ErrOpenFailure, "reason %d: %s", reasonCode, description)}
		ch.openWait = nil
	}
	delete(es.channels, id)
	return nil
}

// --- peer-initiated channel open -----------------------------------------

// AcceptPeerOpen accepts a peer's CHANNEL_OPEN, allocating a confirmed
// local record and queuing CHANNEL_OPEN_CONFIRMATION. window/maxPacket are
// the credit WE grant the peer for sending to us.
func (es *EncryptedState) AcceptPeerOpen(peerChannel ChannelId, peerWindow, peerMaxPacket, window, maxPacket uint32) ChannelId {
	id := es.ids.allocate(es.channels)
	ch := &Channel{
		localID:                id,
		recipientChannel:       peerChannel,
		senderWindowSize:       peerWindow,
		senderMaximumPacket:    peerMaxPacket,
		recipientWindowSize:    window,
		recipientMaximumPacket: maxPacket,
		confirmed:              true,
	}
	ch.updateState()
	es.channels[id] = ch

	payload := putByte(nil, msgChannelOpenConfirmation)
	payload = putUint32(payload, uint32(peerChannel))
	payload = putUint32(payload, uint32(id))
	payload = putUint32(payload, window)
	payload = putUint32(payload, maxPacket)
	es.queueMessage(payload)
	return id
}

// RejectPeerOpen declines a peer's CHANNEL_OPEN with CHANNEL_OPEN_FAILURE.
// No local record is ever created.
func (es *EncryptedState) RejectPeerOpen(peerChannel ChannelId, reasonCode uint32, description, language string) {
	payload := putByte(nil, msgChannelOpenFailure)
	payload = putUint32(payload, uint32(peerChannel))
	payload = putUint32(payload, reasonCode)
	payload = putString(payload, description)
	payload = putString(payload, language)
	es.queueMessage(payload)
}

// --- data / flow control --------------------------------------------------

// drain emits as many queued DATA/EXTENDED_DATA packets for ch as its
// current sender window and maximum packet size allow, returning the
// number of payload bytes actually queued for sealing.
func (es *EncryptedState) drain(ch *Channel) int {
	sent := 0
	for len(ch.pending) > 0 && ch.senderWindowSize > 0 {
		chunk := &ch.pending[0]

		limit := ch.senderWindowSize
		if ch.senderMaximumPacket > 0 && ch.senderMaximumPacket < limit {
			limit = ch.senderMaximumPacket
		}
		n := uint32(len(chunk.data))
		if n > limit {
			n = limit
		}
		if n == 0 {
			break
		}

		toSend := chunk.data[:n]
		var payload []byte
		if chunk.isExt {
			payload = encodeHeader(msgChannelExtendedData, ch.recipientChannel)
			payload = putUint32(payload, chunk.ext)
			payload = putBytes(payload, toSend)
		} else {
			payload = encodeHeader(msgChannelData, ch.recipientChannel)
			payload = putBytes(payload, toSend)
		}
		es.queueMessage(payload)
		ch.senderWindowSize -= n
		sent += int(n)

		chunk.data = chunk.data[n:]
		if len(chunk.data) == 0 {
			ch.pending = ch.pending[1:]
		}
	}
	return sent
}

// Data appends bytes to ch's pending queue and drains as far as the window
// allows, emitting CHANNEL_DATA packets (spec §4.2).
func (es *EncryptedState) Data(id ChannelId, data []byte) error {
	ch, err := es.requireConfirmed(id)
	if err != nil {
		return err
	}
	if ch.localEOF {
		return ErrChannelHalfClosed
	}
	if len(data) > 0 {
		ch.pending = append(ch.pending, pendingChunk{data: append([]byte(nil), data...)})
	}
	es.drain(ch)
	return nil
}

// ExtendedData is Data's counterpart for CHANNEL_EXTENDED_DATA (e.g. stderr,
// ext == SSH_EXTENDED_DATA_STDERR == 1).
func (es *EncryptedState) ExtendedData(id ChannelId, ext uint32, data []byte) error {
	ch, err := es.requireConfirmed(id)
	if err != nil {
		return err
	}
	if ch.localEOF {
		return ErrChannelHalfClosed
	}
	if len(data) > 0 {
		ch.pending = append(ch.pending, pendingChunk{isExt: true, ext: ext, data: append([]byte(nil), data...)})
	}
	es.drain(ch)
	return nil
}

// FlushPending retries draining one channel's pending queue, typically
// called immediately after a peer WINDOW_ADJUST. Returns bytes actually
// queued for sealing.
func (es *EncryptedState) FlushPending(id ChannelId) int {
	ch, ok := es.channels[id]
	if !ok {
		return 0
	}
	return es.drain(ch)
}

// WindowAdjust applies a peer CHANNEL_WINDOW_ADJUST: saturating add to
// sender_window_size, clamped to 2^32-1 (spec §9: saturate, never wrap),
// then immediately retries the pending queue.
func (es *EncryptedState) WindowAdjust(id ChannelId, n uint32) (int, error) {
	ch, ok := es.channels[id]
	if !ok {
		return 0, ErrUnknownChannel
	}
	ch.senderWindowSize = saturatingAddU32(ch.senderWindowSize, n)
	if ch.window != nil {
		ch.window.Grow(n)
	}
	return es.drain(ch), nil
}

// --- eof / close -----------------------------------------------------------

// Eof sends CHANNEL_EOF for id, unless already sent. Data SHALL NOT be
// emitted afterward (enforced by Data/ExtendedData's localEOF check).
func (es *EncryptedState) Eof(id ChannelId) error {
	ch, err := es.requireConfirmed(id)
	if err != nil {
		return err
	}
	if ch.localEOF {
		return nil
	}
	es.queueMessage(encodeHeader(msgChannelEOF, ch.recipientChannel))
	ch.localEOF = true
	ch.updateState()
	return nil
}

// Close sends CHANNEL_CLOSE for id, unless already sent, and removes the
// channel from the table once both sides have sent CLOSE.
func (es *EncryptedState) Close(id ChannelId) error {
	ch, ok := es.channels[id]
	if !ok {
		return ErrUnknownChannel
	}
	if !ch.localClosed {
		es.queueMessage(encodeHeader(msgChannelClose, ch.recipientChannel))
		ch.localClosed = true
		ch.updateState()
	}
	if ch.localClosed && ch.peerClosed {
		if ch.window != nil {
			ch.window.Close()
		}
		if ch.inbox != nil {
			ch.inbox.Close()
		}
		delete(es.channels, id)
	}
	return nil
}

// HandlePeerEOF records a peer's CHANNEL_EOF.
func (es *EncryptedState) HandlePeerEOF(id ChannelId) error {
	ch, ok := es.channels[id]
	if !ok {
		return ErrUnknownChannel
	}
	ch.peerEOF = true
	ch.updateState()
	return nil
}

// HandlePeerClose records a peer's CHANNEL_CLOSE, auto-responding with our
// own CLOSE if we had not already sent one, and removes the channel once
// both sides have closed.
func (es *EncryptedState) HandlePeerClose(id ChannelId) error {
	ch, ok := es.channels[id]
	if !ok {
		return ErrUnknownChannel
	}
	ch.peerClosed = true
	ch.updateState()
	if !ch.localClosed {
		return es.Close(id)
	}
	if ch.window != nil {
		ch.window.Close()
	}
	if ch.inbox != nil {
		ch.inbox.Close()
	}
	delete(es.channels, id)
	return nil
}

// --- channel requests (client vocabulary) -----------------------------

func (es *EncryptedState) channelRequest(id ChannelId, reqType string, wantReply bool, extra []byte) error {
	ch, err := es.requireConfirmed(id)
	if err != nil {
		return err
	}
	payload := encodeHeader(msgChannelRequest, ch.recipientChannel)
	payload = putString(payload, reqType)
	payload = putBool(payload, wantReply)
	payload = append(payload, extra...)
	es.queueMessage(payload)
	if wantReply {
		ch.wantsReply = true
	}
	return nil
}

// RequestPty encodes a "pty-req" channel request.
func (es *EncryptedState) RequestPty(id ChannelId, wantReply bool, term string, cols, rows, pixW, pixH uint32, modes []byte) error {
	extra := putString(nil, term)
	extra = putUint32(extra, cols)
	extra = putUint32(extra, rows)
	extra = putUint32(extra, pixW)
	extra = putUint32(extra, pixH)
	extra = putBytes(extra, modes)
	return es.channelRequest(id, "pty-req", wantReply, extra)
}

// RequestShell encodes a "shell" channel request.
func (es *EncryptedState) RequestShell(id ChannelId, wantReply bool) error {
	return es.channelRequest(id, "shell", wantReply, nil)
}

// RequestExec encodes an "exec" channel request.
func (es *EncryptedState) RequestExec(id ChannelId, wantReply bool, command string) error {
	return es.channelRequest(id, "exec", wantReply, putString(nil, command))
}

// RequestSubsystem encodes a "subsystem" channel request.
func (es *EncryptedState) RequestSubsystem(id ChannelId, wantReply bool, name string) error {
	return es.channelRequest(id, "subsystem", wantReply, putString(nil, name))
}

// RequestSignal encodes a "signal" channel request (never wants a reply,
// per RFC 4254 §6.9).
func (es *EncryptedState) RequestSignal(id ChannelId, signalName string) error {
	return es.channelRequest(id, "signal", false, putString(nil, signalName))
}

// RequestX11 encodes an "x11-req" channel request.
func (es *EncryptedState) RequestX11(id ChannelId, wantReply, singleConnection bool, authProtocol, authCookie string, screenNumber uint32) error {
	extra := putBool(nil, singleConnection)
	extra = putString(extra, authProtocol)
	extra = putString(extra, authCookie)
	extra = putUint32(extra, screenNumber)
	return es.channelRequest(id, "x11-req", wantReply, extra)
}

// RequestEnv encodes an "env" channel request.
func (es *EncryptedState) RequestEnv(id ChannelId, wantReply bool, name, value string) error {
	extra := putString(nil, name)
	extra = putString(extra, value)
	return es.channelRequest(id, "env", wantReply, extra)
}

// RequestWindowChange encodes a "window-change" channel request (never
// wants a reply).
func (es *EncryptedState) RequestWindowChange(id ChannelId, cols, rows, pixW, pixH uint32) error {
	extra := putUint32(nil, cols)
	extra = putUint32(extra, rows)
	extra = putUint32(extra, pixW)
	extra = putUint32(extra, pixH)
	return es.channelRequest(id, "window-change", false, extra)
}

// RequestAgentForward encodes an "agent-req" channel request.
func (es *EncryptedState) RequestAgentForward(id ChannelId, wantReply bool) error {
	return es.channelRequest(id, "agent-req", wantReply, nil)
}

// --- channel requests/reports (server vocabulary) -----------------------

// XonXoff encodes an "xon-xoff" channel request.
func (es *EncryptedState) XonXoff(id ChannelId, clientCanDo bool) error {
	return es.channelRequest(id, "xon-xoff", false, putBool(nil, clientCanDo))
}

// ExitStatus encodes an "exit-status" channel request.
func (es *EncryptedState) ExitStatus(id ChannelId, status uint32) error {
	return es.channelRequest(id, "exit-status", false, putUint32(nil, status))
}

// ExitSignal encodes an "exit-signal" channel request.
func (es *EncryptedState) ExitSignal(id ChannelId, signalName string, coreDumped bool, errorMessage, langTag string) error {
	extra := putString(nil, signalName)
	extra = putBool(extra, coreDumped)
	extra = putString(extra, errorMessage)
	extra = putString(extra, langTag)
	return es.channelRequest(id, "exit-signal", false, extra)
}

// ChannelSuccess/ChannelFailure reply to a wants-reply CHANNEL_REQUEST.

// ChannelSuccess sends CHANNEL_SUCCESS for id and clears wantsReply.
func (es *EncryptedState) ChannelSuccess(id ChannelId) error {
	ch, ok := es.channels[id]
	if !ok {
		return ErrUnknownChannel
	}
	es.queueMessage(encodeHeader(msgChannelSuccess, ch.recipientChannel))
	ch.wantsReply = false
	return nil
}

// ChannelFailure sends CHANNEL_FAILURE for id and clears wantsReply.
func (es *EncryptedState) ChannelFailure(id ChannelId) error {
	ch, ok := es.channels[id]
	if !ok {
		return ErrUnknownChannel
	}
	es.queueMessage(encodeHeader(msgChannelFailure, ch.recipientChannel))
	ch.wantsReply = false
	return nil
}

// --- flush -----------------------------------------------------------------

// Flush seals every queued plaintext message into wire, using cipher, and
// reports whether wire's rekey thresholds have been crossed (spec §4.2).
func (es *EncryptedState) Flush(limits wirebuf.RekeyLimits, cipher wirebuf.SealingCipher, wire *wirebuf.Buffer) (needsRekey bool, err error) {
	for _, msg := range es.messages {
		if err := wirebuf.AppendPacket(wire, cipher, es.compress.Compress(msg), randomPadding); err != nil {
			return false, err
		}
	}
	es.messages = es.messages[:0]
	return wire.ExceedsRekeyLimits(limits), nil
}

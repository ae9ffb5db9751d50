package sshmux

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/xtaci/sshmux/metrics"
	"github.com/xtaci/sshmux/wirebuf"
)

// Logger is the narrow logging collaborator Session needs; *log.Logger
// satisfies it directly.
type Logger interface {
	Printf(format string, args ...any)
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

// Rekeyer performs a key re-exchange, returning the ciphers to use
// afterward. Full Diffie-Hellman key exchange is out of scope here; the
// zero value, nullRekeyer, satisfies the interface by keeping the existing
// ciphers while still exercising the rekey-quiescence machinery (spec §4.4,
// §9) that a real KEX implementation would plug into unchanged.
type Rekeyer interface {
	Rekey(ctx context.Context, seal wirebuf.SealingCipher, open wirebuf.OpeningCipher) (wirebuf.SealingCipher, wirebuf.OpeningCipher, error)
}

type nullRekeyer struct{}

func (nullRekeyer) Rekey(_ context.Context, seal wirebuf.SealingCipher, open wirebuf.OpeningCipher) (wirebuf.SealingCipher, wirebuf.OpeningCipher, error) {
	return seal, open, nil
}

// Config controls a Session's behavior.
type Config struct {
	// WindowSize and MaximumPacketSize are the defaults a Handler may use
	// when accepting a peer-initiated channel.
	WindowSize        uint32
	MaximumPacketSize uint32

	// ConnectionTimeout bounds how long a single read may block before the
	// connection is considered dead.
	ConnectionTimeout time.Duration

	// RekeyLimits bounds how many bytes or packets may cross the wire in
	// one direction before a rekey is initiated.
	RekeyLimits wirebuf.RekeyLimits

	// Identification is this side's SSH identification string.
	Identification string

	// MailboxCapacity bounds the session-inbound command mailbox
	// (ChannelHandle/Handle operations queue here before being applied).
	MailboxCapacity int

	// Rekeyer performs key re-exchange; DefaultConfig uses nullRekeyer.
	Rekeyer Rekeyer

	// Logger receives diagnostic lines (unsolicited global replies,
	// ignored opcodes, rekey failures). DefaultConfig discards them.
	Logger Logger

	// Metrics, if non-nil, receives PacketsSent/PacketsReceived/Rekeys
	// counts as Run drives the connection. Channel- and byte-level
	// counters remain the Handler's responsibility (Run sees framed
	// packets, not channel semantics).
	Metrics *metrics.Counters
}

// DefaultConfig returns reasonable defaults grounded on RFC 4253's
// recommended 1GB/2^31-packet rekey thresholds and smux's default stream
// window.
func DefaultConfig() Config {
	return Config{
		WindowSize:        2 * 1024 * 1024,
		MaximumPacketSize: 32 * 1024,
		ConnectionTimeout:  2 * time.Minute,
		RekeyLimits: wirebuf.RekeyLimits{
			Bytes:   1 << 30,
			Packets: 1 << 31,
		},
		Identification:  "SSH-2.0-sshmux",
		MailboxCapacity: 256,
		Rekeyer:         nullRekeyer{},
		Logger:          discardLogger{},
	}
}

// Handler reacts to peer-initiated events a Session does not otherwise
// resolve on its own (spec §4.4/§6). Every method is invoked synchronously
// from the session's own goroutine: a Handler must not block, and may call
// back into the accept/reject closures it is given at most once.
type Handler interface {
	// HandleChannelOpen decides how to answer a peer's CHANNEL_OPEN.
	// Calling accept confirms the channel and returns a ready-to-use
	// ChannelHandle; calling reject sends CHANNEL_OPEN_FAILURE. If it
	// returns having called neither, the Session rejects the channel with
	// SSH_OPEN_ADMINISTRATIVELY_PROHIBITED.
	HandleChannelOpen(s *Session, msg ChannelMsg, accept func(window, maxPacket uint32) *ChannelHandle, reject func(reasonCode uint32, description string))

	// HandleChannelMsg reacts to any other event that no ChannelHandle
	// receives: every event for a channel never handed off to one, and the
	// MsgClose for a peer CLOSE, which is dispatched after the channel has
	// already left the table (msg.Kind is never MsgOpen here).
	HandleChannelMsg(s *Session, msg ChannelMsg)

	// HandleGlobalRequest reacts to a peer's GLOBAL_REQUEST. accept sends
	// REQUEST_SUCCESS (with an optional type-specific response payload);
	// reject sends REQUEST_FAILURE. If wantReply is false neither call is
	// required.
	HandleGlobalRequest(s *Session, reqType string, wantReply bool, payload []byte, accept func(response []byte), reject func())
}

// errDisconnected unwinds Run cleanly on a peer SSH_MSG_DISCONNECT.
var errDisconnected = errors.New("sshmux: peer sent DISCONNECT")

type inboundResult struct {
	payload []byte
	err     error
}

type rekeyOutcome struct {
	seal wirebuf.SealingCipher
	open wirebuf.OpeningCipher
	err  error
}

// Session owns one SSH connection end to end: the single goroutine running
// Run is the sole mutator of EncryptedState, matching the "single task owns
// the transport" discipline spec.md requires (grounded on smux's Session
// event loop in mux.go/session.go, generalized from smux's raw-stream
// multiplexing to SSH's channel/request vocabulary).
type Session struct {
	conn   net.Conn
	reader io.Reader
	cfg    Config
	handler Handler

	encrypted *EncryptedState
	writeBuf  *wirebuf.Buffer

	sealCipher        wirebuf.SealingCipher
	initialOpenCipher wirebuf.OpeningCipher
	openCipherMirror  wirebuf.OpeningCipher

	mailbox  chan sessionCommand
	closedCh chan struct{}
}

// NewSession wraps an already-connected transport. Identification exchange
// must already have happened via ExchangeIdentification, and reader must be
// the bufio.Reader it returned (or conn itself, if identification was
// exchanged out of band and nothing was over-read).
func NewSession(conn net.Conn, reader io.Reader, cfg Config, handler Handler, seal wirebuf.SealingCipher, open wirebuf.OpeningCipher) *Session {
	if cfg.Rekeyer == nil {
		cfg.Rekeyer = nullRekeyer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger{}
	}
	s := &Session{
		conn:              conn,
		reader:            reader,
		cfg:               cfg,
		handler:           handler,
		encrypted:         NewEncryptedState(),
		writeBuf:          wirebuf.New(),
		sealCipher:        seal,
		initialOpenCipher: open,
		openCipherMirror:  open,
		mailbox:           make(chan sessionCommand, cfg.MailboxCapacity),
		closedCh:          make(chan struct{}),
	}
	return s
}

// Handle returns a cloneable, session-wide Handle for opening channels and
// issuing global requests from any goroutine.
func (s *Session) Handle() *Handle {
	return &Handle{mailbox: s.mailbox, closed: s.closedCh}
}

// SetCompressor installs the compressor/decompressor used for subsequent
// traffic.
func (s *Session) SetCompressor(c Compressor) {
	s.encrypted.SetCompressor(c)
}

func (s *Session) logf(format string, args ...any) {
	s.cfg.Logger.Printf(format, args...)
}

func (s *Session) readLoop(cipher wirebuf.OpeningCipher, out chan<- inboundResult, cipherUpdates <-chan wirebuf.OpeningCipher, readerDone chan<- struct{}) {
	defer close(readerDone)
	var seqn uint32

	for {
		select {
		case nc := <-cipherUpdates:
			cipher = nc
		default:
		}

		if s.cfg.ConnectionTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ConnectionTimeout))
		}

		payload, err := wirebuf.ReadPacket(s.reader, cipher, seqn)
		if err != nil {
			select {
			case out <- inboundResult{err: err}:
			case <-s.closedCh:
			}
			return
		}
		seqn++
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.PacketsReceived.Add(1)
		}

		select {
		case out <- inboundResult{payload: payload}:
		case <-s.closedCh:
			return
		}
	}
}

// drainReader discards inbound results until readLoop exits (ReadPacket
// returned an error, typically io.EOF once the peer closes its write half).
// packets is unbuffered, so by the time readerDone closes, readLoop's final
// send has already been received here — nothing is dropped.
func (s *Session) drainReader(packets <-chan inboundResult, readerDone <-chan struct{}) {
	for {
		select {
		case <-packets:
		case <-readerDone:
			return
		}
	}
}

// Run drives the session's event loop until ctx is cancelled, a
// SSH_MSG_DISCONNECT is received, or a protocol-fatal error occurs. It
// always shuts the writer down and drains the reader goroutine before
// returning, even on error.
func (s *Session) Run(ctx context.Context) error {
	packets := make(chan inboundResult)
	cipherUpdates := make(chan wirebuf.OpeningCipher, 1)
	readerDone := make(chan struct{})
	rekeyDone := make(chan rekeyOutcome, 1)

	go s.readLoop(s.initialOpenCipher, packets, cipherUpdates, readerDone)

	defer func() {
		// Shut down the write half only, then keep draining the reader
		// until it sees EOF (or its own read deadline), so any bytes the
		// peer still has in flight are consumed instead of producing a
		// TCP RST; only then do we tear the connection down fully.
		if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
			_ = cw.CloseWrite()
		} else {
			_ = s.conn.Close()
		}
		s.drainReader(packets, readerDone)
		close(s.closedCh)
		_ = s.conn.Close()
	}()

	for {
		var mailbox chan sessionCommand
		if !s.encrypted.IsRekeying() {
			mailbox = s.mailbox
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case res := <-packets:
			if res.err != nil {
				return errors.Wrap(res.err, "sshmux: reading packet")
			}
			if err := s.dispatch(res.payload); err != nil {
				if errors.Is(err, errDisconnected) {
					return nil
				}
				return err
			}

		case cmd := <-mailbox:
			value, err := cmd.apply(s.encrypted)
			if cmd.result != nil {
				cmd.result <- commandResult{value: value, err: err}
			}

		case outcome := <-rekeyDone:
			if outcome.err != nil {
				s.logf("sshmux: rekey failed, continuing with existing ciphers: %v", outcome.err)
			} else {
				s.sealCipher = outcome.seal
				s.openCipherMirror = outcome.open
				select {
				case cipherUpdates <- outcome.open:
				case <-s.closedCh:
				}
			}
			s.writeBuf.ResetRekeyCounters()
			s.encrypted.FinishRekey()
		}

		pendingPackets := len(s.encrypted.messages)
		needsRekey, err := s.encrypted.Flush(s.cfg.RekeyLimits, s.sealCipher, s.writeBuf)
		if err != nil {
			return errors.Wrap(err, "sshmux: sealing outbound packet")
		}
		if s.writeBuf.Len() > 0 {
			if _, err := s.conn.Write(s.writeBuf.Bytes()); err != nil {
				return errors.Wrap(err, "sshmux: writing to transport")
			}
			s.writeBuf.Drain()
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.PacketsSent.Add(uint64(pendingPackets))
			}
		}

		if needsRekey && !s.encrypted.IsRekeying() {
			s.encrypted.StartRekey()
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.Rekeys.Add(1)
			}
			seal, open := s.sealCipher, s.openCipherMirror
			go func() {
				newSeal, newOpen, err := s.cfg.Rekeyer.Rekey(context.Background(), seal, open)
				rekeyDone <- rekeyOutcome{seal: newSeal, open: newOpen, err: err}
			}()
		}
	}
}

// dispatch decodes and applies one decrypted packet payload.
func (s *Session) dispatch(raw []byte) error {
	payload, err := s.encrypted.decompress.Decompress(raw, nil)
	if err != nil {
		return errors.Wrap(err, "sshmux: decompressing packet")
	}
	if len(payload) < 1 {
		return ErrMalformedPacket
	}
	opcode := payload[0]
	r := newWireReader(payload[1:])

	switch opcode {
	case msgDisconnect:
		return errDisconnected

	case msgGlobalRequest:
		reqType := r.string()
		wantReply := r.bool()
		rest := r.rest()
		if r.err != nil {
			return r.err
		}
		s.dispatchGlobalRequest(reqType, wantReply, rest)
		return nil

	case msgRequestSuccess:
		if len(s.encrypted.pendingGlobalRequests) == 0 {
			s.logf("sshmux: ignoring unsolicited REQUEST_SUCCESS")
		}
		s.encrypted.HandleRequestSuccess()
		return nil

	case msgRequestFailure:
		if len(s.encrypted.pendingGlobalRequests) == 0 {
			s.logf("sshmux: ignoring unsolicited REQUEST_FAILURE")
		}
		s.encrypted.HandleRequestFailure()
		return nil

	case msgChannelOpen:
		openType := r.string()
		senderChannel := ChannelId(r.uint32())
		window := r.uint32()
		maxPacket := r.uint32()
		msg, err := decodeChannelOpen(openType, senderChannel, window, maxPacket, r)
		if err != nil {
			return err
		}
		s.dispatchChannelOpen(msg)
		return nil

	case msgChannelOpenConfirmation:
		id := ChannelId(r.uint32())
		recipientChannel := ChannelId(r.uint32())
		window := r.uint32()
		maxPacket := r.uint32()
		if r.err != nil {
			return r.err
		}
		return s.encrypted.HandleOpenConfirmation(id, recipientChannel, window, maxPacket)

	case msgChannelOpenFailure:
		id := ChannelId(r.uint32())
		reasonCode := r.uint32()
		description := r.string()
		_ = r.string()
		if r.err != nil {
			return r.err
		}
		return s.encrypted.HandleOpenFailure(id, reasonCode, description)

	case msgChannelWindowAdjust:
		id := ChannelId(r.uint32())
		n := r.uint32()
		if r.err != nil {
			return r.err
		}
		_, err := s.encrypted.WindowAdjust(id, n)
		return err

	case msgChannelData:
		id := ChannelId(r.uint32())
		data := r.bytes()
		if r.err != nil {
			return r.err
		}
		s.deliverOrHandle(id, ChannelMsg{Kind: MsgData, ChannelID: id, Data: data})
		return nil

	case msgChannelExtendedData:
		id := ChannelId(r.uint32())
		ext := r.uint32()
		data := r.bytes()
		if r.err != nil {
			return r.err
		}
		s.deliverOrHandle(id, ChannelMsg{Kind: MsgExtendedData, ChannelID: id, ExtendedCode: ext, Data: data})
		return nil

	case msgChannelEOF:
		id := ChannelId(r.uint32())
		if r.err != nil {
			return r.err
		}
		if err := s.encrypted.HandlePeerEOF(id); err != nil {
			return err
		}
		s.deliverOrHandle(id, ChannelMsg{Kind: MsgEof, ChannelID: id})
		return nil

	case msgChannelClose:
		id := ChannelId(r.uint32())
		if r.err != nil {
			return r.err
		}
		closeMsg := ChannelMsg{Kind: MsgClose, ChannelID: id}
		if err := s.encrypted.HandlePeerClose(id); err != nil {
			return err
		}
		s.deliverOrHandle(id, closeMsg)
		return nil

	case msgChannelRequest:
		id := ChannelId(r.uint32())
		reqType := r.string()
		wantReply := r.bool()
		msg, err := decodeChannelRequest(id, reqType, wantReply, r)
		if err != nil {
			return err
		}
		s.deliverOrHandle(id, msg)
		return nil

	case msgChannelSuccess:
		id := ChannelId(r.uint32())
		if r.err != nil {
			return r.err
		}
		s.deliverOrHandle(id, ChannelMsg{Kind: MsgSuccess, ChannelID: id})
		return nil

	case msgChannelFailure:
		id := ChannelId(r.uint32())
		if r.err != nil {
			return r.err
		}
		s.deliverOrHandle(id, ChannelMsg{Kind: MsgFailure, ChannelID: id})
		return nil

	default:
		// Transport/KEX-range and otherwise unreachable client-only
		// opcodes: log and ignore rather than treat as fatal (spec's
		// resolution of its own open question on this point).
		s.logf("sshmux: ignoring opcode %d outside channel/global-request vocabulary", opcode)
		return nil
	}
}

func (s *Session) deliverOrHandle(id ChannelId, msg ChannelMsg) {
	if !s.encrypted.PushEvent(id, msg) {
		s.handler.HandleChannelMsg(s, msg)
	}
}

func (s *Session) dispatchChannelOpen(msg ChannelMsg) {
	accepted := false
	accept := func(window, maxPacket uint32) *ChannelHandle {
		id := s.encrypted.AcceptPeerOpen(msg.SenderChannel, msg.InitialWindowSize, msg.MaximumPacketSize, window, maxPacket)
		window_, _ := s.encrypted.AttachWindowCell(id)
		inbox, _ := s.encrypted.AttachInbox(id)
		accepted = true
		return &ChannelHandle{
			id:        id,
			mailbox:   s.mailbox,
			closed:    s.closedCh,
			inbox:     inbox,
			window:    window_,
			maxPacket: msg.MaximumPacketSize,
		}
	}
	reject := func(reasonCode uint32, description string) {
		s.encrypted.RejectPeerOpen(msg.SenderChannel, reasonCode, description, "")
		accepted = true
	}

	s.handler.HandleChannelOpen(s, msg, accept, reject)
	if !accepted {
		s.encrypted.RejectPeerOpen(msg.SenderChannel, reasonAdministrativelyProhibited, "no response from handler", "")
	}
}

// reasonAdministrativelyProhibited is SSH_OPEN_ADMINISTRATIVELY_PROHIBITED
// (RFC 4254 §5.1), used when a Handler returns from HandleChannelOpen
// without calling either accept or reject.
const reasonAdministrativelyProhibited = 1

func (s *Session) dispatchGlobalRequest(reqType string, wantReply bool, payload []byte) {
	accept := func(response []byte) {
		if !wantReply {
			return
		}
		p := putByte(nil, msgRequestSuccess)
		p = append(p, response...)
		s.encrypted.queueMessage(p)
	}
	reject := func() {
		if !wantReply {
			return
		}
		s.encrypted.queueMessage(putByte(nil, msgRequestFailure))
	}
	s.handler.HandleGlobalRequest(s, reqType, wantReply, payload, accept, reject)
}

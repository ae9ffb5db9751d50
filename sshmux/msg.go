package sshmux

// ChannelMsgKind discriminates the ChannelMsg tagged union (spec §3's
// "channel event" type). Grounded on russh's ChannelMsg enum
// (original_source/russh/src/channels/mod.rs): each RFC 4254 channel-request
// type and state transition gets its own variant rather than a single
// generic "request" blob, so a Handler or ChannelHandle consumer can switch
// on Kind without re-parsing wire strings.
type ChannelMsgKind int

const (
	MsgOpen ChannelMsgKind = iota
	MsgOpenFailure
	MsgData
	MsgExtendedData
	MsgEof
	MsgClose
	MsgWindowAdjusted
	MsgSuccess
	MsgFailure

	// Client-vocabulary requests (sent by an SSH client, observed by a
	// server-side Handler).
	MsgRequestPty
	MsgRequestShell
	MsgExec
	MsgSignal
	MsgRequestSubsystem
	MsgRequestX11
	MsgSetEnv
	MsgWindowChange
	MsgAgentForward

	// Server-vocabulary requests/reports (sent by an SSH server, observed by
	// a client-side Handler).
	MsgXonXoff
	MsgExitStatus
	MsgExitSignal
)

// ChannelMsg is one decoded channel-scoped event, delivered either to a
// Handler (peer-initiated) or to a ChannelHandle's Wait (spec §4.3/§4.5).
// Only the fields relevant to Kind are populated; zero value for the rest.
type ChannelMsg struct {
	Kind ChannelMsgKind

	ChannelID ChannelId

	// MsgOpen
	OpenType              string
	SenderChannel         ChannelId
	InitialWindowSize     uint32
	MaximumPacketSize     uint32
	HostToConnect         string
	PortToConnect         uint32
	OriginatorAddress     string
	OriginatorPort        uint32

	// MsgOpenFailure
	ReasonCode  uint32
	Description string
	Language    string

	// MsgData / MsgExtendedData
	Data          []byte
	ExtendedCode  uint32

	// MsgWindowAdjusted
	BytesToAdd uint32

	// MsgRequestPty
	Term               string
	TerminalWidthChars uint32
	TerminalHeightRows uint32
	TerminalWidthPx    uint32
	TerminalHeightPx   uint32
	TerminalModes      []byte

	// MsgExec
	Command string

	// MsgSignal / MsgExitSignal
	SignalName   string
	CoreDumped   bool
	ErrorMessage string
	LangTag      string

	// MsgRequestSubsystem
	SubsystemName string

	// MsgRequestX11
	SingleConnection bool
	AuthProtocol     string
	AuthCookie       string
	ScreenNumber     uint32

	// MsgSetEnv
	VariableName  string
	VariableValue string

	// MsgWindowChange
	ColWidth   uint32
	RowHeight  uint32
	PixWidth   uint32
	PixHeight  uint32

	// MsgAgentForward / any request type with a reply flag
	WantReply bool

	// MsgXonXoff
	ClientCanDo bool

	// MsgExitStatus
	ExitStatus uint32
}

package sshmux

// decodeChannelRequest parses the request-type-specific tail of a
// CHANNEL_REQUEST packet (the recipient channel and request-type string and
// want-reply flag have already been consumed by the caller).
func decodeChannelRequest(id ChannelId, reqType string, wantReply bool, r *wireReader) (ChannelMsg, error) {
	msg := ChannelMsg{ChannelID: id, WantReply: wantReply}

	switch reqType {
	case "pty-req":
		msg.Kind = MsgRequestPty
		msg.Term = r.string()
		msg.TerminalWidthChars = r.uint32()
		msg.TerminalHeightRows = r.uint32()
		msg.TerminalWidthPx = r.uint32()
		msg.TerminalHeightPx = r.uint32()
		msg.TerminalModes = append([]byte(nil), r.bytes()...)
	case "shell":
		msg.Kind = MsgRequestShell
	case "exec":
		msg.Kind = MsgExec
		msg.Command = r.string()
	case "subsystem":
		msg.Kind = MsgRequestSubsystem
		msg.SubsystemName = r.string()
	case "signal":
		msg.Kind = MsgSignal
		msg.SignalName = r.string()
	case "x11-req":
		msg.Kind = MsgRequestX11
		msg.SingleConnection = r.bool()
		msg.AuthProtocol = r.string()
		msg.AuthCookie = r.string()
		msg.ScreenNumber = r.uint32()
	case "env":
		msg.Kind = MsgSetEnv
		msg.VariableName = r.string()
		msg.VariableValue = r.string()
	case "window-change":
		msg.Kind = MsgWindowChange
		msg.ColWidth = r.uint32()
		msg.RowHeight = r.uint32()
		msg.PixWidth = r.uint32()
		msg.PixHeight = r.uint32()
	case "agent-req":
		msg.Kind = MsgAgentForward
	case "xon-xoff":
		msg.Kind = MsgXonXoff
		msg.ClientCanDo = r.bool()
	case "exit-status":
		msg.Kind = MsgExitStatus
		msg.ExitStatus = r.uint32()
	case "exit-signal":
		msg.Kind = MsgExitSignal
		msg.SignalName = r.string()
		msg.CoreDumped = r.bool()
		msg.ErrorMessage = r.string()
		msg.LangTag = r.string()
	default:
		return ChannelMsg{}, ErrMalformedPacket
	}

	if r.err != nil {
		return ChannelMsg{}, r.err
	}
	return msg, nil
}

// decodeChannelOpen parses a peer CHANNEL_OPEN's type-specific tail (the
// channel-type string, sender channel, window and max-packet-size have
// already been consumed).
func decodeChannelOpen(openType string, senderChannel ChannelId, window, maxPacket uint32, r *wireReader) (ChannelMsg, error) {
	msg := ChannelMsg{
		Kind:              MsgOpen,
		OpenType:          openType,
		SenderChannel:     senderChannel,
		InitialWindowSize: window,
		MaximumPacketSize: maxPacket,
	}

	switch openType {
	case openTypeSession:
		// no type-specific fields
	case openTypeDirectTCPIP, openTypeForwardedTCPIP:
		msg.HostToConnect = r.string()
		msg.PortToConnect = r.uint32()
		msg.OriginatorAddress = r.string()
		msg.OriginatorPort = r.uint32()
	case openTypeX11:
		msg.OriginatorAddress = r.string()
		msg.OriginatorPort = r.uint32()
	default:
		// unknown channel type: caller replies CHANNEL_OPEN_FAILURE and
		// does not create a channel record. Not a protocol error in
		// itself, so no ErrMalformedPacket here.
	}

	if r.err != nil {
		return ChannelMsg{}, r.err
	}
	return msg, nil
}

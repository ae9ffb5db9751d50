package sshmux

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/xtaci/sshmux/wirebuf"
)

// maxPreambleLines bounds how many non-identification lines (RFC 4253 §4.2
// permits a peer to send banner text before its identification string) are
// tolerated before giving up.
const maxPreambleLines = 64

// ExchangeIdentification writes our identification line to w, then reads
// the peer's identification line from r, skipping any preamble lines that
// do not begin with "SSH-" (RFC 4253 §4.2).
//
// The returned *bufio.Reader MUST be used for every subsequent read on this
// connection (including the first wirebuf.ReadPacket call): bufio.Reader
// may already have buffered bytes belonging to the first binary packet
// alongside the identification line, and discarding it would drop them.
func ExchangeIdentification(w io.Writer, r io.Reader, ours wirebuf.IDString) (wirebuf.IDString, *bufio.Reader, error) {
	if _, err := w.Write(ours.Bytes()); err != nil {
		return wirebuf.IDString{}, nil, errors.Wrap(err, "sshmux: writing identification string")
	}

	br := bufio.NewReader(r)
	for i := 0; i < maxPreambleLines; i++ {
		line, err := br.ReadString('\n')
		if err != nil {
			return wirebuf.IDString{}, nil, errors.Wrap(err, "sshmux: reading peer identification string")
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(trimmed, "SSH-") {
			return wirebuf.Standard(trimmed), br, nil
		}
	}
	return wirebuf.IDString{}, nil, errors.New("sshmux: peer preamble exceeded maximum line count without an identification string")
}

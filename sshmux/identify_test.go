package sshmux

import (
	"bytes"
	"io"
	"testing"

	"github.com/xtaci/sshmux/wirebuf"
)

func TestExchangeIdentificationWritesOwnLine(t *testing.T) {
	var out bytes.Buffer
	in := bytes.NewBufferString("SSH-2.0-peer\r\n")

	_, _, err := ExchangeIdentification(&out, in, wirebuf.Standard("SSH-2.0-sshmux_test"))
	if err != nil {
		t.Fatalf("ExchangeIdentification: %v", err)
	}
	if out.String() != "SSH-2.0-sshmux_test\r\n" {
		t.Fatalf("wrote %q, want %q", out.String(), "SSH-2.0-sshmux_test\r\n")
	}
}

func TestExchangeIdentificationSkipsPreambleLines(t *testing.T) {
	var out bytes.Buffer
	in := bytes.NewBufferString("Welcome to our server\r\nNo robots allowed\r\nSSH-2.0-peer_1.0\r\n")

	peerID, _, err := ExchangeIdentification(&out, in, wirebuf.Standard("SSH-2.0-sshmux_test"))
	if err != nil {
		t.Fatalf("ExchangeIdentification: %v", err)
	}
	if peerID.String() != "SSH-2.0-peer_1.0" {
		t.Fatalf("peerID = %q, want %q", peerID.String(), "SSH-2.0-peer_1.0")
	}
}

func TestExchangeIdentificationFailsWithoutIDLine(t *testing.T) {
	var out bytes.Buffer
	in := bytes.NewBufferString("just chatter, no identification here\r\n")

	if _, _, err := ExchangeIdentification(&out, in, wirebuf.Standard("SSH-2.0-sshmux_test")); err == nil {
		t.Fatal("expected error when peer never sends an identification line")
	}
}

// TestExchangeIdentificationPreservesOverreadBytes is a regression test for
// the bufio.Reader handoff: bytes belonging to the first binary packet that
// happen to be buffered alongside the identification line must still be
// readable from the returned *bufio.Reader.
func TestExchangeIdentificationPreservesOverreadBytes(t *testing.T) {
	var out bytes.Buffer
	payload := []byte("trailing packet bytes")
	in := bytes.NewBuffer(append([]byte("SSH-2.0-peer\r\n"), payload...))

	_, br, err := ExchangeIdentification(&out, in, wirebuf.Standard("SSH-2.0-sshmux_test"))
	if err != nil {
		t.Fatalf("ExchangeIdentification: %v", err)
	}

	got := make([]byte, len(payload))
	if _, err := io.ReadFull(br, got); err != nil {
		t.Fatalf("reading overread bytes via returned reader: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

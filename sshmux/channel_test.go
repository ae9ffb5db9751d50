package sshmux

import (
	"math"
	"testing"
)

func TestSaturatingAddU32(t *testing.T) {
	tests := []struct {
		name string
		a, b uint32
		want uint32
	}{
		{"NoOverflow", 10, 20, 30},
		{"ExactMax", math.MaxUint32 - 5, 5, math.MaxUint32},
		{"Overflow", math.MaxUint32, 1, math.MaxUint32},
		{"BothMax", math.MaxUint32, math.MaxUint32, math.MaxUint32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := saturatingAddU32(tt.a, tt.b); got != tt.want {
				t.Fatalf("saturatingAddU32(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

// openConfirmedPair opens a local channel on es and immediately confirms it
// as the peer would, returning the channel id ready for Data/Eof/Close.
func openConfirmedPair(t *testing.T, es *EncryptedState, window, maxPacket uint32) ChannelId {
	t.Helper()
	id := es.OpenSession(window, maxPacket)
	if err := es.HandleOpenConfirmation(id, 99, window, maxPacket); err != nil {
		t.Fatalf("HandleOpenConfirmation: %v", err)
	}
	es.messages = es.messages[:0] // discard the queued OPEN
	return id
}

func TestChannelLifecycleOpenDataCloseExactFrameSplit(t *testing.T) {
	es := NewEncryptedState()
	id := openConfirmedPair(t, es, 16, 8) // tiny window/packet to force splitting

	if err := es.Data(id, []byte("0123456789ABCDEF")); err != nil { // 16 bytes
		t.Fatalf("Data: %v", err)
	}

	// window=16, maxPacket=8: expect exactly two CHANNEL_DATA frames of 8
	// bytes each, and the window fully consumed.
	if len(es.messages) != 2 {
		t.Fatalf("expected 2 queued frames, got %d", len(es.messages))
	}
	ch, _ := es.Channel(id)
	if ch.senderWindowSize != 0 {
		t.Fatalf("senderWindowSize = %d, want 0", ch.senderWindowSize)
	}

	if err := es.Eof(id); err != nil {
		t.Fatalf("Eof: %v", err)
	}
	if err := es.Data(id, []byte("x")); err != ErrChannelHalfClosed {
		t.Fatalf("Data after Eof: got %v, want ErrChannelHalfClosed", err)
	}

	if err := es.HandlePeerEOF(id); err != nil {
		t.Fatalf("HandlePeerEOF: %v", err)
	}
	if err := es.Close(id); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := es.Channel(id); !ok {
		t.Fatal("channel should still exist: peer has not sent CLOSE yet")
	}
	if err := es.HandlePeerClose(id); err != nil {
		t.Fatalf("HandlePeerClose: %v", err)
	}
	if _, ok := es.Channel(id); ok {
		t.Fatal("channel should be removed once both sides have closed")
	}
}

func TestWindowExhaustionAndAdjustResumesDrain(t *testing.T) {
	es := NewEncryptedState()
	id := openConfirmedPair(t, es, 4, 1024)

	if err := es.Data(id, []byte("hello world")); err != nil { // 11 bytes, window only 4
		t.Fatalf("Data: %v", err)
	}
	ch, _ := es.Channel(id)
	if ch.senderWindowSize != 0 {
		t.Fatalf("senderWindowSize = %d, want 0 (fully consumed)", ch.senderWindowSize)
	}
	if len(ch.pending) == 0 || len(ch.pending[0].data) != 7 {
		t.Fatalf("expected 7 bytes still pending, got %+v", ch.pending)
	}
	if len(es.messages) != 1 {
		t.Fatalf("expected exactly 1 frame queued before adjust, got %d", len(es.messages))
	}

	sent, err := es.WindowAdjust(id, 100)
	if err != nil {
		t.Fatalf("WindowAdjust: %v", err)
	}
	if sent != 7 {
		t.Fatalf("WindowAdjust drained %d bytes, want 7", sent)
	}
	if len(ch.pending) != 0 {
		t.Fatalf("pending queue should be empty after adjust, got %+v", ch.pending)
	}
	if len(es.messages) != 2 {
		t.Fatalf("expected 2 total frames after adjust, got %d", len(es.messages))
	}
}

func TestRejectPeerOpenCreatesNoChannel(t *testing.T) {
	es := NewEncryptedState()
	before := es.NumChannels()
	es.RejectPeerOpen(7, 2, "nope", "")
	if es.NumChannels() != before {
		t.Fatalf("RejectPeerOpen must not create a channel record")
	}
	if len(es.messages) != 1 {
		t.Fatalf("expected one queued CHANNEL_OPEN_FAILURE, got %d", len(es.messages))
	}
}

func TestAcceptPeerOpenThenMutualClose(t *testing.T) {
	es := NewEncryptedState()
	id := es.AcceptPeerOpen(5, 1000, 500, 2000, 500)
	ch, ok := es.Channel(id)
	if !ok || !ch.Confirmed() {
		t.Fatalf("accepted channel should be confirmed immediately")
	}

	if err := es.Close(id); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := es.Channel(id); !ok {
		t.Fatal("channel should persist until peer close arrives")
	}
	if err := es.HandlePeerClose(id); err != nil {
		t.Fatalf("HandlePeerClose: %v", err)
	}
	if _, ok := es.Channel(id); ok {
		t.Fatal("channel should be gone after mutual close")
	}
}

func TestHandleOpenFailureDeliversErrorAndRemovesChannel(t *testing.T) {
	es := NewEncryptedState()
	id := es.OpenSession(1024, 1024)

	waitCh := make(chan openResult, 1)
	es.AwaitOpen(id, waitCh)

	if err := es.HandleOpenFailure(id, 1, "administratively prohibited"); err != nil {
		t.Fatalf("HandleOpenFailure: %v", err)
	}
	res := <-waitCh
	if res.err == nil {
		t.Fatal("expected non-nil error on open failure")
	}
	if _, ok := es.Channel(id); ok {
		t.Fatal("channel should be removed after open failure")
	}
}

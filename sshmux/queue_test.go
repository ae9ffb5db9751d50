package sshmux

import (
	"context"
	"testing"
	"time"
)

func TestEventQueuePushPopOrder(t *testing.T) {
	q := newEventQueue()
	q.Push(ChannelMsg{Kind: MsgData, Data: []byte("a")})
	q.Push(ChannelMsg{Kind: MsgData, Data: []byte("b")})

	ctx := context.Background()
	first, ok := q.Pop(ctx)
	if !ok || string(first.Data) != "a" {
		t.Fatalf("first Pop = %+v, ok=%v", first, ok)
	}
	second, ok := q.Pop(ctx)
	if !ok || string(second.Data) != "b" {
		t.Fatalf("second Pop = %+v, ok=%v", second, ok)
	}
}

func TestEventQueuePopBlocksUntilPush(t *testing.T) {
	q := newEventQueue()
	done := make(chan ChannelMsg, 1)
	go func() {
		msg, ok := q.Pop(context.Background())
		if ok {
			done <- msg
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(ChannelMsg{Kind: MsgEof})

	select {
	case msg := <-done:
		if msg.Kind != MsgEof {
			t.Fatalf("got kind %v, want MsgEof", msg.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Push")
	}
}

func TestEventQueuePopReturnsFalseAfterClose(t *testing.T) {
	q := newEventQueue()
	q.Close()
	if _, ok := q.Pop(context.Background()); ok {
		t.Fatal("Pop on a closed, empty queue should return ok=false")
	}
}

func TestEventQueuePopCancelledByContext(t *testing.T) {
	q := newEventQueue()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(ctx)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("Pop should report ok=false when cancelled")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after context cancellation")
	}
}

func TestWindowCellGrowAndTryTake(t *testing.T) {
	c := newWindowCell(10)
	if !c.TryTake(6) {
		t.Fatal("TryTake(6) should succeed with 10 available")
	}
	if c.Value() != 4 {
		t.Fatalf("Value() = %d, want 4", c.Value())
	}
	if c.TryTake(5) {
		t.Fatal("TryTake(5) should fail with only 4 available")
	}

	c.Grow(20)
	if c.Value() != 24 {
		t.Fatalf("Value() = %d, want 24", c.Value())
	}
}

func TestWindowCellRefundRestoresExactPriorValue(t *testing.T) {
	c := newWindowCell(100)
	if !c.TryTake(30) {
		t.Fatal("TryTake(30) should succeed")
	}
	if c.Value() != 70 {
		t.Fatalf("Value() after take = %d, want 70", c.Value())
	}
	// Simulate a cancelled send unwinding its speculative claim.
	c.Refund(30)
	if c.Value() != 100 {
		t.Fatalf("Value() after refund = %d, want 100 (exact restore)", c.Value())
	}
}

func TestWindowCellWaitForGrowthUnblocksOnGrow(t *testing.T) {
	c := newWindowCell(0)
	done := make(chan error, 1)
	go func() {
		done <- c.WaitForGrowth(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	c.Grow(5)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitForGrowth: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForGrowth did not unblock after Grow")
	}
}

func TestWindowCellWaitForGrowthReturnsErrAfterClose(t *testing.T) {
	c := newWindowCell(0)
	done := make(chan error, 1)
	go func() {
		done <- c.WaitForGrowth(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		if err != ErrSessionClosed {
			t.Fatalf("WaitForGrowth after Close = %v, want ErrSessionClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForGrowth did not unblock after Close")
	}
}

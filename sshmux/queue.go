package sshmux

import (
	"context"
	"sync"
	"sync/atomic"
)

// eventQueue is the per-channel inbound mailbox handed to application code
// through ChannelHandle.Wait. It is deliberately unbounded: spec §5 warns
// that bounding it would create a second backpressure path alongside the
// SSH window update, which could deadlock against it. The session's event
// loop still applies real backpressure — at the transport's own window, not
// here — so an unbounded queue only grows if the application stops reading
// its own channel, which is the application's bug to have.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []ChannelMsg
	closed bool
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends msg, waking one waiter. A Push after Close is silently
// dropped: the consumer has already walked away.
func (q *eventQueue) Push(msg ChannelMsg) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()
	q.cond.Signal()
}

// Close marks the queue done; any blocked or future Pop returns immediately
// with ok=false once drained.
func (q *eventQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Pop blocks until an item is available, the queue is closed and drained,
// or ctx is cancelled.
func (q *eventQueue) Pop(ctx context.Context) (ChannelMsg, bool) {
	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, q.cond.Broadcast)
		defer stop()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		if ctx.Err() != nil {
			return ChannelMsg{}, false
		}
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return ChannelMsg{}, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// windowCell is the shared, atomically-updated credit cell a Channel's
// sender_window_size is mirrored into for ChannelHandle.Data to consult
// without taking the session's lock. Grounded on smux's Session
// bucket/bucketNotify pair (session.go): a CAS-updated counter plus a
// capacity-1 notify channel that a grower pings and a waiter drains,
// generalized from smux's single session-wide bucket to one cell per
// channel.
type windowCell struct {
	value  atomic.Uint32
	closed atomic.Bool
	notify chan struct{}
}

func newWindowCell(initial uint32) *windowCell {
	c := &windowCell{notify: make(chan struct{}, 1)}
	c.value.Store(initial)
	return c
}

func (c *windowCell) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Grow adds n credit, saturating at 2^32-1 rather than wrapping.
func (c *windowCell) Grow(n uint32) {
	for {
		old := c.value.Load()
		next := saturatingAddU32(old, n)
		if c.value.CompareAndSwap(old, next) {
			break
		}
	}
	c.wake()
}

// TryTake atomically removes n credit if available, reporting success.
func (c *windowCell) TryTake(n uint32) bool {
	for {
		old := c.value.Load()
		if old < n {
			return false
		}
		if c.value.CompareAndSwap(old, old-n) {
			return true
		}
	}
}

// Refund returns credit taken by a TryTake that a caller is unwinding
// (spec §9: a cancelled send must leave no partial state change).
func (c *windowCell) Refund(n uint32) {
	c.Grow(n)
}

// Close marks the cell done; a blocked or future WaitForGrowth returns
// ErrSessionClosed.
func (c *windowCell) Close() {
	c.closed.Store(true)
	c.wake()
}

// WaitForGrowth blocks until Grow is called, the cell is closed, or ctx is
// cancelled.
func (c *windowCell) WaitForGrowth(ctx context.Context) error {
	select {
	case <-c.notify:
		if c.closed.Load() {
			return ErrSessionClosed
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Value reports the current credit without consuming it.
func (c *windowCell) Value() uint32 {
	return c.value.Load()
}

// Package channel implements spec.md §3.5/§4.6's bounded MPMC value
// channel: a fixed-capacity ring of cache-line-sized slots, each carrying
// its own sequence counter per Dmitry Vyukov's bounded MPMC queue design,
// adapted here to publish a *value.Cell per slot and to register a single
// blocked-fiber waiter per direction rather than blocking a native thread.
package channel

import (
	"sync/atomic"

	"github.com/lumenlisp/core/value"
)

const cacheLinePad = 64 - 8 - 8

type slot struct {
	seq atomic.Uint64
	val atomic.Pointer[value.Cell]
	_   [cacheLinePad]byte
}

// Waiter is the scheduler-side hook a blocked fiber registers: Wake is
// invoked (at most once) when the channel operation the fiber was
// blocked on becomes possible.
type Waiter struct {
	Wake func()
}

// Channel is a bounded MPMC queue of *value.Cell, plus a single
// registered waiter per direction (spec.md §4.6: "at most one waiter per
// direction").
type Channel struct {
	ID int64

	buf  []slot
	mask uint64

	enqPos atomic.Uint64
	deqPos atomic.Uint64

	closed atomic.Bool

	sendWaiter atomic.Pointer[Waiter]
	recvWaiter atomic.Pointer[Waiter]
}

func nextPow2(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// New allocates a channel, rounding capacity up to a power of two and
// initializing each slot's sequence to its own index (spec.md §4.6).
func New(capacity int) *Channel {
	n := nextPow2(capacity)
	c := &Channel{buf: make([]slot, n), mask: uint64(n - 1)}
	for i := range c.buf {
		c.buf[i].seq.Store(uint64(i))
	}
	return c
}

func (c *Channel) Cap() int { return len(c.buf) }

// TrySend is non-blocking: it CAS-advances the enqueue cursor, stores and
// publishes the value, and wakes a registered receive waiter if present.
// It reports false on a full or closed channel.
func (c *Channel) TrySend(v *value.Cell) bool {
	if c.closed.Load() {
		return false
	}
	for {
		pos := c.enqPos.Load()
		s := &c.buf[pos&c.mask]
		seq := s.seq.Load()
		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			if c.enqPos.CompareAndSwap(pos, pos+1) {
				s.val.Store(value.Retain(v))
				s.seq.Store(pos + 1)
				c.wake(&c.recvWaiter)
				return true
			}
		case diff < 0:
			return false
		default:
			pos = c.enqPos.Load()
		}
	}
}

// TryRecv is the mirror of TrySend. ok is true only when a value was
// actually dequeued; closed is true when the channel is closed and
// drained (a caller should treat that as end-of-stream, not as a
// transient empty result).
func (c *Channel) TryRecv() (v *value.Cell, ok bool, closed bool) {
	for {
		pos := c.deqPos.Load()
		s := &c.buf[pos&c.mask]
		seq := s.seq.Load()
		diff := int64(seq) - int64(pos+1)
		switch {
		case diff == 0:
			if c.deqPos.CompareAndSwap(pos, pos+1) {
				got := s.val.Swap(nil)
				s.seq.Store(pos + uint64(len(c.buf)))
				c.wake(&c.sendWaiter)
				return got, true, false
			}
		case diff < 0:
			return nil, false, c.closed.Load()
		default:
			pos = c.deqPos.Load()
		}
	}
}

// Close sets the closed flag with release ordering and wakes any
// registered waiter in both directions, so a blocked send or receive
// re-examines the channel rather than parking forever.
func (c *Channel) Close() {
	c.closed.Store(true)
	c.wake(&c.sendWaiter)
	c.wake(&c.recvWaiter)
}

func (c *Channel) IsClosed() bool { return c.closed.Load() }

// RegisterSendWaiter / RegisterRecvWaiter record the fiber currently
// blocked on this direction. A later successful operation on the
// opposite side (or Close) wakes and clears it.
func (c *Channel) RegisterSendWaiter(w *Waiter) { c.sendWaiter.Store(w) }
func (c *Channel) RegisterRecvWaiter(w *Waiter) { c.recvWaiter.Store(w) }

// ClearWaiters drops any still-registered waiter in both directions.
// Used by select to sweep stale registrations on channels whose case did
// not end up winning (spec.md §4.6's "stale waiter entries are
// defensively swept when a channel is next touched").
func (c *Channel) ClearWaiters() {
	c.sendWaiter.Store(nil)
	c.recvWaiter.Store(nil)
}

func (c *Channel) wake(slot *atomic.Pointer[Waiter]) {
	if w := slot.Swap(nil); w != nil && w.Wake != nil {
		w.Wake()
	}
}

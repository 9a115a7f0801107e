// Package actor implements spec.md §3.4/§4.5's actor model: a mailbox
// per actor, symmetric links, one-way monitors, a named registry, and
// spawn/exit lifecycle management built on the fiber substrate.
package actor

import (
	"sync/atomic"

	"github.com/lumenlisp/core/value"
)

type mailboxSlot struct {
	seq atomic.Uint64
	val atomic.Pointer[value.Cell]
}

// Mailbox is the Vyukov-style bounded MPMC ring of spec.md §4.5: slots
// carry a sequence counter, producers advance a shared enqueue position
// with CAS against the expected sequence, consumers mirror it. count is
// the approximate occupancy counter spec.md §4.5 calls for.
type Mailbox struct {
	buf  []mailboxSlot
	mask uint64

	enqPos atomic.Uint64
	deqPos atomic.Uint64
	count  atomic.Int64

	// notify is a best-effort wake signal for a blocked receiver: Send
	// does a non-blocking send after publishing, so a goroutine parked
	// waiting on an empty mailbox re-checks promptly. The real
	// eventcount/park protocol (package park) is what the scheduler uses
	// once workers host many actors; a standalone actor (or a test)
	// parking on its own mailbox uses this channel directly.
	notify chan struct{}
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

func newMailbox(capacity int) *Mailbox {
	n := nextPow2(capacity)
	m := &Mailbox{buf: make([]mailboxSlot, n), mask: uint64(n - 1), notify: make(chan struct{}, 1)}
	for i := range m.buf {
		m.buf[i].seq.Store(uint64(i))
	}
	return m
}

// Send retains v, stores it in the slot, publishes the new sequence, and
// wakes a blocked receiver. Reports false if the mailbox is full.
func (m *Mailbox) Send(v *value.Cell) bool {
	for {
		pos := m.enqPos.Load()
		s := &m.buf[pos&m.mask]
		seq := s.seq.Load()
		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			if m.enqPos.CompareAndSwap(pos, pos+1) {
				s.val.Store(value.Retain(v))
				s.seq.Store(pos + 1)
				m.count.Add(1)
				m.wake()
				return true
			}
		case diff < 0:
			return false
		default:
			pos = m.enqPos.Load()
		}
	}
}

// TryRecv returns the next message (ownership transfers to the caller)
// without blocking, or ok=false if the mailbox is empty.
func (m *Mailbox) TryRecv() (*value.Cell, bool) {
	for {
		pos := m.deqPos.Load()
		s := &m.buf[pos&m.mask]
		seq := s.seq.Load()
		diff := int64(seq) - int64(pos+1)
		switch {
		case diff == 0:
			if m.deqPos.CompareAndSwap(pos, pos+1) {
				got := s.val.Swap(nil)
				s.seq.Store(pos + uint64(len(m.buf)))
				m.count.Add(-1)
				return got, true
			}
		case diff < 0:
			return nil, false
		default:
			pos = m.deqPos.Load()
		}
	}
}

// Len reports the mailbox's approximate occupancy.
func (m *Mailbox) Len() int64 { return m.count.Load() }

func (m *Mailbox) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// WaitChan exposes the notify channel for a driver loop blocked on
// ReasonMailbox to select against.
func (m *Mailbox) WaitChan() <-chan struct{} { return m.notify }

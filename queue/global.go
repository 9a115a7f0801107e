// Package queue implements the bounded MPMC overflow queue spec.md §3.7
// describes: the fallback every worker's deque overflows into, and the
// only path a cross-thread enqueue (one not performed by a deque's own
// owner) is ever allowed to take (spec.md §4.7).
//
// The slot/sequence layout mirrors channel.Channel and actor.Mailbox —
// the same Vyukov-style bounded MPMC protocol this module already uses
// everywhere else a bounded ring needs multi-producer/multi-consumer
// safety, adapted here to carry *actor.Actor instead of *value.Cell.
package queue

import (
	"sync/atomic"

	"github.com/lumenlisp/core/actor"
)

type slot struct {
	seq atomic.Uint64
	val atomic.Pointer[actor.Actor]
}

// Queue is a bounded MPMC ring of runnable actors.
type Queue struct {
	buf  []slot
	mask uint64

	enqPos atomic.Uint64
	deqPos atomic.Uint64
	count  atomic.Int64
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

// New allocates a queue, rounding capacity up to a power of two.
func New(capacity int) *Queue {
	n := nextPow2(capacity)
	q := &Queue{buf: make([]slot, n), mask: uint64(n - 1)}
	for i := range q.buf {
		q.buf[i].seq.Store(uint64(i))
	}
	return q
}

// TryPush enqueues a, reporting false if the queue is full.
func (q *Queue) TryPush(a *actor.Actor) bool {
	for {
		pos := q.enqPos.Load()
		s := &q.buf[pos&q.mask]
		seq := s.seq.Load()
		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			if q.enqPos.CompareAndSwap(pos, pos+1) {
				s.val.Store(a)
				s.seq.Store(pos + 1)
				q.count.Add(1)
				return true
			}
		case diff < 0:
			return false
		default:
			pos = q.enqPos.Load()
		}
	}
}

// TryPop dequeues the oldest actor, reporting false if the queue is
// empty.
func (q *Queue) TryPop() (*actor.Actor, bool) {
	for {
		pos := q.deqPos.Load()
		s := &q.buf[pos&q.mask]
		seq := s.seq.Load()
		diff := int64(seq) - int64(pos+1)
		switch {
		case diff == 0:
			if q.deqPos.CompareAndSwap(pos, pos+1) {
				got := s.val.Swap(nil)
				s.seq.Store(pos + uint64(len(q.buf)))
				q.count.Add(-1)
				return got, true
			}
		case diff < 0:
			return nil, false
		default:
			pos = q.deqPos.Load()
		}
	}
}

// Len reports the queue's approximate occupancy.
func (q *Queue) Len() int64 { return q.count.Load() }

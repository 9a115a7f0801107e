// Package deque implements spec.md §4.7's per-worker block-partitioned
// work-stealing deque ("BWoS": block-partitioned, owner LIFO / thief
// FIFO), grounded on that section verbatim for the block/epoch/head/
// tail/steal_head/steal_tail cursor set, and on
// hayabusa-cloud-lfq/mpmc.go's cache-line-padded, cycle-tagged slot
// layout for the per-block entry representation.
//
// The deque is an array of numBlocks blocks of blockCap entries each.
// ownerEpoch/thiefEpoch are monotonic block indices (masked by
// numBlocks). Within a block, head/tail are owner-side cursors and
// stealHead/stealTail are thief-side cursors; stealTail == sentinel
// means "owner-active, not yet granted to thieves".
//
// All owner-side methods (Push, Pop) must only ever be called from the
// deque's single owning goroutine. Steal is safe from any goroutine.
package deque

import (
	"math"
	"sync/atomic"

	"github.com/lumenlisp/core/actor"
)

const sentinel = math.MaxUint64

const cacheLinePad = 64 - 8

type entry struct {
	val atomic.Pointer[actor.Actor]
	_   [cacheLinePad]byte
}

type block struct {
	entries []entry

	head atomic.Uint64 // owner pop-from cursor within the block, 0..blockCap
	tail atomic.Uint64 // owner push-to cursor within the block, 0..blockCap

	stealHead atomic.Uint64 // thief commit cursor
	stealTail atomic.Uint64 // thief reserve cursor; sentinel => not stealable
}

// Deque is a single worker's block-partitioned work-stealing ring.
type Deque struct {
	blocks    []*block
	blockCap  uint64
	numBlocks uint64

	ownerEpoch atomic.Uint64
	thiefEpoch atomic.Uint64
}

// New allocates a deque of numBlocks blocks, each able to hold blockCap
// entries.
func New(numBlocks, blockCap int) *Deque {
	if numBlocks < 2 {
		numBlocks = 2
	}
	if blockCap < 1 {
		blockCap = 1
	}
	d := &Deque{
		blocks:    make([]*block, numBlocks),
		blockCap:  uint64(blockCap),
		numBlocks: uint64(numBlocks),
	}
	for i := range d.blocks {
		b := &block{entries: make([]entry, blockCap)}
		b.stealTail.Store(sentinel)
		d.blocks[i] = b
	}
	return d
}

func (d *Deque) block(epoch uint64) *block {
	return d.blocks[epoch%d.numBlocks]
}

// Push appends a to the owner's active block (owner-only). It reports
// false if every block is currently granted to thieves and full — the
// caller must overflow to the global queue (spec.md §4.7: "If the ring
// is full globally, the push overflows to the shared MPMC queue").
func (d *Deque) Push(a *actor.Actor) bool {
	for {
		blk := d.block(d.ownerEpoch.Load())
		t := blk.tail.Load()
		if t < d.blockCap {
			blk.entries[t].val.Store(a)
			blk.tail.Store(t + 1)
			return true
		}
		if !d.advanceOwnerBlock(blk) {
			return false
		}
	}
}

// advanceOwnerBlock grants the current (full) block to thieves starting
// at its current head, then advances the owner epoch into the next
// block, resetting its cursors. It reports false if doing so would
// catch up to the thief epoch (every block is in thief hands: globally
// full).
func (d *Deque) advanceOwnerBlock(old *block) bool {
	next := d.ownerEpoch.Load() + 1
	if next-d.thiefEpoch.Load() >= d.numBlocks {
		return false
	}
	old.stealTail.Store(old.head.Load())
	d.ownerEpoch.Store(next)

	nb := d.block(next)
	nb.head.Store(0)
	nb.tail.Store(0)
	nb.stealHead.Store(0)
	nb.stealTail.Store(sentinel)
	return true
}

// Pop removes and returns the most recently pushed entry (LIFO) from the
// owner's perspective (owner-only). When the active block empties, it
// retreats into the previous (already thief-granted) block and reclaims
// whatever thieves have not yet taken, per spec.md §4.7's "owner
// retreats one epoch and atomically reclaims the previous block".
func (d *Deque) Pop() (*actor.Actor, bool) {
	for {
		oe := d.ownerEpoch.Load()
		blk := d.block(oe)
		t := blk.tail.Load()
		h := blk.head.Load()

		if h >= t {
			if oe == d.thiefEpoch.Load() {
				return nil, false // nothing left anywhere in this deque
			}
			if !d.reclaimPreviousBlock(oe) {
				continue // lost a race reclaiming; re-read state and retry
			}
			continue
		}

		if t-h == 1 {
			// Single-entry race against a thief stealing from this same
			// active block's head (spec.md §4.7's fallback steal path).
			if !blk.head.CompareAndSwap(h, h+1) {
				continue
			}
			v := blk.entries[h].val.Swap(nil)
			return v, true
		}

		nt := t - 1
		if !blk.tail.CompareAndSwap(t, nt) {
			continue
		}
		v := blk.entries[nt].val.Swap(nil)
		return v, true
	}
}

// reclaimPreviousBlock retreats the owner epoch to oe-1 and pulls that
// block's steal_tail back to sentinel, waiting for any thief that had
// already reserved a slot (CAS'd steal_tail forward) to finish
// committing its steal_head before the owner resumes popping from it.
// Reports false (ask the caller to retry) if a concurrent advance raced
// it — in practice this only happens if oe has already moved again,
// which Pop's outer loop re-reads and restarts from.
func (d *Deque) reclaimPreviousBlock(oe uint64) bool {
	if !d.ownerEpoch.CompareAndSwap(oe, oe-1) {
		return false
	}
	prev := d.block(oe - 1)

	var reserved uint64
	for {
		st := prev.stealTail.Load()
		if st == sentinel {
			// Block was never granted (shouldn't happen once thiefEpoch
			// lags ownerEpoch, but guards against a stale read).
			reserved = prev.head.Load()
			break
		}
		if prev.stealTail.CompareAndSwap(st, sentinel) {
			reserved = st
			break
		}
	}
	for prev.stealHead.Load() < reserved {
		// Spin for any in-flight steal that reserved a slot before our
		// CAS above to commit its FAA into steal_head.
	}
	prev.head.Store(reserved)
	return true
}

// Steal removes and returns the oldest (FIFO, from the thief's
// perspective) entry available to thieves. Safe to call from any
// goroutine other than the deque's owner.
func (d *Deque) Steal() (*actor.Actor, bool) {
	te := d.thiefEpoch.Load()
	oe := d.ownerEpoch.Load()

	for e := te; e < oe; e++ {
		blk := d.block(e)
		for {
			st := blk.stealTail.Load()
			if st == sentinel {
				break
			}
			t := blk.tail.Load()
			if st >= t {
				break
			}
			if blk.stealTail.CompareAndSwap(st, st+1) {
				v := blk.entries[st].val.Swap(nil)
				blk.stealHead.Add(1)
				d.tryAdvanceThiefEpoch(e)
				return v, true
			}
		}
	}

	// Fallback: attempt to steal from the owner's currently active block
	// via a seq-cst CAS on head. Should the owner concurrently grant
	// this very block (advanceOwnerBlock), we still commit our steal
	// into steal_head so the owner's reclaim spin in
	// reclaimPreviousBlock does not hang waiting on a reservation that
	// in fact already completed (spec.md §9 Open Question #1).
	blk := d.block(oe)
	for {
		h := blk.head.Load()
		t := blk.tail.Load()
		if h >= t {
			return nil, false
		}
		if blk.head.CompareAndSwap(h, h+1) {
			v := blk.entries[h].val.Swap(nil)
			blk.stealHead.Add(1)
			return v, true
		}
	}
}

// tryAdvanceThiefEpoch bumps the thief epoch past block e once it has
// been fully drained (its granted region, [0, tail-at-grant), has all
// been committed into steal_head).
func (d *Deque) tryAdvanceThiefEpoch(e uint64) {
	if d.thiefEpoch.Load() != e {
		return
	}
	blk := d.block(e)
	t := blk.tail.Load()
	if blk.stealHead.Load() >= t {
		d.thiefEpoch.CompareAndSwap(e, e+1)
	}
}

// StealBatch steals up to max entries in one call, for the scheduler's
// "transfer up to half the victim's remaining entries" batch-steal step
// (spec.md §4.8). Returns however many were actually available.
func (d *Deque) StealBatch(max int) []*actor.Actor {
	out := make([]*actor.Actor, 0, max)
	for i := 0; i < max; i++ {
		a, ok := d.Steal()
		if !ok {
			break
		}
		out = append(out, a)
	}
	return out
}

// Len reports an approximate count of entries currently reachable by
// the owner (used for steal-batch sizing heuristics, not a precise
// occupancy count under concurrent stealing).
func (d *Deque) Len() int {
	oe := d.ownerEpoch.Load()
	te := d.thiefEpoch.Load()
	total := 0
	for e := te; e <= oe; e++ {
		blk := d.block(e)
		t := blk.tail.Load()
		h := blk.head.Load()
		if e == oe {
			h = blk.head.Load()
		} else {
			st := blk.stealTail.Load()
			if st != sentinel {
				h = st
			}
		}
		if t > h {
			total += int(t - h)
		}
	}
	return total
}

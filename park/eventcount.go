// Package park implements spec.md §4.9's eventcount: a single 64-bit
// atomic word (epoch in the high 32 bits, waiter count in the low 32
// bits) giving race-free prepare/commit parking with no lost wakeups —
// any notification between a worker's prepare_wait and commit_wait
// invalidates the captured epoch and commit_wait returns immediately.
package park

import (
	"sync"
	"sync/atomic"
)

// Eventcount is the epoch/waiter-count word plus the broadcast channel
// used to actually wake parked goroutines (Go exposes no futex/
// wait-on-address primitive, so a closed-and-replaced channel stands in
// for the platform wake spec.md §4.9 references).
type Eventcount struct {
	state atomic.Uint64 // epoch<<32 | waiters

	mu sync.Mutex
	ch chan struct{}
}

// New creates an eventcount with epoch 0 and no waiters.
func New() *Eventcount {
	return &Eventcount{ch: make(chan struct{})}
}

// Epoch returns the current epoch.
func (ec *Eventcount) Epoch() uint32 {
	return uint32(ec.state.Load() >> 32)
}

// Waiters returns the current waiter count.
func (ec *Eventcount) Waiters() uint32 {
	return uint32(ec.state.Load())
}

// PrepareWait atomically increments the waiter count and returns the
// observed epoch plus the generation channel to watch — the caller must
// re-check every work source AFTER calling PrepareWait and BEFORE
// blocking on CommitWait, per spec.md §4.8's parking protocol.
func (ec *Eventcount) PrepareWait() (epoch uint32, gen <-chan struct{}) {
	ec.state.Add(1)
	ec.mu.Lock()
	gen = ec.ch
	ec.mu.Unlock()
	return uint32(ec.state.Load() >> 32), gen
}

// CancelWait decrements the waiter count without blocking — used when a
// re-check after PrepareWait finds work after all, so the caller never
// calls CommitWait (spec.md §4.9: "cancel_wait decrements under seq-cst
// so subsequent reads cannot reorder above the condition check").
func (ec *Eventcount) CancelWait() {
	ec.state.Add(^uint64(0)) // -1
}

// NotifyAll bumps the epoch and, if any waiters are registered, wakes
// every one of them. spec.md §4.9 explicitly calls for notify_all over
// notify_one here: "runnext entries are owner-only and not stealable;
// notifying a single worker could miss the intended owner."
func (ec *Eventcount) NotifyAll() {
	ec.state.Add(1 << 32)
	ec.mu.Lock()
	old := ec.ch
	ec.ch = make(chan struct{})
	ec.mu.Unlock()
	close(old)
}

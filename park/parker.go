package park

import (
	"runtime"
	"time"
)

// Tiered back-off stage sizes (spec.md §4.9): a short yield-hint spin, a
// longer pause-spin, then a bounded kernel park with a short timeout so
// every worker periodically re-checks termination without a dedicated
// watchdog goroutine.
const (
	spinStage1Iters = 64
	spinStage2Iters = 256
	parkTimeout     = 2 * time.Millisecond
)

// CommitWait compares the current epoch against the one captured by
// PrepareWait; on a mismatch (someone already called NotifyAll), it
// returns immediately — the no-lost-wakeup guarantee. On a match, it
// runs the tiered spin/park sequence, waking either when gen closes
// (NotifyAll happened after all) or when the bounded park times out (so
// the caller can re-check external conditions like shutdown).
//
// The waiter count is always decremented exactly once before returning,
// whichever path was taken.
func (ec *Eventcount) CommitWait(epoch uint32, gen <-chan struct{}) {
	defer ec.state.Add(^uint64(0)) // -1 waiters

	if ec.Epoch() != epoch {
		return
	}

	for i := 0; i < spinStage1Iters; i++ {
		if ec.Epoch() != epoch {
			return
		}
		runtime.Gosched()
	}

	for i := 0; i < spinStage2Iters; i++ {
		if ec.Epoch() != epoch {
			return
		}
		pauseSpin()
	}

	select {
	case <-gen:
	case <-time.After(parkTimeout):
	}
}

// pauseSpin is a busy-wait hint. Go has no portable PAUSE/ISB intrinsic;
// Gosched is the idiomatic stand-in spec.md §4.9's architecture-specific
// pause maps to on this runtime.
func pauseSpin() {
	runtime.Gosched()
}

package sched

import (
	"math/rand"

	"github.com/lumenlisp/core/actor"
	"github.com/lumenlisp/core/deque"
	"github.com/lumenlisp/core/trace"
)

const (
	// maxRunnextUses is spec.md §4.8's "up to 3 consecutive uses of the
	// same slot to stay cache-warm" before the worker demotes the
	// runnext occupant into its own deque and picks up something else.
	maxRunnextUses = 3

	// stealBatchDivisor controls the "transfer up to half the victim's
	// remaining entries" batch-steal step.
	stealBatchDivisor = 2

	spinStage1Iters = 64
)

// Worker is one scheduler OS thread's state: a private LIFO runnext
// slot, an owned BWoS deque, a steal-victim RNG, and its QSBR/trace
// identities. Apart from the deque's thief side (Len/Steal/StealBatch,
// which other workers call when stealing), every field here is touched
// only by the worker's own goroutine (spec.md §5: "the scheduler state
// itself is accessed from the owning worker only on the fast path").
type Worker struct {
	id int

	deque *deque.Deque

	runnext     *actor.Actor
	runnextUses int

	rng *rand.Rand

	trace *trace.Ring

	quanta int64
}

func newWorker(id int, numBlocks, blockCap, traceRingCap int, seed int64) *Worker {
	return &Worker{
		id:    id,
		deque: deque.New(numBlocks, blockCap),
		rng:   rand.New(rand.NewSource(seed)),
		trace: trace.NewRing(traceRingCap),
	}
}

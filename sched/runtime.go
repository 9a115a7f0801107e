// Package sched implements spec.md §4.8's scheduler: N worker loops each
// running a five-step waterfall (runnext slot, own deque, global queue,
// random-victim steal, tiered park) over actors, driving each picked
// actor's fiber exactly one quantum at a time per spec.md §4.8/§4.9.
//
// Grounded on nmxmxh-inos_v1/kernel/threads's worker-pool shape (a fixed
// slice of per-worker structs joined on shutdown via golang.org/x/sync's
// errgroup) generalized to this core's five-step work-search order and
// suspend-reason resume protocol.
package sched

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lumenlisp/core/actor"
	"github.com/lumenlisp/core/channel"
	"github.com/lumenlisp/core/ets"
	"github.com/lumenlisp/core/fiber"
	"github.com/lumenlisp/core/internal/utils"
	"github.com/lumenlisp/core/park"
	"github.com/lumenlisp/core/qsbr"
	"github.com/lumenlisp/core/queue"
	"github.com/lumenlisp/core/signal"
	"github.com/lumenlisp/core/timer"
	"github.com/lumenlisp/core/trace"
)

// Options configures a Runtime. Zero-value fields take the defaults
// documented below, matching the teacher's struct-literal configuration
// idiom rather than a separate config file (spec.md has no persisted
// state to load).
type Options struct {
	NumWorkers     int
	DequeBlocks    int
	DequeBlockCap  int
	GlobalQueueCap int
	QSBRRingCap    int
	TraceRingCap   int

	// Deterministic, combined with Seed, makes every worker's steal-
	// victim RNG derive from Seed+workerID instead of the wall clock, so
	// a run replays identically (spec.md §4.8's "determinism option").
	Deterministic bool
	Seed          int64
}

func (o Options) withDefaults() Options {
	if o.NumWorkers <= 0 {
		o.NumWorkers = 4
	}
	if o.DequeBlocks <= 0 {
		o.DequeBlocks = 4
	}
	if o.DequeBlockCap <= 0 {
		o.DequeBlockCap = 64
	}
	if o.GlobalQueueCap <= 0 {
		o.GlobalQueueCap = 1024
	}
	if o.QSBRRingCap <= 0 {
		o.QSBRRingCap = 256
	}
	if o.TraceRingCap <= 0 {
		o.TraceRingCap = 1024
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	return o
}

// Runtime is the whole scheduled-actor system: a fixed worker pool plus
// the process-wide shared structures spec.md §5 calls out as the only
// objects a worker ever touches across its own boundary (the global
// queue, the eventcount, and the registries).
type Runtime struct {
	opts    Options
	workers []*Worker

	global *queue.Queue
	ec     *park.Eventcount

	actors   *actor.Registry
	channels *channel.Registry
	qs       *qsbr.QSBR
	ets      *ets.Manager
	timers   *timer.Table
	signals  *signal.Bridge

	running atomic.Int64
	logger  *utils.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New builds a Runtime and starts every worker goroutine. actors and
// channels registries are accepted rather than created internally so a
// caller can share them with code that spawns actors before the
// scheduler exists (e.g. a supervisor's top-level children).
func New(actors *actor.Registry, channels *channel.Registry, opts Options) *Runtime {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	rt := &Runtime{
		opts:     opts,
		global:   queue.New(opts.GlobalQueueCap),
		ec:       park.New(),
		actors:   actors,
		channels: channels,
		qs:       qsbr.New(opts.NumWorkers, opts.QSBRRingCap),
		ets:      ets.NewManager(),
		timers:   timer.NewTable(),
		logger:   utils.DefaultLogger("sched"),
		ctx:      ctx,
		cancel:   cancel,
		group:    group,
	}
	if sb, err := signal.New(); err == nil {
		rt.signals = sb
	} else {
		rt.logger.Warn("signal bridge unavailable", utils.Err(err))
	}

	rt.workers = make([]*Worker, opts.NumWorkers)
	for i := range rt.workers {
		seed := opts.Seed + int64(i)
		if !opts.Deterministic {
			seed = time.Now().UnixNano() + int64(i)
		}
		rt.workers[i] = newWorker(i, opts.DequeBlocks, opts.DequeBlockCap, opts.TraceRingCap, seed)
	}
	for _, w := range rt.workers {
		w := w
		rt.group.Go(func() error {
			rt.workerLoop(w)
			return nil
		})
	}
	return rt
}

// Timers exposes the runtime's tick-based timer table.
func (rt *Runtime) Timers() *timer.Table { return rt.timers }

// Signals exposes the self-pipe bridge, or nil if os.Pipe failed at
// startup.
func (rt *Runtime) Signals() *signal.Bridge { return rt.signals }

// ETS exposes the per-actor table manager.
func (rt *Runtime) ETS() *ets.Manager { return rt.ets }

// Actors exposes the shared actor registry.
func (rt *Runtime) Actors() *actor.Registry { return rt.actors }

// Channels exposes the shared channel registry.
func (rt *Runtime) Channels() *channel.Registry { return rt.channels }

// Spawn allocates an actor wired into this runtime (wake hook set, home
// hint recorded) and places it on the global queue — spawn is always a
// cross-thread enqueue from the perspective of whichever worker (if any)
// is calling Spawn, so it never touches a worker's deque directly
// (spec.md §4.7).
func (rt *Runtime) Spawn(behavior actor.Behavior, mailboxCap int) *actor.Actor {
	home := -1
	a := actor.Spawn(rt.actors, behavior, mailboxCap,
		actor.WithWakeHook(rt.wakeHookFromSend),
		actor.WithHomeHint(home))
	rt.enqueueGlobal(a)
	return a
}

// SpawnFunc adapts Spawn to supervisor.SpawnFunc's shape.
func (rt *Runtime) SpawnFunc() func(actor.Behavior, int) *actor.Actor {
	return rt.Spawn
}

func (rt *Runtime) enqueueGlobal(a *actor.Actor) {
	for !rt.global.TryPush(a) {
		// The global queue is a bounded ring; back off briefly under the
		// rare case every worker is deeply behind. This never busy-loops
		// in steady state since workers drain it continuously.
		time.Sleep(time.Microsecond)
	}
	rt.ec.NotifyAll()
}

// wakeHookFromSend is installed as every actor's wake hook. actor.Send
// already performs the TryUnblock CAS before invoking it, so this need
// only publish the wake (spec.md §4.9: "any path that might unblock a
// worker ... must call notify_all").
func (rt *Runtime) wakeHookFromSend(a *actor.Actor) {
	rt.enqueueGlobal(a)
}

// tryWake attempts to claim the wake for a blocked actor and, on
// success, re-enqueues it. Used by channel waiter callbacks and
// task-await exit hooks, neither of which goes through actor.Send's own
// TryUnblock call.
func (rt *Runtime) tryWake(a *actor.Actor) {
	if a.TryUnblock() {
		rt.enqueueGlobal(a)
	}
}

// RunAll drives the runtime until every actor has finished (or maxTicks
// outer iterations of the timer table have elapsed, whichever comes
// first) and then shuts down. maxTicks <= 0 means no tick cap: it runs
// until quiescence. The timer table is ticked every tickInterval (once
// per millisecond when tickInterval <= 0).
func (rt *Runtime) RunAll(maxTicks int, tickInterval time.Duration) {
	if tickInterval <= 0 {
		tickInterval = time.Millisecond
	}
	ticks := 0
	for {
		if rt.actors.AliveCount() == 0 && rt.running.Load() == 0 && rt.totalQueuedWork() == 0 {
			break
		}
		if maxTicks > 0 && ticks >= maxTicks {
			break
		}
		rt.timers.Tick()
		if rt.signals != nil {
			rt.signals.Drain()
		}
		ticks++
		time.Sleep(tickInterval)
	}
	rt.Shutdown()
}

func (rt *Runtime) totalQueuedWork() int64 {
	total := rt.global.Len()
	for _, w := range rt.workers {
		total += int64(w.deque.Len())
	}
	return total
}

// Shutdown cancels every worker's context, waits for them to park and
// join, drains QSBR, and closes the signal bridge.
func (rt *Runtime) Shutdown() {
	rt.cancel()
	rt.ec.NotifyAll()
	rt.group.Wait()
	for i := range rt.workers {
		rt.qs.SetOffline(i)
	}
	rt.qs.DrainAll()
	if rt.signals != nil {
		rt.signals.Close()
	}
}

// workerLoop is the five-step search spec.md §4.8 prescribes, run until
// the context is cancelled.
func (rt *Runtime) workerLoop(w *Worker) {
	for {
		if rt.ctx.Err() != nil {
			return
		}

		a, found := rt.findWork(w)
		if !found {
			if rt.parkUntilWorkOrDone(w) {
				return
			}
			continue
		}

		rt.runOneQuantum(w, a)

		w.quanta++
		rt.qs.Quiescent(w.id)
		rt.qs.Reclaim(w.id)
	}
}

// findWork implements steps 1-4 of spec.md §4.8's waterfall.
func (rt *Runtime) findWork(w *Worker) (*actor.Actor, bool) {
	if w.runnext != nil {
		a := w.runnext
		if w.runnextUses < maxRunnextUses {
			w.runnextUses++
			w.runnext = nil
			return a, true
		}
		// Demote: this actor has used the fast slot enough times in a
		// row; push it through the ordinary deque and let something else
		// have the slot.
		w.runnext = nil
		w.runnextUses = 0
		w.deque.Push(a)
	}

	if a, ok := w.deque.Pop(); ok {
		return a, true
	}

	if a, ok := rt.global.TryPop(); ok {
		return a, true
	}

	if a, ok := rt.stealFromRandomVictim(w); ok {
		return a, true
	}

	return nil, false
}

func (rt *Runtime) stealFromRandomVictim(w *Worker) (*actor.Actor, bool) {
	n := len(rt.workers)
	if n < 2 {
		return nil, false
	}
	start := w.rng.Intn(n)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		victim := rt.workers[idx]
		if victim == w {
			continue
		}
		remaining := victim.deque.Len()
		if remaining == 0 {
			continue
		}
		batch := remaining / stealBatchDivisor
		if batch < 1 {
			batch = 1
		}
		stolen := victim.deque.StealBatch(batch)
		if len(stolen) == 0 {
			continue
		}
		head := stolen[0]
		for _, extra := range stolen[1:] {
			w.deque.Push(extra)
		}
		return head, true
	}
	return nil, false
}

// parkUntilWorkOrDone implements step 5: spin, then the eventcount
// two-phase protocol, re-checking every work source and the termination
// condition between prepare and commit. Returns true if the worker
// should exit (context cancelled or system-wide quiescence reached).
func (rt *Runtime) parkUntilWorkOrDone(w *Worker) bool {
	for i := 0; i < spinStage1Iters; i++ {
		if a, ok := rt.findWork(w); ok {
			w.runnext = a
			w.runnextUses = 0
			return false
		}
	}

	epoch, gen := rt.ec.PrepareWait()

	if a, ok := rt.findWork(w); ok {
		rt.ec.CancelWait()
		w.runnext = a
		w.runnextUses = 0
		return false
	}
	if rt.isGloballyQuiescent() {
		rt.ec.CancelWait()
		return true
	}
	if rt.ctx.Err() != nil {
		rt.ec.CancelWait()
		return true
	}

	rt.ec.CommitWait(epoch, gen)
	return false
}

func (rt *Runtime) isGloballyQuiescent() bool {
	return rt.actors.AliveCount() == 0 && rt.running.Load() == 0 && rt.totalQueuedWork() == 0
}

// maxSameQuantumResumes bounds the "freshly suspended, but its condition
// turns out to already be satisfiable" retry loop below — not a spec
// requirement, just a guard against a pathological run of back-to-back
// racing sends turning one pick into an unbounded resume chain.
const maxSameQuantumResumes = 8

func isStillRunnable(reason fiber.SuspendReason) bool {
	switch reason {
	case fiber.ReasonGeneral, fiber.ReasonReductionYield, fiber.ReasonSelect:
		return true
	default:
		return false
	}
}

// runOneQuantum implements sched_run_one_quantum (spec.md §4.8): prepare
// the resume value from the suspend reason, drive the fiber, and handle
// the outcome. prepareResume (quantum.go) owns the no-lost-wakeup race
// handling for mailbox/channel/task-await suspensions; when a freshly
// suspended fiber's condition turns out to already be satisfied (e.g. a
// second mailbox message queued while the first was being processed),
// this loops back through prepareResume rather than parking the actor
// with a missed wakeup.
func (rt *Runtime) runOneQuantum(w *Worker, a *actor.Actor) {
	if !a.IsAlive() {
		return // declined: already dead, no quantum consumed
	}

	rt.running.Add(1)
	defer rt.running.Add(-1)

	w.trace.Record(w.id, trace.EventRun, a.ID, a.TraceOrigin, a.NextTraceSeq(), 0)

	if a.Fiber().State() == fiber.Ready {
		a.Fiber().Start()
	} else {
		resumeVal, ready := rt.prepareResume(a)
		if !ready {
			return // prepareResume marked it blocked and owns the wake
		}
		a.Fiber().Resume(rt.ctx, resumeVal)
	}

	for attempt := 0; attempt < maxSameQuantumResumes; attempt++ {
		if a.Fiber().State() == fiber.Finished {
			w.trace.Record(w.id, trace.EventFinish, a.ID, a.TraceOrigin, a.NextTraceSeq(), 0)
			a.Complete(a.Fiber().Result)
			rt.qs.Retire(w.id, a)
			return
		}
		if isStillRunnable(a.Fiber().Reason) {
			w.trace.Record(w.id, trace.EventYield, a.ID, a.TraceOrigin, a.NextTraceSeq(), uint64(a.Fiber().Reason))
			w.deque.Push(a)
			return
		}
		w.trace.Record(w.id, trace.EventBlock, a.ID, a.TraceOrigin, a.NextTraceSeq(), uint64(a.Fiber().Reason))
		resumeVal, ready := rt.prepareResume(a)
		if !ready {
			return
		}
		a.Fiber().Resume(rt.ctx, resumeVal)
	}
}

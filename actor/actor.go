package actor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lumenlisp/core/fiber"
	"github.com/lumenlisp/core/internal/utils"
	"github.com/lumenlisp/core/value"
)

var nextID atomic.Int64

// Behavior is the body an actor runs; self lets it self-identify and
// send/receive through its own mailbox (spec.md §4.5: "applies the
// behavior to a handle referring to the actor itself").
type Behavior func(self *Actor) *value.Cell

// Actor is a spawned, independently scheduled computation with its own
// mailbox, link set, and monitor set (spec.md §3.4).
type Actor struct {
	ID int64

	mailbox *Mailbox
	fiber   *fiber.Fiber

	alive    atomic.Bool
	aliveCAS atomic.Bool // guards the finish race (spec.md §4.5)
	trapExit atomic.Bool

	// waitFlag is the atomic "0 = runnable, 1 = blocked" slot spec.md
	// §3.4/§4.8 describes: true means this actor is parked waiting on an
	// external event (mailbox, channel, timer, signal, another actor's
	// finish) and wake responsibility belongs to whichever producer-side
	// event next flips it back to false.
	waitFlag atomic.Bool

	// wakeHook is set once at spawn time (sched.Runtime wires it) and
	// invoked whenever a producer-side event wins the waitFlag CAS race,
	// so the scheduler can re-enqueue this actor. Nil for a
	// standalone/unscheduled actor driven directly by Run.
	wakeHook func(*Actor)

	// homeHint records which worker observed this actor at spawn time,
	// for affinity/statistics only — spec.md §4.7 forbids a cross-thread
	// enqueue from touching any deque but the global queue, so this is
	// never used to pick a push target, only reported.
	homeHint int

	mu       sync.Mutex
	links    map[int64]*Actor
	monitors map[int64]*Actor // watchers of THIS actor

	result     *value.Cell
	exitReason *value.Cell

	exitHooks []func(*Actor)

	registry *Registry

	// TraceOrigin is the causal-trace origin spec.md §3.4 mandates: a
	// correlation id minted once at spawn time, independent of the
	// monotonic integer ID, so a trace reader can follow one actor's
	// causal chain across a k-way-merged multi-worker trace (trace.Merge)
	// without relying on timestamp ordering alone.
	TraceOrigin string

	// traceSeq is the atomic trace sequence spec.md §3.4 mandates:
	// incremented once per trace.Record call this actor causes, giving
	// each such record an actor-local happens-before order.
	traceSeq atomic.Uint64
}

// NextTraceSeq returns this actor's next atomic trace sequence number,
// incrementing it as a side effect (spec.md §3.4). Called by the
// scheduler immediately before each trace.Record for this actor.
func (a *Actor) NextTraceSeq() uint64 { return a.traceSeq.Add(1) }

// Option configures optional Spawn-time wiring (spec.md §4.5's "home-
// scheduler hint" and the scheduler's wake-hook plumbing).
type Option func(*Actor)

// WithWakeHook arranges for fn to be called (at most once per wake) when
// a producer-side event unblocks this actor. Must be supplied at Spawn
// time, before the actor is registered, so there is no window where a
// Send could observe a blocked actor with no way to report the wake.
func WithWakeHook(fn func(*Actor)) Option {
	return func(a *Actor) { a.wakeHook = fn }
}

// WithHomeHint records the spawning worker's id for stats/affinity.
func WithHomeHint(id int) Option {
	return func(a *Actor) { a.homeHint = id }
}

// Spawn allocates an actor, wires its fiber body to run behavior, and
// registers it with reg, incrementing the global alive counter
// (spec.md §4.5).
func Spawn(reg *Registry, behavior Behavior, mailboxCap int, opts ...Option) *Actor {
	a := &Actor{
		ID:          nextID.Add(1),
		mailbox:     newMailbox(mailboxCap),
		links:       make(map[int64]*Actor),
		monitors:    make(map[int64]*Actor),
		registry:    reg,
		TraceOrigin: utils.GenerateID(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.alive.Store(true)

	a.fiber = fiber.Create(func(f *fiber.Fiber) *value.Cell {
		return behavior(a)
	}, 0)

	if reg != nil {
		reg.add(a)
	}
	return a
}

// Fiber exposes the actor's underlying fiber to the scheduler, which
// drives Start/Resume and inspects suspend reasons directly.
func (a *Actor) Fiber() *fiber.Fiber { return a.fiber }

// Result is the actor's final value, valid once IsAlive is false.
func (a *Actor) Result() *value.Cell { return a.result }

// ExitReason is `:normal` or an error cell, valid once IsAlive is false.
func (a *Actor) ExitReason() *value.Cell { return a.exitReason }

// HomeHint returns the affinity hint recorded at spawn time.
func (a *Actor) HomeHint() int { return a.homeHint }

// MarkBlocked records that this actor is now parked awaiting an external
// event. Called by the scheduler immediately after observing a
// suspension it cannot satisfy yet.
func (a *Actor) MarkBlocked() { a.waitFlag.Store(true) }

// TryUnblock CASes the wait flag true -> false, reporting whether this
// caller is the one that won the race and is therefore responsible for
// re-enqueuing the actor (spec.md §4.5/§4.9's no-lost-wakeup contract).
func (a *Actor) TryUnblock() bool { return a.waitFlag.CompareAndSwap(true, false) }

// IsBlocked reports the current wait-flag state.
func (a *Actor) IsBlocked() bool { return a.waitFlag.Load() }

// AddExitHook registers fn to run after this actor's death notification
// (links/monitors) has been delivered. Used by supervisor restart
// wiring and by ets's owner-cleanup path; hooks run in registration
// order on whichever goroutine wins the finish/Kill race.
func (a *Actor) AddExitHook(fn func(*Actor)) {
	a.mu.Lock()
	a.exitHooks = append(a.exitHooks, fn)
	a.mu.Unlock()
}

// Complete drives the actor's guarded finish path with an externally
// computed result. Used by the scheduler once a fiber reports Finished,
// mirroring what Run does for a standalone actor.
func (a *Actor) Complete(result *value.Cell) { a.finish(result) }

// Run drives the actor's fiber to completion on the calling goroutine,
// servicing ReasonMailbox suspensions against this actor's own mailbox.
// This is the standalone single-actor driver; the scheduler package
// drives many actors across worker goroutines using the same fiber
// suspend-reason protocol, re-enqueuing instead of blocking in place.
func (a *Actor) Run(ctx context.Context) {
	a.fiber.Start()
	for a.fiber.State() != fiber.Finished {
		switch a.fiber.Reason {
		case fiber.ReasonMailbox:
			msg, ok := a.mailbox.TryRecv()
			if !ok {
				select {
				case <-a.mailbox.WaitChan():
				case <-ctx.Done():
					return
				}
				msg, ok = a.mailbox.TryRecv()
				if !ok {
					a.fiber.Resume(ctx, value.Nil())
					continue
				}
			}
			a.fiber.Resume(ctx, msg)
		default:
			a.fiber.Resume(ctx, value.Nil())
		}
	}
	a.finish(a.fiber.Result)
}

// Send delivers v to the actor's mailbox, retaining it per spec.md §4.5.
// Reports false if the mailbox was full.
func (a *Actor) Send(v *value.Cell) bool {
	if !a.alive.Load() {
		return false
	}
	ok := a.mailbox.Send(v)
	if ok && a.TryUnblock() && a.wakeHook != nil {
		a.wakeHook(a)
	}
	return ok
}

// Receive pops the next mailbox message without blocking.
func (a *Actor) Receive() (*value.Cell, bool) {
	return a.mailbox.TryRecv()
}

// SetTrapExit controls whether linked-peer exits become
// `(exit-from id reason)` messages (trapping) or kill this actor in turn
// (spec.md §4.5).
func (a *Actor) SetTrapExit(trap bool) { a.trapExit.Store(trap) }

// IsAlive reports the actor's current liveness.
func (a *Actor) IsAlive() bool { return a.alive.Load() }

// finish is guarded by a CAS on aliveCAS so a concurrent exit signal and
// a normal completion race cleanly: the winner stores the result and
// runs the notify routine, the loser is a no-op (spec.md §4.5).
func (a *Actor) finish(result *value.Cell) {
	if !a.aliveCAS.CompareAndSwap(false, true) {
		return
	}
	a.alive.Store(false)
	a.result = result
	if result != nil && result.IsError() {
		a.exitReason = result
	} else {
		a.exitReason = value.Keyword("normal")
	}
	a.notifyDeath()
	if a.registry != nil {
		a.registry.remove(a)
	}
	a.runExitHooks()
}

// Kill forces an abnormal exit (an exit signal from a linked peer or
// supervisor), running the same guarded finish path.
func (a *Actor) Kill(reason *value.Cell) {
	if reason == nil {
		reason = value.Keyword("killed")
	}
	if !a.aliveCAS.CompareAndSwap(false, true) {
		return
	}
	a.alive.Store(false)
	a.result = value.Nil()
	a.exitReason = reason
	a.notifyDeath()
	if a.registry != nil {
		a.registry.remove(a)
	}
	a.runExitHooks()
}

func (a *Actor) runExitHooks() {
	a.mu.Lock()
	hooks := a.exitHooks
	a.mu.Unlock()
	for _, h := range hooks {
		h(a)
	}
}

func isNormal(reason *value.Cell) bool {
	if reason == nil || reason.IsNil() {
		return true
	}
	return reason.Kind == value.KindKeyword && reason.Str == "normal"
}

// Package fiber implements the suspendable-coroutine substrate spec.md
// §3.3/§4.4 describes. Go exposes no public API to swap a native machine
// context (the make/get/swapcontext family spec.md references is runtime-
// internal), so this is the idiomatic Go substitute: each Fiber is backed
// by one goroutine parked on a channel receive, which plays the role of a
// suspended native stack. See SPEC_FULL.md §4 and DESIGN.md's Open
// Question resolution #5.
package fiber

import (
	"context"
	"fmt"

	"github.com/lumenlisp/core/value"
)

// State mirrors spec.md §3.3's fiber state machine.
type State int32

const (
	Ready State = iota
	Running
	Suspended
	Finished
)

// SuspendReason discriminates why a fiber yielded, and which payload
// fields of Fiber are meaningful while it is parked (spec.md §4.4).
type SuspendReason int32

const (
	ReasonNone SuspendReason = iota
	ReasonMailbox
	ReasonChanSend
	ReasonChanRecv
	ReasonSelect
	ReasonTaskAwait
	ReasonGeneral
	ReasonReductionYield
)

func (r SuspendReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonMailbox:
		return "mailbox"
	case ReasonChanSend:
		return "chan-send"
	case ReasonChanRecv:
		return "chan-recv"
	case ReasonSelect:
		return "select"
	case ReasonTaskAwait:
		return "task-await"
	case ReasonGeneral:
		return "general"
	case ReasonReductionYield:
		return "reduction-yield"
	default:
		return "unknown"
	}
}

// Body is the function a fiber runs once started. self is handed back so
// actor bodies can self-identify (spec.md §4.5).
type Body func(f *Fiber) *value.Cell

// Fiber is a suspendable, resumable unit of evaluation.
type Fiber struct {
	state State

	body Body

	// Rendezvous channels standing in for the native context swap.
	resumeCh chan *value.Cell
	yieldCh  chan struct{}
	doneCh   chan struct{}

	// Suspend metadata, meaningful per SuspendReason (spec.md §4.4).
	Reason       SuspendReason
	ChanIDs      []int64 // chan-send/recv/select
	SelectCursor int
	PendingValue *value.Cell // chan-send
	AwaitedActor int64       // task-await

	// Saved continuation slots for introspection/tracing. Nothing in this
	// module writes them (the evaluator does not depend on this package);
	// the goroutine's own call stack is the real continuation.
	SavedExpr *value.Cell
	SavedEnv  *value.Cell

	Result   *value.Cell
	resumeIn *value.Cell

	started bool
}

// Create allocates a fiber. stackSize is accepted for interface fidelity
// with spec.md §4.4 but has no effect: the Go runtime grows goroutine
// stacks automatically, there is no fixed-size guard-paged region to size
// up front.
func Create(body Body, stackSize int) *Fiber {
	return &Fiber{
		state:    Ready,
		body:     body,
		resumeCh: make(chan *value.Cell),
		yieldCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start transitions ready -> running, launching the backing goroutine and
// blocking the caller until the fiber either finishes or suspends.
func (f *Fiber) Start() {
	if f.started {
		panic(fmt.Sprintf("fiber: Start called twice on fiber %p", f))
	}
	f.started = true
	f.state = Running

	go func() {
		result := f.body(f)
		f.Result = result
		f.state = Finished
		close(f.doneCh)
	}()

	f.waitForPauseOrDone()
}

// Resume writes value into the resume slot and transitions
// suspended -> running, blocking the caller until the next suspend or
// finish.
func (f *Fiber) Resume(ctx context.Context, v *value.Cell) {
	if f.state != Suspended {
		panic(fmt.Sprintf("fiber: Resume called on non-suspended fiber (state=%d)", f.state))
	}
	f.state = Running
	f.resumeIn = v
	select {
	case f.resumeCh <- v:
	case <-ctx.Done():
		return
	}
	f.waitForPauseOrDone()
}

func (f *Fiber) waitForPauseOrDone() {
	select {
	case <-f.yieldCh:
	case <-f.doneCh:
	}
}

// Yield is called from inside the running goroutine (by the evaluator or
// a suspension primitive) to pause the fiber: running -> suspended. It
// blocks the fiber's own goroutine on resumeCh and returns whatever value
// Resume eventually supplies.
func (f *Fiber) Yield(reason SuspendReason) *value.Cell {
	f.state = Suspended
	f.Reason = reason
	f.yieldCh <- struct{}{}
	v := <-f.resumeCh
	f.Reason = ReasonNone
	return v
}

func (f *Fiber) State() State { return f.state }

// WithCurrent/CurrentFrom stand in for spec.md §6's current/set-current
// fiber lookup: they store and read a fiber under a context key. The
// scheduler in this module does not thread that key through its calls.
type currentKey struct{}

func WithCurrent(ctx context.Context, f *Fiber) context.Context {
	return context.WithValue(ctx, currentKey{}, f)
}

func CurrentFrom(ctx context.Context) *Fiber {
	f, _ := ctx.Value(currentKey{}).(*Fiber)
	return f
}

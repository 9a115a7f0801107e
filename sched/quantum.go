package sched

import (
	"github.com/lumenlisp/core/actor"
	"github.com/lumenlisp/core/channel"
	"github.com/lumenlisp/core/fiber"
	"github.com/lumenlisp/core/value"
)

// prepareResume computes the value to hand a suspended fiber on its next
// Resume call, per spec.md §4.8: "prepares the resume value from the
// suspend reason (draining a mailbox, channel, or select as
// appropriate)". Reports ready=false if the suspension is not yet
// satisfiable — the actor has been marked blocked, and whichever
// producer-side event resolves the race (mailbox send, channel op,
// awaited actor's finish) owns re-enqueuing it (spec.md §4.8's "no
// quantum consumed" decline path).
func (rt *Runtime) prepareResume(a *actor.Actor) (*value.Cell, bool) {
	switch a.Fiber().Reason {
	case fiber.ReasonMailbox:
		return rt.prepareMailbox(a)
	case fiber.ReasonChanRecv:
		return rt.prepareChanRecv(a)
	case fiber.ReasonChanSend:
		return rt.prepareChanSend(a)
	case fiber.ReasonTaskAwait:
		return rt.prepareTaskAwait(a)
	default:
		// ReasonSelect/ReasonGeneral/ReasonReductionYield carry no core-
		// owned resolution: select's own retry loop lives in the
		// primitive table built on channel.SelectCase/TrySelect, and a
		// general/reduction yield needs no data at all.
		return value.Nil(), true
	}
}

// prepareMailbox implements the standard "mark intent, recheck, claim-
// or-decline" dance: a plain Receive is tried first; if empty, the actor
// is marked blocked and the CAS on its own wait flag decides who is
// allowed to act on a message that shows up in the race window between
// those two steps. Losing that CAS means a concurrent Send already
// claimed the wake (and will re-enqueue this actor), so this declines
// without attempting the second Receive; the message stays queued for
// the resume that Send's re-enqueue leads to.
func (rt *Runtime) prepareMailbox(a *actor.Actor) (*value.Cell, bool) {
	if msg, ok := a.Receive(); ok {
		return msg, true
	}
	a.MarkBlocked()
	if !a.TryUnblock() {
		return nil, false // a racing Send already owns the wake
	}
	if msg, ok := a.Receive(); ok {
		return msg, true
	}
	// Nothing arrived after all; restore the blocked flag we borrowed.
	a.MarkBlocked()
	return nil, false
}

func (rt *Runtime) prepareChanRecv(a *actor.Actor) (*value.Cell, bool) {
	if len(a.Fiber().ChanIDs) == 0 {
		return value.Nil(), true
	}
	ch, ok := rt.channels.Lookup(a.Fiber().ChanIDs[0])
	if !ok {
		return value.Error("chan-recv-closed", value.Nil()), true
	}
	if v, ok, closed := ch.TryRecv(); ok {
		return v, true
	} else if closed {
		return value.Error("chan-recv-closed", value.Nil()), true
	}

	a.MarkBlocked()
	ch.RegisterRecvWaiter(&channel.Waiter{Wake: func() { rt.tryWake(a) }})
	if !a.TryUnblock() {
		return nil, false
	}
	if v, ok, closed := ch.TryRecv(); ok {
		return v, true
	} else if closed {
		return value.Error("chan-recv-closed", value.Nil()), true
	}
	a.MarkBlocked()
	ch.RegisterRecvWaiter(&channel.Waiter{Wake: func() { rt.tryWake(a) }})
	return nil, false
}

func (rt *Runtime) prepareChanSend(a *actor.Actor) (*value.Cell, bool) {
	if len(a.Fiber().ChanIDs) == 0 {
		return value.Nil(), true
	}
	ch, ok := rt.channels.Lookup(a.Fiber().ChanIDs[0])
	if !ok {
		return value.Error("chan-send-closed", value.Nil()), true
	}
	pending := a.Fiber().PendingValue

	if ch.TrySend(pending) {
		return value.Nil(), true
	}
	if ch.IsClosed() {
		return value.Error("chan-send-closed", value.Nil()), true
	}

	a.MarkBlocked()
	ch.RegisterSendWaiter(&channel.Waiter{Wake: func() { rt.tryWake(a) }})
	if !a.TryUnblock() {
		return nil, false
	}
	if ch.TrySend(pending) {
		return value.Nil(), true
	}
	if ch.IsClosed() {
		return value.Error("chan-send-closed", value.Nil()), true
	}
	a.MarkBlocked()
	ch.RegisterSendWaiter(&channel.Waiter{Wake: func() { rt.tryWake(a) }})
	return nil, false
}

// prepareTaskAwait resumes with the awaited actor's result once it has
// finished. The exit hook registered here is what wakes this actor if it
// parks — spec.md §4.8's "awaited finish" wake source.
func (rt *Runtime) prepareTaskAwait(a *actor.Actor) (*value.Cell, bool) {
	target, ok := rt.actors.ByID(a.Fiber().AwaitedActor)
	if !ok {
		return value.Nil(), true
	}
	if !target.IsAlive() {
		return target.Result(), true
	}

	a.MarkBlocked()
	target.AddExitHook(func(*actor.Actor) { rt.tryWake(a) })
	if !target.IsAlive() {
		// Closes the race where target finished between the check above
		// and the hook registration: the hook we just added may never
		// run (finish's hook list was already drained), so claim the
		// wake here ourselves. tryWake is a CAS, so this is harmless even
		// if the real hook also fires.
		rt.tryWake(a)
	}
	return nil, false
}

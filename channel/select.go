package channel

import "github.com/lumenlisp/core/value"

// Direction distinguishes a select case that wants to receive from one
// that wants to send.
type Direction int

const (
	Recv Direction = iota
	Send
)

// SelectCase is one arm of a `select` over several channels (spec.md
// §4.6). Val is only read for Send cases, evaluated once before the
// select attempt begins (spec.md §4.4: the fiber's suspend payload holds
// the pending value for a blocked send).
type SelectCase struct {
	Ch  *Channel
	Dir Direction
	Val *value.Cell
}

// TrySelect scans cases round-robin starting at cursor (spec.md §4.4's
// "round-robin cursor"), attempting a non-blocking operation on each.
// The first case that succeeds wins; idx is its position in cases.
func TrySelect(cases []SelectCase, cursor int) (idx int, recvVal *value.Cell, closed bool, ok bool) {
	n := len(cases)
	if n == 0 {
		return -1, nil, false, false
	}
	for i := 0; i < n; i++ {
		pos := (cursor + i) % n
		c := cases[pos]
		switch c.Dir {
		case Recv:
			if v, got, isClosed := c.Ch.TryRecv(); got {
				return pos, v, false, true
			} else if isClosed {
				return pos, nil, true, true
			}
		case Send:
			if c.Ch.TrySend(c.Val) {
				return pos, nil, false, true
			}
		}
	}
	return -1, nil, false, false
}

// RegisterAll registers one shared Waiter across every case so whichever
// channel becomes ready first wakes the blocked fiber.
func RegisterAll(cases []SelectCase, wake func()) {
	w := &Waiter{Wake: wake}
	for _, c := range cases {
		switch c.Dir {
		case Recv:
			c.Ch.RegisterRecvWaiter(w)
		case Send:
			c.Ch.RegisterSendWaiter(w)
		}
	}
}

// SweepAll clears any leftover waiter registration on every case once a
// select has resolved, so a channel that did not end up being the
// winning case doesn't keep a stale reference (spec.md §4.6).
func SweepAll(cases []SelectCase) {
	for _, c := range cases {
		c.Ch.ClearWaiters()
	}
}

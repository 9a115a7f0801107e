package actor

import "github.com/lumenlisp/core/value"

// Link makes a and b symmetric peers: each is added to the other's link
// set (spec.md §4.5).
func Link(a, b *Actor) {
	a.mu.Lock()
	a.links[b.ID] = b
	a.mu.Unlock()
	b.mu.Lock()
	b.links[a.ID] = a
	b.mu.Unlock()
}

// Unlink removes the symmetric link, if present.
func Unlink(a, b *Actor) {
	a.mu.Lock()
	delete(a.links, b.ID)
	a.mu.Unlock()
	b.mu.Lock()
	delete(b.links, a.ID)
	b.mu.Unlock()
}

// Monitor registers watcher as a one-way observer of target's death:
// watcher is told, but target is never told about watcher (spec.md
// §4.5).
func Monitor(watcher, target *Actor) {
	target.mu.Lock()
	target.monitors[watcher.ID] = watcher
	target.mu.Unlock()
}

// Demonitor removes a previously registered monitor, if present.
func Demonitor(watcher, target *Actor) {
	target.mu.Lock()
	delete(target.monitors, watcher.ID)
	target.mu.Unlock()
}

func monitorDownMessage(deadID int64, reason *value.Cell) *value.Cell {
	return value.Cons(value.Symbol("monitor-down"), value.Cons(value.Integer(deadID), value.Cons(reason, value.Nil())))
}

func exitFromMessage(deadID int64, reason *value.Cell) *value.Cell {
	return value.Cons(value.Symbol("exit-from"), value.Cons(value.Integer(deadID), value.Cons(reason, value.Nil())))
}

// notifyDeath runs exactly once per actor, at the moment finish/Kill wins
// the alive-flag CAS race (spec.md §4.5): it delivers
// `(monitor-down id reason)` to every watcher, then either delivers
// `(exit-from id reason)` to each linked peer that traps exits, or, when
// the exit reason is not normal, kills peers that do not trap — which in
// turn recursively notifies their own links and monitors. A normal exit
// leaves non-trapping peers untouched.
func (a *Actor) notifyDeath() {
	a.mu.Lock()
	watchers := make([]*Actor, 0, len(a.monitors))
	for _, w := range a.monitors {
		watchers = append(watchers, w)
	}
	peers := make([]*Actor, 0, len(a.links))
	for _, p := range a.links {
		peers = append(peers, p)
	}
	a.mu.Unlock()

	for _, w := range watchers {
		w.Send(monitorDownMessage(a.ID, a.exitReason))
	}

	for _, p := range peers {
		if !p.IsAlive() {
			continue
		}
		if p.trapExit.Load() {
			p.Send(exitFromMessage(a.ID, a.exitReason))
		} else if !isNormal(a.exitReason) {
			p.Kill(a.exitReason)
		}
	}
}

// Package timer implements spec.md §4.12's tick-based timer table:
// each timer holds a target actor id, a remaining tick count, and a
// message value; the scheduler ticks every timer once per outer
// iteration and, on fire, sends the message via the normal actor-send
// path. Timers never touch the scheduler state machine beyond that
// send-and-wake path.
package timer

import (
	"sync"
	"sync/atomic"

	"github.com/lumenlisp/core/actor"
	"github.com/lumenlisp/core/value"
)

var nextID atomic.Int64

type entry struct {
	id        int64
	target    *actor.Actor
	remaining int64
	interval  int64 // 0 => one-shot; >0 => reschedules after firing
	message   *value.Cell
}

// Table is the process-wide timer table.
type Table struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// NewTable allocates an empty timer table.
func NewTable() *Table {
	return &Table{entries: make(map[int64]*entry)}
}

// After schedules message to be sent to target once ticks ticks have
// elapsed, returning an id that Cancel accepts.
func (t *Table) After(target *actor.Actor, ticks int64, message *value.Cell) int64 {
	return t.schedule(target, ticks, 0, message)
}

// Every schedules message to be sent to target every ticks ticks,
// starting after the first interval elapses, until Cancel is called.
func (t *Table) Every(target *actor.Actor, ticks int64, message *value.Cell) int64 {
	return t.schedule(target, ticks, ticks, message)
}

func (t *Table) schedule(target *actor.Actor, ticks, interval int64, message *value.Cell) int64 {
	id := nextID.Add(1)
	t.mu.Lock()
	t.entries[id] = &entry{id: id, target: target, remaining: ticks, interval: interval, message: message}
	t.mu.Unlock()
	return id
}

// Cancel removes a scheduled timer, if present.
func (t *Table) Cancel(id int64) {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
}

// Tick advances every live timer by one tick. A timer that reaches zero
// fires: its message is sent to its target via the ordinary actor send
// path (which itself handles the producer-side wake of a blocked
// receiver), and one-shot timers are then removed while recurring ones
// reload their interval.
func (t *Table) Tick() {
	t.mu.Lock()
	fired := make([]*entry, 0)
	for id, e := range t.entries {
		e.remaining--
		if e.remaining <= 0 {
			fired = append(fired, e)
			if e.interval > 0 {
				e.remaining = e.interval
			} else {
				delete(t.entries, id)
			}
		}
	}
	t.mu.Unlock()

	for _, e := range fired {
		if e.target.IsAlive() {
			e.target.Send(e.message)
		}
	}
}

// Len reports how many timers are currently scheduled.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Package ets implements spec.md §6's "ETS (Erlang Term Storage) tables":
// named, process-wide key -> value stores, each owned by an actor id and
// destroyed automatically when that actor dies. Grounded on the registry
// pattern in actor/registry.go, with a bloom.BloomFilter fast-negative
// front for Lookup ahead of the locked map, the same dedup
// idiom eval/registry.go and actor/registry.go already use.
package ets

import (
	"sync"

	bloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/lumenlisp/core/actor"
	"github.com/lumenlisp/core/value"
)

// Table is one named key/value store.
type Table struct {
	name    string
	owner   int64
	mu      sync.RWMutex
	entries map[string]*value.Cell
	filter  *bloom.BloomFilter
}

func newTable(name string, owner int64) *Table {
	return &Table{
		name:    name,
		owner:   owner,
		entries: make(map[string]*value.Cell),
		filter:  bloom.NewWithEstimates(1024, 0.01),
	}
}

// Insert binds key to v, replacing any previous binding.
func (t *Table) Insert(key string, v *value.Cell) {
	t.mu.Lock()
	t.entries[key] = v
	t.mu.Unlock()
	t.filter.AddString(key)
}

// Lookup resolves key to its bound value. ok is false for a never-bound
// key and true for a key explicitly bound to value.Nil(), matching
// spec.md §4.1's "missing keys are reported distinctly from keys bound
// to nil" at the HashMap level — here that distinction is the bool.
func (t *Table) Lookup(key string) (*value.Cell, bool) {
	if !t.filter.TestString(key) {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[key]
	return v, ok
}

// DeleteKey removes a single binding.
func (t *Table) DeleteKey(key string) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

// Size reports the table's current entry count.
func (t *Table) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Owner returns the id of the actor this table is destroyed alongside.
func (t *Table) Owner() int64 { return t.owner }

// Manager is the process-wide named-table registry.
type Manager struct {
	mu     sync.Mutex
	tables map[string]*Table
	byOwner map[int64][]string
}

// NewManager allocates an empty table manager.
func NewManager() *Manager {
	return &Manager{
		tables:  make(map[string]*Table),
		byOwner: make(map[int64][]string),
	}
}

// Create allocates a new named table owned by owner and arranges for
// it to be dropped when that actor dies, via actor.AddExitHook (spec.md
// §3.4/§6: "Destroyed automatically when the owning actor dies").
func (m *Manager) Create(name string, owner *actor.Actor) *Table {
	t := newTable(name, owner.ID)
	m.mu.Lock()
	m.tables[name] = t
	m.byOwner[owner.ID] = append(m.byOwner[owner.ID], name)
	m.mu.Unlock()

	owner.AddExitHook(func(a *actor.Actor) {
		m.releaseOwner(a.ID)
	})
	return t
}

// Lookup resolves a table by name.
func (m *Manager) Lookup(name string) (*Table, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	return t, ok
}

// DeleteTable removes a table outright, regardless of owner liveness.
func (m *Manager) DeleteTable(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	if !ok {
		return
	}
	delete(m.tables, name)
	m.removeFromOwnerLocked(t.owner, name)
}

func (m *Manager) releaseOwner(ownerID int64) {
	m.mu.Lock()
	names := m.byOwner[ownerID]
	delete(m.byOwner, ownerID)
	for _, n := range names {
		delete(m.tables, n)
	}
	m.mu.Unlock()
}

func (m *Manager) removeFromOwnerLocked(ownerID int64, name string) {
	names := m.byOwner[ownerID]
	for i, n := range names {
		if n == name {
			m.byOwner[ownerID] = append(names[:i], names[i+1:]...)
			break
		}
	}
}

// List returns every currently registered table name.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tables))
	for n := range m.tables {
		out = append(out, n)
	}
	return out
}

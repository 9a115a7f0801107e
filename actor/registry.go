package actor

import (
	"sync"
	"sync/atomic"

	bloom "github.com/bits-and-blooms/bloom/v3"
)

// Registry is the process-wide named actor table plus the global
// alive-actor counter spec.md §4.5/§4.8 uses to detect scheduler
// termination. A bloom.BloomFilter fronts the name lookup with a
// fast-negative check, the same dedup idiom used in eval/registry.go's
// MacroRegistry.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Actor
	byID    map[int64]*Actor
	filter  *bloom.BloomFilter
	aliveCt atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Actor),
		byID:   make(map[int64]*Actor),
		filter: bloom.NewWithEstimates(4096, 0.01),
	}
}

// AliveCount is the global alive-actor counter the scheduler's
// termination check reads (spec.md §4.8).
func (r *Registry) AliveCount() int64 { return r.aliveCt.Load() }

func (r *Registry) add(a *Actor) {
	r.mu.Lock()
	r.byID[a.ID] = a
	r.mu.Unlock()
	r.aliveCt.Add(1)
}

func (r *Registry) remove(a *Actor) {
	r.mu.Lock()
	delete(r.byID, a.ID)
	for name, v := range r.byName {
		if v == a {
			delete(r.byName, name)
		}
	}
	r.mu.Unlock()
	r.aliveCt.Add(-1)
}

// Register binds name to a, replacing any previous binding for that
// name (spec.md §6 "named registry").
func (r *Registry) Register(name string, a *Actor) {
	r.mu.Lock()
	r.byName[name] = a
	r.mu.Unlock()
	r.filter.AddString(name)
}

// Unregister removes a name binding, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.byName, name)
	r.mu.Unlock()
}

// Lookup resolves a registered name to its actor.
func (r *Registry) Lookup(name string) (*Actor, bool) {
	if !r.filter.TestString(name) {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	return a, ok
}

// ByID resolves an actor by its numeric id, for message routing that
// only carries a handle id (spec.md §3.1's ActorHandle cell).
func (r *Registry) ByID(id int64) (*Actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

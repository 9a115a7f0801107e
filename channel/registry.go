package channel

import (
	"sync"
	"sync/atomic"
)

var nextID atomic.Int64

// Registry is the process-wide named-channel table spec.md §6's external
// interface list ("Channels: create, close, destroy, try-send, try-recv,
// lookup, reset-all") describes. Channel handles (value.Cell's
// KindChannel variant) carry only an id; resolving that id to a live
// *Channel goes through here.
type Registry struct {
	mu   sync.RWMutex
	byID map[int64]*Channel
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[int64]*Channel)}
}

// Create allocates a channel, assigns it the next global id, and
// registers it.
func (r *Registry) Create(capacity int) *Channel {
	c := New(capacity)
	c.ID = nextID.Add(1)
	r.mu.Lock()
	r.byID[c.ID] = c
	r.mu.Unlock()
	return c
}

// Lookup resolves a channel id to its live *Channel.
func (r *Registry) Lookup(id int64) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// Close closes the channel, if present. The channel stays registered
// (Lookup still finds it) until Destroy or ResetAll removes it.
func (r *Registry) Close(id int64) {
	r.mu.Lock()
	c := r.byID[id]
	r.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

// Destroy removes a channel from the registry outright (spec.md §6
// "destroy"), regardless of closed state.
func (r *Registry) Destroy(id int64) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

// ResetAll closes and forgets every registered channel. Used by test
// teardown and by a full scheduler shutdown (spec.md §6 "reset-all").
func (r *Registry) ResetAll() {
	r.mu.Lock()
	chans := make([]*Channel, 0, len(r.byID))
	for _, c := range r.byID {
		chans = append(chans, c)
	}
	r.byID = make(map[int64]*Channel)
	r.mu.Unlock()
	for _, c := range chans {
		c.Close()
	}
}

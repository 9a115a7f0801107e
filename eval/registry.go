package eval

import (
	"sync"

	bloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/lumenlisp/core/value"
)

// TypeRegistry backs register_type/lookup_type (spec.md §6): a process-
// wide, striped-lock-guarded map from a struct's type tag to its schema
// cell.
type TypeRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*value.Cell
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{schemas: make(map[string]*value.Cell)}
}

func (r *TypeRegistry) Register(tag string, schema *value.Cell) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[tag] = value.Retain(schema)
}

func (r *TypeRegistry) Lookup(tag string) (*value.Cell, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[tag]
	return s, ok
}

// Macro is a registered macro transformer: it receives the unevaluated
// argument forms and returns the expanded form. Transformers are built by
// `defmacro` (macro.go) or supplied by an external macro engine; the
// registry only stores and looks them up.
type Macro struct {
	Name        string
	Transformer func(args []*value.Cell) *value.Cell
}

// MacroRegistry is the process-wide macro table the evaluator's pre-pass
// (spec.md §4.2, "Macro expansion runs as a pre-pass") consults before
// special-form dispatch.
//
// A bloom.BloomFilter sits in front of the locked map as a fast-negative
// check: most application heads are ordinary function calls, not macro
// invocations, so the common case ("definitely not a macro") is answered
// without touching the mutex at all. Grounded on the same gossip-dedup
// idiom as actor/registry.go (see DESIGN.md).
type MacroRegistry struct {
	mu     sync.RWMutex
	macros map[string]*Macro
	filter *bloom.BloomFilter
}

func NewMacroRegistry() *MacroRegistry {
	return &MacroRegistry{
		macros: make(map[string]*Macro),
		filter: bloom.NewWithEstimates(1024, 0.01),
	}
}

func (r *MacroRegistry) Register(m *Macro) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.macros[m.Name] = m
	r.filter.AddString(m.Name)
}

// Lookup returns the macro bound to name, if any. The bloom filter may
// false-positive (in which case the map lookup below correctly reports a
// miss) but never false-negatives, so skipping the lock on a filter miss
// is always safe.
func (r *MacroRegistry) Lookup(name string) (*Macro, bool) {
	if !r.filter.TestString(name) {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.macros[name]
	return m, ok
}

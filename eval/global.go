package eval

import (
	"sync"
	"sync/atomic"

	"github.com/lumenlisp/core/env"
	"github.com/lumenlisp/core/value"
)

// GlobalEnv is the process-wide named environment that top-level `define`
// writes into. It is kept separate from the per-call lexical (De Bruijn)
// environments a lambda closes over: spec.md §3.2's two environment
// shapes describe lexical scoping, while top-level definitions are a
// single shared table every fiber can read and (via `define`) extend.
//
// Each binding's value slot is itself a mutable Box, which is what makes
// spec.md §4.2 and §9's "pre-bind the name to nil" two-phase recursive
// bind work without recreating the whole chain: Define reserves the box
// first (bound to nil), evaluates the value form (which may itself be a
// lambda body referencing the name — the lookup finds the box, still
// nil, but the *box* is what the lambda's closure captures by reference
// once the box is filled in below), then fills the box in place.
type GlobalEnv struct {
	mu    sync.RWMutex
	chain atomic.Pointer[value.Cell]
}

func NewGlobalEnv() *GlobalEnv {
	g := &GlobalEnv{}
	g.chain.Store(env.NewNamed())
	return g
}

// Lookup returns the bound value (already unwrapped from its Box), or
// (nil, false) on miss.
func (g *GlobalEnv) Lookup(name string) (*value.Cell, bool) {
	g.mu.RLock()
	chain := g.chain.Load()
	g.mu.RUnlock()
	box, ok := env.LookupNamed(chain, name)
	if !ok {
		return nil, false
	}
	return box.BoxGet(), true
}

// Define implements spec.md §4.2's two-phase bind: reserve a nil box,
// evaluate valueFn (which receives a chance to reference the
// not-yet-complete binding through the already-published box), then fill
// the box.
func (g *GlobalEnv) Define(name string, valueFn func() *value.Cell) *value.Cell {
	g.mu.Lock()
	chain := g.chain.Load()
	if _, already := env.LookupNamed(chain, name); !already {
		box := value.Box(value.Nil())
		g.chain.Store(env.BindNamed(chain, name, box))
	}
	g.mu.Unlock()

	v := valueFn()

	g.mu.RLock()
	chain = g.chain.Load()
	g.mu.RUnlock()
	box, _ := env.LookupNamed(chain, name)
	box.BoxSet(v)
	return v
}

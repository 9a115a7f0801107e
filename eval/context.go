// Package eval implements the iterative tree-walking evaluator of spec.md
// §4.2: tail-call looping via local-variable rebinding, a reduction
// budget that yields the owning fiber when exhausted, quote/quasiquote,
// define, lambda, if, match, and application dispatch. The reader,
// primitive table, and macro *engine* are external collaborators; this
// package only defines the hooks they plug into (Builtin dispatch,
// Macro registration, type schema registration).
package eval

import (
	"github.com/lumenlisp/core/value"
)

// Default reduction quantum granted per scheduler turn (spec.md §4.8).
const DefaultReductionQuantum = 4000

// Context carries everything one eval() call needs: the reduction budget,
// the macro and type registries, a diagnostics sink for non-fatal
// warnings (spec.md §4.3), and the hook back into the owning fiber.
//
// OnReductionYield is called when the budget is exhausted while still
// inside a tail-call loop; it must block until the scheduler resumes the
// fiber and then return. Eval is deliberately decoupled from the fiber
// package (see DESIGN.md Open Question #5 and SPEC_FULL.md's dependency
// order) — whoever constructs a Context for a fiber body supplies this as
// a closure over that fiber's own Yield method.
type Context struct {
	ReductionsLeft int64
	Quantum        int64

	Global *GlobalEnv
	Macros *MacroRegistry
	Types  *TypeRegistry

	Diagnostics chan string // non-blocking warnings; never aborts eval

	OnReductionYield func()
}

// NewContext builds a Context with a fresh reduction quantum and shared
// global/macro/type registries (registries are typically process-wide and
// reused across many fiber bodies).
func NewContext(global *GlobalEnv, macros *MacroRegistry, types *TypeRegistry, quantum int64, onYield func()) *Context {
	if quantum <= 0 {
		quantum = DefaultReductionQuantum
	}
	return &Context{
		ReductionsLeft:   quantum,
		Quantum:          quantum,
		Global:           global,
		Macros:           macros,
		Types:            types,
		Diagnostics:      make(chan string, 64),
		OnReductionYield: onYield,
	}
}

// Warn posts a non-fatal diagnostic (spec.md §4.3: "all warnings go to a
// diagnostics channel; they never abort execution"). Drops the warning if
// the channel is full rather than blocking the evaluator.
func (c *Context) Warn(msg string) {
	select {
	case c.Diagnostics <- msg:
	default:
	}
}

// errorCell builds an error value of the given kind with a string payload,
// matching spec.md §7's taxonomy.
func errorCell(kind, msg string) *value.Cell {
	return value.Error(kind, value.String(msg))
}

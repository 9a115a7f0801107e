// Package env implements the two environment shapes spec.md §3.2
// describes, both sharing the value.Cell pair representation: a named
// alist environment (source-level, used while compiling a lambda body)
// and an indexed De Bruijn environment (what a captured lambda closure
// actually carries).
package env

import "github.com/lumenlisp/core/value"

// IndexedSentinel terminates an indexed environment chain. The evaluator
// scans for this sentinel symbol to decide which of the two shapes it is
// looking at (spec.md §3.2).
const IndexedSentinel = ":__indexed__"

// NewNamed builds an empty named environment: a pair list that starts at
// nil. Binding conses a (symbol . value) pair onto the front so leaves
// shadow later entries.
func NewNamed() *value.Cell {
	return value.Nil()
}

// BindNamed prepends a (symbol . value) binding, returning the new head.
func BindNamed(envCell *value.Cell, symbol string, v *value.Cell) *value.Cell {
	entry := value.Cons(value.Symbol(symbol), v)
	return value.Cons(entry, envCell)
}

// LookupNamed walks the alist from the head; the first match shadows any
// later one. Returns (nil, false) on miss, which the evaluator turns into
// an undefined-variable error.
func LookupNamed(envCell *value.Cell, symbol string) (*value.Cell, bool) {
	cur := envCell
	for cur != nil && cur.IsPair() {
		entry := cur.Head
		if entry != nil && entry.IsPair() && entry.Head.IsSymbol() && entry.Head.Str == symbol {
			return entry.Tail, true
		}
		cur = cur.Tail
	}
	return nil, false
}

// IsIndexed reports whether envCell is an indexed (De Bruijn) environment
// by scanning for the sentinel at the chain's tail, per spec.md §3.2.
func IsIndexed(envCell *value.Cell) bool {
	cur := envCell
	for cur != nil && cur.IsPair() {
		cur = cur.Tail
	}
	return cur != nil && cur.IsSymbol() && cur.Str == IndexedSentinel
}

// NewIndexed builds an empty indexed environment: a value list terminated
// by the sentinel.
func NewIndexed() *value.Cell {
	return value.Symbol(IndexedSentinel)
}

// Extend prepends a new argument frame (a slice of values, closest binding
// first) onto an indexed environment, for a lambda application.
func Extend(envCell *value.Cell, args []*value.Cell) *value.Cell {
	cur := envCell
	for i := len(args) - 1; i >= 0; i-- {
		cur = value.Cons(args[i], cur)
	}
	return cur
}

// LookupIndexed resolves a De Bruijn index (0 = most recently bound) by
// walking that many cons cells from the head. A negative or out-of-range
// index is the caller's bug to avoid; spec.md §4.2 says a non-integer or
// negative literal "falls through as literal" at the call site, not here.
func LookupIndexed(envCell *value.Cell, index int) (*value.Cell, bool) {
	cur := envCell
	for i := 0; i < index; i++ {
		if cur == nil || !cur.IsPair() {
			return nil, false
		}
		cur = cur.Tail
	}
	if cur == nil || !cur.IsPair() {
		return nil, false
	}
	return cur.Head, true
}

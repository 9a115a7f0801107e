package eval

import "github.com/lumenlisp/core/value"

// paramNames walks a raw parameter-list form (a chain of symbol pairs
// terminated by nil) into a plain slice.
func paramNames(params *value.Cell) []string {
	var out []string
	cur := params
	for cur != nil && cur.IsPair() {
		if cur.Head.IsSymbol() {
			out = append(out, cur.Head.Str)
		}
		cur = cur.Tail
	}
	return out
}

// compileDeBruijn converts a named lambda body into De Bruijn form,
// per spec.md §3.2/§4.2: bound-parameter references become small
// non-negative integers; free references are left as bare symbols,
// resolved at runtime through GlobalEnv.
//
// frames holds one []string per enclosing lexical frame, outermost first,
// innermost (the lambda currently being converted) last. The function
// recurses into nested `lambda` and `match` literals, extending frames
// for each — so a single top-level call fully resolves every lexical
// reference at every depth in one pass. Reapplying it to an
// already-converted sub-tree (which happens naturally when a nested
// lambda/match literal is independently evaluated again at runtime) is
// idempotent: symbols that are already integers are left untouched, and
// re-finding nothing for a fully-converted frame's own names is a no-op.
func compileDeBruijn(form *value.Cell, frames [][]string) *value.Cell {
	if form == nil {
		return form
	}
	if form.IsSymbol() {
		if idx, ok := resolveFrames(form.Str, frames); ok {
			return value.Integer(int64(idx))
		}
		return form
	}
	if !form.IsPair() {
		return form
	}

	if form.Head.IsSymbol() {
		switch form.Head.Str {
		case "quote":
			return form // quoted data is opaque, never walked
		case "lambda":
			// (lambda params body)
			params := form.Tail.Head
			body := form.Tail.Tail.Head
			newFrames := append(append([][]string{}, frames...), paramNames(params))
			compiledBody := compileDeBruijn(body, newFrames)
			return value.Cons(form.Head, value.Cons(params, value.Cons(compiledBody, value.Nil())))
		case "match":
			return compileMatch(form, frames)
		}
	}

	return value.Cons(compileDeBruijn(form.Head, frames), compileDeBruijn(form.Tail, frames))
}

// resolveFrames searches frames innermost-first for name, returning its
// flattened De Bruijn index (0 = nearest binder) or ok=false if name is
// free.
func resolveFrames(name string, frames [][]string) (int, bool) {
	offset := 0
	for i := len(frames) - 1; i >= 0; i-- {
		frame := frames[i]
		for p, n := range frame {
			if n == name {
				return offset + p, true
			}
		}
		offset += len(frame)
	}
	return 0, false
}

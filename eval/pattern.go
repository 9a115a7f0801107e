package eval

import "github.com/lumenlisp/core/value"

// isWildcardOrVar reports whether a pattern is a catch-all: either the
// `_` wildcard or a plain variable binding (spec.md §4.3).
func isWildcardOrVar(pattern *value.Cell) bool {
	return pattern.IsSymbol() && !pattern.IsKeyword()
}

// patternVars returns the names a pattern binds, in the depth-first order
// compileDeBruijn and matchPattern both rely on to stay in lock-step.
func patternVars(pattern *value.Cell) []string {
	switch {
	case pattern.IsSymbol() && !pattern.IsKeyword():
		if pattern.Str == "_" {
			return nil
		}
		return []string{pattern.Str}
	case pattern.IsPair():
		return append(patternVars(pattern.Head), patternVars(pattern.Tail)...)
	case pattern.Kind == value.KindStruct:
		var out []string
		for _, f := range pattern.Fields {
			out = append(out, patternVars(f.Value)...)
		}
		return out
	default:
		return nil
	}
}

// matchPattern attempts to match val against pattern, returning the bound
// values in the same depth-first order patternVars uses for names.
func matchPattern(pattern, val *value.Cell) ([]*value.Cell, bool) {
	switch {
	case pattern.IsSymbol() && !pattern.IsKeyword():
		if pattern.Str == "_" {
			return nil, true
		}
		return []*value.Cell{val}, true
	case pattern.Kind == value.KindNumber, pattern.Kind == value.KindInt,
		pattern.Kind == value.KindBool, pattern.Kind == value.KindKeyword,
		pattern.Kind == value.KindNil, pattern.Kind == value.KindString:
		return nil, value.Equal(pattern, val)
	case pattern.IsPair():
		if !val.IsPair() {
			return nil, false
		}
		headBound, ok := matchPattern(pattern.Head, val.Head)
		if !ok {
			return nil, false
		}
		tailBound, ok := matchPattern(pattern.Tail, val.Tail)
		if !ok {
			return nil, false
		}
		return append(headBound, tailBound...), true
	case pattern.Kind == value.KindStruct:
		if val.Kind != value.KindStruct || val.GKind != pattern.GKind || val.TypeTag != pattern.TypeTag {
			return nil, false
		}
		if pattern.GKind == value.GraphNode && val.Variant != pattern.Variant {
			return nil, false
		}
		var bound []*value.Cell
		for _, pf := range pattern.Fields {
			var found *value.Cell
			for _, vf := range val.Fields {
				if vf.Name == pf.Name {
					found = vf.Value
					break
				}
			}
			if found == nil {
				return nil, false
			}
			b, ok := matchPattern(pf.Value, found)
			if !ok {
				return nil, false
			}
			bound = append(bound, b...)
		}
		return bound, true
	default:
		return nil, false
	}
}

// clauseParts splits a (pattern body) or (pattern | guard body) clause.
func clauseParts(clause *value.Cell) (pattern, guard, body *value.Cell) {
	pattern = clause.Head
	rest := clause.Tail
	if rest.Head.IsSymbol() && rest.Head.Str == "|" {
		guard = rest.Tail.Head
		body = rest.Tail.Tail.Head
		return
	}
	body = rest.Head
	return
}

// compileMatch converts a raw `(match discriminant clause...)` form: the
// discriminant compiles as an ordinary expression; each clause's pattern
// is left untouched (patterns are unevaluated per spec.md §4.3) while its
// guard/body compile against frames extended with that clause's own
// pattern-bound variable names, mirroring how `lambda` extends frames
// with parameter names.
func compileMatch(form *value.Cell, frames [][]string) *value.Cell {
	discriminant := form.Tail.Head
	clauses := form.Tail.Tail

	compiledDiscriminant := compileDeBruijn(discriminant, frames)

	var compiledClauses []*value.Cell
	cur := clauses
	for cur != nil && cur.IsPair() {
		clause := cur.Head
		pattern, guard, body := clauseParts(clause)
		clauseFrames := append(append([][]string{}, frames...), patternVars(pattern))

		var newClause *value.Cell
		if guard != nil {
			newClause = value.Cons(pattern, value.Cons(value.Symbol("|"),
				value.Cons(compileDeBruijn(guard, clauseFrames),
					value.Cons(compileDeBruijn(body, clauseFrames), value.Nil()))))
		} else {
			newClause = value.Cons(pattern, value.Cons(compileDeBruijn(body, clauseFrames), value.Nil()))
		}
		compiledClauses = append(compiledClauses, newClause)
		cur = cur.Tail
	}

	out := value.Nil()
	for i := len(compiledClauses) - 1; i >= 0; i-- {
		out = value.Cons(compiledClauses[i], out)
	}
	return value.Cons(form.Head, value.Cons(compiledDiscriminant, out))
}

package eval

import (
	"fmt"

	"github.com/lumenlisp/core/env"
	"github.com/lumenlisp/core/value"
)

// Eval is the iterative tree-walking evaluator of spec.md §4.2. Tail
// positions (the chosen branch of `if`, a matched `match` clause's body, and
// a lambda application's body) rebind expr/envCell and loop instead of
// recursing, so a self-tail-recursive definition runs in constant Go
// stack regardless of how many reductions it performs.
func Eval(ctx *Context, envCell, expr *value.Cell) *value.Cell {
	for {
		ctx.ReductionsLeft--
		if ctx.ReductionsLeft <= 0 {
			if ctx.OnReductionYield != nil {
				ctx.OnReductionYield()
			}
			ctx.ReductionsLeft = ctx.Quantum
		}

		if expr == nil {
			return value.Nil()
		}

		switch expr.Kind {
		case value.KindInt:
			if env.IsIndexed(envCell) {
				if v, ok := env.LookupIndexed(envCell, int(expr.Int)); ok {
					return v
				}
			}
			return expr
		case value.KindSymbol:
			if v, ok := resolveSymbol(ctx, envCell, expr.Str); ok {
				return v
			}
			return value.Error("undefined-variable", value.String(expr.Str))
		case value.KindPair:
			// fall through to special-form/application dispatch below
		default:
			return expr
		}

		head := expr.Head

		if head.IsSymbol() {
			if m, ok := ctx.Macros.Lookup(head.Str); ok {
				expr = m.Transformer(rawArgs(expr.Tail))
				continue
			}

			switch head.Str {
			case "quote":
				return expr.Tail.Head
			case "quasiquote":
				return evalQuasiquote(ctx, envCell, expr.Tail.Head, 1)
			case "define":
				return evalDefine(ctx, envCell, expr)
			case "lambda":
				return makeLambda(envCell, expr)
			case "defmacro":
				return evalDefmacro(ctx, envCell, expr)
			case "if":
				cond := Eval(ctx, envCell, expr.Tail.Head)
				branches := expr.Tail.Tail
				if isTruthy(cond) {
					expr = branches.Head
				} else if branches.Tail.IsPair() {
					expr = branches.Tail.Head
				} else {
					return value.Nil()
				}
				continue
			case "match":
				next, nextEnv, result, matched := evalMatch(ctx, envCell, expr)
				if !matched {
					return result
				}
				expr, envCell = next, nextEnv
				continue
			}
		}

		fn := Eval(ctx, envCell, head)
		var args []*value.Cell
		cur := expr.Tail
		for cur != nil && cur.IsPair() {
			args = append(args, Eval(ctx, envCell, cur.Head))
			cur = cur.Tail
		}

		switch {
		case fn.IsBuiltin():
			return fn.Fn(args)
		case fn.IsLambda():
			if len(args) != fn.Arity {
				return value.Error("arity-mismatch",
					value.String(fmt.Sprintf("expected %d argument(s), got %d", fn.Arity, len(args))))
			}
			expr = fn.Body
			envCell = env.Extend(fn.Env, args)
			continue
		default:
			return value.Error("not-a-function", fn)
		}
	}
}

// resolveSymbol looks a bare symbol up. Inside an indexed (lambda-body)
// environment, bound variables are already rewritten to integers by
// compileDeBruijn, so any bare symbol reaching eval there is by
// construction free and resolves through GlobalEnv. Inside a named
// (top-level/alist) environment, an ordinary alist walk comes first, with
// GlobalEnv as the fallback for names defined elsewhere.
func resolveSymbol(ctx *Context, envCell *value.Cell, name string) (*value.Cell, bool) {
	if !env.IsIndexed(envCell) {
		if v, ok := env.LookupNamed(envCell, name); ok {
			return v, true
		}
	}
	return ctx.Global.Lookup(name)
}

func isTruthy(v *value.Cell) bool {
	return !(v.Kind == value.KindBool && !v.Bool)
}

// makeLambda builds the closure Cell for a `(lambda params body)` form.
// It captures the environment active at creation time (so the closure
// sees enclosing bindings by De Bruijn index) and compiles the body
// against a frame stack consisting of just this lambda's own parameters;
// compileDeBruijn is idempotent on already-converted sub-trees (see
// compile.go), so re-running it here on a body nested inside an
// already-compiled outer form is a no-op beyond this lambda's own
// parameter references.
func makeLambda(envCell, expr *value.Cell) *value.Cell {
	params := expr.Tail.Head
	body := expr.Tail.Tail.Head
	names := paramNames(params)
	compiledBody := compileDeBruijn(body, [][]string{names})

	// A lambda created directly in a named (top-level) environment has no
	// enclosing De Bruijn frame to close over — named environments never
	// participate in index-based addressing, so its captured base is a
	// fresh empty indexed chain. A lambda literal reached while already
	// running inside another lambda's body closes over that running
	// indexed environment, whose outer frames the enclosing
	// compileDeBruijn pass already accounted for when it compiled this
	// nested body.
	capturedEnv := envCell
	if !env.IsIndexed(envCell) {
		capturedEnv = env.NewIndexed()
	}
	return value.Lambda(capturedEnv, compiledBody, len(names), "")
}

// evalDefine implements the two-phase recursive bind of spec.md §4.2/§9:
// GlobalEnv.Define reserves the name against a nil box before the value
// expression runs, so a lambda that references its own name sees a live
// (if not yet filled) box rather than an undefined-variable error.
func evalDefine(ctx *Context, envCell, expr *value.Cell) *value.Cell {
	name := expr.Tail.Head.Str
	valueExpr := expr.Tail.Tail.Head
	return ctx.Global.Define(name, func() *value.Cell {
		return Eval(ctx, envCell, valueExpr)
	})
}

// evalMatch evaluates the discriminant and walks compiled clauses in
// order. A successful, guard-passing clause returns its (already
// De Bruijn compiled) body and the environment extended with the bound
// pattern variables, for the caller to tail-loop into. Clauses following
// an already-seen catch-all pattern are flagged unreachable via
// ctx.Warn, matching spec.md §4.3's non-fatal diagnostics policy.
func evalMatch(ctx *Context, envCell, expr *value.Cell) (nextExpr, nextEnv, fallback *value.Cell, matched bool) {
	// Compile the clauses now, exactly as makeLambda compiles a lambda
	// body at the moment it is reached: a top-level match form was never
	// touched by an enclosing compileDeBruijn pass, so its clause
	// variables are still bare names here. A match nested inside an
	// already-compiled lambda body was compiled once already; recompiling
	// with no assumed outer frames is a no-op there, because each
	// clause's own pattern variables are always the innermost frame
	// (offset 0..k-1) regardless of how many outer frames exist, and any
	// symbol genuinely referring to an outer binding is already an
	// integer by this point.
	expr = compileMatch(expr, nil)
	discriminant := Eval(ctx, envCell, expr.Tail.Head)

	// As in makeLambda: a named top-level environment never participates
	// in De Bruijn addressing, so a clause's bound pattern variables get
	// a fresh indexed base rather than being appended to it. Nested
	// inside a lambda body, envCell is already the running indexed
	// chain the enclosing compile pass assumed.
	extendBase := envCell
	if !env.IsIndexed(envCell) {
		extendBase = env.NewIndexed()
	}

	seenCatchAll := false
	cur := expr.Tail.Tail
	for cur != nil && cur.IsPair() {
		clause := cur.Head
		pattern, guard, body := clauseParts(clause)

		if seenCatchAll {
			ctx.Warn("unreachable match clause after catch-all pattern")
		}

		bound, ok := matchPattern(pattern, discriminant)
		if ok {
			candidateEnv := env.Extend(extendBase, bound)
			if guard != nil && !isTruthy(Eval(ctx, candidateEnv, guard)) {
				if isWildcardOrVar(pattern) {
					seenCatchAll = true
				}
				cur = cur.Tail
				continue
			}
			return body, candidateEnv, nil, true
		}

		if isWildcardOrVar(pattern) {
			seenCatchAll = true
		}
		cur = cur.Tail
	}

	return nil, nil, value.Error("no-match", discriminant), false
}

// evalQuasiquote walks a quasiquoted form, evaluating unquote/
// unquote-splicing sites at depth 1 and tracking nesting depth across
// inner quasiquote/unquote pairs per spec.md §4.2.
func evalQuasiquote(ctx *Context, envCell, form *value.Cell, depth int) *value.Cell {
	if form == nil || !form.IsPair() {
		return form
	}

	if form.Head.IsSymbol() {
		switch form.Head.Str {
		case "unquote":
			if depth == 1 {
				return Eval(ctx, envCell, form.Tail.Head)
			}
			return value.Cons(form.Head, evalQuasiquote(ctx, envCell, form.Tail, depth-1))
		case "quasiquote":
			return value.Cons(form.Head, evalQuasiquote(ctx, envCell, form.Tail, depth+1))
		}
	}

	if form.Head.IsPair() && form.Head.Head.IsSymbol() && form.Head.Head.Str == "unquote-splicing" && depth == 1 {
		spliced := Eval(ctx, envCell, form.Head.Tail.Head)
		rest := evalQuasiquote(ctx, envCell, form.Tail, depth)
		return appendLists(spliced, rest)
	}

	return value.Cons(evalQuasiquote(ctx, envCell, form.Head, depth), evalQuasiquote(ctx, envCell, form.Tail, depth))
}

// appendLists conses every element of a onto the front of b, preserving
// a's order (used for unquote-splicing).
func appendLists(a, b *value.Cell) *value.Cell {
	var elems []*value.Cell
	cur := a
	for cur != nil && cur.IsPair() {
		elems = append(elems, cur.Head)
		cur = cur.Tail
	}
	out := b
	for i := len(elems) - 1; i >= 0; i-- {
		out = value.Cons(elems[i], out)
	}
	return out
}

// rawArgs collects a form's argument list without evaluating it, for
// handing to a macro transformer.
func rawArgs(form *value.Cell) []*value.Cell {
	var out []*value.Cell
	cur := form
	for cur != nil && cur.IsPair() {
		out = append(out, cur.Head)
		cur = cur.Tail
	}
	return out
}

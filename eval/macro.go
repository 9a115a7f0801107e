package eval

import (
	"github.com/lumenlisp/core/env"
	"github.com/lumenlisp/core/value"
)

// evalDefmacro implements `(defmacro name (params...) body)`: it builds a
// non-hygienic, fexpr-style transformer that binds each parameter name to
// the corresponding *unevaluated* call-site form in a fresh named
// environment, evaluates body in that environment, and hands the result
// back to Eval's tail loop as the expanded form. Macro expansion is a
// pre-pass (spec.md §4.2): transformers never see already-evaluated
// values, and the registry's bloom-filter front keeps the common,
// non-macro application path free of any lookup cost beyond one filter
// test.
func evalDefmacro(ctx *Context, defEnv, expr *value.Cell) *value.Cell {
	name := expr.Tail.Head.Str
	params := paramNames(expr.Tail.Tail.Head)
	body := expr.Tail.Tail.Tail.Head

	ctx.Macros.Register(&Macro{
		Name: name,
		Transformer: func(args []*value.Cell) *value.Cell {
			bindEnv := defEnv
			for i, p := range params {
				if i < len(args) {
					bindEnv = env.BindNamed(bindEnv, p, args[i])
				} else {
					bindEnv = env.BindNamed(bindEnv, p, value.Nil())
				}
			}
			return Eval(ctx, bindEnv, body)
		},
	})
	return value.Symbol(name)
}

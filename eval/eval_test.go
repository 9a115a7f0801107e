package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlisp/core/env"
	"github.com/lumenlisp/core/value"
)

func list(items ...*value.Cell) *value.Cell {
	out := value.Nil()
	for i := len(items) - 1; i >= 0; i-- {
		out = value.Cons(items[i], out)
	}
	return out
}

func numOf(c *value.Cell) float64 {
	if c.Kind == value.KindInt {
		return float64(c.Int)
	}
	return c.Num
}

func newTestContext() *Context {
	g := NewGlobalEnv()
	ctx := NewContext(g, NewMacroRegistry(), NewTypeRegistry(), DefaultReductionQuantum, nil)

	arith := func(op func(a, b float64) float64, identity float64) value.BuiltinFunc {
		return func(args []*value.Cell) *value.Cell {
			acc := identity
			if len(args) > 0 {
				acc = numOf(args[0])
				for _, a := range args[1:] {
					acc = op(acc, numOf(a))
				}
			}
			return value.Number(acc)
		}
	}
	g.Define("+", func() *value.Cell { return value.Builtin(arith(func(a, b float64) float64 { return a + b }, 0)) })
	g.Define("-", func() *value.Cell {
		return value.Builtin(func(args []*value.Cell) *value.Cell {
			if len(args) == 1 {
				return value.Number(-numOf(args[0]))
			}
			acc := numOf(args[0])
			for _, a := range args[1:] {
				acc -= numOf(a)
			}
			return value.Number(acc)
		})
	})
	g.Define("*", func() *value.Cell { return value.Builtin(arith(func(a, b float64) float64 { return a * b }, 1)) })
	g.Define("=", func() *value.Cell {
		return value.Builtin(func(args []*value.Cell) *value.Cell {
			return value.Boolean(numOf(args[0]) == numOf(args[1]))
		})
	})
	g.Define("<", func() *value.Cell {
		return value.Builtin(func(args []*value.Cell) *value.Cell {
			return value.Boolean(numOf(args[0]) < numOf(args[1]))
		})
	})
	return ctx
}

func TestQuoteReturnsUnevaluatedData(t *testing.T) {
	ctx := newTestContext()
	form := list(value.Symbol("quote"), list(value.Symbol("a"), value.Symbol("b")))
	got := Eval(ctx, env.NewNamed(), form)
	assert.True(t, got.IsPair())
	assert.Equal(t, "a", got.Head.Str)
}

func TestIfShortCircuitsUnchosenBranch(t *testing.T) {
	ctx := newTestContext()
	topEnv := env.NewNamed()

	taken := false
	notTaken := false
	ctx.Global.Define("mark-taken", func() *value.Cell {
		return value.Builtin(func(args []*value.Cell) *value.Cell {
			taken = true
			return value.Nil()
		})
	})
	ctx.Global.Define("mark-not-taken", func() *value.Cell {
		return value.Builtin(func(args []*value.Cell) *value.Cell {
			notTaken = true
			return value.Nil()
		})
	})

	form := list(value.Symbol("if"), value.Boolean(true),
		list(value.Symbol("mark-taken")),
		list(value.Symbol("mark-not-taken")))
	Eval(ctx, topEnv, form)

	assert.True(t, taken)
	assert.False(t, notTaken)
}

func TestLambdaApplicationArithmetic(t *testing.T) {
	ctx := newTestContext()
	topEnv := env.NewNamed()

	// ((lambda (x y z) (+ x (* y z))) 1 2 3) => 7
	lam := list(value.Symbol("lambda"),
		list(value.Symbol("x"), value.Symbol("y"), value.Symbol("z")),
		list(value.Symbol("+"), value.Symbol("x"), list(value.Symbol("*"), value.Symbol("y"), value.Symbol("z"))))
	call := list(lam, value.Number(1), value.Number(2), value.Number(3))

	got := Eval(ctx, topEnv, call)
	require.Equal(t, value.KindNumber, got.Kind)
	assert.Equal(t, 7.0, got.Num)
}

func TestUndefinedVariableError(t *testing.T) {
	ctx := newTestContext()
	got := Eval(ctx, env.NewNamed(), value.Symbol("no-such-name"))
	require.True(t, got.IsError())
	assert.Equal(t, "undefined-variable", got.ErrKind)
}

func TestArityMismatchError(t *testing.T) {
	ctx := newTestContext()
	topEnv := env.NewNamed()
	lam := list(value.Symbol("lambda"), list(value.Symbol("x")), value.Symbol("x"))
	call := list(lam, value.Number(1), value.Number(2))
	got := Eval(ctx, topEnv, call)
	require.True(t, got.IsError())
	assert.Equal(t, "arity-mismatch", got.ErrKind)
}

// TestFactorialSelfReference exercises the two-phase recursive global bind
// (spec.md §4.2/§9): factorial refers to its own not-yet-fully-bound name
// inside its own body.
func TestFactorialSelfReference(t *testing.T) {
	ctx := newTestContext()
	topEnv := env.NewNamed()

	factorialBody := list(value.Symbol("if"),
		list(value.Symbol("="), value.Symbol("n"), value.Number(0)),
		value.Number(1),
		list(value.Symbol("*"), value.Symbol("n"),
			list(value.Symbol("factorial"), list(value.Symbol("-"), value.Symbol("n"), value.Number(1)))))
	lam := list(value.Symbol("lambda"), list(value.Symbol("n")), factorialBody)
	defineForm := list(value.Symbol("define"), value.Symbol("factorial"), lam)

	Eval(ctx, topEnv, defineForm)

	call := list(value.Symbol("factorial"), value.Number(10))
	got := Eval(ctx, topEnv, call)
	require.Equal(t, value.KindNumber, got.Kind)
	assert.Equal(t, 3628800.0, got.Num)
}

// TestTailCallLoopDoesNotOverflowGoStack drives a self-tail-recursive
// countdown far past any reasonable Go call-stack depth, asserting the
// tail-call loop in Eval never recurses per iteration.
func TestTailCallLoopDoesNotOverflowGoStack(t *testing.T) {
	ctx := newTestContext()
	ctx.OnReductionYield = func() {} // never actually pauses in this synchronous test
	topEnv := env.NewNamed()

	// (define count-down (lambda (n) (if (= n 0) 0 (count-down (- n 1)))))
	body := list(value.Symbol("if"),
		list(value.Symbol("="), value.Symbol("n"), value.Number(0)),
		value.Number(0),
		list(value.Symbol("count-down"), list(value.Symbol("-"), value.Symbol("n"), value.Number(1))))
	lam := list(value.Symbol("lambda"), list(value.Symbol("n")), body)
	Eval(ctx, topEnv, list(value.Symbol("define"), value.Symbol("count-down"), lam))

	const n = 1_000_000
	got := Eval(ctx, topEnv, list(value.Symbol("count-down"), value.Number(n)))
	require.Equal(t, value.KindNumber, got.Kind)
	assert.Equal(t, 0.0, got.Num)
}

func TestDefmacroExpandsBeforeEval(t *testing.T) {
	ctx := newTestContext()
	topEnv := env.NewNamed()

	// (defmacro twice (x) (+ x x)) — the transformer binds x to the raw
	// call-site form and evaluates (+ x x) in that binding, so calling
	// (twice 21) yields 42 by construction, not by regular application.
	macroBody := list(value.Symbol("+"), value.Symbol("x"), value.Symbol("x"))
	Eval(ctx, topEnv, list(value.Symbol("defmacro"), value.Symbol("twice"), list(value.Symbol("x")), macroBody))

	got := Eval(ctx, topEnv, list(value.Symbol("twice"), value.Number(21)))
	require.Equal(t, value.KindNumber, got.Kind)
	assert.Equal(t, 42.0, got.Num)
}

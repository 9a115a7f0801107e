package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlisp/core/env"
	"github.com/lumenlisp/core/value"
)

func TestPatternVarsDepthFirstOrder(t *testing.T) {
	// pattern: (a (b . c))
	pattern := list(value.Symbol("a"), value.Cons(value.Symbol("b"), value.Symbol("c")))
	vars := patternVars(pattern)
	assert.Equal(t, []string{"a", "b", "c"}, vars)
}

func TestPatternVarsSkipsWildcard(t *testing.T) {
	pattern := list(value.Symbol("_"), value.Symbol("x"))
	vars := patternVars(pattern)
	assert.Equal(t, []string{"x"}, vars)
}

func TestMatchPatternLiteralAndVariable(t *testing.T) {
	pattern := list(value.Number(1), value.Symbol("rest"))
	val := list(value.Number(1), value.Number(99))

	bound, ok := matchPattern(pattern, val)
	require.True(t, ok)
	require.Len(t, bound, 1)
	assert.Equal(t, 99.0, bound[0].Num)
}

func TestMatchPatternLiteralMismatch(t *testing.T) {
	pattern := list(value.Number(1), value.Symbol("rest"))
	val := list(value.Number(2), value.Number(99))

	_, ok := matchPattern(pattern, val)
	assert.False(t, ok)
}

func TestMatchPatternStruct(t *testing.T) {
	pattern := value.Struct(value.GraphNode, "point", "2d", []value.FieldEntry{
		{Name: "x", Value: value.Symbol("px")},
		{Name: "y", Value: value.Number(0)},
	})
	val := value.Struct(value.GraphNode, "point", "2d", []value.FieldEntry{
		{Name: "x", Value: value.Number(5)},
		{Name: "y", Value: value.Number(0)},
	})

	bound, ok := matchPattern(pattern, val)
	require.True(t, ok)
	require.Len(t, bound, 1)
	assert.Equal(t, 5.0, bound[0].Num)
}

func TestMatchPatternStructVariantMismatch(t *testing.T) {
	pattern := value.Struct(value.GraphNode, "point", "2d", nil)
	val := value.Struct(value.GraphNode, "point", "3d", nil)
	_, ok := matchPattern(pattern, val)
	assert.False(t, ok)
}

func TestEvalMatchDispatchesToMatchingClause(t *testing.T) {
	ctx := newTestContext()
	topEnv := env.NewNamed()

	// (match 2 (1 'one) (2 'two) (_ 'other))
	form := list(value.Symbol("match"), value.Number(2),
		list(value.Number(1), list(value.Symbol("quote"), value.Symbol("one"))),
		list(value.Number(2), list(value.Symbol("quote"), value.Symbol("two"))),
		list(value.Symbol("_"), list(value.Symbol("quote"), value.Symbol("other"))))

	got := Eval(ctx, topEnv, form)
	require.True(t, got.IsSymbol())
	assert.Equal(t, "two", got.Str)
}

func TestEvalMatchBindsVariableAndEvaluatesBody(t *testing.T) {
	ctx := newTestContext()
	topEnv := env.NewNamed()

	// (match 5 (n (+ n n)))
	form := list(value.Symbol("match"), value.Number(5),
		list(value.Symbol("n"), list(value.Symbol("+"), value.Symbol("n"), value.Symbol("n"))))

	got := Eval(ctx, topEnv, form)
	require.Equal(t, value.KindNumber, got.Kind)
	assert.Equal(t, 10.0, got.Num)
}

func TestEvalMatchNoClauseMatchesReturnsError(t *testing.T) {
	ctx := newTestContext()
	topEnv := env.NewNamed()

	form := list(value.Symbol("match"), value.Number(5),
		list(value.Number(1), value.Number(0)))

	got := Eval(ctx, topEnv, form)
	require.True(t, got.IsError())
	assert.Equal(t, "no-match", got.ErrKind)
}

func TestEvalMatchGuardSkipsToNextClause(t *testing.T) {
	ctx := newTestContext()
	topEnv := env.NewNamed()

	// (match 4 (n | (< n 0) 'negative) (n 'non-negative))
	form := list(value.Symbol("match"), value.Number(4),
		list(value.Symbol("n"), value.Symbol("|"), list(value.Symbol("<"), value.Symbol("n"), value.Number(0)),
			list(value.Symbol("quote"), value.Symbol("negative"))),
		list(value.Symbol("n"), list(value.Symbol("quote"), value.Symbol("non-negative"))))

	got := Eval(ctx, topEnv, form)
	require.True(t, got.IsSymbol())
	assert.Equal(t, "non-negative", got.Str)
}

func TestEvalMatchWarnsOnUnreachableClauseAfterCatchAll(t *testing.T) {
	ctx := newTestContext()
	topEnv := env.NewNamed()

	// First clause is a catch-all variable pattern whose guard never
	// holds for the discriminant used here, so the loop falls through to
	// the second clause — which should now be flagged unreachable, since
	// a variable pattern always matches structurally regardless of guard
	// outcome on other inputs.
	form := list(value.Symbol("match"), value.Number(5),
		list(value.Symbol("n"), value.Symbol("|"), list(value.Symbol("<"), value.Symbol("n"), value.Number(0)),
			value.Number(0)),
		list(value.Number(5), value.Number(2)))

	got := Eval(ctx, topEnv, form)
	require.Equal(t, value.KindNumber, got.Kind)
	assert.Equal(t, 2.0, got.Num)

	select {
	case msg := <-ctx.Diagnostics:
		assert.Contains(t, msg, "unreachable")
	default:
		t.Fatal("expected a diagnostics warning about the unreachable clause")
	}
}

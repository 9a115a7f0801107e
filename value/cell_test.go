package value_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlisp/core/value"
)

func TestRetainReleaseSymmetry(t *testing.T) {
	c := value.Integer(42)
	require.EqualValues(t, 1, value.StrongCount(c))

	value.Retain(c)
	value.Retain(c)
	require.EqualValues(t, 3, value.StrongCount(c))

	value.Release(c)
	value.Release(c)
	require.EqualValues(t, 1, value.StrongCount(c))

	value.Release(c)
	require.EqualValues(t, 0, value.StrongCount(c))
}

func TestConsRetainsChildren(t *testing.T) {
	head := value.Integer(1)
	tail := value.Integer(2)
	pair := value.Cons(head, tail)

	assert.EqualValues(t, 2, value.StrongCount(head))
	assert.EqualValues(t, 2, value.StrongCount(tail))

	value.Release(pair)
	assert.EqualValues(t, 1, value.StrongCount(head))
	assert.EqualValues(t, 1, value.StrongCount(tail))
}

func TestWeakDerefObservesDeath(t *testing.T) {
	target := value.String("alive")
	w := value.Weak(target)

	assert.True(t, value.Equal(value.WeakDeref(w), target))

	value.Release(target)
	assert.True(t, value.WeakDeref(w).IsNil())
}

func TestEqualityReflexiveSymmetricTransitive(t *testing.T) {
	a := value.Cons(value.Integer(1), value.Symbol("x"))
	b := value.Cons(value.Integer(1), value.Symbol("x"))
	c := value.Cons(value.Integer(1), value.Symbol("x"))

	assert.True(t, value.Equal(a, a))
	assert.True(t, value.Equal(a, b) && value.Equal(b, a))
	assert.True(t, value.Equal(a, b) && value.Equal(b, c) && value.Equal(a, c))
}

func TestEqualityByVariant(t *testing.T) {
	assert.False(t, value.Equal(value.Integer(1), value.Number(1)))
	assert.True(t, value.Equal(value.Nil(), value.Nil()))
	assert.False(t, value.Equal(value.Keyword("x"), value.Symbol("x")))
}

func TestLinearFlagsConsumed(t *testing.T) {
	c := value.String("once")
	assert.False(t, c.IsConsumed())
	c.MarkConsumed()
	assert.True(t, c.IsConsumed())
}

func TestCapabilityFlags(t *testing.T) {
	c := value.ActorHandle(7)
	c.SetCapabilities(value.CapSend | value.CapRead)
	assert.True(t, c.HasCapability(value.CapSend))
	assert.False(t, c.HasCapability(value.CapWrite))
}

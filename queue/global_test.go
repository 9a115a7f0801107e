package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlisp/core/actor"
	"github.com/lumenlisp/core/value"
)

func spawnStub(reg *actor.Registry) *actor.Actor {
	return actor.Spawn(reg, func(self *actor.Actor) *value.Cell {
		self.Fiber().Yield(0)
		return value.Nil()
	}, 1)
}

func TestPushPopFIFO(t *testing.T) {
	reg := actor.NewRegistry()
	q := New(4)
	a1 := spawnStub(reg)
	a2 := spawnStub(reg)

	require.True(t, q.TryPush(a1))
	require.True(t, q.TryPush(a2))
	assert.EqualValues(t, 2, q.Len())

	got1, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, a1.ID, got1.ID)

	got2, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, a2.ID, got2.ID)

	_, ok = q.TryPop()
	assert.False(t, ok)
}

func TestPushFailsWhenFull(t *testing.T) {
	reg := actor.NewRegistry()
	q := New(2)
	require.True(t, q.TryPush(spawnStub(reg)))
	require.True(t, q.TryPush(spawnStub(reg)))
	assert.False(t, q.TryPush(spawnStub(reg)))
}

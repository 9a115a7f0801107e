package deque

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlisp/core/actor"
	"github.com/lumenlisp/core/value"
)

func stubActors(n int) []*actor.Actor {
	reg := actor.NewRegistry()
	out := make([]*actor.Actor, n)
	for i := range out {
		out[i] = actor.Spawn(reg, func(self *actor.Actor) *value.Cell { return value.Nil() }, 1)
	}
	return out
}

func TestPushPopLIFOWithinOneBlock(t *testing.T) {
	d := New(4, 8)
	as := stubActors(3)
	for _, a := range as {
		require.True(t, d.Push(a))
	}
	for i := len(as) - 1; i >= 0; i-- {
		got, ok := d.Pop()
		require.True(t, ok)
		assert.Equal(t, as[i].ID, got.ID)
	}
	_, ok := d.Pop()
	assert.False(t, ok)
}

func TestPushAcrossBlockBoundaryThenPopAll(t *testing.T) {
	d := New(4, 4)
	as := stubActors(10)
	for _, a := range as {
		require.True(t, d.Push(a))
	}
	seen := map[int64]bool{}
	for i := 0; i < len(as); i++ {
		got, ok := d.Pop()
		require.True(t, ok, "pop %d should still find an entry", i)
		seen[got.ID] = true
	}
	assert.Len(t, seen, len(as))
	_, ok := d.Pop()
	assert.False(t, ok)
}

func TestStealTakesFromGrantedBlock(t *testing.T) {
	d := New(4, 4)
	as := stubActors(6) // overflow one block into the next, granting the first
	for _, a := range as {
		require.True(t, d.Push(a))
	}

	stolen, ok := d.Steal()
	require.True(t, ok)

	found := false
	for _, a := range as {
		if a.ID == stolen.ID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestStealAndOwnerPopNeverReturnSameEntry(t *testing.T) {
	d := New(4, 64)
	as := stubActors(200)
	for _, a := range as {
		require.True(t, d.Push(a))
	}

	seen := sync.Map{}
	var wg sync.WaitGroup
	var ownerCount, thiefCount int64Counter

	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			a, ok := d.Pop()
			if !ok {
				break
			}
			_, dup := seen.LoadOrStore(a.ID, true)
			assert.False(t, dup, "owner popped a duplicate")
			ownerCount.add(1)
		}
	}()
	go func() {
		defer wg.Done()
		for {
			a, ok := d.Steal()
			if !ok {
				break
			}
			_, dup := seen.LoadOrStore(a.ID, true)
			assert.False(t, dup, "thief stole a duplicate")
			thiefCount.add(1)
		}
	}()
	wg.Wait()

	total := 0
	seen.Range(func(_, _ interface{}) bool { total++; return true })
	assert.Equal(t, len(as), total, "every pushed entry must be popped or stolen exactly once")
}

// int64Counter is a tiny mutex-guarded counter helper for the stress test
// above, tallying how many entries each side took; the test does not
// assert on the tallies.
type int64Counter struct {
	mu sync.Mutex
	n  int
}

func (c *int64Counter) add(d int) {
	c.mu.Lock()
	c.n += d
	c.mu.Unlock()
}

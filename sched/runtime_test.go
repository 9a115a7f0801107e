package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlisp/core/actor"
	"github.com/lumenlisp/core/channel"
	"github.com/lumenlisp/core/fiber"
	"github.com/lumenlisp/core/supervisor"
	"github.com/lumenlisp/core/value"
)

func testOptions() Options {
	return Options{NumWorkers: 4, Deterministic: true, Seed: 1}
}

func TestSpawnSendReceiveFIFOAcrossRealScheduler(t *testing.T) {
	actors := actor.NewRegistry()
	channels := channel.NewRegistry()
	rt := New(actors, channels, testOptions())
	defer rt.Shutdown()

	received := make(chan *value.Cell, 2)
	a := rt.Spawn(func(self *actor.Actor) *value.Cell {
		for i := 0; i < 2; i++ {
			v := self.Fiber().Yield(fiber.ReasonMailbox)
			received <- v
		}
		return value.Nil()
	}, 4)

	require.True(t, a.Send(value.Integer(1)))
	require.True(t, a.Send(value.Integer(2)))

	first := waitForValue(t, received)
	second := waitForValue(t, received)
	assert.Equal(t, int64(1), first.Int)
	assert.Equal(t, int64(2), second.Int)
}

func TestSpawnFinishesAndRecordsResult(t *testing.T) {
	actors := actor.NewRegistry()
	channels := channel.NewRegistry()
	rt := New(actors, channels, testOptions())
	defer rt.Shutdown()

	a := rt.Spawn(func(self *actor.Actor) *value.Cell {
		return value.Integer(7)
	}, 1)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && a.IsAlive() {
		time.Sleep(time.Millisecond)
	}
	require.False(t, a.IsAlive())
	assert.Equal(t, int64(7), a.Result().Int)
}

func TestChannelProducerConsumerEndToEnd(t *testing.T) {
	actors := actor.NewRegistry()
	channels := channel.NewRegistry()
	rt := New(actors, channels, testOptions())
	defer rt.Shutdown()

	ch := channels.Create(4)
	const n = 20
	got := make(chan int64, n)

	rt.Spawn(func(self *actor.Actor) *value.Cell {
		for i := int64(0); i < n; i++ {
			self.Fiber().PendingValue = value.Integer(i)
			self.Fiber().ChanIDs = []int64{ch.ID}
			self.Fiber().Yield(fiber.ReasonChanSend)
		}
		return value.Nil()
	}, 1)

	rt.Spawn(func(self *actor.Actor) *value.Cell {
		for i := 0; i < n; i++ {
			self.Fiber().ChanIDs = []int64{ch.ID}
			v := self.Fiber().Yield(fiber.ReasonChanRecv)
			got <- v.Int
		}
		return value.Nil()
	}, 1)

	deadline := time.Now().Add(2 * time.Second)
	seen := make([]int64, 0, n)
	for len(seen) < n {
		select {
		case v := <-got:
			seen = append(seen, v)
		case <-time.After(time.Until(deadline)):
			t.Fatalf("only received %d/%d values before timeout", len(seen), n)
		}
	}
	for i, v := range seen {
		assert.Equal(t, int64(i), v, "channel must preserve FIFO order end to end")
	}
}

func TestSupervisorRestartsChildUnderRealScheduler(t *testing.T) {
	actors := actor.NewRegistry()
	channels := channel.NewRegistry()
	rt := New(actors, channels, testOptions())
	defer rt.Shutdown()

	startCount := make(chan struct{}, 8)
	behavior := func(self *actor.Actor) *value.Cell {
		startCount <- struct{}{}
		self.Fiber().Yield(fiber.ReasonMailbox)
		return value.Error("crashed", value.Nil())
	}

	spec := supervisor.ChildSpec{
		Name:       "worker",
		Behavior:   behavior,
		Restart:    supervisor.Permanent,
		MailboxCap: 4,
	}
	sup := supervisor.New(rt.SpawnFunc(), supervisor.OneForOne, 3, time.Second, []supervisor.ChildSpec{spec})

	waitForCount(t, startCount, 1)

	children := sup.Children()
	require.Len(t, children, 1)
	require.True(t, children[0].Send(value.Nil()))

	waitForCount(t, startCount, 2)
}

func waitForValue(t *testing.T, ch chan *value.Cell) *value.Cell {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
		return nil
	}
}

func waitForCount(t *testing.T, ch chan struct{}, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	seen := 0
	for seen < n {
		select {
		case <-ch:
			seen++
		case <-deadline:
			t.Fatalf("only observed %d/%d starts before timeout", seen, n)
		}
	}
}

package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlisp/core/fiber"
	"github.com/lumenlisp/core/value"
)

func TestSendThenReceiveFIFO(t *testing.T) {
	reg := NewRegistry()
	received := make(chan *value.Cell, 2)

	a := Spawn(reg, func(self *Actor) *value.Cell {
		for i := 0; i < 2; i++ {
			v := self.fiber.Yield(fiber.ReasonMailbox)
			received <- v
		}
		return value.Nil()
	}, 4)

	go a.Run(context.Background())
	require.True(t, a.Send(value.Integer(1)))
	require.True(t, a.Send(value.Integer(2)))

	first := <-received
	second := <-received
	assert.Equal(t, int64(1), first.Int)
	assert.Equal(t, int64(2), second.Int)
}

func TestSpawnAssignsDistinctTraceOriginAndTraceSeqIncrements(t *testing.T) {
	reg := NewRegistry()
	a := Spawn(reg, func(self *Actor) *value.Cell { return value.Nil() }, 1)
	b := Spawn(reg, func(self *Actor) *value.Cell { return value.Nil() }, 1)

	assert.NotEmpty(t, a.TraceOrigin)
	assert.NotEqual(t, a.TraceOrigin, b.TraceOrigin)

	assert.Equal(t, uint64(1), a.NextTraceSeq())
	assert.Equal(t, uint64(2), a.NextTraceSeq())
	assert.Equal(t, uint64(1), b.NextTraceSeq())
}

func TestSpawnAndFinishWithResult(t *testing.T) {
	reg := NewRegistry()
	done := make(chan struct{})

	a := Spawn(reg, func(self *Actor) *value.Cell {
		return value.Integer(42)
	}, 1)

	go func() {
		a.Run(context.Background())
		close(done)
	}()
	<-done

	assert.False(t, a.IsAlive())
	assert.Equal(t, int64(42), a.result.Int)
	assert.Equal(t, int64(0), reg.AliveCount())
}

func TestLinkSymmetryPropagatesAbnormalExit(t *testing.T) {
	reg := NewRegistry()

	a := Spawn(reg, func(self *Actor) *value.Cell {
		return value.Error("boom", value.Nil())
	}, 1)
	b := Spawn(reg, func(self *Actor) *value.Cell {
		self.fiber.Yield(fiber.ReasonMailbox)
		return value.Nil()
	}, 1)
	Link(a, b)

	a.Run(context.Background())

	assert.False(t, b.IsAlive(), "b must die when linked peer a exits abnormally without trapping")
	assert.Equal(t, "boom", b.exitReason.ErrKind)
}

func TestMonitorDeliversDownMessageOnNormalExit(t *testing.T) {
	reg := NewRegistry()

	target := Spawn(reg, func(self *Actor) *value.Cell {
		return value.Nil()
	}, 1)
	watcher := Spawn(reg, func(self *Actor) *value.Cell {
		return value.Nil()
	}, 4)
	Monitor(watcher, target)

	target.Run(context.Background())

	msg, ok := watcher.Receive()
	require.True(t, ok)
	require.True(t, msg.IsPair())
	assert.Equal(t, "monitor-down", msg.Head.Str)
}

func TestTrappingLinkedPeerGetsExitFromInsteadOfDying(t *testing.T) {
	reg := NewRegistry()

	a := Spawn(reg, func(self *Actor) *value.Cell {
		return value.Error("boom", value.Nil())
	}, 1)
	b := Spawn(reg, func(self *Actor) *value.Cell {
		self.fiber.Yield(fiber.ReasonMailbox)
		return value.Nil()
	}, 4)
	b.SetTrapExit(true)
	Link(a, b)

	a.Run(context.Background())

	assert.True(t, b.IsAlive())
	msg, ok := b.Receive()
	require.True(t, ok)
	assert.Equal(t, "exit-from", msg.Head.Str)
}

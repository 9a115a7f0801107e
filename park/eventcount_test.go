package park

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoLostWakeupBetweenPrepareAndNotify(t *testing.T) {
	ec := New()

	epoch, gen := ec.PrepareWait()
	// Simulate a notify landing after prepare but before commit: the
	// epoch bump must be visible to CommitWait so it returns instantly.
	ec.NotifyAll()

	start := time.Now()
	ec.CommitWait(epoch, gen)
	assert.Less(t, time.Since(start), parkTimeout, "commit must not have parked: epoch already advanced")
	assert.EqualValues(t, 0, ec.Waiters())
}

func TestCommitWaitWakesOnNotify(t *testing.T) {
	ec := New()
	epoch, gen := ec.PrepareWait()

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		ec.CommitWait(epoch, gen)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	ec.NotifyAll()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CommitWait did not wake on NotifyAll")
	}
	wg.Wait()
}

func TestCancelWaitDecrementsWithoutBlocking(t *testing.T) {
	ec := New()
	_, _ = ec.PrepareWait()
	require.EqualValues(t, 1, ec.Waiters())
	ec.CancelWait()
	assert.EqualValues(t, 0, ec.Waiters())
}

func TestCommitWaitTimesOutWithNoNotify(t *testing.T) {
	ec := New()
	epoch, gen := ec.PrepareWait()
	start := time.Now()
	ec.CommitWait(epoch, gen)
	assert.GreaterOrEqual(t, time.Since(start), parkTimeout) // ran through the bounded park
	assert.EqualValues(t, 0, ec.Waiters())
}

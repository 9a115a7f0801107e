// Package signal bridges OS signals into the actor runtime using the
// classic self-pipe technique: os/signal.Notify feeds a channel that a
// dedicated goroutine drains into an os.Pipe() write end, and the
// scheduler's RunAll loop drains the read end once per tick, delivering a
// (signal <name>) message to whichever actor registered for that signal
// (spec.md §4.12: "sends (signal <name>) to whichever actor registered
// the signal"). The signal's own name travels through the pipe as the
// payload (newline-delimited) rather than a bare wake byte, so Drain can
// fan a fired signal out to only its own subscribers instead of every
// registered name. Grounded on spec.md §4.12's self-pipe requirement.
package signal

import (
	"bytes"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/lumenlisp/core/actor"
	"github.com/lumenlisp/core/value"
)

// Bridge owns the self-pipe and the signal-name -> subscriber table.
type Bridge struct {
	mu          sync.Mutex
	subscribers map[string][]*actor.Actor

	readFD, writeFD *os.File
	sigCh           chan os.Signal
	stopCh          chan struct{}
	wg              sync.WaitGroup

	// partial holds a trailing, not-yet-newline-terminated fragment left
	// over from a previous Drain's read, so a signal name split across
	// two non-blocking reads is reassembled instead of dropped or
	// misparsed.
	partial []byte
}

// New creates a bridge. Call Notify to start relaying the named signals
// and Close to release the OS resources.
func New() (*Bridge, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	b := &Bridge{
		subscribers: make(map[string][]*actor.Actor),
		readFD:      r,
		writeFD:     w,
		sigCh:       make(chan os.Signal, 16),
		stopCh:      make(chan struct{}),
	}
	b.wg.Add(1)
	go b.relay()
	return b, nil
}

// relay copies every received OS signal's name into the pipe's write
// end, newline-terminated, so Drain can recover which signal fired
// rather than merely that something did.
func (b *Bridge) relay() {
	defer b.wg.Done()
	for {
		select {
		case sig := <-b.sigCh:
			b.writeFD.Write([]byte(sig.String() + "\n"))
		case <-b.stopCh:
			return
		}
	}
}

// Subscribe registers target to receive a (signal name) message whenever
// the named OS signal arrives. name is matched case-sensitively against
// the signal's String() form (e.g. "interrupt", "terminated").
func (b *Bridge) Subscribe(name string, sig os.Signal, target *actor.Actor) {
	signal.Notify(b.sigCh, sig)
	b.mu.Lock()
	b.subscribers[name] = append(b.subscribers[name], target)
	b.mu.Unlock()
}

// Drain is non-blocking: it reads whatever bytes are currently sitting
// in the self-pipe (if any), splits them into the newline-delimited
// signal names relay wrote, and for each completed name dispatches a
// (signal <name>) message to only that name's registered subscribers —
// not every registered signal name (spec.md §4.12: "whichever actor
// registered the signal"). Any trailing fragment with no newline yet is
// held in b.partial for the next call. sched.Runtime.RunAll calls this
// once per outer tick; the worker loops do not call it.
func (b *Bridge) Drain() {
	buf := make([]byte, 256)
	b.readFD.SetReadDeadline(time.Now())
	n, err := b.readFD.Read(buf)
	if err != nil || n == 0 {
		return
	}

	b.partial = append(b.partial, buf[:n]...)

	var names []string
	for {
		i := bytes.IndexByte(b.partial, '\n')
		if i < 0 {
			break
		}
		names = append(names, string(b.partial[:i]))
		b.partial = b.partial[i+1:]
	}
	if len(names) == 0 {
		return
	}

	b.mu.Lock()
	snapshot := make(map[string][]*actor.Actor, len(names))
	for _, name := range names {
		if _, ok := snapshot[name]; ok {
			continue
		}
		snapshot[name] = append([]*actor.Actor(nil), b.subscribers[name]...)
	}
	b.mu.Unlock()

	for _, name := range names {
		actors := snapshot[name]
		if len(actors) == 0 {
			continue
		}
		msg := value.Cons(value.Keyword("signal"), value.Cons(value.Keyword(name), value.Nil()))
		for _, a := range actors {
			if a.IsAlive() {
				a.Send(msg)
			}
		}
	}
}

// Close stops the relay goroutine and releases the pipe.
func (b *Bridge) Close() {
	close(b.stopCh)
	signal.Stop(b.sigCh)
	b.wg.Wait()
	b.readFD.Close()
	b.writeFD.Close()
}

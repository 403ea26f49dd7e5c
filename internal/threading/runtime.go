// Package threading provides a signal-capable thread abstraction: workers
// spawned through a Runtime are pinned to OS threads, carry opaque comparable
// handles, and can be sent small process-wide signals that are dispatched on
// the target thread at its yield points.
//
// Signal semantics follow POSIX: pending signals form a set (delivering a
// signal that is already pending has no additional effect), a per-thread mask
// blocks delivery, and handlers run on whichever thread the signal was
// delivered to.
package threading

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/phuslu/log"
	"github.com/puzpuzpuz/xsync/v4"

	"threadpark/internal/logger"
)

var (
	// ErrThreadExited reports signal delivery to a thread that no longer
	// exists. This is the runtime's invalid-target failure.
	ErrThreadExited = errors.New("thread has exited")

	// ErrInvalidSignal reports a signal number outside the valid range.
	ErrInvalidSignal = errors.New("invalid signal number")
)

// Handler is a signal handler. It runs on the thread the signal was
// delivered to, at one of that thread's dispatch points.
type Handler func(t *Thread, sig Signal)

// Runtime owns the spawned threads, the live-thread table, and the
// process-wide signal handler table.
type Runtime struct {
	threads *xsync.Map[uint64, *Thread]
	nextID  atomic.Uint64
	spawned atomic.Uint64

	handlerMu sync.RWMutex
	handlers  [maxSignal + 1]Handler

	log log.Logger
}

// NewRuntime creates an empty runtime with no handlers installed.
func NewRuntime() *Runtime {
	return &Runtime{
		threads: xsync.NewMap[uint64, *Thread](),
		log:     logger.NewLoggerWithContext("threading"),
	}
}

// HandleSignal installs h as the process-wide handler for sig. Handlers are
// per-process, not per-thread: installing again replaces the previous
// handler for every thread.
func (rt *Runtime) HandleSignal(sig Signal, h Handler) error {
	if !sig.valid() {
		return fmt.Errorf("threading: %w: %d", ErrInvalidSignal, sig)
	}
	rt.handlerMu.Lock()
	rt.handlers[sig] = h
	rt.handlerMu.Unlock()
	return nil
}

func (rt *Runtime) handler(sig Signal) Handler {
	rt.handlerMu.RLock()
	h := rt.handlers[sig]
	rt.handlerMu.RUnlock()
	return h
}

// Spawn starts fn on a new thread. The worker goroutine is locked to an OS
// thread for its whole lifetime, so the handle maps to a real schedulable
// thread. The returned handle is comparable and opaque: callers use it only
// to target signals and as a bookkeeping key.
func (rt *Runtime) Spawn(name string, fn func(*Thread)) *Thread {
	t := &Thread{
		id:   rt.nextID.Add(1),
		name: name,
		rt:   rt,
		done: make(chan struct{}),
	}
	t.cond = sync.NewCond(&t.mu)
	rt.threads.Store(t.id, t)
	rt.spawned.Add(1)
	go t.run(fn)
	return t
}

// Kill marks sig pending on t and wakes the target if it is blocked in
// WaitSignal. The signal runs at the target's next dispatch point; Kill never
// waits for that. Delivering to an exited thread fails with ErrThreadExited.
func (rt *Runtime) Kill(t *Thread, sig Signal) error {
	if !sig.valid() {
		return fmt.Errorf("threading: %w: %d", ErrInvalidSignal, sig)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.exited {
		return fmt.Errorf("threading: %s: %w", t, ErrThreadExited)
	}
	t.pending = t.pending.With(sig)
	t.cond.Broadcast()
	return nil
}

// Live returns the number of threads that have been spawned and not yet
// exited.
func (rt *Runtime) Live() int {
	return rt.threads.Size()
}

// Spawned returns the total number of threads ever spawned.
func (rt *Runtime) Spawned() uint64 {
	return rt.spawned.Load()
}

// RangeThreads iterates over the live threads, for diagnostics.
func (rt *Runtime) RangeThreads(f func(t *Thread) bool) {
	rt.threads.Range(func(_ uint64, t *Thread) bool {
		return f(t)
	})
}

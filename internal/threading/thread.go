package threading

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// Thread is an opaque, comparable handle to a worker pinned to an OS thread.
// The zero value (nil pointer) is never a valid handle.
//
// Yield and WaitSignal must only be called from the thread's own goroutine;
// every other method is safe to call from anywhere.
type Thread struct {
	id    uint64
	name  string
	osTID atomic.Int64
	rt    *Runtime

	mu      sync.Mutex
	cond    *sync.Cond // signaled on every pending-set change and on exit
	pending Sigset
	mask    Sigset
	exited  bool

	done chan struct{}
}

func (t *Thread) run(fn func(*Thread)) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	t.osTID.Store(currentOSThreadID())
	t.rt.log.Trace().Uint64("thread", t.id).Str("name", t.name).
		Int64("os_tid", t.osTID.Load()).Msg("thread started")

	defer func() {
		t.mu.Lock()
		t.exited = true
		t.cond.Broadcast()
		t.mu.Unlock()
		t.rt.threads.Delete(t.id)
		close(t.done)
		t.rt.log.Trace().Uint64("thread", t.id).Str("name", t.name).Msg("thread exited")
	}()

	fn(t)
}

// ID returns the runtime-assigned thread identifier.
func (t *Thread) ID() uint64 { return t.id }

// Name returns the name given at Spawn.
func (t *Thread) Name() string { return t.name }

// OSThreadID returns the OS identifier of the thread the worker is locked
// to, or 0 if the platform does not expose one (or the worker has not
// started yet). Diagnostics only.
func (t *Thread) OSThreadID() int64 { return t.osTID.Load() }

// Join blocks until the thread's function has returned.
func (t *Thread) Join() { <-t.done }

// Done returns a channel closed when the thread exits.
func (t *Thread) Done() <-chan struct{} { return t.done }

func (t *Thread) String() string {
	if t.name != "" {
		return fmt.Sprintf("thread-%d(%s)", t.id, t.name)
	}
	return fmt.Sprintf("thread-%d", t.id)
}

// Yield dispatches any pending unblocked signals on the calling thread, then
// yields the processor. This is the runtime's sched_yield: workers that call
// it periodically are signalable without being aware of any particular
// signal.
func (t *Thread) Yield() {
	t.dispatchPending()
	runtime.Gosched()
}

func (t *Thread) dispatchPending() {
	for {
		t.mu.Lock()
		sig, ok := t.pending.next(t.mask)
		if !ok {
			t.mu.Unlock()
			return
		}
		t.pending = t.pending.Without(sig)
		t.mu.Unlock()
		if h := t.rt.handler(sig); h != nil {
			h(t, sig)
		}
	}
}

// WaitSignal atomically replaces the calling thread's signal mask with mask
// and blocks until a signal not blocked by mask is pending. That signal's
// handler runs on the calling thread before the previous mask is restored
// and WaitSignal returns. This is the runtime's sigsuspend: a true blocking
// wait, not a poll, and nothing blocked by mask can end it.
func (t *Thread) WaitSignal(mask Sigset) {
	t.mu.Lock()
	prev := t.mask
	t.mask = mask
	for {
		sig, ok := t.pending.next(t.mask)
		if !ok {
			t.cond.Wait()
			continue
		}
		t.pending = t.pending.Without(sig)
		t.mu.Unlock()
		if h := t.rt.handler(sig); h != nil {
			h(t, sig)
		}
		t.mu.Lock()
		break
	}
	t.mask = prev
	t.mu.Unlock()
}

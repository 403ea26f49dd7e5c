// Package suspend implements out-of-band suspend and resume control over
// worker threads. A Controller can park any thread reachable through its
// Signaler backend without that thread's code polling a flag or otherwise
// cooperating; the target blocks inside a signal handler until it is
// resumed.
//
// Hazard: a suspended thread keeps whatever resources it holds. Suspending a
// thread that holds a lock needed by another thread can deadlock the whole
// process, and a thread that suspends itself blocks its own readiness
// handshake forever. Both are inherent to the technique and the caller's
// responsibility to avoid.
package suspend

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/phuslu/log"

	"threadpark/internal/logger"
)

// ErrInvalidThread reports a zero-valued thread handle. The zero value is
// the registry's empty-slot sentinel and can never name a real thread.
var ErrInvalidThread = errors.New("suspend: invalid thread handle")

// Options configures a Controller.
type Options struct {
	// InitialCapacity is the registry's initial slot count. Zero or negative
	// selects the default of 10. The registry doubles whenever it fills up
	// and never shrinks.
	InitialCapacity int
}

// Stats is a snapshot of controller behavior, for observability only.
type Stats struct {
	Suspends     uint64 // suspends that parked a thread
	SuspendNoops uint64 // idempotent suspends of already-parked threads
	Resumes      uint64 // resumes that unparked a thread
	ResumeNoops  uint64 // resumes of threads that were not suspended
	Errors       uint64 // failed suspend/resume operations
	Suspended    int    // threads currently suspended
	RegistryCap  int    // current registry slot count
}

// Controller is the shared state of the suspend/resume subsystem: the
// process-wide suspend lock, the suspended-thread registry, the readiness
// handshake, and the one-time initialization guard. Construct one per thread
// runtime and share it between whichever threads need to call Suspend or
// Resume.
type Controller[T comparable] struct {
	sig  Signaler[T]
	opts Options
	log  log.Logger

	// initMu guards the one-time handler installation. Deliberately not a
	// sync.Once: a failed installation must be retried by the next Suspend
	// call, and nothing is marked complete until installation succeeds.
	initMu sync.Mutex
	inited bool

	// mu is the process-wide suspend lock. Every suspend and resume holds it
	// for the whole operation, so two calls never interleave their registry
	// scans, and the single readiness channel has at most one outstanding
	// suspend to confirm.
	mu  sync.Mutex
	reg *registry[T]

	// readyMu guards the readiness channel for the in-flight suspend.
	readyMu sync.Mutex
	ready   chan struct{}

	suspends     atomic.Uint64
	suspendNoops atomic.Uint64
	resumes      atomic.Uint64
	resumeNoops  atomic.Uint64
	errs         atomic.Uint64
}

// NewController creates a controller over the given backend. opts may be
// nil.
func NewController[T comparable](sig Signaler[T], opts *Options) *Controller[T] {
	c := &Controller[T]{
		sig: sig,
		log: logger.NewLoggerWithContext("suspend"),
	}
	if opts != nil {
		c.opts = *opts
	}
	return c
}

// ensureInit installs the handshake handlers and allocates the registry the
// first time any suspend is requested. Concurrent first callers see exactly
// one initialization and none proceeds past it until it completes.
func (c *Controller[T]) ensureInit() error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.inited {
		return nil
	}
	if err := c.sig.Install(c.notifyReady); err != nil {
		return fmt.Errorf("suspend: install handshake handlers: %w", err)
	}
	c.reg = newRegistry[T](c.opts.InitialCapacity)
	c.inited = true
	c.log.Debug().Int("registry_slots", c.reg.capacity()).Msg("suspend subsystem initialized")
	return nil
}

func (c *Controller[T]) initialized() bool {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	return c.inited
}

// armReady creates the readiness channel for the suspend in flight. Safe to
// reuse one field across all suspends because the suspend lock admits only
// one at a time.
func (c *Controller[T]) armReady() <-chan struct{} {
	ch := make(chan struct{})
	c.readyMu.Lock()
	c.ready = ch
	c.readyMu.Unlock()
	return ch
}

func (c *Controller[T]) disarmReady() {
	c.readyMu.Lock()
	c.ready = nil
	c.readyMu.Unlock()
}

// notifyReady runs on the target thread, immediately before it begins its
// blocked wait.
func (c *Controller[T]) notifyReady() {
	c.readyMu.Lock()
	ch := c.ready
	c.ready = nil
	c.readyMu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Suspend requests that t stop executing and block until Resume(t) is
// called. It returns only after the target has verifiably entered its
// blocked wait. Suspend is idempotent: a second call for an already-
// suspended thread returns success without resending the signal, since a
// resent signal would make the target re-park itself the instant it is
// resumed, eating one resume.
//
// There is no timeout: if the target cannot receive signals, delivery fails
// and the registry is left unmodified, but a target that never reaches a
// dispatch point blocks Suspend indefinitely.
func (c *Controller[T]) Suspend(t T) error {
	var zero T
	if t == zero {
		c.errs.Add(1)
		return ErrInvalidThread
	}
	if err := c.ensureInit(); err != nil {
		c.errs.Add(1)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reg.contains(t) {
		c.suspendNoops.Add(1)
		c.log.Debug().Str("thread", fmt.Sprint(t)).Msg("suspend ignored, already suspended")
		return nil
	}

	slot := c.reg.freeSlot()

	ready := c.armReady()
	if err := c.sig.Suspend(t); err != nil {
		c.disarmReady()
		c.errs.Add(1)
		return fmt.Errorf("suspend: deliver suspend signal: %w", err)
	}

	// Do not return before the target is confirmed blocked; otherwise a
	// caller could act on a thread that is still running.
	<-ready

	c.reg.set(slot, t)
	c.suspends.Add(1)
	c.log.Debug().Str("thread", fmt.Sprint(t)).Msg("thread suspended")
	return nil
}

// Resume unblocks t if it is currently suspended and removes it from the
// registry. Resuming a thread that was never suspended, or was already
// resumed, is a successful no-op; so is resuming a zero-valued handle, which
// can never be registered. On delivery failure the registry entry is kept so
// the caller can retry.
func (c *Controller[T]) Resume(t T) error {
	// The zero value is the registry's empty-slot sentinel: looking it up
	// would match any free slot.
	var zero T
	if t == zero {
		c.resumeNoops.Add(1)
		return nil
	}

	// If initialization never ran, no thread could possibly be suspended.
	if !c.initialized() {
		c.resumeNoops.Add(1)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.reg.contains(t) {
		c.resumeNoops.Add(1)
		return nil
	}

	if err := c.sig.Resume(t); err != nil {
		c.errs.Add(1)
		return fmt.Errorf("suspend: deliver resume signal: %w", err)
	}

	c.reg.remove(t)
	c.resumes.Add(1)
	c.log.Debug().Str("thread", fmt.Sprint(t)).Msg("thread resumed")
	return nil
}

// Suspended reports whether t is currently recorded as suspended. A
// zero-valued handle is never suspended.
func (c *Controller[T]) Suspended(t T) bool {
	var zero T
	if t == zero {
		return false
	}
	if !c.initialized() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.contains(t)
}

// Stats returns a snapshot of controller counters and registry occupancy.
func (c *Controller[T]) Stats() Stats {
	s := Stats{
		Suspends:     c.suspends.Load(),
		SuspendNoops: c.suspendNoops.Load(),
		Resumes:      c.resumes.Load(),
		ResumeNoops:  c.resumeNoops.Load(),
		Errors:       c.errs.Load(),
	}
	if c.initialized() {
		c.mu.Lock()
		s.Suspended = c.reg.count()
		s.RegistryCap = c.reg.capacity()
		c.mu.Unlock()
	}
	return s
}

package suspend

import (
	"threadpark/internal/threading"
)

// Signaler is the platform primitive behind the suspend/resume handshake:
// install the pair of handshake handlers, deliver the suspend signal,
// deliver the resume signal. The controller's registry, idempotence, and
// readiness logic are identical for every backend.
type Signaler[T comparable] interface {
	// Install registers both handshake handlers process-wide. ready must be
	// invoked on the target thread immediately before it enters its blocked
	// wait. Install runs at most once per successful initialization; if it
	// fails, the next Suspend call retries it.
	Install(ready func()) error

	// Suspend delivers the suspend signal to t. An error means the target
	// could not be signaled (typically because it no longer exists) and the
	// target's state is unchanged.
	Suspend(t T) error

	// Resume delivers the resume signal to t, breaking it out of its wait.
	Resume(t T) error
}

// threadSignaler backs the handshake with the threading runtime's reserved
// SigSuspend/SigResume pair.
type threadSignaler struct {
	rt    *threading.Runtime
	ready func()
}

// NewThreadSignaler returns a Signaler that suspends and resumes threads
// spawned by rt.
func NewThreadSignaler(rt *threading.Runtime) Signaler[*threading.Thread] {
	return &threadSignaler{rt: rt}
}

func (s *threadSignaler) Install(ready func()) error {
	s.ready = ready
	if err := s.rt.HandleSignal(threading.SigSuspend, s.handleSuspend); err != nil {
		return err
	}
	// The resume handler does nothing. It exists only to be deliverable, so
	// the target's blocked wait has a signal to return on.
	return s.rt.HandleSignal(threading.SigResume, func(*threading.Thread, threading.Signal) {})
}

// handleSuspend runs on the target thread. It masks every signal except
// resume, reports readiness, and parks until the resume signal arrives. By
// the time WaitSignal returns the resume handler has run to completion, and
// the target continues exactly where it was interrupted.
func (s *threadSignaler) handleSuspend(t *threading.Thread, _ threading.Signal) {
	mask := threading.AllSignals().Without(threading.SigResume)
	s.ready()
	t.WaitSignal(mask)
}

func (s *threadSignaler) Suspend(t *threading.Thread) error {
	return s.rt.Kill(t, threading.SigSuspend)
}

func (s *threadSignaler) Resume(t *threading.Thread) error {
	return s.rt.Kill(t, threading.SigResume)
}

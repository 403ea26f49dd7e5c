package threading

import "strconv"

// Signal identifies one of the runtime's small process-wide signal numbers.
// Valid signals are 1 through maxSignal; 0 is never a valid signal.
type Signal uint8

const (
	// SigSuspend and SigResume are reserved for the suspend/resume handshake
	// and must not be repurposed by collaborating code.
	SigSuspend Signal = 1
	SigResume  Signal = 2

	maxSignal Signal = 16
)

func (s Signal) valid() bool {
	return s >= 1 && s <= maxSignal
}

func (s Signal) String() string {
	switch s {
	case SigSuspend:
		return "SigSuspend"
	case SigResume:
		return "SigResume"
	default:
		return "Signal(" + strconv.Itoa(int(s)) + ")"
	}
}

// Sigset is a set of signals. It serves both as a thread's pending set and
// as its blocking mask.
type Sigset uint32

// AllSignals returns the set containing every valid signal. Used as a mask
// it blocks everything.
func AllSignals() Sigset {
	var m Sigset
	for s := Signal(1); s <= maxSignal; s++ {
		m = m.With(s)
	}
	return m
}

func (m Sigset) With(s Signal) Sigset    { return m | 1<<s }
func (m Sigset) Without(s Signal) Sigset { return m &^ (1 << s) }
func (m Sigset) Has(s Signal) bool       { return m&(1<<s) != 0 }

// next returns the lowest-numbered signal that is in m and not blocked by
// mask. Delivery order by signal number is stable but otherwise unspecified.
func (m Sigset) next(mask Sigset) (Signal, bool) {
	for s := Signal(1); s <= maxSignal; s++ {
		if m.Has(s) && !mask.Has(s) {
			return s, true
		}
	}
	return 0, false
}

package suspend

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"threadpark/internal/threading"
)

// startCounter spawns a worker that increments its private counter forever,
// yielding each iteration. The worker knows nothing about suspension.
func startCounter(rt *threading.Runtime, name string) (*threading.Thread, *atomic.Int64, func()) {
	n := new(atomic.Int64)
	stopCh := make(chan struct{})
	th := rt.Spawn(name, func(t *threading.Thread) {
		for {
			select {
			case <-stopCh:
				return
			default:
			}
			n.Add(1)
			t.Yield()
		}
	})
	var once sync.Once
	return th, n, func() { once.Do(func() { close(stopCh) }) }
}

func waitPast(t *testing.T, n *atomic.Int64, v int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if n.Load() > v {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("counter stuck at %d, expected progress past %d", n.Load(), v)
}

func assertFrozen(t *testing.T, n *atomic.Int64) {
	t.Helper()
	before := n.Load()
	time.Sleep(75 * time.Millisecond)
	if after := n.Load(); after != before {
		t.Fatalf("suspended thread advanced from %d to %d", before, after)
	}
}

func joinAll(t *testing.T, threads []*threading.Thread) {
	t.Helper()
	for _, th := range threads {
		select {
		case <-th.Done():
		case <-time.After(10 * time.Second):
			t.Fatalf("%s did not finish", th)
		}
	}
}

func TestSuspendStopsProgressAndResumeRestoresIt(t *testing.T) {
	rt := threading.NewRuntime()
	c := NewController(NewThreadSignaler(rt), nil)

	th, n, stop := startCounter(rt, "counter")
	defer func() { stop(); th.Join() }()

	waitPast(t, n, 0)

	if err := c.Suspend(th); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if !c.Suspended(th) {
		t.Fatal("Suspended should report true")
	}
	assertFrozen(t, n)

	mark := n.Load()
	if err := c.Resume(th); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if c.Suspended(th) {
		t.Fatal("Suspended should report false after resume")
	}
	waitPast(t, n, mark)
}

func TestSuspendIsIdempotent(t *testing.T) {
	rt := threading.NewRuntime()
	c := NewController(NewThreadSignaler(rt), nil)

	th, n, stop := startCounter(rt, "counter")
	defer func() { stop(); th.Join() }()
	waitPast(t, n, 0)

	if err := c.Suspend(th); err != nil {
		t.Fatalf("first Suspend: %v", err)
	}
	if err := c.Suspend(th); err != nil {
		t.Fatalf("second Suspend: %v", err)
	}
	assertFrozen(t, n)

	// A single resume must release the thread for good: if the second
	// suspend had resent the signal, the worker would re-park itself here.
	mark := n.Load()
	if err := c.Resume(th); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	waitPast(t, n, mark)

	// Still running 50ms later, not re-parked by a stale second signal.
	time.Sleep(50 * time.Millisecond)
	waitPast(t, n, n.Load())
}

func TestResumeOfUnknownThreadIsNoop(t *testing.T) {
	rt := threading.NewRuntime()
	c := NewController(NewThreadSignaler(rt), nil)

	th, n, stop := startCounter(rt, "counter")
	defer func() { stop(); th.Join() }()
	waitPast(t, n, 0)

	if err := c.Resume(th); err != nil {
		t.Fatalf("Resume of never-suspended thread: %v", err)
	}

	mark := n.Load()
	waitPast(t, n, mark)
}

func TestNilHandleIsNeverTracked(t *testing.T) {
	rt := threading.NewRuntime()
	c := NewController(NewThreadSignaler(rt), nil)

	th, n, stop := startCounter(rt, "counter")
	defer func() { stop(); th.Join() }()
	waitPast(t, n, 0)

	if err := c.Suspend(th); err != nil {
		t.Fatalf("Suspend: %v", err)
	}

	// A nil handle must not match a free registry slot: resuming it is a
	// no-op, not a signal delivery to a thread that does not exist.
	if c.Suspended(nil) {
		t.Fatal("nil handle reported as suspended")
	}
	if err := c.Resume(nil); err != nil {
		t.Fatalf("Resume of nil handle: %v", err)
	}
	if s := c.Stats(); s.Resumes != 0 || s.Suspended != 1 {
		t.Fatalf("nil resume had side effects: %+v", s)
	}
	if !c.Suspended(th) {
		t.Fatal("nil resume cleared the registered thread")
	}

	if err := c.Resume(th); err != nil {
		t.Fatalf("Resume: %v", err)
	}
}

func TestSuspendExitedThreadFails(t *testing.T) {
	rt := threading.NewRuntime()
	c := NewController(NewThreadSignaler(rt), nil)

	th := rt.Spawn("short", func(*threading.Thread) {})
	th.Join()

	err := c.Suspend(th)
	if !errors.Is(err, threading.ErrThreadExited) {
		t.Fatalf("expected ErrThreadExited, got %v", err)
	}
	if c.Suspended(th) {
		t.Fatal("failed suspend must not register the thread")
	}
	if s := c.Stats(); s.Suspended != 0 || s.Errors != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestConcurrentSuspendOfDistinctThreads(t *testing.T) {
	rt := threading.NewRuntime()
	c := NewController(NewThreadSignaler(rt), nil)

	type target struct {
		th   *threading.Thread
		n    *atomic.Int64
		stop func()
	}
	targets := make([]*target, 8)
	for i := range targets {
		th, n, stop := startCounter(rt, fmt.Sprintf("counter-%d", i))
		targets[i] = &target{th, n, stop}
		defer func() { stop(); th.Join() }()
		waitPast(t, n, 0)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(targets))
	for _, tg := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Suspend(tg.th)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Suspend: %v", err)
		}
	}

	for _, tg := range targets {
		if !c.Suspended(tg.th) {
			t.Fatalf("%s not registered as suspended", tg.th)
		}
	}
	before := make([]int64, len(targets))
	for i, tg := range targets {
		before[i] = tg.n.Load()
	}
	time.Sleep(75 * time.Millisecond)
	for i, tg := range targets {
		if after := tg.n.Load(); after != before[i] {
			t.Fatalf("suspended %s advanced from %d to %d", tg.th, before[i], after)
		}
	}

	// Each is independently resumable.
	for i, tg := range targets {
		mark := tg.n.Load()
		if err := c.Resume(tg.th); err != nil {
			t.Fatalf("Resume %d: %v", i, err)
		}
		waitPast(t, tg.n, mark)
	}
}

// TestWorkerPoolScenario reproduces the end-to-end demonstration: 20 workers
// counting to a fixed target, the first ten suspended while the rest keep
// running, then resumed so every worker reaches the target.
func TestWorkerPoolScenario(t *testing.T) {
	const workers = 20
	const iterations = 100000

	rt := threading.NewRuntime()
	c := NewController(NewThreadSignaler(rt), nil)

	counters := make([]*atomic.Int64, workers)
	threads := make([]*threading.Thread, workers)
	for i := range threads {
		n := new(atomic.Int64)
		counters[i] = n
		threads[i] = rt.Spawn(fmt.Sprintf("worker-%02d", i), func(th *threading.Thread) {
			for iter := 1; iter <= iterations; iter++ {
				n.Store(int64(iter))
				th.Yield()
			}
		})
	}

	for i := 0; i < workers/2; i++ {
		if err := c.Suspend(threads[i]); err != nil {
			t.Fatalf("Suspend worker %d: %v", i, err)
		}
	}

	frozen := make([]int64, workers/2)
	running := make([]int64, workers/2)
	for i := 0; i < workers/2; i++ {
		frozen[i] = counters[i].Load()
		running[i] = counters[workers/2+i].Load()
	}

	time.Sleep(150 * time.Millisecond)

	for i := 0; i < workers/2; i++ {
		if got := counters[i].Load(); got != frozen[i] {
			t.Fatalf("suspended worker %d advanced from %d to %d", i, frozen[i], got)
		}
		if got := counters[workers/2+i].Load(); got <= running[i] && got != iterations {
			t.Fatalf("running worker %d made no progress (stuck at %d)", workers/2+i, got)
		}
	}

	for i := 0; i < workers/2; i++ {
		if err := c.Resume(threads[i]); err != nil {
			t.Fatalf("Resume worker %d: %v", i, err)
		}
	}

	joinAll(t, threads)

	// No lost or duplicated work: every worker reaches the exact target.
	for i, n := range counters {
		if got := n.Load(); got != iterations {
			t.Fatalf("worker %d finished at %d, expected %d", i, got, iterations)
		}
	}
}

func TestRegistryGrowthWithLiveThreads(t *testing.T) {
	rt := threading.NewRuntime()
	c := NewController(NewThreadSignaler(rt), &Options{InitialCapacity: 2})

	var threads []*threading.Thread
	var stops []func()
	for i := 0; i < 5; i++ {
		th, n, stop := startCounter(rt, fmt.Sprintf("counter-%d", i))
		threads = append(threads, th)
		stops = append(stops, stop)
		waitPast(t, n, 0)
	}
	defer func() {
		for i, th := range threads {
			c.Resume(th)
			stops[i]()
			th.Join()
		}
	}()

	for _, th := range threads {
		if err := c.Suspend(th); err != nil {
			t.Fatalf("Suspend %s: %v", th, err)
		}
	}

	s := c.Stats()
	if s.Suspended != 5 {
		t.Fatalf("expected 5 suspended threads, got %d", s.Suspended)
	}
	if s.RegistryCap < 5 {
		t.Fatalf("registry did not grow: capacity %d", s.RegistryCap)
	}
	for _, th := range threads {
		if !c.Suspended(th) {
			t.Fatalf("growth lost track of %s", th)
		}
	}
}

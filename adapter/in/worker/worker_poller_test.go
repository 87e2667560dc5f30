package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"autoreply_worker/core/service/pipeline"
)

// fakeRunner counts cycles and can inject latency and failures.
type fakeRunner struct {
	mu      sync.Mutex
	cycles  int
	active  int
	overlap bool
	delay   time.Duration
	errOn   map[int]error // 1-based cycle number -> error
}

func (f *fakeRunner) RunCycle(ctx context.Context) (pipeline.CycleStats, error) {
	f.mu.Lock()
	f.active++
	if f.active > 1 {
		f.overlap = true
	}
	f.cycles++
	n := f.cycles
	delay := f.delay
	err := f.errOn[n]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if err != nil {
		return pipeline.CycleStats{}, err
	}
	return pipeline.CycleStats{Fetched: 1, Processed: 1}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cycles
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPollerRunsImmediatelyAndOnInterval(t *testing.T) {
	runner := &fakeRunner{}
	p := NewPoller(runner, 30*time.Millisecond, time.Second, zerolog.Nop())

	p.Start()
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return runner.count() >= 3 })

	st := p.Status()
	if !st.Running {
		t.Error("status.Running = false while started")
	}
	if st.CyclesRun < 3 {
		t.Errorf("cyclesRun = %d, want >= 3", st.CyclesRun)
	}
	if st.LastStats.Fetched != 1 {
		t.Errorf("lastStats.Fetched = %d, want 1", st.LastStats.Fetched)
	}
}

// Start on a running poller and Stop on a stopped poller are no-ops.
func TestPollerIdempotentStartStop(t *testing.T) {
	runner := &fakeRunner{delay: 10 * time.Millisecond}
	p := NewPoller(runner, 20*time.Millisecond, time.Second, zerolog.Nop())

	p.Start()
	p.Start()
	p.Start()

	waitFor(t, time.Second, func() bool { return runner.count() >= 2 })

	if runner.overlap {
		t.Error("cycles overlapped after repeated Start")
	}

	p.Stop()
	p.Stop()

	if st := p.Status(); st.Running {
		t.Error("status.Running = true after Stop")
	}

	// No further cycles may run once stopped.
	after := runner.count()
	time.Sleep(60 * time.Millisecond)
	if got := runner.count(); got != after {
		t.Errorf("cycles kept running after Stop: %d -> %d", after, got)
	}
}

// Stop blocks until the in-flight cycle finishes; the cycle is not cut
// short by the poller's own cancellation.
func TestPollerStopWaitsForInFlightCycle(t *testing.T) {
	runner := &fakeRunner{delay: 80 * time.Millisecond}
	p := NewPoller(runner, time.Hour, time.Second, zerolog.Nop())

	p.Start()
	waitFor(t, time.Second, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.active == 1
	})

	stopped := time.Now()
	p.Stop()
	took := time.Since(stopped)

	if took < 40*time.Millisecond {
		t.Errorf("Stop returned in %v, expected to wait for the cycle", took)
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.active != 0 {
		t.Error("cycle still active after Stop returned")
	}
}

// A failing cycle is recorded and the schedule keeps ticking.
func TestPollerSurvivesCycleFailure(t *testing.T) {
	runner := &fakeRunner{errOn: map[int]error{1: errors.New("mailbox unreachable")}}
	p := NewPoller(runner, 20*time.Millisecond, time.Second, zerolog.Nop())

	p.Start()
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return runner.count() >= 2 })

	st := p.Status()
	if st.CyclesRun < 2 {
		t.Errorf("cyclesRun = %d, want >= 2 after a failure", st.CyclesRun)
	}
}

func TestPollerRestart(t *testing.T) {
	runner := &fakeRunner{}
	p := NewPoller(runner, 20*time.Millisecond, time.Second, zerolog.Nop())

	p.Start()
	waitFor(t, time.Second, func() bool { return runner.count() >= 1 })
	p.Stop()

	before := runner.count()
	p.Start()
	waitFor(t, time.Second, func() bool { return runner.count() > before })
	p.Stop()
}

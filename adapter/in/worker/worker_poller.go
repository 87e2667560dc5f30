// Package worker hosts the inbound scheduling side: the poller that
// drives processing cycles on an interval.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autoreply_worker/core/service/pipeline"
)

const (
	DefaultPollInterval = 2 * time.Minute
	DefaultCycleTimeout = 10 * time.Minute
)

// CycleRunner runs one processing cycle. *pipeline.BatchProcessor
// implements it; tests substitute fakes.
type CycleRunner interface {
	RunCycle(ctx context.Context) (pipeline.CycleStats, error)
}

// PollerStatus is a point-in-time snapshot of the scheduler.
type PollerStatus struct {
	Running        bool                `json:"running"`
	Interval       time.Duration       `json:"interval"`
	CyclesRun      int                 `json:"cycles_run"`
	ProcessedTotal int                 `json:"processed_total"` // messages handled since process start
	LastCycleAt    time.Time           `json:"last_cycle_at"`
	LastStats      pipeline.CycleStats `json:"last_stats"`
	LastError      string              `json:"last_error,omitempty"`
}

// Poller triggers a processing cycle immediately on start and then on
// every interval tick. Cycles never overlap: the single loop goroutine
// runs them one at a time, and a cycle that outlasts the interval
// simply delays the next tick's work.
//
// Start and Stop are idempotent. Stop prevents future cycles but lets
// an in-flight cycle run to completion under its own timeout; partial
// work already recorded stays recorded.
type Poller struct {
	runner       CycleRunner
	interval     time.Duration
	cycleTimeout time.Duration
	log          zerolog.Logger

	mu             sync.Mutex
	running        bool
	cancel         context.CancelFunc
	done           chan struct{}
	cyclesRun      int
	processedTotal int
	lastCycleAt    time.Time
	lastStats      pipeline.CycleStats
	lastErr        error
}

// NewPoller creates a poller. Non-positive interval or timeout fall
// back to the defaults.
func NewPoller(runner CycleRunner, interval, cycleTimeout time.Duration, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if cycleTimeout <= 0 {
		cycleTimeout = DefaultCycleTimeout
	}
	return &Poller{
		runner:       runner,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		log:          log.With().Str("component", "poller").Logger(),
	}
}

// Start launches the polling loop. Calling Start on a running poller is
// a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		p.log.Debug().Msg("start ignored, already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})

	p.log.Info().Dur("interval", p.interval).Msg("poller starting")
	go p.run(ctx, p.done)
}

// Stop halts the loop and waits for an in-flight cycle to finish.
// Calling Stop on a stopped poller is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	p.log.Info().Msg("poller stopping")
	cancel()
	<-done
	p.log.Info().Msg("poller stopped")
}

// Status returns a snapshot of the scheduler state.
func (p *Poller) Status() PollerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := PollerStatus{
		Running:        p.running,
		Interval:       p.interval,
		CyclesRun:      p.cyclesRun,
		ProcessedTotal: p.processedTotal,
		LastCycleAt:    p.lastCycleAt,
		LastStats:      p.lastStats,
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	// First cycle fires immediately; operators expect mail handled on
	// startup, not one interval later.
	p.runCycle()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runCycle()
		}
	}
}

// runCycle executes one cycle under its own timeout, detached from the
// poller's cancel context so Stop never aborts work in progress. A
// failed cycle is logged and the schedule keeps going.
func (p *Poller) runCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), p.cycleTimeout)
	defer cancel()

	started := time.Now()
	stats, err := p.runner.RunCycle(ctx)

	p.mu.Lock()
	p.cyclesRun++
	p.processedTotal += stats.Handled()
	p.lastCycleAt = started
	p.lastStats = stats
	p.lastErr = err
	p.mu.Unlock()

	if err != nil {
		p.log.Error().Err(err).Dur("took", time.Since(started)).Msg("cycle failed")
		return
	}
	p.log.Debug().
		Int("fetched", stats.Fetched).
		Int("handled", stats.Handled()).
		Dur("took", time.Since(started)).
		Msg("cycle done")
}

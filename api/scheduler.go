/*
scheduler.go - Periodic run scheduler

PURPOSE:
  Triggers a full engine run at a fixed cadence. The engine itself is a
  pure function of its input snapshot, so a failed or discarded run is
  simply retried at the next tick with no cleanup.

DESIGN:
  - Runs a background goroutine with a configurable tick interval
  - Each tick executes RunAll for "today" as of "now"
  - A run that aborts (empty master set) logs a warning and waits for the
    next tick; nothing partial is written

CONFIGURATION:
  - Interval: how often to run (default: 1 hour)
  - Enabled:  whether the scheduler is active (default: true)

USAGE:
  scheduler := NewRunScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerRun endpoint (manual runs)
  - engine/run.go: run semantics
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/kpi-engine/engine"
)

// RunScheduler triggers engine runs on a fixed cadence.
type RunScheduler struct {
	Handler  *Handler
	Interval time.Duration
	Enabled  bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRunScheduler creates a new scheduler.
func NewRunScheduler(handler *Handler) *RunScheduler {
	return &RunScheduler{
		Handler:  handler,
		Interval: 1 * time.Hour,
		Enabled:  true,
		stop:     make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *RunScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.wg.Add(1)

	go rs.run()

	log.Printf("[Scheduler] Started with interval: %v", rs.Interval)
}

// Stop stops the scheduler.
func (rs *RunScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (rs *RunScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.tick()

	for {
		select {
		case <-rs.ticker.C:
			rs.tick()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RunScheduler) tick() {
	ctx := context.Background()
	now := rs.Handler.Now()
	asOf := engine.FromTime(now)

	summary, err := rs.Handler.RunAll(ctx, asOf.Day(), asOf)
	if err != nil {
		if engine.IsFatal(err) {
			log.Printf("[Scheduler] Run aborted, retrying next tick: %v", err)
		} else {
			log.Printf("[Scheduler] Run failed: %v", err)
		}
		return
	}

	log.Printf("[Scheduler] %s: %d results (drops=%d orphans=%d stale=%d)",
		summary.RunID, summary.Results,
		summary.Warnings.SchemaDrops, summary.Warnings.OrphanFacts, summary.Warnings.StaleSchedules)
}

// RunNow triggers an immediate run (for testing/admin).
func (rs *RunScheduler) RunNow() {
	rs.tick()
}

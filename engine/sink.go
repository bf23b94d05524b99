/*
sink.go - Result Sink and history interfaces

PURPOSE:
  Defines the boundary between the engine and whatever persists its output.
  The engine computes per-run results and hands them off; retention,
  deduplication of reruns, and historical snapshots are the sink's job.

APPEND-ONLY CONTRACT:
  Writes are append-only per run. Rerunning the same (category, date, name)
  key is expected - the engine is idempotent and the scheduler retries - and
  the sink, not the engine, deduplicates repeated writes at a given key.

IMPLEMENTATIONS:
  - sink/memory.go:      in-memory, for tests and dev
  - store/sqlite/:       SQLite-backed production sink

SEE ALSO:
  - run.go:     produces the RunOutput handed to a sink
  - ranking.go: MovingAverage consumes snapshots served by History
*/
package engine

import "context"

// =============================================================================
// SINK - Receives one run's ordered results
// =============================================================================

// Sink receives the ordered MetricResult sequence of one run, keyed by
// (category, analysis date, metric name), together with the run's warning
// counts. The runID identifies the producing run for audit.
type Sink interface {
	WriteRun(ctx context.Context, runID string, results []MetricResult, warnings Warnings) error
}

// =============================================================================
// HISTORY - Prior snapshots for trend computation
// =============================================================================

// History serves prior metric snapshots so Ranking & Trend can compute
// moving averages. Values return oldest first; fewer than limit snapshots
// return however many exist.
type History interface {
	Recent(ctx context.Context, category CategoryID, name string, limit int) ([]Quantity, error)
}

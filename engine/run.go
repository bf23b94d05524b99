/*
run.go - Single-pass run orchestration

PURPOSE:
  Wires the pipeline for one analysis window:

    Source Adapter -> Identity Resolver -> Metric Engine -> output

  A run is a pure function of its input snapshot: given identical inputs it
  reproduces identical output, so a discarded run is safely retried at the
  next scheduled tick. The engine holds no state between runs.

PARALLELISM:
  Resolution partitions entities by category with no cross-entity data
  dependency, so metric derivation fans out across a bounded worker pool,
  one partition per task. Combining partial results is an order-independent
  reduce; the final result list is sorted for deterministic output.

FAILURE SEMANTICS:
  Record-level failures (schema drops, orphan facts) and line-level failures
  (stale schedules) degrade the run and are surfaced as structured warning
  counts next to the results. Only an empty master set aborts the run.
*/
package engine

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
)

// =============================================================================
// RUN INPUT / OUTPUT
// =============================================================================

// FactBatch pairs one feed's raw records with the schema that normalizes them.
type FactBatch struct {
	Schema  SourceSchema
	Records []RawRecord
}

type RunInput struct {
	// Date is the analysis date; AsOf is the explicit "current time" of the
	// run (the engine never reads the clock).
	Date TimePoint
	AsOf TimePoint

	Masters   []MasterRecord
	Batches   []FactBatch
	Schedules ScheduleSet
	Classify  Classifier

	// Workers bounds the metric fan-out. Defaults to GOMAXPROCS.
	Workers int
}

// Warnings are the structured failure counts surfaced alongside results, so
// a consumer can tell "zero defects" apart from "defect data unavailable".
type Warnings struct {
	SchemaDrops    int `json:"schemaDrops"`
	OrphanFacts    int `json:"orphanFacts"`
	StaleSchedules int `json:"staleSchedules"`
}

func (w *Warnings) add(other Warnings) {
	w.SchemaDrops += other.SchemaDrops
	w.OrphanFacts += other.OrphanFacts
	w.StaleSchedules += other.StaleSchedules
}

type RunOutput struct {
	Date            TimePoint
	States          []ResolvedState
	ByCategory      map[CategoryID][]ResolvedState
	TerminatedToday []MasterRecord
	Results         []MetricResult
	Warnings        Warnings
}

// PartitionMetrics derives the metric results for one category partition.
// Returned errors are classified into warning counts (stale schedules,
// orphans); they never abort the run.
type PartitionMetrics func(category CategoryID, states []ResolvedState) ([]MetricResult, []error)

// =============================================================================
// RUN
// =============================================================================

// Run executes one complete pass. The only fatal condition is an empty
// master set (ErrEmptyMasterSet); everything else degrades into warnings.
func Run(ctx context.Context, in RunInput, fn PartitionMetrics) (*RunOutput, error) {
	out := &RunOutput{Date: in.Date.Day()}

	// 1. Normalize every feed into canonical facts, isolating bad records.
	var facts []CanonicalFact
	for _, batch := range in.Batches {
		batchFacts, stats := NormalizeBatch(batch.Records, batch.Schema)
		facts = append(facts, batchFacts...)
		out.Warnings.SchemaDrops += stats.Dropped
	}

	// 2. Outer-correlate masters with facts.
	resolved, err := Resolve(ResolveInput{
		Masters:  in.Masters,
		Facts:    facts,
		Date:     in.Date,
		Classify: in.Classify,
	})
	if err != nil {
		return nil, err
	}
	out.States = resolved.States
	out.ByCategory = resolved.ByCategory
	out.TerminatedToday = resolved.TerminatedToday
	out.Warnings.OrphanFacts = resolved.OrphanCount()

	// 3. Fan metric derivation out across category partitions.
	if fn != nil {
		results, warnings, err := deriveMetrics(ctx, resolved.ByCategory, fn, in.Workers)
		if err != nil {
			return nil, err
		}
		out.Results = results
		out.Warnings.add(warnings)
	}

	return out, nil
}

func deriveMetrics(ctx context.Context, partitions map[CategoryID][]ResolvedState, fn PartitionMetrics, workers int) ([]MetricResult, Warnings, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(partitions) {
		workers = len(partitions)
	}
	if workers == 0 {
		return nil, Warnings{}, nil
	}

	tasks := make(chan CategoryID, len(partitions))
	for category := range partitions {
		tasks <- category
	}
	close(tasks)

	var (
		mu       sync.Mutex
		results  []MetricResult
		warnings Warnings
		wg       sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for category := range tasks {
				select {
				case <-ctx.Done():
					return
				default:
				}
				partial, errs := fn(category, partitions[category])

				mu.Lock()
				results = append(results, partial...)
				for _, err := range errs {
					classifyWarning(err, &warnings)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, Warnings{}, err
	}

	// Order-independent reduce: workers own disjoint partitions, so a final
	// sort is all that determinism needs.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Category != results[j].Category {
			return results[i].Category < results[j].Category
		}
		return results[i].Name < results[j].Name
	})
	return results, warnings, nil
}

func classifyWarning(err error, w *Warnings) {
	switch {
	case err == nil:
	case errors.Is(err, ErrStaleSchedule):
		w.StaleSchedules++
	case errors.Is(err, ErrSchema):
		w.SchemaDrops++
	case IsRecordLevel(err):
		w.OrphanFacts++
	}
}

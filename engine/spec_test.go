/*
spec_test.go - Specification tests for the aggregation engine

PURPOSE:
  These tests serve as EXECUTABLE SPECIFICATIONS of the engine design.
  Each test documents a behavior the engine guarantees and validates that
  the implementation conforms to it.

ORGANIZATION:
  1. Resolution invariants - outer correlation, latest-wins, termination
  2. Metric invariants     - undefined propagation, monotone targets
  3. End-to-end scenarios  - attendance, production midpoint, defect Pareto,
                             orphan handling

READING THESE TESTS:
  Each test has:
  - A descriptive name that states the behavior
  - GIVEN/WHEN/THEN comments explaining the scenario
  - Clear assertions with explanatory messages
*/
package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/warp/kpi-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(day int) engine.TimePoint {
	return engine.NewDate(2026, time.March, day)
}

func at(day, hour, minute int) engine.TimePoint {
	return engine.NewMinute(2026, time.March, day, hour, minute)
}

func qty(v float64) engine.Quantity { return engine.NewQuantity(v) }

func worker(id string, dept string) engine.MasterRecord {
	return engine.MasterRecord{
		EntityID:   engine.EntityID(id),
		Kind:       engine.KindWorker,
		Department: dept,
		Active:     true,
	}
}

func fact(id string, observedAt engine.TimePoint, seq int, status string) engine.CanonicalFact {
	return engine.CanonicalFact{
		EntityID:   engine.EntityID(id),
		ObservedAt: observedAt,
		Source:     "test-feed",
		ArrivalSeq: seq,
		Payload:    engine.FactPayload{Status: status},
	}
}

// =============================================================================
// RESOLUTION INVARIANTS
// =============================================================================

func TestResolve_EntityWithoutFact_StillProducesState(t *testing.T) {
	// GIVEN: two eligible workers, a fact for only one of them
	// WHEN: resolving
	// THEN: both produce a ResolvedState; the unobserved one has no fact

	out, err := engine.Resolve(engine.ResolveInput{
		Masters: []engine.MasterRecord{worker("E1", "sewing"), worker("E2", "sewing")},
		Facts:   []engine.CanonicalFact{fact("E1", at(2, 8, 0), 0, "present")},
		Date:    date(2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out.States) != 2 {
		t.Fatalf("expected 2 resolved states, got %d", len(out.States))
	}
	if !out.States[0].HasFact() {
		t.Errorf("E1 should have a fact")
	}
	if out.States[1].HasFact() {
		t.Errorf("E2 has no observation and must resolve without a fact, got %+v", out.States[1].Fact)
	}
}

func TestResolve_LatestWins_RegardlessOfInputOrder(t *testing.T) {
	// GIVEN: two facts for the same entity/date with t1 < t2
	// WHEN: resolving with either input order
	// THEN: the t2 fact wins both times

	early := fact("E1", at(2, 8, 0), 0, "early")
	late := fact("E1", at(2, 14, 0), 1, "late")

	for name, facts := range map[string][]engine.CanonicalFact{
		"early-first": {early, late},
		"late-first":  {late, early},
	} {
		out, err := engine.Resolve(engine.ResolveInput{
			Masters: []engine.MasterRecord{worker("E1", "sewing")},
			Facts:   facts,
			Date:    date(2),
		})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if got := out.States[0].Fact.Payload.Status; got != "late" {
			t.Errorf("%s: expected latest fact to win, got %q", name, got)
		}
	}
}

func TestResolve_TimestampTie_HigherArrivalSequenceWins(t *testing.T) {
	// GIVEN: two facts with identical observed_at but different arrival order
	// WHEN: resolving
	// THEN: the later-arriving fact wins, deterministically

	out, err := engine.Resolve(engine.ResolveInput{
		Masters: []engine.MasterRecord{worker("E1", "sewing")},
		Facts: []engine.CanonicalFact{
			fact("E1", at(2, 8, 0), 3, "second-arrival"),
			fact("E1", at(2, 8, 0), 1, "first-arrival"),
		},
		Date: date(2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.States[0].Fact.Payload.Status; got != "second-arrival" {
		t.Errorf("expected higher arrival sequence to break the tie, got %q", got)
	}
}

func TestResolve_TerminatedEntity_ExcludedButAudited(t *testing.T) {
	// GIVEN: one active worker and one terminated exactly on the analysis date
	// WHEN: resolving
	// THEN: the terminated worker is out of the eligible set but in the
	//       terminated-today audit set

	terminatedAt := at(2, 0, 0)
	terminated := worker("E2", "sewing")
	terminated.TerminatedAt = &terminatedAt

	out, err := engine.Resolve(engine.ResolveInput{
		Masters: []engine.MasterRecord{worker("E1", "sewing"), terminated},
		Facts:   nil,
		Date:    date(2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out.States) != 1 || out.States[0].Master.EntityID != "E1" {
		t.Fatalf("expected only E1 eligible, got %+v", out.States)
	}
	if len(out.TerminatedToday) != 1 || out.TerminatedToday[0].EntityID != "E2" {
		t.Errorf("expected E2 in the terminated-today set, got %+v", out.TerminatedToday)
	}
}

func TestResolve_TerminationBeforeDate_NotInTodaySet(t *testing.T) {
	// GIVEN: a worker terminated the day before the analysis date
	// WHEN: resolving
	// THEN: excluded from eligibility AND from terminated-today (exact match only)

	terminatedAt := at(1, 17, 0)
	gone := worker("E3", "sewing")
	gone.TerminatedAt = &terminatedAt

	out, err := engine.Resolve(engine.ResolveInput{
		Masters: []engine.MasterRecord{worker("E1", "sewing"), gone},
		Date:    date(2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.States) != 1 {
		t.Errorf("expected 1 eligible state, got %d", len(out.States))
	}
	if len(out.TerminatedToday) != 0 {
		t.Errorf("termination yesterday must not appear in terminated-today, got %+v", out.TerminatedToday)
	}
}

func TestResolve_EmptyMasterSet_IsFatal(t *testing.T) {
	// GIVEN: no master records at all
	// WHEN: resolving
	// THEN: ErrEmptyMasterSet - the only condition that aborts a run

	_, err := engine.Resolve(engine.ResolveInput{Date: date(2)})
	if !engine.IsFatal(err) {
		t.Fatalf("expected fatal empty-master-set error, got %v", err)
	}
}

// =============================================================================
// SCENARIO A: attendance with a same-day termination
// =============================================================================

func TestScenarioA_ActivePlusTerminatedToday(t *testing.T) {
	// GIVEN: E1 active with a present fact, E2 terminated today, no fact for E2
	// WHEN: resolving and computing the attendance rate
	// THEN: Total=1, Present=1, Absent=0, Rate=100%, terminated-today count=1

	terminatedAt := at(2, 6, 0)
	e2 := worker("E2", "sewing")
	e2.TerminatedAt = &terminatedAt

	out, err := engine.Resolve(engine.ResolveInput{
		Masters: []engine.MasterRecord{worker("E1", "sewing"), e2},
		Facts:   []engine.CanonicalFact{fact("E1", at(2, 7, 55), 0, "present")},
		Date:    date(2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eligible := len(out.States)
	present := 0
	for _, s := range out.States {
		if s.HasFact() && s.Fact.Payload.Status == "present" {
			present++
		}
	}
	absent := eligible - present

	if eligible != 1 || present != 1 || absent != 0 {
		t.Fatalf("expected total=1 present=1 absent=0, got total=%d present=%d absent=%d", eligible, present, absent)
	}
	if len(out.TerminatedToday) != 1 {
		t.Errorf("expected terminated-today count 1, got %d", len(out.TerminatedToday))
	}

	rate := engine.Rate(engine.NewQuantityFromInt(present), engine.NewQuantityFromInt(eligible))
	if !rate.Defined || !rate.Value.Equal(qty(100)) {
		t.Errorf("expected rate 100%%, got %+v", rate)
	}
}

// =============================================================================
// SCENARIO B: dynamic target at the shift midpoint
// =============================================================================

func TestScenarioB_DynamicTargetAtMidpoint(t *testing.T) {
	// GIVEN: two 4-hour segments (8h scheduled), 10 units/hour/worker,
	//        2 workers, evaluated exactly at 4h of elapsed scheduled time
	// WHEN: computing the dynamic target
	// THEN: min(8*10*2, 4*10*2) = 80

	window := engine.ShiftWindow{
		Line: "L1",
		Date: date(2),
		Segments: []engine.Segment{
			{Start: at(2, 8, 0), End: at(2, 12, 0)},
			{Start: at(2, 13, 0), End: at(2, 17, 0)},
		},
	}

	// 13:00 is 4h elapsed: the first segment done, the break frozen.
	elapsedMin, scheduledMin := window.ElapsedAndScheduled(at(2, 13, 0))
	sixty := engine.NewQuantityFromInt(60)
	elapsedHours := elapsedMin.Div(sixty)
	scheduledHours := scheduledMin.Div(sixty)

	if !elapsedHours.Equal(qty(4)) || !scheduledHours.Equal(qty(8)) {
		t.Fatalf("expected 4h elapsed of 8h scheduled, got %v of %v", elapsedHours, scheduledHours)
	}

	lineRate := qty(10).Mul(engine.NewQuantityFromInt(2))
	fullTarget := scheduledHours.Mul(lineRate)
	target := engine.DynamicTarget(fullTarget, lineRate, scheduledHours, elapsedHours)

	if !target.Equal(qty(80)) {
		t.Errorf("expected dynamic target 80, got %v", target)
	}
}

func TestDynamicTarget_MonotonicAndBounded(t *testing.T) {
	// GIVEN: a fixed schedule and rate
	// WHEN: elapsed time sweeps from 0 to past the full shift
	// THEN: the target never decreases and never exceeds the full target

	fullTarget := qty(160)
	rate := qty(20)
	scheduled := qty(8)

	previous := engine.ZeroQuantity()
	for tenth := 0; tenth <= 100; tenth++ {
		elapsed := qty(float64(tenth) / 10)
		target := engine.DynamicTarget(fullTarget, rate, scheduled, elapsed)
		if target.LessThan(previous) {
			t.Fatalf("target decreased at elapsed=%v: %v < %v", elapsed, target, previous)
		}
		if target.GreaterThan(fullTarget) {
			t.Fatalf("target exceeded full-period target at elapsed=%v: %v", elapsed, target)
		}
		previous = target
	}
}

// =============================================================================
// SCENARIO C: defect Pareto
// =============================================================================

func TestScenarioC_TopNOrderingAndDefectRates(t *testing.T) {
	// GIVEN: defect counts {12, 30, 58} out of 1000 inspected units
	// WHEN: ranking the top 3 and deriving rates
	// THEN: order is {58, 30, 12} and each rate = count/1000*100

	counts := []engine.CategoryCount{
		{Category: "stitching", Count: qty(12)},
		{Category: "fabric", Count: qty(30)},
		{Category: "measurement", Count: qty(58)},
	}

	top := engine.TopN(counts, 3)
	if len(top) != 3 {
		t.Fatalf("expected 3 ranked categories, got %d", len(top))
	}
	wantOrder := []engine.CategoryID{"measurement", "fabric", "stitching"}
	wantCounts := []float64{58, 30, 12}
	wantRates := []float64{5.8, 3, 1.2}
	total := qty(1000)

	for i, entry := range top {
		if entry.Category != wantOrder[i] {
			t.Errorf("rank %d: expected %s, got %s", i, wantOrder[i], entry.Category)
		}
		if !entry.Count.Equal(qty(wantCounts[i])) {
			t.Errorf("rank %d: expected count %v, got %v", i, wantCounts[i], entry.Count)
		}
		rate := engine.Rate(entry.Count, total)
		if !rate.Defined || !rate.Value.Equal(qty(wantRates[i])) {
			t.Errorf("rank %d: expected rate %v, got %+v", i, wantRates[i], rate)
		}
	}
}

// =============================================================================
// SCENARIO D: orphan facts
// =============================================================================

func TestScenarioD_OrphanFactExcludedAndCounted(t *testing.T) {
	// GIVEN: a fact referencing entity E9 which has no master record
	// WHEN: resolving
	// THEN: E9 appears in no aggregate, orphan count >= 1, run continues

	out, err := engine.Resolve(engine.ResolveInput{
		Masters: []engine.MasterRecord{worker("E1", "sewing")},
		Facts: []engine.CanonicalFact{
			fact("E1", at(2, 8, 0), 0, "present"),
			fact("E9", at(2, 8, 5), 1, "present"),
		},
		Date: date(2),
	})
	if err != nil {
		t.Fatalf("orphans must not fail the run: %v", err)
	}

	if out.OrphanCount() < 1 {
		t.Errorf("expected orphan count >= 1, got %d", out.OrphanCount())
	}
	for _, s := range out.States {
		if s.Master.EntityID == "E9" {
			t.Errorf("orphan entity must not appear in resolved states")
		}
	}
}

// =============================================================================
// RUN ORCHESTRATION
// =============================================================================

type specSchema struct{}

func (specSchema) Source() engine.SourceSystem { return "test-feed" }

func (s specSchema) Normalize(raw engine.RawRecord, seq int) (engine.CanonicalFact, error) {
	id, err := engine.RequireField(raw, s.Source(), seq, "id")
	if err != nil {
		return engine.CanonicalFact{}, err
	}
	stamp, err := engine.RequireField(raw, s.Source(), seq, "at")
	if err != nil {
		return engine.CanonicalFact{}, err
	}
	observedAt, err := engine.ParseObservedAt(s.Source(), seq, "at", stamp, "2006-01-02 15:04")
	if err != nil {
		return engine.CanonicalFact{}, err
	}
	status, _ := raw.Get("status")
	return engine.CanonicalFact{
		EntityID:   engine.EntityID(id),
		ObservedAt: observedAt,
		Source:     s.Source(),
		ArrivalSeq: seq,
		Payload:    engine.FactPayload{Status: status},
	}, nil
}

func TestRun_IsolatesBadRecordsAndCountsWarnings(t *testing.T) {
	// GIVEN: a batch with one good record, one missing its identity, and
	//        one with a malformed timestamp, plus one orphan
	// WHEN: running end to end
	// THEN: the run completes; drops and orphans surface as counts

	in := engine.RunInput{
		Date:    date(2),
		AsOf:    at(2, 12, 0),
		Masters: []engine.MasterRecord{worker("E1", "sewing")},
		Batches: []engine.FactBatch{{
			Schema: specSchema{},
			Records: []engine.RawRecord{
				{"id": "E1", "at": "2026-03-02 08:00", "status": "present"},
				{"at": "2026-03-02 08:01", "status": "present"},
				{"id": "E1", "at": "not-a-time", "status": "present"},
				{"id": "E9", "at": "2026-03-02 08:02", "status": "present"},
			},
		}},
	}

	out, err := engine.Run(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("record-level failures must not abort the run: %v", err)
	}

	if out.Warnings.SchemaDrops != 2 {
		t.Errorf("expected 2 schema drops, got %d", out.Warnings.SchemaDrops)
	}
	if out.Warnings.OrphanFacts != 1 {
		t.Errorf("expected 1 orphan, got %d", out.Warnings.OrphanFacts)
	}
	if len(out.States) != 1 || !out.States[0].HasFact() {
		t.Errorf("the good record should have resolved for E1")
	}
}

func TestRun_DeterministicResultsAcrossWorkerCounts(t *testing.T) {
	// GIVEN: many departments and a metric function per partition
	// WHEN: running with 1 worker and with 8 workers
	// THEN: identical ordered results - the reduce is order-independent

	var masters []engine.MasterRecord
	depts := []string{"cutting", "sewing", "finishing", "packing", "pressing"}
	for i, dept := range depts {
		masters = append(masters, worker("E"+string(rune('A'+i)), dept))
	}

	metricFn := func(category engine.CategoryID, states []engine.ResolvedState) ([]engine.MetricResult, []error) {
		return []engine.MetricResult{{
			Category: category,
			Date:     states[0].Date,
			Name:     "eligible",
			Metric:   engine.NewMetric(engine.NewQuantityFromInt(len(states)), engine.NewQuantityFromInt(len(states)), engine.NewQuantityFromInt(len(states))),
		}}, nil
	}

	run := func(workers int) []engine.MetricResult {
		out, err := engine.Run(context.Background(), engine.RunInput{
			Date:    date(2),
			AsOf:    at(2, 12, 0),
			Masters: masters,
			Workers: workers,
		}, metricFn)
		if err != nil {
			t.Fatalf("workers=%d: unexpected error: %v", workers, err)
		}
		return out.Results
	}

	serial := run(1)
	parallel := run(8)

	if len(serial) != len(depts) || len(parallel) != len(depts) {
		t.Fatalf("expected %d results, got %d and %d", len(depts), len(serial), len(parallel))
	}
	for i := range serial {
		if serial[i].Category != parallel[i].Category || serial[i].Name != parallel[i].Name {
			t.Errorf("result %d differs across worker counts: %v vs %v", i, serial[i], parallel[i])
		}
	}
}

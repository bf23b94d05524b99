package sink

import (
	"context"
	"testing"
	"time"

	"github.com/warp/kpi-engine/engine"
)

func result(day int, name string, value float64) engine.MetricResult {
	q := engine.NewQuantity(value)
	return engine.MetricResult{
		Category: "sewing",
		Date:     engine.NewDate(2026, time.March, day),
		Name:     name,
		Metric:   engine.NewMetric(q, engine.NewQuantityFromInt(1), q),
	}
}

func TestMemory_RerunOverwritesInPlace(t *testing.T) {
	// GIVEN: two runs writing the same (category, date, name) key
	// WHEN: reading the key back
	// THEN: the later write wins and the series does not grow

	m := NewMemory()
	ctx := context.Background()

	if err := m.WriteRun(ctx, "run-1", []engine.MetricResult{result(2, "attendance_rate", 80)}, engine.Warnings{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.WriteRun(ctx, "run-2", []engine.MetricResult{result(2, "attendance_rate", 85)}, engine.Warnings{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, ok := m.Get("sewing", engine.NewDate(2026, time.March, 2), "attendance_rate")
	if !ok {
		t.Fatalf("expected a stored result")
	}
	if !stored.Metric.Value.Equal(engine.NewQuantity(85)) {
		t.Errorf("expected the rerun value 85, got %v", stored.Metric.Value)
	}

	values, err := m.Recent(ctx, "sewing", "attendance_rate", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 1 {
		t.Errorf("rerun must not duplicate the series point, got %d values", len(values))
	}
}

func TestMemory_RecentOldestFirstWithLimit(t *testing.T) {
	// GIVEN: three daily snapshots
	// WHEN: asking for the two most recent
	// THEN: oldest-first order over the trailing two

	m := NewMemory()
	ctx := context.Background()

	for i, v := range []float64{70, 80, 90} {
		if err := m.WriteRun(ctx, "run", []engine.MetricResult{result(2+i, "attendance_rate", v)}, engine.Warnings{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	values, err := m.Recent(ctx, "sewing", "attendance_rate", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 values, got %d", len(values))
	}
	if !values[0].LessThan(values[1]) {
		t.Errorf("expected oldest-first order, got %v then %v", values[0], values[1])
	}
}

func TestMemory_RecentSkipsUndefinedSnapshots(t *testing.T) {
	// GIVEN: a series containing an undefined snapshot
	// THEN: Recent serves only defined values; undefined never averages

	m := NewMemory()
	ctx := context.Background()

	undefined := engine.MetricResult{
		Category: "sewing",
		Date:     engine.NewDate(2026, time.March, 2),
		Name:     "attendance_rate",
		Metric:   engine.UndefinedMetric(engine.ZeroQuantity(), engine.ZeroQuantity()),
	}
	if err := m.WriteRun(ctx, "run-1", []engine.MetricResult{undefined}, engine.Warnings{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.WriteRun(ctx, "run-2", []engine.MetricResult{result(3, "attendance_rate", 90)}, engine.Warnings{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	values, err := m.Recent(ctx, "sewing", "attendance_rate", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 1 || !values[0].Equal(engine.NewQuantity(90)) {
		t.Errorf("expected only the defined snapshot, got %v", values)
	}
}

func TestMemory_RunWarningsRecorded(t *testing.T) {
	m := NewMemory()
	want := engine.Warnings{SchemaDrops: 2, OrphanFacts: 1}
	if err := m.WriteRun(context.Background(), "run-x", nil, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := m.RunWarnings("run-x")
	if !ok || got != want {
		t.Errorf("expected warnings %+v, got %+v (ok=%v)", want, got, ok)
	}
}

package quality

import (
	"context"
	"testing"
	"time"

	"github.com/warp/kpi-engine/engine"
)

func order(id, customer string) engine.MasterRecord {
	return engine.MasterRecord{
		EntityID:   engine.EntityID(id),
		Kind:       engine.KindOrder,
		Department: customer,
		Active:     true,
	}
}

func inspection(orderNo, result, units, defect, inspectedAt string) engine.RawRecord {
	r := engine.RawRecord{
		"order_no":     orderNo,
		"result":       result,
		"units":        units,
		"inspected_at": inspectedAt,
	}
	if defect != "" {
		r["defect"] = defect
	}
	return r
}

func TestBuildReport_DualPassRatesDiverge(t *testing.T) {
	// GIVEN: 3 passing 10-unit orders and 1 failing 10,000-unit order
	// WHEN: building the report
	// THEN: count rate 75%, quantity rate under 1% - reported side by side

	in := Input{
		Date: engine.NewDate(2026, time.March, 2),
		AsOf: engine.NewMinute(2026, time.March, 2, 16, 0),
		Masters: []engine.MasterRecord{
			order("PO-1", "acme"), order("PO-2", "acme"), order("PO-3", "acme"), order("PO-4", "acme"),
		},
		Inspections: []engine.RawRecord{
			inspection("PO-1", ResultPass, "10", "", "02/03/2026 09:00"),
			inspection("PO-2", ResultPass, "10", "", "02/03/2026 10:00"),
			inspection("PO-3", ResultPass, "10", "", "02/03/2026 11:00"),
			inspection("PO-4", ResultFail, "10000", "stitching", "02/03/2026 12:00"),
		},
	}

	report, err := BuildReport(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Rows) != 1 {
		t.Fatalf("expected 1 group row, got %d", len(report.Rows))
	}

	row := report.Rows[0]
	if row.Inspected != 4 || row.Passed != 3 {
		t.Errorf("expected inspected=4 passed=3, got %+v", row)
	}
	if !row.PassRates.ByCount.Value.Equal(engine.NewQuantity(75)) {
		t.Errorf("expected count-weighted 75, got %v", row.PassRates.ByCount.Value)
	}
	if !row.PassRates.ByQuantity.Value.LessThan(engine.NewQuantityFromInt(1)) {
		t.Errorf("expected quantity-weighted rate under 1, got %v", row.PassRates.ByQuantity.Value)
	}
}

func TestBuildReport_DefectPareto(t *testing.T) {
	// GIVEN: failed orders carrying defect counts {measurement x2, fabric x1}
	//        over 1000 total inspected units
	// WHEN: building the report with TopDefects=2
	// THEN: pareto = [measurement, fabric] with rates per total units

	in := Input{
		Date: engine.NewDate(2026, time.March, 2),
		AsOf: engine.NewMinute(2026, time.March, 2, 16, 0),
		Masters: []engine.MasterRecord{
			order("PO-1", "acme"), order("PO-2", "acme"), order("PO-3", "acme"),
			order("PO-4", "acme"), order("PO-5", "acme"),
		},
		Inspections: []engine.RawRecord{
			inspection("PO-1", ResultFail, "200", "measurement", "02/03/2026 09:00"),
			inspection("PO-2", ResultFail, "200", "measurement", "02/03/2026 10:00"),
			inspection("PO-3", ResultFail, "200", "fabric", "02/03/2026 11:00"),
			inspection("PO-4", ResultPass, "200", "", "02/03/2026 12:00"),
			inspection("PO-5", ResultPass, "200", "", "02/03/2026 13:00"),
		},
		TopDefects: 2,
	}

	report, err := BuildReport(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Pareto) != 2 {
		t.Fatalf("expected 2 pareto entries, got %d", len(report.Pareto))
	}

	first, second := report.Pareto[0], report.Pareto[1]
	if first.Defect != "measurement" || !first.Count.Equal(engine.NewQuantityFromInt(2)) {
		t.Errorf("expected measurement x2 first, got %+v", first)
	}
	if second.Defect != "fabric" || !second.Count.Equal(engine.NewQuantityFromInt(1)) {
		t.Errorf("expected fabric x1 second, got %+v", second)
	}
	// 2 / 1000 * 100
	if !first.Rate.Value.Equal(engine.NewQuantity(0.2)) {
		t.Errorf("expected measurement rate 0.2 per 1000 units, got %v", first.Rate.Value)
	}
}

func TestBuildReport_ReinspectionKeepsNewestDisposition(t *testing.T) {
	// GIVEN: an order failed in the morning and re-inspected passing at noon
	// WHEN: building the report
	// THEN: the order counts as passed; the stale failure leaves no defect

	in := Input{
		Date:    engine.NewDate(2026, time.March, 2),
		AsOf:    engine.NewMinute(2026, time.March, 2, 16, 0),
		Masters: []engine.MasterRecord{order("PO-1", "acme")},
		Inspections: []engine.RawRecord{
			inspection("PO-1", ResultFail, "500", "stitching", "02/03/2026 09:00"),
			inspection("PO-1", ResultPass, "500", "", "02/03/2026 12:00"),
		},
	}

	report, err := BuildReport(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row := report.Rows[0]
	if row.Inspected != 1 || row.Passed != 1 {
		t.Errorf("expected the re-inspection to win, got %+v", row)
	}
	if len(report.Pareto) != 0 {
		t.Errorf("a superseded failure must not appear in the pareto, got %+v", report.Pareto)
	}
}

func TestBuildReport_UninspectedOrdersStayOutOfRates(t *testing.T) {
	// GIVEN: two orders, only one inspected
	// WHEN: building the report
	// THEN: the uninspected order is not a pass-rate sample and the rate
	//       divides by 1, not 2

	in := Input{
		Date:    engine.NewDate(2026, time.March, 2),
		AsOf:    engine.NewMinute(2026, time.March, 2, 16, 0),
		Masters: []engine.MasterRecord{order("PO-1", "acme"), order("PO-2", "acme")},
		Inspections: []engine.RawRecord{
			inspection("PO-1", ResultPass, "100", "", "02/03/2026 09:00"),
		},
	}

	report, err := BuildReport(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row := report.Rows[0]
	if row.Inspected != 1 {
		t.Errorf("expected 1 inspected sample, got %d", row.Inspected)
	}
	if !row.PassRates.ByCount.Value.Equal(engine.NewQuantity(100)) {
		t.Errorf("expected 100%% over the inspected sample alone, got %v", row.PassRates.ByCount.Value)
	}
}

func TestBuildReport_OrphanInspectionCountedNotAggregated(t *testing.T) {
	// GIVEN: an inspection for an order with no master record
	// WHEN: building the report
	// THEN: orphan warning of 1; the known order's row is untouched

	in := Input{
		Date:    engine.NewDate(2026, time.March, 2),
		AsOf:    engine.NewMinute(2026, time.March, 2, 16, 0),
		Masters: []engine.MasterRecord{order("PO-1", "acme")},
		Inspections: []engine.RawRecord{
			inspection("PO-1", ResultPass, "100", "", "02/03/2026 09:00"),
			inspection("E9", ResultFail, "50", "stitching", "02/03/2026 10:00"),
		},
	}

	report, err := BuildReport(context.Background(), in)
	if err != nil {
		t.Fatalf("an orphan must not fail the run: %v", err)
	}
	if report.Warnings.OrphanFacts != 1 {
		t.Errorf("expected 1 orphan warning, got %d", report.Warnings.OrphanFacts)
	}
	if report.Rows[0].Inspected != 1 {
		t.Errorf("orphan must not leak into the group row, got %+v", report.Rows[0])
	}
	if len(report.Pareto) != 0 {
		t.Errorf("orphan defect must not enter the pareto, got %+v", report.Pareto)
	}
}

func TestSchema_LegacyTimestampFormat(t *testing.T) {
	// GIVEN: the feed's day-first legacy timestamp
	// WHEN: normalizing
	// THEN: 02/03/2026 parses as March 2nd, not February 3rd

	fact, err := Schema{}.Normalize(inspection("PO-1", ResultPass, "10", "", "02/03/2026 09:15"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := engine.NewDate(2026, time.March, 2)
	if !fact.ObservedAt.SameDay(want) {
		t.Errorf("expected observation on %s, got %s", want, fact.ObservedAt)
	}
}

func TestSchema_RejectsUnknownDisposition(t *testing.T) {
	cases := []engine.RawRecord{
		inspection("PO-1", "maybe", "10", "", "02/03/2026 09:15"),
		inspection("PO-1", ResultFail, "ten", "stitching", "02/03/2026 09:15"),
	}
	for i, raw := range cases {
		if _, err := (Schema{}).Normalize(raw, i); !engine.IsRecordLevel(err) {
			t.Errorf("case %d: expected a record-level schema error, got %v", i, err)
		}
	}
}

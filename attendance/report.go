/*
report.go - Department attendance report

PURPOSE:
  One run computes, per department (or whatever the classifier yields):
  eligible headcount, present count, absent count, attendance rate, and the
  terminated-today attrition set. Optionally a moving average of the rate
  over prior snapshots served by the history store.

COUNTING RULES:
  present  = entities whose resolved fact says present
  absent   = eligible - present, so present + absent always equals eligible
  noRecord = the subset of absent with no observation at all ("never
             clocked in" is meaningful and reported separately from an
             explicit absent mark)

METRIC NAMES (as written to the sink):
  attendance_rate, present, eligible
*/
package attendance

import (
	"context"
	"sort"

	"github.com/warp/kpi-engine/engine"
)

// MetricAttendanceRate is the sink series name for the headline rate.
const MetricAttendanceRate = "attendance_rate"

// =============================================================================
// REPORT INPUT / OUTPUT
// =============================================================================

type Input struct {
	Date        engine.TimePoint
	AsOf        engine.TimePoint
	Masters     []engine.MasterRecord
	ClockEvents []engine.RawRecord
	Classify    engine.Classifier
	Workers     int

	// History and TrendWindow enable the moving-average column; both are
	// optional. The window includes the current snapshot.
	History     engine.History
	TrendWindow int
}

type DepartmentRow struct {
	Category engine.CategoryID
	Eligible int
	Present  int
	Absent   int
	NoRecord int
	Rate     engine.Metric
	// TrendRate is the moving average of the rate over recent snapshots,
	// Undefined when no history is configured.
	TrendRate engine.Metric
}

type Report struct {
	Date            engine.TimePoint
	Rows            []DepartmentRow
	TerminatedToday []engine.MasterRecord
	Results         []engine.MetricResult
	Warnings        engine.Warnings
}

// =============================================================================
// BUILD
// =============================================================================

// BuildReport runs the engine over the clock feed and assembles the report.
func BuildReport(ctx context.Context, in Input) (*Report, error) {
	out, err := engine.Run(ctx, engine.RunInput{
		Date:     in.Date,
		AsOf:     in.AsOf,
		Masters:  in.Masters,
		Batches:  []engine.FactBatch{{Schema: Schema{}, Records: in.ClockEvents}},
		Classify: in.Classify,
		Workers:  in.Workers,
	}, departmentMetrics)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Date:            out.Date,
		TerminatedToday: out.TerminatedToday,
		Results:         out.Results,
		Warnings:        out.Warnings,
	}

	for category, states := range out.ByCategory {
		row := countRow(category, states)
		row.TrendRate = trendRate(ctx, in, category, row.Rate)
		report.Rows = append(report.Rows, row)
	}
	sort.Slice(report.Rows, func(i, j int) bool {
		return report.Rows[i].Category < report.Rows[j].Category
	})

	return report, nil
}

func countRow(category engine.CategoryID, states []engine.ResolvedState) DepartmentRow {
	row := DepartmentRow{Category: category, Eligible: len(states)}
	for _, s := range states {
		switch {
		case s.HasFact() && s.Fact.Payload.Status == StatusPresent:
			row.Present++
		case !s.HasFact():
			row.NoRecord++
		}
	}
	row.Absent = row.Eligible - row.Present
	row.Rate = engine.Rate(engine.NewQuantityFromInt(row.Present), engine.NewQuantityFromInt(row.Eligible))
	return row
}

func trendRate(ctx context.Context, in Input, category engine.CategoryID, current engine.Metric) engine.Metric {
	if in.History == nil || in.TrendWindow < 1 || !current.Defined {
		return engine.UndefinedMetric(engine.ZeroQuantity(), engine.ZeroQuantity())
	}
	prior, err := in.History.Recent(ctx, category, MetricAttendanceRate, in.TrendWindow-1)
	if err != nil {
		prior = nil
	}
	return engine.MovingAverage(append(prior, current.Value), in.TrendWindow)
}

// departmentMetrics is the per-partition metric derivation handed to the
// engine's worker pool.
func departmentMetrics(category engine.CategoryID, states []engine.ResolvedState) ([]engine.MetricResult, []error) {
	if len(states) == 0 {
		return nil, nil
	}
	row := countRow(category, states)
	date := states[0].Date

	return []engine.MetricResult{
		{Category: category, Date: date, Name: MetricAttendanceRate, Metric: row.Rate},
		{Category: category, Date: date, Name: "present", Metric: engine.NewMetric(
			engine.NewQuantityFromInt(row.Present), engine.NewQuantityFromInt(row.Eligible),
			engine.NewQuantityFromInt(row.Present))},
		{Category: category, Date: date, Name: "eligible", Metric: engine.NewMetric(
			engine.NewQuantityFromInt(row.Eligible), engine.NewQuantityFromInt(row.Eligible),
			engine.NewQuantityFromInt(row.Eligible))},
	}, nil
}

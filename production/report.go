/*
report.go - Hourly line output report

PURPOSE:
  Per production line, one run computes:
    output          latest cumulative scan count for the day
    dynamic target  min(full-day quota, elapsed hours x line rate)
    pph             output / workers / elapsed hours
    efficiency      standard minutes earned vs a configured baseline

  The dynamic target is the whole point of the shift calendar: a line two
  hours into an eight-hour shift is measured against two hours of quota,
  not the full day's.

SCHEDULE HANDLING:
  A line with no shift window for the date is excluded from the report and
  counted as a stale-schedule warning; the run continues for other lines.

METRIC NAMES (as written to the sink):
  output, dynamic_target, pph, efficiency_pct
*/
package production

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/kpi-engine/engine"
)

// Sink series names.
const (
	MetricOutput        = "output"
	MetricDynamicTarget = "dynamic_target"
	MetricPPH           = "pph"
	MetricEfficiency    = "efficiency_pct"
)

var sixty = engine.NewQuantityFromInt(60)

// =============================================================================
// REPORT INPUT / OUTPUT
// =============================================================================

type Input struct {
	Date      engine.TimePoint
	AsOf      engine.TimePoint
	Masters   []engine.MasterRecord
	Scans     []engine.RawRecord
	Schedules engine.ScheduleSet
	Workers   int

	// BaselineMinutes is the externally configured efficiency baseline
	// (standard minutes per worker-hour at 100% efficiency).
	BaselineMinutes engine.Quantity
}

type LineRow struct {
	Line          engine.LineID
	Output        engine.Quantity
	ElapsedHours  engine.Quantity
	DynamicTarget engine.Quantity
	PPH           engine.Metric
	Efficiency    engine.Metric
}

type Report struct {
	Date     engine.TimePoint
	Rows     []LineRow
	Results  []engine.MetricResult
	Warnings engine.Warnings
}

// =============================================================================
// BUILD
// =============================================================================

// BuildReport runs the engine over the scan feed and assembles per-line rows.
func BuildReport(ctx context.Context, in Input) (*Report, error) {
	builder := &lineMetrics{
		asOf:      in.AsOf,
		schedules: in.Schedules,
		baseline:  in.BaselineMinutes,
	}

	out, err := engine.Run(ctx, engine.RunInput{
		Date:      in.Date,
		AsOf:      in.AsOf,
		Masters:   in.Masters,
		Batches:   []engine.FactBatch{{Schema: Schema{}, Records: in.Scans}},
		Schedules: in.Schedules,
		Classify:  ClassifyByLine,
		Workers:   in.Workers,
	}, builder.derive)
	if err != nil {
		return nil, err
	}

	report := &Report{Date: out.Date, Results: out.Results, Warnings: out.Warnings}

	builder.mu.Lock()
	report.Rows = builder.rows
	builder.mu.Unlock()
	sort.Slice(report.Rows, func(i, j int) bool {
		return report.Rows[i].Line < report.Rows[j].Line
	})

	return report, nil
}

// lineMetrics carries the per-run constants the partition function needs.
type lineMetrics struct {
	asOf      engine.TimePoint
	schedules engine.ScheduleSet
	baseline  engine.Quantity

	mu   sync.Mutex
	rows []LineRow
}

func (lm *lineMetrics) derive(category engine.CategoryID, states []engine.ResolvedState) ([]engine.MetricResult, []error) {
	var results []engine.MetricResult
	var errs []error

	for _, state := range states {
		master := state.Master
		window, err := lm.schedules.WindowFor(master.Line, state.Date)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		elapsedMin, scheduledMin := window.ElapsedAndScheduled(lm.asOf)
		elapsedHours := elapsedMin.Div(sixty)
		scheduledHours := scheduledMin.Div(sixty)

		output := engine.ZeroQuantity()
		if state.HasFact() && state.Fact.Payload.Quantity != nil {
			output = *state.Fact.Payload.Quantity
		}

		// Effective line rate is the per-worker planning rate scaled by
		// headcount. A zero FullTarget means "derive from the schedule".
		lineRate := master.TargetPerHour.Mul(engine.NewQuantityFromInt(master.Workers))
		fullTarget := master.FullTarget
		if fullTarget.IsZero() {
			fullTarget = scheduledHours.Mul(lineRate)
		}

		target := engine.DynamicTarget(fullTarget, lineRate, scheduledHours, elapsedHours)
		pph := engine.Productivity(output, master.Workers, elapsedHours)
		efficiency := engine.EfficiencyPercent(master.StandardMinutes, pph, lm.baseline)

		lm.mu.Lock()
		lm.rows = append(lm.rows, LineRow{
			Line:          master.Line,
			Output:        output,
			ElapsedHours:  elapsedHours,
			DynamicTarget: target,
			PPH:           pph,
			Efficiency:    efficiency,
		})
		lm.mu.Unlock()

		results = append(results,
			engine.MetricResult{Category: category, Date: state.Date, Name: MetricOutput,
				Metric: engine.NewMetric(output, fullTarget, output)},
			engine.MetricResult{Category: category, Date: state.Date, Name: MetricDynamicTarget,
				Metric: engine.NewMetric(target, fullTarget, target)},
			engine.MetricResult{Category: category, Date: state.Date, Name: MetricPPH, Metric: pph},
			engine.MetricResult{Category: category, Date: state.Date, Name: MetricEfficiency, Metric: efficiency},
		)
	}

	return results, errs
}

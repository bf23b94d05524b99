/*
report.go - Inspection/AQL report

PURPOSE:
  Per grouping (customer, building - whatever the classifier yields), one
  run computes BOTH pass-rate forms over inspected orders:
    pass_rate_count  fraction of orders passing
    pass_rate_qty    fraction of inspected volume passing
  plus a defect Pareto: the Top-N defect categories by failed-order count,
  each with its defect rate per total inspected units.

  The two pass rates are never collapsed: a single failed 10,000-unit order
  barely moves the count rate but craters the quantity rate, and both
  readings matter.

METRIC NAMES (as written to the sink):
  pass_rate_count, pass_rate_qty
*/
package quality

import (
	"context"
	"sort"

	"github.com/warp/kpi-engine/engine"
)

// Sink series names.
const (
	MetricPassRateCount = "pass_rate_count"
	MetricPassRateQty   = "pass_rate_qty"
)

// =============================================================================
// REPORT INPUT / OUTPUT
// =============================================================================

type Input struct {
	Date        engine.TimePoint
	AsOf        engine.TimePoint
	Masters     []engine.MasterRecord
	Inspections []engine.RawRecord
	Classify    engine.Classifier
	Workers     int

	// TopDefects bounds the Pareto ranking. Zero means rank everything.
	TopDefects int
}

type GroupRow struct {
	Category  engine.CategoryID
	Inspected int
	Passed    int
	PassRates engine.PassRateSet
}

// DefectRank is one Pareto entry: a defect category, how many failed orders
// carried it, and its rate against total inspected volume.
type DefectRank struct {
	Defect engine.CategoryID
	Count  engine.Quantity
	Rate   engine.Metric
}

type Report struct {
	Date     engine.TimePoint
	Rows     []GroupRow
	Pareto   []DefectRank
	Results  []engine.MetricResult
	Warnings engine.Warnings
}

// =============================================================================
// BUILD
// =============================================================================

// BuildReport runs the engine over the inspection feed and assembles the
// dual pass rates and the defect Pareto.
func BuildReport(ctx context.Context, in Input) (*Report, error) {
	out, err := engine.Run(ctx, engine.RunInput{
		Date:     in.Date,
		AsOf:     in.AsOf,
		Masters:  in.Masters,
		Batches:  []engine.FactBatch{{Schema: Schema{}, Records: in.Inspections}},
		Classify: in.Classify,
		Workers:  in.Workers,
	}, groupMetrics)
	if err != nil {
		return nil, err
	}

	report := &Report{Date: out.Date, Results: out.Results, Warnings: out.Warnings}

	for category, states := range out.ByCategory {
		report.Rows = append(report.Rows, groupRow(category, states))
	}
	sort.Slice(report.Rows, func(i, j int) bool {
		return report.Rows[i].Category < report.Rows[j].Category
	})

	topN := in.TopDefects
	if topN <= 0 {
		topN = len(out.States)
	}
	report.Pareto = defectPareto(out.States, topN)

	return report, nil
}

func samplesOf(states []engine.ResolvedState) []engine.PassSample {
	var samples []engine.PassSample
	for _, s := range states {
		// Orders with no inspection yet carry no disposition; they stay out
		// of the pass-rate partition but remain in the resolved state.
		if !s.HasFact() || s.Fact.Payload.Passed == nil || s.Fact.Payload.Quantity == nil {
			continue
		}
		samples = append(samples, engine.PassSample{
			Passed: *s.Fact.Payload.Passed,
			Units:  *s.Fact.Payload.Quantity,
		})
	}
	return samples
}

func groupRow(category engine.CategoryID, states []engine.ResolvedState) GroupRow {
	samples := samplesOf(states)
	row := GroupRow{
		Category:  category,
		Inspected: len(samples),
		PassRates: engine.PassRates(samples),
	}
	for _, sample := range samples {
		if sample.Passed {
			row.Passed++
		}
	}
	return row
}

// defectPareto ranks defect categories across all failed orders and derives
// each category's rate against the total inspected volume.
func defectPareto(states []engine.ResolvedState, topN int) []DefectRank {
	counts := make(map[engine.CategoryID]int)
	totalUnits := engine.ZeroQuantity()

	for _, s := range states {
		if !s.HasFact() || s.Fact.Payload.Passed == nil {
			continue
		}
		if s.Fact.Payload.Quantity != nil {
			totalUnits = totalUnits.Add(*s.Fact.Payload.Quantity)
		}
		if !*s.Fact.Payload.Passed && s.Fact.Payload.Defect != "" {
			counts[engine.CategoryID(s.Fact.Payload.Defect)]++
		}
	}

	ranking := make([]engine.CategoryCount, 0, len(counts))
	for defect, count := range counts {
		ranking = append(ranking, engine.CategoryCount{Category: defect, Count: engine.NewQuantityFromInt(count)})
	}

	var pareto []DefectRank
	for _, entry := range engine.TopN(ranking, topN) {
		pareto = append(pareto, DefectRank{
			Defect: entry.Category,
			Count:  entry.Count,
			Rate:   engine.Rate(entry.Count, totalUnits),
		})
	}
	return pareto
}

// groupMetrics is the per-partition metric derivation handed to the engine's
// worker pool.
func groupMetrics(category engine.CategoryID, states []engine.ResolvedState) ([]engine.MetricResult, []error) {
	if len(states) == 0 {
		return nil, nil
	}
	row := groupRow(category, states)
	date := states[0].Date

	return []engine.MetricResult{
		{Category: category, Date: date, Name: MetricPassRateCount, Metric: row.PassRates.ByCount},
		{Category: category, Date: date, Name: MetricPassRateQty, Metric: row.PassRates.ByQuantity},
	}, nil
}

/*
metric.go - Metric Engine: pure KPI derivation

PURPOSE:
  Stateless functions turning resolved state plus shift timing into rates,
  dynamic targets, and productivity/efficiency figures. Degenerate inputs
  (zero denominators, zero elapsed time, zero workers) produce an explicit
  Undefined metric value - never a panic, never a NaN, never an error.

UNDEFINED IS A VALUE:
  A Metric always carries its numerator and denominator; Defined is false
  when the denominator was zero. Callers decide whether Undefined rows are
  hidden or rendered as "no data". This keeps "zero defects" distinguishable
  from "defect data unavailable".

DUAL PASS RATES:
  Pass-rate computations always come in two parallel forms over the same
  partition: count-weighted (fraction of records passing) and
  quantity-weighted (fraction of total volume passing). The two can diverge
  sharply - one failed 10,000-unit order moves the quantity rate far more
  than the count rate - and both carry distinct business meaning, so the
  engine never collapses them into one number.

SEE ALSO:
  - shift.go:   elapsed/scheduled inputs for DynamicTarget and Productivity
  - ranking.go: Top-N and moving averages over metric outputs
*/
package engine

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// =============================================================================
// METRIC VALUE
// =============================================================================

// Metric is a derived KPI with its inputs attached. When Defined is false
// the Value is meaningless and must not be aggregated further.
type Metric struct {
	Numerator   Quantity
	Denominator Quantity
	Value       Quantity
	Defined     bool
}

// NewMetric builds a defined metric.
func NewMetric(num, den, value Quantity) Metric {
	return Metric{Numerator: num, Denominator: den, Value: value, Defined: true}
}

// UndefinedMetric marks a metric whose denominator was degenerate.
func UndefinedMetric(num, den Quantity) Metric {
	return Metric{Numerator: num, Denominator: den}
}

// =============================================================================
// RATE
// =============================================================================

// Rate returns numerator/denominator x 100 when the denominator is positive,
// and Undefined otherwise.
func Rate(numerator, denominator Quantity) Metric {
	if !denominator.IsPositive() {
		return UndefinedMetric(numerator, denominator)
	}
	value := Quantity{Value: numerator.Value.Div(denominator.Value).Mul(hundred)}
	return NewMetric(numerator, denominator, value)
}

// =============================================================================
// DYNAMIC TARGET
// =============================================================================

// DynamicTarget is the time-proportional quota for a line:
// min(fullPeriodTarget, elapsedHours x ratePerHour). It grows monotonically
// with elapsed time and is bounded above by the full-period target, so a
// line early in its shift is never measured against the full day's quota.
// Elapsed hours are clamped to scheduled hours before use.
func DynamicTarget(fullPeriodTarget, ratePerHour, scheduledHours, elapsedHours Quantity) Quantity {
	if elapsedHours.IsNegative() {
		elapsedHours = ZeroQuantity()
	}
	if elapsedHours.GreaterThan(scheduledHours) {
		elapsedHours = scheduledHours
	}
	earned := elapsedHours.Mul(ratePerHour)
	return earned.Min(fullPeriodTarget)
}

// =============================================================================
// PRODUCTIVITY / EFFICIENCY
// =============================================================================

// Productivity is output units per worker per elapsed hour (PPH).
// Undefined when workers or elapsed time are zero.
func Productivity(output Quantity, workers int, elapsedHours Quantity) Metric {
	den := NewQuantityFromInt(workers).Mul(elapsedHours)
	if workers <= 0 || !elapsedHours.IsPositive() {
		return UndefinedMetric(output, den)
	}
	value := output.Div(NewQuantityFromInt(workers)).Div(elapsedHours)
	return NewMetric(output, den, value)
}

// EfficiencyPercent compares earned standard content against a configured
// baseline: avgUnitContent x productivity / baseline x 100. The baseline
// constant is supplied by the caller, never hardcoded here.
// Undefined when productivity is Undefined or the baseline is zero.
func EfficiencyPercent(avgUnitContent Quantity, productivity Metric, baseline Quantity) Metric {
	earned := avgUnitContent.Mul(productivity.Value)
	if !productivity.Defined || !baseline.IsPositive() {
		return UndefinedMetric(earned, baseline)
	}
	value := Quantity{Value: earned.Value.Div(baseline.Value).Mul(hundred)}
	return NewMetric(earned, baseline, value)
}

// =============================================================================
// DUAL PASS RATES
// =============================================================================

// PassSample is one inspected record with its volume.
type PassSample struct {
	Passed bool
	Units  Quantity
}

// PassRateSet holds both weightings of the pass rate over one partition.
type PassRateSet struct {
	ByCount    Metric // fraction of records passing
	ByQuantity Metric // fraction of total volume passing
}

// PassRates computes both pass-rate forms over the same samples.
// Both are Undefined over an empty partition (or zero total volume for the
// quantity form).
func PassRates(samples []PassSample) PassRateSet {
	var passedCount, totalCount int
	passedUnits := ZeroQuantity()
	totalUnits := ZeroQuantity()

	for _, s := range samples {
		totalCount++
		totalUnits = totalUnits.Add(s.Units)
		if s.Passed {
			passedCount++
			passedUnits = passedUnits.Add(s.Units)
		}
	}

	return PassRateSet{
		ByCount:    Rate(NewQuantityFromInt(passedCount), NewQuantityFromInt(totalCount)),
		ByQuantity: Rate(passedUnits, totalUnits),
	}
}

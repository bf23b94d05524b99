/*
ranking.go - Pareto rankings and moving averages

PURPOSE:
  Top-N category rankings surface the few categories responsible for most
  impact (defect Pareto). Moving averages smooth per-run snapshots supplied
  by the external history store; the engine itself retains nothing between
  runs.

DETERMINISM:
  Ties in Top-N break by ascending category identifier. Source ordering of
  tied categories is otherwise unspecified upstream, so the sort must not
  rely on it.
*/
package engine

import "sort"

// =============================================================================
// TOP-N RANKING
// =============================================================================

// CategoryCount is one category's contribution total.
type CategoryCount struct {
	Category CategoryID
	Count    Quantity
}

// TopN orders categories by count descending and returns the first n.
// Equal counts order by CategoryID ascending. n larger than the input
// returns everything; n <= 0 returns nothing.
func TopN(counts []CategoryCount, n int) []CategoryCount {
	if n <= 0 {
		return nil
	}
	ranked := make([]CategoryCount, len(counts))
	copy(ranked, counts)

	sort.Slice(ranked, func(i, j int) bool {
		if !ranked[i].Count.Equal(ranked[j].Count) {
			return ranked[i].Count.GreaterThan(ranked[j].Count)
		}
		return ranked[i].Category < ranked[j].Category
	})

	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// =============================================================================
// MOVING AVERAGE
// =============================================================================

// MovingAverage returns the arithmetic mean of the most recent window
// snapshots, where history is ordered oldest first and includes the current
// snapshot last. Fewer than window points average over what is available -
// no zero-padding. An empty history is Undefined.
func MovingAverage(history []Quantity, window int) Metric {
	if window < 1 {
		window = 1
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}

	sum := ZeroQuantity()
	for _, q := range history {
		sum = sum.Add(q)
	}
	n := NewQuantityFromInt(len(history))
	if !n.IsPositive() {
		return UndefinedMetric(sum, n)
	}
	return NewMetric(sum, n, sum.Div(n))
}

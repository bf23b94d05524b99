// Package sink provides Sink implementations.
package sink

import (
	"context"
	"sync"

	"github.com/warp/kpi-engine/engine"
)

// =============================================================================
// MEMORY SINK - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	results map[key]engine.MetricResult
	// order remembers first-write order per series so Recent replays
	// snapshots oldest first.
	series   map[seriesKey][]key
	warnings map[string]engine.Warnings
}

type key struct {
	Category engine.CategoryID
	Date     string
	Name     string
}

type seriesKey struct {
	Category engine.CategoryID
	Name     string
}

func NewMemory() *Memory {
	return &Memory{
		results:  make(map[key]engine.MetricResult),
		series:   make(map[seriesKey][]key),
		warnings: make(map[string]engine.Warnings),
	}
}

// WriteRun stores one run's results. Rerunning a key overwrites it in place:
// dedup on rerun is this side's responsibility, not the engine's.
func (m *Memory) WriteRun(_ context.Context, runID string, results []engine.MetricResult, warnings engine.Warnings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range results {
		k := key{Category: r.Category, Date: r.Date.String(), Name: r.Name}
		if _, seen := m.results[k]; !seen {
			sk := seriesKey{Category: r.Category, Name: r.Name}
			m.series[sk] = append(m.series[sk], k)
		}
		m.results[k] = r
	}
	m.warnings[runID] = warnings
	return nil
}

// Recent returns up to limit defined snapshot values for a series, oldest
// first. Undefined results are skipped - there is no value to average.
func (m *Memory) Recent(_ context.Context, category engine.CategoryID, name string, limit int) ([]engine.Quantity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := m.series[seriesKey{Category: category, Name: name}]
	var values []engine.Quantity
	for _, k := range keys {
		r := m.results[k]
		if r.Metric.Defined {
			values = append(values, r.Metric.Value)
		}
	}
	if limit > 0 && len(values) > limit {
		values = values[len(values)-limit:]
	}
	return values, nil
}

// Get returns the stored result for a key, if any.
func (m *Memory) Get(category engine.CategoryID, date engine.TimePoint, name string) (engine.MetricResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.results[key{Category: category, Date: date.String(), Name: name}]
	return r, ok
}

// RunWarnings returns the warning counts recorded for a run.
func (m *Memory) RunWarnings(runID string) (engine.Warnings, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.warnings[runID]
	return w, ok
}

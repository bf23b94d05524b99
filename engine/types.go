/*
Package engine provides the core operational KPI aggregation engine.

PURPOSE:
  This package contains domain-agnostic types and algorithms for turning
  heterogeneous operational feeds into per-category KPI figures. Whether the
  feed is attendance clock events, production scans, or inspection results,
  the same engine handles normalization, identity resolution, shift-time
  arithmetic, and metric derivation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: A decimal-backed amount (counts, units, minutes, rates)
  - CanonicalFact: One timestamped observation about an entity from one source
  - MasterRecord: Slowly-changing reference data about an entity
  - ResolvedState: One row per (entity, analysis date) after resolution
  - MetricResult: A computed KPI keyed by (category, analysis date)

DESIGN PRINCIPLES:
  1. Purity: every computation is a function of its arguments; the engine
     never reads the clock or mutates shared state between runs
  2. Precision: uses decimal.Decimal to avoid floating-point drift in rates
  3. Type Safety: strong typing for IDs prevents mixing entity/line/category
  4. Explicit absence: a missing observation is a first-class state, never a
     substituted default

SEE ALSO:
  - adapter.go:  raw record normalization
  - resolver.go: master/fact correlation and latest-wins selection
  - shift.go:    scheduled vs elapsed shift time
  - metric.go:   rate, target, productivity and pass-rate derivation
  - ranking.go:  Top-N and moving averages
  - run.go:      single-pass orchestration
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITY - Decimal-backed amount
// =============================================================================

type Quantity struct {
	Value decimal.Decimal
}

func NewQuantity(value float64) Quantity {
	return Quantity{Value: decimal.NewFromFloat(value)}
}

func NewQuantityFromInt(value int) Quantity {
	return Quantity{Value: decimal.NewFromInt(int64(value))}
}

func ZeroQuantity() Quantity { return Quantity{Value: decimal.Zero} }

func (q Quantity) Add(b Quantity) Quantity         { return Quantity{Value: q.Value.Add(b.Value)} }
func (q Quantity) Sub(b Quantity) Quantity         { return Quantity{Value: q.Value.Sub(b.Value)} }
func (q Quantity) Mul(b Quantity) Quantity         { return Quantity{Value: q.Value.Mul(b.Value)} }
func (q Quantity) Div(b Quantity) Quantity         { return Quantity{Value: q.Value.Div(b.Value)} }
func (q Quantity) IsZero() bool                    { return q.Value.IsZero() }
func (q Quantity) IsPositive() bool                { return q.Value.IsPositive() }
func (q Quantity) IsNegative() bool                { return q.Value.IsNegative() }
func (q Quantity) GreaterThan(b Quantity) bool     { return q.Value.GreaterThan(b.Value) }
func (q Quantity) LessThan(b Quantity) bool        { return q.Value.LessThan(b.Value) }
func (q Quantity) Equal(b Quantity) bool           { return q.Value.Equal(b.Value) }
func (q Quantity) Min(b Quantity) Quantity         { if q.LessThan(b) { return q }; return b }
func (q Quantity) Max(b Quantity) Quantity         { if q.GreaterThan(b) { return q }; return b }
func (q Quantity) Float64() float64                { f, _ := q.Value.Float64(); return f }
func (q Quantity) String() string                  { return q.Value.String() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type LineID string
type CategoryID string
type SourceSystem string

// =============================================================================
// CANONICAL FACT - One observation about an entity from one source
// =============================================================================

// CanonicalFact is the shared shape every Source Adapter converges on.
// The payload attributes vary by feed (attendance status, produced quantity,
// inspection result); absent attributes stay nil rather than defaulting.
type CanonicalFact struct {
	EntityID   EntityID
	ObservedAt TimePoint
	Source     SourceSystem

	// ArrivalSeq is the position of the raw record within its batch.
	// It breaks observed_at ties deterministically: higher sequence wins.
	ArrivalSeq int

	Payload FactPayload
}

// FactPayload carries the feed-specific attributes of a fact. Pointer fields
// distinguish "no value supplied" from a zero value.
type FactPayload struct {
	Status   string    // attendance status, inspection disposition
	Quantity *Quantity // produced or inspected units
	Passed   *bool     // inspection outcome
	Defect   string    // defect category on a failed inspection
}

// =============================================================================
// MASTER RECORD - Slowly-changing reference data
// =============================================================================

// EntityKind distinguishes what an entity identity tracks. Each analytics
// use case resolves against its own kind; the engine itself treats all
// kinds uniformly.
type EntityKind string

const (
	KindWorker EntityKind = "worker"
	KindLine   EntityKind = "line"
	KindOrder  EntityKind = "order"
)

// MasterRecord describes an entity as of the analysis date: its grouping,
// activity status and any rate/target/content attributes the Metric Engine
// needs. Masters are supplied fresh on each run and never mutated here.
type MasterRecord struct {
	EntityID     EntityID
	Kind         EntityKind
	Name         string
	Line         LineID
	Department   string
	Active       bool
	TerminatedAt *TimePoint

	// Metric inputs (zero when not applicable to the entity kind).
	Workers         int      // headcount assigned to a line entity
	TargetPerHour   Quantity // planning rate (JPH)
	FullTarget      Quantity // full-period quota
	StandardMinutes Quantity // standard labor content per unit
}

// EligibleOn reports whether the entity counts toward denominators on the
// given analysis date. Termination at or before the date excludes it.
func (m MasterRecord) EligibleOn(date TimePoint) bool {
	if !m.Active && m.TerminatedAt == nil {
		return false
	}
	if m.TerminatedAt != nil && m.TerminatedAt.Day().BeforeOrEqual(date.Day()) {
		return false
	}
	return true
}

// TerminatedOn reports an exact calendar-day match between the termination
// timestamp and the analysis date (the attrition audit set).
func (m MasterRecord) TerminatedOn(date TimePoint) bool {
	return m.TerminatedAt != nil && m.TerminatedAt.SameDay(date)
}

// Classifier extracts the reporting category from a master record. It is
// injected by the caller so the resolver stays decoupled from any particular
// naming convention (department, building, line, customer).
type Classifier func(MasterRecord) CategoryID

// ClassifyByDepartment is the default classifier.
func ClassifyByDepartment(m MasterRecord) CategoryID {
	return CategoryID(m.Department)
}

// =============================================================================
// RESOLVED STATE - One row per (entity, analysis date)
// =============================================================================

// ResolvedState pairs a master record with the authoritative fact chosen for
// the analysis date, or with no fact at all. "No observation" is meaningful
// and distinct from an observation that says absent, so entities without a
// matching fact are never dropped.
type ResolvedState struct {
	Master   MasterRecord
	Category CategoryID
	Date     TimePoint
	Fact     *CanonicalFact
}

// HasFact reports whether an observation was resolved for this entity/date.
func (rs ResolvedState) HasFact() bool { return rs.Fact != nil }

// =============================================================================
// METRIC RESULT - Computed KPI keyed by (category, analysis date)
// =============================================================================

// MetricResult carries the numerator and denominator alongside the derived
// value so a consumer can always tell "zero" apart from "no data".
type MetricResult struct {
	Category CategoryID
	Date     TimePoint
	Name     string
	Metric   Metric
}

/*
adapter.go - Source Adapter: raw feed records to canonical facts

PURPOSE:
  Each upstream system (attendance feed, production scan feed, inspection
  feed) ships records in its own shape and its own date format. One
  SourceSchema implementation per feed normalizes those records into the
  single CanonicalFact shape, so nothing downstream ever branches on a
  source-specific format.

FAILURE ISOLATION:
  A record missing a resolvable entity identity, or carrying a malformed
  timestamp, fails with a SchemaError and is dropped INDIVIDUALLY - the
  batch continues. Optional fields absent in a raw record stay absent in
  the payload (nil pointer / empty string), never a substituted default.

SEE ALSO:
  - types.go:  CanonicalFact, FactPayload
  - errors.go: SchemaError
*/
package engine

import (
	"time"
)

// =============================================================================
// RAW RECORDS AND SCHEMAS
// =============================================================================

// RawRecord is one untyped record as delivered by an upstream feed.
type RawRecord map[string]string

// Get returns the value for a field and whether it was present and non-empty.
func (r RawRecord) Get(field string) (string, bool) {
	v, ok := r[field]
	return v, ok && v != ""
}

// SourceSchema normalizes one feed's raw records. Implementations live in the
// domain packages (attendance, production, quality); the engine only depends
// on this interface.
type SourceSchema interface {
	// Source identifies the upstream system.
	Source() SourceSystem

	// Normalize converts one raw record into a canonical fact. seq is the
	// record's position in its batch and becomes the fact's ArrivalSeq.
	// Returns a *SchemaError when the record cannot be normalized.
	Normalize(raw RawRecord, seq int) (CanonicalFact, error)
}

// =============================================================================
// BATCH NORMALIZATION
// =============================================================================

// BatchStats reports how a batch fared through normalization.
type BatchStats struct {
	Accepted int
	Dropped  int
}

// NormalizeBatch runs every record of a batch through the schema, isolating
// per-record failures. The returned facts keep input order; ArrivalSeq
// reflects the original batch position even when earlier records dropped.
func NormalizeBatch(batch []RawRecord, schema SourceSchema) ([]CanonicalFact, BatchStats) {
	facts := make([]CanonicalFact, 0, len(batch))
	var stats BatchStats

	for i, raw := range batch {
		fact, err := schema.Normalize(raw, i)
		if err != nil {
			stats.Dropped++
			continue
		}
		facts = append(facts, fact)
		stats.Accepted++
	}
	return facts, stats
}

// =============================================================================
// SHARED PARSING HELPERS
// =============================================================================

// ParseObservedAt parses a source timestamp in the schema's layout into the
// internal TimePoint. A malformed timestamp fails only the offending record.
func ParseObservedAt(source SourceSystem, seq int, field, value, layout string) (TimePoint, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return TimePoint{}, &SchemaError{Source: source, Seq: seq, Field: field, Reason: "has unparseable timestamp"}
	}
	return FromTime(t), nil
}

// RequireField fetches a mandatory raw field, failing the record when it is
// missing or empty.
func RequireField(raw RawRecord, source SourceSystem, seq int, field string) (string, error) {
	v, ok := raw.Get(field)
	if !ok {
		return "", &SchemaError{Source: source, Seq: seq, Field: field, Reason: "is missing"}
	}
	return v, nil
}

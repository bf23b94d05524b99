/*
errors.go - Centralized error types for the aggregation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The taxonomy separates record-level failures (isolated and counted,
  the batch continues) from run-level failures (the whole run aborts).

ERROR CATEGORIES:
  1. Record-level   - SchemaError, OrphanReferenceError: skip the record
  2. Line-level     - StaleScheduleError: skip the line for this run
  3. Run-level      - EmptyMasterSetError: abort, retry at the next tick

Note that a metric with a zero denominator is NOT an error anywhere in this
package: it is an Undefined metric value (see metric.go) and propagates as
data, never as a failure.

SEE ALSO:
  - adapter.go:  raises SchemaError per record
  - resolver.go: raises OrphanReferenceError and EmptyMasterSetError
  - shift.go:    raises StaleScheduleError
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSchema is returned when a raw record cannot be normalized into a
	// canonical fact. The offending record is dropped; the batch continues.
	ErrSchema = errors.New("malformed source record")

	// ErrOrphanReference is returned when a fact names an entity absent from
	// the master set. The fact is excluded and counted as a warning.
	ErrOrphanReference = errors.New("fact references unknown entity")

	// ErrStaleSchedule is returned when no shift schedule exists for a
	// line/date. The line is excluded from the run; the run continues.
	ErrStaleSchedule = errors.New("no shift schedule for line/date")

	// ErrEmptyMasterSet is returned when the master entity source is
	// wholesale empty for the run. This is the only fatal condition: the run
	// aborts and the external scheduler retries at the next tick.
	ErrEmptyMasterSet = errors.New("master entity set is empty")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SchemaError identifies which raw record failed and why.
type SchemaError struct {
	Source SourceSystem
	Seq    int    // position of the record in its batch
	Field  string // the field that failed to resolve
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in %s record %d: field %q %s", e.Source, e.Seq, e.Field, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// OrphanReferenceError identifies the fact whose entity is unknown.
type OrphanReferenceError struct {
	EntityID EntityID
	Source   SourceSystem
}

func (e *OrphanReferenceError) Error() string {
	return fmt.Sprintf("orphan fact: entity %s from %s has no master record", e.EntityID, e.Source)
}

func (e *OrphanReferenceError) Unwrap() error { return ErrOrphanReference }

// StaleScheduleError identifies the line/date with no schedule.
type StaleScheduleError struct {
	Line LineID
	Date TimePoint
}

func (e *StaleScheduleError) Error() string {
	return fmt.Sprintf("stale schedule: no shift window for line %s on %s", e.Line, e.Date)
}

func (e *StaleScheduleError) Unwrap() error { return ErrStaleSchedule }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsFatal returns true if the error must abort the entire run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrEmptyMasterSet)
}

// IsRecordLevel returns true if the error isolates a single record and the
// surrounding batch should continue.
func IsRecordLevel(err error) bool {
	return errors.Is(err, ErrSchema) || errors.Is(err, ErrOrphanReference)
}

/*
shift.go - Shift Calendar: scheduled vs elapsed work time

PURPOSE:
  Answers one question for the Metric Engine: of the minutes a line was
  scheduled to work today, how many have actually passed as of a given time?
  Dynamic targets and productivity both divide by elapsed time, so the
  arithmetic must freeze during break gaps and cap at the scheduled total.

ELAPSED SEMANTICS:
  - zero before the first segment starts
  - grows linearly inside a segment
  - frozen during the gap between segments
  - capped at the scheduled total once the last segment ends
  - never negative, for any as-of time

A day may have any number of segments; nothing here assumes two.

SEE ALSO:
  - metric.go: DynamicTarget and Productivity consume these figures
  - errors.go: StaleScheduleError
*/
package engine

// =============================================================================
// SHIFT WINDOW - Ordered work segments per line per day
// =============================================================================

// Segment is one contiguous stretch of scheduled work, [Start, End).
type Segment struct {
	Start TimePoint
	End   TimePoint
}

// Minutes returns the scheduled duration of the segment.
func (s Segment) Minutes() int {
	d := s.Start.MinutesUntil(s.End)
	if d < 0 {
		return 0
	}
	return d
}

// ShiftWindow is the schedule for one line on one day: ordered segments with
// break gaps between them. Gaps are implicit - whatever lies between two
// consecutive segments is break time.
type ShiftWindow struct {
	Line     LineID
	Date     TimePoint
	Segments []Segment
}

// ScheduledMinutes sums the work segments, excluding break gaps.
func (w ShiftWindow) ScheduledMinutes() int {
	total := 0
	for _, seg := range w.Segments {
		total += seg.Minutes()
	}
	return total
}

// ElapsedMinutes returns how much scheduled time has passed by asOf.
func (w ShiftWindow) ElapsedMinutes(asOf TimePoint) int {
	elapsed := 0
	for _, seg := range w.Segments {
		switch {
		case asOf.BeforeOrEqual(seg.Start):
			// Segment not started; later segments start even later.
			return elapsed
		case asOf.AfterOrEqual(seg.End):
			elapsed += seg.Minutes()
		default:
			elapsed += seg.Start.MinutesUntil(asOf)
			return elapsed
		}
	}
	return elapsed
}

// ElapsedAndScheduled returns both figures as quantities in minutes.
func (w ShiftWindow) ElapsedAndScheduled(asOf TimePoint) (elapsed, scheduled Quantity) {
	return NewQuantityFromInt(w.ElapsedMinutes(asOf)), NewQuantityFromInt(w.ScheduledMinutes())
}

// =============================================================================
// SCHEDULE SET - Per-run schedule lookup
// =============================================================================

// ScheduleSet holds the shift windows supplied for one run.
type ScheduleSet map[LineID]ShiftWindow

// WindowFor looks up the window for a line, failing with StaleScheduleError
// when none exists. Callers exclude the line from the run rather than
// failing the whole run.
func (s ScheduleSet) WindowFor(line LineID, date TimePoint) (ShiftWindow, error) {
	w, ok := s[line]
	if !ok || !w.Date.SameDay(date) {
		return ShiftWindow{}, &StaleScheduleError{Line: line, Date: date.Day()}
	}
	return w, nil
}

package engine

import (
	"time"
)

// =============================================================================
// TIME POINT - Explicit time abstraction (time is always a parameter here)
// =============================================================================

// TimePoint is the single internal time representation. Every upstream feed's
// date/time format converges to TimePoint at the Source Adapter boundary, so
// nothing downstream branches on source-specific formats.
//
// The engine NEVER calls time.Now(). The "current time" of a run is an
// explicit argument threaded through every operation, which makes each run
// reproducible from its inputs alone.
type TimePoint struct {
	Time        time.Time
	Granularity Granularity
}

type Granularity int

const (
	GranularityDay Granularity = iota
	GranularityMinute
)

// Constructors
func NewDate(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), Granularity: GranularityDay}
}

func NewMinute(year int, month time.Month, day, hour, minute int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, hour, minute, 0, 0, time.UTC), Granularity: GranularityMinute}
}

// FromTime wraps an absolute time at minute granularity.
func FromTime(t time.Time) TimePoint {
	return TimePoint{Time: t.UTC(), Granularity: GranularityMinute}
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

func (tp TimePoint) normalize() time.Time {
	switch tp.Granularity {
	case GranularityDay:
		return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
	case GranularityMinute:
		return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), tp.Time.Hour(), tp.Time.Minute(), 0, 0, time.UTC)
	default:
		return tp.Time
	}
}

// Day truncates to day granularity. Facts observed at any time during a day
// resolve against the same analysis date.
func (tp TimePoint) Day() TimePoint {
	return TimePoint{
		Time:        time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC),
		Granularity: GranularityDay,
	}
}

// SameDay reports whether both points fall on the same calendar day.
func (tp TimePoint) SameDay(other TimePoint) bool {
	return tp.Day().Equal(other.Day())
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint {
	return TimePoint{Time: tp.Time.AddDate(0, 0, n), Granularity: tp.Granularity}
}

func (tp TimePoint) AddMinutes(n int) TimePoint {
	return TimePoint{Time: tp.Time.Add(time.Duration(n) * time.Minute), Granularity: GranularityMinute}
}

// MinutesUntil returns the whole minutes from tp to other (negative if other
// is earlier).
func (tp TimePoint) MinutesUntil(other TimePoint) int {
	return int(other.normalize().Sub(tp.normalize()).Minutes())
}

func (tp TimePoint) IsZero() bool { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	switch tp.Granularity {
	case GranularityDay:
		return tp.Time.Format("2006-01-02")
	default:
		return tp.Time.Format("2006-01-02 15:04")
	}
}

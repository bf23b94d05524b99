// Package attendance implements the headcount/attendance analytics use case.
// It layers an attendance-feed source schema and a department report on top
// of the core engine.
package attendance

import (
	"github.com/warp/kpi-engine/engine"
)

// =============================================================================
// ATTENDANCE FEED SCHEMA
// =============================================================================

// SourceAttendance identifies the time-clock feed.
const SourceAttendance engine.SourceSystem = "attendance-feed"

// Clock statuses as they arrive from the feed.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLeave   = "leave"
)

// Schema normalizes raw clock events. Raw fields:
//
//	badge_id    employee badge (entity identity, mandatory)
//	status      present | absent | leave (mandatory)
//	clocked_at  "2006-01-02 15:04:05" (mandatory)
type Schema struct{}

var _ engine.SourceSchema = Schema{}

func (Schema) Source() engine.SourceSystem { return SourceAttendance }

func (s Schema) Normalize(raw engine.RawRecord, seq int) (engine.CanonicalFact, error) {
	badge, err := engine.RequireField(raw, s.Source(), seq, "badge_id")
	if err != nil {
		return engine.CanonicalFact{}, err
	}
	status, err := engine.RequireField(raw, s.Source(), seq, "status")
	if err != nil {
		return engine.CanonicalFact{}, err
	}
	stamp, err := engine.RequireField(raw, s.Source(), seq, "clocked_at")
	if err != nil {
		return engine.CanonicalFact{}, err
	}
	observedAt, err := engine.ParseObservedAt(s.Source(), seq, "clocked_at", stamp, "2006-01-02 15:04:05")
	if err != nil {
		return engine.CanonicalFact{}, err
	}

	return engine.CanonicalFact{
		EntityID:   engine.EntityID(badge),
		ObservedAt: observedAt,
		Source:     s.Source(),
		ArrivalSeq: seq,
		Payload:    engine.FactPayload{Status: status},
	}, nil
}

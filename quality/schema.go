// Package quality implements the inspection/AQL analytics use case:
// dual pass rates per grouping and a defect Pareto ranking.
package quality

import (
	"github.com/shopspring/decimal"

	"github.com/warp/kpi-engine/engine"
)

// =============================================================================
// INSPECTION FEED SCHEMA
// =============================================================================

// SourceInspections identifies the final-inspection feed.
const SourceInspections engine.SourceSystem = "inspection-feed"

// Inspection dispositions as they arrive from the feed.
const (
	ResultPass = "pass"
	ResultFail = "fail"
)

// Schema normalizes raw inspection results. An order re-inspected after a
// rework keeps only its newest disposition via latest-wins resolution.
// Raw fields:
//
//	order_no      purchase order (entity identity, mandatory)
//	result        pass | fail (mandatory)
//	units         inspected lot size (mandatory, numeric)
//	defect        defect category (mandatory on fail, ignored on pass)
//	inspected_at  "02/01/2006 15:04" (mandatory; the feed's legacy format)
type Schema struct{}

var _ engine.SourceSchema = Schema{}

func (Schema) Source() engine.SourceSystem { return SourceInspections }

func (s Schema) Normalize(raw engine.RawRecord, seq int) (engine.CanonicalFact, error) {
	order, err := engine.RequireField(raw, s.Source(), seq, "order_no")
	if err != nil {
		return engine.CanonicalFact{}, err
	}
	result, err := engine.RequireField(raw, s.Source(), seq, "result")
	if err != nil {
		return engine.CanonicalFact{}, err
	}
	if result != ResultPass && result != ResultFail {
		return engine.CanonicalFact{}, &engine.SchemaError{
			Source: s.Source(), Seq: seq, Field: "result", Reason: "is not pass or fail",
		}
	}
	unitsRaw, err := engine.RequireField(raw, s.Source(), seq, "units")
	if err != nil {
		return engine.CanonicalFact{}, err
	}
	units, err := decimal.NewFromString(unitsRaw)
	if err != nil || units.IsNegative() {
		return engine.CanonicalFact{}, &engine.SchemaError{
			Source: s.Source(), Seq: seq, Field: "units", Reason: "is not a non-negative number",
		}
	}
	stamp, err := engine.RequireField(raw, s.Source(), seq, "inspected_at")
	if err != nil {
		return engine.CanonicalFact{}, err
	}
	observedAt, err := engine.ParseObservedAt(s.Source(), seq, "inspected_at", stamp, "02/01/2006 15:04")
	if err != nil {
		return engine.CanonicalFact{}, err
	}

	passed := result == ResultPass
	quantity := engine.Quantity{Value: units}
	defect, _ := raw.Get("defect")
	if passed {
		defect = ""
	}

	return engine.CanonicalFact{
		EntityID:   engine.EntityID(order),
		ObservedAt: observedAt,
		Source:     s.Source(),
		ArrivalSeq: seq,
		Payload: engine.FactPayload{
			Status:   result,
			Quantity: &quantity,
			Passed:   &passed,
			Defect:   defect,
		},
	}, nil
}

// Package production implements the hourly output analytics use case:
// dynamic targets, PPH productivity, and efficiency per production line.
package production

import (
	"github.com/shopspring/decimal"

	"github.com/warp/kpi-engine/engine"
)

// =============================================================================
// PRODUCTION SCAN FEED SCHEMA
// =============================================================================

// SourceScans identifies the end-of-line scan counter feed.
const SourceScans engine.SourceSystem = "scan-feed"

// Schema normalizes raw scan counter snapshots. Each record is a cumulative
// counter reading for a line; latest-wins resolution keeps the newest one.
// Raw fields:
//
//	line        line identifier (entity identity, mandatory)
//	qty         cumulative units scanned today (mandatory, numeric)
//	scanned_at  "2006-01-02 15:04:05" (mandatory)
type Schema struct{}

var _ engine.SourceSchema = Schema{}

func (Schema) Source() engine.SourceSystem { return SourceScans }

func (s Schema) Normalize(raw engine.RawRecord, seq int) (engine.CanonicalFact, error) {
	line, err := engine.RequireField(raw, s.Source(), seq, "line")
	if err != nil {
		return engine.CanonicalFact{}, err
	}
	qtyRaw, err := engine.RequireField(raw, s.Source(), seq, "qty")
	if err != nil {
		return engine.CanonicalFact{}, err
	}
	qty, err := decimal.NewFromString(qtyRaw)
	if err != nil || qty.IsNegative() {
		return engine.CanonicalFact{}, &engine.SchemaError{
			Source: s.Source(), Seq: seq, Field: "qty", Reason: "is not a non-negative number",
		}
	}
	stamp, err := engine.RequireField(raw, s.Source(), seq, "scanned_at")
	if err != nil {
		return engine.CanonicalFact{}, err
	}
	observedAt, err := engine.ParseObservedAt(s.Source(), seq, "scanned_at", stamp, "2006-01-02 15:04:05")
	if err != nil {
		return engine.CanonicalFact{}, err
	}

	quantity := engine.Quantity{Value: qty}
	return engine.CanonicalFact{
		EntityID:   engine.EntityID(line),
		ObservedAt: observedAt,
		Source:     s.Source(),
		ArrivalSeq: seq,
		Payload:    engine.FactPayload{Quantity: &quantity},
	}, nil
}

// ClassifyByLine groups line entities by their own line id, so each line is
// its own reporting category.
func ClassifyByLine(m engine.MasterRecord) engine.CategoryID {
	return engine.CategoryID(m.Line)
}

/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal engine model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

UNDEFINED METRICS:
  A metric with a zero denominator serializes with "value": null and
  "defined": false, so clients can render "no data" instead of a fake zero.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"fmt"
	"time"

	"github.com/warp/kpi-engine/attendance"
	"github.com/warp/kpi-engine/engine"
	"github.com/warp/kpi-engine/production"
	"github.com/warp/kpi-engine/quality"
)

// =============================================================================
// SHARED DTOs
// =============================================================================

// MetricDTO serializes a metric with its inputs attached; Value is nil when
// the metric is undefined.
type MetricDTO struct {
	Numerator   string  `json:"numerator"`
	Denominator string  `json:"denominator"`
	Value       *string `json:"value"`
	Defined     bool    `json:"defined"`
}

func toMetricDTO(m engine.Metric) MetricDTO {
	dto := MetricDTO{
		Numerator:   m.Numerator.String(),
		Denominator: m.Denominator.String(),
		Defined:     m.Defined,
	}
	if m.Defined {
		v := m.Value.String()
		dto.Value = &v
	}
	return dto
}

type WarningsDTO struct {
	SchemaDrops    int `json:"schemaDrops"`
	OrphanFacts    int `json:"orphanFacts"`
	StaleSchedules int `json:"staleSchedules"`
}

func toWarningsDTO(w engine.Warnings) WarningsDTO {
	return WarningsDTO{
		SchemaDrops:    w.SchemaDrops,
		OrphanFacts:    w.OrphanFacts,
		StaleSchedules: w.StaleSchedules,
	}
}

// =============================================================================
// INGESTION REQUESTS
// =============================================================================

// MasterRequest upserts one reference entity.
type MasterRequest struct {
	EntityID        string  `json:"entityId"`
	Kind            string  `json:"kind"` // worker | line | order
	Name            string  `json:"name"`
	Line            string  `json:"line"`
	Department      string  `json:"department"`
	Active          bool    `json:"active"`
	TerminatedAt    *string `json:"terminatedAt"` // RFC3339, optional
	Workers         int     `json:"workers"`
	TargetPerHour   float64 `json:"targetPerHour"`
	FullTarget      float64 `json:"fullTarget"`
	StandardMinutes float64 `json:"standardMinutes"`
}

func (r MasterRequest) toMaster() (engine.MasterRecord, error) {
	switch engine.EntityKind(r.Kind) {
	case engine.KindWorker, engine.KindLine, engine.KindOrder:
	default:
		return engine.MasterRecord{}, fmt.Errorf("kind must be worker, line or order, got %q", r.Kind)
	}
	m := engine.MasterRecord{
		EntityID:        engine.EntityID(r.EntityID),
		Kind:            engine.EntityKind(r.Kind),
		Name:            r.Name,
		Line:            engine.LineID(r.Line),
		Department:      r.Department,
		Active:          r.Active,
		Workers:         r.Workers,
		TargetPerHour:   engine.NewQuantity(r.TargetPerHour),
		FullTarget:      engine.NewQuantity(r.FullTarget),
		StandardMinutes: engine.NewQuantity(r.StandardMinutes),
	}
	if r.TerminatedAt != nil {
		t, err := time.Parse(time.RFC3339, *r.TerminatedAt)
		if err != nil {
			return engine.MasterRecord{}, err
		}
		tp := engine.FromTime(t)
		m.TerminatedAt = &tp
	}
	return m, nil
}

// FeedRequest stages a batch of raw feed records for a date.
type FeedRequest struct {
	Date    string             `json:"date"` // 2006-01-02
	Records []engine.RawRecord `json:"records"`
}

// ScheduleRequest saves one line's shift window for a date.
type ScheduleRequest struct {
	Line     string              `json:"line"`
	Date     string              `json:"date"` // 2006-01-02
	Segments []SegmentRequestDTO `json:"segments"`
}

type SegmentRequestDTO struct {
	Start string `json:"start"` // RFC3339
	End   string `json:"end"`
}

// =============================================================================
// REPORT DTOs
// =============================================================================

type AttendanceRowDTO struct {
	Category  string    `json:"category"`
	Eligible  int       `json:"eligible"`
	Present   int       `json:"present"`
	Absent    int       `json:"absent"`
	NoRecord  int       `json:"noRecord"`
	Rate      MetricDTO `json:"rate"`
	TrendRate MetricDTO `json:"trendRate"`
}

type AttendanceReportDTO struct {
	Date            string             `json:"date"`
	Rows            []AttendanceRowDTO `json:"rows"`
	TerminatedToday int                `json:"terminatedToday"`
	Warnings        WarningsDTO        `json:"warnings"`
}

func toAttendanceDTO(r *attendance.Report) AttendanceReportDTO {
	dto := AttendanceReportDTO{
		Date:            r.Date.String(),
		TerminatedToday: len(r.TerminatedToday),
		Warnings:        toWarningsDTO(r.Warnings),
		Rows:            make([]AttendanceRowDTO, 0, len(r.Rows)),
	}
	for _, row := range r.Rows {
		dto.Rows = append(dto.Rows, AttendanceRowDTO{
			Category:  string(row.Category),
			Eligible:  row.Eligible,
			Present:   row.Present,
			Absent:    row.Absent,
			NoRecord:  row.NoRecord,
			Rate:      toMetricDTO(row.Rate),
			TrendRate: toMetricDTO(row.TrendRate),
		})
	}
	return dto
}

type ProductionRowDTO struct {
	Line          string    `json:"line"`
	Output        string    `json:"output"`
	ElapsedHours  string    `json:"elapsedHours"`
	DynamicTarget string    `json:"dynamicTarget"`
	PPH           MetricDTO `json:"pph"`
	Efficiency    MetricDTO `json:"efficiency"`
}

type ProductionReportDTO struct {
	Date     string             `json:"date"`
	Rows     []ProductionRowDTO `json:"rows"`
	Warnings WarningsDTO        `json:"warnings"`
}

func toProductionDTO(r *production.Report) ProductionReportDTO {
	dto := ProductionReportDTO{
		Date:     r.Date.String(),
		Warnings: toWarningsDTO(r.Warnings),
		Rows:     make([]ProductionRowDTO, 0, len(r.Rows)),
	}
	for _, row := range r.Rows {
		dto.Rows = append(dto.Rows, ProductionRowDTO{
			Line:          string(row.Line),
			Output:        row.Output.String(),
			ElapsedHours:  row.ElapsedHours.String(),
			DynamicTarget: row.DynamicTarget.String(),
			PPH:           toMetricDTO(row.PPH),
			Efficiency:    toMetricDTO(row.Efficiency),
		})
	}
	return dto
}

type QualityRowDTO struct {
	Category      string    `json:"category"`
	Inspected     int       `json:"inspected"`
	Passed        int       `json:"passed"`
	PassRateCount MetricDTO `json:"passRateCount"`
	PassRateQty   MetricDTO `json:"passRateQty"`
}

type DefectRankDTO struct {
	Defect string    `json:"defect"`
	Count  string    `json:"count"`
	Rate   MetricDTO `json:"rate"`
}

type QualityReportDTO struct {
	Date     string          `json:"date"`
	Rows     []QualityRowDTO `json:"rows"`
	Pareto   []DefectRankDTO `json:"pareto"`
	Warnings WarningsDTO     `json:"warnings"`
}

func toQualityDTO(r *quality.Report) QualityReportDTO {
	dto := QualityReportDTO{
		Date:     r.Date.String(),
		Warnings: toWarningsDTO(r.Warnings),
		Rows:     make([]QualityRowDTO, 0, len(r.Rows)),
		Pareto:   make([]DefectRankDTO, 0, len(r.Pareto)),
	}
	for _, row := range r.Rows {
		dto.Rows = append(dto.Rows, QualityRowDTO{
			Category:      string(row.Category),
			Inspected:     row.Inspected,
			Passed:        row.Passed,
			PassRateCount: toMetricDTO(row.PassRates.ByCount),
			PassRateQty:   toMetricDTO(row.PassRates.ByQuantity),
		})
	}
	for _, rank := range r.Pareto {
		dto.Pareto = append(dto.Pareto, DefectRankDTO{
			Defect: string(rank.Defect),
			Count:  rank.Count.String(),
			Rate:   toMetricDTO(rank.Rate),
		})
	}
	return dto
}

// RunResponse summarizes a triggered run.
type RunResponse struct {
	RunID    string      `json:"runId"`
	Date     string      `json:"date"`
	Results  int         `json:"results"`
	Warnings WarningsDTO `json:"warnings"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

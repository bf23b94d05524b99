/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	factory data for testing and demos. Each scenario creates masters,
	staged feed records, and shift schedules that demonstrate specific
	engine behaviors.

AVAILABLE SCENARIOS:

	mid-shift-line:   One line at its shift midpoint - dynamic target demo
	defect-pareto:    Inspected orders with a skewed defect distribution
	attrition-day:    Attendance with a same-day termination and an orphan

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Upsert master records
 3. Stage feed records for the demo date
 4. Save shift schedules
 5. The response names the trigger URL to run against the seeded data

USAGE VIA API:

	POST /api/scenarios/load
	{"scenarioId": "mid-shift-line"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: RunAll, TriggerRun
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/kpi-engine/attendance"
	"github.com/warp/kpi-engine/engine"
	"github.com/warp/kpi-engine/production"
	"github.com/warp/kpi-engine/quality"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "mid-shift-line",
		Name:        "Mid-Shift Line",
		Description: "One line halfway through a two-segment shift; the dynamic target sits at half the day's quota",
		Category:    "production",
	},
	{
		ID:          "defect-pareto",
		Name:        "Defect Pareto",
		Description: "Inspected orders where one defect category dominates the failures",
		Category:    "quality",
	},
	{
		ID:          "attrition-day",
		Name:        "Attrition Day",
		Description: "Attendance with a same-day termination plus an orphan clock event",
		Category:    "attendance",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			respondJSON(w, http.StatusOK, s)
			return
		}
	}
	respondJSON(w, http.StatusOK, nil)
}

// LoadScenario handles POST /api/scenarios/load.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenarioId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Seed against today so a plain scheduled tick picks the data up.
	day := engine.FromTime(h.Now()).Day()

	var err error
	switch req.ScenarioID {
	case "mid-shift-line":
		err = h.seedMidShiftLine(ctx, day)
	case "defect-pareto":
		err = h.seedDefectPareto(ctx, day)
	case "attrition-day":
		err = h.seedAttritionDay(ctx, day)
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown scenario %q", req.ScenarioID))
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.latestAttendance = nil
	h.latestProduction = nil
	h.latestQuality = nil
	h.mu.Unlock()

	midpoint := day.AddMinutes(13 * 60)
	respondJSON(w, http.StatusOK, map[string]string{
		"scenario": req.ScenarioID,
		"date":     day.String(),
		"trigger": fmt.Sprintf("/api/runs/trigger?date=%s&asof=%s",
			day, midpoint.Time.UTC().Format(time.RFC3339)),
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// feedStamp renders a timestamp within the demo day in the clock/scan feeds'
// wire format.
func feedStamp(day engine.TimePoint, hour, minute int) string {
	return day.AddMinutes(hour*60 + minute).Time.UTC().Format("2006-01-02 15:04:05")
}

// inspectionStamp renders the inspection feed's day-first legacy format.
func inspectionStamp(day engine.TimePoint, hour, minute int) string {
	return day.AddMinutes(hour*60 + minute).Time.UTC().Format("02/01/2006 15:04")
}

func (h *Handler) saveStandardShift(ctx context.Context, line engine.LineID, day engine.TimePoint) error {
	return h.Store.SaveSchedule(ctx, engine.ShiftWindow{
		Line: line,
		Date: day,
		Segments: []engine.Segment{
			{Start: day.AddMinutes(8 * 60), End: day.AddMinutes(12 * 60)},
			{Start: day.AddMinutes(13 * 60), End: day.AddMinutes(17 * 60)},
		},
	})
}

func (h *Handler) seedMidShiftLine(ctx context.Context, day engine.TimePoint) error {
	masters := []engine.MasterRecord{
		{EntityID: "L1", Kind: engine.KindLine, Name: "Line 1", Line: "L1", Active: true,
			Workers: 2, TargetPerHour: engine.NewQuantityFromInt(10),
			StandardMinutes: engine.NewQuantity(2.4)},
	}
	for _, m := range masters {
		if err := h.Store.UpsertMaster(ctx, m); err != nil {
			return err
		}
	}
	if err := h.saveStandardShift(ctx, "L1", day); err != nil {
		return err
	}
	return h.Store.StageFacts(ctx, production.SourceScans, day, []engine.RawRecord{
		{"line": "L1", "qty": "30", "scanned_at": feedStamp(day, 10, 0)},
		{"line": "L1", "qty": "75", "scanned_at": feedStamp(day, 12, 58)},
	})
}

func (h *Handler) seedDefectPareto(ctx context.Context, day engine.TimePoint) error {
	for i := 1; i <= 10; i++ {
		m := engine.MasterRecord{
			EntityID:   engine.EntityID(fmt.Sprintf("PO-%d", i)),
			Kind:       engine.KindOrder,
			Name:       fmt.Sprintf("PO-%d", i),
			Department: "acme",
			Active:     true,
		}
		if err := h.Store.UpsertMaster(ctx, m); err != nil {
			return err
		}
	}

	records := []engine.RawRecord{
		{"order_no": "PO-1", "result": "fail", "units": "100", "defect": "measurement", "inspected_at": inspectionStamp(day, 9, 0)},
		{"order_no": "PO-2", "result": "fail", "units": "100", "defect": "measurement", "inspected_at": inspectionStamp(day, 9, 30)},
		{"order_no": "PO-3", "result": "fail", "units": "100", "defect": "measurement", "inspected_at": inspectionStamp(day, 10, 0)},
		{"order_no": "PO-4", "result": "fail", "units": "100", "defect": "fabric", "inspected_at": inspectionStamp(day, 10, 30)},
		{"order_no": "PO-5", "result": "fail", "units": "100", "defect": "stitching", "inspected_at": inspectionStamp(day, 11, 0)},
	}
	for i := 6; i <= 10; i++ {
		records = append(records, engine.RawRecord{
			"order_no": fmt.Sprintf("PO-%d", i), "result": "pass", "units": "100",
			"inspected_at": inspectionStamp(day, 11, 30),
		})
	}
	return h.Store.StageFacts(ctx, quality.SourceInspections, day, records)
}

func (h *Handler) seedAttritionDay(ctx context.Context, day engine.TimePoint) error {
	terminated := day.AddMinutes(6 * 60)
	masters := []engine.MasterRecord{
		{EntityID: "E1", Kind: engine.KindWorker, Name: "Ana", Department: "sewing", Active: true},
		{EntityID: "E2", Kind: engine.KindWorker, Name: "Luis", Department: "sewing", Active: true},
		{EntityID: "E3", Kind: engine.KindWorker, Name: "Mei", Department: "sewing", Active: true, TerminatedAt: &terminated},
	}
	for _, m := range masters {
		if err := h.Store.UpsertMaster(ctx, m); err != nil {
			return err
		}
	}
	return h.Store.StageFacts(ctx, attendance.SourceAttendance, day, []engine.RawRecord{
		{"badge_id": "E1", "status": attendance.StatusPresent, "clocked_at": feedStamp(day, 7, 55)},
		{"badge_id": "E2", "status": attendance.StatusAbsent, "clocked_at": feedStamp(day, 8, 5)},
		// E9 has no master record; the run counts it as an orphan.
		{"badge_id": "E9", "status": attendance.StatusPresent, "clocked_at": feedStamp(day, 8, 10)},
	})
}

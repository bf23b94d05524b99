/*
handlers.go - HTTP API handlers for the KPI aggregation service

PURPOSE:
  Exposes the aggregation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the engine and
  domain report builders.

ENDPOINTS:
  Ingestion:
    POST   /api/masters                 Upsert master records
    POST   /api/feeds/{source}          Stage raw feed records for a date
    POST   /api/schedules               Save a line's shift window

  Runs:
    POST   /api/runs/trigger            Run all reports now (?date=&asof=)

  Reports:
    GET    /api/reports/attendance      Latest attendance report
    GET    /api/reports/production      Latest production report
    GET    /api/reports/quality         Latest quality report

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: No report computed yet
  - 503: Run aborted (empty master set) - retry after ingesting masters
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scheduler.go: Periodic run trigger
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/kpi-engine/attendance"
	"github.com/warp/kpi-engine/engine"
	"github.com/warp/kpi-engine/production"
	"github.com/warp/kpi-engine/quality"
	"github.com/warp/kpi-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store *sqlite.Store

	// BaselineMinutes is the externally configured efficiency baseline
	// handed to the production report.
	BaselineMinutes engine.Quantity

	// TrendWindow is the moving-average window for attendance rates.
	TrendWindow int

	// TopDefects bounds the quality Pareto.
	TopDefects int

	// Now supplies the ambient clock at the boundary; everything below the
	// API takes explicit time arguments.
	Now func() time.Time

	mu               sync.RWMutex
	currentScenario  string
	latestAttendance *attendance.Report
	latestProduction *production.Report
	latestQuality    *quality.Report
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:           store,
		BaselineMinutes: engine.NewQuantityFromInt(60),
		TrendWindow:     7,
		TopDefects:      5,
		Now:             time.Now,
	}
}

// =============================================================================
// INGESTION
// =============================================================================

// UpsertMasters handles POST /api/masters.
func (h *Handler) UpsertMasters(w http.ResponseWriter, r *http.Request) {
	var reqs []MasterRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}

	for _, req := range reqs {
		if req.EntityID == "" {
			respondError(w, http.StatusBadRequest, "entityId is required")
			return
		}
		master, err := req.toMaster()
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("entity %s: %v", req.EntityID, err))
			return
		}
		if err := h.Store.UpsertMaster(r.Context(), master); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]int{"upserted": len(reqs)})
}

// StageFeed handles POST /api/feeds/{source}.
func (h *Handler) StageFeed(w http.ResponseWriter, r *http.Request) {
	source := engine.SourceSystem(chi.URLParam(r, "source"))
	switch source {
	case attendance.SourceAttendance, production.SourceScans, quality.SourceInspections:
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown source %q", source))
		return
	}

	var req FeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Store.StageFacts(r.Context(), source, date, req.Records); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"staged": len(req.Records)})
}

// SaveSchedule handles POST /api/schedules.
func (h *Handler) SaveSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	window := engine.ShiftWindow{Line: engine.LineID(req.Line), Date: date}
	for _, seg := range req.Segments {
		start, err1 := time.Parse(time.RFC3339, seg.Start)
		end, err2 := time.Parse(time.RFC3339, seg.End)
		if err1 != nil || err2 != nil {
			respondError(w, http.StatusBadRequest, "segment timestamps must be RFC3339")
			return
		}
		if !end.After(start) {
			respondError(w, http.StatusBadRequest, "segment end must be after start")
			return
		}
		window.Segments = append(window.Segments, engine.Segment{
			Start: engine.FromTime(start),
			End:   engine.FromTime(end),
		})
	}

	if err := h.Store.SaveSchedule(r.Context(), window); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"line": req.Line, "date": date.String()})
}

// =============================================================================
// RUNS
// =============================================================================

// TriggerRun handles POST /api/runs/trigger. Optional query params date and
// asof override the ambient clock for reproducible replays.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	now := h.Now()
	asOf := engine.FromTime(now)
	if raw := r.URL.Query().Get("asof"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "asof must be RFC3339")
			return
		}
		asOf = engine.FromTime(t)
	}
	date := asOf.Day()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		date = parsed
	}

	summary, err := h.RunAll(r.Context(), date, asOf)
	if err != nil {
		if engine.IsFatal(err) {
			respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// RunAll executes all three reports against the staged inputs and writes
// their results to the sink under one run id.
func (h *Handler) RunAll(ctx context.Context, date, asOf engine.TimePoint) (*RunResponse, error) {
	masters, err := h.Store.Masters(ctx)
	if err != nil {
		return nil, err
	}
	// Total absence of reference data is the one fatal condition; the
	// scheduler retries at its next tick.
	if len(masters) == 0 {
		return nil, engine.ErrEmptyMasterSet
	}
	schedules, err := h.Store.Schedules(ctx, date)
	if err != nil {
		return nil, err
	}

	clockEvents, err := h.Store.Facts(ctx, attendance.SourceAttendance, date)
	if err != nil {
		return nil, err
	}
	scans, err := h.Store.Facts(ctx, production.SourceScans, date)
	if err != nil {
		return nil, err
	}
	inspections, err := h.Store.Facts(ctx, quality.SourceInspections, date)
	if err != nil {
		return nil, err
	}

	// A kind with no masters just skips its report; a deployment may run a
	// subset of the use cases.
	var (
		attendanceReport *attendance.Report
		productionReport *production.Report
		qualityReport    *quality.Report
		results          []engine.MetricResult
		warnings         engine.Warnings
	)

	if workers := mastersOfKind(masters, engine.KindWorker); len(workers) > 0 {
		attendanceReport, err = attendance.BuildReport(ctx, attendance.Input{
			Date:        date,
			AsOf:        asOf,
			Masters:     workers,
			ClockEvents: clockEvents,
			History:     h.Store,
			TrendWindow: h.TrendWindow,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, attendanceReport.Results...)
		addWarnings(&warnings, attendanceReport.Warnings)
	}

	if lines := mastersOfKind(masters, engine.KindLine); len(lines) > 0 {
		productionReport, err = production.BuildReport(ctx, production.Input{
			Date:            date,
			AsOf:            asOf,
			Masters:         lines,
			Scans:           scans,
			Schedules:       schedules,
			BaselineMinutes: h.BaselineMinutes,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, productionReport.Results...)
		addWarnings(&warnings, productionReport.Warnings)
	}

	if orders := mastersOfKind(masters, engine.KindOrder); len(orders) > 0 {
		qualityReport, err = quality.BuildReport(ctx, quality.Input{
			Date:        date,
			AsOf:        asOf,
			Masters:     orders,
			Inspections: inspections,
			TopDefects:  h.TopDefects,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, qualityReport.Results...)
		addWarnings(&warnings, qualityReport.Warnings)
	}

	runID := fmt.Sprintf("run-%s-%d", date, asOf.Time.Unix())

	if err := h.Store.WriteRun(ctx, runID, results, warnings); err != nil {
		return nil, err
	}

	h.mu.Lock()
	if attendanceReport != nil {
		h.latestAttendance = attendanceReport
	}
	if productionReport != nil {
		h.latestProduction = productionReport
	}
	if qualityReport != nil {
		h.latestQuality = qualityReport
	}
	h.mu.Unlock()

	log.Printf("[Run] %s completed: %d results, warnings %+v", runID, len(results), warnings)

	return &RunResponse{
		RunID:    runID,
		Date:     date.String(),
		Results:  len(results),
		Warnings: toWarningsDTO(warnings),
	}, nil
}

// The master table mixes entity kinds; each report resolves against only
// its own kind.
func mastersOfKind(all []engine.MasterRecord, kind engine.EntityKind) []engine.MasterRecord {
	var out []engine.MasterRecord
	for _, m := range all {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// =============================================================================
// REPORTS
// =============================================================================

// GetAttendanceReport handles GET /api/reports/attendance.
func (h *Handler) GetAttendanceReport(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	report := h.latestAttendance
	h.mu.RUnlock()
	if report == nil {
		respondError(w, http.StatusNotFound, "no attendance report computed yet")
		return
	}
	respondJSON(w, http.StatusOK, toAttendanceDTO(report))
}

// GetProductionReport handles GET /api/reports/production.
func (h *Handler) GetProductionReport(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	report := h.latestProduction
	h.mu.RUnlock()
	if report == nil {
		respondError(w, http.StatusNotFound, "no production report computed yet")
		return
	}
	respondJSON(w, http.StatusOK, toProductionDTO(report))
}

// GetQualityReport handles GET /api/reports/quality.
func (h *Handler) GetQualityReport(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	report := h.latestQuality
	h.mu.RUnlock()
	if report == nil {
		respondError(w, http.StatusNotFound, "no quality report computed yet")
		return
	}
	respondJSON(w, http.StatusOK, toQualityDTO(report))
}

// =============================================================================
// HELPERS
// =============================================================================

func addWarnings(total *engine.Warnings, w engine.Warnings) {
	total.SchemaDrops += w.SchemaDrops
	total.OrphanFacts += w.OrphanFacts
	total.StaleSchedules += w.StaleSchedules
}

func parseDate(raw string) (engine.TimePoint, error) {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return engine.TimePoint{}, errors.New("date must be 2006-01-02")
	}
	return engine.NewDate(t.Year(), t.Month(), t.Day()), nil
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

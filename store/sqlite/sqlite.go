/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces around the engine.

PURPOSE:
  The engine itself retains nothing between runs; this package is the
  surrounding application's storage. It plays three roles:

  Result Sink (engine.Sink):
    Receives each run's MetricResult sequence. Writes are append-only per
    run; rerunning the same (category, date, name) key upserts in place,
    which is exactly the dedup responsibility the engine delegates to the
    sink.

  History (engine.History):
    Serves recent defined snapshot values per (category, metric) series for
    moving-average computation.

  Input staging:
    Holds master records, staged raw feed records, and shift schedules
    ingested over the API, and plays the Master Data / Fact Stream / Shift
    Schedule Provider roles when a run is triggered.

KEY TABLES:
  masters:         reference entities with rate/target attributes
  raw_facts:       staged feed records (payload JSON, per source per date)
  schedules:       shift windows (segments JSON, per line per date)
  metric_results:  one row per (category, date, name), upserted per run
  runs:            run audit with structured warning counts

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block and a single writer proceeds at a time.

USAGE:
  store, err := sqlite.New("./data/kpi.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/sink.go:        interface definitions
  - engine/sink/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/kpi-engine/engine"
)

// Store implements engine.Sink, engine.History, and the input provider roles.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database and migrates the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Reset clears every table. Demo scenario loaders call this before seeding;
// never expose it on a production path.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"masters", "raw_facts", "schedules", "metric_results", "runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS masters (
		entity_id        TEXT PRIMARY KEY,
		kind             TEXT NOT NULL DEFAULT 'worker',
		name             TEXT NOT NULL,
		line             TEXT NOT NULL DEFAULT '',
		department       TEXT NOT NULL DEFAULT '',
		active           INTEGER NOT NULL DEFAULT 1,
		terminated_at    TEXT,
		workers          INTEGER NOT NULL DEFAULT 0,
		target_per_hour  TEXT NOT NULL DEFAULT '0',
		full_target      TEXT NOT NULL DEFAULT '0',
		standard_minutes TEXT NOT NULL DEFAULT '0'
	);

	CREATE TABLE IF NOT EXISTS raw_facts (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		source    TEXT NOT NULL,
		fact_date TEXT NOT NULL,
		payload   TEXT NOT NULL,
		staged_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_raw_facts_source_date ON raw_facts(source, fact_date);

	CREATE TABLE IF NOT EXISTS schedules (
		line       TEXT NOT NULL,
		shift_date TEXT NOT NULL,
		segments   TEXT NOT NULL,
		PRIMARY KEY (line, shift_date)
	);

	CREATE TABLE IF NOT EXISTS metric_results (
		category    TEXT NOT NULL,
		result_date TEXT NOT NULL,
		name        TEXT NOT NULL,
		numerator   TEXT NOT NULL,
		denominator TEXT NOT NULL,
		value       TEXT NOT NULL,
		defined     INTEGER NOT NULL,
		run_id      TEXT NOT NULL,
		written_at  TEXT NOT NULL,
		PRIMARY KEY (category, result_date, name)
	);
	CREATE INDEX IF NOT EXISTS idx_metric_results_series ON metric_results(category, name, result_date);

	CREATE TABLE IF NOT EXISTS runs (
		run_id          TEXT PRIMARY KEY,
		run_date        TEXT NOT NULL,
		schema_drops    INTEGER NOT NULL,
		orphan_facts    INTEGER NOT NULL,
		stale_schedules INTEGER NOT NULL,
		created_at      TEXT NOT NULL
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// =============================================================================
// RESULT SINK (engine.Sink)
// =============================================================================

// WriteRun upserts one run's results atomically. Reruns of the same key
// replace the prior row - dedup at the key lives here, not in the engine.
func (s *Store) WriteRun(ctx context.Context, runID string, results []engine.MetricResult, warnings engine.Warnings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO metric_results (category, result_date, name, numerator, denominator, value, defined, run_id, written_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(category, result_date, name) DO UPDATE SET
			numerator=excluded.numerator, denominator=excluded.denominator,
			value=excluded.value, defined=excluded.defined,
			run_id=excluded.run_id, written_at=excluded.written_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var runDate string
	for _, r := range results {
		runDate = r.Date.String()
		defined := 0
		if r.Metric.Defined {
			defined = 1
		}
		if _, err := stmt.ExecContext(ctx,
			string(r.Category), r.Date.String(), r.Name,
			r.Metric.Numerator.String(), r.Metric.Denominator.String(), r.Metric.Value.String(),
			defined, runID, now,
		); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, run_date, schema_drops, orphan_facts, stale_schedules, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			schema_drops=excluded.schema_drops, orphan_facts=excluded.orphan_facts,
			stale_schedules=excluded.stale_schedules`,
		runID, runDate, warnings.SchemaDrops, warnings.OrphanFacts, warnings.StaleSchedules, now,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// =============================================================================
// HISTORY (engine.History)
// =============================================================================

// Recent returns up to limit defined values for a series, oldest first.
func (s *Store) Recent(ctx context.Context, category engine.CategoryID, name string, limit int) ([]engine.Quantity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM (
			SELECT value, result_date FROM metric_results
			WHERE category = ? AND name = ? AND defined = 1
			ORDER BY result_date DESC LIMIT ?
		) ORDER BY result_date ASC`,
		string(category), name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []engine.Quantity
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		values = append(values, parseQuantity(raw))
	}
	return values, rows.Err()
}

// RunWarnings returns the warning counts recorded for a run.
func (s *Store) RunWarnings(ctx context.Context, runID string) (engine.Warnings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w engine.Warnings
	err := s.db.QueryRowContext(ctx, `
		SELECT schema_drops, orphan_facts, stale_schedules FROM runs WHERE run_id = ?`,
		runID).Scan(&w.SchemaDrops, &w.OrphanFacts, &w.StaleSchedules)
	if err != nil {
		return engine.Warnings{}, err
	}
	return w, nil
}

// =============================================================================
// MASTER DATA PROVIDER
// =============================================================================

// UpsertMaster writes one reference entity.
func (s *Store) UpsertMaster(ctx context.Context, m engine.MasterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var terminated any
	if m.TerminatedAt != nil {
		terminated = m.TerminatedAt.Time.UTC().Format(time.RFC3339)
	}
	active := 0
	if m.Active {
		active = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO masters (entity_id, kind, name, line, department, active, terminated_at, workers, target_per_hour, full_target, standard_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			kind=excluded.kind, name=excluded.name, line=excluded.line,
			department=excluded.department, active=excluded.active,
			terminated_at=excluded.terminated_at, workers=excluded.workers,
			target_per_hour=excluded.target_per_hour,
			full_target=excluded.full_target, standard_minutes=excluded.standard_minutes`,
		string(m.EntityID), string(m.Kind), m.Name, string(m.Line), m.Department, active, terminated,
		m.Workers, m.TargetPerHour.String(), m.FullTarget.String(), m.StandardMinutes.String())
	return err
}

// Masters returns the full master set for a run.
func (s *Store) Masters(ctx context.Context) ([]engine.MasterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, kind, name, line, department, active, terminated_at, workers, target_per_hour, full_target, standard_minutes
		FROM masters ORDER BY entity_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var masters []engine.MasterRecord
	for rows.Next() {
		var (
			m          engine.MasterRecord
			entityID   string
			kind       string
			line       string
			active     int
			terminated sql.NullString
			target     string
			full       string
			standard   string
		)
		if err := rows.Scan(&entityID, &kind, &m.Name, &line, &m.Department, &active, &terminated,
			&m.Workers, &target, &full, &standard); err != nil {
			return nil, err
		}
		m.EntityID = engine.EntityID(entityID)
		m.Kind = engine.EntityKind(kind)
		m.Line = engine.LineID(line)
		m.Active = active == 1
		if terminated.Valid {
			if t, err := time.Parse(time.RFC3339, terminated.String); err == nil {
				tp := engine.FromTime(t)
				m.TerminatedAt = &tp
			}
		}
		m.TargetPerHour = parseQuantity(target)
		m.FullTarget = parseQuantity(full)
		m.StandardMinutes = parseQuantity(standard)
		masters = append(masters, m)
	}
	return masters, rows.Err()
}

// =============================================================================
// FACT STREAM STAGING
// =============================================================================

// StageFacts appends raw feed records for a source/date. Staging is
// append-only; duplicates across stagings are expected and resolved by the
// engine's latest-wins policy, not here.
func (s *Store) StageFacts(ctx context.Context, source engine.SourceSystem, date engine.TimePoint, records []engine.RawRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO raw_facts (source, fact_date, payload, staged_at) VALUES (?, ?, ?, ?)`,
			string(source), date.Day().String(), string(payload), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Facts returns the staged records for a source/date in arrival order.
func (s *Store) Facts(ctx context.Context, source engine.SourceSystem, date engine.TimePoint) ([]engine.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM raw_facts WHERE source = ? AND fact_date = ? ORDER BY id`,
		string(source), date.Day().String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []engine.RawRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var record engine.RawRecord
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// =============================================================================
// SHIFT SCHEDULE PROVIDER
// =============================================================================

type segmentJSON struct {
	Start string `json:"start"` // RFC3339
	End   string `json:"end"`
}

// SaveSchedule writes the shift window for a line/date.
func (s *Store) SaveSchedule(ctx context.Context, w engine.ShiftWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	segments := make([]segmentJSON, 0, len(w.Segments))
	for _, seg := range w.Segments {
		segments = append(segments, segmentJSON{
			Start: seg.Start.Time.UTC().Format(time.RFC3339),
			End:   seg.End.Time.UTC().Format(time.RFC3339),
		})
	}
	payload, err := json.Marshal(segments)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules (line, shift_date, segments) VALUES (?, ?, ?)
		ON CONFLICT(line, shift_date) DO UPDATE SET segments=excluded.segments`,
		string(w.Line), w.Date.Day().String(), string(payload))
	return err
}

// Schedules returns the schedule set for a date. Lines with no row simply
// stay absent; the engine reports them as stale when consulted.
func (s *Store) Schedules(ctx context.Context, date engine.TimePoint) (engine.ScheduleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT line, segments FROM schedules WHERE shift_date = ?`, date.Day().String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(engine.ScheduleSet)
	for rows.Next() {
		var line, payload string
		if err := rows.Scan(&line, &payload); err != nil {
			return nil, err
		}
		var segments []segmentJSON
		if err := json.Unmarshal([]byte(payload), &segments); err != nil {
			return nil, err
		}
		window := engine.ShiftWindow{Line: engine.LineID(line), Date: date.Day()}
		for _, seg := range segments {
			start, err1 := time.Parse(time.RFC3339, seg.Start)
			end, err2 := time.Parse(time.RFC3339, seg.End)
			if err1 != nil || err2 != nil {
				continue
			}
			window.Segments = append(window.Segments, engine.Segment{
				Start: engine.FromTime(start),
				End:   engine.FromTime(end),
			})
		}
		set[engine.LineID(line)] = window
	}
	return set, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func parseQuantity(raw string) engine.Quantity {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return engine.ZeroQuantity()
	}
	return engine.Quantity{Value: d}
}

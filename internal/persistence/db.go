// Package persistence provides SQLite-based storage of computed grids.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/psexplorer/internal/diagram"
	"github.com/talgya/psexplorer/internal/engine"
	"github.com/talgya/psexplorer/internal/solver"
)

// ErrNoGrid is returned when the database holds no saved grid.
var ErrNoGrid = errors.New("persistence: no saved grid")

// Metadata keys.
const (
	MetaRunID  = "run_id"
	MetaTSpace = "tspace"
	MetaPSpace = "pspace"
	MetaSaved  = "saved_at"
)

// DB wraps a SQLite connection for explorer state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fields (
		position INTEGER PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		variance INTEGER NOT NULL,
		bad INTEGER NOT NULL,
		bad_reason TEXT NOT NULL,
		edges_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cells (
		idx INTEGER PRIMARY KEY,
		row_ix INTEGER NOT NULL,
		col_ix INTEGER NOT NULL,
		status INTEGER NOT NULL,
		field_key TEXT NOT NULL,
		excluded INTEGER NOT NULL,
		elapsed REAL,
		result_json TEXT
	);

	CREATE TABLE IF NOT EXISTS sweeps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		total INTEGER NOT NULL,
		solved INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		excluded INTEGER NOT NULL,
		repaired INTEGER NOT NULL,
		exhausted INTEGER NOT NULL,
		attempts INTEGER NOT NULL,
		ambiguous INTEGER NOT NULL,
		unreachable INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS explorer_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cells_status ON cells(status);
	CREATE INDEX IF NOT EXISTS idx_sweeps_run ON sweeps(run_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// NewRunID returns a fresh identifier for one explorer run.
func NewRunID() string {
	return uuid.NewString()
}

// SaveFields writes the field table (full replace).
func (db *DB) SaveFields(fields []*diagram.Field) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM fields"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO fields
		(position, key, variance, bad, bad_reason, edges_json)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, f := range fields {
		edgesJSON, _ := json.Marshal(f.Edges)
		if _, err := stmt.Exec(i, f.Key.String(), f.Variance, f.Bad, f.BadReason, string(edgesJSON)); err != nil {
			return fmt.Errorf("insert field %q: %w", f.Key, err)
		}
	}

	return tx.Commit()
}

// FieldRecord is one stored field row.
type FieldRecord struct {
	Position  int    `db:"position"`
	Key       string `db:"key"`
	Variance  int    `db:"variance"`
	Bad       bool   `db:"bad"`
	BadReason string `db:"bad_reason"`
	EdgesJSON string `db:"edges_json"`
}

// LoadFields returns the stored fields in creation order.
func (db *DB) LoadFields() ([]FieldRecord, error) {
	var rows []FieldRecord
	err := db.conn.Select(&rows,
		"SELECT position, key, variance, bad, bad_reason, edges_json FROM fields ORDER BY position")
	return rows, err
}

// SaveGrid writes the lattice and every cell (full replace).
func (db *DB) SaveGrid(g *diagram.Grid) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM cells"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO cells
		(idx, row_ix, col_ix, status, field_key, excluded, elapsed, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range g.Cells {
		c := &g.Cells[i]
		r, col := g.Lattice.Coord(i)

		var elapsed sql.NullFloat64
		if !math.IsNaN(c.Elapsed) {
			elapsed = sql.NullFloat64{Float64: c.Elapsed, Valid: true}
		}
		var result sql.NullString
		if c.Result != nil {
			raw, err := json.Marshal(c.Result)
			if err != nil {
				return fmt.Errorf("encode cell %d: %w", i, err)
			}
			result = sql.NullString{String: string(raw), Valid: true}
		}

		if _, err := stmt.Exec(i, r, col, int(c.Status), c.Key.String(), c.Excluded, elapsed, result); err != nil {
			return fmt.Errorf("insert cell %d: %w", i, err)
		}
	}

	tspace, _ := json.Marshal(g.Lattice.TSpace)
	pspace, _ := json.Marshal(g.Lattice.PSpace)
	for k, v := range map[string]string{MetaTSpace: string(tspace), MetaPSpace: string(pspace)} {
		if _, err := tx.Exec("INSERT OR REPLACE INTO explorer_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("save %s: %w", k, err)
		}
	}

	return tx.Commit()
}

type cellRow struct {
	Idx      int             `db:"idx"`
	Status   int             `db:"status"`
	FieldKey string          `db:"field_key"`
	Excluded bool            `db:"excluded"`
	Elapsed  sql.NullFloat64 `db:"elapsed"`
	Result   sql.NullString  `db:"result_json"`
}

// LoadGrid restores the saved lattice and cells.
func (db *DB) LoadGrid() (*diagram.Grid, error) {
	var lat diagram.Lattice
	for key, dst := range map[string]*[]float64{MetaTSpace: &lat.TSpace, MetaPSpace: &lat.PSpace} {
		raw, err := db.GetMeta(key)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoGrid
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
	}
	if lat.Size() == 0 {
		return nil, ErrNoGrid
	}

	var rows []cellRow
	if err := db.conn.Select(&rows,
		"SELECT idx, status, field_key, excluded, elapsed, result_json FROM cells ORDER BY idx"); err != nil {
		return nil, fmt.Errorf("load cells: %w", err)
	}
	if len(rows) != lat.Size() {
		return nil, fmt.Errorf("load cells: %d rows for a %dx%d lattice", len(rows), lat.Rows(), lat.Cols())
	}

	g := diagram.NewGrid(&lat)
	for _, row := range rows {
		if row.Idx < 0 || row.Idx >= len(g.Cells) {
			return nil, fmt.Errorf("load cells: index %d out of range", row.Idx)
		}
		c := &g.Cells[row.Idx]
		c.Status = diagram.Status(row.Status)
		c.Key = diagram.FieldKey(row.FieldKey)
		c.Excluded = row.Excluded
		if row.Elapsed.Valid {
			c.Elapsed = row.Elapsed.Float64
		}
		if row.Result.Valid {
			var res solver.Result
			if err := json.Unmarshal([]byte(row.Result.String), &res); err != nil {
				return nil, fmt.Errorf("decode cell %d: %w", row.Idx, err)
			}
			c.Result = &res
		}
	}
	return g, nil
}

// SweepRecord is one stored sweep summary.
type SweepRecord struct {
	ID          int64  `db:"id" json:"id"`
	RunID       string `db:"run_id" json:"run_id"`
	Kind        string `db:"kind" json:"kind"`
	Total       int    `db:"total" json:"total"`
	Solved      int    `db:"solved" json:"solved"`
	Failed      int    `db:"failed" json:"failed"`
	Excluded    int    `db:"excluded" json:"excluded"`
	Repaired    int    `db:"repaired" json:"repaired"`
	Exhausted   int    `db:"exhausted" json:"exhausted"`
	Attempts    int    `db:"attempts" json:"attempts"`
	Ambiguous   int    `db:"ambiguous" json:"ambiguous"`
	Unreachable int    `db:"unreachable" json:"unreachable"`
	DurationMS  int64  `db:"duration_ms" json:"duration_ms"`
	CreatedAt   string `db:"created_at" json:"created_at"`
}

// SaveSweep appends a sweep summary.
func (db *DB) SaveSweep(runID, kind string, s engine.Summary) error {
	_, err := db.conn.Exec(`INSERT INTO sweeps
		(run_id, kind, total, solved, failed, excluded, repaired, exhausted,
		 attempts, ambiguous, unreachable, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, kind, s.Total, s.Solved, s.Failed, s.Excluded, s.Repaired, s.Exhausted,
		s.Attempts, s.Ambiguous, s.Unreachable, s.Duration.Milliseconds(),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// RecentSweeps returns the most recent N sweep summaries.
func (db *DB) RecentSweeps(limit int) ([]SweepRecord, error) {
	var out []SweepRecord
	err := db.conn.Select(&out,
		`SELECT id, run_id, kind, total, solved, failed, excluded, repaired, exhausted,
		        attempts, ambiguous, unreachable, duration_ms, created_at
		 FROM sweeps ORDER BY id DESC LIMIT ?`,
		limit,
	)
	return out, err
}

// SaveMeta stores a key-value pair in explorer metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO explorer_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM explorer_meta WHERE key = ?", key)
	return value, err
}

// SaveSession performs a full save of the session's fields and grid.
func (db *DB) SaveSession(s *engine.Session, runID string) error {
	if !s.Gridded() {
		return engine.ErrNotGridded
	}
	slog.Info("saving session", "fields", len(s.Index.All()), "cells", len(s.Grid.Cells))

	if err := db.SaveFields(s.Index.All()); err != nil {
		return fmt.Errorf("save fields: %w", err)
	}
	if err := db.SaveGrid(s.Grid); err != nil {
		return fmt.Errorf("save grid: %w", err)
	}
	if err := db.SaveMeta(MetaRunID, runID); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := db.SaveMeta(MetaSaved, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("session saved", "run_id", runID)
	return nil
}

// LoadSession restores the saved grid and field variances into s.
func (db *DB) LoadSession(s *engine.Session) error {
	g, err := db.LoadGrid()
	if err != nil {
		return err
	}
	records, err := db.LoadFields()
	if err != nil {
		return fmt.Errorf("load fields: %w", err)
	}
	for _, rec := range records {
		if f, ok := s.Index.Field(diagram.FieldKey(rec.Key)); ok && f.Variance <= 0 {
			f.Variance = rec.Variance
		}
	}
	s.Restore(g)
	slog.Info("session restored", "cells", len(g.Cells), "solved", g.Count(diagram.StatusSolved))
	return nil
}

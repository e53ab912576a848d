// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists every pipeline artifact in a single SQLite
// database: projects, papers, ideas, hypotheses, experiment designs,
// experiment runs, run checkpoints, analyses, pipeline runs, and stage
// checkpoints. Writes are full-record replaces (last write wins); the
// store enforces referential integrity and status transitions at the
// application level but treats JSON-shaped payloads as opaque.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const dbFile = "research.db"

// Sentinel errors surfaced by store operations. Callers match them with
// errors.Is.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrMissingParent indicates a child write whose declared parent id
	// does not exist.
	ErrMissingParent = errors.New("parent record not found")

	// ErrInvalidTransition indicates a status change the entity's
	// lifecycle does not permit.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store manages the research SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the research database at dataDir/research.db and
// creates the schema if it does not exist.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so sibling components (the budget
// guard) can keep their own tables in the same file.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			domain TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			metadata TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			source_id TEXT,
			title TEXT NOT NULL,
			authors TEXT,
			abstract TEXT,
			published_date TEXT,
			relevance_score REAL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_project ON papers(project_id)`,
		`CREATE TABLE IF NOT EXISTS ideas (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			title TEXT NOT NULL,
			summary TEXT,
			novelty REAL NOT NULL,
			feasibility REAL NOT NULL,
			impact REAL NOT NULL,
			overall REAL NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ideas_project ON ideas(project_id)`,
		`CREATE TABLE IF NOT EXISTS hypotheses (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			idea_id TEXT,
			title TEXT NOT NULL,
			statement TEXT NOT NULL,
			null_statement TEXT,
			independent_vars TEXT NOT NULL,
			dependent_vars TEXT NOT NULL,
			control_vars TEXT,
			metrics TEXT,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hypotheses_project ON hypotheses(project_id, status)`,
		`CREATE TABLE IF NOT EXISTS experiment_designs (
			id TEXT PRIMARY KEY,
			hypothesis_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			methodology TEXT NOT NULL,
			datasets TEXT,
			baselines TEXT,
			resources TEXT,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_designs_hypothesis ON experiment_designs(hypothesis_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_designs_project ON experiment_designs(project_id)`,
		`CREATE TABLE IF NOT EXISTS experiment_runs (
			id TEXT PRIMARY KEY,
			design_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			results TEXT,
			cost_usd REAL NOT NULL DEFAULT 0,
			error TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_design ON experiment_runs(design_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_project ON experiment_runs(project_id)`,
		`CREATE TABLE IF NOT EXISTS experiment_checkpoints (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step TEXT NOT NULL,
			snapshot TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON experiment_checkpoints(run_id)`,
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			hypothesis_id TEXT,
			p_value REAL,
			effect_size REAL,
			interval TEXT,
			baselines TEXT,
			insights TEXT,
			conclusions TEXT,
			decision TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_run ON analyses(run_id, status)`,
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			error TEXT,
			total_cost_usd REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_project ON pipeline_runs(project_id, status)`,
		`CREATE TABLE IF NOT EXISTS pipeline_checkpoints (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			artifact_id TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_checkpoints_project ON pipeline_checkpoints(project_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// parentExists reports whether a row with the given id exists in table.
// Table names are compile-time constants, never caller input.
func (s *Store) parentExists(table, id string) (bool, error) {
	var n int
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE id = ?`, table)
	if err := s.db.QueryRow(query, id).Scan(&n); err != nil {
		return false, fmt.Errorf("checking %s parent: %w", table, err)
	}
	return n > 0, nil
}

// requireParent returns ErrMissingParent when the declared parent id does
// not exist.
func (s *Store) requireParent(table, id string) error {
	ok, err := s.parentExists(table, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %q: %w", table, id, ErrMissingParent)
	}
	return nil
}

// currentStatus fetches the status column for an existing row, or
// ErrNotFound when the row is absent.
func (s *Store) currentStatus(table, id string) (string, error) {
	var status string
	query := fmt.Sprintf(`SELECT status FROM %s WHERE id = ?`, table)
	err := s.db.QueryRow(query, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading %s status: %w", table, err)
	}
	return status, nil
}

// checkTransition validates a status change against an allowed-transitions
// map. A new record (ErrNotFound) or an unchanged status always passes.
func (s *Store) checkTransition(table, id, next string, allowed map[string][]string) error {
	cur, err := s.currentStatus(table, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if cur == next {
		return nil
	}
	for _, t := range allowed[cur] {
		if t == next {
			return nil
		}
	}
	return fmt.Errorf("%s %q: %s -> %s: %w", table, id, cur, next, ErrInvalidTransition)
}

func marshalJSON(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalJSON(data string, v any) {
	if data == "" {
		return
	}
	// Stored payloads were produced by marshalJSON; a parse failure here
	// leaves the zero value rather than failing the read.
	_ = json.Unmarshal([]byte(data), v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

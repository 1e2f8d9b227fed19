// Package manifest tracks pipeline runs in SQLite: which stages ran, what
// they read, and what they produced. Stage freshness is decided by content
// fingerprints, never by file existence alone.
package manifest

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	status      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS stage_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	stage       TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	status      TEXT NOT NULL,
	detail      TEXT
);
CREATE TABLE IF NOT EXISTS artifacts (
	path       TEXT PRIMARY KEY,
	sha256     TEXT NOT NULL,
	bytes      INTEGER NOT NULL,
	stage      TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS stage_inputs (
	stage  TEXT NOT NULL,
	path   TEXT NOT NULL,
	sha256 TEXT NOT NULL,
	run_id TEXT NOT NULL,
	PRIMARY KEY (stage, path)
);
`

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Run is one pipeline invocation.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // Zero while running.
	Status     string
}

// StageRun is one stage execution within a run.
type StageRun struct {
	RunID      string
	Stage      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Detail     string
}

// Store is the manifest database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) a manifest database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest db: %w", err)
	}
	// WAL keeps the CLI and the server readable concurrently.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create manifest schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records a new running pipeline invocation.
func (s *Store) BeginRun() (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Status:    StatusRunning,
	}
	_, err := s.db.Exec(
		"INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)",
		run.ID, run.StartedAt, run.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// FinishRun marks a run finished with the given status.
func (s *Store) FinishRun(runID, status string) error {
	res, err := s.db.Exec(
		"UPDATE runs SET finished_at = ?, status = ? WHERE id = ?",
		time.Now().UTC(), status, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// RecordStage appends one stage execution to a run.
func (s *Store) RecordStage(sr StageRun) error {
	_, err := s.db.Exec(
		"INSERT INTO stage_runs (run_id, stage, started_at, finished_at, status, detail) VALUES (?, ?, ?, ?, ?, ?)",
		sr.RunID, sr.Stage, sr.StartedAt, sr.FinishedAt, sr.Status, sr.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record stage %s: %w", sr.Stage, err)
	}
	return nil
}

// RecordArtifact fingerprints a produced file and upserts it. The latest
// producer wins.
func (s *Store) RecordArtifact(runID, stage, path string) error {
	sum, size, err := fileSHA256(path)
	if err != nil {
		return fmt.Errorf("failed to fingerprint artifact %s: %w", path, err)
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO artifacts (path, sha256, bytes, stage, run_id, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		path, sum, size, stage, runID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record artifact %s: %w", path, err)
	}
	return nil
}

// RecordInputs fingerprints the files a stage consumed. Previously recorded
// inputs for the stage are replaced so the set always reflects the last run.
func (s *Store) RecordInputs(runID, stage string, paths []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM stage_inputs WHERE stage = ?", stage); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear stage inputs: %w", err)
	}
	for _, path := range paths {
		sum, _, err := fileSHA256(path)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to fingerprint input %s: %w", path, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO stage_inputs (stage, path, sha256, run_id) VALUES (?, ?, ?, ?)",
			stage, path, sum, runID,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record input %s: %w", path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit inputs: %w", err)
	}
	return nil
}

// UpToDate reports whether a stage can be skipped: every declared output
// must exist with its recorded fingerprint, and every declared input must
// still hash to what the stage last consumed. Any gap or drift means false.
func (s *Store) UpToDate(stage string, inputs, outputs []string) (bool, error) {
	for _, path := range outputs {
		var recorded string
		err := s.db.QueryRow("SELECT sha256 FROM artifacts WHERE path = ?", path).Scan(&recorded)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to look up artifact %s: %w", path, err)
		}
		current, _, err := fileSHA256(path)
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
		if current != recorded {
			return false, nil
		}
	}

	rows, err := s.db.Query("SELECT path, sha256 FROM stage_inputs WHERE stage = ?", stage)
	if err != nil {
		return false, fmt.Errorf("failed to look up stage inputs: %w", err)
	}
	recorded := make(map[string]string)
	for rows.Next() {
		var path, sum string
		if err := rows.Scan(&path, &sum); err != nil {
			rows.Close()
			return false, err
		}
		recorded[path] = sum
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}

	if len(recorded) != len(inputs) {
		return false, nil
	}
	for _, path := range inputs {
		want, ok := recorded[path]
		if !ok {
			return false, nil
		}
		current, _, err := fileSHA256(path)
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
		if current != want {
			return false, nil
		}
	}
	return true, nil
}

// Runs lists finished and running invocations, newest first.
func (s *Store) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, started_at, finished_at, status FROM runs ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Status); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StageRuns lists the stage executions of one run in execution order.
func (s *Store) StageRuns(runID string) ([]StageRun, error) {
	rows, err := s.db.Query(
		"SELECT run_id, stage, started_at, finished_at, status, detail FROM stage_runs WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage runs: %w", err)
	}
	defer rows.Close()

	var out []StageRun
	for rows.Next() {
		var sr StageRun
		if err := rows.Scan(&sr.RunID, &sr.Stage, &sr.StartedAt, &sr.FinishedAt, &sr.Status, &sr.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan stage run: %w", err)
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// fileSHA256 hashes a file's contents.
func fileSHA256(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

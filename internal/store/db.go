// Package store keeps the run history in SQLite: one row per fetch or
// upload run plus every job status poll made during an upload.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"incident-pipeline/internal/model"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 50

// Store is the run history database. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	// Create tables if not exists
	runTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		source TEXT,
		output_path TEXT,
		status TEXT NOT NULL,
		pages INTEGER NOT NULL DEFAULT 0,
		records_fetched INTEGER NOT NULL DEFAULT 0,
		rows_written INTEGER NOT NULL DEFAULT 0,
		rows_skipped INTEGER NOT NULL DEFAULT 0,
		import_job_id TEXT,
		final_status TEXT,
		log TEXT,
		error TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		updated_at DATETIME
	);
	`
	pollTable := `
	CREATE TABLE IF NOT EXISTS poll_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		http_status INTEGER NOT NULL,
		processing_status TEXT,
		elapsed_ms INTEGER NOT NULL,
		created_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS poll_events_run ON poll_events (run_id, seq);
	`

	for _, stmt := range []string{runTable, pollTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// SaveRun stores a new run
func (s *Store) SaveRun(run model.Run) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`INSERT INTO runs (
		id, kind, source, output_path, status, pages, records_fetched, rows_written, rows_skipped,
		import_job_id, final_status, log, error, started_at, finished_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Source, run.OutputPath, run.Status,
		run.Pages, run.RecordsFetched, run.RowsWritten, run.RowsSkipped,
		run.ImportJobID, run.FinalStatus, run.Log, run.Error,
		run.StartedAt.UTC(), nullTime(run.FinishedAt), now)
	return err
}

// UpdateRun overwrites the mutable fields of an existing run
func (s *Store) UpdateRun(run model.Run) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(`UPDATE runs SET
		status = ?, pages = ?, records_fetched = ?, rows_written = ?, rows_skipped = ?,
		import_job_id = ?, final_status = ?, log = ?, error = ?, finished_at = ?, updated_at = ?
	WHERE id = ?`,
		run.Status, run.Pages, run.RecordsFetched, run.RowsWritten, run.RowsSkipped,
		run.ImportJobID, run.FinalStatus, run.Log, run.Error, nullTime(run.FinishedAt), now,
		run.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, run.ID)
	}
	return nil
}

// SavePollEvent records one job status poll
func (s *Store) SavePollEvent(ev model.PollEvent) error {
	_, err := s.db.Exec(`INSERT INTO poll_events (run_id, seq, http_status, processing_status, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.Seq, ev.HTTPStatus, ev.ProcessingStatus, ev.Elapsed.Milliseconds(), ev.At.UTC())
	return err
}

const runColumns = `id, kind, source, output_path, status, pages, records_fetched, rows_written, rows_skipped,
	import_job_id, final_status, log, error, started_at, finished_at`

// ListRuns returns the most recent runs first. limit <= 0 means
// DefaultListLimit.
func (s *Store) ListRuns(limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun fetches one run by id
func (s *Store) GetRun(id string) (model.Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// ListPollEvents returns the polls recorded for a run in order
func (s *Store) ListPollEvents(runID string) ([]model.PollEvent, error) {
	rows, err := s.db.Query(`SELECT run_id, seq, http_status, processing_status, elapsed_ms, created_at
		FROM poll_events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.PollEvent{}
	for rows.Next() {
		var ev model.PollEvent
		var status sql.NullString
		var elapsedMS int64
		if err := rows.Scan(&ev.RunID, &ev.Seq, &ev.HTTPStatus, &status, &elapsedMS, &ev.At); err != nil {
			return nil, err
		}
		ev.ProcessingStatus = status.String
		ev.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		events = append(events, ev)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (model.Run, error) {
	var run model.Run
	var kind string
	var source, outputPath, jobID, finalStatus, log, errMsg sql.NullString
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(&run.ID, &kind, &source, &outputPath, &run.Status,
		&run.Pages, &run.RecordsFetched, &run.RowsWritten, &run.RowsSkipped,
		&jobID, &finalStatus, &log, &errMsg, &startedAt, &finishedAt)
	if err != nil {
		return model.Run{}, err
	}

	run.Kind = model.RunKind(kind)
	run.Source = source.String
	run.OutputPath = outputPath.String
	run.ImportJobID = jobID.String
	run.FinalStatus = finalStatus.String
	run.Log = log.String
	run.Error = errMsg.String
	if startedAt.Valid {
		run.StartedAt = startedAt.Time.UTC()
	}
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		run.FinishedAt = &t
	}
	return run, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

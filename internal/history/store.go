// Package history keeps a record of past build passes in SQLite so that the
// history command, and the serve process, can show what recent builds did.
package history

import (
	"context"
	"database/sql"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/sitepress/internal/engine"
	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
)

// DefaultName is the store file name used when no path is configured. It
// lives next to the source directory, never inside the output.
const DefaultName = ".sitepress_history.db"

// ErrNotFound is returned by Get for an unknown build id.
var ErrNotFound = errors.New("build not found")

// Record is one stored build pass.
type Record struct {
	BuildID string
	Start   time.Time
	End     time.Time
	Outcome string
	Tasks   int
	Written int
	Removed int
	Skipped int
	Error   string
	// Artifacts counts written files per task.
	Artifacts map[string]int
}

// Duration returns the wall time of the build.
func (r Record) Duration() time.Duration { return r.End.Sub(r.Start) }

// FromReport converts an engine report into a record.
func FromReport(r *engine.Report) Record {
	rec := Record{
		BuildID:   r.BuildID,
		Start:     r.Start,
		End:       r.End,
		Outcome:   string(r.Outcome),
		Tasks:     r.Tasks,
		Written:   len(r.Written),
		Removed:   len(r.Removed),
		Skipped:   r.Skipped,
		Artifacts: maps.Clone(r.Artifacts),
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// Store persists build records.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the store at path. Use ":memory:" for a throwaway
// store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "create history directory").
				WithContext("path", path).
				Build()
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "open history database").
			WithContext("path", path).
			Build()
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "initialize history schema").
			WithContext("path", path).
			Build()
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		build_id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		tasks INTEGER NOT NULL,
		written INTEGER NOT NULL,
		removed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		error TEXT
	);
	CREATE TABLE IF NOT EXISTS build_artifacts (
		build_id TEXT NOT NULL REFERENCES builds(build_id) ON DELETE CASCADE,
		task TEXT NOT NULL,
		count INTEGER NOT NULL,
		PRIMARY KEY (build_id, task)
	);
	CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add stores rec. Adding a build id twice replaces the earlier record.
func (s *Store) Add(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap(err, "begin history transaction", rec.BuildID)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM build_artifacts WHERE build_id = ?", rec.BuildID); err != nil {
		return s.wrap(err, "clear build artifacts", rec.BuildID)
	}
	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO builds (build_id, started_at, finished_at, outcome, tasks, written, removed, skipped, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.BuildID, rec.Start.UnixNano(), rec.End.UnixNano(), rec.Outcome,
		rec.Tasks, rec.Written, rec.Removed, rec.Skipped, errText,
	)
	if err != nil {
		return s.wrap(err, "insert build", rec.BuildID)
	}
	for taskID, n := range rec.Artifacts {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO build_artifacts (build_id, task, count) VALUES (?, ?, ?)",
			rec.BuildID, taskID, n,
		); err != nil {
			return s.wrap(err, "insert build artifacts", rec.BuildID)
		}
	}
	if err := tx.Commit(); err != nil {
		return s.wrap(err, "commit history transaction", rec.BuildID)
	}
	return nil
}

// Recent returns up to limit records, newest first. A limit of zero or less
// returns all of them.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT build_id, started_at, finished_at, outcome, tasks, written, removed, skipped, error
		 FROM builds ORDER BY started_at DESC, build_id LIMIT ?`, limit)
	if err != nil {
		return nil, s.wrap(err, "query builds", "")
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, s.wrap(err, "scan builds", "")
	}
	for i := range records {
		if records[i].Artifacts, err = s.artifacts(ctx, records[i].BuildID); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Get returns the record for id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT build_id, started_at, finished_at, outcome, tasks, written, removed, skipped, error
		 FROM builds WHERE build_id = ?`, id)
	if err != nil {
		return Record{}, s.wrap(err, "query build", id)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return Record{}, s.wrap(err, "scan build", id)
	}
	if len(records) == 0 {
		return Record{}, ferrors.NotFoundError("no such build").
			WithContext("build_id", id).
			WithCause(ErrNotFound).
			Build()
	}
	rec := records[0]
	if rec.Artifacts, err = s.artifacts(ctx, id); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Prune keeps the newest keep records and deletes the rest. It returns the
// number of records removed.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM builds WHERE build_id NOT IN (
			SELECT build_id FROM builds ORDER BY started_at DESC, build_id LIMIT ?
		)`, max(keep, 0))
	if err != nil {
		return 0, s.wrap(err, "prune builds", "")
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM build_artifacts WHERE build_id NOT IN (SELECT build_id FROM builds)"); err != nil {
		return 0, s.wrap(err, "prune build artifacts", "")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) artifacts(ctx context.Context, id string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT task, count FROM build_artifacts WHERE build_id = ?", id)
	if err != nil {
		return nil, s.wrap(err, "query build artifacts", id)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var taskID string
		var n int
		if err := rows.Scan(&taskID, &n); err != nil {
			return nil, s.wrap(err, "scan build artifacts", id)
		}
		out[taskID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(err, "iterate build artifacts", id)
	}
	return out, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var r Record
		var start, end int64
		var errText sql.NullString
		if err := rows.Scan(&r.BuildID, &start, &end, &r.Outcome, &r.Tasks, &r.Written, &r.Removed, &r.Skipped, &errText); err != nil {
			return nil, err
		}
		r.Start = time.Unix(0, start)
		r.End = time.Unix(0, end)
		r.Error = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) wrap(err error, msg, id string) error {
	b := ferrors.WrapError(err, ferrors.CategoryFileSystem, msg)
	if id != "" {
		b = b.WithContext("build_id", id)
	}
	return b.Build()
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SortedTasks returns the task ids of rec's artifact counts in name order.
func (r Record) SortedTasks() []string {
	return slices.Sorted(maps.Keys(r.Artifacts))
}

// Package history keeps a SQLite record of program runs: what was run, how
// far it got, why it halted and everything it printed.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("exomars.history")

// ErrRunNotFound indicates the requested run doesn't exist.
var ErrRunNotFound = errors.New("run not found")

// ErrAmbiguousID indicates an ID prefix matched more than one run.
var ErrAmbiguousID = errors.New("run id prefix is ambiguous")

// Run is one recorded program run.
type Run struct {
	ID          string
	Started     time.Time
	Duration    time.Duration
	ProgramHash string // hex SHA-256 of the compiled program
	Source      string
	Steps       int
	Reason      string // why the machine halted
	Err         string // run error, if any
	Output      []string
}

// Store handles SQLite storage for runs.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

const schema = `CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started TEXT NOT NULL,
	duration_ns INTEGER NOT NULL,
	program_hash TEXT NOT NULL,
	source TEXT NOT NULL,
	steps INTEGER NOT NULL,
	reason TEXT NOT NULL,
	err TEXT NOT NULL DEFAULT '',
	output JSON NOT NULL
)`

// Open opens (creating if needed) the history database at path.
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// An in-memory database lives only as long as its one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	log.Debugf("opened history at %s", path)
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record saves a run. A missing ID or start time is filled in and written
// back to run.
func (s *Store) Record(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Started.IsZero() {
		run.Started = time.Now()
	}
	output := run.Output
	if output == nil {
		output = []string{}
	}
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started, duration_ns, program_hash, source, steps, reason, err, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, json(?))`,
		run.ID, run.Started.UTC().Format(timeLayout), int64(run.Duration),
		run.ProgramHash, run.Source, run.Steps, run.Reason, run.Err, string(data),
	)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectRun = `SELECT id, started, duration_ns, program_hash, source, steps, reason, err, output FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run      Run
		started  string
		duration int64
		output   string
	)
	err := row.Scan(&run.ID, &started, &duration, &run.ProgramHash, &run.Source, &run.Steps, &run.Reason, &run.Err, &output)
	if err != nil {
		return nil, err
	}
	if run.Started, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("parsing start time of run %s: %w", run.ID, err)
	}
	run.Duration = time.Duration(duration)
	if err := json.Unmarshal([]byte(output), &run.Output); err != nil {
		return nil, fmt.Errorf("parsing output of run %s: %w", run.ID, err)
	}
	return &run, nil
}

// Get retrieves a run by ID or by a unique ID prefix.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	if id == "" {
		return nil, ErrRunNotFound
	}
	rows, err := s.db.QueryContext(ctx, selectRun+` WHERE id = ? OR substr(id, 1, length(?)) = ? ORDER BY id = ? DESC LIMIT 2`, id, id, id, id)
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}

	switch {
	case len(found) == 0:
		return nil, ErrRunNotFound
	case found[0].ID == id, len(found) == 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
}

// List returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY started DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Delete removes a run.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

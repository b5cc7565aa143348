// Package history keeps a local SQLite journal of deploy and rollback runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/renzodupont/renzodupont/internal/util/fs"
)

// Run statuses.
const (
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Record is one journaled run.
type Record struct {
	ID        int64
	RunID     string // uuid shared with log lines
	Op        string // deploy | rollback
	Target    string // user@host:port
	Backup    string // backup created (deploy) or restored (rollback)
	Status    string
	Kind      string // error kind on failure
	Error     string
	DryRun    bool
	StartedAt time.Time
	Duration  time.Duration
}

// History manages the journal.
type History struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at path.
func Open(path string) (*History, error) {
	if err := fs.MkdirP(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}
	if err := h.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			op TEXT NOT NULL,
			target TEXT NOT NULL,
			backup TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			dry_run INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			duration_seconds REAL NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	_, err = h.db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC)`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Add stores rec and returns its row id.
func (h *History) Add(ctx context.Context, rec Record) (int64, error) {
	res, err := h.db.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, op, target, backup, status, kind, error_message, dry_run, started_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RunID,
		rec.Op,
		rec.Target,
		rec.Backup,
		rec.Status,
		rec.Kind,
		rec.Error,
		rec.DryRun,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.Duration.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run record: %w", err)
	}
	return res.LastInsertId()
}

// List returns up to limit records, newest first.
func (h *History) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, run_id, op, target, backup, status, kind, error_message, dry_run, started_at, duration_seconds
		FROM runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			started string
			secs    float64
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Op, &r.Target, &r.Backup, &r.Status, &r.Kind, &r.Error, &r.DryRun, &started, &secs); err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		r.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
		}
		r.Duration = time.Duration(secs * float64(time.Second))
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

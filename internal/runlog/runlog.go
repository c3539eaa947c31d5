package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/eteka/biojet-intel-node/internal/agent"
	"github.com/eteka/biojet-intel-node/internal/record"
)

type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Run is one ledger row.
type Run struct {
	ID         string      `json:"id"`
	Category   string      `json:"category"`
	Mode       record.Mode `json:"mode"`
	Status     Status      `json:"status"`
	Written    int         `json:"written"`
	Evicted    int         `json:"evicted"`
	StoreSize  int         `json:"store_size"`
	Error      string      `json:"error,omitempty"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Ledger is the sqlite history of category runs.
type Ledger struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

func Open(dbPath string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating runlog dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	l := &Ledger{writeDB: writeDB}
	// Schema first: a read-only handle cannot create the file.
	if err := l.init(); err != nil {
		l.Close()
		return nil, err
	}

	readDB, err := sql.Open("sqlite", dbPath+"?mode=ro")
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}
	l.readDB = readDB
	return l, nil
}

func (l *Ledger) init() error {
	_, err := l.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			category    TEXT NOT NULL,
			mode        TEXT NOT NULL,
			status      TEXT NOT NULL,
			written     INTEGER NOT NULL DEFAULT 0,
			evicted     INTEGER NOT NULL DEFAULT 0,
			store_size  INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT '',
			finished_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at DESC);
		CREATE INDEX IF NOT EXISTS idx_runs_category ON runs(category);

		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (l *Ledger) Close() error {
	var errs []error
	if l.readDB != nil {
		errs = append(errs, l.readDB.Close())
	}
	if l.writeDB != nil {
		errs = append(errs, l.writeDB.Close())
	}
	return errors.Join(errs...)
}

// Record inserts a run, assigning an id when it has none, and moves the
// category's last_run marker on success.
func (l *Ledger) Record(run Run) (Run, error) {
	if run.Category == "" {
		return Run{}, errors.New("run has no category")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	run.FinishedAt = run.FinishedAt.UTC()

	tx, err := l.writeDB.Begin()
	if err != nil {
		return Run{}, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, category, mode, status, written, evicted, store_size, error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Category, string(run.Mode), string(run.Status), run.Written, run.Evicted, run.StoreSize, run.Error, run.FinishedAt)
	if err != nil {
		return Run{}, fmt.Errorf("recording run %s: %w", run.ID, err)
	}

	if run.Status == StatusOK {
		_, err = tx.Exec(`
			INSERT INTO meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, lastRunKey(run.Category), run.FinishedAt.Format(time.RFC3339Nano))
		if err != nil {
			return Run{}, fmt.Errorf("updating last run: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, err
	}
	return run, nil
}

// Observe records a finished agent run.
func (l *Ledger) Observe(_ context.Context, s agent.Summary, runErr error) error {
	run := Run{
		Category:   s.Category,
		Mode:       s.Mode,
		Status:     StatusOK,
		Written:    s.Written,
		Evicted:    s.Evicted,
		StoreSize:  s.StoreSize,
		FinishedAt: s.FinishedAt,
	}
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	}
	_, err := l.Record(run)
	return err
}

// Recent returns up to limit runs, newest first. An empty category
// selects every category.
func (l *Ledger) Recent(category string, limit int) ([]Run, error) {
	query := "SELECT id, category, mode, status, written, evicted, store_size, error, finished_at FROM runs"
	var args []interface{}
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}
	query += " ORDER BY finished_at DESC, rowid DESC"

	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := l.readDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r            Run
			mode, status string
		)
		if err := rows.Scan(&r.ID, &r.Category, &mode, &status, &r.Written, &r.Evicted, &r.StoreSize, &r.Error, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Mode = record.Mode(mode)
		r.Status = Status(status)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastRun reports when the category last completed successfully.
func (l *Ledger) LastRun(category string) (time.Time, bool) {
	var value string
	err := l.readDB.QueryRow("SELECT value FROM meta WHERE key = ?", lastRunKey(category)).Scan(&value)
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Prune deletes runs that finished more than olderThan ago.
func (l *Ledger) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC()
	res, err := l.writeDB.Exec("DELETE FROM runs WHERE finished_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if _, err := l.writeDB.Exec("VACUUM"); err != nil {
			return n, fmt.Errorf("vacuuming: %w", err)
		}
	}
	return n, nil
}

// Stats returns the run count and the on-disk size of dbPath.
func (l *Ledger) Stats(dbPath string) (int64, int64, error) {
	var count int64
	if err := l.readDB.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		return 0, 0, fmt.Errorf("counting runs: %w", err)
	}
	info, err := os.Stat(dbPath)
	if err != nil {
		return count, 0, err
	}
	return count, info.Size(), nil
}

func lastRunKey(category string) string {
	return "last_run:" + category
}

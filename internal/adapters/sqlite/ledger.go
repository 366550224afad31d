// Package sqlite persists reindex history and pending backup deletions in a
// local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/jobrunner/hospigeo/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS reindex_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type TEXT    NOT NULL,
	index_name  TEXT    NOT NULL,
	state       TEXT    NOT NULL,
	documents   INTEGER NOT NULL DEFAULT 0,
	error       TEXT    NOT NULL DEFAULT '',
	started_at  TEXT    NOT NULL,
	finished_at TEXT
);
CREATE INDEX IF NOT EXISTS reindex_runs_started ON reindex_runs (started_at);

CREATE TABLE IF NOT EXISTS pending_deletions (
	index_name  TEXT    PRIMARY KEY,
	entity_type TEXT    NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 1,
	last_error  TEXT    NOT NULL DEFAULT '',
	recorded_at TEXT    NOT NULL
);
`

// Ledger implements output.ReindexLedger.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path and applies the schema.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// Serializes writers; SQLite allows one at a time anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Ping checks the database.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// StartRun implements output.ReindexLedger.
func (l *Ledger) StartRun(ctx context.Context, run domain.ReindexRun) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO reindex_runs (entity_type, index_name, state, started_at) VALUES (?, ?, ?, ?)`,
		string(run.EntityType), run.Index, string(run.State), formatTime(run.StartedAt))
	if err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun implements output.ReindexLedger.
func (l *Ledger) FinishRun(ctx context.Context, run domain.ReindexRun) error {
	var finished any
	if run.FinishedAt != nil {
		finished = formatTime(*run.FinishedAt)
	}

	res, err := l.db.ExecContext(ctx,
		`UPDATE reindex_runs SET state = ?, documents = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(run.State), run.Documents, run.Error, finished, run.ID)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d: %w", run.ID, domain.ErrNotFound)
	}
	return nil
}

// RecentRuns implements output.ReindexLedger.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]domain.ReindexRun, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, entity_type, index_name, state, documents, error, started_at, finished_at
		 FROM reindex_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.ReindexRun
	for rows.Next() {
		var (
			r                 domain.ReindexRun
			entityType, state string
			started           string
			finished          sql.NullString
		)
		if err := rows.Scan(&r.ID, &entityType, &r.Index, &state, &r.Documents, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.EntityType = domain.EntityType(entityType)
		r.State = domain.JobState(state)
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			t, err := parseTime(finished.String)
			if err != nil {
				return nil, err
			}
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// AddPendingDeletion implements output.ReindexLedger.
func (l *Ledger) AddPendingDeletion(ctx context.Context, p domain.PendingDeletion) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO pending_deletions (index_name, entity_type, attempts, last_error, recorded_at)
		 VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT (index_name) DO UPDATE SET
		   attempts = attempts + 1,
		   last_error = excluded.last_error,
		   recorded_at = excluded.recorded_at`,
		p.Index, string(p.EntityType), p.LastError, formatTime(p.RecordedAt))
	if err != nil {
		return fmt.Errorf("recording pending deletion of %s: %w", p.Index, err)
	}
	return nil
}

// PendingDeletions implements output.ReindexLedger.
func (l *Ledger) PendingDeletions(ctx context.Context) ([]domain.PendingDeletion, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT index_name, entity_type, attempts, last_error, recorded_at
		 FROM pending_deletions ORDER BY index_name`)
	if err != nil {
		return nil, fmt.Errorf("querying pending deletions: %w", err)
	}
	defer rows.Close()

	var out []domain.PendingDeletion
	for rows.Next() {
		var (
			p          domain.PendingDeletion
			entityType string
			recorded   string
		)
		if err := rows.Scan(&p.Index, &entityType, &p.Attempts, &p.LastError, &recorded); err != nil {
			return nil, fmt.Errorf("scanning pending deletion: %w", err)
		}
		p.EntityType = domain.EntityType(entityType)
		if p.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ResolvePendingDeletion implements output.ReindexLedger.
func (l *Ledger) ResolvePendingDeletion(ctx context.Context, index string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM pending_deletions WHERE index_name = ?`, index); err != nil {
		return fmt.Errorf("resolving pending deletion of %s: %w", index, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing ledger time %q: %w", s, err)
	}
	return t, nil
}

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

// Store journals pipeline runs in a sqlite database.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun inserts or replaces run together with its stage rows.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := uuid.Parse(run.ID); err != nil {
		return fmt.Errorf("run id %q: %w", run.ID, err)
	}
	if strings.TrimSpace(run.Status) == "" {
		return fmt.Errorf("run %s has no status", run.ID)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	return s.withRetry("save run", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `
INSERT INTO runs (run_id, module, input_path, output_path, started_at_utc, finished_at_utc, status, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  module=excluded.module,
  input_path=excluded.input_path,
  output_path=excluded.output_path,
  started_at_utc=excluded.started_at_utc,
  finished_at_utc=excluded.finished_at_utc,
  status=excluded.status,
  error=excluded.error
`,
			run.ID,
			run.Module,
			run.Input,
			run.Output,
			formatTime(run.StartedAt),
			formatTime(run.FinishedAt),
			run.Status,
			run.Error,
		); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM run_stages WHERE run_id = ?`, run.ID); err != nil {
			return err
		}
		for i, st := range run.Stages {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO run_stages (run_id, seq, stage, units_run, duration_ms, cancelled)
VALUES (?, ?, ?, ?, ?, ?)
`, run.ID, i, st.Stage, st.Units, st.Duration.Milliseconds(), st.Cancelled); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// RecentRuns returns up to limit runs, newest first, each with its stages.
// A non-positive limit returns every run.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
SELECT run_id, module, input_path, output_path, started_at_utc, finished_at_utc, status, error
FROM runs
ORDER BY started_at_utc DESC, run_id ASC
`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var runs []Run
	err := s.withRetry("load runs", func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		runs = runs[:0]
		for rows.Next() {
			run, err := scanRun(rows)
			if err != nil {
				return err
			}
			runs = append(runs, run)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	for i := range runs {
		stages, err := s.loadStages(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Stages = stages
	}
	return runs, nil
}

// Run returns the run with id, reporting false when it is not journaled.
func (s *Store) Run(ctx context.Context, id string) (Run, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		run   Run
		found bool
	)
	err := s.withRetry("load run", func() error {
		rows, err := s.db.QueryContext(ctx, `
SELECT run_id, module, input_path, output_path, started_at_utc, finished_at_utc, status, error
FROM runs WHERE run_id = ?
`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		if !rows.Next() {
			return rows.Err()
		}
		run, err = scanRun(rows)
		found = err == nil
		return err
	})
	if err != nil || !found {
		return Run{}, false, err
	}
	if run.Stages, err = s.loadStages(ctx, id); err != nil {
		return Run{}, false, err
	}
	return run, true, nil
}

func (s *Store) loadStages(ctx context.Context, id string) ([]StageRun, error) {
	var stages []StageRun
	err := s.withRetry("load stages", func() error {
		rows, err := s.db.QueryContext(ctx, `
SELECT stage, units_run, duration_ms, cancelled FROM run_stages WHERE run_id = ? ORDER BY seq ASC
`, id)
		if err != nil {
			return err
		}
		defer rows.Close()

		stages = stages[:0]
		for rows.Next() {
			var (
				st StageRun
				ms int64
			)
			if err := rows.Scan(&st.Stage, &st.Units, &ms, &st.Cancelled); err != nil {
				return fmt.Errorf("scan stage row: %w", err)
			}
			st.Duration = time.Duration(ms) * time.Millisecond
			stages = append(stages, st)
		}
		return rows.Err()
	})
	return stages, err
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		run                 Run
		startRaw, finishRaw string
	)
	if err := rows.Scan(&run.ID, &run.Module, &run.Input, &run.Output, &startRaw, &finishRaw, &run.Status, &run.Error); err != nil {
		return Run{}, fmt.Errorf("scan run row: %w", err)
	}
	var err error
	if run.StartedAt, err = parseTime(startRaw); err != nil {
		return Run{}, err
	}
	if run.FinishedAt, err = parseTime(finishRaw); err != nil {
		return Run{}, err
	}
	return run, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}

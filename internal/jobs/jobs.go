// Package jobs tracks asynchronous triage runs submitted through the API.
// State lives in a local SQLite database so job status survives restarts.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/triagehq/triage-cli/internal/model"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one asynchronous triage run.
type Job struct {
	ID        string         `json:"job_id"`
	Status    Status         `json:"status"`
	Progress  int            `json:"progress"`
	Message   string         `json:"message,omitempty"`
	Summary   *model.Summary `json:"summary,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ErrJobNotFound is returned when no job matches the given id.
var ErrJobNotFound = eris.New("jobs: job not found")

// Store persists jobs in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the job database at path and configures WAL mode.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "jobs: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	progress   INTEGER NOT NULL DEFAULT 0,
	message    TEXT NOT NULL DEFAULT '',
	summary    TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "jobs: migrate")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new queued job and returns it.
func (s *Store) Create(ctx context.Context) (*Job, error) {
	now := time.Now().UTC()
	j := &Job{
		ID:        uuid.New().String(),
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, progress, message, created_at, updated_at) VALUES (?, ?, 0, '', ?, ?)`,
		j.ID, string(j.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: insert")
	}
	return j, nil
}

// Get returns the job with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, progress, message, summary, error, created_at, updated_at FROM jobs WHERE id = ?`,
		id,
	)

	var j Job
	var summaryJSON sql.NullString
	err := row.Scan(&j.ID, &j.Status, &j.Progress, &j.Message, &summaryJSON, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrJobNotFound, "jobs: get %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "jobs: get %s", id)
	}
	if summaryJSON.Valid {
		j.Summary = &model.Summary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), j.Summary); err != nil {
			return nil, eris.Wrapf(err, "jobs: unmarshal summary for %s", id)
		}
	}
	return &j, nil
}

// MarkRunning transitions a job to running.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	return s.update(ctx, id,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(StatusRunning), time.Now().UTC(), id,
	)
}

// UpdateProgress records mapped progress (0-100) and a status message for a
// running job.
func (s *Store) UpdateProgress(ctx context.Context, id string, progress int, message string) error {
	return s.update(ctx, id,
		`UPDATE jobs SET progress = ?, message = ?, updated_at = ? WHERE id = ?`,
		progress, message, time.Now().UTC(), id,
	)
}

// Complete finalizes a job with its run summary and progress 100.
func (s *Store) Complete(ctx context.Context, id string, summary model.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrapf(err, "jobs: marshal summary for %s", id)
	}
	return s.update(ctx, id,
		`UPDATE jobs SET status = ?, progress = 100, summary = ?, updated_at = ? WHERE id = ?`,
		string(StatusCompleted), string(summaryJSON), time.Now().UTC(), id,
	)
}

// Fail marks a job failed with the given error message.
func (s *Store) Fail(ctx context.Context, id string, errMsg string) error {
	return s.update(ctx, id,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(StatusFailed), errMsg, time.Now().UTC(), id,
	)
}

func (s *Store) update(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "jobs: update %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "jobs: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrJobNotFound, "jobs: update %s", id)
	}
	return nil
}

// CountByStatus returns how many jobs are in each state.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: count by status")
	}
	defer rows.Close()

	counts := map[Status]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, eris.Wrap(err, "jobs: scan count")
		}
		counts[Status(st)] = n
	}
	return counts, eris.Wrap(rows.Err(), "jobs: count iterate")
}

// DeleteOlderThan removes terminal jobs whose last update is older than the
// retention window. Queued and running jobs are never reaped.
func (s *Store) DeleteOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE updated_at < ? AND status IN (?, ?)`,
		cutoff, string(StatusCompleted), string(StatusFailed),
	)
	if err != nil {
		return 0, eris.Wrap(err, "jobs: delete expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "jobs: rows affected")
}

// StartCleanup reaps expired jobs every interval until ctx is cancelled.
func (s *Store) StartCleanup(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.DeleteOlderThan(ctx, retention)
				if err != nil {
					zap.L().Warn("job cleanup failed", zap.Error(err))
					continue
				}
				if n > 0 {
					zap.L().Info("reaped expired jobs", zap.Int("count", n))
				}
			}
		}
	}()
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/connectly/outreach-be/internal/worker/domain"
)

var (
	// ErrRecordNotFound is returned when no job record exists for an id
	ErrRecordNotFound = errors.New("job record not found")
)

// Storage handles the worker's database writes: job record lifecycle,
// heartbeats, and workflow run counters
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a worker storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{db: db, logger: logger}
}

// MarkProcessing moves the job record to processing with a fresh start
// timestamp. Idempotent per attempt - re-running it only refreshes the
// timestamps.
func (s *Storage) MarkProcessing(ctx context.Context, jobID string, attempt int) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    attempts = $2,
		    started_at = NOW(),
		    last_heartbeat_at = NOW()
		WHERE id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusProcessing, attempt, jobID); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	return nil
}

// MarkTerminal writes the job record's terminal (or retry) state. Updates are
// idempotent keyed by job id - a repeated write for the same outcome is a
// no-op in effect.
func (s *Storage) MarkTerminal(ctx context.Context, jobID, status string, result map[string]any, errMsg string) error {
	var resultJSON []byte
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	query := `
		UPDATE jobs
		SET status = $1,
		    result = $2,
		    error_message = NULLIF($3, ''),
		    completed_at = CASE
		        WHEN $1 IN ($4, $5) THEN NOW()
		        ELSE NULL
		    END
		WHERE id = $6
	`

	_, err := s.db.ExecContext(ctx, query,
		status, resultJSON, errMsg,
		domain.JobStatusCompleted, domain.JobStatusFailed,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job terminal: %w", err)
	}

	s.logger.Info("Job record updated",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)
	return nil
}

// UpdateHeartbeat refreshes the liveness timestamp for a processing job
func (s *Storage) UpdateHeartbeat(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET last_heartbeat_at = NOW()
		WHERE id = $1 AND status = $2
	`

	res, err := s.db.ExecContext(ctx, query, jobID, domain.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Warn("Heartbeat update touched no rows (job not processing?)",
			slog.String("job_id", jobID),
		)
	}
	return nil
}

// GetJobRecord loads a job record by id
func (s *Storage) GetJobRecord(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	query := `
		SELECT id, workflow_run_id, job_type, job_data, status, attempts,
		       stalled_count, created_at, started_at, completed_at,
		       last_heartbeat_at, error_message, result
		FROM jobs
		WHERE id = $1
	`

	var record domain.JobRecord
	if err := s.db.GetContext(ctx, &record, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get job record: %w", err)
	}
	return &record, nil
}

// IncrementStalled bumps the stalled counter for a redelivered job and
// returns the new value. A job whose heartbeat lapsed is granted exactly one
// forced re-attempt; the caller fails it terminally past that.
func (s *Storage) IncrementStalled(ctx context.Context, jobID string) (int, error) {
	query := `
		UPDATE jobs
		SET stalled_count = stalled_count + 1
		WHERE id = $1
		RETURNING stalled_count
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, jobID).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrRecordNotFound
		}
		return 0, fmt.Errorf("failed to increment stalled count: %w", err)
	}
	return count, nil
}

// RunCounters re-reads the full terminal-state counts for a workflow run's
// member jobs. Always a fresh count, never an incremental update, so
// concurrent recomputations converge.
func (s *Storage) RunCounters(ctx context.Context, runID string) (domain.RunCounters, error) {
	query := `
		SELECT COUNT(*)                                  AS total,
		       COUNT(*) FILTER (WHERE status = $1)       AS completed,
		       COUNT(*) FILTER (WHERE status = $2)       AS failed
		FROM jobs
		WHERE workflow_run_id = $3
	`

	var row struct {
		Total     int `db:"total"`
		Completed int `db:"completed"`
		Failed    int `db:"failed"`
	}
	if err := s.db.GetContext(ctx, &row, query, domain.JobStatusCompleted, domain.JobStatusFailed, runID); err != nil {
		return domain.RunCounters{}, fmt.Errorf("failed to count run jobs: %w", err)
	}

	return domain.RunCounters{Total: row.Total, Completed: row.Completed, Failed: row.Failed}, nil
}

// UpdateRunCounters overwrites the workflow run aggregate. Last write wins;
// the invariant holds because every writer recomputed from the full record
// set first.
func (s *Storage) UpdateRunCounters(ctx context.Context, runID string, c domain.RunCounters, status string) error {
	query := `
		UPDATE workflow_runs
		SET completed_jobs = $1,
		    failed_jobs = $2,
		    status = $3,
		    completed_at = CASE
		        WHEN $3 IN ($4, $5) THEN NOW()
		        ELSE completed_at
		    END
		WHERE id = $6
	`

	_, err := s.db.ExecContext(ctx, query,
		c.Completed, c.Failed, status,
		domain.RunStatusCompleted, domain.RunStatusFailed,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow run: %w", err)
	}

	s.logger.Debug("Workflow run counters updated",
		slog.String("workflow_run_id", runID),
		slog.Int("completed", c.Completed),
		slog.Int("failed", c.Failed),
		slog.String("status", status),
	)
	return nil
}

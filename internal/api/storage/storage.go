package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/connectly/outreach-be/internal/api/model"
	"github.com/connectly/outreach-be/shared/postgresql"
)

var (
	// ErrJobNotFound is returned when no job record exists for an id
	ErrJobNotFound = errors.New("job not found")

	// ErrWorkflowNotFound is returned when no workflow run exists for an id
	ErrWorkflowNotFound = errors.New("workflow run not found")
)

const jobColumns = `
	id, workflow_run_id, job_type, job_data, status, attempts,
	stalled_count, created_at, started_at, completed_at,
	last_heartbeat_at, error_message, result
`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.DB(),
	}
}

func (s *Storage) CreateJob(ctx context.Context, job *model.Job) error {
	query := `
		INSERT INTO jobs (
			id, workflow_run_id, job_type, job_data,
			status, attempts, stalled_count, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.WorkflowRunID,
		job.JobType,
		job.JobData,
		job.Status,
		job.Attempts,
		job.StalledCount,
		job.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

type JobFilter struct {
	JobType       string
	Status        string
	WorkflowRunID string
	PageSize      int
	Cursor        *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.WorkflowRunID != "" {
		query += fmt.Sprintf(" AND workflow_run_id = $%d", argIdx)
		args = append(args, filter.WorkflowRunID)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Keyset pagination over (created_at, id) keeps pages stable under
	// concurrent inserts
	query += " ORDER BY created_at DESC, id DESC"

	// Fetch one extra row to learn whether a next page exists
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// CreateWorkflowRun inserts the run aggregate and all member job records in
// one transaction. Either the whole batch exists or none of it does.
func (s *Storage) CreateWorkflowRun(ctx context.Context, run *model.WorkflowRun, jobs []model.Job) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	runQuery := `
		INSERT INTO workflow_runs (
			id, name, status, total_jobs, completed_jobs,
			failed_jobs, callback_url, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8
		)
	`
	_, err = tx.ExecContext(ctx, runQuery,
		run.ID, run.Name, run.Status, run.TotalJobs, run.CompletedJobs,
		run.FailedJobs, run.CallbackURL, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow run: %w", err)
	}

	jobQuery := `
		INSERT INTO jobs (
			id, workflow_run_id, job_type, job_data,
			status, attempts, stalled_count, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8
		)
	`
	for i := range jobs {
		job := &jobs[i]
		_, err = tx.ExecContext(ctx, jobQuery,
			job.JobID, job.WorkflowRunID, job.JobType, job.JobData,
			job.Status, job.Attempts, job.StalledCount, job.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create workflow job: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit workflow run: %w", err)
	}

	return nil
}

func (s *Storage) GetWorkflowRun(ctx context.Context, runID string) (*model.WorkflowRun, error) {
	var run model.WorkflowRun
	query := `
		SELECT id, name, status, total_jobs, completed_jobs,
		       failed_jobs, callback_url, created_at, completed_at
		FROM workflow_runs
		WHERE id = $1
	`

	if err := s.db.GetContext(ctx, &run, query, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("failed to get workflow run: %w", err)
	}

	return &run, nil
}

func (s *Storage) ListWorkflowJobs(ctx context.Context, runID string) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE workflow_run_id = $1 ORDER BY created_at ASC, id ASC`

	var jobs []model.Job
	if err := s.db.SelectContext(ctx, &jobs, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list workflow jobs: %w", err)
	}

	return jobs, nil
}

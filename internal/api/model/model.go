package model

import (
	"database/sql"
	"time"
)

// Job is the persisted job record as the API reads and writes it
type Job struct {
	JobID           string         `db:"id"`
	WorkflowRunID   sql.NullString `db:"workflow_run_id"`
	JobType         string         `db:"job_type"`
	JobData         []byte         `db:"job_data"`
	Status          string         `db:"status"`
	Attempts        int            `db:"attempts"`
	StalledCount    int            `db:"stalled_count"`
	CreatedAt       time.Time      `db:"created_at"`
	StartedAt       sql.NullTime   `db:"started_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
	LastHeartbeatAt sql.NullTime   `db:"last_heartbeat_at"`
	ErrorMessage    sql.NullString `db:"error_message"`
	Result          []byte         `db:"result"`
}

// WorkflowRun is the persisted workflow run aggregate
type WorkflowRun struct {
	ID            string         `db:"id"`
	Name          sql.NullString `db:"name"`
	Status        string         `db:"status"`
	TotalJobs     int            `db:"total_jobs"`
	CompletedJobs int            `db:"completed_jobs"`
	FailedJobs    int            `db:"failed_jobs"`
	CallbackURL   sql.NullString `db:"callback_url"`
	CreatedAt     time.Time      `db:"created_at"`
	CompletedAt   sql.NullTime   `db:"completed_at"`
}

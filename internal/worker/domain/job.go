package domain

import (
	"database/sql"
	"time"
)

// Job is the queue message consumed by the worker. The ingress service
// publishes the full job body so the worker does not need a database read
// before it can start processing.
type Job struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	TargetURL     string `json:"target_url"`
	Note          string `json:"note,omitempty"`
	Message       string `json:"message,omitempty"`
	Priority      int    `json:"priority"`
	DelayMs       int    `json:"delay_ms"`
	AttemptsMade  int    `json:"attempts_made"`
	WorkflowRunID string `json:"workflow_run_id,omitempty"`
	CallbackURL   string `json:"callback_url,omitempty"`

	// Delivery metadata, not part of the message body
	DeliveryTag uint64 `json:"-"`
	Redelivered bool   `json:"-"`
}

// JobRecord mirrors a job's persisted lifecycle in the jobs table.
// One record per job id; terminal updates are idempotent.
type JobRecord struct {
	ID            string         `db:"id"`
	WorkflowRunID sql.NullString `db:"workflow_run_id"`
	JobType       string         `db:"job_type"`
	JobData       []byte         `db:"job_data"`
	Status        string         `db:"status"`
	Attempts      int            `db:"attempts"`
	StalledCount  int            `db:"stalled_count"`
	CreatedAt     time.Time      `db:"created_at"`
	StartedAt     sql.NullTime   `db:"started_at"`
	CompletedAt   sql.NullTime   `db:"completed_at"`
	HeartbeatAt   sql.NullTime   `db:"last_heartbeat_at"`
	ErrorMessage  sql.NullString `db:"error_message"`
	Result        []byte         `db:"result"`
}

// WorkflowRun aggregates completion counters over a batch of jobs
// sharing a workflow run id.
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

// RunCounters is the recomputed aggregate read back from the job records
// belonging to one workflow run.
type RunCounters struct {
	Total     int
	Completed int
	Failed    int
}

// ComputeRunStatus derives the workflow run status from its counters.
// The run settles only when every member job has reached a terminal state,
// and a single failure marks the whole run failed.
func ComputeRunStatus(c RunCounters) string {
	if c.Completed+c.Failed < c.Total {
		return RunStatusRunning
	}
	if c.Failed > 0 {
		return RunStatusFailed
	}
	return RunStatusCompleted
}

// CallbackResult is the result block of the completion callback body.
type CallbackResult struct {
	Success    bool   `json:"success"`
	JobID      string `json:"jobId"`
	ProfileURL string `json:"profileUrl"`
	Action     string `json:"action"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// CallbackPayload is the JSON body POSTed to a caller-supplied callback URL
// when a job reaches a terminal state.
type CallbackPayload struct {
	JobID      string         `json:"jobId"`
	WorkflowID string         `json:"workflowId,omitempty"`
	Status     string         `json:"status"`
	Result     CallbackResult `json:"result"`
}

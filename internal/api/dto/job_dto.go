package dto

// CreateJobRequest is the body of POST /api/v1/jobs
type CreateJobRequest struct {
	Type        string `json:"type" binding:"required"`
	TargetURL   string `json:"target_url" binding:"required"`
	Note        string `json:"note"`
	Message     string `json:"message"`
	Priority    int    `json:"priority"` // 0 applies the service default
	DelayMs     int    `json:"delay_ms"`
	CallbackURL string `json:"callback_url"`
}

// ListJobsRequest holds the query parameters of GET /api/v1/jobs
type ListJobsRequest struct {
	JobType       string `form:"job_type"`
	Status        string `form:"status"`
	WorkflowRunID string `form:"workflow_run_id"`
	PageSize      int    `form:"page_size"`
	Cursor        string `form:"cursor"`
}

// ListJobsResponse is the body of GET /api/v1/jobs
type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// JobDTO is the external representation of a job record
type JobDTO struct {
	JobID         string `json:"job_id"`
	WorkflowRunID string `json:"workflow_run_id,omitempty"`
	JobType       string `json:"job_type"`
	TargetURL     string `json:"target_url"`
	Status        string `json:"status"`
	Attempts      int    `json:"attempts"`
	StalledCount  int    `json:"stalled_count"`
	ErrorMessage  string `json:"error_message,omitempty"`
	Result        any    `json:"result,omitempty"`
	CreatedAt     string `json:"created_at"`
	StartedAt     string `json:"started_at,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// CreateWorkflowRequest is the body of POST /api/v1/workflows. Every member
// job inherits the workflow's callback URL unless it sets its own.
type CreateWorkflowRequest struct {
	Name        string             `json:"name"`
	CallbackURL string             `json:"callback_url"`
	Jobs        []CreateJobRequest `json:"jobs" binding:"required,min=1"`
}

// WorkflowDTO is the external representation of a workflow run
type WorkflowDTO struct {
	WorkflowRunID string   `json:"workflow_run_id"`
	Name          string   `json:"name,omitempty"`
	Status        string   `json:"status"`
	TotalJobs     int      `json:"total_jobs"`
	CompletedJobs int      `json:"completed_jobs"`
	FailedJobs    int      `json:"failed_jobs"`
	CreatedAt     string   `json:"created_at"`
	CompletedAt   string   `json:"completed_at,omitempty"`
	Jobs          []JobDTO `json:"jobs,omitempty"`
}

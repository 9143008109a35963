package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/connectly/outreach-be/internal/worker/domain"
)

const defaultCallbackTimeout = 10 * time.Second

// Store is the persistence surface the reporter and processor need
type Store interface {
	MarkProcessing(ctx context.Context, jobID string, attempt int) error
	MarkTerminal(ctx context.Context, jobID, status string, result map[string]any, errMsg string) error
	UpdateHeartbeat(ctx context.Context, jobID string) error
	GetJobRecord(ctx context.Context, jobID string) (*domain.JobRecord, error)
	IncrementStalled(ctx context.Context, jobID string) (int, error)
	RunCounters(ctx context.Context, runID string) (domain.RunCounters, error)
	UpdateRunCounters(ctx context.Context, runID string, c domain.RunCounters, status string) error
}

// Outcome describes how a job attempt finished
type Outcome struct {
	Status    string
	WillRetry bool
	Message   string
	Err       error
}

// Reporter records job outcomes: database state, workflow run aggregates,
// and the optional completion callback. Reporting never raises - each step
// is independently fault tolerant so one failing side effect does not block
// the others.
type Reporter struct {
	store   Store
	client  *http.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewReporter creates a reporter. A nil client gets a default with the
// callback timeout applied.
func NewReporter(store Store, client *http.Client, logger *slog.Logger) *Reporter {
	if client == nil {
		client = &http.Client{Timeout: defaultCallbackTimeout}
	}
	return &Reporter{
		store:   store,
		client:  client,
		logger:  logger,
		timeout: defaultCallbackTimeout,
	}
}

// ReportStart marks the job record processing. Failures are logged and
// swallowed - a missing start marker must not abort the attempt.
func (r *Reporter) ReportStart(ctx context.Context, job *domain.Job) {
	if err := r.store.MarkProcessing(ctx, job.ID, job.AttemptsMade+1); err != nil {
		r.logger.Error("Failed to mark job processing",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}
}

// ReportCompletion records the attempt outcome. For a retry outcome only the
// job record is touched; terminal outcomes additionally recompute the
// workflow run aggregate and deliver the completion callback.
func (r *Reporter) ReportCompletion(ctx context.Context, job *domain.Job, outcome Outcome) {
	errMsg := ""
	var result map[string]any
	if outcome.Err != nil {
		errMsg = outcome.Message
	} else {
		result = map[string]any{
			"success": true,
			"message": outcome.Message,
		}
	}

	if err := r.store.MarkTerminal(ctx, job.ID, outcome.Status, result, errMsg); err != nil {
		r.logger.Error("Failed to record job outcome",
			slog.String("job_id", job.ID),
			slog.String("status", outcome.Status),
			slog.Any("error", err),
		)
	}

	if outcome.WillRetry {
		return
	}

	if job.WorkflowRunID != "" {
		r.recomputeRun(ctx, job.WorkflowRunID)
	}

	if job.CallbackURL != "" {
		r.deliverCallback(ctx, job, outcome)
	}
}

// recomputeRun re-counts the run's member jobs and overwrites the aggregate.
// Full recount rather than increment, so concurrent reporters converge on
// the same final counters.
func (r *Reporter) recomputeRun(ctx context.Context, runID string) {
	counters, err := r.store.RunCounters(ctx, runID)
	if err != nil {
		r.logger.Error("Failed to read workflow run counters",
			slog.String("workflow_run_id", runID),
			slog.Any("error", err),
		)
		return
	}

	status := domain.ComputeRunStatus(counters)
	if err := r.store.UpdateRunCounters(ctx, runID, counters, status); err != nil {
		r.logger.Error("Failed to update workflow run",
			slog.String("workflow_run_id", runID),
			slog.Any("error", err),
		)
	}
}

// deliverCallback POSTs the terminal outcome to the caller-supplied URL.
// Single attempt, no retries; a non-2xx response or transport error is
// logged and dropped.
func (r *Reporter) deliverCallback(ctx context.Context, job *domain.Job, outcome Outcome) {
	payload := domain.CallbackPayload{
		JobID:      job.ID,
		WorkflowID: job.WorkflowRunID,
		Status:     outcome.Status,
		Result: domain.CallbackResult{
			Success:    outcome.Err == nil,
			JobID:      job.ID,
			ProfileURL: job.TargetURL,
			Action:     job.Type,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		},
	}
	if outcome.Err != nil {
		payload.Result.Error = outcome.Message
	} else {
		payload.Result.Message = outcome.Message
	}

	body, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("Failed to marshal callback payload",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, job.CallbackURL, bytes.NewReader(body))
	if err != nil {
		r.logger.Error("Failed to build callback request",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("Callback delivery failed",
			slog.String("job_id", job.ID),
			slog.String("callback_url", job.CallbackURL),
			slog.Any("error", err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Warn("Callback rejected",
			slog.String("job_id", job.ID),
			slog.String("callback_url", job.CallbackURL),
			slog.String("status", fmt.Sprintf("%d", resp.StatusCode)),
		)
		return
	}

	r.logger.Info("Callback delivered",
		slog.String("job_id", job.ID),
		slog.String("callback_url", job.CallbackURL),
	)
}

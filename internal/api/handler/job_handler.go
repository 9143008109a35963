package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/connectly/outreach-be/internal/api/dto"
	"github.com/connectly/outreach-be/internal/api/model"
	"github.com/connectly/outreach-be/internal/api/storage"
	"github.com/connectly/outreach-be/internal/worker/domain"
	"github.com/connectly/outreach-be/shared/rabbitmq"
)

const defaultPriority = 5

// validateJobRequest checks the fields the worker cannot process without.
// Returns a user-facing message, empty when the request is acceptable.
func validateJobRequest(req *dto.CreateJobRequest) string {
	if !domain.KnownJobType(req.Type) {
		return "type must be one of: invite, message, profile_view"
	}
	// Zero means unset; buildJob maps it to the default
	if req.Priority < 0 || req.Priority > rabbitmq.MaxPriority {
		return fmt.Sprintf("priority must be between 0 and %d", rabbitmq.MaxPriority)
	}
	if req.DelayMs < 0 {
		return "delay_ms must not be negative"
	}
	if req.Type == domain.JobTypeMessage && req.Message == "" {
		return "message is required for message jobs"
	}
	return ""
}

// buildJob turns a validated request into the queue message and the
// persisted record that mirrors it
func buildJob(req *dto.CreateJobRequest, workflowRunID string) (*domain.Job, *model.Job, error) {
	priority := req.Priority
	if priority == 0 {
		priority = defaultPriority
	}

	msg := &domain.Job{
		ID:            uuid.New().String(),
		Type:          req.Type,
		TargetURL:     req.TargetURL,
		Note:          req.Note,
		Message:       req.Message,
		Priority:      priority,
		DelayMs:       req.DelayMs,
		WorkflowRunID: workflowRunID,
		CallbackURL:   req.CallbackURL,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, nil, err
	}

	record := &model.Job{
		JobID:     msg.ID,
		JobType:   msg.Type,
		JobData:   data,
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if workflowRunID != "" {
		record.WorkflowRunID.String = workflowRunID
		record.WorkflowRunID.Valid = true
	}

	return msg, record, nil
}

// CreateJob handles POST /api/v1/jobs.
// Persists a pending job record, then enqueues the job message. The record
// is durable before the message exists, so the worker always finds a row to
// update.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if msg := validateJobRequest(&req); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	msg, record, err := buildJob(&req, "")
	if err != nil {
		h.logger.Error("Failed to build job message", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	if err := h.storage.CreateJob(c.Request.Context(), record); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	if err := h.publishJob(c, msg); err != nil {
		h.logger.Error("Failed to enqueue job",
			slog.String("job_id", msg.ID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	h.logger.Info("Job created",
		slog.String("job_id", msg.ID),
		slog.String("job_type", msg.Type),
		slog.Int("priority", msg.Priority),
		slog.Int("delay_ms", msg.DelayMs),
	)

	c.JSON(http.StatusCreated, jobToDTO(record))
}

func (h *JobHandler) publishJob(c *gin.Context, msg *domain.Job) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	delay := time.Duration(msg.DelayMs) * time.Millisecond
	return h.publisher.PublishJob(c.Request.Context(), body, msg.Priority, delay)
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.storage.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, jobToDTO(job))
}

// ListJobs handles GET /api/v1/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return
	}

	filter := storage.JobFilter{
		JobType:       req.JobType,
		Status:        req.Status,
		WorkflowRunID: req.WorkflowRunID,
		PageSize:      req.PageSize,
		Cursor:        cursor,
	}

	jobs, err := h.storage.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = *jobToDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor, err = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.JobID,
		})
		if err != nil {
			h.logger.Error("Failed to encode next cursor", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to encode next cursor",
			})
			return
		}
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// jobToDTO converts a job record to its external representation
func jobToDTO(job *model.Job) *dto.JobDTO {
	out := &dto.JobDTO{
		JobID:        job.JobID,
		JobType:      job.JobType,
		Status:       job.Status,
		Attempts:     job.Attempts,
		StalledCount: job.StalledCount,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
	}

	if job.WorkflowRunID.Valid {
		out.WorkflowRunID = job.WorkflowRunID.String
	}
	if job.StartedAt.Valid {
		out.StartedAt = job.StartedAt.Time.Format(time.RFC3339)
	}
	if job.CompletedAt.Valid {
		out.CompletedAt = job.CompletedAt.Time.Format(time.RFC3339)
	}
	if job.ErrorMessage.Valid {
		out.ErrorMessage = job.ErrorMessage.String
	}

	var data struct {
		TargetURL string `json:"target_url"`
	}
	if err := json.Unmarshal(job.JobData, &data); err == nil {
		out.TargetURL = data.TargetURL
	}

	if len(job.Result) > 0 {
		var result any
		if err := json.Unmarshal(job.Result, &result); err == nil {
			out.Result = result
		}
	}

	return out
}

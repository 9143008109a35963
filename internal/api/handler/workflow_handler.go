package handler

import (
	"database/sql"
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
)

// CreateWorkflow handles POST /api/v1/workflows.
// Persists the run aggregate and all member job records transactionally,
// then enqueues the member jobs. A job that fails to enqueue stays pending
// and surfaces through the run staying unfinished.
func (h *WorkflowHandler) CreateWorkflow(c *gin.Context) {
	var req dto.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	for i := range req.Jobs {
		if req.Jobs[i].CallbackURL == "" {
			req.Jobs[i].CallbackURL = req.CallbackURL
		}
		if msg := validateJobRequest(&req.Jobs[i]); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("job %d: %s", i, msg),
			})
			return
		}
	}

	runID := uuid.New().String()
	now := time.Now().UTC()

	run := &model.WorkflowRun{
		ID:        runID,
		Status:    domain.RunStatusPending,
		TotalJobs: len(req.Jobs),
		CreatedAt: now,
	}
	if req.Name != "" {
		run.Name = sql.NullString{String: req.Name, Valid: true}
	}
	if req.CallbackURL != "" {
		run.CallbackURL = sql.NullString{String: req.CallbackURL, Valid: true}
	}

	msgs := make([]*domain.Job, 0, len(req.Jobs))
	records := make([]model.Job, 0, len(req.Jobs))
	for i := range req.Jobs {
		msg, record, err := buildJob(&req.Jobs[i], runID)
		if err != nil {
			h.logger.Error("Failed to build job message", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create workflow",
			})
			return
		}
		msgs = append(msgs, msg)
		records = append(records, *record)
	}

	if err := h.storage.CreateWorkflowRun(c.Request.Context(), run, records); err != nil {
		h.logger.Error("Failed to create workflow run", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create workflow",
		})
		return
	}

	enqueued := 0
	for _, msg := range msgs {
		body, err := json.Marshal(msg)
		if err != nil {
			h.logger.Error("Failed to marshal job message",
				slog.String("job_id", msg.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		delay := time.Duration(msg.DelayMs) * time.Millisecond
		if err := h.publisher.PublishJob(c.Request.Context(), body, msg.Priority, delay); err != nil {
			h.logger.Error("Failed to enqueue workflow job",
				slog.String("job_id", msg.ID),
				slog.String("workflow_run_id", runID),
				slog.String("error", err.Error()),
			)
			continue
		}
		enqueued++
	}

	h.logger.Info("Workflow created",
		slog.String("workflow_run_id", runID),
		slog.Int("total_jobs", len(msgs)),
		slog.Int("enqueued", enqueued),
	)

	c.JSON(http.StatusCreated, runToDTO(run, nil))
}

// GetWorkflow handles GET /api/v1/workflows/:workflow_run_id
func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	runID := c.Param("workflow_run_id")

	if _, err := uuid.Parse(runID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "workflow_run_id must be a valid UUID",
		})
		return
	}

	run, err := h.storage.GetWorkflowRun(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, storage.ErrWorkflowNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Workflow run not found"})
			return
		}
		h.logger.Error("Failed to get workflow run", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get workflow run",
		})
		return
	}

	jobs, err := h.storage.ListWorkflowJobs(c.Request.Context(), runID)
	if err != nil {
		h.logger.Error("Failed to list workflow jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get workflow run",
		})
		return
	}

	c.JSON(http.StatusOK, runToDTO(run, jobs))
}

// runToDTO converts a workflow run and its member jobs to the external
// representation
func runToDTO(run *model.WorkflowRun, jobs []model.Job) *dto.WorkflowDTO {
	out := &dto.WorkflowDTO{
		WorkflowRunID: run.ID,
		Status:        run.Status,
		TotalJobs:     run.TotalJobs,
		CompletedJobs: run.CompletedJobs,
		FailedJobs:    run.FailedJobs,
		CreatedAt:     run.CreatedAt.Format(time.RFC3339),
	}
	if run.Name.Valid {
		out.Name = run.Name.String
	}
	if run.CompletedAt.Valid {
		out.CompletedAt = run.CompletedAt.Time.Format(time.RFC3339)
	}

	if len(jobs) > 0 {
		out.Jobs = make([]dto.JobDTO, len(jobs))
		for i := range jobs {
			out.Jobs[i] = *jobToDTO(&jobs[i])
		}
	}

	return out
}

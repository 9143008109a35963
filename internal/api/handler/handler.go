package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/connectly/outreach-be/internal/api/storage"
	"github.com/connectly/outreach-be/shared/postgresql"
	"github.com/connectly/outreach-be/shared/rabbitmq"
)

// QueuePublisher enqueues job messages for the worker fleet
type QueuePublisher interface {
	PublishJob(ctx context.Context, body []byte, priority int, delay time.Duration) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	DBClient     *postgresql.Client
	RabbitClient *rabbitmq.Client
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	storage   *storage.Storage
	publisher QueuePublisher
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		storage:   storage.NewStorage(deps.DBClient),
		publisher: deps.RabbitClient,
	}
}

// WorkflowHandler handles workflow run HTTP requests
type WorkflowHandler struct {
	logger    *slog.Logger
	storage   *storage.Storage
	publisher QueuePublisher
}

// NewWorkflowHandler creates a new WorkflowHandler instance
func NewWorkflowHandler(deps *Dependencies) *WorkflowHandler {
	return &WorkflowHandler{
		logger:    deps.Logger,
		storage:   storage.NewStorage(deps.DBClient),
		publisher: deps.RabbitClient,
	}
}

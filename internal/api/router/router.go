package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/connectly/outreach-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, allowedOrigins []string) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(allowedOrigins))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK

		if err := deps.DBClient.HealthCheck(c.Request.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		if !deps.RabbitClient.IsConnected() {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":  status,
			"service": "outreach-api-service",
		})
	})

	jobHandler := handler.NewJobHandler(deps)
	workflowHandler := handler.NewWorkflowHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Create and enqueue a new job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)
		}

		workflows := v1.Group("/workflows")
		{
			// POST /api/v1/workflows - Create a workflow run with member jobs
			workflows.POST("", workflowHandler.CreateWorkflow)

			// GET /api/v1/workflows/:workflow_run_id - Get run with its jobs
			workflows.GET("/:workflow_run_id", workflowHandler.GetWorkflow)
		}
	}

	return r
}

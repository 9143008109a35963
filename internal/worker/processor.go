package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/connectly/outreach-be/internal/actions"
	"github.com/connectly/outreach-be/internal/browser"
	"github.com/connectly/outreach-be/internal/worker/domain"
	"github.com/connectly/outreach-be/shared/metrics"
)

const (
	defaultJobTimeout        = 5 * time.Minute
	defaultHeartbeatInterval = 10 * time.Second
	defaultMaxAttempts       = 3
	reportTimeout            = 30 * time.Second
)

// SessionManager supplies isolated browser sessions to the processor
type SessionManager interface {
	Acquire(ctx context.Context) (*browser.Session, error)
	CheckHealth(ctx context.Context, sess *browser.Session) browser.Health
	Release(sess *browser.Session)
}

// ExecutorSource resolves job types to their action executors
type ExecutorSource interface {
	Get(jobType string) (actions.Executor, error)
}

// CompletionReporter records attempt outcomes
type CompletionReporter interface {
	ReportStart(ctx context.Context, job *domain.Job)
	ReportCompletion(ctx context.Context, job *domain.Job, outcome Outcome)
}

// ProcessorConfig tunes a single job attempt
type ProcessorConfig struct {
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	MaxAttempts       int
}

// Processor runs one job attempt end to end: session acquisition, action
// execution, error classification, and outcome reporting. It owns the per-job
// heartbeat and guarantees the session is released exactly once.
type Processor struct {
	sessions SessionManager
	registry ExecutorSource
	reporter CompletionReporter
	store    Store
	logger   *slog.Logger
	cfg      ProcessorConfig
}

// NewProcessor creates a job processor
func NewProcessor(sessions SessionManager, registry ExecutorSource, reporter CompletionReporter, store Store, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return &Processor{
		sessions: sessions,
		registry: registry,
		reporter: reporter,
		store:    store,
		logger:   logger,
		cfg:      cfg,
	}
}

// Process executes one attempt of the job. A nil return means the attempt
// settled (completed or terminally failed, both already reported); a
// RetryableError means the caller should requeue the job with backoff.
func (p *Processor) Process(ctx context.Context, job *domain.Job) error {
	attempt := job.AttemptsMade + 1
	log := p.logger.With(
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
		slog.Int("attempt", attempt),
	)

	start := time.Now()
	defer func() {
		metrics.JobDuration.WithLabelValues(job.Type).Observe(time.Since(start).Seconds())
	}()

	// Step 1: resolve the executor before touching any browser state
	executor, err := p.registry.Get(job.Type)
	if err != nil {
		log.Error("Unknown job type", slog.Any("error", err))
		p.report(job, Outcome{
			Status:  domain.JobStatusFailed,
			Message: err.Error(),
			Err:     err,
		})
		metrics.JobsProcessed.WithLabelValues(job.Type, "failed").Inc()
		return nil
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	// Step 2: mark the record processing and start the heartbeat
	p.reporter.ReportStart(jobCtx, job)

	hbDone := make(chan struct{})
	var hbWg sync.WaitGroup
	hbWg.Add(1)
	go p.heartbeat(job.ID, hbDone, &hbWg)

	stopHeartbeat := func() {
		close(hbDone)
		hbWg.Wait()
	}

	// Step 3: acquire an isolated browser session
	sess, err := p.sessions.Acquire(jobCtx)
	if err != nil {
		metrics.SessionAcquires.WithLabelValues("error").Inc()
		log.Error("Failed to acquire browser session", slog.Any("error", err))
		stopHeartbeat()
		return p.settle(job, attempt, err, log)
	}
	metrics.SessionAcquires.WithLabelValues("ok").Inc()
	defer p.sessions.Release(sess)

	// Step 4: probe session health before spending any effort on the action
	if health := p.sessions.CheckHealth(jobCtx, sess); !health.OK() {
		err := fmt.Errorf("%w: %s", domain.ErrSessionUnhealthy, health.Reason)
		log.Warn("Session failed health probe", slog.String("reason", health.Reason))
		stopHeartbeat()
		return p.settle(job, attempt, err, log)
	}

	// Step 5: run the action, bounded by the job deadline
	result, err := p.execute(jobCtx, executor, sess, job)
	stopHeartbeat()
	if err != nil {
		return p.settle(job, attempt, err, log)
	}

	log.Info("Job completed", slog.String("message", result.Message))
	p.report(job, Outcome{
		Status:  domain.JobStatusCompleted,
		Message: result.Message,
	})
	metrics.JobsProcessed.WithLabelValues(job.Type, "completed").Inc()
	return nil
}

// execute runs the action in its own goroutine so a wedged browser cannot
// outlive the job deadline. When the deadline fires first, the deferred
// session release tears the browser down and the straggler unblocks into a
// discarded error.
func (p *Processor) execute(jobCtx context.Context, executor actions.Executor, sess *browser.Session, job *domain.Job) (*actions.Result, error) {
	type execResult struct {
		result *actions.Result
		err    error
	}

	ch := make(chan execResult, 1)
	go func() {
		result, err := executor.Execute(jobCtx, sess.Page(), job)
		ch <- execResult{result: result, err: err}
	}()

	select {
	case r := <-ch:
		return r.result, r.err
	case <-jobCtx.Done():
		return nil, jobCtx.Err()
	}
}

// settle classifies the failure, reports it, and tells the caller whether to
// requeue. The retry status is written before returning so the record never
// claims processing for a job the worker has let go of.
func (p *Processor) settle(job *domain.Job, attempt int, err error, log *slog.Logger) error {
	cat := domain.Classify(err)
	msg := domain.FailureMessage(cat, err)
	willRetry := cat.Retryable && attempt < p.cfg.MaxAttempts

	status := domain.JobStatusFailed
	outcomeLabel := "failed"
	if willRetry {
		status = domain.JobStatusRetry
		outcomeLabel = "retry"
	}

	log.Warn("Job attempt failed",
		slog.String("error_type", string(cat.Type)),
		slog.Bool("retryable", cat.Retryable),
		slog.Bool("will_retry", willRetry),
		slog.Any("error", err),
	)

	p.report(job, Outcome{
		Status:    status,
		WillRetry: willRetry,
		Message:   msg,
		Err:       err,
	})
	metrics.JobsProcessed.WithLabelValues(job.Type, outcomeLabel).Inc()

	if willRetry {
		return domain.NewRetryableError(err)
	}
	return nil
}

// report delivers the outcome on a fresh context. The job context may already
// be expired and must not take the completion write down with it.
func (p *Processor) report(job *domain.Job, outcome Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()
	p.reporter.ReportCompletion(ctx, job, outcome)
}

// heartbeat refreshes the job's liveness timestamp and samples process memory
// until done is closed
func (p *Processor) heartbeat(jobID string, done <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.store.UpdateHeartbeat(ctx, jobID); err != nil {
				p.logger.Warn("Heartbeat write failed",
					slog.String("job_id", jobID),
					slog.Any("error", err),
				)
			}
			cancel()

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			metrics.HeartbeatMemoryBytes.Set(float64(mem.HeapInuse))
		}
	}
}

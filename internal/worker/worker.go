package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/connectly/outreach-be/internal/worker/domain"
	"github.com/connectly/outreach-be/shared/metrics"
)

const (
	defaultConcurrency    = 1
	defaultPrefetchCount  = 1
	defaultHealthInterval = 30 * time.Second
	defaultDrainTimeout   = 60 * time.Second
	defaultRetryBaseDelay = 5 * time.Second
	maxStalledRetries     = 1
)

// Queue is the broker surface the supervisor consumes from and requeues to
type Queue interface {
	Consume(consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
	CancelConsumer(consumerTag string) error
	PublishJob(ctx context.Context, body []byte, priority int, delay time.Duration) error
	Ping() (time.Duration, error)
	IsConnected() bool
}

// JobRunner executes one job attempt
type JobRunner interface {
	Process(ctx context.Context, job *domain.Job) error
}

// Config holds worker supervisor configuration
type Config struct {
	Logger         *slog.Logger
	Queue          Queue
	Runner         JobRunner
	Store          Store
	Reporter       CompletionReporter
	Concurrency    int
	PrefetchCount  int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	HealthInterval time.Duration
	DrainTimeout   time.Duration
}

// Worker supervises the consume-process-acknowledge loop: it owns the broker
// consumer, the processing pool, the periodic health probe, and graceful
// drain on shutdown.
type Worker struct {
	logger         *slog.Logger
	queue          Queue
	runner         JobRunner
	store          Store
	reporter       CompletionReporter
	concurrency    int
	prefetchCount  int
	maxAttempts    int
	retryBaseDelay time.Duration
	healthInterval time.Duration
	drainTimeout   time.Duration

	workerID string
	jobsChan chan *jobDelivery
	stopChan chan struct{}
	doneChan chan struct{}
	wg       sync.WaitGroup
	inFlight atomic.Int64
	stopped  atomic.Bool
}

// NewWorker creates a worker supervisor
func NewWorker(cfg *Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PrefetchCount <= 0 {
		cfg.PrefetchCount = defaultPrefetchCount
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}

	return &Worker{
		logger:         cfg.Logger,
		queue:          cfg.Queue,
		runner:         cfg.Runner,
		store:          cfg.Store,
		reporter:       cfg.Reporter,
		concurrency:    cfg.Concurrency,
		prefetchCount:  cfg.PrefetchCount,
		maxAttempts:    cfg.MaxAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		healthInterval: cfg.HealthInterval,
		drainTimeout:   cfg.DrainTimeout,
		workerID:       fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		jobsChan:       make(chan *jobDelivery),
		stopChan:       make(chan struct{}),
		doneChan:       make(chan struct{}),
	}
}

// Start wires the consumer, dispatcher, pool, and health probe. Returns once
// everything is running; shutdown is driven by Shutdown.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(1)
	go w.healthLoop()

	go w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Shutdown drains in-flight jobs and stops the pool. Idempotent - repeated
// calls after the first are no-ops.
func (w *Worker) Shutdown(ctx context.Context) {
	if !w.stopped.CompareAndSwap(false, true) {
		return
	}

	w.logger.Info("Shutting down worker",
		slog.String("worker_id", w.workerID),
		slog.Int64("in_flight", w.inFlight.Load()),
	)

	if err := w.queue.CancelConsumer(w.workerID); err != nil {
		w.logger.Warn("Failed to cancel consumer", slog.Any("error", err))
	}

	w.drain(ctx)

	close(w.stopChan)
	w.wg.Wait()
	close(w.doneChan)
	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))
}

// Done is closed once the worker has fully stopped. It lets the process
// exit when the worker shuts itself down, such as after a processing panic.
func (w *Worker) Done() <-chan struct{} {
	return w.doneChan
}

// drain polls the in-flight counter until it reaches zero or the drain
// window closes. Jobs still running past the window are abandoned to their
// heartbeat; redelivery picks them up as stalled.
func (w *Worker) drain(ctx context.Context) {
	deadline := time.NewTimer(w.drainTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		n := w.inFlight.Load()
		if n == 0 {
			w.logger.Info("All in-flight jobs drained")
			return
		}

		select {
		case <-ticker.C:
			w.logger.Info("Waiting for in-flight jobs",
				slog.Int64("in_flight", n),
			)
		case <-deadline.C:
			w.logger.Warn("Drain window closed with jobs still running",
				slog.Int64("abandoned", n),
			)
			return
		case <-ctx.Done():
			w.logger.Warn("Shutdown context canceled during drain",
				slog.Int64("abandoned", n),
			)
			return
		}
	}
}

// healthLoop periodically probes broker connectivity and publishes the
// in-flight gauge. Probe failures are logged, never acted on - the consumer
// channel closing is the real disconnection signal.
func (w *Worker) healthLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			latency, err := w.queue.Ping()
			if err != nil {
				w.logger.Warn("Queue health probe failed",
					slog.String("worker_id", w.workerID),
					slog.Bool("connected", w.queue.IsConnected()),
					slog.Any("error", err),
				)
				continue
			}
			metrics.QueuePingSeconds.Set(latency.Seconds())
			w.logger.Debug("Queue health probe",
				slog.Duration("latency", latency),
				slog.Int64("in_flight", w.inFlight.Load()),
			)
		}
	}
}

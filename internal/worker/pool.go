package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/connectly/outreach-be/internal/worker/domain"
	"github.com/connectly/outreach-be/shared/metrics"
)

// spawnWorkerPool starts the configured number of processing goroutines
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned",
		slog.Int("worker_count", w.concurrency),
		slog.String("worker_id", w.workerID),
	)
}

// workerLoop is the processing loop of one pool goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started", slog.String("worker_name", workerName))

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping", slog.String("worker_name", workerName))
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				return
			}

			w.inFlight.Add(1)
			metrics.JobsInFlight.Inc()
			w.handleDelivery(ctx, msg, workerName)
			metrics.JobsInFlight.Dec()
			w.inFlight.Add(-1)
		}
	}
}

// handleDelivery runs one job attempt and settles the broker delivery.
// Every path ends in exactly one ack or nack.
func (w *Worker) handleDelivery(ctx context.Context, msg *jobDelivery, workerName string) {
	job := msg.job
	log := w.logger.With(
		slog.String("worker_name", workerName),
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
	)

	// A panic out of the processor is a process-level fault: return the
	// delivery to the broker so redelivery runs it through the stalled
	// policy, then take the worker through the same drain path as a
	// termination signal.
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while processing job, shutting worker down",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			w.nackRequeue(msg, log)
			go func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), w.drainTimeout+10*time.Second)
				defer cancel()
				w.Shutdown(shutdownCtx)
			}()
		}
	}()

	if job.Redelivered {
		if done := w.handleRedelivery(ctx, msg, log); done {
			return
		}
	}

	err := w.runner.Process(ctx, job)
	if err == nil {
		w.ack(msg, log)
		return
	}

	if domain.IsRetryable(err) {
		w.requeueWithBackoff(ctx, msg, log)
		return
	}

	// The processor reports terminal outcomes itself; anything surfacing
	// here is already recorded and the delivery just needs to be settled
	log.Error("Job attempt returned non-retryable error", slog.Any("error", err))
	w.ack(msg, log)
}

// handleRedelivery applies the stalled job policy. A redelivered message
// whose record still claims processing means a previous worker died mid-job:
// grant one forced re-attempt, then fail the job terminally. Returns true
// when the delivery has been settled and processing must not proceed.
func (w *Worker) handleRedelivery(ctx context.Context, msg *jobDelivery, log *slog.Logger) bool {
	job := msg.job

	record, err := w.store.GetJobRecord(ctx, job.ID)
	if err != nil {
		// Without the record there is no stall evidence; process normally
		log.Warn("Could not load record for redelivered job", slog.Any("error", err))
		return false
	}
	if record.Status != domain.JobStatusProcessing {
		return false
	}

	count, err := w.store.IncrementStalled(ctx, job.ID)
	if err != nil {
		log.Error("Failed to record stall", slog.Any("error", err))
		return false
	}

	if count <= maxStalledRetries {
		log.Warn("Job stalled, granting forced re-attempt",
			slog.Int("stalled_count", count),
		)
		return false
	}

	log.Error("Job stalled repeatedly, failing terminally",
		slog.Int("stalled_count", count),
	)
	stallErr := errors.New("job stalled: worker lost mid-attempt more than once")
	w.reporter.ReportCompletion(ctx, job, Outcome{
		Status:  domain.JobStatusFailed,
		Message: stallErr.Error(),
		Err:     stallErr,
	})
	metrics.JobsProcessed.WithLabelValues(job.Type, "failed").Inc()
	w.ack(msg, log)
	return true
}

// requeueWithBackoff republishes the job with its attempt counter advanced
// and the retry delay applied, then acknowledges the original delivery. The
// republished copy is durable before the original is dropped, so the job
// survives a crash in between at the cost of a possible duplicate.
func (w *Worker) requeueWithBackoff(ctx context.Context, msg *jobDelivery, log *slog.Logger) {
	job := msg.job

	retry := *job
	retry.AttemptsMade = job.AttemptsMade + 1
	delay := retryDelay(w.retryBaseDelay, job.AttemptsMade)

	body, err := json.Marshal(&retry)
	if err != nil {
		log.Error("Failed to marshal retry message", slog.Any("error", err))
		w.nackRequeue(msg, log)
		return
	}

	if err := w.queue.PublishJob(ctx, body, job.Priority, delay); err != nil {
		log.Error("Failed to republish job for retry", slog.Any("error", err))
		// Fall back to broker-level requeue so the attempt is not lost
		w.nackRequeue(msg, log)
		return
	}

	log.Info("Job requeued for retry",
		slog.Int("next_attempt", retry.AttemptsMade+1),
		slog.Duration("delay", delay),
	)
	w.ack(msg, log)
}

// retryDelay doubles the base delay per prior attempt
func retryDelay(base time.Duration, attemptsMade int) time.Duration {
	return base << attemptsMade
}

func (w *Worker) ack(msg *jobDelivery, log *slog.Logger) {
	if err := msg.delivery.Ack(false); err != nil {
		log.Error("Failed to ACK message",
			slog.Uint64("delivery_tag", msg.delivery.DeliveryTag),
			slog.Any("error", err),
		)
	}
}

func (w *Worker) nackRequeue(msg *jobDelivery, log *slog.Logger) {
	if err := msg.delivery.Nack(false, true); err != nil {
		log.Error("Failed to NACK message",
			slog.Uint64("delivery_tag", msg.delivery.DeliveryTag),
			slog.Any("error", err),
		)
	}
}

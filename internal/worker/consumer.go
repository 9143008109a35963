package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/connectly/outreach-be/internal/worker/domain"
)

// jobDelivery pairs a parsed job with the broker delivery it arrived on
type jobDelivery struct {
	job      *domain.Job
	delivery amqp.Delivery
}

// setupConsumer starts the broker consumer with the configured prefetch.
// Prefetch bounds unacknowledged deliveries per consumer so a slow worker
// does not hoard the queue.
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.queue.Consume(w.workerID, w.prefetchCount)
	if err != nil {
		return nil, err
	}

	w.logger.Info("Consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.Int("prefetch_count", w.prefetchCount),
	)
	return deliveries, nil
}

// startMessageDispatcher reads broker deliveries, parses them, and hands them
// to the worker pool. A closed delivery channel ends the dispatcher - that is
// either shutdown (consumer canceled) or a lost connection.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started", slog.String("worker_id", w.workerID))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Info("Delivery channel closed, dispatcher stopping",
					slog.Bool("connected", w.queue.IsConnected()),
				)
				return
			}

			job, err := parseJob(delivery)
			if err != nil {
				w.logger.Error("Discarding malformed message",
					slog.String("body", string(delivery.Body)),
					slog.Any("error", err),
				)
				// No requeue - a malformed body cannot become valid
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message", slog.Any("error", nackErr))
				}
				continue
			}

			select {
			case w.jobsChan <- &jobDelivery{job: job, delivery: delivery}:
				w.logger.Debug("Job dispatched",
					slog.String("job_id", job.ID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Dispatcher stopped while dispatching, requeueing job",
					slog.String("job_id", job.ID),
				)
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown", slog.Any("error", nackErr))
				}
				return
			}
		}
	}
}

// parseJob decodes a queue message into a job and validates the fields the
// processor cannot work without
func parseJob(delivery amqp.Delivery) (*domain.Job, error) {
	var job domain.Job
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, domain.ErrMissingJobID
	}
	if job.TargetURL == "" {
		return nil, domain.ErrMissingTargetURL
	}

	job.DeliveryTag = delivery.DeliveryTag
	job.Redelivered = delivery.Redelivered
	return &job, nil
}

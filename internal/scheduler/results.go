package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
	"github.com/monicap360/move-around-tms-sub008/shared/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ResultConsumer listens on the results queue for the workers' terminal
// callbacks and feeds them into ReleaseSlot. The worker boundary promises
// exactly one callback per dispatched job; broker redelivery can still
// replay one, which ReleaseSlot rejects and the consumer then ACKs away.
type ResultConsumer struct {
	client    *rabbitmq.Client
	scheduler *Scheduler
	queueName string
	logger    *slog.Logger
}

// NewResultConsumer creates a consumer for the given results queue
func NewResultConsumer(client *rabbitmq.Client, scheduler *Scheduler, queueName string, logger *slog.Logger) *ResultConsumer {
	return &ResultConsumer{
		client:    client,
		scheduler: scheduler,
		queueName: queueName,
		logger:    logger,
	}
}

// Start consumes result messages until the context is cancelled
func (c *ResultConsumer) Start(ctx context.Context) error {
	deliveries, err := c.client.Consume(c.queueName, "payroll-results")
	if err != nil {
		return err
	}

	c.logger.Info("Result consumer started",
		slog.String("queue", c.queueName),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Result consumer stopped - context canceled")
			return ctx.Err()

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("Results delivery channel closed")
				return nil
			}

			c.handleDelivery(ctx, delivery)
		}
	}
}

func (c *ResultConsumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var result domain.JobResult
	if err := json.Unmarshal(delivery.Body, &result); err != nil {
		c.logger.Error("Failed to parse result message",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		c.nack(delivery, false)
		return
	}

	if _, err := uuid.Parse(result.JobID); err != nil {
		c.logger.Error("Invalid job_id in result message",
			slog.String("job_id", result.JobID),
		)
		c.nack(delivery, false)
		return
	}

	if result.Status != domain.StatusCompleted && result.Status != domain.StatusFailed {
		c.logger.Error("Result message carries non-terminal status",
			slog.String("job_id", result.JobID),
			slog.String("status", string(result.Status)),
		)
		c.nack(delivery, false)
		return
	}

	err := c.scheduler.ReleaseSlot(ctx, result.JobID, result.Status, result.Reason)
	switch {
	case err == nil:
		c.ack(delivery)

	case errors.Is(err, domain.ErrSlotNotHeld) || errors.Is(err, domain.ErrInvalidTransition):
		// Replayed or stale callback (e.g. the job was cancelled while the
		// worker was still computing). Nothing left to apply.
		c.logger.Warn("Dropping stale result callback",
			slog.String("job_id", result.JobID),
			slog.String("status", string(result.Status)),
			slog.String("error", err.Error()),
		)
		c.ack(delivery)

	default:
		// Store failure: keep the message for redelivery so the terminal
		// status is not lost.
		c.logger.Error("Failed to apply result callback, requeueing",
			slog.String("job_id", result.JobID),
			slog.Any("error", err),
		)
		c.nack(delivery, true)
	}
}

func (c *ResultConsumer) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		c.logger.Error("Failed to ACK result message",
			slog.String("error", err.Error()),
		)
	}
}

func (c *ResultConsumer) nack(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		c.logger.Error("Failed to NACK result message",
			slog.String("error", err.Error()),
		)
	}
}

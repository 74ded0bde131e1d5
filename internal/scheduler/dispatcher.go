package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
	"github.com/monicap360/move-around-tms-sub008/shared/rabbitmq"
)

// AMQPDispatcher publishes promoted jobs to the dispatch queue consumed
// by the payroll workers.
type AMQPDispatcher struct {
	client     *rabbitmq.Client
	routingKey string
	logger     *slog.Logger
}

// NewAMQPDispatcher creates a dispatcher publishing under the given routing key
func NewAMQPDispatcher(client *rabbitmq.Client, routingKey string, logger *slog.Logger) *AMQPDispatcher {
	return &AMQPDispatcher{
		client:     client,
		routingKey: routingKey,
		logger:     logger,
	}
}

// Dispatch hands a promoted job to the worker boundary
func (d *AMQPDispatcher) Dispatch(ctx context.Context, job *domain.PayrollJob) error {
	msg := domain.DispatchMessage{
		JobID:    job.ID,
		TenantID: job.TenantID,
		Metadata: job.Metadata,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch message: %w", err)
	}

	if err := d.client.PublishWithRetry(ctx, d.routingKey, body); err != nil {
		return fmt.Errorf("failed to dispatch job %s: %w", job.ID, err)
	}

	d.logger.Debug("Job dispatched to worker boundary",
		slog.String("job_id", job.ID),
		slog.String("routing_key", d.routingKey),
	)

	return nil
}

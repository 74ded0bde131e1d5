package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
)

// processJob runs the payroll computation for one dispatched job and
// publishes its terminal status to the results queue. The publish is the
// only part that may fail here; the error makes the caller NACK-requeue
// the dispatch so the callback eventually reaches the scheduler.
func (w *Worker) processJob(ctx context.Context, delivery *jobDelivery) error {
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result := domain.JobResult{
		JobID:  delivery.msg.JobID,
		Status: domain.StatusCompleted,
	}

	if err := w.computeRun(jobCtx, delivery.msg); err != nil {
		w.logger.Error("Payroll computation failed",
			slog.String("job_id", delivery.msg.JobID),
			slog.String("error", err.Error()),
		)
		result.Status = domain.StatusFailed
		result.Reason = err.Error()
	}

	return w.publishResult(ctx, result)
}

// computeRun stands in for the payroll computation engine. The real
// engine lives behind this boundary; the scheduler only cares that it
// finishes with completed or failed.
func (w *Worker) computeRun(ctx context.Context, msg domain.DispatchMessage) error {
	w.logger.Info("Computing payroll run",
		slog.String("job_id", msg.JobID),
		slog.String("tenant_id", msg.TenantID),
	)

	select {
	case <-time.After(2 * time.Second):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("payroll computation canceled: %w", ctx.Err())
	}
}

// publishResult reports the run's terminal status to the scheduler
func (w *Worker) publishResult(ctx context.Context, result domain.JobResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := w.rabbitClient.PublishWithRetry(ctx, w.resultsRoutingKey, body); err != nil {
		return fmt.Errorf("failed to publish result for job %s: %w", result.JobID, err)
	}

	w.logger.Info("Payroll run result published",
		slog.String("job_id", result.JobID),
		slog.String("status", string(result.Status)),
	)

	return nil
}

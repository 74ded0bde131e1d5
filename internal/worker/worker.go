package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
	"github.com/monicap360/move-around-tms-sub008/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	RabbitClient      *rabbitmq.Client
	DispatchQueue     string
	ResultsRoutingKey string
	Concurrency       int
	JobTimeout        time.Duration
	PrefetchCount     int
}

// Worker consumes dispatched payroll runs, executes the computation, and
// reports each run's terminal status back on the results queue. The
// scheduler owns all lifecycle bookkeeping; the worker never touches the
// store directly.
type Worker struct {
	logger            *slog.Logger
	rabbitClient      *rabbitmq.Client
	dispatchQueue     string
	resultsRoutingKey string
	concurrency       int
	jobTimeout        time.Duration
	prefetchCount     int
	workerID          string

	jobsChan chan *jobDelivery
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// jobDelivery pairs a parsed dispatch message with its broker delivery tag
type jobDelivery struct {
	msg         domain.DispatchMessage
	deliveryTag uint64
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = cfg.Concurrency
	}

	return &Worker{
		logger:            cfg.Logger,
		rabbitClient:      cfg.RabbitClient,
		dispatchQueue:     cfg.DispatchQueue,
		resultsRoutingKey: cfg.ResultsRoutingKey,
		concurrency:       cfg.Concurrency,
		jobTimeout:        cfg.JobTimeout,
		prefetchCount:     prefetch,
		workerID:          fmt.Sprintf("payroll-worker-%s", uuid.New().String()[:8]),
		jobsChan:          make(chan *jobDelivery),
		stopChan:          make(chan struct{}),
	}
}

// Start begins consuming and processing dispatched jobs
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting payroll worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker pool
func (w *Worker) Stop() {
	w.logger.Info("Stopping payroll worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Payroll worker stopped")
}

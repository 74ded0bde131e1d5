package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/monicap360/move-around-tms-sub008/internal/api/dto"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/storage"
)

// JobReader is the read-only store surface the handlers render from
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*domain.PayrollJob, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.PayrollJob, error)
	ListEvents(ctx context.Context, jobID string) ([]domain.PayrollJobEvent, error)
}

// Pinger checks a dependency's liveness for the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Scheduler *scheduler.Scheduler
	Reader    JobReader
	Health    scheduler.HealthChecker
	DB        Pinger
}

// PayrollHandler handles payroll run HTTP requests
type PayrollHandler struct {
	logger    *slog.Logger
	scheduler *scheduler.Scheduler
	reader    JobReader
	health    scheduler.HealthChecker
	db        Pinger
}

// NewPayrollHandler creates a new PayrollHandler instance
func NewPayrollHandler(deps *Dependencies) *PayrollHandler {
	return &PayrollHandler{
		logger:    deps.Logger,
		scheduler: deps.Scheduler,
		reader:    deps.Reader,
		health:    deps.Health,
		db:        deps.DB,
	}
}

func toJobDTO(job *domain.PayrollJob) dto.PayrollJobDTO {
	return dto.PayrollJobDTO{
		JobID:         job.ID,
		TenantID:      job.TenantID,
		RequestedBy:   job.RequestedBy,
		Status:        string(job.Status),
		Priority:      string(job.Priority),
		Metadata:      job.Metadata,
		FailureReason: job.FailureReason,
		CreatedAt:     job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     job.UpdatedAt.Format(time.RFC3339),
	}
}

func toEventDTO(event *domain.PayrollJobEvent) dto.JobEventDTO {
	return dto.JobEventDTO{
		EventType: string(event.Type),
		Message:   event.Message,
		Metadata:  event.Metadata,
		CreatedAt: event.CreatedAt.Format(time.RFC3339),
	}
}

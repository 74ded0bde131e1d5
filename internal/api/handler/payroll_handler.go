package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/monicap360/move-around-tms-sub008/internal/api/dto"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/storage"
)

// SubmitPayrollRun handles POST /api/v1/payroll-runs
// Admits a payroll computation run for a tenant. When the tenant already
// has an active run the existing run is returned, so repeated submits
// are safe.
func (h *PayrollHandler) SubmitPayrollRun(c *gin.Context) {
	var req dto.SubmitPayrollRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	priority, err := domain.ParsePriority(req.Priority)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "priority must be one of low, normal, high",
		})
		return
	}

	result, err := h.scheduler.SubmitJob(c.Request.Context(), scheduler.SubmitRequest{
		TenantID:    req.TenantID,
		RequestedBy: req.RequestedBy,
		Priority:    priority,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.logger.Error("Failed to submit payroll run", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit payroll run",
		})
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusAccepted
	}

	c.JSON(status, dto.SubmitPayrollRunResponse{
		Job:     toJobDTO(result.Job),
		Created: result.Created,
		Message: result.Message,
	})
}

// GetPayrollRun handles GET /api/v1/payroll-runs/:job_id
func (h *PayrollHandler) GetPayrollRun(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.reader.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "payroll run not found",
			})
			return
		}
		h.logger.Error("Failed to get payroll run", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get payroll run",
		})
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// ListPayrollRuns handles GET /api/v1/payroll-runs
// Lists runs with optional tenant/status filtering and cursor pagination
func (h *PayrollHandler) ListPayrollRuns(c *gin.Context) {
	var req dto.ListPayrollRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.reader.ListJobs(c.Request.Context(), storage.JobFilter{
		TenantID: req.TenantID,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list payroll runs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list payroll runs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobDTOs := make([]dto.PayrollJobDTO, len(jobs))
	for i := range jobs {
		jobDTOs[i] = toJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListPayrollRunsResponse{
		Jobs:       jobDTOs,
		NextCursor: nextCursor,
	})
}

// ListPayrollRunEvents handles GET /api/v1/payroll-runs/:job_id/events
// Renders the run's append-only audit trail
func (h *PayrollHandler) ListPayrollRunEvents(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	// Missing job vs job with no events: the trail always has at least the
	// admission event, so check existence explicitly.
	if _, err := h.reader.GetJob(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "payroll run not found",
			})
			return
		}
		h.logger.Error("Failed to get payroll run", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list events",
		})
		return
	}

	events, err := h.reader.ListEvents(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to list payroll run events", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list events",
		})
		return
	}

	eventDTOs := make([]dto.JobEventDTO, len(events))
	for i := range events {
		eventDTOs[i] = toEventDTO(&events[i])
	}

	c.JSON(http.StatusOK, dto.ListJobEventsResponse{
		JobID:  jobID,
		Events: eventDTOs,
	})
}

// jobIDParam validates the :job_id path parameter
func (h *PayrollHandler) jobIDParam(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}
	return jobID, true
}

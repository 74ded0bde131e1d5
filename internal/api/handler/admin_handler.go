package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/monicap360/move-around-tms-sub008/internal/api/dto"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
)

// CancelPayrollRun handles POST /api/v1/payroll-runs/:job_id/cancel
// Cancels a run wherever it is in its lifecycle; a finished run is
// rejected with 409.
func (h *PayrollHandler) CancelPayrollRun(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	var req dto.CancelJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "reason is required",
		})
		return
	}

	job, err := h.scheduler.CancelJob(c.Request.Context(), jobID, req.Reason)
	if err != nil {
		h.renderTransitionError(c, jobID, err, "cancel")
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// RerunPayrollRun handles POST /api/v1/payroll-runs/:job_id/rerun
// Clones a finished run into a fresh high-priority submission
func (h *PayrollHandler) RerunPayrollRun(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	result, err := h.scheduler.RerunJob(c.Request.Context(), jobID)
	if err != nil {
		h.renderTransitionError(c, jobID, err, "rerun")
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

// PausePayrollRun handles POST /api/v1/payroll-runs/:job_id/pause
func (h *PayrollHandler) PausePayrollRun(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	var req dto.PauseJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "reason is required",
		})
		return
	}

	job, err := h.scheduler.PauseJob(c.Request.Context(), jobID, req.Reason)
	if err != nil {
		h.renderTransitionError(c, jobID, err, "pause")
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// ResumePayrollRun handles POST /api/v1/payroll-runs/:job_id/resume
func (h *PayrollHandler) ResumePayrollRun(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.scheduler.ResumeJob(c.Request.Context(), jobID)
	if err != nil {
		h.renderTransitionError(c, jobID, err, "resume")
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// GetSchedulerState handles GET /api/v1/scheduler
// Renders the pause flag, slot usage, and the current health snapshot
func (h *PayrollHandler) GetSchedulerState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"scheduler": h.scheduler.CurrentState(),
		"health":    h.health.Check(c.Request.Context()),
	})
}

// PauseQueue handles POST /api/v1/scheduler/pause
func (h *PayrollHandler) PauseQueue(c *gin.Context) {
	var req dto.PauseQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "reason is required",
		})
		return
	}

	h.scheduler.PauseQueue(req.Reason)

	c.JSON(http.StatusOK, gin.H{
		"scheduler": h.scheduler.CurrentState(),
	})
}

// ResumeQueue handles POST /api/v1/scheduler/resume
func (h *PayrollHandler) ResumeQueue(c *gin.Context) {
	h.scheduler.ResumeQueue(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"scheduler": h.scheduler.CurrentState(),
	})
}

// HealthCheck handles GET /health
func (h *PayrollHandler) HealthCheck(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "payroll-api-service",
	})
}

func (h *PayrollHandler) renderTransitionError(c *gin.Context, jobID string, err error, op string) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "payroll run not found",
		})
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrSlotNotHeld):
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
		})
	default:
		h.logger.Error("Payroll run operation failed",
			slog.String("op", op),
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to " + op + " payroll run",
		})
	}
}

package router

import (
	"github.com/gin-gonic/gin"
	"github.com/monicap360/move-around-tms-sub008/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	payrollHandler := handler.NewPayrollHandler(deps)

	// Health check endpoint
	r.GET("/health", payrollHandler.HealthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		runs := v1.Group("/payroll-runs")
		{
			// POST /api/v1/payroll-runs - Submit a payroll run
			runs.POST("", payrollHandler.SubmitPayrollRun)

			// GET /api/v1/payroll-runs - List runs with filtering and pagination
			runs.GET("", payrollHandler.ListPayrollRuns)

			// GET /api/v1/payroll-runs/:job_id - Get run details
			runs.GET("/:job_id", payrollHandler.GetPayrollRun)

			// GET /api/v1/payroll-runs/:job_id/events - Lifecycle audit trail
			runs.GET("/:job_id/events", payrollHandler.ListPayrollRunEvents)

			// POST /api/v1/payroll-runs/:job_id/cancel - Cancel a run
			runs.POST("/:job_id/cancel", payrollHandler.CancelPayrollRun)

			// POST /api/v1/payroll-runs/:job_id/rerun - Clone a finished run
			runs.POST("/:job_id/rerun", payrollHandler.RerunPayrollRun)

			// POST /api/v1/payroll-runs/:job_id/pause - Pause a single run
			runs.POST("/:job_id/pause", payrollHandler.PausePayrollRun)

			// POST /api/v1/payroll-runs/:job_id/resume - Resume a paused run
			runs.POST("/:job_id/resume", payrollHandler.ResumePayrollRun)
		}

		sched := v1.Group("/scheduler")
		{
			// GET /api/v1/scheduler - Scheduler state and health snapshot
			sched.GET("", payrollHandler.GetSchedulerState)

			// POST /api/v1/scheduler/pause - Operator queue pause
			sched.POST("/pause", payrollHandler.PauseQueue)

			// POST /api/v1/scheduler/resume - Operator queue resume
			sched.POST("/resume", payrollHandler.ResumeQueue)
		}
	}

	return r
}

package dto

// SubmitPayrollRunRequest is the body of POST /api/v1/payroll-runs
type SubmitPayrollRunRequest struct {
	TenantID    string            `json:"tenant_id" binding:"required"`
	RequestedBy string            `json:"requested_by" binding:"required"`
	Priority    string            `json:"priority"`
	Metadata    map[string]string `json:"metadata"`
}

// SubmitPayrollRunResponse reports the admitted (or already active) run
type SubmitPayrollRunResponse struct {
	Job     PayrollJobDTO `json:"job"`
	Created bool          `json:"created"`
	Message string        `json:"message"`
}

// ListPayrollRunsRequest holds the query parameters of GET /api/v1/payroll-runs
type ListPayrollRunsRequest struct {
	TenantID string `form:"tenant_id"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListPayrollRunsResponse is a page of runs plus the cursor for the next one
type ListPayrollRunsResponse struct {
	Jobs       []PayrollJobDTO `json:"jobs"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// PayrollJobDTO is the wire shape of a payroll run
type PayrollJobDTO struct {
	JobID         string            `json:"job_id"`
	TenantID      string            `json:"tenant_id"`
	RequestedBy   string            `json:"requested_by"`
	Status        string            `json:"status"`
	Priority      string            `json:"priority"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
}

// JobEventDTO is the wire shape of one audit trail entry
type JobEventDTO struct {
	EventType string            `json:"event_type"`
	Message   string            `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
}

// ListJobEventsResponse is a job's full audit trail
type ListJobEventsResponse struct {
	JobID  string        `json:"job_id"`
	Events []JobEventDTO `json:"events"`
}

// CancelJobRequest is the body of POST /api/v1/payroll-runs/:job_id/cancel
type CancelJobRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// PauseJobRequest is the body of POST /api/v1/payroll-runs/:job_id/pause
type PauseJobRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// PauseQueueRequest is the body of POST /api/v1/scheduler/pause
type PauseQueueRequest struct {
	Reason string `json:"reason" binding:"required"`
}

package domain

// DispatchMessage is published to the dispatch queue when a job is
// promoted to running. The payroll computation itself happens on the
// consuming side; this subsystem only hands over the job.
type DispatchMessage struct {
	JobID    string            `json:"job_id"`
	TenantID string            `json:"tenant_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// JobResult is the worker's terminal callback, published to the results
// queue exactly once per dispatched job. Status must be completed or
// failed; cancellation is operator-driven and never reported here.
type JobResult struct {
	JobID  string `json:"job_id"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

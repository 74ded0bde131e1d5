package domain

import "time"

// Metadata keys maintained by the scheduler itself. Everything else in a
// job's metadata is opaque caller payload (pay period, notes, ...).
const (
	MetaPauseReason = "pause_reason"
	MetaPausedBy    = "paused_by"
	MetaSourceJobID = "source_job_id"
)

// Values for the MetaPausedBy key.
const (
	PausedByHealth   = "health"
	PausedByOperator = "operator"
)

// PayrollJob is one requested payroll computation run.
type PayrollJob struct {
	ID            string
	TenantID      string
	RequestedBy   string
	Status        Status
	Priority      Priority
	Metadata      map[string]string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CloneMetadata returns a copy of the job's metadata map, never nil.
func (j *PayrollJob) CloneMetadata() map[string]string {
	out := make(map[string]string, len(j.Metadata))
	for k, v := range j.Metadata {
		out[k] = v
	}
	return out
}

// PayrollJobEvent is an immutable audit entry. Events are append-only and
// totally ordered per job by CreatedAt.
type PayrollJobEvent struct {
	ID        int64
	JobID     string
	Type      EventType
	Message   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// HealthSnapshot is the health monitor's classification of the system at
// SampledAt. Reason is empty when healthy.
type HealthSnapshot struct {
	Healthy   bool      `json:"healthy"`
	Reason    string    `json:"reason,omitempty"`
	SampledAt time.Time `json:"sampled_at"`
}

// JobStats are aggregate counts the health probe samples from the store.
// Completed and Failed cover jobs that reached those statuses within the
// probe's trailing window; Queued is the current queue depth.
type JobStats struct {
	Completed int
	Failed    int
	Queued    int
}

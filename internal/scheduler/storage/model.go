package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
)

// jobRow mirrors the payroll_jobs table
type jobRow struct {
	ID            string          `db:"id"`
	TenantID      string          `db:"tenant_id"`
	RequestedBy   string          `db:"requested_by"`
	Status        string          `db:"status"`
	Priority      string          `db:"priority"`
	Metadata      json.RawMessage `db:"metadata"`
	FailureReason string          `db:"failure_reason"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// eventRow mirrors the payroll_job_events table
type eventRow struct {
	ID        int64           `db:"id"`
	JobID     string          `db:"job_id"`
	EventType string          `db:"event_type"`
	Message   string          `db:"message"`
	Metadata  json.RawMessage `db:"metadata"`
	CreatedAt time.Time       `db:"created_at"`
}

func (r *jobRow) toDomain() (*domain.PayrollJob, error) {
	meta, err := decodeMetadata(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to decode job metadata: %w", err)
	}

	return &domain.PayrollJob{
		ID:            r.ID,
		TenantID:      r.TenantID,
		RequestedBy:   r.RequestedBy,
		Status:        domain.Status(r.Status),
		Priority:      domain.Priority(r.Priority),
		Metadata:      meta,
		FailureReason: r.FailureReason,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

func (r *eventRow) toDomain() (*domain.PayrollJobEvent, error) {
	meta, err := decodeMetadata(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to decode event metadata: %w", err)
	}

	return &domain.PayrollJobEvent{
		ID:        r.ID,
		JobID:     r.JobID,
		Type:      domain.EventType(r.EventType),
		Message:   r.Message,
		Metadata:  meta,
		CreatedAt: r.CreatedAt,
	}, nil
}

func encodeMetadata(meta map[string]string) ([]byte, error) {
	if meta == nil {
		meta = map[string]string{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return data, nil
}

func decodeMetadata(raw json.RawMessage) (map[string]string, error) {
	meta := map[string]string{}
	if len(raw) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

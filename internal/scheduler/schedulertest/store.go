// Package schedulertest provides in-memory fakes for the scheduler's
// store and dispatch boundaries. The MemStore enforces the same
// constraints as the PostgreSQL store (tenant exclusivity, guarded
// transitions) so lifecycle tests exercise the real failure modes.
package schedulertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/storage"
)

// MemStore is a mutex-guarded in-memory job store.
type MemStore struct {
	mu     sync.Mutex
	jobs   map[string]*domain.PayrollJob
	events []domain.PayrollJobEvent
	nextID int64

	// FailNext makes the next store call return this error, then clears.
	FailNext error
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		jobs: make(map[string]*domain.PayrollJob),
	}
}

func (m *MemStore) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

func (m *MemStore) CreateJob(_ context.Context, job *domain.PayrollJob, event *domain.PayrollJobEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}

	for _, existing := range m.jobs {
		if existing.TenantID == job.TenantID && existing.Status.Active() {
			return fmt.Errorf("tenant %s has an active job: %w", job.TenantID, domain.ErrTenantActive)
		}
	}

	clone := cloneJob(job)
	m.jobs[clone.ID] = clone
	m.appendEventLocked(event)
	return nil
}

func (m *MemStore) Transition(_ context.Context, jobID string, from []domain.Status, to domain.Status,
	failureReason string, metaPatch map[string]string, event *domain.PayrollJobEvent) (*domain.PayrollJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	matched := false
	for _, f := range from {
		if job.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.Status, domain.ErrInvalidTransition)
	}

	job.Status = to
	job.UpdatedAt = time.Now().UTC()
	if failureReason != "" {
		job.FailureReason = failureReason
	}
	if job.Metadata == nil {
		job.Metadata = make(map[string]string)
	}
	for k, v := range metaPatch {
		job.Metadata[k] = v
	}

	m.appendEventLocked(event)
	return cloneJob(job), nil
}

func (m *MemStore) AppendEvent(_ context.Context, event *domain.PayrollJobEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}

	m.appendEventLocked(event)
	return nil
}

func (m *MemStore) GetJob(_ context.Context, jobID string) (*domain.PayrollJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (m *MemStore) ListActiveByTenant(_ context.Context, tenantID string) ([]domain.PayrollJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	var out []domain.PayrollJob
	for _, job := range m.jobs {
		if job.TenantID == tenantID && job.Status.Active() {
			out = append(out, *cloneJob(job))
		}
	}
	return out, nil
}

// NextEligible mirrors the SQL ordering: priority rank, then submission
// time, then id, skipping tenants that already have a running job.
func (m *MemStore) NextEligible(_ context.Context) (*domain.PayrollJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	runningTenants := make(map[string]bool)
	for _, job := range m.jobs {
		if job.Status == domain.StatusRunning {
			runningTenants[job.TenantID] = true
		}
	}

	var candidates []*domain.PayrollJob
	for _, job := range m.jobs {
		if job.Status == domain.StatusQueued && !runningTenants[job.TenantID] {
			candidates = append(candidates, job)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return cloneJob(candidates[0]), nil
}

func (m *MemStore) ListByStatus(_ context.Context, status domain.Status) ([]domain.PayrollJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	var out []domain.PayrollJob
	for _, job := range m.jobs {
		if job.Status == status {
			out = append(out, *cloneJob(job))
		}
	}
	return out, nil
}

func (m *MemStore) ListResumable(_ context.Context) ([]domain.PayrollJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	var out []domain.PayrollJob
	for _, job := range m.jobs {
		if job.Status == domain.StatusPaused && job.Metadata[domain.MetaPausedBy] == domain.PausedByHealth {
			out = append(out, *cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) ListJobs(_ context.Context, filter storage.JobFilter) ([]domain.PayrollJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	var out []domain.PayrollJob
	for _, job := range m.jobs {
		if filter.TenantID != "" && job.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && string(job.Status) != filter.Status {
			continue
		}
		out = append(out, *cloneJob(job))
	}

	// Newest first, same keyset order as the SQL store
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if filter.Cursor != nil {
		trimmed := out[:0]
		for _, job := range out {
			if job.CreatedAt.After(filter.Cursor.CreatedAt) {
				continue
			}
			if job.CreatedAt.Equal(filter.Cursor.CreatedAt) && job.ID >= filter.Cursor.JobID {
				continue
			}
			trimmed = append(trimmed, job)
		}
		out = trimmed
	}

	if filter.PageSize > 0 && len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}
	return out, nil
}

func (m *MemStore) ListEvents(_ context.Context, jobID string) ([]domain.PayrollJobEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	var out []domain.PayrollJobEvent
	for _, e := range m.events {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemStore) JobStats(_ context.Context, since time.Time) (domain.JobStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return domain.JobStats{}, err
	}

	var stats domain.JobStats
	for _, job := range m.jobs {
		switch job.Status {
		case domain.StatusCompleted:
			if !job.UpdatedAt.Before(since) {
				stats.Completed++
			}
		case domain.StatusFailed:
			if !job.UpdatedAt.Before(since) {
				stats.Failed++
			}
		case domain.StatusQueued:
			stats.Queued++
		}
	}
	return stats, nil
}

// Events returns a copy of every recorded event.
func (m *MemStore) Events() []domain.PayrollJobEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.PayrollJobEvent, len(m.events))
	copy(out, m.events)
	return out
}

// EventsFor returns the recorded events for one job in append order.
func (m *MemStore) EventsFor(jobID string) []domain.PayrollJobEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.PayrollJobEvent
	for _, e := range m.events {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out
}

// Seed inserts a job directly, bypassing constraints. Tests use it to
// arrange states the public API would never produce.
func (m *MemStore) Seed(job *domain.PayrollJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = cloneJob(job)
}

func (m *MemStore) appendEventLocked(event *domain.PayrollJobEvent) {
	if event == nil {
		return
	}
	m.nextID++
	e := *event
	e.ID = m.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.events = append(m.events, e)
}

func cloneJob(job *domain.PayrollJob) *domain.PayrollJob {
	clone := *job
	clone.Metadata = job.CloneMetadata()
	return &clone
}

package schedulertest

import (
	"context"
	"sync"

	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
)

// FakeDispatcher records dispatched jobs instead of publishing them.
type FakeDispatcher struct {
	mu         sync.Mutex
	dispatched []domain.PayrollJob

	// Err makes every Dispatch call fail.
	Err error
}

func (d *FakeDispatcher) Dispatch(_ context.Context, job *domain.PayrollJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return d.Err
	}
	d.dispatched = append(d.dispatched, *job)
	return nil
}

// Dispatched returns a copy of every job handed to the dispatcher.
func (d *FakeDispatcher) Dispatched() []domain.PayrollJob {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]domain.PayrollJob, len(d.dispatched))
	copy(out, d.dispatched)
	return out
}

// StubHealth is a HealthChecker with a settable verdict.
type StubHealth struct {
	mu      sync.Mutex
	healthy bool
	reason  string
}

// NewStubHealth returns a checker reporting healthy.
func NewStubHealth() *StubHealth {
	return &StubHealth{healthy: true}
}

// Set changes the verdict returned by Check.
func (h *StubHealth) Set(healthy bool, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.healthy = healthy
	h.reason = reason
}

func (h *StubHealth) Check(context.Context) domain.HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return domain.HealthSnapshot{Healthy: h.healthy, Reason: h.reason}
}

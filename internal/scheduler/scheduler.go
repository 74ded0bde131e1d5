package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
	"golang.org/x/sync/semaphore"
)

// Store is the Job Store contract the scheduler depends on. Implemented
// over PostgreSQL by internal/scheduler/storage; tests use an in-memory
// implementation.
type Store interface {
	CreateJob(ctx context.Context, job *domain.PayrollJob, event *domain.PayrollJobEvent) error
	Transition(ctx context.Context, jobID string, from []domain.Status, to domain.Status,
		failureReason string, metaPatch map[string]string, event *domain.PayrollJobEvent) (*domain.PayrollJob, error)
	AppendEvent(ctx context.Context, event *domain.PayrollJobEvent) error
	GetJob(ctx context.Context, jobID string) (*domain.PayrollJob, error)
	ListActiveByTenant(ctx context.Context, tenantID string) ([]domain.PayrollJob, error)
	NextEligible(ctx context.Context) (*domain.PayrollJob, error)
	ListByStatus(ctx context.Context, status domain.Status) ([]domain.PayrollJob, error)
	ListResumable(ctx context.Context) ([]domain.PayrollJob, error)
}

// HealthChecker classifies the system as healthy or degraded
type HealthChecker interface {
	Check(ctx context.Context) domain.HealthSnapshot
}

// Dispatcher hands a promoted job to the payroll computation boundary
type Dispatcher interface {
	Dispatch(ctx context.Context, job *domain.PayrollJob) error
}

// Config holds scheduler settings
type Config struct {
	MaxConcurrentJobs int
}

// Scheduler owns admission control and the job lifecycle: it decides
// whether a requested run may enter the queue, promotes queued jobs into
// a bounded slot pool, and exposes the operator controls. All mutable
// state (pause flag, held slots) is guarded by one mutex so concurrent
// submissions, promotions, and releases serialize through a single point;
// the store's partial unique index is the second line of defense.
type Scheduler struct {
	logger     *slog.Logger
	store      Store
	health     HealthChecker
	dispatcher Dispatcher
	slots      *semaphore.Weighted
	maxSlots   int

	mu          sync.Mutex
	paused      bool
	pauseReason string
	held        map[string]string // job id -> tenant id
}

// New creates a scheduler. Call Restore before serving traffic so jobs
// already running in the store re-occupy their slots.
func New(cfg Config, store Store, health HealthChecker, dispatcher Dispatcher, logger *slog.Logger) *Scheduler {
	maxSlots := cfg.MaxConcurrentJobs
	if maxSlots <= 0 {
		maxSlots = 1
	}

	return &Scheduler{
		logger:     logger,
		store:      store,
		health:     health,
		dispatcher: dispatcher,
		slots:      semaphore.NewWeighted(int64(maxSlots)),
		maxSlots:   maxSlots,
		held:       make(map[string]string),
	}
}

// SubmitRequest is a request for a new payroll run
type SubmitRequest struct {
	TenantID    string
	RequestedBy string
	Priority    domain.Priority
	Metadata    map[string]string
}

// SubmitResult reports the outcome of a submission. Created is false when
// the tenant already had an active job; Job is then the existing one, so
// repeated submissions are idempotent from the caller's point of view.
type SubmitResult struct {
	Job     *domain.PayrollJob
	Created bool
	Message string
}

// Admission is the advisory pre-check result
type Admission struct {
	Allowed bool
	Reason  string
}

// State is a snapshot of the scheduler's shared mutable state
type State struct {
	Paused            bool   `json:"paused"`
	PauseReason       string `json:"pause_reason,omitempty"`
	SlotsInUse        int    `json:"slots_in_use"`
	MaxConcurrentJobs int    `json:"max_concurrent_jobs"`
}

const tenantBusyMessage = "payroll already running or queued for this tenant"

// CanQueueJob reports whether a submission for the tenant would be
// admitted right now. Advisory only: two callers can both see "allowed"
// and race; the store's unique index decides the loser on the write path.
func (s *Scheduler) CanQueueJob(ctx context.Context, tenantID string) (Admission, error) {
	active, err := s.store.ListActiveByTenant(ctx, tenantID)
	if err != nil {
		return Admission{}, fmt.Errorf("admission check failed: %w", err)
	}

	if len(active) > 0 {
		return Admission{Allowed: false, Reason: tenantBusyMessage}, nil
	}

	return Admission{Allowed: true}, nil
}

// SubmitJob admits a payroll run. When the system is degraded the job is
// persisted paused instead of rejected: degraded-mode submissions are
// recorded and surfaced, never dropped. When the tenant already has an
// active job the existing job is returned unchanged.
func (s *Scheduler) SubmitJob(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if req.RequestedBy == "" {
		return nil, fmt.Errorf("requested by is required")
	}

	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}

	// Advisory fast-fail so a duplicate click returns the existing run
	// without doing any work.
	active, err := s.store.ListActiveByTenant(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("admission check failed: %w", err)
	}
	if len(active) > 0 {
		return &SubmitResult{Job: &active[0], Created: false, Message: tenantBusyMessage}, nil
	}

	snapshot := s.health.Check(ctx)
	now := time.Now().UTC()

	job := &domain.PayrollJob{
		ID:          uuid.New().String(),
		TenantID:    req.TenantID,
		RequestedBy: req.RequestedBy,
		Status:      domain.StatusQueued,
		Priority:    priority,
		Metadata:    cloneMeta(req.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	event := newEvent(job.ID, domain.EventQueued, "payroll run queued", nil)
	message := "payroll run queued"

	if !snapshot.Healthy {
		job.Status = domain.StatusPaused
		job.Metadata[domain.MetaPauseReason] = snapshot.Reason
		job.Metadata[domain.MetaPausedBy] = domain.PausedByHealth
		event.Message = "payroll run held paused: system degraded"
		event.Metadata = map[string]string{domain.MetaPauseReason: snapshot.Reason}
		message = fmt.Sprintf("system degraded, run held paused: %s", snapshot.Reason)
	}

	if err := s.store.CreateJob(ctx, job, event); err != nil {
		if errors.Is(err, domain.ErrTenantActive) {
			// Lost the race against a concurrent submission for the same
			// tenant; surface the winner's job.
			existing, lerr := s.store.ListActiveByTenant(ctx, req.TenantID)
			if lerr != nil {
				return nil, fmt.Errorf("admission conflict lookup failed: %w", lerr)
			}
			if len(existing) > 0 {
				return &SubmitResult{Job: &existing[0], Created: false, Message: tenantBusyMessage}, nil
			}
			return nil, fmt.Errorf("tenant admission conflict: %w", err)
		}
		return nil, fmt.Errorf("failed to persist payroll job: %w", err)
	}

	s.logger.Info("Payroll run admitted",
		slog.String("job_id", job.ID),
		slog.String("tenant_id", job.TenantID),
		slog.String("status", string(job.Status)),
	)

	if job.Status == domain.StatusQueued {
		s.TryPromote(ctx)
		// Promotion may have advanced the job already
		if current, err := s.store.GetJob(ctx, job.ID); err == nil {
			job = current
		}
	}

	return &SubmitResult{Job: job, Created: true, Message: message}, nil
}

// TryPromote advances queued jobs into free execution slots. Invoked
// after every admission and every slot release; safe to call from any
// goroutine at any time.
func (s *Scheduler) TryPromote(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tryPromoteLocked(ctx)
}

func (s *Scheduler) tryPromoteLocked(ctx context.Context) {
	for {
		if s.paused {
			return
		}

		if !s.slots.TryAcquire(1) {
			return
		}

		job, err := s.store.NextEligible(ctx)
		if err != nil {
			s.slots.Release(1)
			s.logger.Error("Failed to select next eligible job",
				slog.Any("error", err),
			)
			return
		}
		if job == nil {
			s.slots.Release(1)
			return
		}

		if _, busy := s.heldTenantLocked(job.TenantID); busy {
			// Exclusivity invariant should make this unreachable; bail
			// rather than spin on the same job.
			s.slots.Release(1)
			s.logger.Warn("Skipping promotion, tenant already holds a slot",
				slog.String("job_id", job.ID),
				slog.String("tenant_id", job.TenantID),
			)
			return
		}

		promoted, err := s.store.Transition(ctx, job.ID,
			[]domain.Status{domain.StatusQueued}, domain.StatusRunning,
			"", nil, newEvent(job.ID, domain.EventStarted, "payroll run started", nil))
		if err != nil {
			s.slots.Release(1)
			if errors.Is(err, domain.ErrInvalidTransition) {
				// Another promoter or a cancellation got there first; try
				// the next candidate.
				continue
			}
			s.logger.Error("Failed to promote payroll job",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
			return
		}

		s.held[promoted.ID] = promoted.TenantID

		if err := s.dispatcher.Dispatch(ctx, promoted); err != nil {
			s.logger.Error("Failed to dispatch promoted job, re-queueing",
				slog.String("job_id", promoted.ID),
				slog.Any("error", err),
			)

			delete(s.held, promoted.ID)
			s.slots.Release(1)

			if _, rerr := s.store.Transition(ctx, promoted.ID,
				[]domain.Status{domain.StatusRunning}, domain.StatusQueued,
				"", nil, newEvent(promoted.ID, domain.EventQueued, "re-queued after dispatch failure", nil)); rerr != nil {
				s.logger.Error("Failed to re-queue job after dispatch failure",
					slog.String("job_id", promoted.ID),
					slog.Any("error", rerr),
				)
			}
			return
		}

		s.logger.Info("Payroll job promoted to running",
			slog.String("job_id", promoted.ID),
			slog.String("tenant_id", promoted.TenantID),
			slog.Int("slots_in_use", len(s.held)),
		)
	}
}

// ReleaseSlot records a running job's terminal status and frees its slot.
// Releasing a slot the job does not hold returns ErrSlotNotHeld so a
// double callback from the worker boundary surfaces instead of corrupting
// the slot count.
func (s *Scheduler) ReleaseSlot(ctx context.Context, jobID string, terminal domain.Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseSlotLocked(ctx, jobID, terminal, reason)
}

func (s *Scheduler) releaseSlotLocked(ctx context.Context, jobID string, terminal domain.Status, reason string) error {
	if !terminal.Terminal() {
		return fmt.Errorf("status %s is not terminal: %w", terminal, domain.ErrInvalidTransition)
	}

	if _, ok := s.held[jobID]; !ok {
		return fmt.Errorf("release of job %s: %w", jobID, domain.ErrSlotNotHeld)
	}

	eventType := domain.EventForTerminal(terminal)
	_, err := s.store.Transition(ctx, jobID,
		[]domain.Status{domain.StatusRunning}, terminal,
		reason, nil, newEvent(jobID, eventType, reason, nil))
	if err != nil {
		// The slot stays held; the caller retries once the store is back.
		return fmt.Errorf("failed to record terminal status: %w", err)
	}

	delete(s.held, jobID)
	s.slots.Release(1)

	s.logger.Info("Execution slot released",
		slog.String("job_id", jobID),
		slog.String("status", string(terminal)),
		slog.Int("slots_in_use", len(s.held)),
	)

	s.tryPromoteLocked(ctx)
	return nil
}

// PauseQueue halts further promotions. Running jobs are unaffected.
// Idempotent: pausing an already paused queue only refreshes the reason.
func (s *Scheduler) PauseQueue(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		s.pauseReason = reason
		return
	}

	s.paused = true
	s.pauseReason = reason

	s.logger.Info("Scheduler queue paused",
		slog.String("reason", reason),
	)
}

// ResumeQueue clears the pause flag, re-queues jobs that were paused for
// health reasons if the system is healthy again, and promotes into any
// free slots. Idempotent.
func (s *Scheduler) ResumeQueue(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		s.paused = false
		s.pauseReason = ""
		s.logger.Info("Scheduler queue resumed")
	}

	s.requeueHealthPausedLocked(ctx)
	s.tryPromoteLocked(ctx)
}

func (s *Scheduler) requeueHealthPausedLocked(ctx context.Context) {
	snapshot := s.health.Check(ctx)
	if !snapshot.Healthy {
		s.logger.Warn("Skipping re-queue of health-paused jobs, system still degraded",
			slog.String("reason", snapshot.Reason),
		)
		return
	}

	jobs, err := s.store.ListResumable(ctx)
	if err != nil {
		s.logger.Error("Failed to list health-paused jobs",
			slog.Any("error", err),
		)
		return
	}

	for i := range jobs {
		job := &jobs[i]
		_, err := s.store.Transition(ctx, job.ID,
			[]domain.Status{domain.StatusPaused}, domain.StatusQueued,
			"", nil, newEvent(job.ID, domain.EventResumed, "re-queued after health recovery", nil))
		if err != nil {
			s.logger.Error("Failed to re-queue health-paused job",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
			continue
		}

		s.logger.Info("Health-paused job re-queued",
			slog.String("job_id", job.ID),
			slog.String("tenant_id", job.TenantID),
		)
	}
}

// CancelJob terminates a job regardless of where it is in its lifecycle.
// A running job's slot is freed and the next eligible job promotes;
// cancelling an already finished job is rejected.
func (s *Scheduler) CancelJob(ctx context.Context, jobID, reason string) (*domain.PayrollJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.held[jobID]; held {
		if err := s.releaseSlotLocked(ctx, jobID, domain.StatusCancelled, reason); err != nil {
			return nil, err
		}
		return s.store.GetJob(ctx, jobID)
	}

	job, err := s.store.Transition(ctx, jobID,
		[]domain.Status{domain.StatusQueued, domain.StatusPaused}, domain.StatusCancelled,
		reason, nil, newEvent(jobID, domain.EventCancelled, reason, nil))
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payroll job cancelled",
		slog.String("job_id", jobID),
		slog.String("reason", reason),
	)

	return job, nil
}

// PauseJob force-pauses a single job. Pausing a running job frees its
// slot without a terminal status; the job keeps the tenant's queue
// position and must be resumed or cancelled by an operator.
func (s *Scheduler) PauseJob(ctx context.Context, jobID, reason string) (*domain.PayrollJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	patch := map[string]string{
		domain.MetaPauseReason: reason,
		domain.MetaPausedBy:    domain.PausedByOperator,
	}
	event := newEvent(jobID, domain.EventPaused, reason, nil)

	if _, held := s.held[jobID]; held {
		job, err := s.store.Transition(ctx, jobID,
			[]domain.Status{domain.StatusRunning}, domain.StatusPaused,
			"", patch, event)
		if err != nil {
			return nil, err
		}

		delete(s.held, jobID)
		s.slots.Release(1)

		s.logger.Info("Running payroll job paused, slot freed",
			slog.String("job_id", jobID),
			slog.String("reason", reason),
		)

		s.tryPromoteLocked(ctx)
		return job, nil
	}

	job, err := s.store.Transition(ctx, jobID,
		[]domain.Status{domain.StatusQueued}, domain.StatusPaused,
		"", patch, event)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Queued payroll job paused",
		slog.String("job_id", jobID),
		slog.String("reason", reason),
	)

	return job, nil
}

// ResumeJob returns a paused job to the queue and attempts promotion
func (s *Scheduler) ResumeJob(ctx context.Context, jobID string) (*domain.PayrollJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.store.Transition(ctx, jobID,
		[]domain.Status{domain.StatusPaused}, domain.StatusQueued,
		"", nil, newEvent(jobID, domain.EventResumed, "resumed by operator", nil))
	if err != nil {
		return nil, err
	}

	s.tryPromoteLocked(ctx)

	// Promotion may have advanced the job already
	if current, gerr := s.store.GetJob(ctx, jobID); gerr == nil {
		return current, nil
	}
	return job, nil
}

// RerunJob clones a finished job's request into a fresh high-priority
// submission. The original job is never mutated; the new job references
// it through the source_job_id metadata key and a rerun_created event.
func (s *Scheduler) RerunJob(ctx context.Context, jobID string) (*SubmitResult, error) {
	original, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if !original.Status.Terminal() {
		return nil, fmt.Errorf("job is %s: %w", original.Status, domain.ErrInvalidTransition)
	}

	metadata := original.CloneMetadata()
	delete(metadata, domain.MetaPauseReason)
	delete(metadata, domain.MetaPausedBy)
	metadata[domain.MetaSourceJobID] = original.ID

	result, err := s.SubmitJob(ctx, SubmitRequest{
		TenantID:    original.TenantID,
		RequestedBy: original.RequestedBy,
		Priority:    domain.PriorityHigh,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		event := newEvent(result.Job.ID, domain.EventRerunCreated,
			fmt.Sprintf("re-run of job %s", original.ID),
			map[string]string{domain.MetaSourceJobID: original.ID})
		if err := s.store.AppendEvent(ctx, event); err != nil {
			s.logger.Error("Failed to record rerun_created event",
				slog.String("job_id", result.Job.ID),
				slog.Any("error", err),
			)
		}
	}

	return result, nil
}

// Restore re-acquires slots for jobs the store reports as running, so a
// restart of the control plane cannot double-book capacity while workers
// are still computing.
func (s *Scheduler) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	running, err := s.store.ListByStatus(ctx, domain.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to restore running jobs: %w", err)
	}

	for i := range running {
		job := &running[i]
		if !s.slots.TryAcquire(1) {
			s.logger.Warn("More running jobs than slots during restore; job left unslotted",
				slog.String("job_id", job.ID),
			)
			continue
		}
		s.held[job.ID] = job.TenantID
	}

	if len(running) > 0 {
		s.logger.Info("Restored execution slots for running jobs",
			slog.Int("count", len(s.held)),
		)
	}

	return nil
}

// CurrentState returns a snapshot of the scheduler's shared state
func (s *Scheduler) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		Paused:            s.paused,
		PauseReason:       s.pauseReason,
		SlotsInUse:        len(s.held),
		MaxConcurrentJobs: s.maxSlots,
	}
}

func (s *Scheduler) heldTenantLocked(tenantID string) (string, bool) {
	for jobID, tid := range s.held {
		if tid == tenantID {
			return jobID, true
		}
	}
	return "", false
}

func newEvent(jobID string, eventType domain.EventType, message string, metadata map[string]string) *domain.PayrollJobEvent {
	return &domain.PayrollJobEvent{
		JobID:     jobID,
		Type:      eventType,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

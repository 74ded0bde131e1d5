package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/monicap360/move-around-tms-sub008/internal/scheduler/domain"
)

// pgUniqueViolation is the postgres error code raised by the partial
// unique index guarding the one-active-job-per-tenant invariant.
const pgUniqueViolation = "23505"

// Storage is the Job Store over PostgreSQL. Status transitions and their
// audit events are written in a single transaction so no transition can
// ever be recorded without its event.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a job and its first audit event atomically. A second
// active job for the same tenant trips the partial unique index and is
// reported as domain.ErrTenantActive.
func (s *Storage) CreateJob(ctx context.Context, job *domain.PayrollJob, event *domain.PayrollJobEvent) error {
	meta, err := encodeMetadata(job.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO payroll_jobs (
			id, tenant_id, requested_by, status,
			priority, metadata, failure_reason, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9
		)
	`

	_, err = tx.ExecContext(
		ctx,
		query,
		job.ID,
		job.TenantID,
		job.RequestedBy,
		string(job.Status),
		string(job.Priority),
		meta,
		job.FailureReason,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return domain.ErrTenantActive
		}
		return fmt.Errorf("failed to create payroll job: %w", err)
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job creation: %w", err)
	}

	return nil
}

// Transition applies a guarded status change and appends its audit event
// in one transaction. The update only succeeds when the job's current
// status is one of from; a concurrent writer that got there first makes
// this a no-op reported as domain.ErrInvalidTransition. metaPatch keys
// are merged into the job's metadata.
func (s *Storage) Transition(
	ctx context.Context,
	jobID string,
	from []domain.Status,
	to domain.Status,
	failureReason string,
	metaPatch map[string]string,
	event *domain.PayrollJobEvent,
) (*domain.PayrollJob, error) {
	patch, err := encodeMetadata(metaPatch)
	if err != nil {
		return nil, err
	}

	fromStrs := make([]string, len(from))
	for i, st := range from {
		fromStrs[i] = string(st)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE payroll_jobs
		SET status = $1,
		    failure_reason = $2,
		    metadata = metadata || $3::jsonb,
		    updated_at = NOW()
		WHERE id = $4
		  AND status = ANY($5)
		RETURNING id, tenant_id, requested_by, status, priority, metadata, failure_reason, created_at, updated_at
	`

	var row jobRow
	err = tx.QueryRowxContext(ctx, query, string(to), failureReason, patch, jobID, pq.Array(fromStrs)).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyMissedTransition(ctx, jobID)
		}
		return nil, fmt.Errorf("failed to transition payroll job: %w", err)
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}

	return row.toDomain()
}

// classifyMissedTransition distinguishes an unknown job from an illegal
// transition after a guarded update matched no rows.
func (s *Storage) classifyMissedTransition(ctx context.Context, jobID string) error {
	var status string
	err := s.db.GetContext(ctx, &status, `SELECT status FROM payroll_jobs WHERE id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up payroll job: %w", err)
	}
	return fmt.Errorf("job is %s: %w", status, domain.ErrInvalidTransition)
}

// AppendEvent writes a standalone audit entry (e.g. rerun_created, which
// annotates a job without changing its status).
func (s *Storage) AppendEvent(ctx context.Context, event *domain.PayrollJobEvent) error {
	meta, err := encodeMetadata(event.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payroll_job_events (job_id, event_type, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = s.db.ExecContext(ctx, query, event.JobID, string(event.Type), event.Message, meta, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append job event: %w", err)
	}

	return nil
}

func insertEvent(ctx context.Context, tx *sqlx.Tx, event *domain.PayrollJobEvent) error {
	meta, err := encodeMetadata(event.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payroll_job_events (job_id, event_type, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := tx.ExecContext(ctx, query, event.JobID, string(event.Type), event.Message, meta, event.CreatedAt); err != nil {
		return fmt.Errorf("failed to append job event: %w", err)
	}

	return nil
}

// GetJob fetches one job by id
func (s *Storage) GetJob(ctx context.Context, jobID string) (*domain.PayrollJob, error) {
	query := `
		SELECT id, tenant_id, requested_by, status, priority, metadata, failure_reason, created_at, updated_at
		FROM payroll_jobs
		WHERE id = $1
	`

	var row jobRow
	err := s.db.GetContext(ctx, &row, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get payroll job: %w", err)
	}

	return row.toDomain()
}

// ListActiveByTenant returns the tenant's jobs in queued, running, or
// paused status. The partial unique index keeps this at most one row.
func (s *Storage) ListActiveByTenant(ctx context.Context, tenantID string) ([]domain.PayrollJob, error) {
	query := `
		SELECT id, tenant_id, requested_by, status, priority, metadata, failure_reason, created_at, updated_at
		FROM payroll_jobs
		WHERE tenant_id = $1
		  AND status IN ('queued', 'running', 'paused')
	`

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, tenantID); err != nil {
		return nil, fmt.Errorf("failed to list active jobs for tenant: %w", err)
	}

	return rowsToDomain(rows)
}

// NextEligible returns the queued job next in line for promotion: highest
// priority tier first, FIFO within a tier, skipping tenants that already
// have a running job. The tenant exclusion is defense in depth; the
// exclusivity invariant means a queued job's tenant should never have a
// running one.
func (s *Storage) NextEligible(ctx context.Context) (*domain.PayrollJob, error) {
	query := `
		SELECT id, tenant_id, requested_by, status, priority, metadata, failure_reason, created_at, updated_at
		FROM payroll_jobs
		WHERE status = 'queued'
		  AND tenant_id NOT IN (
			SELECT tenant_id FROM payroll_jobs WHERE status = 'running'
		  )
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END,
		         created_at ASC,
		         id ASC
		LIMIT 1
	`

	var row jobRow
	err := s.db.GetContext(ctx, &row, query)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select next eligible job: %w", err)
	}

	return row.toDomain()
}

// ListByStatus returns all jobs currently in the given status, oldest first
func (s *Storage) ListByStatus(ctx context.Context, status domain.Status) ([]domain.PayrollJob, error) {
	query := `
		SELECT id, tenant_id, requested_by, status, priority, metadata, failure_reason, created_at, updated_at
		FROM payroll_jobs
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
	`

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, string(status)); err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}

	return rowsToDomain(rows)
}

// ListResumable returns paused jobs whose pause was health-induced.
// Operator-paused jobs stay put until an explicit resume.
func (s *Storage) ListResumable(ctx context.Context) ([]domain.PayrollJob, error) {
	query := `
		SELECT id, tenant_id, requested_by, status, priority, metadata, failure_reason, created_at, updated_at
		FROM payroll_jobs
		WHERE status = 'paused'
		  AND metadata->>'paused_by' = 'health'
		ORDER BY created_at ASC, id ASC
	`

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list resumable jobs: %w", err)
	}

	return rowsToDomain(rows)
}

// JobFilter narrows ListJobs results
type JobFilter struct {
	TenantID string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is an opaque pagination position (newest-first keyset)
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns jobs newest first with keyset pagination. The caller
// asks for PageSize+1 rows implicitly: one extra row signals a next page.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.PayrollJob, error) {
	query := `
		SELECT id, tenant_id, requested_by, status, priority, metadata, failure_reason, created_at, updated_at
		FROM payroll_jobs
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.TenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIdx)
		args = append(args, filter.TenantID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list payroll jobs: %w", err)
	}

	return rowsToDomain(rows)
}

// ListEvents returns a job's audit trail in the order transitions were
// applied.
func (s *Storage) ListEvents(ctx context.Context, jobID string) ([]domain.PayrollJobEvent, error) {
	query := `
		SELECT id, job_id, event_type, message, metadata, created_at
		FROM payroll_job_events
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC
	`

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list job events: %w", err)
	}

	events := make([]domain.PayrollJobEvent, 0, len(rows))
	for i := range rows {
		ev, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, nil
}

// JobStats samples the aggregate counts the health probe classifies on:
// terminal outcomes since the window start plus current queue depth.
func (s *Storage) JobStats(ctx context.Context, since time.Time) (domain.JobStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'completed' AND updated_at >= $1) AS completed,
			COUNT(*) FILTER (WHERE status = 'failed' AND updated_at >= $1) AS failed,
			COUNT(*) FILTER (WHERE status = 'queued') AS queued
		FROM payroll_jobs
	`

	var stats struct {
		Completed int `db:"completed"`
		Failed    int `db:"failed"`
		Queued    int `db:"queued"`
	}
	if err := s.db.GetContext(ctx, &stats, query, since); err != nil {
		return domain.JobStats{}, fmt.Errorf("failed to sample job stats: %w", err)
	}

	return domain.JobStats{
		Completed: stats.Completed,
		Failed:    stats.Failed,
		Queued:    stats.Queued,
	}, nil
}

func rowsToDomain(rows []jobRow) ([]domain.PayrollJob, error) {
	jobs := make([]domain.PayrollJob, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

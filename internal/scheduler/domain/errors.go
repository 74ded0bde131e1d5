package domain

import "errors"

var (
	// ErrJobNotFound is returned when operating on an unknown job id.
	ErrJobNotFound = errors.New("payroll job not found")

	// ErrTenantActive is returned by the store when creating a job would
	// give a tenant a second queued, running, or paused job.
	ErrTenantActive = errors.New("tenant already has an active payroll job")

	// ErrInvalidTransition is returned when a requested status change is
	// not a legal lifecycle transition (e.g. cancelling a finished job).
	ErrInvalidTransition = errors.New("invalid payroll job status transition")

	// ErrSlotNotHeld is returned when releasing a slot for a job that does
	// not currently hold one. Double-release is a bug in the caller, not a
	// condition to absorb silently.
	ErrSlotNotHeld = errors.New("job does not hold an execution slot")

	// ErrUnknownPriority is returned for priority strings outside
	// low/normal/high.
	ErrUnknownPriority = errors.New("unknown priority")
)

package domain

// Status is the lifecycle state of a payroll job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// transitions lists the allowed next states for each status. Terminal
// statuses have no entries.
var transitions = map[Status][]Status{
	StatusQueued:  {StatusRunning, StatusPaused, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed, StatusPaused, StatusCancelled},
	StatusPaused:  {StatusQueued, StatusCancelled},
}

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether s counts toward the one-active-job-per-tenant
// constraint. Paused jobs still hold the tenant's queue position.
func (s Status) Active() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusPaused:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Priority orders promotion among queued jobs of equal eligibility.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Rank returns the promotion order of p; lower ranks promote first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 2
	}
	return 1
}

// ParsePriority maps a request string to a Priority. Empty input
// defaults to normal; anything else is rejected.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "":
		return PriorityNormal, nil
	case string(PriorityLow), string(PriorityNormal), string(PriorityHigh):
		return Priority(s), nil
	}
	return "", ErrUnknownPriority
}

// EventType identifies an entry in a job's audit trail.
type EventType string

const (
	EventQueued       EventType = "queued"
	EventStarted      EventType = "started"
	EventPaused       EventType = "paused"
	EventResumed      EventType = "resumed"
	EventCancelled    EventType = "cancelled"
	EventCompleted    EventType = "completed"
	EventFailed       EventType = "failed"
	EventRerunCreated EventType = "rerun_created"
)

// EventForTerminal returns the audit event type matching a terminal status.
func EventForTerminal(s Status) EventType {
	switch s {
	case StatusCompleted:
		return EventCompleted
	case StatusFailed:
		return EventFailed
	case StatusCancelled:
		return EventCancelled
	}
	return ""
}

// Package audit provides audit logging for the engine: command execution
// outcomes, cache writes, and task-ownership security violations.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event represents an auditable engine event.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	User      string    `json:"user"`
	Device    string    `json:"device,omitempty"`
	Command   string    `json:"command,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// EventType categorizes audit events.
type EventType string

const (
	EventTypeCommandRun       EventType = "command_run"
	EventTypeCacheWrite       EventType = "cache_write"
	EventTypeBaselineSnapshot EventType = "baseline_snapshot"
	EventTypeSecurityViolation EventType = "security_violation"
	EventTypeTaskDispatch     EventType = "task_dispatch"
	EventTypeTaskCancel       EventType = "task_cancel"
)

// Severity indicates the importance of an audit event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Filter defines criteria for querying audit events.
type Filter struct {
	Device      string
	User        string
	Type        EventType
	JobID       string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event.
func NewEvent(eventType EventType, user, device string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Type:      eventType,
		User:      user,
		Device:    device,
	}
}

// WithCommand sets the command name.
func (e *Event) WithCommand(command string) *Event {
	e.Command = command
	return e
}

// WithJob sets the job id.
func (e *Event) WithJob(jobID string) *Event {
	e.JobID = jobID
	return e
}

// WithTask sets the task id.
func (e *Event) WithTask(taskID string) *Event {
	e.TaskID = taskID
	return e
}

// WithMessage sets a free-form message.
func (e *Event) WithMessage(msg string) *Event {
	e.Message = msg
	return e
}

// WithSuccess marks the event as successful.
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed.
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

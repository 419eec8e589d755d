package jobx

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a job. Completed and failed are sinks.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CancelledMessage is the error stored on a job that was cancelled by its owner.
const CancelledMessage = "Job cancelled by user"

// Job is a unit of work to be submitted.
type Job struct {
	// ID is optional; when empty a UUID is assigned at submission.
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`

	// Priority orders waiting jobs; lower values are served first.
	Priority int `json:"priority"`

	// UserID identifies the owner, used for listing and notification routing.
	UserID string `json:"user_id"`

	// Reference is an opaque external identifier carried alongside the job,
	// e.g. the datastore record the job reports to.
	Reference string `json:"reference,omitempty"`

	// MaxAttempts is the number of failed runs after which the job fails. Default is 3.
	MaxAttempts int `json:"max_attempts"`
}

// JobInfo is a point-in-time snapshot of a job record.
type JobInfo struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	UserID      string          `json:"user_id"`
	Reference   string          `json:"reference,omitempty"`
	Priority    int             `json:"priority"`
	Status      Status          `json:"status"`
	Progress    int             `json:"progress"`
	Message     string          `json:"message,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Cancelled   bool            `json:"cancelled,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// Stats summarizes the queue at a point in time.
type Stats struct {
	Waiting     int `json:"waiting"`
	Active      int `json:"active"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	Total       int `json:"total"`
	Concurrency int `json:"concurrency"`
}

package generation

import (
	"encoding/json"
	"time"

	"github.com/culturalsoundlab/soundlab/pkg/jobx"
	"github.com/culturalsoundlab/soundlab/pkg/kernel"
)

// JobType is the jobx handler key for generation jobs.
const JobType = "generation"

// Type is a kind of audio generation.
type Type string

const (
	TypeSoundLogo  Type = "sound_logo"
	TypeSocialClip Type = "social_clip"
	TypePlaylist   Type = "playlist"
	TypeLongForm   Type = "long_form"
)

// BaseEstimateSeconds is the fixed part of every completion estimate.
const BaseEstimateSeconds = 30

type typeSpec struct {
	priority        int
	multiplier      float64
	defaultDuration float64
	maxDuration     float64
	label           string
}

// Shorter generations get lower priority numbers and are served first.
var typeSpecs = map[Type]typeSpec{
	TypeSoundLogo:  {priority: 1, multiplier: 3.0, defaultDuration: 5, maxDuration: 30, label: "sound logo"},
	TypeSocialClip: {priority: 2, multiplier: 2.0, defaultDuration: 30, maxDuration: 180, label: "social clip"},
	TypePlaylist:   {priority: 3, multiplier: 1.5, defaultDuration: 600, maxDuration: 3600, label: "playlist"},
	TypeLongForm:   {priority: 4, multiplier: 1.2, defaultDuration: 1200, maxDuration: 7200, label: "long-form piece"},
}

// IsValid reports whether t is a known generation type.
func (t Type) IsValid() bool {
	_, ok := typeSpecs[t]
	return ok
}

// Priority returns the queue priority of t; lower is served first.
func (t Type) Priority() int { return typeSpecs[t].priority }

// Label is the human-readable name used in messages.
func (t Type) Label() string { return typeSpecs[t].label }

// EstimateSeconds returns base + duration * multiplier for t.
func (t Type) EstimateSeconds(duration float64) int {
	return BaseEstimateSeconds + int(duration*typeSpecs[t].multiplier)
}

// SourceSample references a stored recording used as generation input.
type SourceSample struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Request is what a user submits.
type Request struct {
	Type          Type            `json:"type"`
	Title         string          `json:"title,omitempty"`
	Parameters    json.RawMessage `json:"parameters,omitempty"`
	SourceSamples []SourceSample  `json:"source_samples"`
	NotifyEmail   string          `json:"notify_email,omitempty"`
}

// Parameters are the fields of Request.Parameters the service reads. Any
// other fields are forwarded to the backend untouched.
type Parameters struct {
	Duration float64 `json:"duration"`
}

// Payload is the jobx payload of a generation job.
type Payload struct {
	GenerationID  kernel.GenerationID `json:"generation_id"`
	UserID        kernel.UserID       `json:"user_id"`
	Type          Type                `json:"type"`
	Title         string              `json:"title,omitempty"`
	Parameters    json.RawMessage     `json:"parameters"`
	SourceSamples []SourceSample      `json:"source_samples"`
	NotifyEmail   string              `json:"notify_email,omitempty"`
}

// Result is the stored outcome of a completed job.
type Result struct {
	URL            string          `json:"url"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	ProcessingTime float64         `json:"processing_time"`
}

// SubmitResponse is returned on submission.
type SubmitResponse struct {
	JobID            string              `json:"job_id"`
	GenerationID     kernel.GenerationID `json:"generation_id"`
	Status           jobx.Status         `json:"status"`
	EstimatedSeconds int                 `json:"estimated_seconds"`
	QueuePosition    int                 `json:"queue_position"`
}

// Record is the durable generation row, the system of record once the job
// has left the in-memory queue.
type Record struct {
	ID             kernel.GenerationID `db:"id" json:"id"`
	UserID         kernel.UserID       `db:"user_id" json:"user_id"`
	JobID          string              `db:"job_id" json:"job_id"`
	Type           Type                `db:"type" json:"type"`
	Title          string              `db:"title" json:"title,omitempty"`
	Parameters     string              `db:"parameters" json:"-"`
	Status         string              `db:"status" json:"status"`
	Progress       int                 `db:"progress" json:"progress"`
	ResultURL      string              `db:"result_url" json:"result_url,omitempty"`
	ErrorMessage   string              `db:"error_message" json:"error_message,omitempty"`
	ProcessingTime float64             `db:"processing_time" json:"processing_time,omitempty"`
	Metadata       string              `db:"metadata" json:"-"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the record reached completed or failed.
func (r *Record) IsTerminal() bool {
	return jobx.Status(r.Status).IsTerminal()
}

// View is the client-facing status of a generation job, assembled from the
// queue while the job is held there and from the record afterwards.
type View struct {
	JobID          string              `json:"job_id"`
	GenerationID   kernel.GenerationID `json:"generation_id"`
	Type           Type                `json:"type"`
	Title          string              `json:"title,omitempty"`
	Status         string              `json:"status"`
	Progress       int                 `json:"progress"`
	Message        string              `json:"message,omitempty"`
	ResultURL      string              `json:"result_url,omitempty"`
	Metadata       json.RawMessage     `json:"metadata,omitempty"`
	ProcessingTime float64             `json:"processing_time,omitempty"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	Attempts       int                 `json:"attempts,omitempty"`
	MaxAttempts    int                 `json:"max_attempts,omitempty"`
	QueuePosition  int                 `json:"queue_position,omitempty"`
	Live           bool                `json:"live"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	UserID         kernel.UserID       `json:"-"`
}

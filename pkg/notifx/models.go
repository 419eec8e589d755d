package notifx

import (
	"encoding/json"
	"time"
)

// StatusUpdate is the payload pushed to clients and written back to the
// datastore on a job transition.
type StatusUpdate struct {
	JobID          string          `json:"job_id"`
	GenerationID   string          `json:"generation_id"`
	UserID         string          `json:"user_id"`
	Status         string          `json:"status"`
	Progress       int             `json:"progress"`
	Message        string          `json:"message,omitempty"`
	ResultURL      string          `json:"result_url,omitempty"`
	Error          string          `json:"error,omitempty"`
	ProcessingTime float64         `json:"processing_time,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Terminal       bool            `json:"terminal"`
	At             time.Time       `json:"at"`
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	From     string   `json:"from"`
	To       []string `json:"to"`
	ReplyTo  string   `json:"reply_to,omitempty"`
	Subject  string   `json:"subject"`
	TextBody string   `json:"text_body,omitempty"`
	HTMLBody string   `json:"html_body,omitempty"`
}

// Notification describes one fan-out: where to push, whether to persist,
// and an optional email.
type Notification struct {
	// Channel is the real-time channel; empty skips the push.
	Channel string
	Update  StatusUpdate
	Persist bool
	Email   *EmailMessage
}

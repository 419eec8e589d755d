// Package synthx talks to the audio synthesis backend: the remote HTTP
// service, a local mock generator used when it is unavailable, and a
// failover wrapper that chooses between the two.
package synthx

import (
	"context"
	"encoding/json"
)

// Remote job states reported by GET /generate/{id}/status.
const (
	StatePending    = "pending"
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// SourceSample is a source recording handed to the backend by signed URL.
type SourceSample struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	GenerationID  string          `json:"generation_id"`
	Type          string          `json:"type"`
	Parameters    json.RawMessage `json:"parameters"`
	SourceSamples []SourceSample  `json:"source_samples"`
}

// GenerateResponse acknowledges a submission.
type GenerateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// StatusResponse is the body of GET /generate/{id}/status.
type StatusResponse struct {
	Status         string          `json:"status"`
	Progress       *int            `json:"progress,omitempty"`
	ResultURL      string          `json:"result_url,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	ProcessingTime float64         `json:"processing_time,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// IsTerminal reports whether the remote job has finished either way.
func (s StatusResponse) IsTerminal() bool {
	return s.Status == StateCompleted || s.Status == StateFailed
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string   `json:"status"`
	Version string   `json:"version,omitempty"`
	Models  []string `json:"models,omitempty"`
}

// IsHealthy reports whether the backend declared itself usable.
func (h HealthResponse) IsHealthy() bool {
	return h.Status == "healthy" || h.Status == "ok"
}

// Backend performs audio synthesis.
type Backend interface {
	Submit(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
	Status(ctx context.Context, generationID string) (StatusResponse, error)
	Health(ctx context.Context) (HealthResponse, error)
}

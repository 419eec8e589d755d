package synthx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPBackend is the JSON/HTTP client of the remote synthesis service.
type HTTPBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// HTTPOption configures an HTTPBackend.
type HTTPOption func(*HTTPBackend)

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) HTTPOption {
	return func(b *HTTPBackend) { b.apiKey = key }
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(b *HTTPBackend) { b.client = c }
}

// NewHTTPBackend creates a client for the service at baseURL. Deadlines come
// from the caller's context.
func NewHTTPBackend(baseURL string, opts ...HTTPOption) *HTTPBackend {
	b := &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *HTTPBackend) Submit(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	var resp GenerateResponse
	if err := b.do(ctx, http.MethodPost, "/generate", req, &resp); err != nil {
		return GenerateResponse{}, err
	}
	if !resp.Success {
		return resp, synthErrors.New(ErrRejected).
			WithDetail("generation_id", req.GenerationID).
			WithDetail("message", resp.Message)
	}
	return resp, nil
}

func (b *HTTPBackend) Status(ctx context.Context, generationID string) (StatusResponse, error) {
	var resp StatusResponse
	path := "/generate/" + url.PathEscape(generationID) + "/status"
	if err := b.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return StatusResponse{}, err
	}
	if resp.Status == "" {
		return StatusResponse{}, synthErrors.New(ErrBadResponse).WithDetail("reason", "missing status")
	}
	return resp, nil
}

func (b *HTTPBackend) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	if err := b.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return HealthResponse{}, err
	}
	return resp, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return synthErrors.NewWithCause(ErrBadResponse, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return synthErrors.NewWithCause(ErrUnavailable, err).WithDetail("path", path)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return synthErrors.NewWithCause(ErrUnavailable, err).WithDetail("path", path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return synthErrors.NewWithCause(ErrUnavailable, err).WithDetail("path", path)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && method == http.MethodGet && path != "/health":
		return synthErrors.New(ErrUnknownJob).WithDetail("path", path)
	case resp.StatusCode >= 500:
		return synthErrors.NewWithCause(ErrUnavailable, fmt.Errorf("status %d: %s", resp.StatusCode, snippet(raw))).
			WithDetail("status", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return synthErrors.NewWithCause(ErrBadStatus, fmt.Errorf("status %d: %s", resp.StatusCode, snippet(raw))).
			WithDetail("status", resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return synthErrors.NewWithCause(ErrBadResponse, err).WithDetail("path", path)
	}
	return nil
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

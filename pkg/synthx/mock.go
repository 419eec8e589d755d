package synthx

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/culturalsoundlab/soundlab/pkg/fsx"
	"github.com/culturalsoundlab/soundlab/pkg/logx"
)

// Storage is where the mock backend writes rendered audio.
type Storage interface {
	fsx.FileWriter
	fsx.PresignedURLGenerator
}

const (
	mockSampleRate  = 22050
	mockMaxSeconds  = 30
	mockDefaultSecs = 10

	// mockRetention bounds how long a generation stays pollable; it is well
	// past the worker's poll ceiling.
	mockRetention = time.Hour
)

// Simulated processing time per generation type before speedup.
var mockProcessing = map[string]time.Duration{
	"sound_logo":  4 * time.Second,
	"social_clip": 8 * time.Second,
	"playlist":    15 * time.Second,
	"long_form":   25 * time.Second,
}

type mockJob struct {
	req       GenerateRequest
	startedAt time.Time
	duration  time.Duration
	result    *StatusResponse
}

// MockBackend renders placeholder audio locally. It stands in for the
// remote service during development and when the remote is down.
type MockBackend struct {
	storage   Storage
	speedup   float64
	urlExpiry time.Duration

	mu        sync.Mutex
	jobs      map[string]*mockJob
	retention time.Duration
	now       func() time.Time
}

// NewMockBackend creates a mock backend. speedup divides the simulated
// processing times; values <= 0 mean 1.
func NewMockBackend(storage Storage, speedup float64, urlExpiry time.Duration) *MockBackend {
	if speedup <= 0 {
		speedup = 1
	}
	return &MockBackend{
		storage:   storage,
		speedup:   speedup,
		urlExpiry: urlExpiry,
		jobs:      make(map[string]*mockJob),
		retention: mockRetention,
		now:       time.Now,
	}
}

func (m *MockBackend) Submit(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	base, ok := mockProcessing[req.Type]
	if !ok {
		base = mockProcessing["social_clip"]
	}

	m.mu.Lock()
	now := m.now()
	m.sweepLocked(now)
	m.jobs[req.GenerationID] = &mockJob{
		req:       req,
		startedAt: now,
		duration:  time.Duration(float64(base) / m.speedup),
	}
	m.mu.Unlock()

	logx.WithFields(logx.Fields{
		"generation_id": req.GenerationID,
		"type":          req.Type,
	}).Info("synthx/mock: accepted generation")
	return GenerateResponse{Success: true, Message: "accepted by local generator"}, nil
}

func (m *MockBackend) Status(ctx context.Context, generationID string) (StatusResponse, error) {
	m.mu.Lock()
	job, ok := m.jobs[generationID]
	if !ok {
		m.mu.Unlock()
		return StatusResponse{}, synthErrors.New(ErrUnknownJob).WithDetail("generation_id", generationID)
	}
	if job.result != nil {
		res := *job.result
		m.mu.Unlock()
		return res, nil
	}
	elapsed := m.now().Sub(job.startedAt)
	if elapsed < job.duration {
		pct := int(100 * elapsed / job.duration)
		m.mu.Unlock()
		return StatusResponse{Status: StateProcessing, Progress: &pct}, nil
	}
	req := job.req
	m.mu.Unlock()

	res, err := m.render(ctx, req, elapsed)
	if err != nil {
		return StatusResponse{}, err
	}

	m.mu.Lock()
	job.result = &res
	m.mu.Unlock()
	return res, nil
}

// sweepLocked forgets generations accepted longer ago than the retention
// window, whether or not anyone polled them to completion.
func (m *MockBackend) sweepLocked(now time.Time) {
	for id, job := range m.jobs {
		if now.Sub(job.startedAt) > m.retention {
			delete(m.jobs, id)
		}
	}
}

func (m *MockBackend) Health(context.Context) (HealthResponse, error) {
	return HealthResponse{Status: "healthy", Version: "mock", Models: []string{"mock-silence"}}, nil
}

func (m *MockBackend) render(ctx context.Context, req GenerateRequest, elapsed time.Duration) (StatusResponse, error) {
	var params struct {
		Duration float64 `json:"duration"`
	}
	_ = json.Unmarshal(req.Parameters, &params)
	secs := params.Duration
	if secs <= 0 {
		secs = mockDefaultSecs
	}
	secs = min(secs, mockMaxSeconds)

	path := "generations/" + req.GenerationID + ".wav"
	if err := m.storage.WriteFile(ctx, path, silentWAV(secs, mockSampleRate)); err != nil {
		return StatusResponse{}, synthErrors.NewWithCause(ErrRender, err)
	}
	url, err := m.storage.GetPresignedDownloadURL(ctx, path, m.urlExpiry)
	if err != nil {
		return StatusResponse{}, synthErrors.NewWithCause(ErrRender, err)
	}

	meta, _ := json.Marshal(map[string]any{
		"duration":       secs,
		"sample_rate":    mockSampleRate,
		"format":         "wav",
		"engine":         "mock",
		"source_samples": len(req.SourceSamples),
	})
	done := 100
	return StatusResponse{
		Status:         StateCompleted,
		Progress:       &done,
		ResultURL:      url,
		ProcessingTime: elapsed.Seconds(),
		Metadata:       meta,
	}, nil
}

// silentWAV encodes secs of 16-bit mono PCM silence.
func silentWAV(secs float64, rate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8
	dataLen := uint32(int(secs*float64(rate)) * blockAlign)

	var buf bytes.Buffer
	buf.Grow(44 + int(dataLen))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate*blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}

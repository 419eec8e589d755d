package generation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/culturalsoundlab/soundlab/pkg/asyncx"
	"github.com/culturalsoundlab/soundlab/pkg/fsx"
	"github.com/culturalsoundlab/soundlab/pkg/jobx"
	"github.com/culturalsoundlab/soundlab/pkg/logx"
	"github.com/culturalsoundlab/soundlab/pkg/synthx"
)

// WorkerConfig holds the backend timing of one run.
type WorkerConfig struct {
	SubmitTimeout time.Duration
	PollTimeout   time.Duration
	PollInterval  time.Duration
	MaxPolls      int
	URLExpiry     time.Duration
}

// DefaultWorkerConfig polls every 5s for at most 60 polls.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		SubmitTimeout: 5 * time.Minute,
		PollTimeout:   15 * time.Second,
		PollInterval:  5 * time.Second,
		MaxPolls:      60,
		URLExpiry:     time.Hour,
	}
}

// Worker runs generation jobs against the synthesis backend.
type Worker struct {
	backend synthx.Backend
	signer  fsx.PresignedURLGenerator
	cfg     WorkerConfig
}

// NewWorker creates a worker.
func NewWorker(backend synthx.Backend, signer fsx.PresignedURLGenerator, cfg WorkerConfig) *Worker {
	return &Worker{backend: backend, signer: signer, cfg: cfg}
}

// Handle is the jobx.HandlerFunc for JobType.
func (w *Worker) Handle(ctx context.Context, run *jobx.Run) ([]byte, error) {
	var p Payload
	if err := json.Unmarshal(run.Job.Payload, &p); err != nil {
		return nil, jobx.Permanent(generationErrors.NewWithCause(ErrMalformedJob, err))
	}
	ctx = logx.NewContext(ctx, logx.Fields{"generation_id": p.GenerationID})

	run.Progress(10, "Preparing generation")

	samples, err := asyncx.Map(ctx, p.SourceSamples, func(ctx context.Context, s SourceSample) (synthx.SourceSample, error) {
		url, err := w.signer.GetPresignedDownloadURL(ctx, s.Path, w.cfg.URLExpiry)
		if err != nil {
			return synthx.SourceSample{}, generationErrors.NewWithCause(ErrSourceSample, err).WithDetail("sample_id", s.ID)
		}
		return synthx.SourceSample{ID: s.ID, URL: url}, nil
	})
	if err != nil {
		return nil, err
	}

	run.Progress(20, "Submitting to generation service")
	req := synthx.GenerateRequest{
		GenerationID:  p.GenerationID.String(),
		Type:          string(p.Type),
		Parameters:    p.Parameters,
		SourceSamples: samples,
	}
	_, err = asyncx.WithTimeout(ctx, w.cfg.SubmitTimeout, func(ctx context.Context) (synthx.GenerateResponse, error) {
		return w.backend.Submit(ctx, req)
	})
	if err != nil {
		return nil, generationErrors.NewWithCause(ErrBackendFailed, err)
	}
	run.Progress(50, "Generating audio")
	logx.FromContext(ctx).Debug("generation: accepted by backend, polling")

	return w.poll(ctx, run, p)
}

func (w *Worker) poll(ctx context.Context, run *jobx.Run, p Payload) ([]byte, error) {
	id := p.GenerationID.String()
	for i := 1; i <= w.cfg.MaxPolls; i++ {
		if err := asyncx.Sleep(ctx, w.cfg.PollInterval); err != nil {
			return nil, err
		}
		if run.Cancelled() {
			return nil, generationErrors.New(ErrCancelled)
		}

		st, err := asyncx.WithTimeout(ctx, w.cfg.PollTimeout, func(ctx context.Context) (synthx.StatusResponse, error) {
			return w.backend.Status(ctx, id)
		})
		if err != nil {
			return nil, generationErrors.NewWithCause(ErrBackendFailed, err)
		}

		switch st.Status {
		case synthx.StateCompleted:
			if st.ResultURL == "" {
				return nil, generationErrors.NewWithCause(ErrBackendFailed, errors.New("completed without result url"))
			}
			return json.Marshal(Result{
				URL:            st.ResultURL,
				Metadata:       st.Metadata,
				ProcessingTime: st.ProcessingTime,
			})
		case synthx.StateFailed:
			msg := ErrBackendFailed.Message
			if st.ErrorMessage != "" {
				msg += ": " + st.ErrorMessage
			}
			return nil, generationErrors.NewWithMessage(ErrBackendFailed, msg)
		default:
			run.Progress(50+40*i/w.cfg.MaxPolls, "Generating audio")
		}
	}
	return nil, generationErrors.New(ErrTimeout).WithDetail("polls", w.cfg.MaxPolls)
}

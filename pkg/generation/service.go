package generation

import (
	"context"
	"encoding/json"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/culturalsoundlab/soundlab/pkg/errx"
	"github.com/culturalsoundlab/soundlab/pkg/jobx"
	"github.com/culturalsoundlab/soundlab/pkg/kernel"
	"github.com/culturalsoundlab/soundlab/pkg/logx"
	"github.com/culturalsoundlab/soundlab/pkg/notifx"
)

const (
	maxSourceSamples = 10
	maxTitleLength   = 200
)

// Service is the submission surface of the generation pipeline.
type Service struct {
	queue JobQueue
	repo  Repository
	now   func() time.Time
}

// NewService creates a service over the shared queue and repository.
func NewService(queue JobQueue, repo Repository) *Service {
	return &Service{queue: queue, repo: repo, now: time.Now}
}

// Submit validates req, records the generation and queues its job.
func (s *Service) Submit(ctx context.Context, auth *kernel.AuthContext, req Request) (*SubmitResponse, error) {
	if auth == nil || !auth.IsValid() {
		return nil, generationErrors.New(ErrUnauthorized)
	}
	params, duration, err := validate(req)
	if err != nil {
		return nil, err
	}

	genID := kernel.NewGenerationID()
	jobID := uuid.NewString()
	now := s.now()

	rec := &Record{
		ID:         genID,
		UserID:     auth.UserID,
		JobID:      jobID,
		Type:       req.Type,
		Title:      req.Title,
		Parameters: string(params),
		Status:     string(jobx.StatusWaiting),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(Payload{
		GenerationID:  genID,
		UserID:        auth.UserID,
		Type:          req.Type,
		Title:         req.Title,
		Parameters:    params,
		SourceSamples: req.SourceSamples,
		NotifyEmail:   req.NotifyEmail,
	})
	if err != nil {
		return nil, errx.Wrap(err, "encode generation payload", errx.TypeInternal)
	}

	info, err := s.queue.Submit(ctx, jobx.Job{
		ID:        jobID,
		Type:      JobType,
		Payload:   payload,
		Priority:  req.Type.Priority(),
		UserID:    auth.UserID.String(),
		Reference: genID.String(),
	})
	if err != nil {
		_ = s.repo.WriteStatus(ctx, notifx.StatusUpdate{
			GenerationID: genID.String(),
			Status:       string(jobx.StatusFailed),
			Error:        "Could not queue generation",
			Terminal:     true,
			At:           s.now(),
		})
		return nil, err
	}
	pos, _ := s.queue.Position(info.ID)

	logx.FromContext(ctx).WithFields(logx.Fields{
		"job_id":        info.ID,
		"generation_id": genID,
		"type":          req.Type,
		"position":      pos,
	}).Info("generation: submitted")

	return &SubmitResponse{
		JobID:            info.ID,
		GenerationID:     genID,
		Status:           info.Status,
		EstimatedSeconds: req.Type.EstimateSeconds(duration),
		QueuePosition:    pos,
	}, nil
}

// Job returns the status of a job: from the queue while it is held there,
// otherwise from the datastore.
func (s *Service) Job(ctx context.Context, auth *kernel.AuthContext, jobID string) (*View, error) {
	if auth == nil || !auth.IsValid() {
		return nil, generationErrors.New(ErrUnauthorized)
	}

	if info, err := s.queue.Get(jobID); err == nil {
		if !auth.CanAccess(kernel.UserID(info.UserID)) {
			return nil, generationErrors.New(ErrForbidden)
		}
		return s.viewFromJob(info), nil
	} else if !errx.HasCode(err, jobx.ErrJobNotFound) {
		return nil, err
	}

	rec, err := s.repo.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !auth.CanAccess(rec.UserID) {
		return nil, generationErrors.New(ErrForbidden)
	}
	return viewFromRecord(rec), nil
}

// Generation returns a generation by its record id, overlaid with the live
// job state when the queue still holds the job.
func (s *Service) Generation(ctx context.Context, auth *kernel.AuthContext, id kernel.GenerationID) (*View, error) {
	if auth == nil || !auth.IsValid() {
		return nil, generationErrors.New(ErrUnauthorized)
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanAccess(rec.UserID) {
		return nil, generationErrors.New(ErrForbidden)
	}
	if info, err := s.queue.Get(rec.JobID); err == nil {
		v := s.viewFromJob(info)
		v.Title = rec.Title
		v.CreatedAt = rec.CreatedAt
		return v, nil
	}
	return viewFromRecord(rec), nil
}

// Cancel cancels a job owned by the caller. Cancelling a finished job
// returns its current state unchanged.
func (s *Service) Cancel(ctx context.Context, auth *kernel.AuthContext, jobID string) (*View, error) {
	view, err := s.Job(ctx, auth, jobID)
	if err != nil {
		return nil, err
	}
	if !view.Live {
		return view, nil
	}
	info, err := s.queue.Cancel(jobID)
	if err != nil {
		return nil, err
	}
	logx.FromContext(ctx).WithFields(logx.Fields{
		"job_id":  jobID,
		"user_id": auth.UserID,
	}).Info("generation: cancelled by user")
	return s.viewFromJob(info), nil
}

// List returns the caller's generations, newest first.
func (s *Service) List(ctx context.Context, auth *kernel.AuthContext, limit, offset int) ([]*View, error) {
	if auth == nil || !auth.IsValid() {
		return nil, generationErrors.New(ErrUnauthorized)
	}
	if limit <= 0 {
		limit = 20
	}
	limit = min(limit, 100)
	offset = max(offset, 0)

	recs, err := s.repo.ListByUser(ctx, auth.UserID, limit, offset)
	if err != nil {
		return nil, err
	}
	views := make([]*View, 0, len(recs))
	for _, rec := range recs {
		if info, err := s.queue.Get(rec.JobID); err == nil {
			v := s.viewFromJob(info)
			v.Title = rec.Title
			views = append(views, v)
			continue
		}
		views = append(views, viewFromRecord(rec))
	}
	return views, nil
}

// Stats returns queue counters.
func (s *Service) Stats() jobx.Stats {
	return s.queue.Stats()
}

func (s *Service) viewFromJob(info jobx.JobInfo) *View {
	var p Payload
	_ = json.Unmarshal(info.Payload, &p)

	u := StatusUpdateFor(info)
	v := &View{
		JobID:          info.ID,
		GenerationID:   p.GenerationID,
		Type:           p.Type,
		Title:          p.Title,
		Status:         string(info.Status),
		Progress:       info.Progress,
		Message:        info.Message,
		ResultURL:      u.ResultURL,
		Metadata:       u.Metadata,
		ProcessingTime: u.ProcessingTime,
		ErrorMessage:   info.Error,
		Attempts:       info.Attempts,
		MaxAttempts:    info.MaxAttempts,
		Live:           !info.Status.IsTerminal(),
		CreatedAt:      info.CreatedAt,
		UpdatedAt:      info.UpdatedAt,
		UserID:         kernel.UserID(info.UserID),
	}
	if info.Status == jobx.StatusWaiting {
		v.QueuePosition, _ = s.queue.Position(info.ID)
	}
	return v
}

func viewFromRecord(rec *Record) *View {
	v := &View{
		JobID:          rec.JobID,
		GenerationID:   rec.ID,
		Type:           rec.Type,
		Title:          rec.Title,
		Status:         rec.Status,
		Progress:       rec.Progress,
		ResultURL:      rec.ResultURL,
		ProcessingTime: rec.ProcessingTime,
		ErrorMessage:   rec.ErrorMessage,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
		UserID:         rec.UserID,
	}
	if rec.Metadata != "" {
		v.Metadata = json.RawMessage(rec.Metadata)
	}
	return v
}

// validate checks req and returns the normalised parameters and the
// effective duration.
func validate(req Request) (json.RawMessage, float64, error) {
	if !req.Type.IsValid() {
		return nil, 0, generationErrors.New(ErrUnknownType).WithDetail("type", req.Type)
	}
	spec := typeSpecs[req.Type]

	if len(req.SourceSamples) == 0 {
		return nil, 0, invalid("at least one source sample is required")
	}
	if len(req.SourceSamples) > maxSourceSamples {
		return nil, 0, invalid("too many source samples")
	}
	for _, s := range req.SourceSamples {
		if s.ID == "" || s.Path == "" {
			return nil, 0, invalid("source samples need an id and a path")
		}
	}
	if len(req.Title) > maxTitleLength {
		return nil, 0, invalid("title is too long")
	}
	if req.NotifyEmail != "" {
		if _, err := mail.ParseAddress(req.NotifyEmail); err != nil {
			return nil, 0, invalid("notify_email is not a valid address")
		}
	}

	raw := req.Parameters
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage(`{}`)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, 0, invalid("parameters must be a JSON object")
	}
	var params Parameters
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, 0, invalid("duration must be a number")
	}

	duration := params.Duration
	switch {
	case duration < 0:
		return nil, 0, invalid("duration must be positive")
	case duration == 0:
		duration = spec.defaultDuration
	case duration > spec.maxDuration:
		return nil, 0, invalid("duration exceeds the limit for this type").WithDetail("max_seconds", spec.maxDuration)
	}
	return raw, duration, nil
}

func invalid(reason string) *errx.Error {
	return generationErrors.New(ErrInvalidRequest).WithDetail("reason", reason)
}

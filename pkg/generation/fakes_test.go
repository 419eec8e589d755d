package generation

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/culturalsoundlab/soundlab/pkg/jobx"
	"github.com/culturalsoundlab/soundlab/pkg/kernel"
	"github.com/culturalsoundlab/soundlab/pkg/notifx"
	"github.com/culturalsoundlab/soundlab/pkg/synthx"
)

// ─── repository ──────────────────────────────────────────────────────────────

type memRepo struct {
	mu      sync.Mutex
	records map[kernel.GenerationID]*Record
	updates []notifx.StatusUpdate
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[kernel.GenerationID]*Record)}
}

func (r *memRepo) Create(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *memRepo) Get(_ context.Context, id kernel.GenerationID) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, generationErrors.New(ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (r *memRepo) GetByJobID(_ context.Context, jobID string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.JobID == jobID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, generationErrors.New(ErrNotFound)
}

func (r *memRepo) ListByUser(_ context.Context, userID kernel.UserID, limit, offset int) ([]*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Record
	for _, rec := range r.records {
		if rec.UserID == userID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:min(len(out), offset+limit)], nil
}

func (r *memRepo) WriteStatus(_ context.Context, u notifx.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	rec, ok := r.records[kernel.GenerationID(u.GenerationID)]
	if !ok {
		return generationErrors.New(ErrNotFound)
	}
	rec.Status = u.Status
	rec.Progress = u.Progress
	rec.ResultURL = u.ResultURL
	rec.ErrorMessage = u.Error
	return nil
}

// ─── backend ─────────────────────────────────────────────────────────────────

type scriptedBackend struct {
	mu        sync.Mutex
	submitErr error
	statusErr error
	// statuses are returned in order; the last one repeats.
	statuses []synthx.StatusResponse
	submits  int
	polls    int
	lastReq  synthx.GenerateRequest
}

func (b *scriptedBackend) Submit(_ context.Context, req synthx.GenerateRequest) (synthx.GenerateResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submits++
	b.lastReq = req
	if b.submitErr != nil {
		return synthx.GenerateResponse{}, b.submitErr
	}
	return synthx.GenerateResponse{Success: true}, nil
}

func (b *scriptedBackend) Status(context.Context, string) (synthx.StatusResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if b.statusErr != nil {
		return synthx.StatusResponse{}, b.statusErr
	}
	i := min(b.polls-1, len(b.statuses)-1)
	return b.statuses[i], nil
}

func (b *scriptedBackend) Health(context.Context) (synthx.HealthResponse, error) {
	return synthx.HealthResponse{Status: "healthy"}, nil
}

func (b *scriptedBackend) counts() (submits, polls int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submits, b.polls
}

type prefixSigner struct{}

func (prefixSigner) GetPresignedDownloadURL(_ context.Context, path string, _ time.Duration) (string, error) {
	return "https://signed.test/" + path, nil
}

func (prefixSigner) GetPresignedUploadURL(_ context.Context, path string, _ time.Duration) (string, error) {
	return "https://signed.test/upload/" + path, nil
}

// ─── notifier sinks ──────────────────────────────────────────────────────────

type sinkRecorder struct {
	mu        sync.Mutex
	published []notifx.StatusUpdate
	emails    []notifx.EmailMessage
}

func (s *sinkRecorder) Publish(_ context.Context, _ string, u notifx.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, u)
	return nil
}

func (s *sinkRecorder) SendEmail(_ context.Context, msg notifx.EmailMessage, _ ...notifx.Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails = append(s.emails, msg)
	return nil
}

// ─── queue helpers ───────────────────────────────────────────────────────────

func fastConfig() WorkerConfig {
	return WorkerConfig{
		SubmitTimeout: time.Second,
		PollTimeout:   time.Second,
		PollInterval:  time.Millisecond,
		MaxPolls:      5,
		URLExpiry:     time.Minute,
	}
}

func startQueue(t *testing.T, w *Worker, obs ...jobx.Observer) *jobx.Queue {
	t.Helper()
	q := jobx.New(
		jobx.WithTickInterval(time.Millisecond),
		jobx.WithShutdownTimeout(time.Second),
		jobx.WithObserver(obs...),
	)
	q.Register(JobType, w.Handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return q
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func waitTerminal(t *testing.T, q *jobx.Queue, id string) jobx.JobInfo {
	t.Helper()
	var info jobx.JobInfo
	waitFor(t, func() bool {
		info, _ = q.Get(id)
		return info.Status.IsTerminal()
	})
	return info
}

func alice() *kernel.AuthContext {
	return &kernel.AuthContext{UserID: "alice", Email: "alice@example.com", Role: "authenticated"}
}

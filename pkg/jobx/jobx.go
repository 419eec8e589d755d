package jobx

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/culturalsoundlab/soundlab/pkg/logx"
	"github.com/google/uuid"
)

// Queue is an in-memory priority job queue with a bounded number of active
// runs. Construct one per process with New and share it by reference.
type Queue struct {
	opts Options

	mu       sync.Mutex
	jobs     map[string]*record
	waiting  waitHeap
	active   map[string]*record
	handlers map[string]HandlerFunc
	seq      uint64
	running  bool

	// runCtx is handed to handlers; it is cancelled only when shutdown
	// gives up waiting on in-flight runs.
	runCtx     context.Context
	cancelRuns context.CancelFunc
	runs       sync.WaitGroup

	// backlog holds events that did not fit in events; guarded by mu.
	events  chan Event
	backlog []Event
	now     func() time.Time
}

// New creates a queue. Call Start to begin admitting jobs.
func New(options ...Option) *Queue {
	opts := defaultOptions()
	for _, o := range options {
		o(&opts)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Queue{
		opts:       opts,
		jobs:       make(map[string]*record),
		active:     make(map[string]*record),
		handlers:   make(map[string]HandlerFunc),
		runCtx:     runCtx,
		cancelRuns: cancel,
		events:     make(chan Event, opts.EventBuffer),
		now:        time.Now,
	}
}

// Register adds a handler for a given job type.
func (q *Queue) Register(jobType string, handler HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// Concurrency returns the active-run ceiling.
func (q *Queue) Concurrency() int { return q.opts.Concurrency }

// Submit creates a waiting job and returns its snapshot. Submission never
// blocks and never rejects for capacity.
func (q *Queue) Submit(ctx context.Context, job Job) (JobInfo, error) {
	if err := ctx.Err(); err != nil {
		return JobInfo{}, err
	}
	if job.Type == "" {
		return JobInfo{}, jobxErrors.New(ErrInvalidJob).WithDetail("reason", "type is required")
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.opts.MaxAttempts
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	now := q.now()
	rec := &record{
		info: JobInfo{
			ID:          job.ID,
			Type:        job.Type,
			Payload:     job.Payload,
			UserID:      job.UserID,
			Reference:   job.Reference,
			Priority:    job.Priority,
			Status:      StatusWaiting,
			MaxAttempts: job.MaxAttempts,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		index: -1,
	}

	q.mu.Lock()
	if _, exists := q.jobs[rec.info.ID]; exists {
		q.mu.Unlock()
		return JobInfo{}, jobxErrors.New(ErrInvalidJob).WithDetail("reason", "duplicate id")
	}
	q.jobs[rec.info.ID] = rec
	q.pushLocked(rec)
	info := rec.info
	q.emitLocked(EventSubmitted, info, 0)
	q.mu.Unlock()

	logx.WithFields(logx.Fields{
		"job_id":   info.ID,
		"type":     info.Type,
		"priority": info.Priority,
	}).Debug("jobx: submitted")
	return info, nil
}

// Get returns a snapshot of the job.
func (q *Queue) Get(id string) (JobInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.jobs[id]
	if !ok {
		return JobInfo{}, jobxErrors.New(ErrJobNotFound).WithDetail("job_id", id)
	}
	return rec.info, nil
}

// Cancel moves a waiting or active job to failed with CancelledMessage.
// A waiting job leaves the heap and is never admitted; an active job frees
// its slot immediately and whatever its handler returns later is dropped.
// Cancelling a terminal job is a no-op.
func (q *Queue) Cancel(id string) (JobInfo, error) {
	q.mu.Lock()
	rec, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return JobInfo{}, jobxErrors.New(ErrJobNotFound).WithDetail("job_id", id)
	}
	if rec.info.Status.IsTerminal() {
		info := rec.info
		q.mu.Unlock()
		return info, nil
	}

	switch rec.info.Status {
	case StatusWaiting:
		heap.Remove(&q.waiting, rec.index)
	case StatusActive:
		delete(q.active, id)
	}
	now := q.now()
	rec.info.Status = StatusFailed
	rec.info.Cancelled = true
	rec.info.Error = CancelledMessage
	rec.info.Message = ""
	rec.info.UpdatedAt = now
	rec.info.FinishedAt = &now
	info := rec.info
	q.emitLocked(EventCancelled, info, 0)
	q.mu.Unlock()

	logx.WithField("job_id", id).Info("jobx: cancelled")
	return info, nil
}

// Position returns the 1-based place of a waiting job in admission order,
// or 0 when the job is not waiting.
func (q *Queue) Position(id string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.jobs[id]
	if !ok {
		return 0, jobxErrors.New(ErrJobNotFound).WithDetail("job_id", id)
	}
	if rec.info.Status != StatusWaiting {
		return 0, nil
	}
	pos := 1
	for _, other := range q.waiting {
		if other != rec && before(other, rec) {
			pos++
		}
	}
	return pos, nil
}

// Stats returns counts per status.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{
		Waiting:     q.waiting.Len(),
		Active:      len(q.active),
		Total:       len(q.jobs),
		Concurrency: q.opts.Concurrency,
	}
	for _, rec := range q.jobs {
		switch rec.info.Status {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// List returns the jobs owned by userID, newest first.
func (q *Queue) List(userID string) []JobInfo {
	q.mu.Lock()
	out := make([]JobInfo, 0)
	for _, rec := range q.jobs {
		if rec.info.UserID == userID {
			out = append(out, rec.info)
		}
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// pushLocked inserts rec at the tail of its priority bucket. Callers hold q.mu.
func (q *Queue) pushLocked(rec *record) {
	q.seq++
	rec.seq = q.seq
	heap.Push(&q.waiting, rec)
}

package jobx

import "context"

// HandlerFunc executes one run of a job. A nil error completes the job with
// the returned result; any other error consumes an attempt unless it is
// wrapped with Permanent.
type HandlerFunc func(ctx context.Context, run *Run) (result []byte, err error)

// Run is the handle a handler receives for a single admission of a job.
// It stops having any effect once the job is cancelled or the run is
// superseded.
type Run struct {
	q     *Queue
	token uint64

	// Job is the snapshot taken at admission.
	Job JobInfo
}

// Attempt returns the 1-based number of this run.
func (r *Run) Attempt() int { return r.Job.Attempts + 1 }

// Progress records pct (clamped to 0..100) and msg on the job. Values lower
// than the current progress are ignored so progress never decreases within
// a run.
func (r *Run) Progress(pct int, msg string) {
	pct = max(0, min(pct, 100))

	q := r.q
	q.mu.Lock()
	rec, ok := q.current(r)
	if !ok || pct < rec.info.Progress {
		q.mu.Unlock()
		return
	}
	rec.info.Progress = pct
	rec.info.Message = msg
	rec.info.UpdatedAt = q.now()
	q.emitLocked(EventProgress, rec.info, 0)
	q.mu.Unlock()
}

// Cancelled reports whether this run no longer owns the job, because the job
// was cancelled or removed.
func (r *Run) Cancelled() bool {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	_, ok := r.q.current(r)
	return !ok
}

// current returns the record if r is still its active run. Callers hold q.mu.
func (q *Queue) current(r *Run) (*record, bool) {
	rec, ok := q.jobs[r.Job.ID]
	if !ok || rec.token != r.token || rec.info.Status != StatusActive {
		return nil, false
	}
	return rec, true
}

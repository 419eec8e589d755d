package jobx

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/culturalsoundlab/soundlab/pkg/asyncx"
	"github.com/culturalsoundlab/soundlab/pkg/logx"
)

// Start runs the scheduler, the cleanup sweep and the event dispatcher. It
// blocks until ctx is cancelled, then waits up to ShutdownTimeout for
// in-flight runs before returning.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return jobxErrors.New(ErrAlreadyRunning)
	}
	q.running = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.running = false
		q.runCtx, q.cancelRuns = context.WithCancel(context.Background())
		q.mu.Unlock()
	}()

	logx.Infof("jobx: starting scheduler (concurrency=%d, tick=%s)", q.opts.Concurrency, q.opts.TickInterval)

	stop := make(chan struct{})
	dispatched := make(chan struct{})
	go q.dispatchLoop(stop, dispatched)

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		q.schedulerLoop(ctx)
	}()
	go func() {
		defer loops.Done()
		q.cleanupLoop(ctx)
	}()

	<-ctx.Done()
	loops.Wait()
	logx.Info("jobx: shutting down, waiting for in-flight runs...")

	done := make(chan struct{})
	go func() {
		q.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		logx.Info("jobx: all runs finished")
	case <-time.After(q.opts.ShutdownTimeout):
		logx.WithError(jobxErrors.New(ErrShutdownTimeout)).Warn("jobx: shutdown timed out, cancelling remaining runs")
	}
	q.cancelRuns()

	close(stop)
	<-dispatched
	return nil
}

func (q *Queue) schedulerLoop(ctx context.Context) {
	ticker := time.NewTicker(q.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.tick()
		}
	}
}

func (q *Queue) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(q.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := q.cleanup(); n > 0 {
				logx.Infof("jobx: removed %d expired jobs", n)
			}
		}
	}
}

// tick admits at most one waiting job when a slot is free. It never blocks
// on the admitted run.
func (q *Queue) tick() {
	q.mu.Lock()
	if len(q.active) >= q.opts.Concurrency || q.waiting.Len() == 0 {
		q.mu.Unlock()
		return
	}

	rec := heap.Pop(&q.waiting).(*record)
	now := q.now()
	rec.token++
	rec.info.Status = StatusActive
	rec.info.Progress = 0
	rec.info.Message = ""
	rec.info.UpdatedAt = now
	rec.info.StartedAt = &now
	q.active[rec.info.ID] = rec

	run := &Run{q: q, token: rec.token, Job: rec.info}
	handler := q.handlers[rec.info.Type]
	runCtx := logx.NewContext(q.runCtx, logx.Fields{
		"job_id":  run.Job.ID,
		"attempt": run.Attempt(),
	})
	q.runs.Add(1)
	q.emitLocked(EventActive, run.Job, 0)
	q.mu.Unlock()

	logx.FromContext(runCtx).Info("jobx: admitted")

	asyncx.Do(func() {
		defer q.runs.Done()
		q.execute(runCtx, run, handler)
	})
}

func (q *Queue) execute(ctx context.Context, run *Run, handler HandlerFunc) {
	start := time.Now()
	var (
		result []byte
		err    error
	)

	if handler == nil {
		err = Permanent(jobxErrors.New(ErrNoHandler).WithDetail("type", run.Job.Type))
	} else {
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = jobxErrors.NewWithCause(ErrHandlerPanic, fmt.Errorf("%v", r))
				}
			}()
			result, err = handler(ctx, run)
		}()
	}

	q.finish(run, result, err, time.Since(start))
}

// finish applies the outcome of a run. Outcomes of runs that no longer own
// their job are discarded so a cancelled job stays failed.
func (q *Queue) finish(run *Run, result []byte, runErr error, d time.Duration) {
	q.mu.Lock()
	rec, ok := q.current(run)
	if !ok {
		q.mu.Unlock()
		logx.WithField("job_id", run.Job.ID).Debug("jobx: discarding result of superseded run")
		return
	}
	delete(q.active, rec.info.ID)
	now := q.now()
	rec.info.UpdatedAt = now

	var kind EventKind
	switch {
	case runErr == nil:
		rec.info.Status = StatusCompleted
		rec.info.Progress = 100
		rec.info.Result = result
		rec.info.Error = ""
		rec.info.FinishedAt = &now
		kind = EventCompleted

	default:
		rec.info.Attempts++
		rec.info.Error = messageOf(runErr)
		rec.info.Message = ""
		if IsPermanent(runErr) || rec.info.Attempts >= rec.info.MaxAttempts {
			rec.info.Status = StatusFailed
			rec.info.FinishedAt = &now
			kind = EventFailed
		} else {
			rec.info.Status = StatusWaiting
			rec.info.Progress = 0
			q.pushLocked(rec)
			kind = EventRetrying
		}
	}
	info := rec.info
	q.emitLocked(kind, info, d)
	q.mu.Unlock()

	entry := logx.WithFields(logx.Fields{
		"job_id":   info.ID,
		"attempt":  info.Attempts,
		"duration": d.Round(time.Millisecond).String(),
	})
	switch kind {
	case EventCompleted:
		entry.Info("jobx: completed")
	case EventRetrying:
		entry.WithError(runErr).Warn("jobx: run failed, requeued")
	case EventFailed:
		entry.WithError(runErr).Error("jobx: failed")
	}
}

// cleanup deletes terminal jobs created longer ago than the retention window.
func (q *Queue) cleanup() int {
	cutoff := q.now().Add(-q.opts.Retention)

	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	for id, rec := range q.jobs {
		if rec.info.Status.IsTerminal() && rec.info.CreatedAt.Before(cutoff) {
			delete(q.jobs, id)
			q.emitLocked(EventRemoved, rec.info, 0)
			removed++
		}
	}
	return removed
}

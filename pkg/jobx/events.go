package jobx

import (
	"context"
	"time"

	"github.com/culturalsoundlab/soundlab/pkg/logx"
)

// EventKind names a job transition.
type EventKind string

const (
	EventSubmitted EventKind = "submitted"
	EventActive    EventKind = "active"
	EventProgress  EventKind = "progress"
	EventRetrying  EventKind = "retrying"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
	EventRemoved   EventKind = "removed"
)

// IsTerminal reports whether the event moved the job into a terminal state.
func (k EventKind) IsTerminal() bool {
	return k == EventCompleted || k == EventFailed || k == EventCancelled
}

// Event is a typed job transition delivered to observers.
type Event struct {
	Kind EventKind
	Job  JobInfo
	At   time.Time

	// Duration is the run time of the run that just ended, for
	// completed, failed and retrying events.
	Duration time.Duration
}

// Observer receives job events. Calls happen on a single dispatcher
// goroutine in emission order; a slow observer delays the ones after it.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// emitLocked queues ev for the dispatcher. Callers hold q.mu, so observers
// see transitions in the order they were applied. When the buffer is full
// progress events are dropped and every other kind waits in the backlog.
func (q *Queue) emitLocked(kind EventKind, info JobInfo, d time.Duration) {
	ev := Event{Kind: kind, Job: info, At: q.now(), Duration: d}
	if len(q.backlog) == 0 {
		select {
		case q.events <- ev:
			return
		default:
		}
	}
	if kind == EventProgress {
		logx.WithField("job_id", info.ID).Debug("jobx: event buffer full, dropping progress event")
		return
	}
	if len(q.backlog) == 0 {
		logx.WithFields(logx.Fields{
			"job_id": info.ID,
			"kind":   string(kind),
		}).Warn("jobx: event buffer full, holding events in backlog")
	}
	q.backlog = append(q.backlog, ev)
}

// refill moves backlogged events into the buffer while it has room.
func (q *Queue) refill() {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
fill:
	for ; n < len(q.backlog); n++ {
		select {
		case q.events <- q.backlog[n]:
		default:
			break fill
		}
	}
	if n == len(q.backlog) {
		q.backlog = nil
		return
	}
	q.backlog = q.backlog[n:]
}

func (q *Queue) dispatchLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case ev := <-q.events:
			q.dispatch(ev)
			q.refill()
		case <-stop:
			q.dispatchPending()
			return
		}
	}
}

// dispatchPending delivers every buffered and backlogged event and returns
// once both are empty.
func (q *Queue) dispatchPending() {
	for {
		select {
		case ev := <-q.events:
			q.dispatch(ev)
			q.refill()
		default:
			q.refill()
			if len(q.events) == 0 {
				return
			}
		}
	}
}

func (q *Queue) dispatch(ev Event) {
	for _, obs := range q.opts.Observers {
		q.observe(obs, ev)
	}
}

func (q *Queue) observe(obs Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logx.WithFields(logx.Fields{
				"job_id": ev.Job.ID,
				"kind":   string(ev.Kind),
				"panic":  r,
			}).Error("jobx: observer panicked")
		}
	}()
	obs.Observe(context.Background(), ev)
}

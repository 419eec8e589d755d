package jobx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/culturalsoundlab/soundlab/pkg/errx"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	waitFor(t, func() bool { return q.Stats().Active == 0 })
}

// drive ticks the scheduler and waits for every admitted run to finish until
// the job reaches a terminal state.
func drive(t *testing.T, q *Queue, id string) JobInfo {
	t.Helper()
	for range 20 {
		q.tick()
		waitIdle(t, q)
		info, err := q.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		if info.Status.IsTerminal() {
			return info
		}
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return JobInfo{}
}

type orderLog struct {
	mu  sync.Mutex
	ids []string
}

func (o *orderLog) add(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ids = append(o.ids, id)
}

func (o *orderLog) get() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.ids...)
}

func submit(t *testing.T, q *Queue, priority int) JobInfo {
	t.Helper()
	info, err := q.Submit(context.Background(), Job{Type: "gen", Priority: priority, UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	return info
}

// ─── submission ──────────────────────────────────────────────────────────────

func TestSubmit_CreatesWaitingJob(t *testing.T) {
	q := New()
	info := submit(t, q, 2)

	if info.ID == "" {
		t.Fatal("expected id")
	}
	if info.Status != StatusWaiting || info.Attempts != 0 || info.MaxAttempts != 3 {
		t.Fatalf("unexpected snapshot: %+v", info)
	}
	if pos, _ := q.Position(info.ID); pos != 1 {
		t.Fatalf("expected position 1, got %d", pos)
	}
}

func TestSubmit_RejectsMissingType(t *testing.T) {
	q := New()
	_, err := q.Submit(context.Background(), Job{})
	if !errx.HasCode(err, ErrInvalidJob) {
		t.Fatalf("expected invalid job, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	q := New()
	if _, err := q.Get("missing"); !errx.HasCode(err, ErrJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// ─── scheduling ──────────────────────────────────────────────────────────────

func TestTick_PriorityThenFIFO(t *testing.T) {
	q := New(WithConcurrency(1))
	var order orderLog
	q.Register("gen", func(_ context.Context, run *Run) ([]byte, error) {
		order.add(run.Job.ID)
		return nil, nil
	})

	low := submit(t, q, 4)
	first := submit(t, q, 1)
	second := submit(t, q, 1)

	for range 3 {
		q.tick()
		waitIdle(t, q)
	}

	got := order.get()
	want := []string{first.ID, second.ID, low.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d runs, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestTick_RespectsConcurrencyAndAdmitsOnePerTick(t *testing.T) {
	q := New(WithConcurrency(2))
	release := make(chan struct{})
	q.Register("gen", func(context.Context, *Run) ([]byte, error) {
		<-release
		return nil, nil
	})
	for range 5 {
		submit(t, q, 1)
	}

	q.tick()
	if got := q.Stats().Active; got != 1 {
		t.Fatalf("expected 1 active after one tick, got %d", got)
	}
	for range 4 {
		q.tick()
	}
	s := q.Stats()
	if s.Active != 2 || s.Waiting != 3 {
		t.Fatalf("expected 2 active / 3 waiting, got %+v", s)
	}

	close(release)
	q.runs.Wait()
	if got := q.Stats().Completed; got != 2 {
		t.Fatalf("expected 2 completed, got %d", got)
	}
}

func TestScenario_HighPriorityBucketDrainsFirst(t *testing.T) {
	q := New(WithConcurrency(1))
	var aIDs []string
	var bSawAllATerminal bool

	q.Register("gen", func(_ context.Context, run *Run) ([]byte, error) {
		if run.Job.Priority == 4 {
			bSawAllATerminal = true
			for _, id := range aIDs {
				info, _ := q.Get(id)
				if !info.Status.IsTerminal() {
					bSawAllATerminal = false
				}
			}
		}
		return nil, nil
	})

	for range 3 {
		aIDs = append(aIDs, submit(t, q, 1).ID)
	}
	b := submit(t, q, 4)

	info := drive(t, q, b.ID)
	if info.Status != StatusCompleted {
		t.Fatalf("expected B completed, got %s", info.Status)
	}
	if !bSawAllATerminal {
		t.Fatal("B was admitted before every A job finished")
	}
}

// ─── retries ─────────────────────────────────────────────────────────────────

func TestRetry_FailsAfterExactlyMaxAttempts(t *testing.T) {
	q := New(WithConcurrency(1))
	var mu sync.Mutex
	runs := 0
	q.Register("gen", func(context.Context, *Run) ([]byte, error) {
		mu.Lock()
		runs++
		mu.Unlock()
		return nil, errors.New("dial tcp: connection refused")
	})

	job := submit(t, q, 1)
	info := drive(t, q, job.ID)

	if info.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", info.Status)
	}
	if info.Attempts != 3 || runs != 3 {
		t.Fatalf("expected 3 attempts and 3 runs, got attempts=%d runs=%d", info.Attempts, runs)
	}
	if info.Error == "" {
		t.Fatal("expected error message")
	}
	if info.Result != nil {
		t.Fatal("failed job must not carry a result")
	}
}

func TestRetry_RequeuesAtTailOfBucket(t *testing.T) {
	q := New(WithConcurrency(1))
	var order orderLog
	failedOnce := false
	var flaky string

	q.Register("gen", func(_ context.Context, run *Run) ([]byte, error) {
		order.add(run.Job.ID)
		if run.Job.ID == flaky && !failedOnce {
			failedOnce = true
			return nil, errors.New("backend reported failure")
		}
		return nil, nil
	})

	flaky = submit(t, q, 2).ID
	other := submit(t, q, 2).ID

	for range 3 {
		q.tick()
		waitIdle(t, q)
	}

	got := order.get()
	want := []string{flaky, other, flaky}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
	info, _ := q.Get(flaky)
	if info.Status != StatusCompleted || info.Attempts != 1 {
		t.Fatalf("expected completed after one failed attempt, got %+v", info)
	}
}

func TestPermanent_SkipsRemainingAttempts(t *testing.T) {
	q := New()
	q.Register("gen", func(context.Context, *Run) ([]byte, error) {
		return nil, Permanent(errors.New("malformed payload"))
	})
	job := submit(t, q, 1)
	info := drive(t, q, job.ID)
	if info.Status != StatusFailed || info.Attempts != 1 {
		t.Fatalf("expected failed after one attempt, got %+v", info)
	}
}

func TestHandlerPanic_CountsAsFailedRun(t *testing.T) {
	q := New(WithMaxAttempts(1))
	q.Register("gen", func(context.Context, *Run) ([]byte, error) {
		panic("boom")
	})
	job := submit(t, q, 1)
	info := drive(t, q, job.ID)
	if info.Status != StatusFailed || info.Error != "Job handler panicked" {
		t.Fatalf("unexpected state: %+v", info)
	}
}

func TestMissingHandler_FailsPermanently(t *testing.T) {
	q := New()
	job := submit(t, q, 1)
	info := drive(t, q, job.ID)
	if info.Status != StatusFailed || info.Attempts != 1 {
		t.Fatalf("unexpected state: %+v", info)
	}
}

// ─── cancellation ────────────────────────────────────────────────────────────

func TestCancel_WaitingJobIsNeverAdmitted(t *testing.T) {
	q := New()
	ran := false
	q.Register("gen", func(context.Context, *Run) ([]byte, error) {
		ran = true
		return nil, nil
	})
	job := submit(t, q, 1)

	info, err := q.Cancel(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Status != StatusFailed || info.Error != CancelledMessage || info.Attempts != 0 {
		t.Fatalf("unexpected state: %+v", info)
	}

	q.tick()
	waitIdle(t, q)
	if ran {
		t.Fatal("cancelled job was admitted")
	}
	if q.Stats().Waiting != 0 {
		t.Fatal("cancelled job still waiting")
	}
}

func TestCancel_TerminalIsNoop(t *testing.T) {
	q := New()
	q.Register("gen", func(context.Context, *Run) ([]byte, error) { return []byte(`{"url":"x"}`), nil })
	job := submit(t, q, 1)
	done := drive(t, q, job.ID)

	for range 2 {
		info, err := q.Cancel(job.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if info.Status != StatusCompleted || info.UpdatedAt != done.UpdatedAt {
			t.Fatalf("terminal job changed: %+v", info)
		}
	}
}

func TestCancel_ActiveJobDiscardsLateResult(t *testing.T) {
	q := New(WithConcurrency(1))
	started := make(chan struct{})
	release := make(chan struct{})
	var sawCancel bool
	q.Register("gen", func(_ context.Context, run *Run) ([]byte, error) {
		close(started)
		<-release
		sawCancel = run.Cancelled()
		run.Progress(90, "late")
		return []byte(`{"url":"late"}`), nil
	})

	job := submit(t, q, 1)
	q.tick()
	<-started

	if _, err := q.Cancel(job.ID); err != nil {
		t.Fatal(err)
	}
	if q.Stats().Active != 0 {
		t.Fatal("cancel should free the slot immediately")
	}

	close(release)
	q.runs.Wait()

	info, _ := q.Get(job.ID)
	if info.Status != StatusFailed || !info.Cancelled {
		t.Fatalf("cancellation was overwritten: %+v", info)
	}
	if info.Result != nil || info.Progress == 90 {
		t.Fatalf("late write leaked into job: %+v", info)
	}
	if !sawCancel {
		t.Fatal("run should observe cancellation")
	}
}

// ─── progress ────────────────────────────────────────────────────────────────

func TestProgress_NeverDecreasesWithinRun(t *testing.T) {
	q := New()
	var observed int
	q.Register("gen", func(_ context.Context, run *Run) ([]byte, error) {
		run.Progress(50, "half")
		run.Progress(30, "backwards")
		info, _ := q.Get(run.Job.ID)
		observed = info.Progress
		return nil, nil
	})
	job := submit(t, q, 1)
	info := drive(t, q, job.ID)

	if observed != 50 {
		t.Fatalf("expected progress to stay at 50, got %d", observed)
	}
	if info.Progress != 100 {
		t.Fatalf("expected 100 on completion, got %d", info.Progress)
	}
}

func TestProgress_ResetsOnReadmission(t *testing.T) {
	q := New()
	var firstSeen []int
	q.Register("gen", func(_ context.Context, run *Run) ([]byte, error) {
		info, _ := q.Get(run.Job.ID)
		firstSeen = append(firstSeen, info.Progress)
		run.Progress(60, "polling")
		if run.Attempt() == 1 {
			return nil, errors.New("transient")
		}
		return nil, nil
	})
	job := submit(t, q, 1)
	drive(t, q, job.ID)

	if len(firstSeen) != 2 || firstSeen[0] != 0 || firstSeen[1] != 0 {
		t.Fatalf("expected each run to start at 0, got %v", firstSeen)
	}
}

// ─── cleanup / reads ─────────────────────────────────────────────────────────

func TestCleanup_RemovesOnlyExpiredTerminalJobs(t *testing.T) {
	q := New(WithRetention(time.Hour))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return base }
	q.Register("gen", func(context.Context, *Run) ([]byte, error) { return nil, nil })

	done := submit(t, q, 1)
	drive(t, q, done.ID)
	waiting := submit(t, q, 9)

	q.now = func() time.Time { return base.Add(2 * time.Hour) }
	fresh := submit(t, q, 1)
	drive(t, q, fresh.ID)

	if n := q.cleanup(); n != 1 {
		t.Fatalf("expected 1 removal, got %d", n)
	}
	if _, err := q.Get(done.ID); !errx.HasCode(err, ErrJobNotFound) {
		t.Fatal("expired terminal job should be removed")
	}
	if _, err := q.Get(waiting.ID); err != nil {
		t.Fatal("non-terminal job must survive cleanup")
	}
	if _, err := q.Get(fresh.ID); err != nil {
		t.Fatal("recent terminal job must survive cleanup")
	}
}

func TestPositionAndList(t *testing.T) {
	q := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return base }
	a := submit(t, q, 3)
	q.now = func() time.Time { return base.Add(time.Second) }
	b := submit(t, q, 1)

	if pos, _ := q.Position(a.ID); pos != 2 {
		t.Fatalf("expected a at 2, got %d", pos)
	}
	if pos, _ := q.Position(b.ID); pos != 1 {
		t.Fatalf("expected b at 1, got %d", pos)
	}

	list := q.List("u1")
	if len(list) != 2 || list[0].ID != b.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if len(q.List("someone-else")) != 0 {
		t.Fatal("expected empty list for other user")
	}
}

// ─── events / lifecycle ──────────────────────────────────────────────────────

func TestEvents_DeliveredInOrderAndPanicsRecovered(t *testing.T) {
	var kinds []EventKind
	q := New(WithObserver(
		ObserverFunc(func(context.Context, Event) { panic("bad observer") }),
		ObserverFunc(func(_ context.Context, ev Event) { kinds = append(kinds, ev.Kind) }),
	))
	q.Register("gen", func(_ context.Context, run *Run) ([]byte, error) {
		run.Progress(10, "Preparing generation")
		return nil, nil
	})
	job := submit(t, q, 1)
	drive(t, q, job.ID)
	q.dispatchPending()

	want := []EventKind{EventSubmitted, EventActive, EventProgress, EventCompleted}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
}

func TestEvents_FullBufferDropsOnlyProgress(t *testing.T) {
	var kinds []EventKind
	q := New(WithEventBuffer(1), WithObserver(ObserverFunc(func(_ context.Context, ev Event) {
		kinds = append(kinds, ev.Kind)
	})))
	q.Register("gen", func(_ context.Context, run *Run) ([]byte, error) {
		run.Progress(10, "Preparing generation")
		return nil, nil
	})

	job := submit(t, q, 1)
	drive(t, q, job.ID)
	if len(q.events) != 1 {
		t.Fatalf("expected buffer to hold 1 event, got %d", len(q.events))
	}
	q.dispatchPending()

	want := []EventKind{EventSubmitted, EventActive, EventCompleted}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
	if len(q.backlog) != 0 {
		t.Fatalf("backlog not drained: %d left", len(q.backlog))
	}
}

func TestEvents_CancelRacingAdmissionIsObservedLast(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Event
	)
	q := New(WithConcurrency(1), WithObserver(ObserverFunc(func(_ context.Context, ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})))

	// the fourth clock read is the admission event inside tick
	var calls atomic.Int32
	admitting := make(chan struct{})
	resume := make(chan struct{})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time {
		if calls.Add(1) == 4 {
			close(admitting)
			<-resume
		}
		return base
	}

	handlerDone := make(chan struct{})
	q.Register("gen", func(_ context.Context, run *Run) ([]byte, error) {
		<-handlerDone
		run.Progress(50, "late")
		return nil, errors.New("transient")
	})
	job := submit(t, q, 1)

	ticked := make(chan struct{})
	go func() {
		defer close(ticked)
		q.tick()
	}()
	<-admitting

	cancelled := make(chan struct{})
	go func() {
		defer close(cancelled)
		if _, err := q.Cancel(job.ID); err != nil {
			t.Error(err)
		}
	}()
	time.Sleep(10 * time.Millisecond)
	close(resume)
	<-ticked
	<-cancelled

	close(handlerDone)
	q.runs.Wait()
	q.dispatchPending()

	info, _ := q.Get(job.ID)
	if info.Status != StatusFailed || !info.Cancelled {
		t.Fatalf("expected cancelled job, got %+v", info)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 {
		t.Fatal("no events observed")
	}
	last := events[len(events)-1]
	if last.Kind != EventCancelled || last.Job.Status != StatusFailed {
		t.Fatalf("observers end on %s/%s, job is %s", last.Kind, last.Job.Status, info.Status)
	}
	for _, ev := range events {
		if ev.Kind == EventRetrying || ev.Kind == EventProgress {
			t.Fatalf("superseded run leaked %s event", ev.Kind)
		}
	}
}

func TestStart_RejectsSecondStartAndStops(t *testing.T) {
	q := New(WithTickInterval(5*time.Millisecond), WithShutdownTimeout(time.Second))
	q.Register("gen", func(context.Context, *Run) ([]byte, error) { return nil, nil })

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- q.Start(ctx) }()

	waitFor(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.running
	})
	if err := q.Start(context.Background()); !errx.HasCode(err, ErrAlreadyRunning) {
		t.Fatalf("expected already running, got %v", err)
	}

	job := submit(t, q, 1)
	waitFor(t, func() bool {
		info, _ := q.Get(job.ID)
		return info.Status == StatusCompleted
	})

	cancel()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}

func TestSubmit_CallerChosenIDMustBeUnique(t *testing.T) {
	q := New()
	info, err := q.Submit(context.Background(), Job{ID: "job-1", Type: "gen"})
	if err != nil || info.ID != "job-1" {
		t.Fatalf("expected job-1, got %q (%v)", info.ID, err)
	}
	if _, err := q.Submit(context.Background(), Job{ID: "job-1", Type: "gen"}); !errx.HasCode(err, ErrInvalidJob) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

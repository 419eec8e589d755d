package generation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/culturalsoundlab/soundlab/pkg/jobx"
	"github.com/culturalsoundlab/soundlab/pkg/synthx"
)

func submitGeneration(t *testing.T, q *jobx.Queue, p Payload) string {
	t.Helper()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	info, err := q.Submit(context.Background(), jobx.Job{
		Type:      JobType,
		Payload:   raw,
		Priority:  p.Type.Priority(),
		UserID:    p.UserID.String(),
		Reference: p.GenerationID.String(),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return info.ID
}

func testPayload() Payload {
	return Payload{
		GenerationID:  "gen-1",
		UserID:        "alice",
		Type:          TypeSoundLogo,
		Parameters:    json.RawMessage(`{"duration":5}`),
		SourceSamples: []SourceSample{{ID: "s1", Path: "samples/drum.wav"}, {ID: "s2", Path: "samples/flute.wav"}},
	}
}

type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (l *progressLog) Observe(_ context.Context, ev jobx.Event) {
	if ev.Kind != jobx.EventProgress {
		return
	}
	l.mu.Lock()
	l.values = append(l.values, ev.Job.Progress)
	l.mu.Unlock()
}

func (l *progressLog) snapshot() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.values...)
}

func TestWorker_CompletesWithResult(t *testing.T) {
	backend := &scriptedBackend{statuses: []synthx.StatusResponse{
		{Status: synthx.StateProcessing},
		{Status: synthx.StateProcessing},
		{Status: synthx.StateCompleted, ResultURL: "https://cdn.test/gen-1.wav", ProcessingTime: 4.2, Metadata: json.RawMessage(`{"bpm":120}`)},
	}}
	progress := &progressLog{}
	q := startQueue(t, NewWorker(backend, prefixSigner{}, fastConfig()), progress)

	info := waitTerminal(t, q, submitGeneration(t, q, testPayload()))
	if info.Status != jobx.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", info.Status, info.Error)
	}
	if info.Progress != 100 {
		t.Errorf("progress = %d, want 100", info.Progress)
	}
	var res Result
	if err := json.Unmarshal(info.Result, &res); err != nil {
		t.Fatal(err)
	}
	if res.URL != "https://cdn.test/gen-1.wav" || res.ProcessingTime != 4.2 {
		t.Errorf("result = %+v", res)
	}
	if string(res.Metadata) != `{"bpm":120}` {
		t.Errorf("metadata = %s", res.Metadata)
	}

	waitFor(t, func() bool { return len(progress.snapshot()) >= 5 })
	values := progress.snapshot()
	want := []int{10, 20, 50}
	for i, v := range want {
		if values[i] != v {
			t.Fatalf("progress steps = %v, want prefix %v", values, want)
		}
	}
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			t.Fatalf("progress went backwards: %v", values)
		}
	}
	if last := values[len(values)-1]; last > 90 {
		t.Errorf("polling progress = %d, want at most 90", last)
	}
}

func TestWorker_SignsSourceSamples(t *testing.T) {
	backend := &scriptedBackend{statuses: []synthx.StatusResponse{
		{Status: synthx.StateCompleted, ResultURL: "https://cdn.test/x.wav"},
	}}
	q := startQueue(t, NewWorker(backend, prefixSigner{}, fastConfig()))

	waitTerminal(t, q, submitGeneration(t, q, testPayload()))

	backend.mu.Lock()
	req := backend.lastReq
	backend.mu.Unlock()
	if req.GenerationID != "gen-1" || req.Type != string(TypeSoundLogo) {
		t.Errorf("request = %+v", req)
	}
	if len(req.SourceSamples) != 2 {
		t.Fatalf("samples = %d, want 2", len(req.SourceSamples))
	}
	for i, path := range []string{"samples/drum.wav", "samples/flute.wav"} {
		if got := req.SourceSamples[i].URL; got != "https://signed.test/"+path {
			t.Errorf("sample %d url = %q", i, got)
		}
	}
	if string(req.Parameters) != `{"duration":5}` {
		t.Errorf("parameters = %s", req.Parameters)
	}
}

func TestWorker_TransportErrorFailsAfterMaxAttempts(t *testing.T) {
	backend := &scriptedBackend{submitErr: errors.New("connection refused")}
	q := startQueue(t, NewWorker(backend, prefixSigner{}, fastConfig()))

	info := waitTerminal(t, q, submitGeneration(t, q, testPayload()))
	if info.Status != jobx.StatusFailed {
		t.Fatalf("status = %s, want failed", info.Status)
	}
	if info.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", info.Attempts)
	}
	if submits, _ := backend.counts(); submits != 3 {
		t.Errorf("backend submits = %d, want 3", submits)
	}
	if info.Error != ErrBackendFailed.Message {
		t.Errorf("error = %q", info.Error)
	}
	if strings.Contains(info.Error, "connection refused") {
		t.Errorf("transport detail leaked into job error: %q", info.Error)
	}
}

func TestWorker_BackendFailureMessage(t *testing.T) {
	backend := &scriptedBackend{statuses: []synthx.StatusResponse{
		{Status: synthx.StateFailed, ErrorMessage: "model overloaded"},
	}}
	q := startQueue(t, NewWorker(backend, prefixSigner{}, fastConfig()))

	info := waitTerminal(t, q, submitGeneration(t, q, testPayload()))
	if info.Status != jobx.StatusFailed || info.Attempts != 3 {
		t.Fatalf("status = %s attempts = %d", info.Status, info.Attempts)
	}
	if info.Error != "Audio generation failed: model overloaded" {
		t.Errorf("error = %q", info.Error)
	}
}

func TestWorker_PollExhaustionTimesOut(t *testing.T) {
	backend := &scriptedBackend{statuses: []synthx.StatusResponse{{Status: synthx.StateProcessing}}}
	cfg := fastConfig()
	cfg.MaxPolls = 3
	q := startQueue(t, NewWorker(backend, prefixSigner{}, cfg))

	info := waitTerminal(t, q, submitGeneration(t, q, testPayload()))
	if info.Status != jobx.StatusFailed {
		t.Fatalf("status = %s, want failed", info.Status)
	}
	if info.Error != ErrTimeout.Message {
		t.Errorf("error = %q, want %q", info.Error, ErrTimeout.Message)
	}
	if _, polls := backend.counts(); polls != 9 {
		t.Errorf("polls = %d, want 3 runs of 3", polls)
	}
}

func TestWorker_CompletedWithoutURLIsAnError(t *testing.T) {
	backend := &scriptedBackend{statuses: []synthx.StatusResponse{{Status: synthx.StateCompleted}}}
	q := startQueue(t, NewWorker(backend, prefixSigner{}, fastConfig()))

	info := waitTerminal(t, q, submitGeneration(t, q, testPayload()))
	if info.Status != jobx.StatusFailed {
		t.Fatalf("status = %s, want failed", info.Status)
	}
}

func TestWorker_MalformedPayloadFailsImmediately(t *testing.T) {
	backend := &scriptedBackend{}
	q := startQueue(t, NewWorker(backend, prefixSigner{}, fastConfig()))

	info, err := q.Submit(context.Background(), jobx.Job{Type: JobType, Payload: []byte(`not json`)})
	if err != nil {
		t.Fatal(err)
	}
	info = waitTerminal(t, q, info.ID)
	if info.Status != jobx.StatusFailed || info.Attempts != 1 {
		t.Fatalf("status = %s attempts = %d, want failed after 1", info.Status, info.Attempts)
	}
	if submits, _ := backend.counts(); submits != 0 {
		t.Errorf("backend called %d times for a malformed job", submits)
	}
}

func TestWorker_CancelDuringPollingStopsRun(t *testing.T) {
	backend := &scriptedBackend{statuses: []synthx.StatusResponse{{Status: synthx.StateProcessing}}}
	cfg := fastConfig()
	cfg.MaxPolls = 100000
	q := startQueue(t, NewWorker(backend, prefixSigner{}, cfg))

	id := submitGeneration(t, q, testPayload())
	waitFor(t, func() bool {
		_, polls := backend.counts()
		return polls > 2
	})

	if _, err := q.Cancel(id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// The run notices the cancellation at its next poll and stops polling.
	var before int
	waitFor(t, func() bool {
		_, polls := backend.counts()
		if polls == before {
			return true
		}
		before = polls
		time.Sleep(20 * time.Millisecond)
		return false
	})

	info, _ := q.Get(id)
	if info.Status != jobx.StatusFailed || !info.Cancelled {
		t.Fatalf("status = %s cancelled = %v", info.Status, info.Cancelled)
	}
	if info.Error != jobx.CancelledMessage {
		t.Errorf("error = %q", info.Error)
	}
	if info.Attempts != 0 {
		t.Errorf("attempts = %d, cancellation must not count as a failed run", info.Attempts)
	}
	if s := q.Stats(); s.Active != 0 {
		t.Errorf("active = %d after cancel", s.Active)
	}
}

package asyncx_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/culturalsoundlab/soundlab/pkg/asyncx"
)

func TestAllSettled_KeepsEveryOutcome(t *testing.T) {
	results := asyncx.AllSettled(context.Background(),
		func(context.Context) (int, error) { return 1, nil },
		func(context.Context) (int, error) { return 0, errors.New("redis down") },
		func(context.Context) (int, error) { return 3, nil },
	)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].OK() || results[1].OK() || !results[2].OK() {
		t.Fatalf("unexpected outcomes: %+v", results)
	}
	if results[2].Value != 3 {
		t.Fatalf("expected order preserved, got %d", results[2].Value)
	}
}

func TestMap_PreservesOrder(t *testing.T) {
	in := []string{"a", "b", "c"}
	out, err := asyncx.Map(context.Background(), in, func(_ context.Context, s string) (string, error) {
		return "signed/" + s, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range in {
		if out[i] != "signed/"+s {
			t.Fatalf("index %d: got %s", i, out[i])
		}
	}
}

func TestMap_ReturnsError(t *testing.T) {
	_, err := asyncx.Map(context.Background(), []int{1, 2}, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, errors.New("missing object")
		}
		return n, nil
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestWithTimeout_Expires(t *testing.T) {
	_, err := asyncx.WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSleep_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := asyncx.Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPollStopsOnSuccess(t *testing.T) {
	calls := 0
	result := Poll(context.Background(), Backoff{Base: time.Millisecond, Max: 4 * time.Millisecond, Budget: time.Second}, func(context.Context) bool {
		calls++
		return calls == 3
	})
	if !result.Done || result.Exhausted {
		t.Fatalf("expected done, got %+v", result)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestPollImmediateSuccessDoesNotSleep(t *testing.T) {
	start := time.Now()
	result := Poll(context.Background(), DefaultBackoff(), func(context.Context) bool { return true })
	if !result.Done || result.Attempts != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if time.Since(start) > 40*time.Millisecond {
		t.Fatalf("immediate success should not sleep")
	}
}

func TestPollBoundedByBudget(t *testing.T) {
	budget := 120 * time.Millisecond
	start := time.Now()
	result := Poll(context.Background(), Backoff{Base: 10 * time.Millisecond, Max: 40 * time.Millisecond, Budget: budget}, func(context.Context) bool {
		return false
	})
	elapsed := time.Since(start)
	if result.Done || !result.Exhausted {
		t.Fatalf("expected exhaustion, got %+v", result)
	}
	if elapsed > budget+80*time.Millisecond {
		t.Fatalf("poll overran budget: %s", elapsed)
	}
	if result.Attempts < 3 {
		t.Fatalf("expected several attempts, got %d", result.Attempts)
	}
}

func TestPollCancelsCheckThatOutlivesBudget(t *testing.T) {
	budget := 60 * time.Millisecond
	start := time.Now()
	result := Poll(context.Background(), Backoff{Base: 10 * time.Millisecond, Budget: budget}, func(ctx context.Context) bool {
		<-ctx.Done()
		return false
	})
	elapsed := time.Since(start)
	if result.Done || !result.Exhausted || result.Err != nil {
		t.Fatalf("expected exhaustion without error, got %+v", result)
	}
	if result.Attempts != 1 {
		t.Fatalf("expected one attempt, got %d", result.Attempts)
	}
	if elapsed > budget+80*time.Millisecond {
		t.Fatalf("blocked check overran budget: %s", elapsed)
	}
}

func TestPollZeroBudgetSingleAttempt(t *testing.T) {
	result := Poll(context.Background(), Backoff{Base: time.Millisecond}, func(context.Context) bool { return false })
	if result.Attempts != 1 || !result.Exhausted {
		t.Fatalf("expected one exhausted attempt, got %+v", result)
	}
}

func TestPollHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	result := Poll(ctx, Backoff{Base: 50 * time.Millisecond, Budget: 5 * time.Second}, func(context.Context) bool { return false })
	if !errors.Is(result.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", result.Err)
	}
}

func TestDelaysDoubleAndCap(t *testing.T) {
	delays := DefaultBackoff().Delays()
	want := []time.Duration{
		50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond,
		400 * time.Millisecond, 400 * time.Millisecond, 400 * time.Millisecond, 50 * time.Millisecond,
	}
	if fmt.Sprint(delays) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, delays)
	}
	var total time.Duration
	for _, d := range delays {
		total += d
	}
	if total != DefaultBudget {
		t.Fatalf("expected delays to sum to budget, got %s", total)
	}
}

func TestClassifyError(t *testing.T) {
	cases := map[string]error{
		"timeout":  context.DeadlineExceeded,
		"canceled": context.Canceled,
		"backend":  errors.New("boom"),
	}
	for want, err := range cases {
		if got := ClassifyError(err); got != want {
			t.Fatalf("ClassifyError(%v) = %q, want %q", err, got, want)
		}
	}
	if ClassifyError(nil) != "" {
		t.Fatalf("nil error should classify as empty")
	}
}

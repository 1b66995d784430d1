package runtime

import (
	"context"
	"testing"
	"time"
)

func TestInflightWaitReturnsWhenDrained(t *testing.T) {
	tracker := NewInflightTracker()
	tracker.Inc()

	done := make(chan error, 1)
	go func() {
		done <- tracker.Wait(context.Background())
	}()

	select {
	case <-done:
		t.Fatalf("wait returned while a request was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	tracker.Dec()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("wait did not return after drain")
	}
}

func TestInflightWaitHonorsContext(t *testing.T) {
	tracker := NewInflightTracker()
	tracker.Inc()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := tracker.Wait(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}

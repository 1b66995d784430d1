package limits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glr76/PlannyWeb/internal/config"
)

func TestFromConfigDefaults(t *testing.T) {
	got, err := FromConfig(config.LimitsConfig{})
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if got != Default() {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestFromConfigOverrides(t *testing.T) {
	got, err := FromConfig(config.LimitsConfig{
		MaxBodyBytes:        1024,
		ReadHeaderTimeoutMS: 500,
		WriteTimeoutMS:      2000,
	})
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if got.MaxBodyBytes != 1024 || got.ReadHeaderTimeout != 500*time.Millisecond || got.WriteTimeout != 2*time.Second {
		t.Fatalf("unexpected limits %+v", got)
	}
}

func TestFromConfigRejectsNegative(t *testing.T) {
	if _, err := FromConfig(config.LimitsConfig{MaxBodyBytes: -1}); err == nil {
		t.Fatalf("expected error for negative body limit")
	}
	if _, err := FromConfig(config.LimitsConfig{ReadHeaderTimeoutMS: -1}); err == nil {
		t.Fatalf("expected error for negative header timeout")
	}
	if _, err := FromConfig(config.LimitsConfig{MaxInflight: -1}); err == nil {
		t.Fatalf("expected error for negative max inflight")
	}
}

func TestOverloadDisabledAdmitsEverything(t *testing.T) {
	var l *OverloadLimiter
	if got := Default().Overload(); got != nil {
		t.Fatalf("expected nil limiter by default")
	}
	for i := 0; i < 100; i++ {
		if _, err := l.Admit(context.Background()); err != nil {
			t.Fatalf("nil limiter rejected a request: %v", err)
		}
	}
}

func TestOverloadRejectsBeyondCapacity(t *testing.T) {
	l := NewOverloadLimiter(1, 0, 0)
	release, err := l.Admit(context.Background())
	if err != nil {
		t.Fatalf("first admit rejected: %v", err)
	}
	if _, err := l.Admit(context.Background()); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected queue full without a queue, got %v", err)
	}
	release()
	release, err = l.Admit(context.Background())
	if err != nil {
		t.Fatalf("admit after release rejected: %v", err)
	}
	release()
}

func TestOverloadQueueWaitsForSlot(t *testing.T) {
	l := NewOverloadLimiter(1, 1, time.Second)
	release, _ := l.Admit(context.Background())

	done := make(chan error, 1)
	go func() {
		r, err := l.Admit(context.Background())
		if err == nil {
			r()
		}
		done <- err
	}()
	deadline := time.Now().Add(time.Second)
	for l.Waiting() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("request never queued")
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := l.Admit(context.Background()); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected full queue while one request waits, got %v", err)
	}
	release()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("queued admit rejected: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("queued admit never returned")
	}
	if l.Waiting() != 0 {
		t.Fatalf("queue not emptied")
	}
}

func TestOverloadQueueTimesOutAndHonoursContext(t *testing.T) {
	l := NewOverloadLimiter(1, 1, 30*time.Millisecond)
	release, _ := l.Admit(context.Background())
	defer release()

	if _, err := l.Admit(context.Background()); !errors.Is(err, ErrQueueTimeout) {
		t.Fatalf("expected queue timeout, got %v", err)
	}

	l = NewOverloadLimiter(1, 1, time.Minute)
	release2, _ := l.Admit(context.Background())
	defer release2()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Admit(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled context to be rejected, got %v", err)
	}
}

package runtime

import (
	"context"
	"net/http"
	"sync"
)

// InflightTracker counts requests being served so shutdown can wait for
// them to finish.
type InflightTracker struct {
	mu    sync.Mutex
	count int64
	idle  chan struct{}
}

func NewInflightTracker() *InflightTracker {
	idle := make(chan struct{})
	close(idle)
	return &InflightTracker{idle: idle}
}

func (t *InflightTracker) Inc() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == 0 {
		t.idle = make(chan struct{})
	}
	t.count++
}

func (t *InflightTracker) Dec() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == 0 {
		return
	}
	t.count--
	if t.count == 0 {
		close(t.idle)
	}
}

func (t *InflightTracker) Count() int64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *InflightTracker) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Track counts every request passing through next.
func (t *InflightTracker) Track(next http.Handler) http.Handler {
	if t == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Inc()
		defer t.Dec()
		next.ServeHTTP(w, r)
	})
}

package limits

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	ErrQueueFull    = errors.New("api queue full")
	ErrQueueTimeout = errors.New("api queue wait timed out")
)

// OverloadLimiter admits at most maxInflight API requests at once. Up to
// maxQueue more may wait queueTimeout for a slot; the rest are refused
// straight away.
type OverloadLimiter struct {
	slots        *semaphore.Weighted
	waiting      atomic.Int64
	maxQueue     int64
	queueTimeout time.Duration
}

// NewOverloadLimiter returns nil when maxInflight is not positive. A nil
// limiter admits everything.
func NewOverloadLimiter(maxInflight int, maxQueue int, queueTimeout time.Duration) *OverloadLimiter {
	if maxInflight <= 0 {
		return nil
	}
	if queueTimeout <= 0 {
		queueTimeout = time.Millisecond
	}
	return &OverloadLimiter{
		slots:        semaphore.NewWeighted(int64(maxInflight)),
		maxQueue:     int64(max(maxQueue, 0)),
		queueTimeout: queueTimeout,
	}
}

// Admit returns a release func, or ErrQueueFull, ErrQueueTimeout or the
// context error when the request is refused.
func (l *OverloadLimiter) Admit(ctx context.Context) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	release := func() { l.slots.Release(1) }
	if l.slots.TryAcquire(1) {
		return release, nil
	}
	if l.waiting.Add(1) > l.maxQueue {
		l.waiting.Add(-1)
		return nil, ErrQueueFull
	}
	defer l.waiting.Add(-1)

	waitCtx, cancel := context.WithTimeout(ctx, l.queueTimeout)
	defer cancel()
	if err := l.slots.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ErrQueueTimeout
	}
	return release, nil
}

// Waiting reports how many requests are queued for a slot.
func (l *OverloadLimiter) Waiting() int {
	if l == nil {
		return 0
	}
	return int(l.waiting.Load())
}

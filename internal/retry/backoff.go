package retry

import (
	"context"
	"time"
)

const (
	DefaultBase   = 50 * time.Millisecond
	DefaultMax    = 400 * time.Millisecond
	DefaultBudget = 1600 * time.Millisecond
)

// Backoff bounds a polling loop by total wall-clock time, not attempt
// count. Delays start at Base and double up to Max.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Budget time.Duration
}

type CheckFunc func(ctx context.Context) bool

type PollResult struct {
	Attempts  int
	Elapsed   time.Duration
	Done      bool
	Exhausted bool
	Err       error
}

func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBase, Max: DefaultMax, Budget: DefaultBudget}
}

func (b Backoff) withDefaults() Backoff {
	if b.Base <= 0 {
		b.Base = DefaultBase
	}
	if b.Max > 0 && b.Max < b.Base {
		b.Max = b.Base
	}
	return b
}

// Poll calls check until it reports true, the budget is spent, or ctx
// ends. The first call is immediate. Neither a sleep nor a check runs past
// the budget: check receives a context that expires with it.
func Poll(ctx context.Context, backoff Backoff, check CheckFunc) PollResult {
	result := PollResult{}
	if check == nil {
		result.Err = context.Canceled
		return result
	}
	if ctx == nil {
		ctx = context.Background()
	}
	backoff = backoff.withDefaults()

	start := time.Now()
	pollCtx := ctx
	if backoff.Budget > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithDeadline(ctx, start.Add(backoff.Budget))
		defer cancel()
	}

	delay := backoff.Base
	for {
		result.Attempts++
		ok := check(pollCtx)
		result.Elapsed = time.Since(start)
		if ok {
			result.Done = true
			return result
		}
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}

		remaining := backoff.Budget - time.Since(start)
		if remaining <= 0 {
			result.Exhausted = true
			return result
		}
		wait := delay
		if wait > remaining {
			wait = remaining
		}
		if !sleep(pollCtx, wait) {
			result.Elapsed = time.Since(start)
			if err := ctx.Err(); err != nil {
				result.Err = err
			} else {
				result.Exhausted = true
			}
			return result
		}

		delay *= 2
		if backoff.Max > 0 && delay > backoff.Max {
			delay = backoff.Max
		}
	}
}

// Delays lists the sleeps Poll would perform for a check that never
// succeeds and takes no time.
func (b Backoff) Delays() []time.Duration {
	b = b.withDefaults()
	var delays []time.Duration
	var spent time.Duration
	delay := b.Base
	for spent < b.Budget {
		wait := delay
		if remaining := b.Budget - spent; wait > remaining {
			wait = remaining
		}
		delays = append(delays, wait)
		spent += wait
		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}
	return delays
}

func sleep(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

package health

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Probe checks the backend once. A nil error counts as a success.
type Probe func(ctx context.Context) error

func ActiveProbeLoop(cfg Config, probe Probe, stop <-chan struct{}, onSuccess func(), onFailure func(error)) {
	cfg = cfg.withDefaults()
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	safeProbe(cfg.Timeout, probe, onSuccess, onFailure)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			safeProbe(cfg.Timeout, probe, onSuccess, onFailure)
		}
	}
}

func safeProbe(timeout time.Duration, probe Probe, onSuccess func(), onFailure func(error)) {
	defer func() {
		if recover() != nil {
			onFailure(errors.New("probe panicked"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := probe(ctx); err != nil {
		onFailure(err)
		return
	}
	onSuccess()
}

// Monitor runs ActiveProbeLoop in the background and feeds a Checker.
type Monitor struct {
	checker *Checker
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func StartMonitor(cfg Config, probe Probe, checker *Checker, onFailure func(error)) *Monitor {
	m := &Monitor{
		checker: checker,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(m.done)
		ActiveProbeLoop(cfg, probe, m.stop, checker.RecordSuccess, func(err error) {
			if onFailure != nil {
				onFailure(err)
			}
			checker.RecordFailure()
		})
	}()
	return m
}

func (m *Monitor) Checker() *Checker {
	return m.checker
}

func (m *Monitor) Stop(ctx context.Context) error {
	m.once.Do(func() {
		close(m.stop)
	})
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

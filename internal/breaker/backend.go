package breaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/glr76/PlannyWeb/internal/store"
)

var ErrOpen = errors.New("backend circuit open")

// Backend fails fast while the wrapped backend keeps erroring. Conflicts,
// missing objects and cancelled callers count as successes; timeouts do
// not.
type Backend struct {
	inner   store.Backend
	breaker *Breaker
}

func Wrap(inner store.Backend, b *Breaker) *Backend {
	return &Backend{inner: inner, breaker: b}
}

func (g *Backend) Name() string {
	return g.inner.Name()
}

func (g *Backend) Unwrap() store.Backend {
	return g.inner
}

// Branch forwards to backends that commit to a branch.
func (g *Backend) Branch() string {
	if b, ok := g.inner.(interface{ Branch() string }); ok {
		return b.Branch()
	}
	return ""
}

func (g *Backend) Fetch(ctx context.Context, p string) (store.Object, bool, error) {
	if !g.breaker.Allow() {
		return store.Object{}, false, g.rejected("fetch")
	}
	obj, ok, err := g.inner.Fetch(ctx, p)
	g.report(ctx, err)
	return obj, ok, err
}

func (g *Backend) PutConditional(ctx context.Context, p string, content []byte, expectedRevision string) (string, error) {
	if !g.breaker.Allow() {
		return "", g.rejected("put")
	}
	rev, err := g.inner.PutConditional(ctx, p, content, expectedRevision)
	g.report(ctx, err)
	return rev, err
}

func (g *Backend) ListFirstLevel(ctx context.Context, prefix string) ([]store.FileMeta, error) {
	if !g.breaker.Allow() {
		return nil, g.rejected("list")
	}
	files, err := g.inner.ListFirstLevel(ctx, prefix)
	g.report(ctx, err)
	return files, err
}

func (g *Backend) rejected(op string) error {
	return fmt.Errorf("%s %s: %w", g.inner.Name(), op, ErrOpen)
}

func (g *Backend) report(ctx context.Context, err error) {
	switch {
	case err == nil, errors.Is(err, store.ErrConflict):
		g.breaker.Report(true)
	case errors.Is(err, context.Canceled) && errors.Is(ctx.Err(), context.Canceled):
		g.breaker.Report(true)
	default:
		g.breaker.Report(false)
	}
}

package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glr76/PlannyWeb/internal/config"
	"github.com/glr76/PlannyWeb/internal/runtime"
)

func TestStartServesAndShutsDown(t *testing.T) {
	var stopped atomic.Bool
	srv, err := Start(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}), "127.0.0.1:0", Options{
		Shutdown: ShutdownPlan{Drain: time.Millisecond, Grace: time.Second, ForceClose: time.Millisecond},
		Inflight: runtime.NewInflightTracker(),
		Stoppers: []Stopper{StopFunc(func(context.Context) error {
			stopped.Store(true)
			return nil
		})},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := http.Get("http://" + srv.HTTPAddr + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("unexpected body %q", body)
	}

	if err := srv.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !stopped.Load() {
		t.Fatalf("stopper not called")
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := http.Get("http://" + srv.HTTPAddr + "/"); err == nil {
		t.Fatalf("expected connection error after shutdown")
	}
}

func TestStartRequiresHandlerAndAddr(t *testing.T) {
	if _, err := Start(nil, "127.0.0.1:0", Options{}); err == nil {
		t.Fatalf("expected error for nil handler")
	}
	if _, err := Start(http.NotFoundHandler(), "", Options{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestShutdownPlanFromConfig(t *testing.T) {
	plan, err := ShutdownPlanFromConfig(config.ShutdownConfig{GracefulTimeoutMS: 1500})
	if err != nil {
		t.Fatalf("shutdown plan: %v", err)
	}
	if plan.Grace != 1500*time.Millisecond || plan.Drain != 0 || plan.ForceClose != 0 {
		t.Fatalf("unexpected plan %+v", plan)
	}

	plan, err = ShutdownPlanFromConfig(config.ShutdownConfig{DrainMS: 250})
	if err != nil {
		t.Fatalf("shutdown plan: %v", err)
	}
	if plan.Drain != 250*time.Millisecond || plan.Grace != defaultGrace {
		t.Fatalf("unexpected plan %+v", plan)
	}

	_, err = ShutdownPlanFromConfig(config.ShutdownConfig{DrainMS: -1, ForceCloseMS: -2})
	if err == nil {
		t.Fatalf("expected error for negative durations")
	}
	for _, key := range []string{"shutdown.drain_ms", "shutdown.force_close_ms"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not name %s", err, key)
		}
	}
}

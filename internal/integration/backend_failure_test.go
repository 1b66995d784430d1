package integration

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glr76/PlannyWeb/internal/testutil"
)

func TestRemoteOutageOpensBreakerAndMarksBackendDown(t *testing.T) {
	var calls atomic.Int32
	var healthy atomic.Bool
	github := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !healthy.Load() {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/contents/public") {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		http.NotFound(w, r)
	}))
	defer github.Close()

	cfg := baseConfig(t)
	cfg.Backend.Kind = "github"
	cfg.Backend.GitHub.BaseURL = github.URL
	cfg.Backend.GitHub.Repo = "acme/planner"
	cfg.Backend.GitHub.Token = "token"
	cfg.Backend.Breaker.MinimumRequests = 2
	cfg.Backend.Breaker.OpenMS = 2000
	cfg.Health.IntervalMS = 10000
	a := startPlanner(t, cfg, nil)
	client := newClient()
	base := "http://" + a.Addr()

	resp, body := send(t, client, http.MethodGet, base+"/api/files/text/plan.txt", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected soft miss 404 while github fails, got %d %s", resp.StatusCode, body)
	}

	resp, body = send(t, client, http.MethodPut, base+"/api/files/text/plan.txt", "turni", nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 for failed write, got %d %s", resp.StatusCode, body)
	}

	before := calls.Load()
	for i := 0; i < 5; i++ {
		send(t, client, http.MethodGet, base+"/api/files/text/plan.txt", "", nil)
	}
	if got := calls.Load(); got != before {
		t.Fatalf("expected open circuit to stop github calls, saw %d more", got-before)
	}

	_, metrics := send(t, client, http.MethodGet, base+"/metrics", "", nil)
	if !strings.Contains(string(metrics), `planner_backend_breaker_state{backend="github"} 1`) {
		t.Fatalf("breaker gauge missing:\n%s", metrics)
	}

	healthy.Store(true)
	testutil.Eventually(t, 6*time.Second, 50*time.Millisecond, func() error {
		resp, _ := send(t, client, http.MethodGet, base+"/api/files/list?prefix=", "", nil)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("list status %d", resp.StatusCode)
		}
		return nil
	})
}

func TestProbeFailuresMarkBackendDown(t *testing.T) {
	github := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer github.Close()

	cfg := baseConfig(t)
	cfg.Backend.Kind = "github"
	cfg.Backend.GitHub.BaseURL = github.URL
	cfg.Backend.GitHub.Repo = "acme/planner"
	cfg.Backend.Breaker.Enabled = false
	a := startPlanner(t, cfg, nil)
	client := newClient()

	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() error {
		_, metrics := send(t, client, http.MethodGet, "http://"+a.Addr()+"/metrics", "", nil)
		if !strings.Contains(string(metrics), `planner_backend_up{backend="github"} 0`) {
			return fmt.Errorf("backend still reported up")
		}
		return nil
	})
}

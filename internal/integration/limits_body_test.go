package integration

import (
	"net/http"
	"strings"
	"testing"
)

func TestBodySizeLimit(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Limits.MaxBodyBytes = 100
	a := startPlanner(t, cfg, nil)
	client := newClient()
	base := "http://" + a.Addr()

	resp, body := send(t, client, http.MethodPut, base+"/api/files/text/plan.txt", strings.Repeat("a", 1000), nil)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d %s", resp.StatusCode, body)
	}

	resp, _ = send(t, client, http.MethodGet, base+"/api/files/text/plan.txt", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("oversized write must not reach the store, got %d", resp.StatusCode)
	}

	resp, body = send(t, client, http.MethodPut, base+"/api/files/text/plan.txt", strings.Repeat("b", 100), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected write at the limit to pass, got %d %s", resp.StatusCode, body)
	}
}

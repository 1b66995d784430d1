package integration

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/glr76/PlannyWeb/internal/app"
	"github.com/glr76/PlannyWeb/internal/config"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Backend.Kind = "memory"
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.PublicDir = ""
	cfg.Auth.OpenWrites = true
	cfg.Health.IntervalMS = 20
	cfg.Health.TimeoutMS = 200
	cfg.Shutdown.GracefulTimeoutMS = 2000
	cfg.Shutdown.DrainMS = 1
	return cfg
}

func startPlanner(t *testing.T, cfg *config.Config, logs io.Writer) *app.App {
	t.Helper()
	logger := zerolog.Nop()
	if logs != nil {
		logger = zerolog.New(logs)
	}
	a, err := app.Build(t.Context(), cfg, logger)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown() })
	return a
}

func newClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
}

func send(t *testing.T, client *http.Client, method string, url string, body string, cookie *http.Cookie) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

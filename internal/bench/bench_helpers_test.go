package bench

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/glr76/PlannyWeb/internal/auth"
	"github.com/glr76/PlannyWeb/internal/backend/memory"
	"github.com/glr76/PlannyWeb/internal/retry"
	"github.com/glr76/PlannyWeb/internal/store"
	"github.com/glr76/PlannyWeb/internal/web"
)

func newBenchStore(b *testing.B) *store.Store {
	b.Helper()
	s, err := store.New(memory.New(memory.Options{}), store.Options{
		Logger: zerolog.Nop(),
		Verify: retry.Backoff{Base: time.Millisecond, Max: 2 * time.Millisecond, Budget: 20 * time.Millisecond},
	})
	if err != nil {
		b.Fatalf("store: %v", err)
	}
	return s
}

func startBenchmarkAPI(b *testing.B, s *store.Store) (*httptest.Server, *http.Client, func()) {
	b.Helper()
	a, err := auth.New(auth.Options{Secret: "bench", OpenWrites: true})
	if err != nil {
		b.Fatalf("auth: %v", err)
	}
	handler, err := web.NewHandler(web.Options{Store: s, Auth: a, Logger: zerolog.Nop()})
	if err != nil {
		b.Fatalf("handler: %v", err)
	}

	server := httptest.NewServer(handler)
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 64,
			IdleConnTimeout:     30 * time.Second,
		},
	}
	cleanup := func() {
		client.CloseIdleConnections()
		server.Close()
	}
	return server, client, cleanup
}

func selectionsText(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString("2025-03-")
		sb.WriteString(string(rune('0' + i%10)))
		sb.WriteString(",ROSSI,M,turno notte\n")
	}
	return sb.String()
}

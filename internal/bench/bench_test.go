package bench

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func BenchmarkStoreCachedLookup(b *testing.B) {
	s := newBenchStore(b)
	ctx := context.Background()
	if _, err := s.Put(ctx, "selections_2025.txt", selectionsText(500)); err != nil {
		b.Fatalf("seed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		text, err := s.Lookup(ctx, "selections_2025.txt")
		if err != nil || !text.CacheHit {
			b.Fatalf("lookup: hit=%v err=%v", text.CacheHit, err)
		}
	}
}

func BenchmarkStoreVerifiedPut(b *testing.B) {
	s := newBenchStore(b)
	ctx := context.Background()
	content := selectionsText(200)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Put(ctx, fmt.Sprintf("notes/%d.txt", i%64), content); err != nil {
			b.Fatalf("put: %v", err)
		}
	}
}

func BenchmarkAPITextGet(b *testing.B) {
	s := newBenchStore(b)
	if _, err := s.Put(context.Background(), "selections_2025.txt", selectionsText(500)); err != nil {
		b.Fatalf("seed: %v", err)
	}
	server, client, cleanup := startBenchmarkAPI(b, s)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := client.Get(server.URL + "/api/files/text/selections_2025.txt")
		if err != nil {
			b.Fatalf("get: %v", err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}

func BenchmarkAPITextPut(b *testing.B) {
	s := newBenchStore(b)
	server, client, cleanup := startBenchmarkAPI(b, s)
	defer cleanup()
	content := selectionsText(200)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req, err := http.NewRequest(http.MethodPut, server.URL+"/api/files/text/plan.txt", strings.NewReader(content))
		if err != nil {
			b.Fatalf("request: %v", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			b.Fatalf("put: %v", err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}

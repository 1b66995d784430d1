package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/glr76/PlannyWeb/internal/config"
)

func baseTransport(t *testing.T, client *http.Client) *http.Transport {
	t.Helper()
	wrapped, ok := client.Transport.(*backendHeaders)
	require.True(t, ok)
	base, ok := wrapped.next.(*http.Transport)
	require.True(t, ok)
	return base
}

func TestFromConfigAndDefaults(t *testing.T) {
	client := NewClient(FromConfig(config.HTTPConfig{TimeoutMS: 1500, DialTimeoutMS: 200, MaxIdleConnsPerHost: 2}))
	require.Equal(t, 1500*time.Millisecond, client.Timeout)
	base := baseTransport(t, client)
	require.Equal(t, 2, base.MaxIdleConnsPerHost)
	require.Equal(t, 4, base.MaxIdleConns)
	require.Equal(t, 1500*time.Millisecond, base.ResponseHeaderTimeout, "header wait is capped by the call timeout")

	client = NewClient(Options{})
	require.Equal(t, 30*time.Second, client.Timeout)
	require.Equal(t, 20*time.Second, baseTransport(t, client).ResponseHeaderTimeout)
}

func TestClientStampsBackendHeaders(t *testing.T) {
	seen := make(chan http.Header, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(Options{Timeout: 2 * time.Second})
	defer client.CloseIdleConnections()

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	h := <-seen
	require.Equal(t, UserAgent, h.Get("User-Agent"))
	require.Equal(t, "no-cache", h.Get("Cache-Control"))

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "custom/2")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	h = <-seen
	require.Equal(t, "custom/2", h.Get("User-Agent"))
	require.Equal(t, "no-cache", h.Get("Cache-Control"))
	require.Empty(t, req.Header.Get("Cache-Control"), "caller's request is not mutated")
}

package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/glr76/PlannyWeb/internal/config"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Backend.Kind = "memory"
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.PublicDir = t.TempDir()
	cfg.Auth.OpenWrites = true
	cfg.Health.IntervalMS = 20
	cfg.Shutdown.DrainMS = 1
	return cfg
}

func TestOpenBackendKinds(t *testing.T) {
	ctx := context.Background()

	mem, err := OpenBackend(ctx, config.BackendConfig{Kind: "memory"})
	require.NoError(t, err)
	require.Equal(t, "memory", mem.Backend.Name())
	require.NoError(t, mem.Close())

	disk, err := OpenBackend(ctx, config.BackendConfig{Kind: " Disk ", Disk: config.DiskConfig{Root: t.TempDir()}})
	require.NoError(t, err)
	require.Equal(t, "disk", disk.Backend.Name())
	require.Empty(t, disk.Prefix)

	gh, err := OpenBackend(ctx, config.BackendConfig{Kind: "github", GitHub: config.GitHubConfig{Repo: "acme/planner", DirPrefix: "public/"}})
	require.NoError(t, err)
	require.Equal(t, "public/", gh.Prefix)

	_, err = OpenBackend(ctx, config.BackendConfig{Kind: "ftp"})
	require.ErrorIs(t, err, config.ErrUnknownBackend)
}

func TestStoreOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	opts := StoreOptions(cfg.Store, zerolog.Nop(), nil, "public/")

	require.Equal(t, "public/", opts.Prefix)
	require.Equal(t, 50*time.Millisecond, opts.Verify.Base)
	require.Equal(t, 400*time.Millisecond, opts.Verify.Max)
	require.Equal(t, 1600*time.Millisecond, opts.Verify.Budget)
	require.Equal(t, 20*time.Second, opts.ReadTimeout)
	require.False(t, opts.SkipWriteLock)
	require.False(t, opts.VerifyThroughCache)
	require.NotNil(t, opts.Cache)
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	_, err := Build(context.Background(), nil, zerolog.Nop())
	require.Error(t, err)

	cfg := memoryConfig(t)
	cfg.Backend.Kind = "ftp"
	_, err = Build(context.Background(), cfg, zerolog.Nop())
	require.ErrorIs(t, err, config.ErrUnknownBackend)
}

func TestAppServesWritesAndStaticFiles(t *testing.T) {
	cfg := memoryConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Server.PublicDir, "index.html"), []byte("<h1>planner</h1>"), 0o644))

	a, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Start())
	t.Cleanup(func() { _ = a.Shutdown() })

	client := &http.Client{Timeout: 5 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	base := "http://" + a.Addr()

	req, err := http.NewRequest(http.MethodPut, base+"/api/files/text/selections_2025.txt", strings.NewReader("A,B,C"))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	var put struct {
		OK      bool `json:"ok"`
		Matched bool `json:"matched"`
		Size    int  `json:"size"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&put))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, put.OK)
	require.True(t, put.Matched)
	require.Equal(t, 5, put.Size)

	resp, err = client.Get(base + "/api/years")
	require.NoError(t, err)
	var years struct {
		Years []int `json:"years"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&years))
	resp.Body.Close()
	require.Equal(t, []int{2025}, years.Years)

	resp, err = client.Get(base + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "planner")

	resp, err = client.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, a.Shutdown())
	require.NoError(t, a.Shutdown())
}

func TestAppStartsGRPCHealth(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Health.GRPCAddr = "127.0.0.1:0"

	a, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Start())
	defer func() { require.NoError(t, a.Shutdown()) }()

	require.NotEmpty(t, a.GRPCAddr())
}

func TestRunStopsWhenContextIsCancelled(t *testing.T) {
	cfg := memoryConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, zerolog.Nop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

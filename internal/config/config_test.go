package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func loadIsolated(t *testing.T, opts LoadOptions) *Config {
	t.Helper()
	if opts.EnvFile == "" {
		opts.EnvFile = filepath.Join(t.TempDir(), "missing.env")
		_ = os.WriteFile(opts.EnvFile, nil, 0o600)
	}
	cfg, err := Load(opts)
	require.NoError(t, err)
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := loadIsolated(t, LoadOptions{})
	require.Equal(t, "disk", cfg.Backend.Kind)
	require.Equal(t, ":8000", cfg.ListenAddr())
	require.Equal(t, 120000, cfg.Store.CacheTTLMS)
	require.Equal(t, 50, cfg.Store.VerifyBaseMS)
	require.Equal(t, 400, cfg.Store.VerifyMaxMS)
	require.Equal(t, 1600, cfg.Store.VerifyBudgetMS)
	require.True(t, cfg.Store.LockWrites)
	require.False(t, cfg.Store.VerifyThroughCache)
	require.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestLegacyEnvironmentNames(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GITHUB_REPO", "glr76/PlannyWeb")
	t.Setenv("GITHUB_TOKEN", "ghp_secret")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service")
	t.Setenv("FLASK_SECRET_KEY", "s3cret")
	t.Setenv("PLANNER_BACKEND_KIND", "github")

	cfg := loadIsolated(t, LoadOptions{})
	require.Equal(t, ":9090", cfg.ListenAddr())
	require.Equal(t, "github", cfg.Backend.Kind)
	require.Equal(t, "glr76/PlannyWeb", cfg.Backend.GitHub.Repo)
	require.Equal(t, "public/", cfg.Backend.GitHub.DirPrefix)
	require.Equal(t, "service", cfg.Backend.Supabase.Key)
	require.Equal(t, "s3cret", cfg.Auth.SessionSecret)

	out := cfg.String()
	require.NotContains(t, out, "ghp_secret")
	require.NotContains(t, out, "s3cret")
	require.Contains(t, out, "glr76/PlannyWeb")
}

func TestPrefixedNameWinsOverAlias(t *testing.T) {
	t.Setenv("GITHUB_BRANCH", "legacy")
	t.Setenv("PLANNER_BACKEND_GITHUB_BRANCH", "release")

	cfg := loadIsolated(t, LoadOptions{})
	require.Equal(t, "release", cfg.Backend.GitHub.Branch)
}

func TestConfigFileAndEnvFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "planner.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(strings.Join([]string{
		"backend:",
		"  kind: sqlite",
		"store:",
		"  verify_budget_ms: 200",
		"cors:",
		"  allowed_origins: [\"https://a.example\", \"https://b.example\"]",
	}, "\n")), 0o600))
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("PLANNER_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("PLANNER_LOG_LEVEL") })

	cfg := loadIsolated(t, LoadOptions{ConfigFile: configPath, EnvFile: envPath})
	require.Equal(t, "sqlite", cfg.Backend.Kind)
	require.Equal(t, 200, cfg.Store.VerifyBudgetMS)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestValidateBackendRequirements(t *testing.T) {
	cfg := Default()
	cfg.Backend.Kind = "github"
	_, err := Validate(cfg)
	require.ErrorContains(t, err, "GITHUB_REPO")

	cfg.Backend.GitHub.Repo = "owner/repo"
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Contains(t, warnings, "GITHUB_TOKEN is empty: writes will be rejected by GitHub")

	cfg.Backend.Kind = "ftp"
	_, err = Validate(cfg)
	require.ErrorIs(t, err, ErrUnknownBackend)

	cfg.Backend.Kind = "supabase"
	cfg.Backend.Supabase.URL = "https://x.supabase.co"
	_, err = Validate(cfg)
	require.ErrorContains(t, err, "SUPABASE_SERVICE_ROLE")
}

func TestValidateStoreAndAuth(t *testing.T) {
	cfg := Default()
	cfg.Store.VerifyMaxMS = 10
	_, err := Validate(cfg)
	require.ErrorContains(t, err, "verify_max_ms")

	cfg = Default()
	cfg.Auth.UsersJSON = "{not json"
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Contains(t, warnings, "USERS_JSON is malformed: no users will be able to log in")

	cfg = Default()
	cfg.Auth.UsersJSON = `{"anna":{"pw_hash":"x","role":"write"}}`
	warnings, err = Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)

	_, err = Validate(nil)
	require.Error(t, err)
}

func TestBackendGuardDefaultsAndValidation(t *testing.T) {
	cfg := loadIsolated(t, LoadOptions{})
	require.True(t, cfg.Backend.Breaker.Enabled)
	require.Equal(t, 50, cfg.Backend.Breaker.FailureRatePercent)
	require.Equal(t, 15000, cfg.Backend.Breaker.OpenMS)
	require.Equal(t, 30000, cfg.Backend.HTTP.TimeoutMS)

	cfg.Backend.Breaker.FailureRatePercent = 150
	_, err := Validate(cfg)
	require.ErrorContains(t, err, "failure_rate_percent")

	cfg = Default()
	cfg.Backend.HTTP.TimeoutMS = -1
	_, err = Validate(cfg)
	require.ErrorContains(t, err, "backend.http")
}

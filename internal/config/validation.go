package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownBackend = errors.New("unknown backend kind")

var backendKinds = []string{"disk", "github", "s3", "supabase", "sqlite", "redis", "memory"}

// Validate returns hard errors for settings the service cannot start
// with, and warnings for settings that work but are probably wrong.
func Validate(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	warnings := []string{}
	if err := validateBackend(cfg, &warnings); err != nil {
		return warnings, err
	}
	if err := validateStore(cfg); err != nil {
		return warnings, err
	}
	if err := validateAuth(cfg, &warnings); err != nil {
		return warnings, err
	}
	if err := validateLimits(cfg); err != nil {
		return warnings, err
	}
	return warnings, nil
}

func validateBackend(cfg *Config, warnings *[]string) error {
	kind := strings.ToLower(strings.TrimSpace(cfg.Backend.Kind))
	switch kind {
	case "disk":
		if strings.TrimSpace(cfg.Backend.Disk.Root) == "" {
			return errors.New("backend.disk.root is required for disk backend")
		}
	case "github":
		repo := strings.TrimSpace(cfg.Backend.GitHub.Repo)
		if repo == "" {
			return errors.New("GITHUB_REPO (backend.github.repo) is required for github backend")
		}
		if !strings.Contains(repo, "/") {
			return fmt.Errorf("GITHUB_REPO %q must be owner/name", repo)
		}
		if strings.TrimSpace(cfg.Backend.GitHub.Token) == "" {
			*warnings = append(*warnings, "GITHUB_TOKEN is empty: writes will be rejected by GitHub")
		}
	case "s3":
		if strings.TrimSpace(cfg.Backend.S3.Endpoint) == "" {
			return errors.New("backend.s3.endpoint is required for s3 backend")
		}
		if strings.TrimSpace(cfg.Backend.S3.Bucket) == "" {
			return errors.New("backend.s3.bucket is required for s3 backend")
		}
	case "supabase":
		if strings.TrimSpace(cfg.Backend.Supabase.URL) == "" {
			return errors.New("SUPABASE_URL (backend.supabase.url) is required for supabase backend")
		}
		if strings.TrimSpace(cfg.Backend.Supabase.Key) == "" {
			return errors.New("SUPABASE_SERVICE_ROLE (backend.supabase.key) is required for supabase backend")
		}
	case "sqlite":
		if strings.TrimSpace(cfg.Backend.SQLite.DSN) == "" {
			return errors.New("backend.sqlite.dsn is required for sqlite backend")
		}
	case "redis":
		if strings.TrimSpace(cfg.Backend.Redis.Addr) == "" {
			return errors.New("backend.redis.addr is required for redis backend")
		}
	case "memory":
		*warnings = append(*warnings, "memory backend keeps files in process memory only")
		if cfg.Backend.Memory.ReadLag < 0 {
			return errors.New("backend.memory.read_lag must be >= 0")
		}
	default:
		return fmt.Errorf("%w %q (want one of %s)", ErrUnknownBackend, cfg.Backend.Kind, strings.Join(backendKinds, ", "))
	}
	br := cfg.Backend.Breaker
	if br.Enabled && (br.FailureRatePercent < 0 || br.FailureRatePercent > 100) {
		return errors.New("backend.breaker.failure_rate_percent must be between 0 and 100")
	}
	if br.MinimumRequests < 0 || br.WindowMS < 0 || br.OpenMS < 0 || br.HalfOpenProbes < 0 {
		return errors.New("backend.breaker values must be >= 0")
	}
	h := cfg.Backend.HTTP
	if h.TimeoutMS < 0 || h.DialTimeoutMS < 0 || h.ResponseHeaderTimeoutMS < 0 || h.MaxIdleConnsPerHost < 0 {
		return errors.New("backend.http values must be >= 0")
	}
	return nil
}

func validateStore(cfg *Config) error {
	s := cfg.Store
	if s.CacheTTLMS <= 0 {
		return errors.New("store.cache_ttl_ms must be > 0")
	}
	if s.ReadTimeoutMS <= 0 || s.WriteTimeoutMS <= 0 {
		return errors.New("store.read_timeout_ms and store.write_timeout_ms must be > 0")
	}
	if s.VerifyBaseMS <= 0 {
		return errors.New("store.verify_base_ms must be > 0")
	}
	if s.VerifyMaxMS < s.VerifyBaseMS {
		return errors.New("store.verify_max_ms must be >= store.verify_base_ms")
	}
	if s.VerifyBudgetMS < 0 {
		return errors.New("store.verify_budget_ms must be >= 0")
	}
	if s.MaxObjectBytes < 0 {
		return errors.New("store.max_object_bytes must be >= 0")
	}
	return nil
}

func validateAuth(cfg *Config, warnings *[]string) error {
	a := cfg.Auth
	users := strings.TrimSpace(a.UsersJSON)
	if users != "" {
		var parsed map[string]json.RawMessage
		if err := json.Unmarshal([]byte(users), &parsed); err != nil {
			*warnings = append(*warnings, "USERS_JSON is malformed: no users will be able to log in")
		} else if len(parsed) > 0 && (a.SessionSecret == "" || a.SessionSecret == "change-me") {
			*warnings = append(*warnings, "session secret is the default: set FLASK_SECRET_KEY or auth.session_secret")
		}
	}
	if a.SessionTTLMS <= 0 {
		return errors.New("auth.session_ttl_ms must be > 0")
	}
	if a.OpenWrites {
		*warnings = append(*warnings, "auth.open_writes is enabled: anonymous clients can write")
	}
	return nil
}

func validateLimits(cfg *Config) error {
	l := cfg.Limits
	if l.MaxBodyBytes <= 0 {
		return errors.New("limits.max_body_bytes must be > 0")
	}
	if l.MaxHeaderBytes <= 0 {
		return errors.New("limits.max_header_bytes must be > 0")
	}
	if l.ReadHeaderTimeoutMS <= 0 {
		return errors.New("limits.read_header_timeout_ms must be > 0")
	}
	if cfg.Shutdown.DrainMS < 0 || cfg.Shutdown.GracefulTimeoutMS < 0 || cfg.Shutdown.ForceCloseMS < 0 {
		return errors.New("shutdown durations must be >= 0")
	}
	return nil
}

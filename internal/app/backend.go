package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glr76/PlannyWeb/internal/backend/disk"
	"github.com/glr76/PlannyWeb/internal/backend/github"
	"github.com/glr76/PlannyWeb/internal/backend/memory"
	"github.com/glr76/PlannyWeb/internal/backend/redis"
	"github.com/glr76/PlannyWeb/internal/backend/s3"
	"github.com/glr76/PlannyWeb/internal/backend/sqlite"
	"github.com/glr76/PlannyWeb/internal/backend/supabase"
	"github.com/glr76/PlannyWeb/internal/breaker"
	"github.com/glr76/PlannyWeb/internal/config"
	"github.com/glr76/PlannyWeb/internal/store"
	"github.com/glr76/PlannyWeb/internal/transport"
)

// OpenedBackend is a configured backend plus the path prefix the store
// should apply and the function releasing its resources.
type OpenedBackend struct {
	Backend store.Backend
	Prefix  string
	Close   func() error
}

func noClose() error { return nil }

func OpenBackend(ctx context.Context, cfg config.BackendConfig) (OpenedBackend, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	switch kind {
	case "disk":
		b, err := disk.New(cfg.Disk.Root)
		if err != nil {
			return OpenedBackend{}, err
		}
		return OpenedBackend{Backend: b, Close: noClose}, nil
	case "github":
		b, err := github.New(github.Options{
			BaseURL: cfg.GitHub.BaseURL,
			Repo:    cfg.GitHub.Repo,
			Branch:  cfg.GitHub.Branch,
			Token:   cfg.GitHub.Token,

			HTTPClient: transport.NewClient(transport.FromConfig(cfg.HTTP)),
		})
		if err != nil {
			return OpenedBackend{}, err
		}
		return OpenedBackend{Backend: b, Prefix: cfg.GitHub.DirPrefix, Close: noClose}, nil
	case "s3":
		b, err := s3.New(s3.Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
			PathStyle: cfg.S3.PathStyle,
		})
		if err != nil {
			return OpenedBackend{}, err
		}
		return OpenedBackend{Backend: b, Close: noClose}, nil
	case "supabase":
		b, err := supabase.New(supabase.Options{
			URL:    cfg.Supabase.URL,
			Bucket: cfg.Supabase.Bucket,
			Key:    cfg.Supabase.Key,

			HTTPClient: transport.NewClient(transport.FromConfig(cfg.HTTP)),
		})
		if err != nil {
			return OpenedBackend{}, err
		}
		return OpenedBackend{Backend: b, Close: noClose}, nil
	case "sqlite":
		b, err := sqlite.Open(ctx, cfg.SQLite.DSN)
		if err != nil {
			return OpenedBackend{}, err
		}
		return OpenedBackend{Backend: b, Close: b.Close}, nil
	case "redis":
		b, err := redis.New(redis.Config{
			Addr:      cfg.Redis.Addr,
			DB:        cfg.Redis.DB,
			Password:  cfg.Redis.Password,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return OpenedBackend{}, err
		}
		return OpenedBackend{Backend: b, Close: b.Close}, nil
	case "memory":
		return OpenedBackend{Backend: memory.New(memory.Options{ReadLag: cfg.Memory.ReadLag}), Close: noClose}, nil
	default:
		return OpenedBackend{}, fmt.Errorf("%w %q", config.ErrUnknownBackend, cfg.Kind)
	}
}

// Remote reports whether a backend kind lives across the network.
func Remote(kind string) bool {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "github", "s3", "supabase", "redis":
		return true
	}
	return false
}

// Guard wraps b in a circuit breaker when cfg enables one.
func Guard(b store.Backend, cfg config.BreakerConfig, onChange func(breaker.State)) store.Backend {
	if !cfg.Enabled {
		return b
	}
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return breaker.Wrap(b, breaker.New(breaker.Config{
		Enabled:                     true,
		FailureRateThresholdPercent: cfg.FailureRatePercent,
		MinimumRequests:             cfg.MinimumRequests,
		EvaluationWindow:            ms(cfg.WindowMS),
		OpenDuration:                ms(cfg.OpenMS),
		HalfOpenMaxProbes:           cfg.HalfOpenProbes,
	}, nil, onChange))
}

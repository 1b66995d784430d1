package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/glr76/PlannyWeb/internal/cache"
	"github.com/glr76/PlannyWeb/internal/obs"
	"github.com/glr76/PlannyWeb/internal/retry"
)

const (
	DefaultReadTimeout  = 20 * time.Second
	DefaultWriteTimeout = 30 * time.Second
)

type Options struct {
	Cache              cache.Store
	CacheTTL           time.Duration
	Prefix             string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	Verify             retry.Backoff
	VerifyThroughCache bool
	SkipWriteLock      bool
	Logger             zerolog.Logger
	Metrics            *obs.Metrics
	Now                func() time.Time
}

// Text is a read result. Found distinguishes a missing file from an
// empty one.
type Text struct {
	Path     string
	Content  string
	Revision string
	Found    bool
	CacheHit bool
}

type CommitResult struct {
	Path     string
	Size     int
	Revision string
	SHAIn    string
	SHAEcho  string
	Echo     string
	Matched  bool
	Attempts int
	Cached   bool
}

// Store reads and writes text files on a Backend. Successful writes are
// cached for a short TTL so the writing process sees its own data even
// when the backend is slow to converge. Reads never populate the cache.
type Store struct {
	backend            Backend
	backendName        string
	cache              cache.Store
	prefix             string
	readTimeout        time.Duration
	writeTimeout       time.Duration
	verify             retry.Backoff
	verifyThroughCache bool
	locks              *pathLocks
	logger             zerolog.Logger
	metrics            *obs.Metrics
	tracer             trace.Tracer
}

func New(backend Backend, opts Options) (*Store, error) {
	if backend == nil {
		return nil, errors.New("backend is nil")
	}
	writeCache := opts.Cache
	if writeCache == nil {
		writeCache = cache.NewWriteCache(cache.Options{TTL: opts.CacheTTL, Now: opts.Now})
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	verify := opts.Verify
	if verify == (retry.Backoff{}) {
		verify = retry.DefaultBackoff()
	}

	var locks *pathLocks
	if !opts.SkipWriteLock {
		locks = newPathLocks()
	}

	return &Store{
		backend:            backend,
		backendName:        backend.Name(),
		cache:              writeCache,
		prefix:             normalizePrefix(opts.Prefix),
		readTimeout:        readTimeout,
		writeTimeout:       writeTimeout,
		verify:             verify,
		verifyThroughCache: opts.VerifyThroughCache,
		locks:              locks,
		logger:             obs.Component(opts.Logger, "store"),
		metrics:            opts.Metrics,
		tracer:             otel.Tracer("github.com/glr76/PlannyWeb/internal/store"),
	}, nil
}

func (s *Store) Backend() Backend {
	return s.backend
}

func (s *Store) Prefix() string {
	return s.prefix
}

// Lookup returns the live cached write for path if there is one, and
// otherwise the backend's copy. Backend failures are logged and reported
// as not found; only an invalid path is returned as an error.
func (s *Store) Lookup(ctx context.Context, path string) (Text, error) {
	p, err := normalizeFilePath(path)
	if err != nil {
		return Text{}, err
	}
	key := withPrefix(s.prefix, p)

	ctx, span := s.tracer.Start(ctx, "store.lookup", trace.WithAttributes(attribute.String("file.path", key)))
	defer span.End()

	if entry, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheLookup(true)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return Text{
			Path:     key,
			Content:  DecodeText(entry.Content),
			Revision: entry.Revision,
			Found:    true,
			CacheHit: true,
		}, nil
	}
	s.metrics.RecordCacheLookup(false)

	obj, found, err := s.fetch(ctx, key)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Str("path", key).Str("backend", s.backendName).Msg("read failed, treating as missing")
		return Text{Path: key}, nil
	}
	if !found {
		return Text{Path: key}, nil
	}
	return Text{
		Path:     key,
		Content:  DecodeText(obj.Content),
		Revision: obj.Revision,
		Found:    true,
	}, nil
}

// Get returns the file text, or "" when it is missing or unreadable.
func (s *Store) Get(ctx context.Context, path string) (string, error) {
	text, err := s.Lookup(ctx, path)
	if err != nil {
		return "", err
	}
	return text.Content, nil
}

func (s *Store) Put(ctx context.Context, path string, content string) (CommitResult, error) {
	return s.PutBytes(ctx, path, []byte(content))
}

// PutBytes writes content conditionally on the revision currently held by
// the backend, caches it, then reads it back until the hashes agree or
// the verify budget is spent. A read-back that never agrees is reported
// with Matched=false and no error.
func (s *Store) PutBytes(ctx context.Context, path string, content []byte) (CommitResult, error) {
	p, err := normalizeFilePath(path)
	if err != nil {
		return CommitResult{}, err
	}
	key := withPrefix(s.prefix, p)
	if content == nil {
		content = []byte{}
	}

	unlock := s.locks.lock(key)
	defer unlock()

	ctx, span := s.tracer.Start(ctx, "store.put", trace.WithAttributes(
		attribute.String("file.path", key),
		attribute.Int("file.size", len(content)),
	))
	defer span.End()

	current, exists, err := s.fetch(ctx, key)
	if err != nil {
		span.SetStatus(codes.Error, "fetch revision")
		return CommitResult{Path: key}, &BackendWriteError{Backend: s.backendName, Op: "fetch", Path: key, Err: err}
	}
	expected := ""
	if exists {
		expected = current.Revision
	}

	revision, err := s.putConditional(ctx, key, content, expected)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrConflict) {
			span.SetStatus(codes.Error, "conflict")
			s.metrics.RecordWriteConflict()
			s.logger.Info().Str("path", key).Str("expected_revision", expected).Msg("write conflict")
			var conflict *ConflictError
			if errors.As(err, &conflict) {
				return CommitResult{Path: key}, conflict
			}
			return CommitResult{Path: key}, &ConflictError{Path: key, Expected: expected, Err: err}
		}
		span.SetStatus(codes.Error, "put")
		return CommitResult{Path: key}, &BackendWriteError{Backend: s.backendName, Op: "put", Path: key, Err: err}
	}

	cached := true
	if err := s.cache.Set(key, cache.Entry{Content: content, Revision: revision}); err != nil {
		cached = false
		s.logger.Warn().Err(err).Str("path", key).Int("size", len(content)).Msg("write not cached")
	}

	shaIn := SHA256Hex(content)
	var echo []byte
	seen := false
	poll := retry.Poll(ctx, s.verify, func(ctx context.Context) bool {
		data, ok := s.readBack(ctx, key)
		if !ok {
			return false
		}
		echo = data
		seen = true
		return SHA256Hex(data) == shaIn
	})

	result := CommitResult{
		Path:     key,
		Size:     len(content),
		Revision: revision,
		SHAIn:    shaIn,
		Echo:     DecodeText(echo),
		Matched:  poll.Done,
		Attempts: poll.Attempts,
		Cached:   cached,
	}
	if seen {
		result.SHAEcho = SHA256Hex(echo)
	}
	s.metrics.ObserveVerify(poll.Attempts, poll.Done)
	span.SetAttributes(
		attribute.Bool("verify.matched", poll.Done),
		attribute.Int("verify.attempts", poll.Attempts),
	)
	if !poll.Done {
		event := s.logger.Warn().
			Str("path", key).
			Int("attempts", poll.Attempts).
			Dur("elapsed", poll.Elapsed)
		if poll.Err != nil {
			event = event.AnErr("verify_err", poll.Err)
		}
		event.Msg("write not confirmed by read-back")
	}
	return result, nil
}

// List returns the first-level entries under prefix sorted by name. A
// missing directory yields an empty slice.
func (s *Store) List(ctx context.Context, prefix string) ([]FileMeta, error) {
	p, err := NormalizePath(prefix)
	if err != nil {
		return nil, err
	}
	dir := strings.TrimSuffix(withPrefix(s.prefix, p), "/")
	if p == "" {
		dir = strings.TrimSuffix(s.prefix, "/")
	}

	ctx, span := s.tracer.Start(ctx, "store.list", trace.WithAttributes(attribute.String("file.prefix", dir)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	start := time.Now()
	files, err := s.backend.ListFirstLevel(ctx, dir)
	s.metrics.ObserveBackendRoundTrip(s.backendName, "list", time.Since(start))
	if err != nil {
		span.RecordError(err)
		s.metrics.RecordBackendError(s.backendName, "list", retry.ClassifyError(err))
		return nil, err
	}
	if files == nil {
		files = []FileMeta{}
	}
	slices.SortFunc(files, func(a, b FileMeta) int {
		return strings.Compare(a.Name, b.Name)
	})
	return files, nil
}

// Invalidate drops any cached write for path.
func (s *Store) Invalidate(path string) error {
	p, err := normalizeFilePath(path)
	if err != nil {
		return err
	}
	s.cache.Delete(withPrefix(s.prefix, p))
	return nil
}

func (s *Store) readBack(ctx context.Context, key string) ([]byte, bool) {
	if s.verifyThroughCache {
		if entry, ok := s.cache.Get(key); ok {
			return entry.Content, true
		}
	}
	obj, found, err := s.fetch(ctx, key)
	if err != nil || !found {
		return nil, false
	}
	return obj.Content, true
}

func (s *Store) fetch(ctx context.Context, key string) (Object, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	start := time.Now()
	obj, found, err := s.backend.Fetch(ctx, key)
	s.metrics.ObserveBackendRoundTrip(s.backendName, "fetch", time.Since(start))
	if err != nil {
		s.metrics.RecordBackendError(s.backendName, "fetch", retry.ClassifyError(err))
	}
	return obj, found, err
}

func (s *Store) putConditional(ctx context.Context, key string, content []byte, expected string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	start := time.Now()
	revision, err := s.backend.PutConditional(ctx, key, content, expected)
	s.metrics.ObserveBackendRoundTrip(s.backendName, "put", time.Since(start))
	if err != nil && !errors.Is(err, ErrConflict) {
		s.metrics.RecordBackendError(s.backendName, "put", retry.ClassifyError(err))
	}
	return revision, err
}

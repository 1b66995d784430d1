package redis

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/glr76/PlannyWeb/internal/store"
)

const (
	DefaultKeyPrefix = "planner:file:"
	fieldContent     = "content"
	fieldRevision    = "revision"
	scanCount        = 200
)

type Config struct {
	Addr      string
	DB        int
	Password  string
	KeyPrefix string
}

// Backend keeps one hash per file. Writes run in a WATCH/MULTI
// transaction so a concurrent writer aborts the commit.
type Backend struct {
	rdb       *goredis.Client
	keyPrefix string
}

func New(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	return NewWithClient(rdb, cfg.KeyPrefix), nil
}

func NewWithClient(rdb *goredis.Client, keyPrefix string) *Backend {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Backend{rdb: rdb, keyPrefix: keyPrefix}
}

func (b *Backend) Name() string {
	return "redis"
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func (b *Backend) Close() error {
	if b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

func (b *Backend) Fetch(ctx context.Context, p string) (store.Object, bool, error) {
	values, err := b.rdb.HMGet(ctx, b.key(p), fieldContent, fieldRevision).Result()
	if err != nil {
		return store.Object{}, false, err
	}
	if len(values) != 2 || values[1] == nil {
		return store.Object{}, false, nil
	}
	content, _ := values[0].(string)
	revision, _ := values[1].(string)
	return store.Object{Content: []byte(content), Revision: revision}, true, nil
}

func (b *Backend) PutConditional(ctx context.Context, p string, content []byte, expectedRevision string) (string, error) {
	key := b.key(p)
	var revision string
	txf := func(tx *goredis.Tx) error {
		current, err := tx.HGet(ctx, key, fieldRevision).Result()
		exists := true
		if errors.Is(err, goredis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}
		if exists != (expectedRevision != "") || (exists && current != expectedRevision) {
			return &store.ConflictError{Path: p, Expected: expectedRevision}
		}

		revision = nextRevision(content, expectedRevision)
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldContent, content, fieldRevision, revision)
			return nil
		})
		return err
	}

	if err := b.rdb.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, goredis.TxFailedErr) {
			return "", &store.ConflictError{Path: p, Expected: expectedRevision, Err: err}
		}
		return "", err
	}
	return revision, nil
}

func (b *Backend) ListFirstLevel(ctx context.Context, prefix string) ([]store.FileMeta, error) {
	dir := strings.Trim(prefix, "/")
	match := b.keyPrefix + escapeGlob(dir)
	if dir != "" {
		match += "/"
	}
	match += "*"

	want := dir
	if want == "" {
		want = "."
	}
	files := []store.FileMeta{}
	iter := b.rdb.Scan(ctx, 0, match, scanCount).Iterator()
	for iter.Next(ctx) {
		p := strings.TrimPrefix(iter.Val(), b.keyPrefix)
		if path.Dir(p) != want {
			continue
		}
		revision, err := b.rdb.HGet(ctx, iter.Val(), fieldRevision).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		files = append(files, store.FileMeta{Name: path.Base(p), Path: p, Revision: revision})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (b *Backend) key(p string) string {
	return b.keyPrefix + p
}

func nextRevision(content []byte, previous string) string {
	seed := make([]byte, 0, len(content)+len(previous)+1)
	seed = append(seed, previous...)
	seed = append(seed, 0)
	seed = append(seed, content...)
	return store.SHA256Hex(seed)
}

func escapeGlob(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)
	return replacer.Replace(s)
}

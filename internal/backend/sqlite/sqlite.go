package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/glr76/PlannyWeb/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const filesTable = "files"

// Backend keeps files in a SQLite table. Conditional writes are a single
// UPDATE guarded by the expected revision, so the check and the write
// cannot interleave with another writer.
type Backend struct {
	db *sql.DB
	qb sq.StatementBuilderType
}

func Open(ctx context.Context, dsn string) (*Backend, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Backend{db: db, qb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (b *Backend) Name() string {
	return "sqlite"
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *Backend) Fetch(ctx context.Context, p string) (store.Object, bool, error) {
	sqlStr, args, err := b.qb.Select("content", "revision").
		From(filesTable).
		Where(sq.Eq{"path": p}).
		ToSql()
	if err != nil {
		return store.Object{}, false, err
	}
	var obj store.Object
	if err := b.db.QueryRowContext(ctx, sqlStr, args...).Scan(&obj.Content, &obj.Revision); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Object{}, false, nil
		}
		return store.Object{}, false, err
	}
	if obj.Content == nil {
		obj.Content = []byte{}
	}
	return obj, true, nil
}

func (b *Backend) PutConditional(ctx context.Context, p string, content []byte, expectedRevision string) (string, error) {
	revision := nextRevision(content, expectedRevision)
	now := time.Now().Unix()
	if content == nil {
		content = []byte{}
	}

	var (
		sqlStr string
		args   []interface{}
		err    error
	)
	if expectedRevision == "" {
		sqlStr, args, err = b.qb.Insert(filesTable).
			Columns("path", "content", "revision", "updated_at").
			Values(p, content, revision, now).
			Suffix("ON CONFLICT(path) DO NOTHING").
			ToSql()
	} else {
		sqlStr, args, err = b.qb.Update(filesTable).
			Set("content", content).
			Set("revision", revision).
			Set("updated_at", now).
			Where(sq.Eq{"path": p, "revision": expectedRevision}).
			ToSql()
	}
	if err != nil {
		return "", err
	}

	res, err := b.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return "", err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if rows == 0 {
		return "", &store.ConflictError{Path: p, Expected: expectedRevision}
	}
	return revision, nil
}

func (b *Backend) ListFirstLevel(ctx context.Context, prefix string) ([]store.FileMeta, error) {
	dir := strings.Trim(prefix, "/")
	query := b.qb.Select("path", "revision").From(filesTable).OrderBy("path")
	if dir != "" {
		query = query.Where(sq.Like{"path": dir + "/%"})
	}
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := b.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	want := dir
	if want == "" {
		want = "."
	}
	files := []store.FileMeta{}
	for rows.Next() {
		var meta store.FileMeta
		if err := rows.Scan(&meta.Path, &meta.Revision); err != nil {
			return nil, err
		}
		if path.Dir(meta.Path) != want {
			continue
		}
		meta.Name = path.Base(meta.Path)
		files = append(files, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// nextRevision chains on the previous revision so rewriting identical
// content still yields a new token.
func nextRevision(content []byte, previous string) string {
	seed := make([]byte, 0, len(content)+len(previous)+1)
	seed = append(seed, previous...)
	seed = append(seed, 0)
	seed = append(seed, content...)
	return store.SHA256Hex(seed)
}

package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/glr76/PlannyWeb/internal/store"
)

// Backend stores files under a root directory. The revision is the
// sha256 of the content, so conditional writes compare hashes.
type Backend struct {
	mu sync.Mutex
	fs afero.Fs
}

func New(root string) (*Backend, error) {
	if root == "" {
		return nil, errors.New("disk root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create disk root: %w", err)
	}
	return NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), root)), nil
}

func NewWithFs(fsys afero.Fs) *Backend {
	return &Backend{fs: fsys}
}

func (b *Backend) Name() string {
	return "disk"
}

func (b *Backend) Fetch(ctx context.Context, p string) (store.Object, bool, error) {
	if err := ctx.Err(); err != nil {
		return store.Object{}, false, err
	}
	data, err := afero.ReadFile(b.fs, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store.Object{}, false, nil
		}
		return store.Object{}, false, err
	}
	return store.Object{Content: data, Revision: store.SHA256Hex(data)}, true, nil
}

func (b *Backend) PutConditional(ctx context.Context, p string, content []byte, expectedRevision string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	current, err := afero.ReadFile(b.fs, p)
	switch {
	case err == nil:
		if store.SHA256Hex(current) != expectedRevision {
			return "", &store.ConflictError{Path: p, Expected: expectedRevision}
		}
	case errors.Is(err, fs.ErrNotExist):
		if expectedRevision != "" {
			return "", &store.ConflictError{Path: p, Expected: expectedRevision}
		}
	default:
		return "", err
	}

	if dir := path.Dir(p); dir != "." {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	if err := b.replace(p, content); err != nil {
		return "", err
	}
	return store.SHA256Hex(content), nil
}

// replace stages content in a hidden file next to p and renames it over p.
func (b *Backend) replace(p string, content []byte) error {
	staged := path.Join(path.Dir(p), "."+path.Base(p)+".tmp-"+uuid.NewString())
	if err := afero.WriteFile(b.fs, staged, content, 0o644); err != nil {
		_ = b.fs.Remove(staged)
		return err
	}
	if err := b.fs.Rename(staged, p); err != nil {
		_ = b.fs.Remove(staged)
		return err
	}
	return nil
}

func (b *Backend) ListFirstLevel(ctx context.Context, prefix string) ([]store.FileMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := prefix
	if dir == "" {
		dir = "."
	}
	entries, err := afero.ReadDir(b.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []store.FileMeta{}, nil
		}
		return nil, err
	}

	files := make([]store.FileMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		full := path.Join(prefix, entry.Name())
		data, err := afero.ReadFile(b.fs, full)
		if err != nil {
			return nil, err
		}
		files = append(files, store.FileMeta{Name: entry.Name(), Path: full, Revision: store.SHA256Hex(data)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

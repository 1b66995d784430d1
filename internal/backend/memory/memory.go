package memory

import (
	"context"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/glr76/PlannyWeb/internal/store"
)

// Backend keeps files in process memory. With ReadLag > 0 the first
// ReadLag fetches after a write still return the previous version, which
// is how the GitHub and object storage read paths behave right after a
// commit.
type Backend struct {
	mu       sync.Mutex
	objects  map[string]store.Object
	previous map[string]*store.Object
	lag      map[string]int
	readLag  int
	counter  int
}

type Options struct {
	ReadLag int
}

func New(opts Options) *Backend {
	readLag := opts.ReadLag
	if readLag < 0 {
		readLag = 0
	}
	return &Backend{
		objects:  make(map[string]store.Object),
		previous: make(map[string]*store.Object),
		lag:      make(map[string]int),
		readLag:  readLag,
	}
}

func (b *Backend) Name() string {
	return "memory"
}

func (b *Backend) Fetch(ctx context.Context, p string) (store.Object, bool, error) {
	if err := ctx.Err(); err != nil {
		return store.Object{}, false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if remaining := b.lag[p]; remaining > 0 {
		b.lag[p] = remaining - 1
		prev := b.previous[p]
		if prev == nil {
			return store.Object{}, false, nil
		}
		return cloneObject(*prev), true, nil
	}
	obj, ok := b.objects[p]
	if !ok {
		return store.Object{}, false, nil
	}
	return cloneObject(obj), true, nil
}

func (b *Backend) PutConditional(ctx context.Context, p string, content []byte, expectedRevision string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	current, exists := b.objects[p]
	if exists != (expectedRevision != "") || (exists && current.Revision != expectedRevision) {
		return "", &store.ConflictError{Path: p, Expected: expectedRevision}
	}

	b.counter++
	revision := strconv.Itoa(b.counter)
	if b.readLag > 0 {
		if exists {
			prev := cloneObject(current)
			b.previous[p] = &prev
		} else {
			b.previous[p] = nil
		}
		b.lag[p] = b.readLag
	}
	b.objects[p] = store.Object{Content: append([]byte(nil), content...), Revision: revision}
	return revision, nil
}

func (b *Backend) ListFirstLevel(ctx context.Context, prefix string) ([]store.FileMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := strings.Trim(prefix, "/")
	b.mu.Lock()
	defer b.mu.Unlock()

	files := []store.FileMeta{}
	for p, obj := range b.objects {
		if path.Dir(p) != dirOrDot(dir) {
			continue
		}
		files = append(files, store.FileMeta{Name: path.Base(p), Path: p, Revision: obj.Revision})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

func dirOrDot(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}

func cloneObject(obj store.Object) store.Object {
	return store.Object{Content: append([]byte(nil), obj.Content...), Revision: obj.Revision}
}

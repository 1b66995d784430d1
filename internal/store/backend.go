package store

import "context"

type Object struct {
	Content  []byte
	Revision string
}

type FileMeta struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Revision string `json:"sha"`
}

// Backend is the system of record. Fetch reports a missing object with
// ok=false and a nil error. PutConditional must return an error matching
// ErrConflict when expectedRevision is set and no longer current; an
// empty expectedRevision means create.
type Backend interface {
	Name() string
	Fetch(ctx context.Context, path string) (Object, bool, error)
	PutConditional(ctx context.Context, path string, content []byte, expectedRevision string) (string, error)
	ListFirstLevel(ctx context.Context, prefix string) ([]FileMeta, error)
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close() error
}

package store

import "sync"

// pathLocks hands out one mutex per path and drops it once no writer
// holds or waits on it.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

func (l *pathLocks) lock(path string) func() {
	if l == nil {
		return func() {}
	}
	l.mu.Lock()
	entry := l.locks[path]
	if entry == nil {
		entry = &pathLock{}
		l.locks[path] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, path)
		}
		l.mu.Unlock()
	}
}

func (l *pathLocks) size() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

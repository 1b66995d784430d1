package cache

import (
	"errors"
	"sync"
	"time"
)

const (
	DefaultTTL                  = 120 * time.Second
	DefaultMaxObjectBytes int64 = 10 * 1024 * 1024
)

var ErrObjectTooLarge = errors.New("cache entry exceeds max object bytes")

type Options struct {
	TTL            time.Duration
	MaxObjectBytes int64
	Now            func() time.Time
}

// WriteCache holds content this process wrote recently. Entries are
// only trusted while their age is within TTL and are evicted lazily on
// lookup; there is no background sweeper.
type WriteCache struct {
	mu             sync.RWMutex
	entries        map[string]Entry
	ttl            time.Duration
	maxObjectBytes int64
	now            func() time.Time
}

func NewWriteCache(opts Options) *WriteCache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	maxObjectBytes := opts.MaxObjectBytes
	if maxObjectBytes <= 0 {
		maxObjectBytes = DefaultMaxObjectBytes
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &WriteCache{
		entries:        make(map[string]Entry),
		ttl:            ttl,
		maxObjectBytes: maxObjectBytes,
		now:            now,
	}
}

func (c *WriteCache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

func (c *WriteCache) Get(key string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}

	now := c.now()
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if entry.Age(now) > c.ttl {
		c.evict(key, entry.StoredAt)
		return Entry{}, false
	}
	return entry, true
}

func (c *WriteCache) Set(key string, entry Entry) error {
	if c == nil {
		return errors.New("write cache not initialized")
	}
	if c.maxObjectBytes > 0 && int64(len(entry.Content)) > c.maxObjectBytes {
		return ErrObjectTooLarge
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = c.now()
	}
	content := make([]byte, len(entry.Content))
	copy(content, entry.Content)
	entry.Content = content

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *WriteCache) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *WriteCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evict removes key only if it still holds the expired entry, so a
// concurrent fresh write is not thrown away.
func (c *WriteCache) evict(key string, storedAt time.Time) {
	c.mu.Lock()
	if current, ok := c.entries[key]; ok && current.StoredAt.Equal(storedAt) {
		delete(c.entries, key)
	}
	c.mu.Unlock()
}

package cache

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestWriteCacheServesWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)}
	c := NewWriteCache(Options{TTL: 120 * time.Second, Now: clock.Now})

	if err := c.Set("public/selections_2025.txt", Entry{Content: []byte("A,B,C"), Revision: "r1"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	clock.Advance(120 * time.Second)
	entry, ok := c.Get("public/selections_2025.txt")
	if !ok {
		t.Fatalf("expected hit at exactly ttl")
	}
	if string(entry.Content) != "A,B,C" || entry.Revision != "r1" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestWriteCacheEvictsAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)}
	c := NewWriteCache(Options{TTL: 120 * time.Second, Now: clock.Now})

	if err := c.Set("k", Entry{Content: []byte("v")}); err != nil {
		t.Fatalf("set: %v", err)
	}
	clock.Advance(120*time.Second + time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected miss after ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("expected lazy eviction, len=%d", c.Len())
	}
}

func TestWriteCacheCopiesContent(t *testing.T) {
	c := NewWriteCache(Options{})
	buf := []byte("abc")
	if err := c.Set("k", Entry{Content: buf}); err != nil {
		t.Fatalf("set: %v", err)
	}
	buf[0] = 'x'

	entry, ok := c.Get("k")
	if !ok || string(entry.Content) != "abc" {
		t.Fatalf("expected stored copy, got %q", entry.Content)
	}
}

func TestWriteCacheRejectsOversizedEntry(t *testing.T) {
	c := NewWriteCache(Options{MaxObjectBytes: 4})
	err := c.Set("k", Entry{Content: []byte("too large")})
	if !errors.Is(err, ErrObjectTooLarge) {
		t.Fatalf("expected ErrObjectTooLarge, got %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Fatalf("oversized entry must not be stored")
	}
}

func TestWriteCacheDefaults(t *testing.T) {
	c := NewWriteCache(Options{})
	if c.TTL() != DefaultTTL {
		t.Fatalf("expected default ttl %s, got %s", DefaultTTL, c.TTL())
	}
}

func TestNilWriteCache(t *testing.T) {
	var c *WriteCache
	if _, ok := c.Get("k"); ok {
		t.Fatalf("nil cache must miss")
	}
	if err := c.Set("k", Entry{}); err == nil {
		t.Fatalf("nil cache set must fail")
	}
	c.Delete("k")
}

package cache

import "time"

type Entry struct {
	Content  []byte
	Revision string
	StoredAt time.Time
}

type Store interface {
	Get(key string) (Entry, bool)
	Set(key string, entry Entry) error
	Delete(key string)
}

func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/bluele/gcache"
)

// DefaultMemorySize is the entry capacity used when none is configured.
const DefaultMemorySize = 1024

// MemoryBackend is an in-process LRU backend.
type MemoryBackend struct {
	cache gcache.Cache
}

// NewMemoryBackend creates an LRU backend holding at most size entries.
func NewMemoryBackend(size int) *MemoryBackend {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &MemoryBackend{
		cache: gcache.New(size).LRU().Build(),
	}
}

// Get returns the value stored under key or ErrMiss.
func (m *MemoryBackend) Get(key string) ([]byte, error) {
	v, err := m.cache.Get(key)
	if err != nil {
		if errors.Is(err, gcache.KeyNotFoundError) {
			return nil, ErrMiss
		}
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected value type %T", ErrCorrupt, v)
	}
	return b, nil
}

// Put stores value under key.
func (m *MemoryBackend) Put(key string, value []byte, ttl time.Duration) error {
	stored := append([]byte(nil), value...)
	if ttl > 0 {
		return m.cache.SetWithExpire(key, stored, ttl)
	}
	return m.cache.Set(key, stored)
}

// Len returns the number of live entries.
func (m *MemoryBackend) Len() int {
	return m.cache.Len(true)
}

// Purge drops every entry.
func (m *MemoryBackend) Purge() {
	m.cache.Purge()
}

var _ Backend = (*MemoryBackend)(nil)

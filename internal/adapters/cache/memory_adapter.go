package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
)

// MemoryAdapter is an in-process CacheProvider used when Redis is not configured.
// Entries share one TTL set at construction; the per-call expiration only
// decides whether a value is cached at all (negative skips caching).
type MemoryAdapter struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemoryAdapter creates a bounded LRU cache whose entries expire after ttl.
func NewMemoryAdapter(size int, ttl time.Duration) providers.CacheProvider {
	if size <= 0 {
		size = 1024
	}
	return &MemoryAdapter{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get retrieves a value from cache
func (a *MemoryAdapter) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := a.lru.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", providers.ErrCacheMiss, key)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores a copy of value
func (a *MemoryAdapter) Set(_ context.Context, key string, value []byte, expirationSeconds int) error {
	if expirationSeconds < 0 {
		return nil
	}
	v := make([]byte, len(value))
	copy(v, value)
	a.lru.Add(key, v)
	return nil
}

// Delete removes a value from cache
func (a *MemoryAdapter) Delete(_ context.Context, key string) error {
	a.lru.Remove(key)
	return nil
}

// Exists checks if a key exists in cache
func (a *MemoryAdapter) Exists(_ context.Context, key string) (bool, error) {
	return a.lru.Contains(key), nil
}

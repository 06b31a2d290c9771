package cache

import (
	"context"
	"errors"
	"time"
)

// Provider is the byte-value cache used for expensive upstream lookups.
// Only read-through semantics are needed: fetch, store with TTL, close.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// NoopProvider satisfies Provider without storing anything; every Get is a
// miss. Used when caching is disabled or the cache server is unreachable.
type NoopProvider struct{}

func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (NoopProvider) Close() error { return nil }

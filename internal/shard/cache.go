package shard

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

const keyPrefix = "shard:"

// BlobStore is the subset of pkg/redis.Client the shard cache needs.
type BlobStore interface {
	GetBlob(ctx context.Context, key string) ([]byte, bool, error)
	SetBlob(ctx context.Context, key string, data []byte, ttl time.Duration) error
	FlushPrefix(ctx context.Context, prefix string) (int64, error)
}

// CachedSource keeps raw shard bytes in Redis so that many searcher
// instances serving one site fetch each shard from the origin only once.
// Redis failures never fail a fetch; they fall through to the wrapped source.
type CachedSource struct {
	next      Source
	store     BlobStore
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// NewCachedSource wraps next. namespace separates sites sharing one Redis.
func NewCachedSource(next Source, store BlobStore, namespace string, ttl time.Duration) *CachedSource {
	return &CachedSource{
		next:      next,
		store:     store,
		namespace: namespace,
		ttl:       ttl,
		logger:    slog.Default().With("component", "shard-cache"),
	}
}

func (c *CachedSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	key := c.buildKey(name)
	data, found, err := c.store.GetBlob(ctx, key)
	switch {
	case err != nil:
		c.logger.Error("cache get failed", "key", key, "error", err)
	case found:
		c.hits.Add(1)
		c.logger.Debug("cache hit", "shard", name, "key", key)
		return data, nil
	}
	c.misses.Add(1)

	raw, err := c.next.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetBlob(ctx, key, raw, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
	return raw, nil
}

// Invalidate drops this site's cached shards, typically after the site is
// regenerated. Other namespaces sharing the Redis are left alone.
func (c *CachedSource) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushPrefix(ctx, c.prefix())
	if err != nil {
		return deleted, fmt.Errorf("invalidating shard cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

func (c *CachedSource) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// prefix scopes keys to the namespace; the namespace is hashed so arbitrary
// site names never inject glob characters into the flush pattern.
func (c *CachedSource) prefix() string {
	ns := sha256.Sum256([]byte(c.namespace))
	return fmt.Sprintf("%s%x:", keyPrefix, ns[:8])
}

func (c *CachedSource) buildKey(name string) string {
	return c.prefix() + name
}

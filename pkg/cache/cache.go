package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxEntries bounds the in-memory cache. The key space is
// subscription x region x preview flag, so 128 is generous.
const DefaultMaxEntries = 128

// FetchFunc produces a fresh version list for a key on a full miss.
type FetchFunc func(ctx context.Context) ([]string, error)

// VersionCache is the per-key version cache: a bounded in-memory TTL
// cache in front of an optional shared Redis layer, with single-flight
// de-duplication so a miss triggers at most one fetch per key.
type VersionCache struct {
	memory *expirable.LRU[string, []string]
	group  singleflight.Group
	shared *Store
	ttl    time.Duration
}

// New creates a VersionCache. Entries live for ttl from insertion.
// shared may be nil to run without the Redis layer.
func New(ttl time.Duration, maxEntries int, shared *Store) *VersionCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &VersionCache{
		memory: expirable.NewLRU[string, []string](maxEntries, nil, ttl),
		shared: shared,
		ttl:    ttl,
	}
}

// GetOrFetch returns the cached version list for key, or produces it
// with fetch on a miss. Concurrent callers for the same key share a
// single fetch and its outcome. Failures are returned to every waiter
// but never cached.
func (vc *VersionCache) GetOrFetch(ctx context.Context, key Key, fetch FetchFunc) ([]string, error) {
	cacheKey := key.String()

	if versions, ok := vc.memory.Get(cacheKey); ok {
		CacheHits.WithLabelValues("memory").Inc()
		return versions, nil
	}

	result, err, shared := vc.group.Do(cacheKey, func() (any, error) {
		// A waiter queued behind the winning flight may land here after
		// the winner already populated the cache.
		if versions, ok := vc.memory.Get(cacheKey); ok {
			CacheHits.WithLabelValues("memory").Inc()
			return versions, nil
		}

		if versions, ok := vc.sharedGet(ctx, key); ok {
			CacheHits.WithLabelValues("redis").Inc()
			vc.memory.Add(cacheKey, versions)
			return versions, nil
		}

		CacheMisses.Inc()

		versions, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		vc.memory.Add(cacheKey, versions)
		vc.sharedSet(ctx, key, versions)
		return versions, nil
	})
	if shared {
		FlightsShared.Inc()
	}
	if err != nil {
		return nil, err
	}

	return result.([]string), nil
}

// Invalidate drops a key from both layers.
func (vc *VersionCache) Invalidate(ctx context.Context, key Key) {
	vc.memory.Remove(key.String())
	if vc.shared != nil {
		if err := vc.shared.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key.String()).Msg("Shared cache delete failed")
		}
	}
}

// Len reports the number of live in-memory entries.
func (vc *VersionCache) Len() int {
	return vc.memory.Len()
}

// sharedGet consults the Redis layer. Errors degrade to a miss so a
// Redis outage only costs an upstream fetch, never a request.
func (vc *VersionCache) sharedGet(ctx context.Context, key Key) ([]string, bool) {
	if vc.shared == nil {
		return nil, false
	}

	versions, err := vc.shared.Get(ctx, key)
	if err != nil {
		if err != ErrCacheMiss {
			log.Warn().Err(err).Str("key", key.String()).Msg("Shared cache read failed, falling back to upstream")
		}
		return nil, false
	}
	return versions, true
}

func (vc *VersionCache) sharedSet(ctx context.Context, key Key, versions []string) {
	if vc.shared == nil {
		return
	}

	if err := vc.shared.Set(ctx, key, versions, vc.ttl); err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("Shared cache write failed")
	}
}

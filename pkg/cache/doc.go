// Package cache provides the per-key version cache: a bounded in-memory
// TTL cache with single-flight fetch de-duplication, and an optional
// shared Redis layer so multiple proxy replicas can reuse each other's
// upstream fetches.
//
// Semantics:
//
//   - A live entry is served without any network activity.
//   - On a miss, exactly one fetch per key runs system-wide; concurrent
//     callers for the same key await and share its outcome.
//   - Successes are stored with a fixed TTL counted from insertion.
//   - Failures are delivered to every waiter but never stored, so the
//     next caller after the waiters drain starts a fresh fetch.
//
// # Basic Usage
//
//	vc := cache.New(time.Hour, cache.DefaultMaxEntries, nil)
//
//	key := cache.Key{
//		SubscriptionID: "0000-...",
//		Location:       "eastus",
//		ShowPreview:    false,
//	}
//
//	versions, err := vc.GetOrFetch(ctx, key, func(ctx context.Context) ([]string, error) {
//		return fetchFromUpstream(ctx)
//	})
//
// # Shared Redis Layer
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	vc := cache.New(time.Hour, cache.DefaultMaxEntries, cache.NewStore(rdb))
//
// With a shared layer, a miss consults Redis before invoking the fetch
// function, and a successful fetch populates both layers. Redis errors
// degrade to a plain upstream fetch; they never fail a request.
package cache

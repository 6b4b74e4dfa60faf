package cache

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client. Unit tests connect to a
// local Redis and skip when none is running; the integration suite
// covers the same paths against a containerized instance.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewStore should panic with nil redis client")
		}
	}()
	NewStore(nil)
}

func TestStore_SetGet(t *testing.T) {
	store := NewStore(setupTestRedis(t))
	ctx := context.Background()
	key := testKey("eastus")

	want := []string{"1.26.6", "1.27.3", "1.28.5"}
	if err := store.Set(ctx, key, want, time.Minute); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Get() = %v, want %v", got, want)
	}
}

func TestStore_GetMiss(t *testing.T) {
	store := NewStore(setupTestRedis(t))

	_, err := store.Get(context.Background(), testKey("never-stored"))
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	store := NewStore(setupTestRedis(t))
	ctx := context.Background()
	key := testKey("eastus")

	if err := store.Set(ctx, key, []string{"1.27.3"}, 100*time.Millisecond); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after TTL = %v, want ErrCacheMiss", err)
	}
}

func TestStore_NonPositiveTTLNotStored(t *testing.T) {
	store := NewStore(setupTestRedis(t))
	ctx := context.Background()
	key := testKey("eastus")

	if err := store.Set(ctx, key, []string{"1.27.3"}, 0); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() = %v, want ErrCacheMiss for zero-TTL set", err)
	}
}

func TestStore_Delete(t *testing.T) {
	store := NewStore(setupTestRedis(t))
	ctx := context.Background()
	key := testKey("eastus")

	if err := store.Set(ctx, key, []string{"1.27.3"}, time.Minute); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after delete = %v, want ErrCacheMiss", err)
	}
}

func TestStore_CorruptedEntry(t *testing.T) {
	client := setupTestRedis(t)
	store := NewStore(client)
	ctx := context.Background()
	key := testKey("eastus")

	if err := client.Set(ctx, key.String(), "not json", time.Minute).Err(); err != nil {
		t.Fatalf("raw set failed: %v", err)
	}

	if _, err := store.Get(ctx, key); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Get() = %v, want ErrInvalidEntry", err)
	}
}

func TestVersionCache_InvalidateBothLayers(t *testing.T) {
	client := setupTestRedis(t)
	store := NewStore(client)
	ctx := context.Background()
	key := testKey("eastus")

	var calls atomic.Int32
	fetch := func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"1.27.3"}, nil
	}

	vc := New(time.Minute, DefaultMaxEntries, store)
	if _, err := vc.GetOrFetch(ctx, key, fetch); err != nil {
		t.Fatalf("GetOrFetch() failed: %v", err)
	}

	vc.Invalidate(ctx, key)

	if vc.Len() != 0 {
		t.Errorf("Len() = %d after invalidation, want 0", vc.Len())
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("shared Get() after invalidation = %v, want ErrCacheMiss", err)
	}

	// The next lookup cannot be served from either layer.
	if _, err := vc.GetOrFetch(ctx, key, fetch); err != nil {
		t.Fatalf("GetOrFetch() after invalidation failed: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestVersionCache_SharedLayerRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	key := testKey("eastus")
	want := []string{"1.27.3", "1.28.5"}

	var calls atomic.Int32
	fetch := func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		return want, nil
	}

	// First instance fetches and populates Redis.
	first := New(time.Minute, DefaultMaxEntries, NewStore(client))
	if _, err := first.GetOrFetch(ctx, key, fetch); err != nil {
		t.Fatalf("GetOrFetch() failed: %v", err)
	}

	// A second instance with a cold memory layer is served from Redis.
	second := New(time.Minute, DefaultMaxEntries, NewStore(client))
	got, err := second.GetOrFetch(ctx, key, fetch)
	if err != nil {
		t.Fatalf("GetOrFetch() failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GetOrFetch() = %v, want %v", got, want)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1 (second instance served from shared layer)", n)
	}
}

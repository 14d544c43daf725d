//go:build integration

package storage

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

// setupRedisContainer starts a Redis container and returns its address.
func setupRedisContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	return strings.TrimPrefix(endpoint, "redis://")
}

func newTestRedisStore(t *testing.T, ttl time.Duration) *RedisStore {
	t.Helper()
	store, err := NewRedisStore(context.Background(), RedisOptions{Addr: setupRedisContainer(t), TTL: ttl})
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRedisStore_InvalidOptions(t *testing.T) {
	ctx := context.Background()
	if _, err := NewRedisStore(ctx, RedisOptions{}); err == nil {
		t.Error("expected error for empty address")
	}
	if _, err := NewRedisStore(ctx, RedisOptions{Addr: "localhost:6379", DB: -1}); err == nil {
		t.Error("expected error for negative DB")
	}
	if _, err := NewRedisStore(ctx, RedisOptions{Addr: "localhost:6379", TTL: -time.Second}); err == nil {
		t.Error("expected error for negative TTL")
	}
	if _, err := NewRedisStore(ctx, RedisOptions{Addr: "127.0.0.1:1"}); err == nil {
		t.Error("expected error for unreachable address")
	}
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	snap := testSnapshot("default", time.Now().UTC().Truncate(time.Millisecond))
	if err := store.Put(ctx, snap); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, found, err := store.GetLatest(ctx, "default")
	if err != nil || !found {
		t.Fatalf("GetLatest() = %v, %v", found, err)
	}
	if !got.GeneratedAt.Equal(snap.GeneratedAt) {
		t.Errorf("GeneratedAt = %v, want %v", got.GeneratedAt, snap.GeneratedAt)
	}
	got.GeneratedAt = snap.GeneratedAt
	if !reflect.DeepEqual(got, snap) {
		t.Errorf("GetLatest() = %+v, want %+v", got, snap)
	}
}

func TestRedisStore_NotFound(t *testing.T) {
	store := newTestRedisStore(t, time.Minute)
	_, found, err := store.GetLatest(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetLatest() error = %v", err)
	}
	if found {
		t.Error("found = true for a missing name")
	}
}

func TestRedisStore_InvalidName(t *testing.T) {
	store := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	if err := store.Put(ctx, testSnapshot("bad name", time.Now())); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Put() error = %v, want ErrInvalidName", err)
	}
	if _, _, err := store.GetLatest(ctx, ""); !errors.Is(err, ErrInvalidName) {
		t.Errorf("GetLatest() error = %v, want ErrInvalidName", err)
	}
}

func TestRedisStore_TTL(t *testing.T) {
	store := newTestRedisStore(t, time.Second)
	ctx := context.Background()

	if err := store.Put(ctx, testSnapshot("short", time.Now())); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	time.Sleep(1500 * time.Millisecond)

	if _, found, _ := store.GetLatest(ctx, "short"); found {
		t.Error("snapshot still present after TTL")
	}
}

func TestRedisStore_NoTTL(t *testing.T) {
	store := newTestRedisStore(t, 0)
	ctx := context.Background()

	if err := store.Put(ctx, testSnapshot("forever", time.Now())); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	ttl, err := store.client.PTTL(ctx, tableKey("forever")).Result()
	if err != nil {
		t.Fatalf("PTTL() error = %v", err)
	}
	if ttl > 0 {
		t.Errorf("key expires in %v, want no expiry", ttl)
	}
	if _, found, _ := store.GetLatest(ctx, "forever"); !found {
		t.Error("snapshot not found")
	}
}

func TestRedisStore_PutRestartsTTL(t *testing.T) {
	store := newTestRedisStore(t, time.Second)
	ctx := context.Background()

	snap := testSnapshot("refreshed", time.Now())
	for i := 0; i < 4; i++ {
		if err := store.Put(ctx, snap); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		time.Sleep(600 * time.Millisecond)
	}
	if _, found, _ := store.GetLatest(ctx, "refreshed"); !found {
		t.Error("snapshot expired although it was put within every TTL window")
	}
}

func TestRedisStore_ConcurrentReadWrite(t *testing.T) {
	store := newTestRedisStore(t, time.Minute)
	ctx := context.Background()
	if err := store.Put(ctx, testSnapshot("shared", time.Now())); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if w%2 == 0 {
					if err := store.Put(ctx, testSnapshot("shared", time.Now())); err != nil {
						t.Errorf("Put() error = %v", err)
					}
					continue
				}
				if _, found, err := store.GetLatest(ctx, "shared"); err != nil || !found {
					t.Errorf("GetLatest() = %v, %v", found, err)
				}
			}
		}(w)
	}
	wg.Wait()
}

func TestRedisStore_CloseIdempotent(t *testing.T) {
	store := newTestRedisStore(t, time.Minute)
	if err := store.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

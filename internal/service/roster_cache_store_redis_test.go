package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newRedisClientForTest backs the store with an in-process miniredis so the
// epoch and expiry paths run against real Redis commands.
func newRedisClientForTest(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func TestRedisRosterCacheStoreKeyingAndInvalidation(t *testing.T) {
	ctx := context.Background()
	_, client := newRedisClientForTest(t)
	store := NewRedisRosterCacheStore(client, "roster_test")

	userID := "counselor-1"
	classIDs := []string{"c1", "c2"}

	if err := store.Set(ctx, userID, classIDs, time.Minute); err != nil {
		t.Fatalf("set managed classes: %v", err)
	}
	got, ok, err := store.Get(ctx, userID)
	if err != nil {
		t.Fatalf("get managed classes: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit after set")
	}
	if len(got) != 2 || got[0] != "c1" || got[1] != "c2" {
		t.Fatalf("unexpected cached classes: %#v", got)
	}

	if err := store.InvalidateUser(ctx, userID); err != nil {
		t.Fatalf("invalidate user: %v", err)
	}
	_, ok, err = store.Get(ctx, userID)
	if err != nil {
		t.Fatalf("get after user invalidation: %v", err)
	}
	if ok {
		t.Fatal("expected miss after user invalidation")
	}

	if err := store.Set(ctx, userID, classIDs, time.Minute); err != nil {
		t.Fatalf("set after user invalidation: %v", err)
	}
	if err := store.InvalidateAll(ctx); err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	_, ok, err = store.Get(ctx, userID)
	if err != nil {
		t.Fatalf("get after global invalidation: %v", err)
	}
	if ok {
		t.Fatal("expected miss after global invalidation")
	}
}

func TestRedisRosterCacheStoreExpiry(t *testing.T) {
	ctx := context.Background()
	server, client := newRedisClientForTest(t)
	store := NewRedisRosterCacheStore(client, "roster_test")

	if err := store.Set(ctx, "u1", []string{"c1"}, time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	server.FastForward(2 * time.Second)

	_, ok, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if ok {
		t.Fatal("expected miss after ttl elapsed")
	}
}

func TestRedisRosterCacheStoreMalformedEpochValue(t *testing.T) {
	ctx := context.Background()
	_, client := newRedisClientForTest(t)
	store := NewRedisRosterCacheStore(client, "roster_test")

	if err := client.Set(ctx, store.globalEpochKey(), "NaN", time.Minute).Err(); err != nil {
		t.Fatalf("seed malformed epoch: %v", err)
	}

	if _, _, err := store.Get(ctx, "u1"); err == nil {
		t.Fatal("expected parse error for malformed epoch")
	}
}

func TestRedisRosterCacheStoreNonPositiveTTLSkipsWrite(t *testing.T) {
	ctx := context.Background()
	_, client := newRedisClientForTest(t)
	store := NewRedisRosterCacheStore(client, "roster_test")

	if err := store.Set(ctx, "u1", []string{"c1"}, 0); err != nil {
		t.Fatalf("set with zero ttl: %v", err)
	}
	_, ok, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("zero ttl must not cache anything")
	}
}

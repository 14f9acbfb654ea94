package redisstore

import (
	"context"
	"os"
	"testing"

	"elementx/internal/imagecache/cachetest"
)

func TestStoreContract(t *testing.T) {
	addr := os.Getenv("CACHE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CACHE_TEST_REDIS_ADDR not set")
	}
	store, err := NewStore(Config{Addr: addr, IndexKey: "elementx:cachetest:index"})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	cachetest.RunBackend(t, store)
}

func TestNewStoreRequiresAddr(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

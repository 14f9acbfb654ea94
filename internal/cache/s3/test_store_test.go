package s3

import (
	"os"
	"testing"

	"elementx/internal/imagecache/cachetest"
)

func TestStoreContract(t *testing.T) {
	endpoint := os.Getenv("CACHE_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("CACHE_TEST_S3_ENDPOINT not set")
	}
	store, err := NewStore(Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("CACHE_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("CACHE_TEST_S3_SECRET_KEY"),
		Bucket:    "elementx-cachetest",
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	cachetest.RunBackend(t, store)
}

func TestNewStoreValidatesConfig(t *testing.T) {
	cases := []Config{
		{},
		{Endpoint: "localhost:9000"},
		{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"},
	}
	for _, cfg := range cases {
		if _, err := NewStore(cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}

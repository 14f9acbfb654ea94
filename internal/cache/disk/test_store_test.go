package disk

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStoreRestoresFromIndex(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(Config{Root: root})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Put(ctx, "img_v1_water", []byte("value")); err != nil {
		t.Fatalf("put: %v", err)
	}

	store2, err := NewStore(Config{Root: root})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	raw, ok, err := store2.Get(ctx, "img_v1_water")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected persisted key to exist")
	}
	if string(raw) != "value" {
		t.Fatalf("unexpected value: %q", string(raw))
	}
}

func TestStoreListFiltersByPrefixInWriteOrder(t *testing.T) {
	store, err := NewStore(Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	for _, k := range []string{"a_1", "b_1", "a_2"} {
		if err := store.Put(ctx, k, []byte(k+"-data")); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	objs, err := store.List(ctx, "a_")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objs))
	}
	if objs[0].Key != "a_1" || objs[1].Key != "a_2" {
		t.Fatalf("unexpected order: %+v", objs)
	}
	if objs[0].Size != int64(len("a_1-data")) {
		t.Fatalf("unexpected size: %d", objs[0].Size)
	}
}

func TestStoreDeleteAndMissingFiles(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(Config{Root: root})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if err := store.Put(ctx, "gone", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, "kept", []byte("y")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, "kept"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "kept"); ok {
		t.Fatalf("expected deleted key to miss")
	}

	// remove a data file behind the store's back
	if err := os.Remove(filepath.Join(root, "data", hashedName("gone"))); err != nil {
		t.Fatalf("remove: %v", err)
	}
	reopened, err := NewStore(Config{Root: root})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	objs, err := reopened.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(objs) != 0 {
		t.Fatalf("expected missing file to be dropped from index, got %+v", objs)
	}
}

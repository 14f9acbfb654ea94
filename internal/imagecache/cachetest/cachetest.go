// Package cachetest holds the behavior every imagecache.Backend must share.
package cachetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elementx/internal/imagecache"
)

// RunBackend exercises get/put/delete/list against b. Keys are namespaced by
// the test name so shared servers can be reused.
func RunBackend(t *testing.T, b imagecache.Backend) {
	t.Helper()
	ctx := context.Background()
	prefix := fmt.Sprintf("cachetest_%d_", time.Now().UnixNano())

	t.Run("miss", func(t *testing.T) {
		_, ok, err := b.Get(ctx, prefix+"absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put get overwrite", func(t *testing.T) {
		key := prefix + "water"
		require.NoError(t, b.Put(ctx, key, []byte("first")))
		require.NoError(t, b.Put(ctx, key, []byte("second")))
		raw, ok, err := b.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "second", string(raw))
	})

	t.Run("list in write order", func(t *testing.T) {
		lp := prefix + "list_"
		for _, k := range []string{"a", "b", "c"} {
			require.NoError(t, b.Put(ctx, lp+k, []byte(k+k)))
			time.Sleep(5 * time.Millisecond)
		}
		objs, err := b.List(ctx, lp)
		require.NoError(t, err)
		require.Len(t, objs, 3)
		assert.Equal(t, lp+"a", objs[0].Key)
		assert.Equal(t, lp+"c", objs[2].Key)
		assert.EqualValues(t, 2, objs[1].Size)
	})

	t.Run("delete", func(t *testing.T) {
		key := prefix + "gone"
		require.NoError(t, b.Put(ctx, key, []byte("x")))
		require.NoError(t, b.Delete(ctx, key))
		require.NoError(t, b.Delete(ctx, key), "deleting a missing key is not an error")
		_, ok, err := b.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

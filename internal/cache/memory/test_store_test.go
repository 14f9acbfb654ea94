package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elementx/internal/imagecache/cachetest"
)

func TestStoreContract(t *testing.T) {
	cachetest.RunBackend(t, NewStore(0))
}

func TestStoreQuota(t *testing.T) {
	ctx := context.Background()
	s := NewStore(10)

	require.NoError(t, s.Put(ctx, "a", []byte("123456")))
	assert.ErrorIs(t, s.Put(ctx, "b", []byte("123456")), ErrQuotaExceeded)
	require.NoError(t, s.Put(ctx, "a", []byte("1234567890")), "overwrite reuses the old allowance")
	assert.EqualValues(t, 10, s.Used())

	require.NoError(t, s.Delete(ctx, "a"))
	assert.EqualValues(t, 0, s.Used())
	require.NoError(t, s.Put(ctx, "b", []byte("123456")))
	assert.Equal(t, 1, s.Len())
}

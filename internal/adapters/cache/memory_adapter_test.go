package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
)

func TestMemoryAdapter_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAdapter(8, time.Minute)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)

	value := []byte("vector")
	require.NoError(t, c.Set(ctx, "k", value, 60))
	value[0] = 'X'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("vector"), got, "stored value is a copy")

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "k"))
	ok, _ = c.Exists(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryAdapter_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAdapter(2, time.Minute)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	_, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	_, err := c.Get(ctx, "b")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemoryAdapter_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAdapter(2, 20*time.Millisecond)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	assert.Eventually(t, func() bool {
		_, err := c.Get(ctx, "a")
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

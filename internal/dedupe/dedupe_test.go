package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/clock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "seen:", time.Hour), mr
}

func TestRedisStore_MarkSeen(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	first, err := store.MarkSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := store.MarkSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, again)

	assert.True(t, mr.Exists("seen:evt-1"))
	assert.Equal(t, time.Hour, mr.TTL("seen:evt-1"))
}

func TestRedisStore_ExpiryAndForget(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	_, err := store.MarkSeen(ctx, "evt-1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)

	fresh, err := store.MarkSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, fresh)

	require.NoError(t, store.Forget(ctx, "evt-1"))
	fresh, err = store.MarkSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestRedisStore_Errors(t *testing.T) {
	store, mr := setupRedisStore(t)

	_, err := store.MarkSeen(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)

	mr.Close()
	_, err = store.MarkSeen(context.Background(), "evt-1")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(clock.NewFixed(now), time.Minute)
	ctx := context.Background()

	first, err := store.MarkSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := store.MarkSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, store.Forget(ctx, "evt-1"))
	first, err = store.MarkSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, first)
}

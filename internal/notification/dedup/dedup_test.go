package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisStore(client, time.Hour)

	first, err := store.Claim(ctx, "e-1")
	require.NoError(t, err)
	require.True(t, first)

	again, err := store.Claim(ctx, "e-1")
	require.NoError(t, err)
	require.False(t, again)

	require.True(t, mr.Exists(keyPrefix+"e-1"))
	require.Equal(t, time.Hour, mr.TTL(keyPrefix+"e-1"))

	require.NoError(t, store.Forget(ctx, "e-1"))
	reclaimed, err := store.Claim(ctx, "e-1")
	require.NoError(t, err)
	require.True(t, reclaimed)

	mr.FastForward(2 * time.Hour)
	expired, err := store.Claim(ctx, "e-1")
	require.NoError(t, err)
	require.True(t, expired)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisStore(client, time.Hour).Claim(context.Background(), "e-1")
	require.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, _ := store.Claim(ctx, "e-1")
	second, _ := store.Claim(ctx, "e-1")
	require.True(t, first)
	require.False(t, second)

	require.NoError(t, store.Forget(ctx, "e-1"))
	third, _ := store.Claim(ctx, "e-1")
	require.True(t, third)
}

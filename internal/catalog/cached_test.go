package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingCatalog struct {
	*MemoryCatalog
	calls int
}

func (c *countingCatalog) Product(ctx context.Context, id int64) (*Product, error) {
	c.calls++
	return c.MemoryCatalog.Product(ctx, id)
}

func newCached(t *testing.T) (*CachedCatalog, *countingCatalog, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	next := &countingCatalog{MemoryCatalog: NewMemoryCatalog(Product{ID: 1, Name: "Keyboard", Price: 1000})}

	return NewCachedCatalog(next, client, time.Minute, zap.NewNop()), next, mr
}

func TestCachedCatalog_ReadsThroughOnce(t *testing.T) {
	ctx := context.Background()
	cached, next, mr := newCached(t)

	p, err := cached.Product(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Keyboard", p.Name)
	require.Equal(t, StatusActive, p.Status)

	p, err = cached.Product(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1000), p.Price)
	require.Equal(t, 1, next.calls)
	require.True(t, mr.Exists("product:1"))
}

func TestCachedCatalog_InvalidateAndExpire(t *testing.T) {
	ctx := context.Background()
	cached, next, mr := newCached(t)

	_, err := cached.Product(ctx, 1)
	require.NoError(t, err)

	next.Put(Product{ID: 1, Name: "Keyboard", Price: 1200})
	require.NoError(t, cached.Invalidate(ctx, 1))

	p, err := cached.Product(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1200), p.Price)

	mr.FastForward(2 * time.Minute)
	_, err = cached.Product(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 3, next.calls)
}

func TestCachedCatalog_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	cached, _, mr := newCached(t)

	_, err := cached.Product(ctx, 2)
	require.ErrorIs(t, err, ErrProductNotFound)
	require.False(t, mr.Exists("product:2"))
}

func TestCachedCatalog_RedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	cached, next, mr := newCached(t)
	mr.Close()

	p, err := cached.Product(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Keyboard", p.Name)
	require.Equal(t, 1, next.calls)
}

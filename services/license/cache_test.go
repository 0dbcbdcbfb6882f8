package license

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"license-authority/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestNewRedisCacheFallsBackToNop(t *testing.T) {
	require.IsType(t, NopCache{}, NewRedisCache(nil, time.Minute))

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = rdb.Close() })
	require.IsType(t, NopCache{}, NewRedisCache(rdb, 0))
}

func TestNopCacheLoadsEveryTime(t *testing.T) {
	calls := 0
	load := func(context.Context) (*License, error) {
		calls++
		return &License{ID: "a"}, nil
	}

	for i := 0; i < 3; i++ {
		l, err := NopCache{}.Fetch(context.Background(), "a", load)
		require.NoError(t, err)
		require.Equal(t, "a", l.ID)
	}
	require.Equal(t, 3, calls)
	require.NoError(t, NopCache{}.Invalidate(context.Background(), "a"))
}

func TestRedisCacheDegradesToLoader(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	c := NewRedisCache(rdb, time.Minute)

	l, err := c.Fetch(context.Background(), "a", func(context.Context) (*License, error) {
		return &License{ID: "a", SoftwareID: 7}, nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(7), l.SoftwareID)

	missing, err := c.Fetch(context.Background(), "b", func(context.Context) (*License, error) {
		return nil, nil
	})
	require.NoError(t, err)
	require.Nil(t, missing)

	boom := errors.New("db down")
	_, err = c.Fetch(context.Background(), "c", func(context.Context) (*License, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	require.Error(t, c.Invalidate(context.Background(), "a"))
}

// testRedis connects to TEST_REDIS_ADDR and skips when it is unset or down.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis at %s unavailable: %v", addr, err)
	}
	return rdb
}

func cacheAddress(t *testing.T, rdb *redis.Client) string {
	t.Helper()
	address := fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano())
	t.Cleanup(func() {
		_ = rdb.Del(context.Background(), rediskey.BuildLicenseKey(address), rediskey.BuildLicenseFenceKey(address)).Err()
	})
	return address
}

func TestRedisCacheServesHitsUntilInvalidated(t *testing.T) {
	rdb := testRedis(t)
	c := NewRedisCache(rdb, time.Minute)
	ctx := context.Background()
	address := cacheAddress(t, rdb)

	calls := 0
	load := func(context.Context) (*License, error) {
		calls++
		return &License{ID: address, IsActive: true}, nil
	}

	for i := 0; i < 3; i++ {
		l, err := c.Fetch(ctx, address, load)
		require.NoError(t, err)
		require.True(t, l.IsActive)
	}
	require.Equal(t, 1, calls)

	require.NoError(t, c.Invalidate(ctx, address))
	_, err := c.Fetch(ctx, address, load)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestRedisCacheDropsLoadRacingInvalidate(t *testing.T) {
	rdb := testRedis(t)
	c := NewRedisCache(rdb, time.Minute)
	ctx := context.Background()
	address := cacheAddress(t, rdb)

	// The row is read, then a mutation commits and invalidates before the
	// read is written back.
	stale, err := c.Fetch(ctx, address, func(ctx context.Context) (*License, error) {
		require.NoError(t, c.Invalidate(ctx, address))
		return &License{ID: address, IsActive: true}, nil
	})
	require.NoError(t, err)
	require.True(t, stale.IsActive)

	exists, err := rdb.Exists(ctx, rediskey.BuildLicenseKey(address)).Result()
	require.NoError(t, err)
	require.Zero(t, exists)

	calls := 0
	fresh, err := c.Fetch(ctx, address, func(context.Context) (*License, error) {
		calls++
		return &License{ID: address, IsActive: false}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.False(t, fresh.IsActive)

	cached, err := c.Fetch(ctx, address, func(context.Context) (*License, error) {
		t.Fatal("expected a cache hit")
		return nil, nil
	})
	require.NoError(t, err)
	require.False(t, cached.IsActive)
}

package license

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"license-authority/pkg/rediskey"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "license_cache_hits_total"})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "license_cache_miss_total"})
)

// Loader reads a license from the source of truth.
type Loader func(ctx context.Context) (*License, error)

// Cache is a read-through cache of license records keyed by address.
type Cache interface {
	Fetch(ctx context.Context, address string, load Loader) (*License, error)
	Invalidate(ctx context.Context, address string) error
}

type redisCache struct {
	rdb   redis.UniversalClient
	ttl   time.Duration
	group singleflight.Group
}

// NewRedisCache returns a Redis backed cache, or a pass-through cache when
// rdb is nil or ttl is not positive.
func NewRedisCache(rdb redis.UniversalClient, ttl time.Duration) Cache {
	if rdb == nil || ttl <= 0 {
		return NopCache{}
	}
	return &redisCache{rdb: rdb, ttl: ttl}
}

func (c *redisCache) Fetch(ctx context.Context, address string, load Loader) (*License, error) {
	key := rediskey.BuildLicenseKey(address)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var l License
		if err := json.Unmarshal(raw, &l); err == nil {
			cacheHits.Inc()
			return &l, nil
		}
		zap.L().Warn("dropping undecodable cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		// Redis trouble degrades to a database read.
		zap.L().Warn("license cache read failed", zap.String("key", key), zap.Error(err))
	}
	cacheMiss.Inc()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		fence, fenceErr := c.fence(ctx, address)
		l, err := load(ctx)
		if err != nil || l == nil {
			return l, err
		}
		if fenceErr != nil {
			zap.L().Warn("license cache fence read failed", zap.String("key", key), zap.Error(fenceErr))
			return l, nil
		}
		c.store(ctx, address, fence, l)
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	l, _ := v.(*License)
	return l, nil
}

func (c *redisCache) fence(ctx context.Context, address string) (string, error) {
	v, err := c.rdb.Get(ctx, rediskey.BuildLicenseFenceKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// store writes l only while the fence still holds the value read before the
// load started. An Invalidate that lands while the row is being read moves the
// fence, and the possibly stale row is not cached.
func (c *redisCache) store(ctx context.Context, address, fence string, l *License) {
	key := rediskey.BuildLicenseKey(address)
	fenceKey := rediskey.BuildLicenseFenceKey(address)

	b, err := json.Marshal(l)
	if err != nil {
		return
	}

	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, fenceKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != fence {
			return errFenceMoved
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, c.ttl)
			return nil
		})
		return err
	}, fenceKey)

	switch {
	case err == nil:
	case errors.Is(err, errFenceMoved), errors.Is(err, redis.TxFailedErr):
		zap.L().Debug("license changed during load, not caching", zap.String("key", key))
	default:
		zap.L().Warn("license cache write failed", zap.String("key", key), zap.Error(err))
	}
}

var errFenceMoved = errors.New("license cache fence moved")

// Invalidate drops the cached record and moves the fence so loads already in
// flight do not write their result back. The fence lives for twice the entry
// TTL, which bounds how long a load can run and still be fenced.
func (c *redisCache) Invalidate(ctx context.Context, address string) error {
	key := rediskey.BuildLicenseKey(address)
	fenceKey := rediskey.BuildLicenseFenceKey(address)
	c.group.Forget(key)

	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, fenceKey)
		p.Expire(ctx, fenceKey, 2*c.ttl)
		p.Del(ctx, key)
		return nil
	})
	return err
}

// NopCache always loads from the source.
type NopCache struct{}

func (NopCache) Fetch(ctx context.Context, _ string, load Loader) (*License, error) {
	return load(ctx)
}

func (NopCache) Invalidate(context.Context, string) error {
	return nil
}

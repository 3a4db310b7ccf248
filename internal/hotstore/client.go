// Package hotstore is the typed wrapper over the hot key/value store.
// It is backed by Redis via go-redis/v9, used through the redis.Cmdable
// interface so both a standalone client and a cluster client satisfy it.
package hotstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thgg666/seckill-core/internal/domain"
)

// Client is the atomic counter + TTL + script-eval surface every other
// component is built on. No component holds a *redis.Client directly;
// they all go through this interface.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	DecrBy(ctx context.Context, key string, delta int64) (int64, error)

	Eval(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error)

	Ping(ctx context.Context) error
}

// redisClient is the production Client backed by a redis.Cmdable, which
// both *redis.Client (standalone) and *redis.ClusterClient implement.
type redisClient struct {
	rdb redis.Cmdable
}

// New creates a hot store client against a standalone Redis instance.
// pool and minIdle come from HOT_STORE_POOL / HOT_STORE_POOL_MIN_IDLE.
func New(addr string, pool, minIdle int) Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     pool,
		MinIdleConns: minIdle,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &redisClient{rdb: rdb}
}

// NewFromCmdable wraps an already-constructed redis.Cmdable (standalone
// or cluster), useful for tests against miniredis or a fake.
func NewFromCmdable(rdb redis.Cmdable) Client {
	return &redisClient{rdb: rdb}
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return domain.New(domain.KindNotFound, "key not found")
	}
	// go-redis surfaces WRONGTYPE as a plain error whose text starts
	// with "WRONGTYPE"; there is no sentinel for it in the library.
	msg := err.Error()
	if len(msg) >= 9 && msg[:9] == "WRONGTYPE" {
		return domain.Wrap(domain.KindWrongType, "type mismatch", err)
	}
	return domain.Wrap(domain.KindStoreUnavailable, "hot store unavailable", err)
}

func (c *redisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", translateErr(err)
	}
	return v, nil
}

func (c *redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return translateErr(err)
	}
	return nil
}

func (c *redisClient) Del(ctx context.Context, keys ...string) error {
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return translateErr(err)
	}
	return nil
}

func (c *redisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, translateErr(err)
	}
	return d, nil
}

func (c *redisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return translateErr(err)
	}
	return nil
}

func (c *redisClient) Incr(ctx context.Context, key string) (int64, error) {
	v, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, translateErr(err)
	}
	return v, nil
}

func (c *redisClient) Decr(ctx context.Context, key string) (int64, error) {
	v, err := c.rdb.Decr(ctx, key).Result()
	if err != nil {
		return 0, translateErr(err)
	}
	return v, nil
}

func (c *redisClient) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := c.rdb.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, translateErr(err)
	}
	return v, nil
}

func (c *redisClient) DecrBy(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := c.rdb.DecrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, translateErr(err)
	}
	return v, nil
}

func (c *redisClient) Eval(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	v, err := script.Run(ctx, c.rdb, keys, args...).Result()
	if err != nil {
		return nil, translateErr(err)
	}
	return v, nil
}

func (c *redisClient) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return translateErr(err)
	}
	return nil
}

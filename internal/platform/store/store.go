// Package store wraps the shared key/value datastore every other component
// talks through. Values pass through as opaque strings; callers own their
// own JSON encoding so a decode failure never happens inside the store.
package store

import (
	"context"
	"crypto/tls"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Client is the full surface the gateway and worker fabric need from the
// shared datastore. A Redis-backed implementation and an in-memory fake both
// satisfy it.
type Client interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	ListRightPush(ctx context.Context, key, value string) error
	ListBlockingLeftPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error)
	ListLen(ctx context.Context, key string) (int64, error)
	SetAdd(ctx context.Context, key, member string) error
	SetRemove(ctx context.Context, key, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Close() error
}

// redisClient is the production Client, backed by *redis.Client.
type redisClient struct {
	rdb *goredis.Client
}

// Options configures the Redis connection. Mirrors the REDIS_* environment
// variables read by internal/config.
type Options struct {
	Host     string
	Port     int
	DB       int
	Password string
	UseSSL   bool
}

// New dials Redis and verifies connectivity with a bounded Ping.
func New(ctx context.Context, opts Options) (Client, error) {
	redisOpts := &goredis.Options{
		Addr:        addr(opts),
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	}
	if opts.UseSSL {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := goredis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &redisClient{rdb: rdb}, nil
}

func addr(opts Options) string {
	host := opts.Host
	if host == "" {
		host = "localhost"
	}
	port := opts.Port
	if port == 0 {
		port = 6379
	}
	return host + ":" + strconv.Itoa(port)
}

func (c *redisClient) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *redisClient) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *redisClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *redisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.rdb.TTL(ctx, key).Result()
}

func (c *redisClient) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *redisClient) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	return c.rdb.IncrBy(ctx, key, n).Result()
}

func (c *redisClient) ListRightPush(ctx context.Context, key, value string) error {
	return c.rdb.RPush(ctx, key, value).Err()
}

// ListBlockingLeftPop pops the head of a list, blocking up to timeout. A
// zero timeout is documented as "return immediately with the head if any,
// else none" rather than Redis's native "block forever" BLPOP semantics, so
// it is served by a plain LPop instead of delegating to BLPop.
func (c *redisClient) ListBlockingLeftPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	if timeout <= 0 {
		val, err := c.rdb.LPop(ctx, key).Result()
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return val, true, nil
	}

	res, err := c.rdb.BLPop(ctx, timeout, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// BLPop returns [key, value].
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

func (c *redisClient) ListLen(ctx context.Context, key string) (int64, error) {
	return c.rdb.LLen(ctx, key).Result()
}

func (c *redisClient) SetAdd(ctx context.Context, key, member string) error {
	return c.rdb.SAdd(ctx, key, member).Err()
}

func (c *redisClient) SetRemove(ctx context.Context, key, member string) error {
	return c.rdb.SRem(ctx, key, member).Err()
}

func (c *redisClient) SetMembers(ctx context.Context, key string) ([]string, error) {
	return c.rdb.SMembers(ctx, key).Result()
}

func (c *redisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

func (c *redisClient) Close() error {
	return c.rdb.Close()
}

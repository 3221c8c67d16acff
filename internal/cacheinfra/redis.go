package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-library-cache/cache"
	"github.com/redis/go-redis/v9"
)

// ErrNilClient is returned when a Redis backend is created without a client.
var ErrNilClient = errors.New("cacheinfra: nil redis client")

// RedisConfig configures the Redis client used as cache backend. A single
// address connects to a standalone server, several to a cluster.
type RedisConfig struct {
	Addrs        []string
	Username     string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// OperationTimeout bounds every KV call that arrives without a deadline.
	// Zero leaves the caller's context untouched.
	OperationTimeout time.Duration
}

// DefaultRedisConfig returns a config for a local standalone server.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addrs:            []string{"localhost:6379"},
		DialTimeout:      2 * time.Second,
		ReadTimeout:      500 * time.Millisecond,
		WriteTimeout:     500 * time.Millisecond,
		OperationTimeout: time.Second,
	}
}

// Validate checks if the configuration values are valid.
func (c RedisConfig) Validate() error {
	if len(c.Addrs) == 0 {
		return &ConfigError{Field: "Addrs", Message: "at least one address is required"}
	}
	if c.DB < 0 {
		return &ConfigError{Field: "DB", Message: "must be non-negative"}
	}
	if c.PoolSize < 0 {
		return &ConfigError{Field: "PoolSize", Message: "must be non-negative"}
	}
	if c.OperationTimeout < 0 {
		return &ConfigError{Field: "OperationTimeout", Message: "must be non-negative"}
	}
	return nil
}

// NewRedisClient builds a universal client from cfg.
func NewRedisClient(cfg RedisConfig) (redis.UniversalClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}), nil
}

// RedisKV implements cache.KV with native Redis hashes, strings and sets.
type RedisKV struct {
	rdb         redis.UniversalClient
	timeout     time.Duration
	closeClient bool
}

var _ cache.KV = (*RedisKV)(nil)

// RedisOption configures a RedisKV.
type RedisOption func(*RedisKV)

// WithOperationTimeout bounds every call that arrives without a deadline.
func WithOperationTimeout(d time.Duration) RedisOption {
	return func(r *RedisKV) {
		r.timeout = d
	}
}

// WithOwnedClient makes Close close the client. Set it only when the KV
// exclusively owns the client.
func WithOwnedClient() RedisOption {
	return func(r *RedisKV) {
		r.closeClient = true
	}
}

// NewRedisKV wraps client.
func NewRedisKV(client redis.UniversalClient, opts ...RedisOption) (*RedisKV, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	r := &RedisKV{rdb: client}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// HSet replaces the hash in one MULTI/EXEC so fields dropped from the record
// do not linger.
func (r *RedisKV) HSet(ctx context.Context, key string, fields cache.Record, ttl time.Duration) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if len(fields) == 0 {
		return r.rdb.Del(ctx, key).Err()
	}

	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return redisErr(err)
}

func (r *RedisKV) HGetAll(ctx context.Context, key string) (cache.Record, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	fields, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return cache.Record{}, redisErr(err)
	}
	return cache.Record(fields), nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	return redisErr(r.rdb.Set(ctx, key, value, ttl).Err())
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	v, err := r.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, redisErr(err)
	}
	return v, true, nil
}

// SAdd adds members and refreshes the ttl of the set.
func (r *RedisKV) SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, toArgs(members)...)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return redisErr(err)
}

func (r *RedisKV) SMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	members, err := r.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, redisErr(err)
	}
	return members, nil
}

func (r *RedisKV) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return redisErr(r.rdb.SRem(ctx, key, toArgs(members)...).Err())
}

func (r *RedisKV) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return r.rdb.Del(ctx, keys...).Err()
}

// Close releases the client only when the KV owns it. Safe to call more than once.
func (r *RedisKV) Close() error {
	if !r.closeClient {
		return nil
	}
	if err := r.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

// Ping checks connectivity.
func (r *RedisKV) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisKV) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// redisErr reports WRONGTYPE replies as ErrWrongType, like the in-process backend.
func redisErr(err error) error {
	var rerr redis.Error
	if errors.As(err, &rerr) && strings.HasPrefix(rerr.Error(), "WRONGTYPE") {
		return fmt.Errorf("%w: %s", ErrWrongType, rerr.Error())
	}
	return err
}

func toArgs(members []string) []any {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}

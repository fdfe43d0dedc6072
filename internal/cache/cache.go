package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrMiss is returned when a key is not cached.
	ErrMiss = errors.New("cache miss")
	// ErrStale is returned by a write whose version was overtaken by an
	// invalidation. The entry is not written.
	ErrStale = errors.New("cache entry invalidated since version was read")
)

const (
	prefixKeyPrefix  = "swift:prefix:"
	countryKeyPrefix = "swift:country:"
	versionKeyPrefix = "swift:version:"
	countryField     = "listing"
)

// Config holds the Redis cache settings. An empty URL disables caching.
type Config struct {
	URL          string        `koanf:"url"`
	TTL          time.Duration `koanf:"ttl"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// Cache stores serialized lookup responses. Code entries are grouped under
// their institution prefix so that one write invalidates a headquarters and
// all of its branches together.
//
// Every group carries a version that Invalidate bumps. A reader takes the
// version before loading from the store and hands it to the matching Set;
// the Set fails with ErrStale when an invalidation happened in between.
type Cache interface {
	GetCode(ctx context.Context, prefix, code string) ([]byte, error)
	PrefixVersion(ctx context.Context, prefix string) (int64, error)
	SetCode(ctx context.Context, prefix, code string, version int64, value []byte) error
	GetCountry(ctx context.Context, countryISO2 string) ([]byte, error)
	CountryVersion(ctx context.Context, countryISO2 string) (int64, error)
	SetCountry(ctx context.Context, countryISO2 string, version int64, value []byte) error
	// Invalidate drops every entry a write to a code with this prefix and
	// country can change.
	Invalidate(ctx context.Context, prefix, countryISO2 string) error
	Health(ctx context.Context) error
	Close() error
}

// RedisCache implements Cache with one Redis hash per prefix and per country.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis. Returns nil if the URL is empty.
func New(ctx context.Context, cfg Config) (*RedisCache, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisCache(client, cfg.TTL), nil
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) GetCode(ctx context.Context, prefix, code string) ([]byte, error) {
	return c.get(ctx, prefixKeyPrefix+prefix, code)
}

func (c *RedisCache) PrefixVersion(ctx context.Context, prefix string) (int64, error) {
	return c.version(ctx, prefixKeyPrefix+prefix)
}

func (c *RedisCache) SetCode(ctx context.Context, prefix, code string, version int64, value []byte) error {
	return c.set(ctx, prefixKeyPrefix+prefix, code, version, value)
}

func (c *RedisCache) GetCountry(ctx context.Context, countryISO2 string) ([]byte, error) {
	return c.get(ctx, countryKeyPrefix+countryISO2, countryField)
}

func (c *RedisCache) CountryVersion(ctx context.Context, countryISO2 string) (int64, error) {
	return c.version(ctx, countryKeyPrefix+countryISO2)
}

func (c *RedisCache) SetCountry(ctx context.Context, countryISO2 string, version int64, value []byte) error {
	return c.set(ctx, countryKeyPrefix+countryISO2, countryField, version, value)
}

// Invalidate bumps both versions before dropping the hashes, so a fill that
// read the old version can no longer write.
func (c *RedisCache) Invalidate(ctx context.Context, prefix, countryISO2 string) error {
	prefixKey := prefixKeyPrefix + prefix
	countryKey := countryKeyPrefix + countryISO2
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKeyPrefix+prefixKey)
		pipe.Incr(ctx, versionKeyPrefix+countryKey)
		pipe.Del(ctx, prefixKey, countryKey)
		return nil
	})
	return err
}

// Health checks if the Redis connection is healthy.
func (c *RedisCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) get(ctx context.Context, key, field string) ([]byte, error) {
	value, err := c.client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// version reads the invalidation counter of a hash. A missing counter is 0.
func (c *RedisCache) version(ctx context.Context, key string) (int64, error) {
	v, err := c.client.Get(ctx, versionKeyPrefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// set writes the field and refreshes the hash expiry only while the version
// still matches. WATCH aborts the transaction if Invalidate runs between the
// check and EXEC.
func (c *RedisCache) set(ctx context.Context, key, field string, version int64, value []byte) error {
	versionKey := versionKeyPrefix + key
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, value)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, versionKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStale
	}
	return err
}

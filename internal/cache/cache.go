package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error

	SetJobStatus(ctx context.Context, jobID string, status string, ttl time.Duration) error
	GetJobStatus(ctx context.Context, jobID string) (string, bool, error)
	SetGenerationStatus(ctx context.Context, generationJobID string, status string, ttl time.Duration) error
	GetGenerationStatus(ctx context.Context, generationJobID string) (string, bool, error)

	SetRefreshToken(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error
	GetRefreshToken(ctx context.Context, token string) (uuid.UUID, bool, error)
	DeleteRefreshToken(ctx context.Context, token string) error

	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) SetJobStatus(ctx context.Context, jobID string, status string, ttl time.Duration) error {
	return c.client.Set(ctx, JobStatusKey(jobID), status, ttl).Err()
}

func (c *RedisCache) GetJobStatus(ctx context.Context, jobID string) (string, bool, error) {
	return c.getString(ctx, JobStatusKey(jobID))
}

func (c *RedisCache) SetGenerationStatus(ctx context.Context, generationJobID string, status string, ttl time.Duration) error {
	return c.client.Set(ctx, GenerationStatusKey(generationJobID), status, ttl).Err()
}

func (c *RedisCache) GetGenerationStatus(ctx context.Context, generationJobID string) (string, bool, error) {
	return c.getString(ctx, GenerationStatusKey(generationJobID))
}

func (c *RedisCache) SetRefreshToken(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	return c.client.Set(ctx, RefreshTokenKey(token), userID.String(), ttl).Err()
}

func (c *RedisCache) GetRefreshToken(ctx context.Context, token string) (uuid.UUID, bool, error) {
	val, found, err := c.getString(ctx, RefreshTokenKey(token))
	if err != nil || !found {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

func (c *RedisCache) DeleteRefreshToken(ctx context.Context, token string) error {
	return c.client.Del(ctx, RefreshTokenKey(token)).Err()
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *RedisCache) getString(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

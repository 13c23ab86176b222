package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"holiday-status-api/internal/models"
)

// HolidayStatusKeyFormat is the Redis key holding the latest result for a city
const HolidayStatusKeyFormat = "holiday_status_v1:%s"

// RedisCache stores results as JSON strings in Redis, shared by every instance
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the Redis URL and verifies the connection
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get loads the result for a city
func (r *RedisCache) Get(ctx context.Context, city string) (*models.AnalysisResult, error) {
	data, err := r.client.Get(ctx, redisKey(city)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holiday status from redis: %w", err)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal holiday status JSON: %w", err)
	}
	return &result, nil
}

// Put overwrites the result for a city without expiry
func (r *RedisCache) Put(ctx context.Context, city string, result *models.AnalysisResult) error {
	if result == nil {
		return errors.New("result cannot be nil")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal holiday status for %s: %w", city, err)
	}
	if err := r.client.Set(ctx, redisKey(city), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set holiday status in redis: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func redisKey(city string) string {
	return fmt.Sprintf(HolidayStatusKeyFormat, cacheKey(city))
}

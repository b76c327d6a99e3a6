package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

// ErrMiss is returned by GetStatus when nothing is cached.
var ErrMiss = errors.New("cache miss")

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache caches customer-facing order statuses. ttl <= 0 keeps keys forever.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func statusKey(orderID string) string { return "order:status:" + orderID }

func (r *RedisCache) SetStatus(ctx context.Context, orderID string, status string) error {
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	return r.rdb.Set(ctx, statusKey(orderID), status, ttl).Err()
}

func (r *RedisCache) GetStatus(ctx context.Context, orderID string) (string, error) {
	val, err := r.rdb.Get(ctx, statusKey(orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

var _ usecase.OrderCache = (*RedisCache)(nil)

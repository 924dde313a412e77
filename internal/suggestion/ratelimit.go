package suggestion

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

func incrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		// 没有过期时间的计数器会永久限流该用户
		if err := client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return count, nil
}

// RedisLimiter 是固定窗口计数器：每个用户每个窗口最多 limit 次请求。limit <= 0 时不限流。
type RedisLimiter struct {
	client redisRateCounter
	limit  int
	window time.Duration
}

func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, userID uint) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("rate:suggestion:%d", userID)
	count, err := incrWithTTL(ctx, l.client, key, l.window)
	if err != nil {
		return false, err
	}
	return count <= int64(l.limit), nil
}

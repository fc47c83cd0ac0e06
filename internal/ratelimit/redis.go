package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/metrics"
)

// RedisLimiter 基于 Redis 的固定窗口限流器，多实例部署时共享计数。
// 实现为 INCR + 首次计数设置窗口过期，窗口到期后键自动消失即清零。
type RedisLimiter struct {
	client      redis.UniversalClient
	window      time.Duration
	maxRequests int
	prefix      string
}

// NewRedisLimiter 创建 Redis 限流器
func NewRedisLimiter(client redis.UniversalClient, window time.Duration, maxRequests int) *RedisLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	return &RedisLimiter{
		client:      client,
		window:      window,
		maxRequests: maxRequests,
		prefix:      "ratelimit:",
	}
}

// Allow 实现 Limiter。Redis 故障时放行并返回错误，由调用方决定是否
// 降级到进程内限流。
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := l.prefix + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, fmt.Errorf("限流计数失败: %w", err)
	}

	// 窗口内第一次计数时设置过期
	if count == 1 {
		if err := l.client.PExpire(ctx, redisKey, l.window).Err(); err != nil {
			return true, fmt.Errorf("设置限流窗口失败: %w", err)
		}
	}

	if count > int64(l.maxRequests) {
		metrics.RateLimitRejectionsTotal.Inc()
		return false, nil
	}
	return true, nil
}

// ResetTime 实现 Limiter。按剩余 TTL 推算窗口清零时刻。
func (l *RedisLimiter) ResetTime(ctx context.Context, key string) (time.Time, error) {
	redisKey := l.prefix + key

	ttl, err := l.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("查询限流窗口失败: %w", err)
	}
	if ttl < 0 {
		// 键不存在或无过期，视为立即可用
		return time.Now(), nil
	}
	return time.Now().Add(ttl), nil
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisLimiter(t *testing.T, window time.Duration, maxRequests int) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiter(client, window, maxRequests), mr
}

func TestRedisLimiterAllowsUpToMax(t *testing.T) {
	ctx := context.Background()
	l, _ := setupRedisLimiter(t, time.Minute, 3)

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok, "第 %d 次请求应放行", i+1)
	}
	ok, err := l.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	// 其它键独立计数
	ok, err = l.Allow(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiterWindowExpiry(t *testing.T) {
	ctx := context.Background()
	l, mr := setupRedisLimiter(t, time.Minute, 1)

	ok, err := l.Allow(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = l.Allow(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	// 窗口到期后键自动消失，计数清零
	mr.FastForward(time.Minute + time.Second)

	ok, err = l.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiterResetTime(t *testing.T) {
	ctx := context.Background()
	l, _ := setupRedisLimiter(t, time.Minute, 5)

	// 无计数的键视为立即可用
	resetAt, err := l.ResetTime(ctx, "fresh")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), resetAt, time.Second)

	_, err = l.Allow(ctx, "u1")
	require.NoError(t, err)

	resetAt, err = l.ResetTime(ctx, "u1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), resetAt, 2*time.Second)
}

func TestRedisLimiterFailOpen(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewRedisLimiter(client, time.Minute, 5)

	// Redis 故障时放行并返回错误
	mr.Close()
	ok, err := l.Allow(ctx, "u1")
	assert.Error(t, err)
	assert.True(t, ok)
}

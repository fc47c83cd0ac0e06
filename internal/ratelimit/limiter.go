// Package ratelimit 提供按键的固定窗口请求准入控制
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/metrics"
)

// 缺省策略
const (
	DefaultWindow      = time.Minute
	DefaultMaxRequests = 10
)

// Limiter 限流器接口。键由调用方拼装（如 "auth_"+email、用户 ID），
// 不同子系统用不同前缀即可共享同一实例。超限不报错，返回 false 由
// 调用方决定拒绝、排队还是提示等待时间。
type Limiter interface {
	// Allow 判断该键在当前窗口内是否还允许一次请求
	Allow(ctx context.Context, key string) (bool, error)
	// ResetTime 当前窗口的清零时刻
	ResetTime(ctx context.Context, key string) (time.Time, error)
}

// windowState 单个键的窗口状态
type windowState struct {
	count       int
	windowStart time.Time
}

// WindowLimiter 进程内固定窗口限流器。
type WindowLimiter struct {
	mu          sync.Mutex
	states      map[string]*windowState
	window      time.Duration
	maxRequests int
}

// NewWindowLimiter 创建进程内限流器。参数非法时使用缺省值。
func NewWindowLimiter(window time.Duration, maxRequests int) *WindowLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	return &WindowLimiter{
		states:      make(map[string]*windowState),
		window:      window,
		maxRequests: maxRequests,
	}
}

// Allow 实现 Limiter。窗口过期时先重置再计数。
func (l *WindowLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	state, ok := l.states[key]
	if !ok || now.Sub(state.windowStart) >= l.window {
		l.states[key] = &windowState{count: 1, windowStart: now}
		return true, nil
	}

	if state.count >= l.maxRequests {
		metrics.RateLimitRejectionsTotal.Inc()
		return false, nil
	}

	state.count++
	return true, nil
}

// ResetTime 实现 Limiter。无状态键视为立即可用。
func (l *WindowLimiter) ResetTime(_ context.Context, key string) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	state, ok := l.states[key]
	if !ok || now.Sub(state.windowStart) >= l.window {
		return now, nil
	}
	return state.windowStart.Add(l.window), nil
}

// Prune 清理过期窗口状态，长生命周期实例可定期调用以回收内存。
func (l *WindowLimiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, state := range l.states {
		if now.Sub(state.windowStart) >= l.window {
			delete(l.states, key)
		}
	}
}

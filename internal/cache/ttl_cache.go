// Package cache 提供带 TTL 的进程内缓存
package cache

import (
	"sync"
	"time"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/metrics"
)

// 缺省参数
const (
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = 10 * time.Minute
)

// entry 缓存条目
type entry[T any] struct {
	data      T
	timestamp time.Time
	ttl       time.Duration
}

func (e entry[T]) expired(now time.Time) bool {
	return now.Sub(e.timestamp) > e.ttl
}

// TTLCache 泛型 TTL 缓存。读取时惰性判定过期；后台按固定间隔主动清扫，
// 限制两次读取之间的最坏内存增长。所有操作共用一把锁，清扫与读写互斥。
type TTLCache[T any] struct {
	mu            sync.Mutex
	entries       map[string]entry[T]
	defaultTTL    time.Duration
	sweepInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// New 创建缓存并启动后台清扫协程。参数非法时回退到缺省值。
func New[T any](defaultTTL, sweepInterval time.Duration) *TTLCache[T] {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	c := &TTLCache[T]{
		entries:       make(map[string]entry[T]),
		defaultTTL:    defaultTTL,
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
	}

	go c.sweepLoop()

	return c
}

// Set 以默认 TTL 写入
func (c *TTLCache[T]) Set(key string, value T) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL 以指定 TTL 写入
func (c *TTLCache[T]) SetTTL(key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.entries[key] = entry[T]{data: value, timestamp: time.Now(), ttl: ttl}
	c.mu.Unlock()
}

// Get 读取。过期条目按缺失处理并顺手淘汰。
func (c *TTLCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metrics.CacheOpsTotal.WithLabelValues("miss").Inc()
		var zero T
		return zero, false
	}
	if e.expired(time.Now()) {
		delete(c.entries, key)
		metrics.CacheOpsTotal.WithLabelValues("miss").Inc()
		var zero T
		return zero, false
	}

	metrics.CacheOpsTotal.WithLabelValues("hit").Inc()
	return e.data, true
}

// Delete 删除指定键，返回是否存在。
func (c *TTLCache[T]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// Clear 清空缓存
func (c *TTLCache[T]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[T])
	c.mu.Unlock()
}

// Len 当前条目数（含尚未清扫的过期条目）
func (c *TTLCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stop 停止后台清扫。幂等。
func (c *TTLCache[T]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// sweepLoop 后台清扫循环，独立于读取路径运行，不阻塞 Get/Set 调用方
// （仅在单次清扫期间短暂持锁）。
func (c *TTLCache[T]) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

func (c *TTLCache[T]) sweep() {
	now := time.Now()
	c.mu.Lock()
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

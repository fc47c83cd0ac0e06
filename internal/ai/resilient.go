package ai

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/metrics"
)

const (
	// DefaultCallTimeout 单次调用超时
	DefaultCallTimeout = 30 * time.Second
	// DefaultMaxRetries 最大尝试次数（含首次调用）
	DefaultMaxRetries = 3
	// DefaultBackoffBase 指数退避基数，第 n 次重试前等待 2^n * base
	DefaultBackoffBase = time.Second
)

// ErrEmptyRequest 请求消息为空
var ErrEmptyRequest = errors.New("对话请求消息不能为空")

// FallbackContent 所有尝试耗尽后返回的兜底内容。保证调用方拿到
// 结构完整的响应而不是错误，分析结果降级为"需人工复核"。
const FallbackContent = `{"gaps":[],"recommendations":[],"summary":"AI 服务暂不可用，本次分析未完成，请人工复核或稍后重试。","degraded":true}`

// ResilientClient 带超时、重试和降级的模型客户端包装。
// 除请求本身非法外不向调用方返回错误：重试耗尽后返回兜底响应。
type ResilientClient struct {
	inner       Client
	callTimeout time.Duration
	maxRetries  int
	backoffBase time.Duration
	sleep       func(time.Duration)
	logger      *zap.Logger
}

// ResilientOption 配置可选项
type ResilientOption func(*ResilientClient)

// WithCallTimeout 设置单次调用超时
func WithCallTimeout(d time.Duration) ResilientOption {
	return func(c *ResilientClient) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithMaxRetries 设置最大尝试次数
func WithMaxRetries(n int) ResilientOption {
	return func(c *ResilientClient) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoffBase 设置退避基数
func WithBackoffBase(d time.Duration) ResilientOption {
	return func(c *ResilientClient) {
		if d > 0 {
			c.backoffBase = d
		}
	}
}

// withSleep 替换退避等待函数，测试中注入以避免真实等待
func withSleep(fn func(time.Duration)) ResilientOption {
	return func(c *ResilientClient) {
		c.sleep = fn
	}
}

// NewResilientClient 包装底层客户端
func NewResilientClient(inner Client, logger *zap.Logger, opts ...ResilientOption) *ResilientClient {
	c := &ResilientClient{
		inner:       inner,
		callTimeout: DefaultCallTimeout,
		maxRetries:  DefaultMaxRetries,
		backoffBase: DefaultBackoffBase,
		sleep:       time.Sleep,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// ChatCompletion 实现 Client。每次尝试独立计时，失败后指数退避再试，
// 全部失败时返回兜底响应和 nil 错误。
func (c *ResilientClient) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, ErrEmptyRequest
	}

	start := time.Now()
	defer func() {
		metrics.AIRequestDuration.Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			// 第 n 次重试前等待 2^n * base
			c.sleep(time.Duration(1<<uint(attempt)) * c.backoffBase)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		resp, err := c.inner.ChatCompletion(callCtx, req)
		cancel()

		if err == nil {
			metrics.AIRequestsTotal.WithLabelValues("success").Inc()
			return resp, nil
		}
		lastErr = err

		var clientErr *ClientError
		if errors.As(err, &clientErr) && !clientErr.IsRetryable() {
			c.logger.Warn("模型调用失败且不可重试", zap.Error(err))
			break
		}
		c.logger.Warn("模型调用失败",
			zap.Int("attempt", attempt+1),
			zap.Int("maxRetries", c.maxRetries),
			zap.Error(err))
	}

	metrics.AIRequestsTotal.WithLabelValues("fallback").Inc()
	c.logger.Error("模型调用重试耗尽，返回兜底响应", zap.Error(lastErr))
	return &ChatResponse{
		ID:      "fallback",
		Model:   "fallback",
		Content: FallbackContent,
	}, nil
}

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/auth"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/ratelimit"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/security"
)

// RateLimitMiddleware 限流中间件。客户端标识优先使用认证用户 ID，
// 匿名请求退化为按 IP 限流。限流器故障时放行。
func RateLimitMiddleware(limiter ratelimit.Limiter, events *security.EventLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userCtx, ok := auth.GetUserContext(c); ok {
			key = userCtx.UserID
		}

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			c.Next()
			return
		}
		if !allowed {
			retryAfter := 1
			if resetAt, rerr := limiter.ResetTime(c.Request.Context(), key); rerr == nil {
				if secs := int(time.Until(resetAt).Seconds()); secs > 0 {
					retryAfter = secs
				}
			}
			if events != nil {
				events.LogRateLimitExceeded(key, c.Request.UserAgent())
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "请求过于频繁，请稍后重试",
				"code":        "RATE_LIMIT_EXCEEDED",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}

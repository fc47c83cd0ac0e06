package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/logger"
)

// ContextKey 上下文键类型
type ContextKey string

// UserContextKey 用户上下文键
const UserContextKey ContextKey = "user"

// UserContext carries the caller identity resolved from the bearer token.
type UserContext struct {
	UserID string
	Role   string
}

// ExtractTokenFromBearer strips the "Bearer " prefix. Returns an empty
// string when the header does not carry a bearer token.
func ExtractTokenFromBearer(authHeader string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// AuthMiddleware validates the bearer token and stores the caller identity
// in the request context.
func AuthMiddleware(jwtService *JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "缺少认证令牌"})
			c.Abort()
			return
		}

		token := ExtractTokenFromBearer(authHeader)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的令牌格式"})
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "令牌验证失败"})
			c.Abort()
			return
		}

		c.Set(string(UserContextKey), &UserContext{
			UserID: claims.UserID,
			Role:   claims.Role,
		})

		c.Next()
	}
}

// GetUserContext reads the caller identity set by AuthMiddleware.
func GetUserContext(c *gin.Context) (*UserContext, bool) {
	value, exists := c.Get(string(UserContextKey))
	if !exists {
		return nil, false
	}
	userCtx, ok := value.(*UserContext)
	return userCtx, ok
}

// GuardMiddleware runs a Guard against the authenticated caller. Denials
// get a generic 403 body; the failed requirement goes to the log only.
func GuardMiddleware(guard Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
			c.Abort()
			return
		}

		if err := guard(userCtx.UserID); err != nil {
			var denied *AccessDeniedError
			if errors.As(err, &denied) {
				logger.Warn("访问被拒绝",
					zap.String("userId", denied.UserID),
					zap.String("requirement", denied.Requirement),
					zap.String("path", c.Request.URL.Path),
				)
			}
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			c.Abort()
			return
		}

		c.Next()
	}
}

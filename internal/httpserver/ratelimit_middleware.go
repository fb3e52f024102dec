package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contenthub/internal/handler"
	"contenthub/pkg/metrics"
	"contenthub/pkg/ratelimit"
)

const rateWindow = time.Minute

type RateLimiter interface {
	Allow(ctx context.Context, scope, id string, limit int64, window time.Duration) (*ratelimit.Result, error)
}

// keyFunc 返回计数维度；返回空串表示跳过
type keyFunc func(c *gin.Context) string

func rateLimit(limiter RateLimiter, scope string, limit int64, key keyFunc, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := key(c)
		if id == "" || limit <= 0 {
			c.Next()
			return
		}

		result, err := limiter.Allow(c.Request.Context(), scope, id, limit, rateWindow)
		if err != nil {
			// Redis 不可用时放行
			logger.Warn("Rate limit check failed, allowing request",
				zap.String("scope", scope),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if !result.Allowed {
			metrics.IncrementRateLimitRejected(scope)
			c.Header("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":               "rate limit exceeded",
				"scope":               scope,
				"limit":               result.Limit,
				"retry_after_seconds": result.RetryAfterSeconds,
			})
			return
		}

		c.Next()
	}
}

// GlobalRateLimitMiddleware 每个租户共享一个计数
func GlobalRateLimitMiddleware(limiter RateLimiter, limit int64, logger *zap.Logger) gin.HandlerFunc {
	return rateLimit(limiter, ratelimit.ScopeGlobal, limit, func(c *gin.Context) string {
		return strconv.FormatInt(handler.TenantID(c), 10)
	}, logger)
}

// UserRateLimitMiddleware 需要放在 AuthMiddleware 之后；匿名请求不计
func UserRateLimitMiddleware(limiter RateLimiter, limit int64, logger *zap.Logger) gin.HandlerFunc {
	return rateLimit(limiter, ratelimit.ScopeUser, limit, func(c *gin.Context) string {
		if uid := handler.UserID(c); uid > 0 {
			return strconv.FormatInt(uid, 10)
		}
		return ""
	}, logger)
}

// LoginRateLimitMiddleware 按客户端 IP 计数
func LoginRateLimitMiddleware(limiter RateLimiter, limit int64, logger *zap.Logger) gin.HandlerFunc {
	return rateLimit(limiter, ratelimit.ScopeLogin, limit, func(c *gin.Context) string {
		return c.ClientIP()
	}, logger)
}

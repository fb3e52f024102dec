package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contenthub/internal/handler"
	"contenthub/internal/model"
	"contenthub/internal/repository"
	"contenthub/pkg/db"
)

// TenantHeader 请求所属租户的 slug
const TenantHeader = "X-Tenant"

type TenantResolver interface {
	FindBySlug(ctx context.Context, slug string) (*model.Tenant, error)
}

// TenantMiddleware 把 X-Tenant 解析为租户，缺省为 default
func TenantMiddleware(resolver TenantResolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		slug := strings.ToLower(strings.TrimSpace(c.GetHeader(TenantHeader)))
		if slug == "" {
			slug = db.DefaultTenantSlug
		}

		t, err := resolver.FindBySlug(c.Request.Context(), slug)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
				return
			}
			logger.Error("Failed to resolve tenant", zap.String("tenant", slug), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(handler.KeyTenant, t)
		c.Next()
	}
}

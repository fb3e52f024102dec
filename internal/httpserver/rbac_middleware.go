package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contenthub/internal/handler"
	"contenthub/pkg/rbac"
)

type PermissionChecker interface {
	CheckPermission(ctx context.Context, tenantID, userID int64, permission string) error
}

// RequirePermission 中间件：要求用户具有指定权限
func RequirePermission(checker PermissionChecker, permission string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := handler.UserID(c)
		if userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			return
		}

		err := checker.CheckPermission(c.Request.Context(), handler.TenantID(c), userID, permission)
		if err != nil {
			var denied *rbac.PermissionDeniedError
			if errors.As(err, &denied) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
				return
			}
			logger.Error("Permission check failed",
				zap.Int64("user_id", userID),
				zap.String("permission", permission),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Next()
	}
}

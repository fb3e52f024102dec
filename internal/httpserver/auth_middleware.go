package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contenthub/internal/handler"
	"contenthub/pkg/util"
)

// AuthMiddleware 校验 JWT，且 token 的租户必须与请求租户一致
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return authenticate(jwtSecret, true)
}

// OptionalAuthMiddleware 有 token 时校验，没有时按匿名放行
func OptionalAuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return authenticate(jwtSecret, false)
}

func authenticate(jwtSecret string, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
				return
			}
			c.Next()
			return
		}

		claims, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if claims.TenantID != handler.TenantID(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token does not belong to this tenant"})
			return
		}

		c.Set(handler.KeyUserID, claims.UserID)
		c.Next()
	}
}

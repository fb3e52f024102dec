package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"contenthub/internal/model"
	"contenthub/pkg/pagination"
)

// gin.Context 中由中间件写入的键
const (
	KeyTenant = "tenant"
	KeyUserID = "user_id"
)

// Tenant 由 TenantMiddleware 写入，路由上总是存在
func Tenant(c *gin.Context) *model.Tenant {
	if v, ok := c.Get(KeyTenant); ok {
		if t, ok := v.(*model.Tenant); ok {
			return t
		}
	}
	return &model.Tenant{}
}

func TenantID(c *gin.Context) int64 {
	return Tenant(c).ID
}

// UserID 未登录时返回 0
func UserID(c *gin.Context) int64 {
	if v, ok := c.Get(KeyUserID); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}

// paramID 解析路径上的正整数 id，失败时直接写 400
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func pageParams(c *gin.Context) pagination.Params {
	return pagination.Parse(c.Query("page"), c.Query("page_size"))
}

// bindJSON 绑定失败时写 400
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

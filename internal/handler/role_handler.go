package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contenthub/internal/model"
)

type RoleService interface {
	ListRoles(ctx context.Context, tenantID int64) ([]*model.Role, error)
	ListPermissions(ctx context.Context) ([]*model.Permission, error)
	CreateRole(ctx context.Context, tenantID int64, name string, permissions []string) (*model.Role, error)
	SetPermissions(ctx context.Context, tenantID, roleID int64, permissions []string) (*model.Role, error)
	AssignRole(ctx context.Context, tenantID, userID, roleID int64) error
	RevokeRole(ctx context.Context, tenantID, userID, roleID int64) error
}

type RoleHandler struct {
	svc    RoleService
	logger *zap.Logger
}

func NewRoleHandler(svc RoleService, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{svc: svc, logger: logger}
}

// ListRoles GET /admin/roles
func (h *RoleHandler) ListRoles(c *gin.Context) {
	items, err := h.svc.ListRoles(c.Request.Context(), TenantID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ListPermissions GET /admin/permissions
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	items, err := h.svc.ListPermissions(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type roleRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// CreateRole POST /admin/roles
func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req roleRequest
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.svc.CreateRole(c.Request.Context(), TenantID(c), req.Name, req.Permissions)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// SetPermissions PUT /admin/roles/:id/permissions
func (h *RoleHandler) SetPermissions(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req roleRequest
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.svc.SetPermissions(c.Request.Context(), TenantID(c), id, req.Permissions)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *RoleHandler) userRole(c *gin.Context) (userID, roleID int64, ok bool) {
	if userID, ok = paramID(c, "id"); !ok {
		return
	}
	roleID, ok = paramID(c, "role_id")
	return
}

// AssignRole PUT /admin/users/:id/roles/:role_id
func (h *RoleHandler) AssignRole(c *gin.Context) {
	userID, roleID, ok := h.userRole(c)
	if !ok {
		return
	}
	if err := h.svc.AssignRole(c.Request.Context(), TenantID(c), userID, roleID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info("Role assigned",
		zap.Int64("operator_id", UserID(c)),
		zap.Int64("user_id", userID),
		zap.Int64("role_id", roleID),
	)
	c.Status(http.StatusNoContent)
}

// RevokeRole DELETE /admin/users/:id/roles/:role_id
func (h *RoleHandler) RevokeRole(c *gin.Context) {
	userID, roleID, ok := h.userRole(c)
	if !ok {
		return
	}
	if err := h.svc.RevokeRole(c.Request.Context(), TenantID(c), userID, roleID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info("Role revoked",
		zap.Int64("operator_id", UserID(c)),
		zap.Int64("user_id", userID),
		zap.Int64("role_id", roleID),
	)
	c.Status(http.StatusNoContent)
}

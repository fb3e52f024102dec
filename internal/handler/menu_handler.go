package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contenthub/internal/model"
	"contenthub/internal/service/menu"
)

type MenuService interface {
	Tree(ctx context.Context, tenantID, userID int64, locale, defaultLocale string) ([]*model.MenuNode, error)
	List(ctx context.Context, tenantID int64) ([]*model.Menu, error)
	Get(ctx context.Context, tenantID, id int64) (*model.Menu, error)
	Create(ctx context.Context, tenantID int64, in menu.Input) (*model.Menu, error)
	Update(ctx context.Context, tenantID, id int64, in menu.Input) (*model.Menu, error)
	Delete(ctx context.Context, tenantID, id int64) error
	SetTranslations(ctx context.Context, tenantID, id int64, input map[string]*string) (*model.Menu, error)
}

type MenuHandler struct {
	svc    MenuService
	logger *zap.Logger
}

func NewMenuHandler(svc MenuService, logger *zap.Logger) *MenuHandler {
	return &MenuHandler{svc: svc, logger: logger}
}

// Tree GET /menus?locale=xx
func (h *MenuHandler) Tree(c *gin.Context) {
	t := Tenant(c)
	locale := c.Query("locale")
	tree, err := h.svc.Tree(c.Request.Context(), t.ID, UserID(c), locale, t.DefaultLocale)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": tree})
}

// List GET /admin/menus
func (h *MenuHandler) List(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context(), TenantID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Get GET /admin/menus/:id
func (h *MenuHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	m, err := h.svc.Get(c.Request.Context(), TenantID(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Create POST /admin/menus
func (h *MenuHandler) Create(c *gin.Context) {
	var in menu.Input
	if !bindJSON(c, &in) {
		return
	}
	m, err := h.svc.Create(c.Request.Context(), TenantID(c), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// Update PUT /admin/menus/:id
func (h *MenuHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in menu.Input
	if !bindJSON(c, &in) {
		return
	}
	m, err := h.svc.Update(c.Request.Context(), TenantID(c), id, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Delete DELETE /admin/menus/:id
func (h *MenuHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), TenantID(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetTranslations PUT /admin/menus/:id/translations {locale: title}
func (h *MenuHandler) SetTranslations(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input map[string]*string
	if !bindJSON(c, &input) {
		return
	}
	m, err := h.svc.SetTranslations(c.Request.Context(), TenantID(c), id, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contenthub/internal/model"
	"contenthub/internal/service/couplet"
	"contenthub/pkg/pagination"
)

type CoupletService interface {
	Create(ctx context.Context, tenantID, userID int64, in couplet.CreateInput) (*model.CoupletDetail, error)
	CreateVersion(ctx context.Context, tenantID, userID, coupletID int64, note string, in []couplet.ContentInput) (*model.CoupletVersion, error)
	Restore(ctx context.Context, tenantID, userID, coupletID int64, number int) (*model.CoupletVersion, error)
	Get(ctx context.Context, tenantID, id int64, slugKey string) (*model.CoupletDetail, error)
	List(ctx context.Context, tenantID int64, query string, p pagination.Params) (pagination.Page[*model.Couplet], error)
	ListVersions(ctx context.Context, tenantID, coupletID int64) ([]*model.CoupletVersion, error)
	GetVersion(ctx context.Context, tenantID, coupletID int64, number int) (*model.CoupletVersion, error)
	UpdateMeta(ctx context.Context, tenantID, id int64, in couplet.MetaInput) (*model.Couplet, error)
	Delete(ctx context.Context, tenantID, id int64) error
}

type CoupletHandler struct {
	svc    CoupletService
	logger *zap.Logger
}

func NewCoupletHandler(svc CoupletService, logger *zap.Logger) *CoupletHandler {
	return &CoupletHandler{svc: svc, logger: logger}
}

func versionNumber(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("number"))
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version number"})
		return 0, false
	}
	return n, true
}

// List GET /couplets?q=
func (h *CoupletHandler) List(c *gin.Context) {
	page, err := h.svc.List(c.Request.Context(), TenantID(c), c.Query("q"), pageParams(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get GET /couplets/:key
func (h *CoupletHandler) Get(c *gin.Context) {
	key := c.Param("key")
	var detail *model.CoupletDetail
	var err error
	if id, perr := strconv.ParseInt(key, 10, 64); perr == nil && id > 0 {
		detail, err = h.svc.Get(c.Request.Context(), TenantID(c), id, "")
		if errors.Is(err, couplet.ErrNotFound) {
			detail, err = h.svc.Get(c.Request.Context(), TenantID(c), 0, key)
		}
	} else {
		detail, err = h.svc.Get(c.Request.Context(), TenantID(c), 0, key)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListVersions GET /couplets/:key/versions，key 只接受 id
func (h *CoupletHandler) ListVersions(c *gin.Context) {
	id, ok := paramID(c, "key")
	if !ok {
		return
	}
	items, err := h.svc.ListVersions(c.Request.Context(), TenantID(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetVersion GET /couplets/:key/versions/:number
func (h *CoupletHandler) GetVersion(c *gin.Context) {
	id, ok := paramID(c, "key")
	if !ok {
		return
	}
	n, ok := versionNumber(c)
	if !ok {
		return
	}
	v, err := h.svc.GetVersion(c.Request.Context(), TenantID(c), id, n)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Create POST /admin/couplets
func (h *CoupletHandler) Create(c *gin.Context) {
	var in couplet.CreateInput
	if !bindJSON(c, &in) {
		return
	}
	detail, err := h.svc.Create(c.Request.Context(), TenantID(c), UserID(c), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, detail)
}

type versionRequest struct {
	Note     string                 `json:"note"`
	Contents []couplet.ContentInput `json:"contents"`
}

// CreateVersion POST /admin/couplets/:id/versions
func (h *CoupletHandler) CreateVersion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req versionRequest
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.svc.CreateVersion(c.Request.Context(), TenantID(c), UserID(c), id, req.Note, req.Contents)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// Restore POST /admin/couplets/:id/versions/:number/restore
func (h *CoupletHandler) Restore(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	n, ok := versionNumber(c)
	if !ok {
		return
	}
	v, err := h.svc.Restore(c.Request.Context(), TenantID(c), UserID(c), id, n)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// Update PUT /admin/couplets/:id
func (h *CoupletHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in couplet.MetaInput
	if !bindJSON(c, &in) {
		return
	}
	cp, err := h.svc.UpdateMeta(c.Request.Context(), TenantID(c), id, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

// Delete DELETE /admin/couplets/:id
func (h *CoupletHandler) Delete(c *gin.Context) {
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

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contenthub/internal/model"
	"contenthub/internal/service/redeem"
	"contenthub/pkg/pagination"
)

type RedeemService interface {
	GenerateBatch(ctx context.Context, tenantID int64, in redeem.BatchInput) (*redeem.Batch, error)
	ListCodes(ctx context.Context, tenantID int64, f model.CodeFilter, p pagination.Params) (pagination.Page[*model.RedeemCode], error)
	UpdateCode(ctx context.Context, tenantID, id int64, in redeem.UpdateInput) (*model.RedeemCode, error)
	DeleteCode(ctx context.Context, tenantID, id int64) error
	Redeem(ctx context.Context, tenantID, userID int64, code string) (*model.RedeemResult, error)
}

type RedeemHandler struct {
	svc    RedeemService
	logger *zap.Logger
}

func NewRedeemHandler(svc RedeemService, logger *zap.Logger) *RedeemHandler {
	return &RedeemHandler{svc: svc, logger: logger}
}

// GenerateBatch POST /admin/redeem-codes
func (h *RedeemHandler) GenerateBatch(c *gin.Context) {
	var in redeem.BatchInput
	if !bindJSON(c, &in) {
		return
	}
	batch, err := h.svc.GenerateBatch(c.Request.Context(), TenantID(c), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

// ListCodes GET /admin/redeem-codes?batch_id=&status=
func (h *RedeemHandler) ListCodes(c *gin.Context) {
	f := model.CodeFilter{BatchID: c.Query("batch_id"), Status: c.Query("status")}
	page, err := h.svc.ListCodes(c.Request.Context(), TenantID(c), f, pageParams(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// UpdateCode PATCH /admin/redeem-codes/:id
func (h *RedeemHandler) UpdateCode(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in redeem.UpdateInput
	if !bindJSON(c, &in) {
		return
	}
	code, err := h.svc.UpdateCode(c.Request.Context(), TenantID(c), id, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, code)
}

// DeleteCode DELETE /admin/redeem-codes/:id
func (h *RedeemHandler) DeleteCode(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteCode(c.Request.Context(), TenantID(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type redeemRequest struct {
	Code string `json:"code"`
}

// Redeem POST /redeem
func (h *RedeemHandler) Redeem(c *gin.Context) {
	var req redeemRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Redeem(c.Request.Context(), TenantID(c), UserID(c), req.Code)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contenthub/internal/model"
	"contenthub/internal/service/auth"
	"contenthub/pkg/pagination"
)

type AuthService interface {
	Register(ctx context.Context, tenantID int64, in auth.RegisterInput) (*model.User, error)
	Login(ctx context.Context, tenantID int64, email, password string) (string, *model.User, error)
	Profile(ctx context.Context, tenantID, userID int64) (*model.Profile, error)
	VIP(ctx context.Context, tenantID, userID int64) (model.VIPStatus, error)
	Referrals(ctx context.Context, tenantID, userID int64, p pagination.Params) (pagination.Page[*model.Referral], error)
}

type AuthHandler struct {
	svc    AuthService
	logger *zap.Logger
}

func NewAuthHandler(svc AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// Register POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var in auth.RegisterInput
	if !bindJSON(c, &in) {
		return
	}

	u, err := h.svc.Register(c.Request.Context(), TenantID(c), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("User registered",
		zap.Int64("tenant_id", u.TenantID),
		zap.Int64("user_id", u.ID),
		zap.String("client_ip", c.ClientIP()),
	)
	c.JSON(http.StatusCreated, gin.H{"user": u})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	token, u, err := h.svc.Login(c.Request.Context(), TenantID(c), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": u})
}

// Me GET /me
func (h *AuthHandler) Me(c *gin.Context) {
	profile, err := h.svc.Profile(c.Request.Context(), TenantID(c), UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// VIP GET /me/vip
func (h *AuthHandler) VIP(c *gin.Context) {
	status, err := h.svc.VIP(c.Request.Context(), TenantID(c), UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Referrals GET /me/referrals
func (h *AuthHandler) Referrals(c *gin.Context) {
	page, err := h.svc.Referrals(c.Request.Context(), TenantID(c), UserID(c), pageParams(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

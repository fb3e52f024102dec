package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contenthub/internal/model"
	"contenthub/internal/service/points"
	"contenthub/pkg/pagination"
)

type PointsService interface {
	Summary(ctx context.Context, tenantID, userID int64) (*model.PointSummary, error)
	Transactions(ctx context.Context, tenantID, userID int64, p pagination.Params) (pagination.Page[*model.PointTransaction], error)
	Checkin(ctx context.Context, tenantID, userID int64) (*model.CheckinResult, error)
	Leaderboard(ctx context.Context, tenantID int64, n int) ([]*model.LeaderboardEntry, error)
	Adjust(ctx context.Context, tenantID, userID, delta int64, reason string) (*points.AwardResult, error)
}

type AchievementService interface {
	ListForUser(ctx context.Context, tenantID, userID int64) ([]*model.UserAchievement, error)
	List(ctx context.Context, tenantID int64) ([]*model.Achievement, error)
	Get(ctx context.Context, tenantID, id int64) (*model.Achievement, error)
	Create(ctx context.Context, a *model.Achievement) error
	Update(ctx context.Context, a *model.Achievement) error
	Delete(ctx context.Context, tenantID, id int64) error
}

// PointsHandler 积分、签到、排行榜与成就
type PointsHandler struct {
	points       PointsService
	achievements AchievementService
	logger       *zap.Logger
}

func NewPointsHandler(pointsSvc PointsService, achievements AchievementService, logger *zap.Logger) *PointsHandler {
	return &PointsHandler{points: pointsSvc, achievements: achievements, logger: logger}
}

// Summary GET /me/points
func (h *PointsHandler) Summary(c *gin.Context) {
	s, err := h.points.Summary(c.Request.Context(), TenantID(c), UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// Transactions GET /me/points/transactions
func (h *PointsHandler) Transactions(c *gin.Context) {
	page, err := h.points.Transactions(c.Request.Context(), TenantID(c), UserID(c), pageParams(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Checkin POST /me/checkin
func (h *PointsHandler) Checkin(c *gin.Context) {
	res, err := h.points.Checkin(c.Request.Context(), TenantID(c), UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Leaderboard GET /leaderboard?limit=
func (h *PointsHandler) Leaderboard(c *gin.Context) {
	n, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.points.Leaderboard(c.Request.Context(), TenantID(c), n)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}

type adjustRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

// Adjust POST /admin/users/:id/points
func (h *PointsHandler) Adjust(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req adjustRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.points.Adjust(c.Request.Context(), TenantID(c), userID, req.Delta, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info("Points adjusted by admin",
		zap.Int64("operator_id", UserID(c)),
		zap.Int64("user_id", userID),
		zap.Int64("delta", req.Delta),
	)
	c.JSON(http.StatusOK, res)
}

// MyAchievements GET /me/achievements
func (h *PointsHandler) MyAchievements(c *gin.Context) {
	items, err := h.achievements.ListForUser(c.Request.Context(), TenantID(c), UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ListAchievements GET /admin/achievements
func (h *PointsHandler) ListAchievements(c *gin.Context) {
	items, err := h.achievements.List(c.Request.Context(), TenantID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetAchievement GET /admin/achievements/:id
func (h *PointsHandler) GetAchievement(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	a, err := h.achievements.Get(c.Request.Context(), TenantID(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// CreateAchievement POST /admin/achievements
func (h *PointsHandler) CreateAchievement(c *gin.Context) {
	var a model.Achievement
	if !bindJSON(c, &a) {
		return
	}
	a.ID = 0
	a.TenantID = TenantID(c)
	if err := h.achievements.Create(c.Request.Context(), &a); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// UpdateAchievement PUT /admin/achievements/:id
func (h *PointsHandler) UpdateAchievement(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var a model.Achievement
	if !bindJSON(c, &a) {
		return
	}
	a.ID = id
	a.TenantID = TenantID(c)
	if err := h.achievements.Update(c.Request.Context(), &a); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// DeleteAchievement DELETE /admin/achievements/:id
func (h *PointsHandler) DeleteAchievement(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.achievements.Delete(c.Request.Context(), TenantID(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

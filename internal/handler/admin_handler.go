package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contenthub/pkg/outbox"
)

type OutboxReplayer interface {
	ListFailed(ctx context.Context, tenantID int64, limit int) ([]*outbox.Event, error)
	Replay(ctx context.Context, tenantID, eventID int64) (*outbox.Event, error)
	ReplayFailed(ctx context.Context, tenantID int64, limit int) (int64, error)
}

// AdminHandler outbox 失败事件的查看与重放
type AdminHandler struct {
	replayer OutboxReplayer
	logger   *zap.Logger
}

func NewAdminHandler(replayer OutboxReplayer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{replayer: replayer, logger: logger}
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		return 100
	}
	return limit
}

// ListFailedEvents GET /admin/outbox/failed?limit=
func (h *AdminHandler) ListFailedEvents(c *gin.Context) {
	events, err := h.replayer.ListFailed(c.Request.Context(), TenantID(c), queryLimit(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": events})
}

// ReplayOutboxEvent POST /admin/outbox/:id/replay
func (h *AdminHandler) ReplayOutboxEvent(c *gin.Context) {
	eventID, ok := paramID(c, "id")
	if !ok {
		return
	}

	event, err := h.replayer.Replay(c.Request.Context(), TenantID(c), eventID)
	if err != nil {
		h.logger.Warn("Failed to replay event",
			zap.Int64("event_id", eventID),
			zap.Error(err),
		)
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "requeued",
		"event":  event,
	})
}

// ReplayFailedEvents POST /admin/outbox/replay-failed?limit=100
func (h *AdminHandler) ReplayFailedEvents(c *gin.Context) {
	limit := queryLimit(c)
	count, err := h.replayer.ReplayFailed(c.Request.Context(), TenantID(c), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Failed events requeued",
		zap.Int64("tenant_id", TenantID(c)),
		zap.Int64("count", count),
	)
	c.JSON(http.StatusOK, gin.H{
		"status":   "completed",
		"requeued": count,
		"limit":    limit,
	})
}

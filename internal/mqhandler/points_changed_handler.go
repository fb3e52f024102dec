package mqhandler

import (
	"context"

	"go.uber.org/zap"

	"contenthub/contracts/events"
	"contenthub/pkg/logger"
	"contenthub/pkg/mq"
)

type LeaderboardSyncer interface {
	SyncLeaderboard(ctx context.Context, tenantID, userID, total int64)
}

// PointsChangedHandler 积分变动后刷新排行榜并检查成就
type PointsChangedHandler struct {
	achievements AchievementChecker
	board        LeaderboardSyncer
	deduper      Deduplicator
	logger       *zap.Logger
}

func NewPointsChangedHandler(achievements AchievementChecker, board LeaderboardSyncer, deduper Deduplicator, logger *zap.Logger) *PointsChangedHandler {
	return &PointsChangedHandler{
		achievements: achievements,
		board:        board,
		deduper:      deduper,
		logger:       logger,
	}
}

func (h *PointsChangedHandler) Handle(ctx context.Context, msg mq.Message) error {
	var p events.PointsChangedPayload
	if err := decode(msg, &p); err != nil {
		return err
	}

	return runOnce(ctx, h.deduper, "points_changed", dedupeKey(msg, p.EventID), h.logger, func() error {
		h.board.SyncLeaderboard(ctx, p.TenantID, p.UserID, p.NewTotal)

		unlocked, err := h.achievements.CheckAndUnlock(ctx, p.TenantID, p.UserID)
		if err != nil {
			return err
		}

		log := logger.WithTrace(ctx, h.logger)
		if p.LevelUp() {
			log.Info("User leveled up",
				zap.Int64("tenant_id", p.TenantID),
				zap.Int64("user_id", p.UserID),
				zap.Int("old_level", p.OldLevel),
				zap.Int("new_level", p.NewLevel),
			)
		}
		log.Debug("Points change processed",
			zap.Int64("user_id", p.UserID),
			zap.Int64("delta", p.Delta),
			zap.Int("unlocked", len(unlocked)),
		)
		return nil
	})
}

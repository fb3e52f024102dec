package mqhandler

import (
	"context"

	"go.uber.org/zap"

	"contenthub/contracts/events"
	"contenthub/pkg/mq"
)

// UserRegisteredHandler 新用户与其邀请人都可能解锁成就
type UserRegisteredHandler struct {
	achievements AchievementChecker
	deduper      Deduplicator
	logger       *zap.Logger
}

func NewUserRegisteredHandler(achievements AchievementChecker, deduper Deduplicator, logger *zap.Logger) *UserRegisteredHandler {
	return &UserRegisteredHandler{
		achievements: achievements,
		deduper:      deduper,
		logger:       logger,
	}
}

func (h *UserRegisteredHandler) Handle(ctx context.Context, msg mq.Message) error {
	var p events.UserRegisteredPayload
	if err := decode(msg, &p); err != nil {
		return err
	}

	return runOnce(ctx, h.deduper, "user_registered", dedupeKey(msg, p.EventID), h.logger, func() error {
		if _, err := h.achievements.CheckAndUnlock(ctx, p.TenantID, p.UserID); err != nil {
			return err
		}
		if p.ReferredBy != nil {
			if _, err := h.achievements.CheckAndUnlock(ctx, p.TenantID, *p.ReferredBy); err != nil {
				return err
			}
		}
		return nil
	})
}

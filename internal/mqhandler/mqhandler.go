package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"contenthub/internal/model"
	"contenthub/pkg/logger"
	"contenthub/pkg/mq"
	"contenthub/pkg/util"
)

// Deduplicator 由 util.Deduper 实现
type Deduplicator interface {
	AcquireOnce(ctx context.Context, handler, messageID string) bool
	Release(ctx context.Context, handler, messageID string)
}

type AchievementChecker interface {
	CheckAndUnlock(ctx context.Context, tenantID, userID int64) ([]*model.Achievement, error)
}

// decode 消息体格式错误不可重试，直接进死信队列
func decode(msg mq.Message, v any) error {
	if err := json.Unmarshal(msg.Body, v); err != nil {
		return util.Permanent(fmt.Errorf("decode %s: %w", msg.RoutingKey, err))
	}
	return nil
}

// dedupeKey 优先用消息 ID，旧消息没有时退回事件 ID
func dedupeKey(msg mq.Message, eventID string) string {
	if msg.ID != "" {
		return msg.ID
	}
	return eventID
}

// runOnce 同一条消息对同一个 handler 只处理一次；失败时释放锁让重投递可以再次处理
func runOnce(ctx context.Context, d Deduplicator, handler, key string, log *zap.Logger, fn func() error) error {
	if key != "" && !d.AcquireOnce(ctx, handler, key) {
		return nil
	}
	if err := fn(); err != nil {
		if key != "" {
			d.Release(ctx, handler, key)
		}
		logger.WithTrace(ctx, log).Error("Message handling failed",
			zap.String("handler", handler),
			zap.String("message_id", key),
			zap.Error(err),
		)
		return err
	}
	return nil
}

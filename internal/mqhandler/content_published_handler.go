package mqhandler

import (
	"context"

	"go.uber.org/zap"

	"contenthub/contracts/events"
	"contenthub/pkg/logger"
	"contenthub/pkg/metrics"
	"contenthub/pkg/mq"
)

type ContentPublishedHandler struct {
	deduper Deduplicator
	logger  *zap.Logger
}

func NewContentPublishedHandler(deduper Deduplicator, logger *zap.Logger) *ContentPublishedHandler {
	return &ContentPublishedHandler{deduper: deduper, logger: logger}
}

// Handle 记录发布日志与计数
func (h *ContentPublishedHandler) Handle(ctx context.Context, msg mq.Message) error {
	var p events.ContentPublishedPayload
	if err := decode(msg, &p); err != nil {
		return err
	}

	return runOnce(ctx, h.deduper, "content_published", dedupeKey(msg, p.EventID), h.logger, func() error {
		metrics.IncrementContentPublished(p.ContentType)
		logger.WithTrace(ctx, h.logger).Info("Content published",
			zap.Int64("tenant_id", p.TenantID),
			zap.String("content_type", p.ContentType),
			zap.Int64("content_id", p.ContentID),
			zap.String("slug", p.Slug),
			zap.String("title", p.Title),
			zap.Int64("published_by", p.PublishedBy),
		)
		return nil
	})
}

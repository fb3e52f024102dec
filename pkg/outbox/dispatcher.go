package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"contenthub/pkg/circuitbreaker"
	"contenthub/pkg/metrics"
	"contenthub/pkg/trace"
)

// Publisher mq.Publisher 满足该接口
type Publisher interface {
	PublishRaw(ctx context.Context, routingKey, messageID string, body []byte) error
}

// Store Dispatcher 需要的 outbox 读写
type Store interface {
	PendingEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkSent(ctx context.Context, eventID int64) error
	MarkFailed(ctx context.Context, eventID int64, maxRetries int) (string, error)
}

type DispatcherConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	return c
}

// Dispatcher 轮询 outbox 并发布到 MQ
type Dispatcher struct {
	store     Store
	publisher Publisher
	breaker   *circuitbreaker.Breaker
	cfg       DispatcherConfig
	logger    *zap.Logger
}

func NewDispatcher(store Store, publisher Publisher, breaker *circuitbreaker.Breaker, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.DefaultConfig())
	}
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		breaker:   breaker,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Start 阻塞运行直到 ctx 结束
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting Outbox Dispatcher",
		zap.Int("max_retries", d.cfg.MaxRetries),
		zap.Duration("interval", d.cfg.Interval),
		zap.Int("batch_size", d.cfg.BatchSize),
	)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox Dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.RunOnce(ctx); err != nil {
				d.logger.Error("Failed to dispatch outbox events", zap.Error(err))
			}
		}
	}
}

// RunOnce 处理一批到期事件，返回成功发送的数量
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	if d.breaker.State() == circuitbreaker.StateOpen {
		return 0, nil
	}

	events, err := d.store.PendingEvents(ctx, d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return sent, nil
		}

		err := d.breaker.Execute(func() error {
			return d.publish(ctx, event)
		})
		if errors.Is(err, circuitbreaker.ErrOpen) {
			// broker 不可用，本批剩余事件留给下一轮
			d.logger.Warn("Circuit breaker open, pausing dispatch", zap.Int64("event_id", event.ID))
			return sent, nil
		}
		if err != nil {
			d.handleFailure(ctx, event, err)
			continue
		}

		if err := d.store.MarkSent(ctx, event.ID); err != nil {
			d.logger.Error("Failed to mark event as sent",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		metrics.IncrementOutboxPublish(event.RoutingKey, StatusSent)
		sent++
	}
	return sent, nil
}

func (d *Dispatcher) publish(ctx context.Context, event *Event) error {
	ctx = withPayloadTrace(ctx, event.Payload)
	return d.publisher.PublishRaw(ctx, event.RoutingKey, event.MessageID(), event.Payload)
}

func (d *Dispatcher) handleFailure(ctx context.Context, event *Event, publishErr error) {
	status, err := d.store.MarkFailed(ctx, event.ID, d.cfg.MaxRetries)
	if err != nil {
		d.logger.Error("Failed to mark event as failed",
			zap.Int64("event_id", event.ID),
			zap.Error(err),
		)
		return
	}

	result := "retry"
	if status == StatusFailed {
		result = StatusFailed
	}
	metrics.IncrementOutboxPublish(event.RoutingKey, result)
	d.logger.Error("Failed to publish event",
		zap.Int64("event_id", event.ID),
		zap.String("routing_key", event.RoutingKey),
		zap.String("status", status),
		zap.Error(publishErr),
	)
}

// withPayloadTrace 从 payload 的 trace_id 字段恢复链路
func withPayloadTrace(ctx context.Context, payload json.RawMessage) context.Context {
	var head struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.TraceID == "" {
		return ctx
	}
	return trace.WithContext(ctx, head.TraceID)
}

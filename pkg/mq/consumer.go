package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"contenthub/pkg/metrics"
	"contenthub/pkg/trace"
	"contenthub/pkg/util"
)

type MessageHandler func(ctx context.Context, msg Message) error

// RetryTracker 记录消息的失败次数（Redis 实现为 util.RetryCounter）
type RetryTracker interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type ConsumerOptions struct {
	Exchange   string
	Queue      string
	RoutingKey string
	// MaxRetries 可重试错误的最大重投次数，超过后进入死信队列
	MaxRetries int64
	Prefetch   int
	Retries    RetryTracker
}

type Consumer struct {
	opts    ConsumerOptions
	conn    *amqp091.Connection
	channel *amqp091.Channel
	handler MessageHandler
	logger  *zap.Logger

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewConsumer creates a consumer bound to one routing key, with a dead letter queue.
func NewConsumer(url string, opts ConsumerOptions, logger *zap.Logger) (*Consumer, error) {
	opts.Exchange = exchangeOrDefault(opts.Exchange)
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 10
	}

	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	closeAll := func() {
		ch.Close()
		conn.Close()
	}

	if err := DeclareExchange(ch, opts.Exchange); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := DeclareDLQ(ch, opts.Exchange, opts.Queue, opts.RoutingKey); err != nil {
		closeAll()
		return nil, err
	}

	q, err := ch.QueueDeclare(
		opts.Queue,
		true,
		false,
		false,
		false,
		amqp091.Table{
			"x-dead-letter-exchange":    DLQExchangeName(opts.Exchange),
			"x-dead-letter-routing-key": opts.RoutingKey,
		},
	)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, opts.RoutingKey, opts.Exchange, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	if err := ch.Qos(opts.Prefetch, 0, false); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", opts.RoutingKey),
		zap.String("queue", opts.Queue),
		zap.String("exchange", opts.Exchange),
	)

	return &Consumer{
		opts:    opts,
		conn:    conn,
		channel: ch,
		logger:  logger,
		stopped: make(chan struct{}),
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// IsConnected 供 readyz 使用
func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Stop 停止消费并关闭连接，可重复调用
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopped)
		if c.channel != nil {
			_ = c.channel.Close()
		}
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// Start 阻塞消费直到 ctx 结束、Stop 被调用或连接断开
func (c *Consumer) Start(ctx context.Context) error {
	if c.handler == nil {
		return errors.New("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.opts.Queue,
		"",
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.opts.RoutingKey),
		zap.String("queue", c.opts.Queue),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopped:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				select {
				case <-c.stopped:
					return nil
				default:
					return errors.New("delivery channel closed")
				}
			}
			c.process(ctx, d)
		}
	}
}

// process 保证每条消息都会被 ack 或 nack
func (c *Consumer) process(ctx context.Context, d amqp091.Delivery) {
	start := time.Now()
	msg := fromDelivery(d)
	if msg.TraceID != "" {
		ctx = trace.WithContext(ctx, msg.TraceID)
	}
	log := c.logger.With(
		zap.String("routing_key", c.opts.RoutingKey),
		zap.String("queue", c.opts.Queue),
		zap.String("message_id", msg.ID),
		zap.String("trace_id", msg.TraceID),
	)

	err := c.safeHandle(ctx, msg)
	metrics.RecordMQConsumeLatency(c.opts.RoutingKey, c.opts.Queue, time.Since(start))

	if err == nil {
		c.resetRetries(ctx, msg.ID)
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("Failed to ack message", zap.Error(ackErr))
		}
		return
	}

	attempts := c.countAttempt(ctx, msg.ID)
	action, kind := decide(err, attempts, c.opts.MaxRetries)
	log.Error("Handler error",
		zap.Error(err),
		zap.String("error_type", kind),
		zap.Int64("attempt", attempts),
		zap.String("action", action.String()),
	)

	requeue := action == actionRequeue
	if !requeue {
		c.resetRetries(ctx, msg.ID)
	}
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		log.Error("Failed to nack message", zap.Error(nackErr))
	}
}

func (c *Consumer) safeHandle(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.handler(ctx, msg)
}

func (c *Consumer) countAttempt(ctx context.Context, messageID string) int64 {
	if c.opts.Retries == nil || messageID == "" {
		return 1
	}
	n, err := c.opts.Retries.IncrementAndGet(ctx, util.FormatRetryKey(c.opts.Queue, messageID))
	if err != nil {
		// 计数失败时按首次处理，最坏情况是多重试几次
		return 1
	}
	return n
}

func (c *Consumer) resetRetries(ctx context.Context, messageID string) {
	if c.opts.Retries == nil || messageID == "" {
		return
	}
	_ = c.opts.Retries.Reset(ctx, util.FormatRetryKey(c.opts.Queue, messageID))
}

type action int

const (
	actionRequeue action = iota
	actionDeadLetter
)

func (a action) String() string {
	if a == actionRequeue {
		return "requeue"
	}
	return "dead_letter"
}

// decide 可重试错误在次数内重新入队，其余进入死信队列
func decide(err error, attempts, maxRetries int64) (action, string) {
	retryable, kind := util.IsRetryableError(err)
	if util.ShouldRetry(attempts, maxRetries, retryable) {
		return actionRequeue, kind
	}
	return actionDeadLetter, kind
}

package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 限流范围
const (
	ScopeGlobal = "global"
	ScopeUser   = "user"
	ScopeLogin  = "login"
)

// Result contains the result of a rate limit check
type Result struct {
	Allowed           bool  // Whether the request is allowed
	CurrentCount      int64 // Current count in the window
	Limit             int64 // The limit that was checked
	RetryAfterSeconds int64 // Seconds until the window resets (0 if allowed)
}

// Counter 固定窗口计数器：递增并返回当前计数与窗口剩余时间
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisCounter INCR + EXPIRE NX 在同一个事务管道内完成
type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return incr.Val(), ttl.Val(), nil
}

// Limiter 固定窗口限流
type Limiter struct {
	counter Counter
	logger  *zap.Logger
}

func NewLimiter(counter Counter, logger *zap.Logger) *Limiter {
	return &Limiter{counter: counter, logger: logger}
}

// Allow 对 scope+id 计数；limit <= 0 表示不限流
func (l *Limiter) Allow(ctx context.Context, scope, id string, limit int64, window time.Duration) (*Result, error) {
	if limit <= 0 {
		return &Result{Allowed: true, Limit: limit}, nil
	}

	key := fmt.Sprintf("rate_limit:%s:%s", scope, id)
	count, ttl, err := l.counter.Incr(ctx, key, window)
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	result := &Result{
		Allowed:      count <= limit,
		CurrentCount: count,
		Limit:        limit,
	}
	if !result.Allowed {
		if ttl <= 0 {
			ttl = window
		}
		result.RetryAfterSeconds = int64(math.Ceil(ttl.Seconds()))
		l.logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("current", count),
			zap.Int64("limit", limit),
			zap.Int64("retry_after", result.RetryAfterSeconds),
		)
	}
	return result, nil
}

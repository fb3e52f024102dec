package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 慢查询计数
	DBSlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"command"},
	)

	// 慢查询耗时（秒）
	DBSlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12s
		},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// Outbox 发布结果
	OutboxPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_count",
			Help: "Outbox events publish attempts by result",
		},
		[]string{"routing_key", "result"}, // result: sent, retry, failed
	)

	// 积分变动
	PointsAwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_changed_total",
			Help: "Absolute sum of point deltas applied, by reason and direction",
		},
		[]string{"reason", "direction"}, // direction: earn, spend
	)

	// 成就解锁
	AchievementUnlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "achievement_unlocked_count",
			Help: "Total number of achievements unlocked",
		},
		[]string{"condition_type"},
	)

	// 兑换码兑换
	RedeemCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redeem_count",
			Help: "Redeem attempts by result",
		},
		[]string{"result"},
	)

	// 限流拒绝
	RateLimitRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejected_count",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"scope"}, // scope: global, user, login
	)

	// 内容发布
	ContentPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_published_count",
			Help: "Content publish events consumed",
		},
		[]string{"content_type"},
	)
)

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录一次慢查询
func IncrementSlowQuery(command string, duration time.Duration) {
	DBSlowQueryCount.WithLabelValues(command).Inc()
	DBSlowQueryDuration.Observe(duration.Seconds())
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// IncrementOutboxPublish 记录 outbox 发布结果
func IncrementOutboxPublish(routingKey, result string) {
	OutboxPublishCount.WithLabelValues(routingKey, result).Inc()
}

// AddPoints 记录积分变动
func AddPoints(reason string, delta int64) {
	if delta < 0 {
		PointsAwarded.WithLabelValues(reason, "spend").Add(float64(-delta))
		return
	}
	PointsAwarded.WithLabelValues(reason, "earn").Add(float64(delta))
}

// IncrementAchievementUnlocked 记录成就解锁
func IncrementAchievementUnlocked(conditionType string) {
	AchievementUnlocked.WithLabelValues(conditionType).Inc()
}

// IncrementRedeem 记录兑换结果
func IncrementRedeem(result string) {
	RedeemCount.WithLabelValues(result).Inc()
}

// IncrementRateLimitRejected 记录限流拒绝
func IncrementRateLimitRejected(scope string) {
	RateLimitRejected.WithLabelValues(scope).Inc()
}

// IncrementContentPublished 记录内容发布事件
func IncrementContentPublished(contentType string) {
	ContentPublished.WithLabelValues(contentType).Inc()
}

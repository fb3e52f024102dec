package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"contenthub/pkg/db"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// RetryStep 第 n 次失败后等待 n*RetryStep 再重试
const RetryStep = 5 * time.Second

var ErrEventNotFound = errors.New("outbox event not found")

// Event outbox_events 表中的一行
type Event struct {
	ID            int64           `json:"id"`
	TenantID      *int64          `json:"tenant_id,omitempty"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   *int64          `json:"aggregate_id,omitempty"`
	RoutingKey    string          `json:"routing_key"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	RetryCount    int             `json:"retry_count"`
	NextRetryAt   *time.Time      `json:"next_retry_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MessageID 同一事件的每次投递使用相同的消息 ID，消费端据此去重
func (e *Event) MessageID() string {
	return fmt.Sprintf("outbox-%d", e.ID)
}

type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	return &Repository{pool: pool, logger: logger}
}

// EnqueueFunc 与 Enqueue 同签名
type EnqueueFunc func(ctx context.Context, q db.Querier, tenantID int64, aggregateType string, aggregateID int64, routingKey string, payload any) (*Event, error)

var _ EnqueueFunc = Enqueue

// Enqueue 序列化 payload 并写入 outbox，q 必须是业务写入所在的事务
func Enqueue(ctx context.Context, q db.Querier, tenantID int64, aggregateType string, aggregateID int64, routingKey string, payload any) (*Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}

	e := &Event{
		AggregateType: aggregateType,
		RoutingKey:    routingKey,
		Payload:       body,
		Status:        StatusPending,
	}
	if tenantID > 0 {
		e.TenantID = &tenantID
	}
	if aggregateID > 0 {
		e.AggregateID = &aggregateID
	}

	err = q.QueryRow(ctx, `
		INSERT INTO outbox_events (tenant_id, aggregate_type, aggregate_id, routing_key, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, e.TenantID, e.AggregateType, e.AggregateID, e.RoutingKey, e.Payload, e.Status,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return e, nil
}

const eventColumns = `id, tenant_id, aggregate_type, aggregate_id, routing_key, payload, status,
		       retry_count, next_retry_at, created_at, updated_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(
		&e.ID,
		&e.TenantID,
		&e.AggregateType,
		&e.AggregateID,
		&e.RoutingKey,
		&e.Payload,
		&e.Status,
		&e.RetryCount,
		&e.NextRetryAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]*Event, error) {
	defer rows.Close()
	events := make([]*Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// PendingEvents 返回到期待发送的事件，按创建顺序
func (r *Repository) PendingEvents(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM outbox_events
		WHERE status = 'pending'
		AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	return collectEvents(rows)
}

func (r *Repository) MarkSent(ctx context.Context, eventID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'sent', next_retry_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event as sent: %w", err)
	}
	return nil
}

// MarkFailed 增加重试次数；达到 maxRetries 后置为 failed，否则按线性退避重新排期。返回新状态
func (r *Repository) MarkFailed(ctx context.Context, eventID int64, maxRetries int) (string, error) {
	var status string
	err := r.pool.QueryRow(ctx, `
		UPDATE outbox_events
		SET retry_count = retry_count + 1,
		    status = CASE WHEN retry_count + 1 >= $2 THEN 'failed' ELSE 'pending' END,
		    next_retry_at = CASE WHEN retry_count + 1 >= $2 THEN NULL
		                         ELSE NOW() + make_interval(secs => ((retry_count + 1) * $3::int)::double precision) END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING status
	`, eventID, maxRetries, int(RetryStep/time.Second)).Scan(&status)
	if err != nil {
		if db.IsNoRows(err) {
			return "", ErrEventNotFound
		}
		return "", fmt.Errorf("failed to mark event as failed: %w", err)
	}
	return status, nil
}

func (r *Repository) GetEvent(ctx context.Context, tenantID, eventID int64) (*Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM outbox_events
		WHERE id = $1 AND tenant_id = $2
	`, eventID, tenantID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// FailedEvents 管理端查看失败事件，最新的在前
func (r *Repository) FailedEvents(ctx context.Context, tenantID int64, limit int) ([]*Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM outbox_events
		WHERE status = 'failed' AND tenant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed events: %w", err)
	}
	return collectEvents(rows)
}

// Requeue 把失败事件重置为 pending，下一轮由 Dispatcher 发送
func (r *Repository) Requeue(ctx context.Context, tenantID, eventID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'pending', retry_count = 0, next_retry_at = NULL, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status = 'failed'
	`, eventID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to requeue event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// RequeueFailed 重置租户下最多 limit 条失败事件，返回数量
func (r *Repository) RequeueFailed(ctx context.Context, tenantID int64, limit int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'pending', retry_count = 0, next_retry_at = NULL, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = 'failed' AND tenant_id = $1
			ORDER BY created_at ASC
			LIMIT $2
		)
	`, tenantID, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue failed events: %w", err)
	}
	r.logger.Info("Requeued failed outbox events",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("count", tag.RowsAffected()),
	)
	return tag.RowsAffected(), nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"contenthub/internal/model"
	"contenthub/pkg/db"
	"contenthub/pkg/pagination"
)

var ErrAlreadyCheckedIn = errors.New("already checked in today")

type PointsRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPointsRepository(pool *pgxpool.Pool, logger *zap.Logger) *PointsRepository {
	return &PointsRepository{pool: pool, logger: logger}
}

func (r *PointsRepository) InsertTransaction(ctx context.Context, q db.Querier, t *model.PointTransaction) error {
	err := q.QueryRow(ctx, `
		INSERT INTO point_transactions (tenant_id, user_id, delta, reason, ref_type, ref_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, t.TenantID, t.UserID, t.Delta, t.Reason, t.RefType, t.RefID).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert point transaction",
			zap.Int64("user_id", t.UserID),
			zap.Int64("delta", t.Delta),
			zap.Error(err),
		)
		return fmt.Errorf("insert point transaction: %w", err)
	}
	return nil
}

// LockSummary 确保汇总行存在并加锁，返回当前积分和等级
func (r *PointsRepository) LockSummary(ctx context.Context, q db.Querier, tenantID, userID int64) (int64, int, error) {
	if _, err := q.Exec(ctx, `
		INSERT INTO point_summaries (tenant_id, user_id) VALUES ($1, $2)
		ON CONFLICT (tenant_id, user_id) DO NOTHING
	`, tenantID, userID); err != nil {
		return 0, 0, fmt.Errorf("ensure point summary: %w", err)
	}

	var total int64
	var level int
	if err := q.QueryRow(ctx, `
		SELECT total_points, level FROM point_summaries
		WHERE tenant_id = $1 AND user_id = $2
		FOR UPDATE
	`, tenantID, userID).Scan(&total, &level); err != nil {
		return 0, 0, fmt.Errorf("lock point summary: %w", err)
	}
	return total, level, nil
}

func (r *PointsRepository) UpdateSummary(ctx context.Context, q db.Querier, tenantID, userID, total int64, level int) error {
	_, err := q.Exec(ctx, `
		UPDATE point_summaries SET total_points = $3, level = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID, total, level)
	if err != nil {
		return fmt.Errorf("update point summary: %w", err)
	}
	return nil
}

// GetSummary 没有积分记录的用户返回零值汇总
func (r *PointsRepository) GetSummary(ctx context.Context, tenantID, userID int64) (*model.PointSummary, error) {
	s := &model.PointSummary{TenantID: tenantID, UserID: userID, Level: 1}
	err := r.pool.QueryRow(ctx, `
		SELECT total_points, level, updated_at FROM point_summaries
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID).Scan(&s.TotalPoints, &s.Level, &s.UpdatedAt)
	if err != nil && !db.IsNoRows(err) {
		return nil, fmt.Errorf("get point summary: %w", err)
	}
	return s, nil
}

func (r *PointsRepository) ListTransactions(ctx context.Context, tenantID, userID int64, p pagination.Params) ([]*model.PointTransaction, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM point_transactions WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, delta, reason, ref_type, ref_id, created_at
		FROM point_transactions
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, tenantID, userID, p.Limit(), p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*model.PointTransaction
	for rows.Next() {
		var t model.PointTransaction
		if err := rows.Scan(&t.ID, &t.TenantID, &t.UserID, &t.Delta, &t.Reason, &t.RefType, &t.RefID, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &t)
	}
	return out, total, rows.Err()
}

// LastCheckin 最近一次签到，没有时返回 nil
func (r *PointsRepository) LastCheckin(ctx context.Context, q db.Querier, userID int64) (*model.Checkin, error) {
	var c model.Checkin
	err := q.QueryRow(ctx, `
		SELECT user_id, day, streak FROM checkins WHERE user_id = $1 ORDER BY day DESC LIMIT 1
	`, userID).Scan(&c.UserID, &c.Day, &c.Streak)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("last checkin: %w", err)
	}
	return &c, nil
}

func (r *PointsRepository) InsertCheckin(ctx context.Context, q db.Querier, userID int64, day time.Time, streak int) error {
	_, err := q.Exec(ctx, `
		INSERT INTO checkins (user_id, day, streak) VALUES ($1, $2, $3)
	`, userID, day, streak)
	if err != nil {
		if db.IsUniqueViolation(err, "checkins_pkey") {
			return ErrAlreadyCheckedIn
		}
		return fmt.Errorf("insert checkin: %w", err)
	}
	return nil
}

// TopSummaries Redis 排行榜不可用时的回退
func (r *PointsRepository) TopSummaries(ctx context.Context, tenantID int64, limit int) ([]*model.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.user_id, u.nickname, s.total_points, s.level
		FROM point_summaries s
		JOIN users u ON u.id = s.user_id
		WHERE s.tenant_id = $1
		ORDER BY s.total_points DESC, s.user_id ASC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("top summaries: %w", err)
	}
	defer rows.Close()

	out := make([]*model.LeaderboardEntry, 0)
	for rows.Next() {
		e := model.LeaderboardEntry{Rank: len(out) + 1}
		if err := rows.Scan(&e.UserID, &e.Nickname, &e.TotalPoints, &e.Level); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

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
)

var ErrAchievementCodeTaken = errors.New("achievement code already exists")

type AchievementRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewAchievementRepository(pool *pgxpool.Pool, logger *zap.Logger) *AchievementRepository {
	return &AchievementRepository{pool: pool, logger: logger}
}

const achievementColumns = `a.id, a.tenant_id, a.code, a.name, a.description, a.condition_type, a.threshold, a.reward_points, a.active, a.created_at`

func scanAchievement(row rowScanner, extra ...any) (*model.Achievement, error) {
	var a model.Achievement
	dest := append([]any{
		&a.ID,
		&a.TenantID,
		&a.Code,
		&a.Name,
		&a.Description,
		&a.ConditionType,
		&a.Threshold,
		&a.RewardPoints,
		&a.Active,
		&a.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *AchievementRepository) List(ctx context.Context, tenantID int64) ([]*model.Achievement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+achievementColumns+` FROM achievements a WHERE a.tenant_id = $1 ORDER BY a.id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()
	out := make([]*model.Achievement, 0)
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AchievementRepository) Get(ctx context.Context, tenantID, id int64) (*model.Achievement, error) {
	a, err := scanAchievement(r.pool.QueryRow(ctx, `
		SELECT `+achievementColumns+` FROM achievements a WHERE a.tenant_id = $1 AND a.id = $2
	`, tenantID, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get achievement %d: %w", id, err)
	}
	return a, err
}

func (r *AchievementRepository) Create(ctx context.Context, a *model.Achievement) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO achievements (tenant_id, code, name, description, condition_type, threshold, reward_points, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, a.TenantID, a.Code, a.Name, a.Description, a.ConditionType, a.Threshold, a.RewardPoints, a.Active,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "achievements_tenant_code_key") {
			return ErrAchievementCodeTaken
		}
		return fmt.Errorf("create achievement: %w", err)
	}
	r.logger.Info("Achievement created", zap.Int64("achievement_id", a.ID), zap.String("code", a.Code))
	return nil
}

func (r *AchievementRepository) Update(ctx context.Context, a *model.Achievement) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE achievements
		SET code = $3, name = $4, description = $5, condition_type = $6, threshold = $7, reward_points = $8, active = $9
		WHERE tenant_id = $1 AND id = $2
	`, a.TenantID, a.ID, a.Code, a.Name, a.Description, a.ConditionType, a.Threshold, a.RewardPoints, a.Active)
	if err != nil {
		if db.IsUniqueViolation(err, "achievements_tenant_code_key") {
			return ErrAchievementCodeTaken
		}
		return fmt.Errorf("update achievement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AchievementRepository) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM achievements WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete achievement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLocked 用户尚未解锁的有效成就
func (r *AchievementRepository) ListLocked(ctx context.Context, q db.Querier, tenantID, userID int64) ([]*model.Achievement, error) {
	rows, err := q.Query(ctx, `
		SELECT `+achievementColumns+`
		FROM achievements a
		WHERE a.tenant_id = $1 AND a.active
		AND NOT EXISTS (SELECT 1 FROM user_achievements ua WHERE ua.achievement_id = a.id AND ua.user_id = $2)
		ORDER BY a.id
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list locked achievements: %w", err)
	}
	defer rows.Close()
	var out []*model.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Unlock 返回是否为本次新解锁（并发重复解锁时为 false）
func (r *AchievementRepository) Unlock(ctx context.Context, q db.Querier, userID, achievementID int64) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, achievementID)
	if err != nil {
		return false, fmt.Errorf("unlock achievement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListForUser 全部有效成就及该用户的解锁状态
func (r *AchievementRepository) ListForUser(ctx context.Context, tenantID, userID int64) ([]*model.UserAchievement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+achievementColumns+`, ua.unlocked_at
		FROM achievements a
		LEFT JOIN user_achievements ua ON ua.achievement_id = a.id AND ua.user_id = $2
		WHERE a.tenant_id = $1 AND a.active
		ORDER BY a.id
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list user achievements: %w", err)
	}
	defer rows.Close()
	out := make([]*model.UserAchievement, 0)
	for rows.Next() {
		var unlockedAt *time.Time
		a, err := scanAchievement(rows, &unlockedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, &model.UserAchievement{
			Achievement: *a,
			Unlocked:    unlockedAt != nil,
			UnlockedAt:  unlockedAt,
		})
	}
	return out, rows.Err()
}

// Stats 汇总成就判定所需的统计；签到连续天数只在最近一次签到为今天或昨天时有效
func (r *AchievementRepository) Stats(ctx context.Context, q db.Querier, tenantID, userID int64, today time.Time) (*model.UserStats, error) {
	s := &model.UserStats{Level: 1}
	var lastDay *time.Time
	var lastStreak *int
	err := q.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT total_points FROM point_summaries WHERE tenant_id = $1 AND user_id = $2), 0),
			COALESCE((SELECT level FROM point_summaries WHERE tenant_id = $1 AND user_id = $2), 1),
			(SELECT COUNT(*) FROM episode_reads WHERE user_id = $2),
			(SELECT COUNT(*) FROM users WHERE tenant_id = $1 AND referred_by = $2),
			(SELECT COUNT(*) FROM redeem_records WHERE user_id = $2),
			(SELECT day FROM checkins WHERE user_id = $2 ORDER BY day DESC LIMIT 1),
			(SELECT streak FROM checkins WHERE user_id = $2 ORDER BY day DESC LIMIT 1)
	`, tenantID, userID).Scan(&s.TotalPoints, &s.Level, &s.EpisodesRead, &s.Referrals, &s.RedeemCount, &lastDay, &lastStreak)
	if err != nil {
		return nil, fmt.Errorf("load user stats: %w", err)
	}

	if lastDay != nil && lastStreak != nil {
		yesterday := today.AddDate(0, 0, -1)
		if !lastDay.Before(yesterday) {
			s.CheckinStreak = *lastStreak
		}
	}
	return s, nil
}

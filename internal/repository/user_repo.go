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

// ErrReferralCodeTaken 生成的邀请码撞库，调用方重新生成即可
var ErrReferralCodeTaken = fmt.Errorf("referral code taken: %w", ErrDuplicate)

type UserRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewUserRepository(pool *pgxpool.Pool, logger *zap.Logger) *UserRepository {
	return &UserRepository{pool: pool, logger: logger}
}

const userColumns = `id, tenant_id, email, password_hash, nickname, referral_code, referred_by, vip_expires_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.TenantID,
		&u.Email,
		&u.PasswordHash,
		&u.Nickname,
		&u.ReferralCode,
		&u.ReferredBy,
		&u.VIPExpiresAt,
		&u.CreatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create 插入用户，邮箱或邀请码冲突分别返回 ErrEmailTaken / ErrReferralCodeTaken
func (r *UserRepository) Create(ctx context.Context, q db.Querier, u *model.User) error {
	r.logger.Debug("Creating user", zap.Int64("tenant_id", u.TenantID), zap.String("email", u.Email))

	err := q.QueryRow(ctx, `
		INSERT INTO users (tenant_id, email, password_hash, nickname, referral_code, referred_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, u.TenantID, u.Email, u.PasswordHash, u.Nickname, u.ReferralCode, u.ReferredBy,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err, "users_tenant_email_key"):
			return ErrEmailTaken
		case db.IsUniqueViolation(err, "users_referral_code_key"):
			return ErrReferralCodeTaken
		}
		r.logger.Error("Failed to create user", zap.String("email", u.Email), zap.Error(err))
		return fmt.Errorf("create user: %w", err)
	}

	r.logger.Info("User created", zap.Int64("user_id", u.ID), zap.Int64("tenant_id", u.TenantID))
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, tenantID int64, email string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE tenant_id = $1 AND email = $2
	`, tenantID, email))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return u, err
}

func (r *UserRepository) FindByID(ctx context.Context, tenantID, id int64) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	return u, err
}

// FindByReferralCode 邀请码只在同租户内有效
func (r *UserRepository) FindByReferralCode(ctx context.Context, q db.Querier, tenantID int64, code string) (*model.User, error) {
	u, err := scanUser(q.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE tenant_id = $1 AND referral_code = $2
	`, tenantID, code))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find user by referral code: %w", err)
	}
	return u, err
}

// LockByID 事务内锁定用户行（修改 VIP 到期时间前调用）
func (r *UserRepository) LockByID(ctx context.Context, q db.Querier, tenantID, id int64) (*model.User, error) {
	u, err := scanUser(q.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE
	`, tenantID, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lock user %d: %w", id, err)
	}
	return u, err
}

func (r *UserRepository) SetVIPExpiry(ctx context.Context, q db.Querier, userID int64, expiresAt time.Time) error {
	if _, err := q.Exec(ctx, `UPDATE users SET vip_expires_at = $2 WHERE id = $1`, userID, expiresAt); err != nil {
		r.logger.Error("Failed to set vip expiry", zap.Int64("user_id", userID), zap.Error(err))
		return fmt.Errorf("set vip expiry: %w", err)
	}
	return nil
}

// ListReferrals 分页列出 userID 邀请的用户
func (r *UserRepository) ListReferrals(ctx context.Context, tenantID, userID int64, p pagination.Params) ([]*model.Referral, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM users WHERE tenant_id = $1 AND referred_by = $2
	`, tenantID, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count referrals: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, nickname, created_at
		FROM users
		WHERE tenant_id = $1 AND referred_by = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, tenantID, userID, p.Limit(), p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list referrals: %w", err)
	}
	defer rows.Close()

	var out []*model.Referral
	for rows.Next() {
		var ref model.Referral
		if err := rows.Scan(&ref.UserID, &ref.Nickname, &ref.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan referral: %w", err)
		}
		out = append(out, &ref)
	}
	return out, total, rows.Err()
}

// Nicknames 批量查询昵称，用于排行榜
func (r *UserRepository) Nicknames(ctx context.Context, tenantID int64, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, nickname FROM users WHERE tenant_id = $1 AND id = ANY($2)
	`, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("load nicknames: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"contenthub/internal/model"
	"contenthub/pkg/db"
	"contenthub/pkg/pagination"
)

var (
	ErrCodeTaken       = errors.New("redeem code already exists")
	ErrAlreadyRedeemed = errors.New("code already redeemed by user")
	ErrCodeInUse       = errors.New("redeem code has been used")
)

type RedeemRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewRedeemRepository(pool *pgxpool.Pool, logger *zap.Logger) *RedeemRepository {
	return &RedeemRepository{pool: pool, logger: logger}
}

const codeColumns = `id, tenant_id, code, batch_id::text, reward_type, reward_value, max_uses, used_count, expires_at, disabled, created_at`

func scanCode(row rowScanner) (*model.RedeemCode, error) {
	var c model.RedeemCode
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.Code,
		&c.BatchID,
		&c.RewardType,
		&c.RewardValue,
		&c.MaxUses,
		&c.UsedCount,
		&c.ExpiresAt,
		&c.Disabled,
		&c.CreatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// InsertCode 码冲突返回 ErrCodeTaken，调用方换一个码重试
func (r *RedeemRepository) InsertCode(ctx context.Context, q db.Querier, c *model.RedeemCode) error {
	err := q.QueryRow(ctx, `
		INSERT INTO redeem_codes (tenant_id, code, batch_id, reward_type, reward_value, max_uses, expires_at)
		VALUES ($1, $2, $3::uuid, $4, $5, $6, $7)
		RETURNING id, created_at
	`, c.TenantID, c.Code, c.BatchID, c.RewardType, c.RewardValue, c.MaxUses, c.ExpiresAt,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "redeem_codes_code_key") {
			return ErrCodeTaken
		}
		return fmt.Errorf("insert redeem code: %w", err)
	}
	return nil
}

var codeStatusConds = map[string]string{
	model.CodeStatusDisabled: "disabled",
	model.CodeStatusExpired:  "NOT disabled AND expires_at IS NOT NULL AND expires_at <= NOW()",
	model.CodeStatusUsed:     "NOT disabled AND (expires_at IS NULL OR expires_at > NOW()) AND used_count >= max_uses",
	model.CodeStatusActive:   "NOT disabled AND (expires_at IS NULL OR expires_at > NOW()) AND used_count < max_uses",
}

func (r *RedeemRepository) ListCodes(ctx context.Context, tenantID int64, f model.CodeFilter, p pagination.Params) ([]*model.RedeemCode, int64, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	if f.BatchID != "" {
		args = append(args, f.BatchID)
		where = append(where, fmt.Sprintf("batch_id::text = $%d", len(args)))
	}
	if cond, ok := codeStatusConds[f.Status]; ok {
		where = append(where, "("+cond+")")
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM redeem_codes WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count codes: %w", err)
	}

	args = append(args, p.Limit(), p.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM redeem_codes WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, codeColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list codes: %w", err)
	}
	defer rows.Close()

	var out []*model.RedeemCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *RedeemRepository) GetCode(ctx context.Context, tenantID, id int64) (*model.RedeemCode, error) {
	c, err := scanCode(r.pool.QueryRow(ctx, `
		SELECT `+codeColumns+` FROM redeem_codes WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get code %d: %w", id, err)
	}
	return c, err
}

func (r *RedeemRepository) UpdateCode(ctx context.Context, c *model.RedeemCode) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE redeem_codes SET disabled = $3, expires_at = $4, max_uses = $5
		WHERE tenant_id = $1 AND id = $2
	`, c.TenantID, c.ID, c.Disabled, c.ExpiresAt, c.MaxUses)
	if err != nil {
		return fmt.Errorf("update code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCode 只允许删除未被使用过的码
func (r *RedeemRepository) DeleteCode(ctx context.Context, tenantID, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM redeem_codes WHERE tenant_id = $1 AND id = $2 AND used_count = 0
	`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetCode(ctx, tenantID, id); err != nil {
		return err
	}
	return ErrCodeInUse
}

// LockByCode 兑换事务内锁定码
func (r *RedeemRepository) LockByCode(ctx context.Context, q db.Querier, tenantID int64, code string) (*model.RedeemCode, error) {
	c, err := scanCode(q.QueryRow(ctx, `
		SELECT `+codeColumns+` FROM redeem_codes WHERE tenant_id = $1 AND code = $2 FOR UPDATE
	`, tenantID, code))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lock code: %w", err)
	}
	return c, err
}

func (r *RedeemRepository) HasRecord(ctx context.Context, q db.Querier, codeID, userID int64) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM redeem_records WHERE code_id = $1 AND user_id = $2)
	`, codeID, userID).Scan(&exists)
	return exists, err
}

// Consume used_count+1 并写入兑换记录
func (r *RedeemRepository) Consume(ctx context.Context, q db.Querier, codeID, userID int64) error {
	if _, err := q.Exec(ctx, `UPDATE redeem_codes SET used_count = used_count + 1 WHERE id = $1`, codeID); err != nil {
		return fmt.Errorf("increment used_count: %w", err)
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO redeem_records (code_id, user_id) VALUES ($1, $2)
	`, codeID, userID); err != nil {
		if db.IsUniqueViolation(err, "redeem_records_code_user_key") {
			return ErrAlreadyRedeemed
		}
		return fmt.Errorf("insert redeem record: %w", err)
	}
	return nil
}

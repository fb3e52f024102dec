package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"contenthub/pkg/rbac"
)

// DefaultTenantSlug 未携带 X-Tenant 时使用的租户
const DefaultTenantSlug = "default"

type defaultAchievement struct {
	code, name, conditionType string
	threshold, reward         int64
}

var defaultAchievements = []defaultAchievement{
	{"first-checkin", "初来乍到", "checkin_streak", 1, 5},
	{"streak-7", "坚持一周", "checkin_streak", 7, 50},
	{"reader-10", "书虫", "episodes_read", 10, 30},
	{"level-5", "渐入佳境", "level", 5, 100},
	{"referrer-3", "呼朋引伴", "referrals", 3, 100},
}

// Seed 写入权限表、默认租户及其内置角色与成就，可重复执行；defaultLocale 只在首次创建租户时生效
func Seed(ctx context.Context, pool *pgxpool.Pool, defaultLocale string, logger *zap.Logger) error {
	return WithTx(ctx, pool, func(tx pgx.Tx) error {
		for _, code := range rbac.AllPermissions() {
			if _, err := tx.Exec(ctx, `
				INSERT INTO permissions (code, description) VALUES ($1, $2)
				ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description
			`, code, rbac.Describe(code)); err != nil {
				return fmt.Errorf("seed permission %s: %w", code, err)
			}
		}

		var tenantID int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO tenants (slug, name, default_locale) VALUES ($1, $2, $3)
			ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
			RETURNING id
		`, DefaultTenantSlug, "Default", defaultLocale).Scan(&tenantID); err != nil {
			return fmt.Errorf("seed default tenant: %w", err)
		}

		if err := SeedTenant(ctx, tx, tenantID); err != nil {
			return err
		}

		logger.Info("Seed completed", zap.Int64("default_tenant_id", tenantID))
		return nil
	})
}

// SeedTenant 为租户写入内置角色和默认成就
func SeedTenant(ctx context.Context, q Querier, tenantID int64) error {
	for role, perms := range rbac.DefaultRoles() {
		var roleID int64
		if err := q.QueryRow(ctx, `
			INSERT INTO roles (tenant_id, name) VALUES ($1, $2)
			ON CONFLICT (tenant_id, name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, tenantID, role).Scan(&roleID); err != nil {
			return fmt.Errorf("seed role %s: %w", role, err)
		}
		for _, p := range perms {
			if _, err := q.Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_code) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, roleID, p); err != nil {
				return fmt.Errorf("seed role permission %s/%s: %w", role, p, err)
			}
		}
	}

	for _, a := range defaultAchievements {
		if _, err := q.Exec(ctx, `
			INSERT INTO achievements (tenant_id, code, name, condition_type, threshold, reward_points)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (tenant_id, code) DO NOTHING
		`, tenantID, a.code, a.name, a.conditionType, a.threshold, a.reward); err != nil {
			return fmt.Errorf("seed achievement %s: %w", a.code, err)
		}
	}
	return nil
}

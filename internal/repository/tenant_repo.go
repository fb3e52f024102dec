package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"contenthub/internal/model"
	"contenthub/pkg/db"
)

const tenantCacheTTL = 5 * time.Minute

type TenantRepository struct {
	pool   *pgxpool.Pool
	rdb    *redis.Client
	logger *zap.Logger
}

// NewTenantRepository rdb 为 nil 时不使用缓存
func NewTenantRepository(pool *pgxpool.Pool, rdb *redis.Client, logger *zap.Logger) *TenantRepository {
	return &TenantRepository{pool: pool, rdb: rdb, logger: logger}
}

func tenantCacheKey(slug string) string {
	return "tenant:" + slug
}

// FindBySlug 先查 Redis，未命中再查库并回填
func (r *TenantRepository) FindBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	if t := r.fromCache(ctx, slug); t != nil {
		return t, nil
	}

	var t model.Tenant
	err := r.pool.QueryRow(ctx, `
		SELECT id, slug, name, default_locale, created_at
		FROM tenants
		WHERE slug = $1
	`, slug).Scan(&t.ID, &t.Slug, &t.Name, &t.DefaultLocale, &t.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find tenant %s: %w", slug, err)
	}

	r.toCache(ctx, &t)
	return &t, nil
}

func (r *TenantRepository) FindByID(ctx context.Context, id int64) (*model.Tenant, error) {
	var t model.Tenant
	err := r.pool.QueryRow(ctx, `
		SELECT id, slug, name, default_locale, created_at
		FROM tenants
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Slug, &t.Name, &t.DefaultLocale, &t.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find tenant %d: %w", id, err)
	}
	return &t, nil
}

func (r *TenantRepository) fromCache(ctx context.Context, slug string) *model.Tenant {
	if r.rdb == nil {
		return nil
	}
	raw, err := r.rdb.Get(ctx, tenantCacheKey(slug)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("Tenant cache read failed", zap.String("slug", slug), zap.Error(err))
		}
		return nil
	}
	var t model.Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil
	}
	return &t
}

func (r *TenantRepository) toCache(ctx context.Context, t *model.Tenant) {
	if r.rdb == nil {
		return
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, tenantCacheKey(t.Slug), raw, tenantCacheTTL).Err(); err != nil {
		r.logger.Warn("Tenant cache write failed", zap.String("slug", t.Slug), zap.Error(err))
	}
}

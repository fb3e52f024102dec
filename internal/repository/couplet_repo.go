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

type CoupletRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewCoupletRepository(pool *pgxpool.Pool, logger *zap.Logger) *CoupletRepository {
	return &CoupletRepository{pool: pool, logger: logger}
}

const coupletColumns = `id, tenant_id, slug, title, author, created_by, created_at, updated_at`

func scanCouplet(row rowScanner) (*model.Couplet, error) {
	var c model.Couplet
	err := row.Scan(&c.ID, &c.TenantID, &c.Slug, &c.Title, &c.Author, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *CoupletRepository) Create(ctx context.Context, q db.Querier, c *model.Couplet) error {
	err := q.QueryRow(ctx, `
		INSERT INTO couplets (tenant_id, slug, title, author, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, c.TenantID, c.Slug, c.Title, c.Author, c.CreatedBy).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "couplets_tenant_slug_key") {
			return ErrSlugTaken
		}
		r.logger.Error("Failed to create couplet", zap.String("slug", c.Slug), zap.Error(err))
		return fmt.Errorf("create couplet: %w", err)
	}
	return nil
}

func (r *CoupletRepository) GetByID(ctx context.Context, tenantID, id int64) (*model.Couplet, error) {
	c, err := scanCouplet(r.pool.QueryRow(ctx, `
		SELECT `+coupletColumns+` FROM couplets WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get couplet %d: %w", id, err)
	}
	return c, err
}

func (r *CoupletRepository) GetBySlug(ctx context.Context, tenantID int64, slug string) (*model.Couplet, error) {
	c, err := scanCouplet(r.pool.QueryRow(ctx, `
		SELECT `+coupletColumns+` FROM couplets WHERE tenant_id = $1 AND slug = $2
	`, tenantID, slug))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get couplet %s: %w", slug, err)
	}
	return c, err
}

func (r *CoupletRepository) SlugExists(ctx context.Context, tenantID int64, slug string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM couplets WHERE tenant_id = $1 AND slug = $2)
	`, tenantID, slug).Scan(&exists)
	return exists, err
}

// LockForUpdate 新建版本前锁住对联行，串行化同一对联的版本号分配
func (r *CoupletRepository) LockForUpdate(ctx context.Context, q db.Querier, tenantID, id int64) (*model.Couplet, error) {
	c, err := scanCouplet(q.QueryRow(ctx, `
		SELECT `+coupletColumns+` FROM couplets WHERE tenant_id = $1 AND id = $2 FOR UPDATE
	`, tenantID, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lock couplet %d: %w", id, err)
	}
	return c, err
}

func (r *CoupletRepository) UpdateMeta(ctx context.Context, c *model.Couplet) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE couplets SET slug = $3, title = $4, author = $5, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at
	`, c.TenantID, c.ID, c.Slug, c.Title, c.Author).Scan(&c.UpdatedAt)
	if err != nil {
		switch {
		case db.IsNoRows(err):
			return ErrNotFound
		case db.IsUniqueViolation(err, "couplets_tenant_slug_key"):
			return ErrSlugTaken
		}
		return fmt.Errorf("update couplet: %w", err)
	}
	return nil
}

func (r *CoupletRepository) Touch(ctx context.Context, q db.Querier, id int64) error {
	_, err := q.Exec(ctx, `UPDATE couplets SET updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *CoupletRepository) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM couplets WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete couplet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CoupletRepository) List(ctx context.Context, tenantID int64, query string, p pagination.Params) ([]*model.Couplet, int64, error) {
	cond := "tenant_id = $1"
	args := []any{tenantID}
	if q := strings.TrimSpace(query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		cond += " AND (title ILIKE $2 OR author ILIKE $2)"
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM couplets WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count couplets: %w", err)
	}

	args = append(args, p.Limit(), p.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM couplets WHERE %s
		ORDER BY updated_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, coupletColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list couplets: %w", err)
	}
	defer rows.Close()

	var out []*model.Couplet
	for rows.Next() {
		c, err := scanCouplet(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// MaxVersion 没有版本时返回 0
func (r *CoupletRepository) MaxVersion(ctx context.Context, q db.Querier, coupletID int64) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
		SELECT COALESCE(MAX(version_number), 0) FROM couplet_versions WHERE couplet_id = $1
	`, coupletID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max version: %w", err)
	}
	return n, nil
}

func (r *CoupletRepository) ClearLatest(ctx context.Context, q db.Querier, coupletID int64) error {
	_, err := q.Exec(ctx, `
		UPDATE couplet_versions SET is_latest_version = FALSE
		WHERE couplet_id = $1 AND is_latest_version
	`, coupletID)
	if err != nil {
		return fmt.Errorf("clear latest version: %w", err)
	}
	return nil
}

// InsertVersion 插入版本及其内容
func (r *CoupletRepository) InsertVersion(ctx context.Context, q db.Querier, v *model.CoupletVersion) error {
	err := q.QueryRow(ctx, `
		INSERT INTO couplet_versions (couplet_id, version_number, is_latest_version, note, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, v.CoupletID, v.VersionNumber, v.IsLatestVersion, v.Note, v.CreatedBy).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "couplet_versions_number_key") || db.IsUniqueViolation(err, "couplet_versions_one_latest") {
			return ErrDuplicate
		}
		return fmt.Errorf("insert couplet version: %w", err)
	}

	for i, c := range v.Contents {
		c.VersionID = v.ID
		c.Position = i + 1
		if err := q.QueryRow(ctx, `
			INSERT INTO couplet_contents (version_id, position, upper_line, lower_line, banner)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, c.VersionID, c.Position, c.UpperLine, c.LowerLine, c.Banner).Scan(&c.ID); err != nil {
			return fmt.Errorf("insert couplet content: %w", err)
		}
	}

	r.logger.Info("Couplet version created",
		zap.Int64("couplet_id", v.CoupletID),
		zap.Int("version", v.VersionNumber),
	)
	return nil
}

const versionColumns = `id, couplet_id, version_number, is_latest_version, note, created_by, created_at`

func scanVersion(row rowScanner) (*model.CoupletVersion, error) {
	var v model.CoupletVersion
	err := row.Scan(&v.ID, &v.CoupletID, &v.VersionNumber, &v.IsLatestVersion, &v.Note, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *CoupletRepository) ListVersions(ctx context.Context, coupletID int64) ([]*model.CoupletVersion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+versionColumns+` FROM couplet_versions WHERE couplet_id = $1 ORDER BY version_number DESC
	`, coupletID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()
	out := make([]*model.CoupletVersion, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetVersion number 为 0 表示最新版本；返回值包含内容
func (r *CoupletRepository) GetVersion(ctx context.Context, q db.Querier, coupletID int64, number int) (*model.CoupletVersion, error) {
	v, err := scanVersion(q.QueryRow(ctx, `
		SELECT `+versionColumns+` FROM couplet_versions
		WHERE couplet_id = $1 AND (($2 = 0 AND is_latest_version) OR version_number = $2)
	`, coupletID, number))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get version: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, version_id, position, upper_line, lower_line, banner
		FROM couplet_contents WHERE version_id = $1 ORDER BY position
	`, v.ID)
	if err != nil {
		return nil, fmt.Errorf("load contents: %w", err)
	}
	defer rows.Close()
	v.Contents = make([]*model.CoupletContent, 0)
	for rows.Next() {
		var c model.CoupletContent
		if err := rows.Scan(&c.ID, &c.VersionID, &c.Position, &c.UpperLine, &c.LowerLine, &c.Banner); err != nil {
			return nil, err
		}
		v.Contents = append(v.Contents, &c)
	}
	return v, rows.Err()
}

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

var ErrSlugTaken = errors.New("slug already taken")

type ComicRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewComicRepository(pool *pgxpool.Pool, logger *zap.Logger) *ComicRepository {
	return &ComicRepository{pool: pool, logger: logger}
}

const comicColumns = `id, tenant_id, slug, title, description, author, cover_url, status, published_at, created_by, created_at, updated_at`

func scanComic(row rowScanner) (*model.Comic, error) {
	var c model.Comic
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.Slug,
		&c.Title,
		&c.Description,
		&c.Author,
		&c.CoverURL,
		&c.Status,
		&c.PublishedAt,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *ComicRepository) Create(ctx context.Context, c *model.Comic) error {
	r.logger.Debug("Creating comic", zap.Int64("tenant_id", c.TenantID), zap.String("slug", c.Slug))

	err := r.pool.QueryRow(ctx, `
		INSERT INTO comics (tenant_id, slug, title, description, author, cover_url, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, c.TenantID, c.Slug, c.Title, c.Description, c.Author, c.CoverURL, c.Status, c.CreatedBy,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "comics_tenant_slug_key") {
			return ErrSlugTaken
		}
		r.logger.Error("Failed to create comic", zap.String("slug", c.Slug), zap.Error(err))
		return fmt.Errorf("create comic: %w", err)
	}

	r.logger.Info("Comic created", zap.Int64("comic_id", c.ID))
	return nil
}

func (r *ComicRepository) GetByID(ctx context.Context, tenantID, id int64) (*model.Comic, error) {
	c, err := scanComic(r.pool.QueryRow(ctx, `
		SELECT `+comicColumns+` FROM comics WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get comic %d: %w", id, err)
	}
	return c, err
}

func (r *ComicRepository) GetBySlug(ctx context.Context, tenantID int64, slug string) (*model.Comic, error) {
	c, err := scanComic(r.pool.QueryRow(ctx, `
		SELECT `+comicColumns+` FROM comics WHERE tenant_id = $1 AND slug = $2
	`, tenantID, slug))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get comic %s: %w", slug, err)
	}
	return c, err
}

func (r *ComicRepository) SlugExists(ctx context.Context, tenantID int64, slug string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM comics WHERE tenant_id = $1 AND slug = $2)
	`, tenantID, slug).Scan(&exists)
	return exists, err
}

func (r *ComicRepository) Update(ctx context.Context, c *model.Comic) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE comics
		SET slug = $3, title = $4, description = $5, author = $6, cover_url = $7, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at
	`, c.TenantID, c.ID, c.Slug, c.Title, c.Description, c.Author, c.CoverURL).Scan(&c.UpdatedAt)
	if err != nil {
		switch {
		case db.IsNoRows(err):
			return ErrNotFound
		case db.IsUniqueViolation(err, "comics_tenant_slug_key"):
			return ErrSlugTaken
		}
		return fmt.Errorf("update comic %d: %w", c.ID, err)
	}
	return nil
}

// SetStatus 修改状态；首次发布时记录 published_at
func (r *ComicRepository) SetStatus(ctx context.Context, q db.Querier, tenantID, id int64, status string) (*model.Comic, error) {
	c, err := scanComic(q.QueryRow(ctx, `
		UPDATE comics
		SET status = $3,
		    published_at = CASE WHEN $3 = 'published' THEN COALESCE(published_at, NOW()) ELSE published_at END,
		    updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING `+comicColumns, tenantID, id, status))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("set comic status: %w", err)
	}
	return c, err
}

// LockStatus 事务内锁定漫画行并返回当前状态
func (r *ComicRepository) LockStatus(ctx context.Context, q db.Querier, tenantID, id int64) (string, error) {
	var status string
	err := q.QueryRow(ctx, `
		SELECT status FROM comics WHERE tenant_id = $1 AND id = $2 FOR UPDATE
	`, tenantID, id).Scan(&status)
	if err != nil {
		if db.IsNoRows(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("lock comic %d: %w", id, err)
	}
	return status, nil
}

func (r *ComicRepository) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM comics WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete comic %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	r.logger.Info("Comic deleted", zap.Int64("comic_id", id))
	return nil
}

// List 按创建时间倒序分页；Query 模糊匹配标题和作者
func (r *ComicRepository) List(ctx context.Context, tenantID int64, f model.ComicFilter, p pagination.Params) ([]*model.Comic, int64, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR author ILIKE $%d)", len(args), len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM comics WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count comics: %w", err)
	}

	args = append(args, p.Limit(), p.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM comics WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, comicColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list comics: %w", err)
	}
	defer rows.Close()

	var out []*model.Comic
	for rows.Next() {
		c, err := scanComic(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan comic: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

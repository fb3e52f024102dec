package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"contenthub/internal/model"
	"contenthub/pkg/db"
)

// ErrNumberTaken 同一漫画下卷号/话号重复
var ErrNumberTaken = errors.New("number already taken")

// EpisodeRepository 卷、话以及阅读记录。租户隔离通过 comics.tenant_id 联表保证
type EpisodeRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewEpisodeRepository(pool *pgxpool.Pool, logger *zap.Logger) *EpisodeRepository {
	return &EpisodeRepository{pool: pool, logger: logger}
}

func (r *EpisodeRepository) CreateVolume(ctx context.Context, v *model.Volume) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO comic_volumes (comic_id, number, title)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, v.ComicID, v.Number, v.Title).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "comic_volumes_comic_number_key") {
			return ErrNumberTaken
		}
		return fmt.Errorf("create volume: %w", err)
	}
	return nil
}

func (r *EpisodeRepository) ListVolumes(ctx context.Context, comicID int64) ([]*model.Volume, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, comic_id, number, title, created_at
		FROM comic_volumes
		WHERE comic_id = $1
		ORDER BY number
	`, comicID)
	if err != nil {
		return nil, fmt.Errorf("list volumes: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Volume, 0)
	for rows.Next() {
		var v model.Volume
		if err := rows.Scan(&v.ID, &v.ComicID, &v.Number, &v.Title, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (r *EpisodeRepository) GetVolume(ctx context.Context, tenantID, id int64) (*model.Volume, error) {
	var v model.Volume
	err := r.pool.QueryRow(ctx, `
		SELECT v.id, v.comic_id, v.number, v.title, v.created_at
		FROM comic_volumes v
		JOIN comics c ON c.id = v.comic_id
		WHERE v.id = $1 AND c.tenant_id = $2
	`, id, tenantID).Scan(&v.ID, &v.ComicID, &v.Number, &v.Title, &v.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get volume %d: %w", id, err)
	}
	return &v, nil
}

func (r *EpisodeRepository) UpdateVolume(ctx context.Context, v *model.Volume) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE comic_volumes SET number = $2, title = $3 WHERE id = $1
	`, v.ID, v.Number, v.Title)
	if err != nil {
		if db.IsUniqueViolation(err, "comic_volumes_comic_number_key") {
			return ErrNumberTaken
		}
		return fmt.Errorf("update volume: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *EpisodeRepository) DeleteVolume(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM comic_volumes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete volume: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const episodeColumns = `e.id, e.comic_id, e.volume_id, e.number, e.title, e.is_locked, e.status, e.published_at, e.created_at, e.updated_at`

func scanEpisode(row rowScanner) (*model.Episode, error) {
	var e model.Episode
	err := row.Scan(
		&e.ID,
		&e.ComicID,
		&e.VolumeID,
		&e.Number,
		&e.Title,
		&e.IsLocked,
		&e.Status,
		&e.PublishedAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *EpisodeRepository) CreateEpisode(ctx context.Context, e *model.Episode) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO comic_episodes (comic_id, volume_id, number, title, is_locked, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, e.ComicID, e.VolumeID, e.Number, e.Title, e.IsLocked, e.Status,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err, "comic_episodes_comic_number_key"):
			return ErrNumberTaken
		case db.IsForeignKeyViolation(err):
			return ErrNotFound
		}
		return fmt.Errorf("create episode: %w", err)
	}
	r.logger.Info("Episode created", zap.Int64("episode_id", e.ID), zap.Int64("comic_id", e.ComicID))
	return nil
}

// ListEpisodes publishedOnly 为 true 时只返回已发布章节
func (r *EpisodeRepository) ListEpisodes(ctx context.Context, comicID int64, publishedOnly bool) ([]*model.Episode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+episodeColumns+`
		FROM comic_episodes e
		WHERE e.comic_id = $1 AND (NOT $2 OR e.status = 'published')
		ORDER BY e.number
	`, comicID, publishedOnly)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Episode, 0)
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EpisodeRepository) GetEpisode(ctx context.Context, tenantID, id int64) (*model.Episode, error) {
	e, err := scanEpisode(r.pool.QueryRow(ctx, `
		SELECT `+episodeColumns+`
		FROM comic_episodes e
		JOIN comics c ON c.id = e.comic_id
		WHERE e.id = $1 AND c.tenant_id = $2
	`, id, tenantID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get episode %d: %w", id, err)
	}
	return e, err
}

func (r *EpisodeRepository) UpdateEpisode(ctx context.Context, e *model.Episode) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE comic_episodes
		SET volume_id = $2, number = $3, title = $4, is_locked = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, e.ID, e.VolumeID, e.Number, e.Title, e.IsLocked).Scan(&e.UpdatedAt)
	if err != nil {
		switch {
		case db.IsNoRows(err):
			return ErrNotFound
		case db.IsUniqueViolation(err, "comic_episodes_comic_number_key"):
			return ErrNumberTaken
		}
		return fmt.Errorf("update episode: %w", err)
	}
	return nil
}

// LockEpisodeStatus 事务内锁定章节行并返回当前状态
func (r *EpisodeRepository) LockEpisodeStatus(ctx context.Context, q db.Querier, tenantID, id int64) (string, error) {
	var status string
	err := q.QueryRow(ctx, `
		SELECT e.status
		FROM comic_episodes e
		JOIN comics c ON c.id = e.comic_id
		WHERE e.id = $1 AND c.tenant_id = $2
		FOR UPDATE OF e
	`, id, tenantID).Scan(&status)
	if err != nil {
		if db.IsNoRows(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("lock episode %d: %w", id, err)
	}
	return status, nil
}

func (r *EpisodeRepository) SetEpisodeStatus(ctx context.Context, q db.Querier, id int64, status string) (*model.Episode, error) {
	e, err := scanEpisode(q.QueryRow(ctx, `
		UPDATE comic_episodes e
		SET status = $2,
		    published_at = CASE WHEN $2 = 'published' THEN COALESCE(published_at, NOW()) ELSE published_at END,
		    updated_at = NOW()
		WHERE e.id = $1
		RETURNING `+episodeColumns, id, status))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("set episode status: %w", err)
	}
	return e, err
}

func (r *EpisodeRepository) DeleteEpisode(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM comic_episodes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete episode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordRead 记录阅读，返回是否首次阅读
func (r *EpisodeRepository) RecordRead(ctx context.Context, q db.Querier, userID, episodeID int64) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO episode_reads (user_id, episode_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, episodeID)
	if err != nil {
		return false, fmt.Errorf("record read: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

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

// PageRepository 漫画页与分格
type PageRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPageRepository(pool *pgxpool.Pool, logger *zap.Logger) *PageRepository {
	return &PageRepository{pool: pool, logger: logger}
}

// AddPage page_number 为 0 时追加到末尾
func (r *PageRepository) AddPage(ctx context.Context, p *model.Page) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO comic_pages (episode_id, page_number, image_url, width, height)
		VALUES ($1,
		        CASE WHEN $2 > 0 THEN $2
		             ELSE (SELECT COALESCE(MAX(page_number), 0) + 1 FROM comic_pages WHERE episode_id = $1) END,
		        $3, $4, $5)
		RETURNING id, page_number
	`, p.EpisodeID, p.PageNumber, p.ImageURL, p.Width, p.Height).Scan(&p.ID, &p.PageNumber)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("add page: %w", err)
	}
	return nil
}

// ListPages 按页码返回页面，并带上各页分格
func (r *PageRepository) ListPages(ctx context.Context, episodeID int64) ([]*model.Page, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, episode_id, page_number, image_url, width, height
		FROM comic_pages
		WHERE episode_id = $1
		ORDER BY page_number, id
	`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	pages := make([]*model.Page, 0)
	byID := make(map[int64]*model.Page)
	for rows.Next() {
		var p model.Page
		if err := rows.Scan(&p.ID, &p.EpisodeID, &p.PageNumber, &p.ImageURL, &p.Width, &p.Height); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, &p)
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return pages, nil
	}

	panelRows, err := r.pool.Query(ctx, `
		SELECT pn.id, pn.page_id, pn.panel_number, pn.x, pn.y, pn.width, pn.height, pn.dialogue
		FROM comic_panels pn
		JOIN comic_pages pg ON pg.id = pn.page_id
		WHERE pg.episode_id = $1
		ORDER BY pn.page_id, pn.panel_number, pn.id
	`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list panels: %w", err)
	}
	defer panelRows.Close()
	for panelRows.Next() {
		pn, err := scanPanel(panelRows)
		if err != nil {
			return nil, fmt.Errorf("scan panel: %w", err)
		}
		if p, ok := byID[pn.PageID]; ok {
			p.Panels = append(p.Panels, pn)
		}
	}
	return pages, panelRows.Err()
}

// GetPage 通过 episode -> comic 校验租户
func (r *PageRepository) GetPage(ctx context.Context, tenantID, pageID int64) (*model.Page, error) {
	var p model.Page
	err := r.pool.QueryRow(ctx, `
		SELECT pg.id, pg.episode_id, pg.page_number, pg.image_url, pg.width, pg.height
		FROM comic_pages pg
		JOIN comic_episodes e ON e.id = pg.episode_id
		JOIN comics c ON c.id = e.comic_id
		WHERE pg.id = $1 AND c.tenant_id = $2
	`, pageID, tenantID).Scan(&p.ID, &p.EpisodeID, &p.PageNumber, &p.ImageURL, &p.Width, &p.Height)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get page %d: %w", pageID, err)
	}
	return &p, nil
}

func (r *PageRepository) DeletePage(ctx context.Context, pageID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM comic_pages WHERE id = $1`, pageID)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LockPageIDs 事务内锁定章节全部页面，返回按当前顺序排列的 id
func (r *PageRepository) LockPageIDs(ctx context.Context, q db.Querier, episodeID int64) ([]int64, error) {
	rows, err := q.Query(ctx, `
		SELECT id FROM comic_pages WHERE episode_id = $1 ORDER BY page_number, id FOR UPDATE
	`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("lock pages: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Renumber 按 ids 的顺序把 page_number 重写为 1..n
func (r *PageRepository) Renumber(ctx context.Context, q db.Querier, episodeID int64, ids []int64) error {
	_, err := q.Exec(ctx, `
		UPDATE comic_pages p
		SET page_number = o.ord
		FROM unnest($2::bigint[]) WITH ORDINALITY AS o(id, ord)
		WHERE p.id = o.id AND p.episode_id = $1
	`, episodeID, ids)
	if err != nil {
		return fmt.Errorf("renumber pages: %w", err)
	}
	return nil
}

const panelColumns = `id, page_id, panel_number, x, y, width, height, dialogue`

func scanPanel(row rowScanner) (*model.Panel, error) {
	var pn model.Panel
	err := row.Scan(&pn.ID, &pn.PageID, &pn.PanelNumber, &pn.X, &pn.Y, &pn.Width, &pn.Height, &pn.Dialogue)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pn, nil
}

func (r *PageRepository) AddPanel(ctx context.Context, pn *model.Panel) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO comic_panels (page_id, panel_number, x, y, width, height, dialogue)
		VALUES ($1,
		        CASE WHEN $2 > 0 THEN $2
		             ELSE (SELECT COALESCE(MAX(panel_number), 0) + 1 FROM comic_panels WHERE page_id = $1) END,
		        $3, $4, $5, $6, $7)
		RETURNING id, panel_number
	`, pn.PageID, pn.PanelNumber, pn.X, pn.Y, pn.Width, pn.Height, pn.Dialogue).Scan(&pn.ID, &pn.PanelNumber)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("add panel: %w", err)
	}
	return nil
}

func (r *PageRepository) ListPanels(ctx context.Context, pageID int64) ([]*model.Panel, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+panelColumns+` FROM comic_panels WHERE page_id = $1 ORDER BY panel_number, id
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list panels: %w", err)
	}
	defer rows.Close()
	out := make([]*model.Panel, 0)
	for rows.Next() {
		pn, err := scanPanel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pn)
	}
	return out, rows.Err()
}

func (r *PageRepository) GetPanel(ctx context.Context, tenantID, panelID int64) (*model.Panel, error) {
	pn, err := scanPanel(r.pool.QueryRow(ctx, `
		SELECT pn.id, pn.page_id, pn.panel_number, pn.x, pn.y, pn.width, pn.height, pn.dialogue
		FROM comic_panels pn
		JOIN comic_pages pg ON pg.id = pn.page_id
		JOIN comic_episodes e ON e.id = pg.episode_id
		JOIN comics c ON c.id = e.comic_id
		WHERE pn.id = $1 AND c.tenant_id = $2
	`, panelID, tenantID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get panel %d: %w", panelID, err)
	}
	return pn, err
}

func (r *PageRepository) UpdatePanel(ctx context.Context, pn *model.Panel) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE comic_panels
		SET panel_number = $2, x = $3, y = $4, width = $5, height = $6, dialogue = $7
		WHERE id = $1
	`, pn.ID, pn.PanelNumber, pn.X, pn.Y, pn.Width, pn.Height, pn.Dialogue)
	if err != nil {
		return fmt.Errorf("update panel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PageRepository) DeletePanel(ctx context.Context, panelID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM comic_panels WHERE id = $1`, panelID)
	if err != nil {
		return fmt.Errorf("delete panel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

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

var ErrMenuKeyTaken = errors.New("menu key already exists")

type MenuRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewMenuRepository(pool *pgxpool.Pool, logger *zap.Logger) *MenuRepository {
	return &MenuRepository{pool: pool, logger: logger}
}

const menuColumns = `id, tenant_id, parent_id, key, path, icon, sort, visible, required_permission`

func scanMenu(row rowScanner) (*model.Menu, error) {
	var m model.Menu
	err := row.Scan(&m.ID, &m.TenantID, &m.ParentID, &m.Key, &m.Path, &m.Icon, &m.Sort, &m.Visible, &m.RequiredPermission)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m.Translations = map[string]string{}
	return &m, nil
}

// ListAll 租户下全部菜单项及其翻译
func (r *MenuRepository) ListAll(ctx context.Context, tenantID int64) ([]*model.Menu, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+menuColumns+` FROM menus WHERE tenant_id = $1 ORDER BY sort, id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list menus: %w", err)
	}
	defer rows.Close()

	menus := make([]*model.Menu, 0)
	byID := make(map[int64]*model.Menu)
	for rows.Next() {
		m, err := scanMenu(rows)
		if err != nil {
			return nil, err
		}
		menus = append(menus, m)
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	trRows, err := r.pool.Query(ctx, `
		SELECT t.menu_id, t.locale, t.title
		FROM menu_translations t
		JOIN menus m ON m.id = t.menu_id
		WHERE m.tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list menu translations: %w", err)
	}
	defer trRows.Close()
	for trRows.Next() {
		var menuID int64
		var locale, title string
		if err := trRows.Scan(&menuID, &locale, &title); err != nil {
			return nil, err
		}
		if m, ok := byID[menuID]; ok {
			m.Translations[locale] = title
		}
	}
	return menus, trRows.Err()
}

func (r *MenuRepository) Get(ctx context.Context, tenantID, id int64) (*model.Menu, error) {
	m, err := scanMenu(r.pool.QueryRow(ctx, `
		SELECT `+menuColumns+` FROM menus WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get menu %d: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, `SELECT locale, title FROM menu_translations WHERE menu_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get menu translations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var locale, title string
		if err := rows.Scan(&locale, &title); err != nil {
			return nil, err
		}
		m.Translations[locale] = title
	}
	return m, rows.Err()
}

func (r *MenuRepository) Create(ctx context.Context, m *model.Menu) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO menus (tenant_id, parent_id, key, path, icon, sort, visible, required_permission)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, m.TenantID, m.ParentID, m.Key, m.Path, m.Icon, m.Sort, m.Visible, m.RequiredPermission).Scan(&m.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "menus_tenant_key_key") {
			return ErrMenuKeyTaken
		}
		return fmt.Errorf("create menu: %w", err)
	}
	return nil
}

func (r *MenuRepository) Update(ctx context.Context, m *model.Menu) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE menus
		SET parent_id = $3, key = $4, path = $5, icon = $6, sort = $7, visible = $8, required_permission = $9
		WHERE tenant_id = $1 AND id = $2
	`, m.TenantID, m.ID, m.ParentID, m.Key, m.Path, m.Icon, m.Sort, m.Visible, m.RequiredPermission)
	if err != nil {
		if db.IsUniqueViolation(err, "menus_tenant_key_key") {
			return ErrMenuKeyTaken
		}
		return fmt.Errorf("update menu: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MenuRepository) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM menus WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete menu: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyTranslations upserts 中的 locale 写入标题，deletes 中的 locale 删除
func (r *MenuRepository) ApplyTranslations(ctx context.Context, q db.Querier, menuID int64, upserts map[string]string, deletes []string) error {
	for locale, title := range upserts {
		if _, err := q.Exec(ctx, `
			INSERT INTO menu_translations (menu_id, locale, title) VALUES ($1, $2, $3)
			ON CONFLICT (menu_id, locale) DO UPDATE SET title = EXCLUDED.title
		`, menuID, locale, title); err != nil {
			return fmt.Errorf("upsert translation %s: %w", locale, err)
		}
	}
	if len(deletes) > 0 {
		if _, err := q.Exec(ctx, `
			DELETE FROM menu_translations WHERE menu_id = $1 AND locale = ANY($2)
		`, menuID, deletes); err != nil {
			return fmt.Errorf("delete translations: %w", err)
		}
	}
	return nil
}

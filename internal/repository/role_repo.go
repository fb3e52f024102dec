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

var ErrRoleExists = errors.New("role already exists")

// RoleRepository 角色、权限和用户授权，实现 rbac.Store
type RoleRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewRoleRepository(pool *pgxpool.Pool, logger *zap.Logger) *RoleRepository {
	return &RoleRepository{pool: pool, logger: logger}
}

// UserPermissions 用户经由角色获得的全部权限码
func (r *RoleRepository) UserPermissions(ctx context.Context, tenantID, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT rp.permission_code
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		JOIN role_permissions rp ON rp.role_id = ro.id
		WHERE ur.user_id = $1 AND ro.tenant_id = $2
		ORDER BY rp.permission_code
	`, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query user permissions: %w", err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

func (r *RoleRepository) UserRoles(ctx context.Context, tenantID, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ro.name
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1 AND ro.tenant_id = $2
		ORDER BY ro.name
	`, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

func collectStrings(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]string, error) {
	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *RoleRepository) ListRoles(ctx context.Context, tenantID int64) ([]*model.Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ro.id, ro.tenant_id, ro.name,
		       COALESCE(array_agg(rp.permission_code ORDER BY rp.permission_code)
		                FILTER (WHERE rp.permission_code IS NOT NULL), '{}')
		FROM roles ro
		LEFT JOIN role_permissions rp ON rp.role_id = ro.id
		WHERE ro.tenant_id = $1
		GROUP BY ro.id
		ORDER BY ro.id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Role, 0)
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.TenantID, &role.Name, &role.Permissions); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out = append(out, &role)
	}
	return out, rows.Err()
}

func (r *RoleRepository) GetRole(ctx context.Context, tenantID, roleID int64) (*model.Role, error) {
	var role model.Role
	err := r.pool.QueryRow(ctx, `
		SELECT ro.id, ro.tenant_id, ro.name,
		       COALESCE(array_agg(rp.permission_code ORDER BY rp.permission_code)
		                FILTER (WHERE rp.permission_code IS NOT NULL), '{}')
		FROM roles ro
		LEFT JOIN role_permissions rp ON rp.role_id = ro.id
		WHERE ro.tenant_id = $1 AND ro.id = $2
		GROUP BY ro.id
	`, tenantID, roleID).Scan(&role.ID, &role.TenantID, &role.Name, &role.Permissions)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get role %d: %w", roleID, err)
	}
	return &role, nil
}

func (r *RoleRepository) CreateRole(ctx context.Context, tenantID int64, name string) (*model.Role, error) {
	role := &model.Role{TenantID: tenantID, Name: name, Permissions: []string{}}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (tenant_id, name) VALUES ($1, $2) RETURNING id
	`, tenantID, name).Scan(&role.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "roles_tenant_name_key") {
			return nil, ErrRoleExists
		}
		r.logger.Error("Failed to create role", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("create role: %w", err)
	}
	r.logger.Info("Role created", zap.Int64("role_id", role.ID), zap.String("name", name))
	return role, nil
}

// SetRolePermissions 覆盖角色的权限集合，需在事务中调用
func (r *RoleRepository) SetRolePermissions(ctx context.Context, q db.Querier, roleID int64, codes []string) error {
	if _, err := q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("clear role permissions: %w", err)
	}
	if len(codes) == 0 {
		return nil
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_code)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING
	`, roleID, codes); err != nil {
		return fmt.Errorf("insert role permissions: %w", err)
	}
	return nil
}

// AssignRoleByName 注册时授予内置角色
func (r *RoleRepository) AssignRoleByName(ctx context.Context, q db.Querier, tenantID, userID int64, name string) error {
	tag, err := q.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE tenant_id = $2 AND name = $3
		ON CONFLICT DO NOTHING
	`, userID, tenantID, name)
	if err != nil {
		return fmt.Errorf("assign role %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("Role not assigned", zap.String("role", name), zap.Int64("tenant_id", tenantID))
	}
	return nil
}

// AssignRole 用户和角色都必须属于 tenantID
func (r *RoleRepository) AssignRole(ctx context.Context, tenantID, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		SELECT u.id, ro.id
		FROM users u, roles ro
		WHERE u.id = $1 AND u.tenant_id = $3 AND ro.id = $2 AND ro.tenant_id = $3
		ON CONFLICT DO NOTHING
	`, userID, roleID, tenantID)
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// 可能已授予，也可能用户/角色不存在
		var exists bool
		if err := r.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM user_roles ur JOIN roles ro ON ro.id = ur.role_id
				WHERE ur.user_id = $1 AND ur.role_id = $2 AND ro.tenant_id = $3
			)
		`, userID, roleID, tenantID).Scan(&exists); err != nil {
			return fmt.Errorf("check role assignment: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (r *RoleRepository) RevokeRole(ctx context.Context, tenantID, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM user_roles ur
		USING roles ro
		WHERE ur.role_id = ro.id AND ur.user_id = $1 AND ur.role_id = $2 AND ro.tenant_id = $3
	`, userID, roleID, tenantID)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RoleUserIDs 角色权限变化后需要清缓存的用户
func (r *RoleRepository) RoleUserIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, fmt.Errorf("list role users: %w", err)
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

func (r *RoleRepository) ListPermissions(ctx context.Context) ([]*model.Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, description FROM permissions ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()
	out := make([]*model.Permission, 0)
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.Code, &p.Description); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

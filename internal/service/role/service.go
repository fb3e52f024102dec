package role

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"contenthub/internal/model"
	"contenthub/internal/repository"
	"contenthub/pkg/db"
	"contenthub/pkg/rbac"
)

var (
	ErrNotFound          = errors.New("role not found")
	ErrRoleExists        = errors.New("role already exists")
	ErrInvalidName       = errors.New("role name must be 2-32 chars of a-z, 0-9, _ or -")
	ErrUnknownPermission = errors.New("unknown permission")
)

var roleNamePattern = regexp.MustCompile(`^[a-z0-9_-]{2,32}$`)

// NormalizePermissions 去重排序，并拒绝未知权限码
func NormalizePermissions(codes []string) ([]string, error) {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if !rbac.IsKnownPermission(c) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, c)
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

type Service struct {
	pool    *pgxpool.Pool
	roles   *repository.RoleRepository
	checker *rbac.Checker
	logger  *zap.Logger
}

func NewService(pool *pgxpool.Pool, roles *repository.RoleRepository, checker *rbac.Checker, logger *zap.Logger) *Service {
	return &Service{pool: pool, roles: roles, checker: checker, logger: logger}
}

func (s *Service) ListRoles(ctx context.Context, tenantID int64) ([]*model.Role, error) {
	return s.roles.ListRoles(ctx, tenantID)
}

func (s *Service) ListPermissions(ctx context.Context) ([]*model.Permission, error) {
	return s.roles.ListPermissions(ctx)
}

func (s *Service) CreateRole(ctx context.Context, tenantID int64, name string, permissions []string) (*model.Role, error) {
	if !roleNamePattern.MatchString(name) {
		return nil, ErrInvalidName
	}
	codes, err := NormalizePermissions(permissions)
	if err != nil {
		return nil, err
	}

	r, err := s.roles.CreateRole(ctx, tenantID, name)
	if err != nil {
		if errors.Is(err, repository.ErrRoleExists) {
			return nil, ErrRoleExists
		}
		return nil, err
	}
	if len(codes) > 0 {
		if err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
			return s.roles.SetRolePermissions(ctx, tx, r.ID, codes)
		}); err != nil {
			return nil, err
		}
	}
	r.Permissions = codes
	return r, nil
}

// SetPermissions 覆盖角色权限并清除持有该角色用户的权限缓存
func (s *Service) SetPermissions(ctx context.Context, tenantID, roleID int64, permissions []string) (*model.Role, error) {
	codes, err := NormalizePermissions(permissions)
	if err != nil {
		return nil, err
	}
	r, err := s.roles.GetRole(ctx, tenantID, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return s.roles.SetRolePermissions(ctx, tx, roleID, codes)
	}); err != nil {
		return nil, err
	}

	userIDs, err := s.roles.RoleUserIDs(ctx, roleID)
	if err != nil {
		s.logger.Warn("Failed to list role users for cache invalidation", zap.Int64("role_id", roleID), zap.Error(err))
	}
	for _, uid := range userIDs {
		s.checker.Invalidate(ctx, tenantID, uid)
	}

	s.logger.Info("Role permissions updated",
		zap.Int64("tenant_id", tenantID),
		zap.String("role", r.Name),
		zap.Strings("permissions", codes),
	)
	r.Permissions = codes
	return r, nil
}

func (s *Service) AssignRole(ctx context.Context, tenantID, userID, roleID int64) error {
	if err := s.roles.AssignRole(ctx, tenantID, userID, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.checker.Invalidate(ctx, tenantID, userID)
	return nil
}

func (s *Service) RevokeRole(ctx context.Context, tenantID, userID, roleID int64) error {
	if err := s.roles.RevokeRole(ctx, tenantID, userID, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.checker.Invalidate(ctx, tenantID, userID)
	return nil
}

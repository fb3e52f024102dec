package rbac

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// 权限常量
const (
	PermissionComicRead         = "comic:read"
	PermissionComicWrite        = "comic:write"
	PermissionComicPublish      = "comic:publish"
	PermissionCoupletWrite      = "couplet:write"
	PermissionRedeemManage      = "redeem:manage"
	PermissionPointsManage      = "points:manage"
	PermissionAchievementManage = "achievement:manage"
	PermissionMenuManage        = "menu:manage"
	PermissionRoleManage        = "role:manage"
	PermissionOutboxReplay      = "outbox:replay"
)

// 角色常量
const (
	RoleUser   = "user"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

var permissionDescriptions = map[string]string{
	PermissionComicRead:         "阅读漫画",
	PermissionComicWrite:        "编辑漫画及其卷/话/页/格",
	PermissionComicPublish:      "发布/下架漫画",
	PermissionCoupletWrite:      "编辑对联及其版本",
	PermissionRedeemManage:      "管理兑换码",
	PermissionPointsManage:      "调整用户积分",
	PermissionAchievementManage: "管理成就",
	PermissionMenuManage:        "管理菜单与翻译",
	PermissionRoleManage:        "管理角色与授权",
	PermissionOutboxReplay:      "重放事件",
}

// 内置角色权限映射，新租户初始化时写入数据库
var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionComicRead,
	},
	RoleEditor: {
		PermissionComicRead,
		PermissionComicWrite,
		PermissionComicPublish,
		PermissionCoupletWrite,
	},
	RoleAdmin: AllPermissions(),
}

// AllPermissions 返回全部权限码（有序）
func AllPermissions() []string {
	codes := make([]string, 0, len(permissionDescriptions))
	for code := range permissionDescriptions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Describe 返回权限描述
func Describe(code string) string {
	return permissionDescriptions[code]
}

// IsKnownPermission 判断权限码是否存在
func IsKnownPermission(code string) bool {
	_, ok := permissionDescriptions[code]
	return ok
}

// DefaultRoles 返回内置角色及其权限的副本
func DefaultRoles() map[string][]string {
	out := make(map[string][]string, len(rolePermissions))
	for role, perms := range rolePermissions {
		out[role] = append([]string(nil), perms...)
	}
	return out
}

// Set 权限集合
type Set map[string]struct{}

func NewSet(codes ...string) Set {
	s := make(Set, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// Has 检查集合中是否有指定权限
func (s Set) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Codes 返回有序的权限码
func (s Set) Codes() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Store 读取用户在租户内经由角色获得的权限
type Store interface {
	UserPermissions(ctx context.Context, tenantID, userID int64) ([]string, error)
}

// Cache 权限缓存（Redis 实现见 repository.PermissionCache）
type Cache interface {
	Get(ctx context.Context, tenantID, userID int64) ([]string, bool, error)
	Set(ctx context.Context, tenantID, userID int64, codes []string) error
	Invalidate(ctx context.Context, tenantID, userID int64) error
}

// Checker 负责权限判定，优先读缓存
type Checker struct {
	store  Store
	cache  Cache
	logger *zap.Logger
}

// NewChecker cache 可为 nil
func NewChecker(store Store, cache Cache, logger *zap.Logger) *Checker {
	return &Checker{store: store, cache: cache, logger: logger}
}

// Permissions 返回用户的权限集合
func (c *Checker) Permissions(ctx context.Context, tenantID, userID int64) (Set, error) {
	if c.cache != nil {
		codes, ok, err := c.cache.Get(ctx, tenantID, userID)
		if err != nil {
			// 缓存不可用时回源数据库
			c.logger.Warn("Permission cache read failed",
				zap.Int64("tenant_id", tenantID),
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		} else if ok {
			return NewSet(codes...), nil
		}
	}

	codes, err := c.store.UserPermissions(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, tenantID, userID, codes); err != nil {
			c.logger.Warn("Permission cache write failed",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
	}
	return NewSet(codes...), nil
}

// HasPermission 检查用户是否有指定权限
func (c *Checker) HasPermission(ctx context.Context, tenantID, userID int64, permission string) (bool, error) {
	set, err := c.Permissions(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	return set.Has(permission), nil
}

// CheckPermission 检查用户是否有指定权限（返回错误而不是布尔值，便于处理）
func (c *Checker) CheckPermission(ctx context.Context, tenantID, userID int64, permission string) error {
	ok, err := c.HasPermission(ctx, tenantID, userID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return &PermissionDeniedError{
			UserID:     userID,
			Permission: permission,
		}
	}
	return nil
}

// Invalidate 角色变更后清除缓存
func (c *Checker) Invalidate(ctx context.Context, tenantID, userID int64) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, tenantID, userID); err != nil {
		c.logger.Warn("Permission cache invalidate failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int64
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}

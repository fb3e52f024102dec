package menu

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"contenthub/internal/model"
	"contenthub/internal/repository"
	"contenthub/pkg/db"
	"contenthub/pkg/rbac"
)

var (
	ErrNotFound          = errors.New("menu not found")
	ErrParentNotFound    = errors.New("parent menu not found")
	ErrCycle             = errors.New("menu cannot be its own ancestor")
	ErrKeyTaken          = errors.New("menu key already exists")
	ErrInvalidKey        = errors.New("menu key is required")
	ErrUnknownPermission = errors.New("unknown permission")
	ErrInvalidLocale     = errors.New("invalid locale")
)

var localePattern = regexp.MustCompile(`^[a-zA-Z]{2,3}([-_][a-zA-Z0-9]{2,8})*$`)

// ValidLocale 形如 zh、zh-CN、en_US
func ValidLocale(l string) bool {
	return localePattern.MatchString(l)
}

// ResolveTitle 请求语言 -> 租户默认语言 -> key
func ResolveTitle(m *model.Menu, locale, defaultLocale string) string {
	if t := m.Translations[locale]; t != "" {
		return t
	}
	if t := m.Translations[defaultLocale]; t != "" {
		return t
	}
	return m.Key
}

// BuildTree 过滤不可见和无权限的菜单，父节点被过滤的子树一并丢弃
func BuildTree(menus []*model.Menu, perms rbac.Set, locale, defaultLocale string) []*model.MenuNode {
	nodes := make(map[int64]*model.MenuNode, len(menus))
	sortKeys := make(map[int64]int, len(menus))
	for _, m := range menus {
		if !m.Visible {
			continue
		}
		if m.RequiredPermission != nil && *m.RequiredPermission != "" && !perms.Has(*m.RequiredPermission) {
			continue
		}
		nodes[m.ID] = &model.MenuNode{
			ID:       m.ID,
			Key:      m.Key,
			Title:    ResolveTitle(m, locale, defaultLocale),
			Path:     m.Path,
			Icon:     m.Icon,
			Children: []*model.MenuNode{},
		}
		sortKeys[m.ID] = m.Sort
	}

	roots := make([]*model.MenuNode, 0)
	for _, m := range menus {
		node, ok := nodes[m.ID]
		if !ok {
			continue
		}
		if m.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		if parent, ok := nodes[*m.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		}
	}

	// 只挂到根上的节点才可达，孤儿子树自然被丢弃
	var sortLevel func([]*model.MenuNode)
	sortLevel = func(level []*model.MenuNode) {
		sort.SliceStable(level, func(i, j int) bool {
			a, b := level[i], level[j]
			if sortKeys[a.ID] != sortKeys[b.ID] {
				return sortKeys[a.ID] < sortKeys[b.ID]
			}
			return a.ID < b.ID
		})
		for _, n := range level {
			sortLevel(n.Children)
		}
	}
	sortLevel(roots)
	return roots
}

// WouldCycle 把 id 的父节点设为 parentID 是否会形成环
func WouldCycle(menus []*model.Menu, id, parentID int64) bool {
	parents := make(map[int64]*int64, len(menus))
	for _, m := range menus {
		parents[m.ID] = m.ParentID
	}
	seen := make(map[int64]struct{})
	for cur := parentID; ; {
		if cur == id {
			return true
		}
		if _, ok := seen[cur]; ok {
			return true
		}
		seen[cur] = struct{}{}
		next, ok := parents[cur]
		if !ok || next == nil {
			return false
		}
		cur = *next
	}
}

// MergeTranslations 非空标题写入，空串或 null 删除，未出现的 locale 不动
func MergeTranslations(input map[string]*string) (upserts map[string]string, deletes []string, err error) {
	upserts = make(map[string]string)
	for locale, title := range input {
		if !ValidLocale(locale) {
			return nil, nil, ErrInvalidLocale
		}
		if title == nil || strings.TrimSpace(*title) == "" {
			deletes = append(deletes, locale)
			continue
		}
		upserts[locale] = strings.TrimSpace(*title)
	}
	sort.Strings(deletes)
	return upserts, deletes, nil
}

type Service struct {
	pool    *pgxpool.Pool
	repo    *repository.MenuRepository
	checker *rbac.Checker
	logger  *zap.Logger
}

func NewService(pool *pgxpool.Pool, repo *repository.MenuRepository, checker *rbac.Checker, logger *zap.Logger) *Service {
	return &Service{pool: pool, repo: repo, checker: checker, logger: logger}
}

// Tree 匿名用户只能看到不需要权限的菜单
func (s *Service) Tree(ctx context.Context, tenantID, userID int64, locale, defaultLocale string) ([]*model.MenuNode, error) {
	menus, err := s.repo.ListAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	perms := rbac.NewSet()
	if userID > 0 {
		perms, err = s.checker.Permissions(ctx, tenantID, userID)
		if err != nil {
			return nil, err
		}
	}
	if locale == "" {
		locale = defaultLocale
	}
	return BuildTree(menus, perms, locale, defaultLocale), nil
}

func (s *Service) List(ctx context.Context, tenantID int64) ([]*model.Menu, error) {
	return s.repo.ListAll(ctx, tenantID)
}

func (s *Service) Get(ctx context.Context, tenantID, id int64) (*model.Menu, error) {
	m, err := s.repo.Get(ctx, tenantID, id)
	return m, mapErr(err)
}

type Input struct {
	ParentID           *int64  `json:"parent_id"`
	Key                string  `json:"key"`
	Path               string  `json:"path"`
	Icon               string  `json:"icon"`
	Sort               int     `json:"sort"`
	Visible            *bool   `json:"visible"`
	RequiredPermission *string `json:"required_permission"`
}

func (in *Input) normalize() error {
	in.Key = strings.TrimSpace(in.Key)
	if in.Key == "" {
		return ErrInvalidKey
	}
	if in.RequiredPermission != nil {
		p := strings.TrimSpace(*in.RequiredPermission)
		if p == "" {
			in.RequiredPermission = nil
		} else if !rbac.IsKnownPermission(p) {
			return ErrUnknownPermission
		} else {
			in.RequiredPermission = &p
		}
	}
	return nil
}

func (s *Service) checkParent(ctx context.Context, tenantID int64, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	if _, err := s.repo.Get(ctx, tenantID, *parentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrParentNotFound
		}
		return err
	}
	return nil
}

func (s *Service) Create(ctx context.Context, tenantID int64, in Input) (*model.Menu, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, tenantID, in.ParentID); err != nil {
		return nil, err
	}
	m := &model.Menu{
		TenantID:           tenantID,
		ParentID:           in.ParentID,
		Key:                in.Key,
		Path:               in.Path,
		Icon:               in.Icon,
		Sort:               in.Sort,
		Visible:            in.Visible == nil || *in.Visible,
		RequiredPermission: in.RequiredPermission,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, mapErr(err)
	}
	return m, nil
}

func (s *Service) Update(ctx context.Context, tenantID, id int64, in Input) (*model.Menu, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	m, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if in.ParentID != nil {
		if *in.ParentID == id {
			return nil, ErrCycle
		}
		if err := s.checkParent(ctx, tenantID, in.ParentID); err != nil {
			return nil, err
		}
		all, err := s.repo.ListAll(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if WouldCycle(all, id, *in.ParentID) {
			return nil, ErrCycle
		}
	}

	m.ParentID = in.ParentID
	m.Key = in.Key
	m.Path = in.Path
	m.Icon = in.Icon
	m.Sort = in.Sort
	if in.Visible != nil {
		m.Visible = *in.Visible
	}
	m.RequiredPermission = in.RequiredPermission
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, mapErr(err)
	}
	return m, nil
}

func (s *Service) Delete(ctx context.Context, tenantID, id int64) error {
	return mapErr(s.repo.Delete(ctx, tenantID, id))
}

// SetTranslations 合并语义写入翻译并返回最新菜单
func (s *Service) SetTranslations(ctx context.Context, tenantID, id int64, input map[string]*string) (*model.Menu, error) {
	upserts, deletes, err := MergeTranslations(input)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Get(ctx, tenantID, id); err != nil {
		return nil, mapErr(err)
	}
	if err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return s.repo.ApplyTranslations(ctx, tx, id, upserts, deletes)
	}); err != nil {
		return nil, err
	}
	s.logger.Info("Menu translations updated",
		zap.Int64("menu_id", id),
		zap.Int("upserts", len(upserts)),
		zap.Strings("deleted", deletes),
	)
	return s.Get(ctx, tenantID, id)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrMenuKeyTaken):
		return ErrKeyTaken
	}
	return err
}

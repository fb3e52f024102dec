package couplet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"contenthub/internal/model"
	"contenthub/internal/repository"
	"contenthub/pkg/db"
	"contenthub/pkg/pagination"
	"contenthub/pkg/slug"
)

var (
	ErrNotFound        = errors.New("couplet not found")
	ErrVersionNotFound = errors.New("couplet version not found")
	ErrSlugTaken       = errors.New("slug already taken")
	ErrTitleRequired   = errors.New("title is required")
	ErrEmptyContents   = errors.New("contents must not be empty")
	ErrEmptyLine       = errors.New("upper and lower lines must not be empty")
	ErrLineMismatch    = errors.New("upper and lower lines must have the same length")
	ErrConcurrentEdit  = errors.New("couplet was modified concurrently")
)

// ContentInput 一副对联：上联、下联、横批
type ContentInput struct {
	UpperLine string `json:"upper_line"`
	LowerLine string `json:"lower_line"`
	Banner    string `json:"banner"`
}

// ValidateContents 校验并规范化内容，返回待写入的行
func ValidateContents(in []ContentInput) ([]*model.CoupletContent, error) {
	if len(in) == 0 {
		return nil, ErrEmptyContents
	}
	out := make([]*model.CoupletContent, 0, len(in))
	for i, c := range in {
		upper := strings.TrimSpace(c.UpperLine)
		lower := strings.TrimSpace(c.LowerLine)
		if upper == "" || lower == "" {
			return nil, fmt.Errorf("content %d: %w", i+1, ErrEmptyLine)
		}
		if utf8.RuneCountInString(upper) != utf8.RuneCountInString(lower) {
			return nil, fmt.Errorf("content %d: %w", i+1, ErrLineMismatch)
		}
		out = append(out, &model.CoupletContent{
			UpperLine: upper,
			LowerLine: lower,
			Banner:    strings.TrimSpace(c.Banner),
		})
	}
	return out, nil
}

// RestoreNote 回滚版本的备注
func RestoreNote(version int) string {
	return fmt.Sprintf("restore from v%d", version)
}

// copyContents 回滚时复制内容，id 由插入重新生成
func copyContents(src []*model.CoupletContent) []*model.CoupletContent {
	out := make([]*model.CoupletContent, len(src))
	for i, c := range src {
		out[i] = &model.CoupletContent{UpperLine: c.UpperLine, LowerLine: c.LowerLine, Banner: c.Banner}
	}
	return out
}

// Store 对联及其版本的持久化
type Store interface {
	Create(ctx context.Context, q db.Querier, c *model.Couplet) error
	GetByID(ctx context.Context, tenantID, id int64) (*model.Couplet, error)
	GetBySlug(ctx context.Context, tenantID int64, slug string) (*model.Couplet, error)
	SlugExists(ctx context.Context, tenantID int64, slug string) (bool, error)
	LockForUpdate(ctx context.Context, q db.Querier, tenantID, id int64) (*model.Couplet, error)
	UpdateMeta(ctx context.Context, c *model.Couplet) error
	Touch(ctx context.Context, q db.Querier, id int64) error
	Delete(ctx context.Context, tenantID, id int64) error
	List(ctx context.Context, tenantID int64, query string, p pagination.Params) ([]*model.Couplet, int64, error)
	MaxVersion(ctx context.Context, q db.Querier, coupletID int64) (int, error)
	ClearLatest(ctx context.Context, q db.Querier, coupletID int64) error
	InsertVersion(ctx context.Context, q db.Querier, v *model.CoupletVersion) error
	ListVersions(ctx context.Context, coupletID int64) ([]*model.CoupletVersion, error)
	GetVersion(ctx context.Context, q db.Querier, coupletID int64, number int) (*model.CoupletVersion, error)
}

var _ Store = (*repository.CoupletRepository)(nil)

type Service struct {
	pool   db.Conn
	repo   Store
	logger *zap.Logger
}

func NewService(pool db.Conn, repo Store, logger *zap.Logger) *Service {
	return &Service{pool: pool, repo: repo, logger: logger}
}

type CreateInput struct {
	Slug     string         `json:"slug"`
	Title    string         `json:"title"`
	Author   string         `json:"author"`
	Note     string         `json:"note"`
	Contents []ContentInput `json:"contents"`
}

// Create 新建对联并写入版本 1
func (s *Service) Create(ctx context.Context, tenantID, userID int64, in CreateInput) (*model.CoupletDetail, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	contents, err := ValidateContents(in.Contents)
	if err != nil {
		return nil, err
	}

	var sl string
	if in.Slug = strings.TrimSpace(in.Slug); in.Slug != "" {
		sl = slug.Slugify(in.Slug)
	} else {
		sl, err = slug.EnsureUnique(ctx, slug.Slugify(title), func(ctx context.Context, candidate string) (bool, error) {
			return s.repo.SlugExists(ctx, tenantID, candidate)
		})
		if err != nil {
			return nil, err
		}
	}

	c := &model.Couplet{
		TenantID: tenantID,
		Slug:     sl,
		Title:    title,
		Author:   strings.TrimSpace(in.Author),
	}
	var createdBy *int64
	if userID > 0 {
		createdBy = &userID
		c.CreatedBy = createdBy
	}
	v := &model.CoupletVersion{
		VersionNumber:   1,
		IsLatestVersion: true,
		Note:            in.Note,
		CreatedBy:       createdBy,
		Contents:        contents,
	}

	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.repo.Create(ctx, tx, c); err != nil {
			return err
		}
		v.CoupletID = c.ID
		return s.repo.InsertVersion(ctx, tx, v)
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return &model.CoupletDetail{Couplet: c, Latest: v}, nil
}

// CreateVersion 锁定对联行后追加新版本并切换最新标记
func (s *Service) CreateVersion(ctx context.Context, tenantID, userID, coupletID int64, note string, in []ContentInput) (*model.CoupletVersion, error) {
	contents, err := ValidateContents(in)
	if err != nil {
		return nil, err
	}
	return s.appendVersion(ctx, tenantID, userID, coupletID, func(pgx.Tx) (string, []*model.CoupletContent, error) {
		return note, contents, nil
	})
}

// Restore 以版本 N 的内容生成新的最新版本
func (s *Service) Restore(ctx context.Context, tenantID, userID, coupletID int64, number int) (*model.CoupletVersion, error) {
	if number <= 0 {
		return nil, ErrVersionNotFound
	}
	return s.appendVersion(ctx, tenantID, userID, coupletID, func(tx pgx.Tx) (string, []*model.CoupletContent, error) {
		src, err := s.repo.GetVersion(ctx, tx, coupletID, number)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return "", nil, ErrVersionNotFound
			}
			return "", nil, err
		}
		return RestoreNote(number), copyContents(src.Contents), nil
	})
}

type versionSource func(tx pgx.Tx) (note string, contents []*model.CoupletContent, err error)

func (s *Service) appendVersion(ctx context.Context, tenantID, userID, coupletID int64, source versionSource) (*model.CoupletVersion, error) {
	var v *model.CoupletVersion
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := s.repo.LockForUpdate(ctx, tx, tenantID, coupletID); err != nil {
			return err
		}
		note, contents, err := source(tx)
		if err != nil {
			return err
		}
		maxVersion, err := s.repo.MaxVersion(ctx, tx, coupletID)
		if err != nil {
			return err
		}
		if err := s.repo.ClearLatest(ctx, tx, coupletID); err != nil {
			return err
		}

		v = &model.CoupletVersion{
			CoupletID:       coupletID,
			VersionNumber:   maxVersion + 1,
			IsLatestVersion: true,
			Note:            note,
			Contents:        contents,
		}
		if userID > 0 {
			v.CreatedBy = &userID
		}
		if err := s.repo.InsertVersion(ctx, tx, v); err != nil {
			return err
		}
		return s.repo.Touch(ctx, tx, coupletID)
	})
	if err != nil {
		return nil, mapErr(err)
	}

	s.logger.Info("Couplet version appended",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("couplet_id", coupletID),
		zap.Int("version", v.VersionNumber),
		zap.String("note", v.Note),
	)
	return v, nil
}

// Get id 为 0 时按 slug 查；返回最新版本及内容
func (s *Service) Get(ctx context.Context, tenantID, id int64, slugKey string) (*model.CoupletDetail, error) {
	var (
		c   *model.Couplet
		err error
	)
	if slugKey != "" {
		c, err = s.repo.GetBySlug(ctx, tenantID, slugKey)
	} else {
		c, err = s.repo.GetByID(ctx, tenantID, id)
	}
	if err != nil {
		return nil, mapErr(err)
	}
	latest, err := s.repo.GetVersion(ctx, s.pool, c.ID, 0)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return &model.CoupletDetail{Couplet: c, Latest: latest}, nil
}

func (s *Service) List(ctx context.Context, tenantID int64, query string, p pagination.Params) (pagination.Page[*model.Couplet], error) {
	items, total, err := s.repo.List(ctx, tenantID, query, p)
	if err != nil {
		return pagination.Page[*model.Couplet]{}, err
	}
	return pagination.NewPage(items, total, p), nil
}

func (s *Service) ListVersions(ctx context.Context, tenantID, coupletID int64) ([]*model.CoupletVersion, error) {
	if _, err := s.repo.GetByID(ctx, tenantID, coupletID); err != nil {
		return nil, mapErr(err)
	}
	return s.repo.ListVersions(ctx, coupletID)
}

func (s *Service) GetVersion(ctx context.Context, tenantID, coupletID int64, number int) (*model.CoupletVersion, error) {
	if _, err := s.repo.GetByID(ctx, tenantID, coupletID); err != nil {
		return nil, mapErr(err)
	}
	if number <= 0 {
		return nil, ErrVersionNotFound
	}
	v, err := s.repo.GetVersion(ctx, s.pool, coupletID, number)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	return v, nil
}

type MetaInput struct {
	Slug   string `json:"slug"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

func (s *Service) UpdateMeta(ctx context.Context, tenantID, id int64, in MetaInput) (*model.Couplet, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	c, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if sl := strings.TrimSpace(in.Slug); sl != "" {
		c.Slug = slug.Slugify(sl)
	}
	c.Title = title
	c.Author = strings.TrimSpace(in.Author)
	if err := s.repo.UpdateMeta(ctx, c); err != nil {
		return nil, mapErr(err)
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, tenantID, id int64) error {
	return mapErr(s.repo.Delete(ctx, tenantID, id))
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrSlugTaken):
		return ErrSlugTaken
	case errors.Is(err, repository.ErrDuplicate):
		return ErrConcurrentEdit
	}
	return err
}

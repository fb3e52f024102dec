package comic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"contenthub/contracts/events"
	"contenthub/internal/model"
	"contenthub/internal/repository"
	"contenthub/internal/service/points"
	"contenthub/pkg/db"
	"contenthub/pkg/outbox"
	"contenthub/pkg/pagination"
	"contenthub/pkg/rbac"
	"contenthub/pkg/slug"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrSlugTaken     = errors.New("slug already taken")
	ErrNumberTaken   = errors.New("number already taken")
	ErrTitleRequired = errors.New("title is required")
	ErrInvalidStatus = errors.New("invalid status")
	ErrInvalidNumber = errors.New("number must be positive")
	ErrVIPRequired   = errors.New("vip required")
	ErrInvalidOrder  = errors.New("page order must list every page of the episode exactly once")
	ErrInvalidPage   = errors.New("page needs an image_url and a non-negative size")
	ErrInvalidPanel  = errors.New("panel geometry must be non-negative")
)

type Service struct {
	pool      db.TxBeginner
	comics    ComicStore
	episodes  EpisodeStore
	pages     PageStore
	users     *repository.UserRepository
	pointsSvc *points.Service
	checker   *rbac.Checker
	logger    *zap.Logger
	now       func() time.Time
	enqueue   outbox.EnqueueFunc
}

func NewService(
	pool db.TxBeginner,
	comics ComicStore,
	episodes EpisodeStore,
	pages PageStore,
	users *repository.UserRepository,
	pointsSvc *points.Service,
	checker *rbac.Checker,
	logger *zap.Logger,
) *Service {
	return &Service{
		pool:      pool,
		comics:    comics,
		episodes:  episodes,
		pages:     pages,
		users:     users,
		pointsSvc: pointsSvc,
		checker:   checker,
		logger:    logger,
		now:       time.Now,
		enqueue:   outbox.Enqueue,
	}
}

// ComicInput 创建和更新共用；Slug 为空时由标题生成
type ComicInput struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	CoverURL    string `json:"cover_url"`
}

func (in *ComicInput) Normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Slug = strings.TrimSpace(in.Slug)
	if in.Title == "" {
		return ErrTitleRequired
	}
	return nil
}

func (s *Service) CreateComic(ctx context.Context, tenantID, userID int64, in ComicInput) (*model.Comic, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}

	var sl string
	if in.Slug != "" {
		sl = slug.Slugify(in.Slug)
	} else {
		var err error
		sl, err = slug.EnsureUnique(ctx, slug.Slugify(in.Title), func(ctx context.Context, candidate string) (bool, error) {
			return s.comics.SlugExists(ctx, tenantID, candidate)
		})
		if err != nil {
			return nil, err
		}
	}

	c := &model.Comic{
		TenantID:    tenantID,
		Slug:        sl,
		Title:       in.Title,
		Description: in.Description,
		Author:      in.Author,
		CoverURL:    in.CoverURL,
		Status:      model.StatusDraft,
	}
	if userID > 0 {
		c.CreatedBy = &userID
	}
	if err := s.comics.Create(ctx, c); err != nil {
		return nil, mapErr(err)
	}
	return c, nil
}

// GetComic key 为数字时按 id 查，否则按 slug；publicOnly 时未发布视为不存在
func (s *Service) GetComic(ctx context.Context, tenantID int64, id int64, slugKey string, publicOnly bool) (*model.Comic, error) {
	var (
		c   *model.Comic
		err error
	)
	if slugKey != "" {
		c, err = s.comics.GetBySlug(ctx, tenantID, slugKey)
	} else {
		c, err = s.comics.GetByID(ctx, tenantID, id)
	}
	if err != nil {
		return nil, mapErr(err)
	}
	if publicOnly && c.Status != model.StatusPublished {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *Service) UpdateComic(ctx context.Context, tenantID, id int64, in ComicInput) (*model.Comic, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}
	c, err := s.comics.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if in.Slug != "" {
		c.Slug = slug.Slugify(in.Slug)
	}
	c.Title = in.Title
	c.Description = in.Description
	c.Author = in.Author
	c.CoverURL = in.CoverURL
	if err := s.comics.Update(ctx, c); err != nil {
		return nil, mapErr(err)
	}
	return c, nil
}

func (s *Service) DeleteComic(ctx context.Context, tenantID, id int64) error {
	return mapErr(s.comics.Delete(ctx, tenantID, id))
}

// ListComics 公开列表固定只看 published
func (s *Service) ListComics(ctx context.Context, tenantID int64, f model.ComicFilter, p pagination.Params, publicOnly bool) (pagination.Page[*model.Comic], error) {
	if publicOnly {
		f.Status = model.StatusPublished
	} else if f.Status != "" && !model.ValidStatus(f.Status) {
		return pagination.Page[*model.Comic]{}, ErrInvalidStatus
	}
	items, total, err := s.comics.List(ctx, tenantID, f, p)
	if err != nil {
		return pagination.Page[*model.Comic]{}, err
	}
	return pagination.NewPage(items, total, p), nil
}

// SetComicStatus 锁行读取旧状态，首次发布时在同一事务内写入 content.published
func (s *Service) SetComicStatus(ctx context.Context, tenantID, userID, id int64, status string) (*model.Comic, error) {
	if !model.ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	var (
		c    *model.Comic
		prev string
	)
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		prev, err = s.comics.LockStatus(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		c, err = s.comics.SetStatus(ctx, tx, tenantID, id, status)
		if err != nil || !entersPublished(prev, status) {
			return err
		}
		payload := events.ContentPublishedPayload{
			Envelope:    events.NewEnvelope(ctx, tenantID),
			ContentType: "comic",
			ContentID:   c.ID,
			Slug:        c.Slug,
			Title:       c.Title,
			PublishedBy: userID,
		}
		_, err = s.enqueue(ctx, tx, tenantID, "comic", c.ID, events.ContentPublished, payload)
		return err
	})
	if err != nil {
		return nil, mapErr(err)
	}

	s.logger.Info("Comic status changed",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("comic_id", id),
		zap.String("from", prev),
		zap.String("to", status),
	)
	return c, nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrSlugTaken):
		return ErrSlugTaken
	case errors.Is(err, repository.ErrNumberTaken):
		return ErrNumberTaken
	}
	return err
}

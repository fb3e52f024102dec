package comic

import (
	"context"

	"contenthub/internal/model"
	"contenthub/internal/repository"
	"contenthub/pkg/db"
	"contenthub/pkg/pagination"
)

type ComicStore interface {
	Create(ctx context.Context, c *model.Comic) error
	GetByID(ctx context.Context, tenantID, id int64) (*model.Comic, error)
	GetBySlug(ctx context.Context, tenantID int64, slug string) (*model.Comic, error)
	SlugExists(ctx context.Context, tenantID int64, slug string) (bool, error)
	Update(ctx context.Context, c *model.Comic) error
	LockStatus(ctx context.Context, q db.Querier, tenantID, id int64) (string, error)
	SetStatus(ctx context.Context, q db.Querier, tenantID, id int64, status string) (*model.Comic, error)
	Delete(ctx context.Context, tenantID, id int64) error
	List(ctx context.Context, tenantID int64, f model.ComicFilter, p pagination.Params) ([]*model.Comic, int64, error)
}

// EpisodeStore 卷、章节与阅读记录
type EpisodeStore interface {
	CreateVolume(ctx context.Context, v *model.Volume) error
	ListVolumes(ctx context.Context, comicID int64) ([]*model.Volume, error)
	GetVolume(ctx context.Context, tenantID, id int64) (*model.Volume, error)
	UpdateVolume(ctx context.Context, v *model.Volume) error
	DeleteVolume(ctx context.Context, id int64) error
	CreateEpisode(ctx context.Context, e *model.Episode) error
	ListEpisodes(ctx context.Context, comicID int64, publishedOnly bool) ([]*model.Episode, error)
	GetEpisode(ctx context.Context, tenantID, id int64) (*model.Episode, error)
	UpdateEpisode(ctx context.Context, e *model.Episode) error
	LockEpisodeStatus(ctx context.Context, q db.Querier, tenantID, id int64) (string, error)
	SetEpisodeStatus(ctx context.Context, q db.Querier, id int64, status string) (*model.Episode, error)
	DeleteEpisode(ctx context.Context, id int64) error
	RecordRead(ctx context.Context, q db.Querier, userID, episodeID int64) (bool, error)
}

// PageStore 页与分格
type PageStore interface {
	AddPage(ctx context.Context, p *model.Page) error
	ListPages(ctx context.Context, episodeID int64) ([]*model.Page, error)
	GetPage(ctx context.Context, tenantID, pageID int64) (*model.Page, error)
	DeletePage(ctx context.Context, pageID int64) error
	LockPageIDs(ctx context.Context, q db.Querier, episodeID int64) ([]int64, error)
	Renumber(ctx context.Context, q db.Querier, episodeID int64, ids []int64) error
	AddPanel(ctx context.Context, pn *model.Panel) error
	ListPanels(ctx context.Context, pageID int64) ([]*model.Panel, error)
	GetPanel(ctx context.Context, tenantID, panelID int64) (*model.Panel, error)
	UpdatePanel(ctx context.Context, pn *model.Panel) error
	DeletePanel(ctx context.Context, panelID int64) error
}

var (
	_ ComicStore   = (*repository.ComicRepository)(nil)
	_ EpisodeStore = (*repository.EpisodeRepository)(nil)
	_ PageStore    = (*repository.PageRepository)(nil)
)

// entersPublished 只有从非发布状态切到 published 才算首次发布
func entersPublished(prev, next string) bool {
	return next == model.StatusPublished && prev != model.StatusPublished
}

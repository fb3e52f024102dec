package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contenthub/internal/model"
	"contenthub/internal/service/comic"
	"contenthub/pkg/pagination"
)

type ComicService interface {
	CreateComic(ctx context.Context, tenantID, userID int64, in comic.ComicInput) (*model.Comic, error)
	GetComic(ctx context.Context, tenantID, id int64, slugKey string, publicOnly bool) (*model.Comic, error)
	UpdateComic(ctx context.Context, tenantID, id int64, in comic.ComicInput) (*model.Comic, error)
	DeleteComic(ctx context.Context, tenantID, id int64) error
	ListComics(ctx context.Context, tenantID int64, f model.ComicFilter, p pagination.Params, publicOnly bool) (pagination.Page[*model.Comic], error)
	SetComicStatus(ctx context.Context, tenantID, userID, id int64, status string) (*model.Comic, error)

	CreateVolume(ctx context.Context, tenantID, comicID int64, in comic.VolumeInput) (*model.Volume, error)
	ListVolumes(ctx context.Context, tenantID, comicID int64) ([]*model.Volume, error)
	UpdateVolume(ctx context.Context, tenantID, id int64, in comic.VolumeInput) (*model.Volume, error)
	DeleteVolume(ctx context.Context, tenantID, id int64) error

	CreateEpisode(ctx context.Context, tenantID, comicID int64, in comic.EpisodeInput) (*model.Episode, error)
	ListEpisodes(ctx context.Context, tenantID, comicID int64, publicOnly bool) ([]*model.Episode, error)
	GetEpisode(ctx context.Context, tenantID, id int64) (*model.Episode, error)
	UpdateEpisode(ctx context.Context, tenantID, id int64, in comic.EpisodeInput) (*model.Episode, error)
	DeleteEpisode(ctx context.Context, tenantID, id int64) error
	SetEpisodeStatus(ctx context.Context, tenantID, userID, id int64, status string) (*model.Episode, error)
	ReadEpisode(ctx context.Context, tenantID, userID, episodeID int64) (*model.EpisodeDetail, error)
	RecordRead(ctx context.Context, tenantID, userID, episodeID int64) (*comic.ReadResult, error)

	AddPage(ctx context.Context, tenantID, episodeID int64, in comic.PageInput) (*model.Page, error)
	ListPages(ctx context.Context, tenantID, episodeID int64) ([]*model.Page, error)
	DeletePage(ctx context.Context, tenantID, pageID int64) error
	ReorderPages(ctx context.Context, tenantID, episodeID int64, order []int64) ([]*model.Page, error)

	AddPanel(ctx context.Context, tenantID, pageID int64, in comic.PanelInput) (*model.Panel, error)
	ListPanels(ctx context.Context, tenantID, pageID int64) ([]*model.Panel, error)
	UpdatePanel(ctx context.Context, tenantID, panelID int64, in comic.PanelInput) (*model.Panel, error)
	DeletePanel(ctx context.Context, tenantID, panelID int64) error
}

type ComicHandler struct {
	svc    ComicService
	logger *zap.Logger
}

func NewComicHandler(svc ComicService, logger *zap.Logger) *ComicHandler {
	return &ComicHandler{svc: svc, logger: logger}
}

func (h *ComicHandler) list(c *gin.Context, publicOnly bool) {
	f := model.ComicFilter{Status: c.Query("status"), Query: c.Query("q")}
	page, err := h.svc.ListComics(c.Request.Context(), TenantID(c), f, pageParams(c), publicOnly)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// ListPublic GET /comics
func (h *ComicHandler) ListPublic(c *gin.Context) { h.list(c, true) }

// ListAdmin GET /admin/comics?status=&q=
func (h *ComicHandler) ListAdmin(c *gin.Context) { h.list(c, false) }

// GetPublic GET /comics/:key，key 为数字时先按 id，查不到再按 slug
func (h *ComicHandler) GetPublic(c *gin.Context) {
	key := c.Param("key")
	var (
		id      int64
		slugKey string
	)
	if n, err := strconv.ParseInt(key, 10, 64); err == nil && n > 0 {
		id = n
	} else {
		slugKey = key
	}

	cm, err := h.svc.GetComic(c.Request.Context(), TenantID(c), id, slugKey, true)
	if id > 0 && errors.Is(err, comic.ErrNotFound) {
		cm, err = h.svc.GetComic(c.Request.Context(), TenantID(c), 0, key, true)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	episodes, err := h.svc.ListEpisodes(c.Request.Context(), TenantID(c), cm.ID, true)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comic": cm, "episodes": episodes})
}

// GetAdmin GET /admin/comics/:id
func (h *ComicHandler) GetAdmin(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	cm, err := h.svc.GetComic(c.Request.Context(), TenantID(c), id, "", false)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

// Create POST /admin/comics
func (h *ComicHandler) Create(c *gin.Context) {
	var in comic.ComicInput
	if !bindJSON(c, &in) {
		return
	}
	cm, err := h.svc.CreateComic(c.Request.Context(), TenantID(c), UserID(c), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

// Update PUT /admin/comics/:id
func (h *ComicHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in comic.ComicInput
	if !bindJSON(c, &in) {
		return
	}
	cm, err := h.svc.UpdateComic(c.Request.Context(), TenantID(c), id, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

// Delete DELETE /admin/comics/:id
func (h *ComicHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteComic(c.Request.Context(), TenantID(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetStatus 返回 publish / unpublish / archive 共用的处理函数
func (h *ComicHandler) SetStatus(status string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		cm, err := h.svc.SetComicStatus(c.Request.Context(), TenantID(c), UserID(c), id, status)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, cm)
	}
}

// CreateVolume POST /admin/comics/:id/volumes
func (h *ComicHandler) CreateVolume(c *gin.Context) {
	comicID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in comic.VolumeInput
	if !bindJSON(c, &in) {
		return
	}
	v, err := h.svc.CreateVolume(c.Request.Context(), TenantID(c), comicID, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// ListVolumes GET /admin/comics/:id/volumes
func (h *ComicHandler) ListVolumes(c *gin.Context) {
	comicID, ok := paramID(c, "id")
	if !ok {
		return
	}
	items, err := h.svc.ListVolumes(c.Request.Context(), TenantID(c), comicID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// UpdateVolume PUT /admin/volumes/:id
func (h *ComicHandler) UpdateVolume(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in comic.VolumeInput
	if !bindJSON(c, &in) {
		return
	}
	v, err := h.svc.UpdateVolume(c.Request.Context(), TenantID(c), id, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// DeleteVolume DELETE /admin/volumes/:id
func (h *ComicHandler) DeleteVolume(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteVolume(c.Request.Context(), TenantID(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateEpisode POST /admin/comics/:id/episodes
func (h *ComicHandler) CreateEpisode(c *gin.Context) {
	comicID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in comic.EpisodeInput
	if !bindJSON(c, &in) {
		return
	}
	e, err := h.svc.CreateEpisode(c.Request.Context(), TenantID(c), comicID, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

// ListEpisodes GET /admin/comics/:id/episodes
func (h *ComicHandler) ListEpisodes(c *gin.Context) {
	comicID, ok := paramID(c, "id")
	if !ok {
		return
	}
	items, err := h.svc.ListEpisodes(c.Request.Context(), TenantID(c), comicID, false)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetEpisode GET /admin/episodes/:id
func (h *ComicHandler) GetEpisode(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	e, err := h.svc.GetEpisode(c.Request.Context(), TenantID(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// UpdateEpisode PUT /admin/episodes/:id
func (h *ComicHandler) UpdateEpisode(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in comic.EpisodeInput
	if !bindJSON(c, &in) {
		return
	}
	e, err := h.svc.UpdateEpisode(c.Request.Context(), TenantID(c), id, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// DeleteEpisode DELETE /admin/episodes/:id
func (h *ComicHandler) DeleteEpisode(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteEpisode(c.Request.Context(), TenantID(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetEpisodeStatus POST /admin/episodes/:id/publish 等
func (h *ComicHandler) SetEpisodeStatus(status string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		e, err := h.svc.SetEpisodeStatus(c.Request.Context(), TenantID(c), UserID(c), id, status)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// ReadEpisode GET /episodes/:id，匿名可读未锁定章节
func (h *ComicHandler) ReadEpisode(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	detail, err := h.svc.ReadEpisode(c.Request.Context(), TenantID(c), UserID(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// RecordRead POST /episodes/:id/read
func (h *ComicHandler) RecordRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.RecordRead(c.Request.Context(), TenantID(c), UserID(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AddPage POST /admin/episodes/:id/pages
func (h *ComicHandler) AddPage(c *gin.Context) {
	episodeID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in comic.PageInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.svc.AddPage(c.Request.Context(), TenantID(c), episodeID, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// ListPages GET /admin/episodes/:id/pages
func (h *ComicHandler) ListPages(c *gin.Context) {
	episodeID, ok := paramID(c, "id")
	if !ok {
		return
	}
	items, err := h.svc.ListPages(c.Request.Context(), TenantID(c), episodeID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type reorderRequest struct {
	PageIDs []int64 `json:"page_ids"`
}

// ReorderPages PUT /admin/episodes/:id/pages/order
func (h *ComicHandler) ReorderPages(c *gin.Context) {
	episodeID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req reorderRequest
	if !bindJSON(c, &req) {
		return
	}
	items, err := h.svc.ReorderPages(c.Request.Context(), TenantID(c), episodeID, req.PageIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// DeletePage DELETE /admin/pages/:id
func (h *ComicHandler) DeletePage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeletePage(c.Request.Context(), TenantID(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddPanel POST /admin/pages/:id/panels
func (h *ComicHandler) AddPanel(c *gin.Context) {
	pageID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in comic.PanelInput
	if !bindJSON(c, &in) {
		return
	}
	pn, err := h.svc.AddPanel(c.Request.Context(), TenantID(c), pageID, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, pn)
}

// ListPanels GET /admin/pages/:id/panels
func (h *ComicHandler) ListPanels(c *gin.Context) {
	pageID, ok := paramID(c, "id")
	if !ok {
		return
	}
	items, err := h.svc.ListPanels(c.Request.Context(), TenantID(c), pageID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// UpdatePanel PUT /admin/panels/:id
func (h *ComicHandler) UpdatePanel(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in comic.PanelInput
	if !bindJSON(c, &in) {
		return
	}
	pn, err := h.svc.UpdatePanel(c.Request.Context(), TenantID(c), id, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pn)
}

// DeletePanel DELETE /admin/panels/:id
func (h *ComicHandler) DeletePanel(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeletePanel(c.Request.Context(), TenantID(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

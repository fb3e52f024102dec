package comic

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"contenthub/internal/model"
	"contenthub/pkg/db"
)

type PageInput struct {
	PageNumber int    `json:"page_number"`
	ImageURL   string `json:"image_url"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

func (s *Service) AddPage(ctx context.Context, tenantID, episodeID int64, in PageInput) (*model.Page, error) {
	if strings.TrimSpace(in.ImageURL) == "" || in.Width < 0 || in.Height < 0 || in.PageNumber < 0 {
		return nil, ErrInvalidPage
	}
	if _, err := s.episodes.GetEpisode(ctx, tenantID, episodeID); err != nil {
		return nil, mapErr(err)
	}
	p := &model.Page{
		EpisodeID:  episodeID,
		PageNumber: in.PageNumber,
		ImageURL:   strings.TrimSpace(in.ImageURL),
		Width:      in.Width,
		Height:     in.Height,
	}
	if err := s.pages.AddPage(ctx, p); err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (s *Service) ListPages(ctx context.Context, tenantID, episodeID int64) ([]*model.Page, error) {
	if _, err := s.episodes.GetEpisode(ctx, tenantID, episodeID); err != nil {
		return nil, mapErr(err)
	}
	return s.pages.ListPages(ctx, episodeID)
}

func (s *Service) DeletePage(ctx context.Context, tenantID, pageID int64) error {
	if _, err := s.pages.GetPage(ctx, tenantID, pageID); err != nil {
		return mapErr(err)
	}
	return mapErr(s.pages.DeletePage(ctx, pageID))
}

// ValidateOrder order 必须恰好是 current 的一个排列
func ValidateOrder(current, order []int64) error {
	if len(current) != len(order) {
		return ErrInvalidOrder
	}
	remaining := make(map[int64]struct{}, len(current))
	for _, id := range current {
		remaining[id] = struct{}{}
	}
	for _, id := range order {
		if _, ok := remaining[id]; !ok {
			return ErrInvalidOrder
		}
		delete(remaining, id)
	}
	return nil
}

// ReorderPages 按给定顺序把页码重写为 1..n
func (s *Service) ReorderPages(ctx context.Context, tenantID, episodeID int64, order []int64) ([]*model.Page, error) {
	if _, err := s.episodes.GetEpisode(ctx, tenantID, episodeID); err != nil {
		return nil, mapErr(err)
	}
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		current, err := s.pages.LockPageIDs(ctx, tx, episodeID)
		if err != nil {
			return err
		}
		if err := ValidateOrder(current, order); err != nil {
			return err
		}
		return s.pages.Renumber(ctx, tx, episodeID, order)
	})
	if err != nil {
		return nil, err
	}
	return s.pages.ListPages(ctx, episodeID)
}

type PanelInput struct {
	PanelNumber int    `json:"panel_number"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Dialogue    string `json:"dialogue"`
}

func (in PanelInput) validate() error {
	if in.PanelNumber < 0 || in.X < 0 || in.Y < 0 || in.Width < 0 || in.Height < 0 {
		return ErrInvalidPanel
	}
	return nil
}

func (s *Service) AddPanel(ctx context.Context, tenantID, pageID int64, in PanelInput) (*model.Panel, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.pages.GetPage(ctx, tenantID, pageID); err != nil {
		return nil, mapErr(err)
	}
	pn := &model.Panel{
		PageID:      pageID,
		PanelNumber: in.PanelNumber,
		X:           in.X,
		Y:           in.Y,
		Width:       in.Width,
		Height:      in.Height,
		Dialogue:    in.Dialogue,
	}
	if err := s.pages.AddPanel(ctx, pn); err != nil {
		return nil, mapErr(err)
	}
	return pn, nil
}

func (s *Service) ListPanels(ctx context.Context, tenantID, pageID int64) ([]*model.Panel, error) {
	if _, err := s.pages.GetPage(ctx, tenantID, pageID); err != nil {
		return nil, mapErr(err)
	}
	return s.pages.ListPanels(ctx, pageID)
}

func (s *Service) UpdatePanel(ctx context.Context, tenantID, panelID int64, in PanelInput) (*model.Panel, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	pn, err := s.pages.GetPanel(ctx, tenantID, panelID)
	if err != nil {
		return nil, mapErr(err)
	}
	if in.PanelNumber > 0 {
		pn.PanelNumber = in.PanelNumber
	}
	pn.X, pn.Y, pn.Width, pn.Height = in.X, in.Y, in.Width, in.Height
	pn.Dialogue = in.Dialogue
	if err := s.pages.UpdatePanel(ctx, pn); err != nil {
		return nil, mapErr(err)
	}
	return pn, nil
}

func (s *Service) DeletePanel(ctx context.Context, tenantID, panelID int64) error {
	if _, err := s.pages.GetPanel(ctx, tenantID, panelID); err != nil {
		return mapErr(err)
	}
	return mapErr(s.pages.DeletePanel(ctx, panelID))
}

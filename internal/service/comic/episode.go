package comic

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"contenthub/contracts/events"
	"contenthub/internal/model"
	"contenthub/internal/repository"
	"contenthub/internal/service/points"
	"contenthub/pkg/db"
	"contenthub/pkg/rbac"
)

type VolumeInput struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

func (s *Service) CreateVolume(ctx context.Context, tenantID, comicID int64, in VolumeInput) (*model.Volume, error) {
	if in.Number <= 0 {
		return nil, ErrInvalidNumber
	}
	if _, err := s.comics.GetByID(ctx, tenantID, comicID); err != nil {
		return nil, mapErr(err)
	}
	v := &model.Volume{ComicID: comicID, Number: in.Number, Title: strings.TrimSpace(in.Title)}
	if err := s.episodes.CreateVolume(ctx, v); err != nil {
		return nil, mapErr(err)
	}
	return v, nil
}

func (s *Service) ListVolumes(ctx context.Context, tenantID, comicID int64) ([]*model.Volume, error) {
	if _, err := s.comics.GetByID(ctx, tenantID, comicID); err != nil {
		return nil, mapErr(err)
	}
	return s.episodes.ListVolumes(ctx, comicID)
}

func (s *Service) UpdateVolume(ctx context.Context, tenantID, id int64, in VolumeInput) (*model.Volume, error) {
	if in.Number <= 0 {
		return nil, ErrInvalidNumber
	}
	v, err := s.episodes.GetVolume(ctx, tenantID, id)
	if err != nil {
		return nil, mapErr(err)
	}
	v.Number = in.Number
	v.Title = strings.TrimSpace(in.Title)
	if err := s.episodes.UpdateVolume(ctx, v); err != nil {
		return nil, mapErr(err)
	}
	return v, nil
}

func (s *Service) DeleteVolume(ctx context.Context, tenantID, id int64) error {
	if _, err := s.episodes.GetVolume(ctx, tenantID, id); err != nil {
		return mapErr(err)
	}
	return mapErr(s.episodes.DeleteVolume(ctx, id))
}

type EpisodeInput struct {
	VolumeID *int64 `json:"volume_id"`
	Number   int    `json:"number"`
	Title    string `json:"title"`
	IsLocked bool   `json:"is_locked"`
}

// checkVolume 卷必须属于同一部漫画
func (s *Service) checkVolume(ctx context.Context, tenantID, comicID int64, volumeID *int64) error {
	if volumeID == nil {
		return nil
	}
	v, err := s.episodes.GetVolume(ctx, tenantID, *volumeID)
	if err != nil {
		return mapErr(err)
	}
	if v.ComicID != comicID {
		return ErrNotFound
	}
	return nil
}

func (s *Service) CreateEpisode(ctx context.Context, tenantID, comicID int64, in EpisodeInput) (*model.Episode, error) {
	if in.Number <= 0 {
		return nil, ErrInvalidNumber
	}
	if _, err := s.comics.GetByID(ctx, tenantID, comicID); err != nil {
		return nil, mapErr(err)
	}
	if err := s.checkVolume(ctx, tenantID, comicID, in.VolumeID); err != nil {
		return nil, err
	}
	e := &model.Episode{
		ComicID:  comicID,
		VolumeID: in.VolumeID,
		Number:   in.Number,
		Title:    strings.TrimSpace(in.Title),
		IsLocked: in.IsLocked,
		Status:   model.StatusDraft,
	}
	if err := s.episodes.CreateEpisode(ctx, e); err != nil {
		return nil, mapErr(err)
	}
	return e, nil
}

// ListEpisodes publicOnly 时要求漫画已发布，且只列出已发布章节
func (s *Service) ListEpisodes(ctx context.Context, tenantID, comicID int64, publicOnly bool) ([]*model.Episode, error) {
	c, err := s.comics.GetByID(ctx, tenantID, comicID)
	if err != nil {
		return nil, mapErr(err)
	}
	if publicOnly && c.Status != model.StatusPublished {
		return nil, ErrNotFound
	}
	return s.episodes.ListEpisodes(ctx, comicID, publicOnly)
}

func (s *Service) GetEpisode(ctx context.Context, tenantID, id int64) (*model.Episode, error) {
	e, err := s.episodes.GetEpisode(ctx, tenantID, id)
	return e, mapErr(err)
}

func (s *Service) UpdateEpisode(ctx context.Context, tenantID, id int64, in EpisodeInput) (*model.Episode, error) {
	if in.Number <= 0 {
		return nil, ErrInvalidNumber
	}
	e, err := s.episodes.GetEpisode(ctx, tenantID, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := s.checkVolume(ctx, tenantID, e.ComicID, in.VolumeID); err != nil {
		return nil, err
	}
	e.VolumeID = in.VolumeID
	e.Number = in.Number
	e.Title = strings.TrimSpace(in.Title)
	e.IsLocked = in.IsLocked
	if err := s.episodes.UpdateEpisode(ctx, e); err != nil {
		return nil, mapErr(err)
	}
	return e, nil
}

func (s *Service) DeleteEpisode(ctx context.Context, tenantID, id int64) error {
	if _, err := s.episodes.GetEpisode(ctx, tenantID, id); err != nil {
		return mapErr(err)
	}
	return mapErr(s.episodes.DeleteEpisode(ctx, id))
}

func (s *Service) SetEpisodeStatus(ctx context.Context, tenantID, userID, id int64, status string) (*model.Episode, error) {
	if !model.ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	var e *model.Episode
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		prev, err := s.episodes.LockEpisodeStatus(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		e, err = s.episodes.SetEpisodeStatus(ctx, tx, id, status)
		if err != nil || !entersPublished(prev, status) {
			return err
		}
		payload := events.ContentPublishedPayload{
			Envelope:    events.NewEnvelope(ctx, tenantID),
			ContentType: "episode",
			ContentID:   e.ID,
			Title:       e.Title,
			PublishedBy: userID,
		}
		_, err = s.enqueue(ctx, tx, tenantID, "episode", e.ID, events.ContentPublished, payload)
		return err
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return e, nil
}

// Reader 阅读者身份；UserID 为 0 表示匿名
type Reader struct {
	UserID   int64
	IsVIP    bool
	CanWrite bool
}

// CheckAccess 编辑可读任何章节；其他人只能读已发布内容，锁定章节还需要有效 VIP
func CheckAccess(c *model.Comic, e *model.Episode, r Reader) error {
	if r.CanWrite {
		return nil
	}
	if c.Status != model.StatusPublished || e.Status != model.StatusPublished {
		return ErrNotFound
	}
	if e.IsLocked && !r.IsVIP {
		return ErrVIPRequired
	}
	return nil
}

func (s *Service) reader(ctx context.Context, tenantID, userID int64) (Reader, error) {
	r := Reader{UserID: userID}
	if userID == 0 {
		return r, nil
	}
	u, err := s.users.FindByID(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return r, nil
		}
		return r, err
	}
	r.IsVIP = u.IsVIP(s.now())
	r.CanWrite, err = s.checker.HasPermission(ctx, tenantID, userID, rbac.PermissionComicWrite)
	return r, err
}

func (s *Service) accessibleEpisode(ctx context.Context, tenantID, userID, episodeID int64) (*model.Episode, error) {
	e, err := s.episodes.GetEpisode(ctx, tenantID, episodeID)
	if err != nil {
		return nil, mapErr(err)
	}
	c, err := s.comics.GetByID(ctx, tenantID, e.ComicID)
	if err != nil {
		return nil, mapErr(err)
	}
	r, err := s.reader(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if err := CheckAccess(c, e, r); err != nil {
		return nil, err
	}
	return e, nil
}

// ReadEpisode 返回章节及页面
func (s *Service) ReadEpisode(ctx context.Context, tenantID, userID, episodeID int64) (*model.EpisodeDetail, error) {
	e, err := s.accessibleEpisode(ctx, tenantID, userID, episodeID)
	if err != nil {
		return nil, err
	}
	pages, err := s.pages.ListPages(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	return &model.EpisodeDetail{Episode: e, Pages: pages}, nil
}

// ReadResult 阅读打点结果
type ReadResult struct {
	FirstRead bool  `json:"first_read"`
	Awarded   int64 `json:"awarded"`
}

// RecordRead 首次阅读发放 episode_read 积分
func (s *Service) RecordRead(ctx context.Context, tenantID, userID, episodeID int64) (*ReadResult, error) {
	e, err := s.accessibleEpisode(ctx, tenantID, userID, episodeID)
	if err != nil {
		return nil, err
	}

	reward := s.pointsSvc.Config().EpisodeReadPoints
	res := &ReadResult{}
	var newTotal int64
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		first, err := s.episodes.RecordRead(ctx, tx, userID, e.ID)
		if err != nil {
			return err
		}
		res.FirstRead = first
		if !first || reward <= 0 {
			return nil
		}
		refID := e.ID
		award, err := s.pointsSvc.Award(ctx, tx, points.AwardInput{
			TenantID: tenantID,
			UserID:   userID,
			Delta:    reward,
			Reason:   model.ReasonEpisodeRead,
			RefType:  "episode",
			RefID:    &refID,
		})
		if err != nil {
			return err
		}
		res.Awarded = reward
		newTotal = award.NewTotal
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Awarded > 0 {
		s.pointsSvc.SyncLeaderboard(ctx, tenantID, userID, newTotal)
	}
	s.logger.Debug("Episode read recorded",
		zap.Int64("user_id", userID),
		zap.Int64("episode_id", e.ID),
		zap.Bool("first_read", res.FirstRead),
	)
	return res, nil
}

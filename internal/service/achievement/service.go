package achievement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"contenthub/contracts/events"
	"contenthub/internal/model"
	"contenthub/internal/repository"
	"contenthub/internal/service/points"
	"contenthub/pkg/db"
	"contenthub/pkg/metrics"
	"contenthub/pkg/outbox"
)

var (
	ErrNotFound  = errors.New("achievement not found")
	ErrCodeTaken = errors.New("achievement code already exists")
	ErrInvalid   = errors.New("invalid achievement")
)

// MaxRounds 解锁奖励可能触发新的成就，最多连锁这么多轮
const MaxRounds = 5

// Evaluate 用户统计是否满足成就条件，未知条件类型永不满足
func Evaluate(a *model.Achievement, s *model.UserStats) bool {
	if a == nil || s == nil || !a.Active {
		return false
	}
	var v int64
	switch a.ConditionType {
	case model.ConditionTotalPoints:
		v = s.TotalPoints
	case model.ConditionLevel:
		v = int64(s.Level)
	case model.ConditionCheckinStreak:
		v = int64(s.CheckinStreak)
	case model.ConditionEpisodesRead:
		v = s.EpisodesRead
	case model.ConditionReferrals:
		v = s.Referrals
	case model.ConditionRedeemCount:
		v = s.RedeemCount
	default:
		return false
	}
	return v >= a.Threshold
}

// Satisfied 过滤出满足条件的成就
func Satisfied(list []*model.Achievement, s *model.UserStats) []*model.Achievement {
	var out []*model.Achievement
	for _, a := range list {
		if Evaluate(a, s) {
			out = append(out, a)
		}
	}
	return out
}

// Validate 校验管理端提交的成就
func Validate(a *model.Achievement) error {
	a.Code = strings.TrimSpace(a.Code)
	a.Name = strings.TrimSpace(a.Name)
	switch {
	case a.Code == "" || len(a.Code) > 64:
		return errors.Join(ErrInvalid, errors.New("code is required (max 64 chars)"))
	case a.Name == "":
		return errors.Join(ErrInvalid, errors.New("name is required"))
	case !model.ValidCondition(a.ConditionType):
		return errors.Join(ErrInvalid, errors.New("unknown condition_type"))
	case a.Threshold < 1:
		return errors.Join(ErrInvalid, errors.New("threshold must be >= 1"))
	case a.RewardPoints < 0:
		return errors.Join(ErrInvalid, errors.New("reward_points must be >= 0"))
	}
	return nil
}

type Service struct {
	pool   *pgxpool.Pool
	repo   *repository.AchievementRepository
	points *points.Service
	logger *zap.Logger
	now    func() time.Time
}

func NewService(pool *pgxpool.Pool, repo *repository.AchievementRepository, pointsSvc *points.Service, logger *zap.Logger) *Service {
	return &Service{pool: pool, repo: repo, points: pointsSvc, logger: logger, now: time.Now}
}

// CheckAndUnlock 解锁所有已满足的成就并发放奖励，返回本次新解锁的成就
func (s *Service) CheckAndUnlock(ctx context.Context, tenantID, userID int64) ([]*model.Achievement, error) {
	var unlocked []*model.Achievement
	var lastTotal *int64

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		unlocked = unlocked[:0]
		lastTotal = nil
		today := points.Day(s.now())

		for round := 0; round < MaxRounds; round++ {
			stats, err := s.repo.Stats(ctx, tx, tenantID, userID, today)
			if err != nil {
				return err
			}
			locked, err := s.repo.ListLocked(ctx, tx, tenantID, userID)
			if err != nil {
				return err
			}

			newThisRound := 0
			for _, a := range Satisfied(locked, stats) {
				ok, err := s.repo.Unlock(ctx, tx, userID, a.ID)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				newThisRound++
				unlocked = append(unlocked, a)

				if a.RewardPoints > 0 {
					refID := a.ID
					res, err := s.points.Award(ctx, tx, points.AwardInput{
						TenantID: tenantID,
						UserID:   userID,
						Delta:    a.RewardPoints,
						Reason:   model.ReasonAchievement,
						RefType:  "achievement",
						RefID:    &refID,
					})
					if err != nil {
						return err
					}
					lastTotal = &res.NewTotal
				}

				payload := events.AchievementUnlockedPayload{
					Envelope:      events.NewEnvelope(ctx, tenantID),
					UserID:        userID,
					AchievementID: a.ID,
					Code:          a.Code,
					ConditionType: a.ConditionType,
					RewardPoints:  a.RewardPoints,
				}
				if _, err := outbox.Enqueue(ctx, tx, tenantID, "achievement", a.ID, events.AchievementUnlocked, payload); err != nil {
					return err
				}
			}
			if newThisRound == 0 {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, a := range unlocked {
		metrics.IncrementAchievementUnlocked(a.ConditionType)
		s.logger.Info("Achievement unlocked",
			zap.Int64("tenant_id", tenantID),
			zap.Int64("user_id", userID),
			zap.String("code", a.Code),
		)
	}
	if lastTotal != nil {
		s.points.SyncLeaderboard(ctx, tenantID, userID, *lastTotal)
	}
	return unlocked, nil
}

func (s *Service) ListForUser(ctx context.Context, tenantID, userID int64) ([]*model.UserAchievement, error) {
	return s.repo.ListForUser(ctx, tenantID, userID)
}

func (s *Service) List(ctx context.Context, tenantID int64) ([]*model.Achievement, error) {
	return s.repo.List(ctx, tenantID)
}

func (s *Service) Create(ctx context.Context, a *model.Achievement) error {
	if err := Validate(a); err != nil {
		return err
	}
	return mapErr(s.repo.Create(ctx, a))
}

func (s *Service) Update(ctx context.Context, a *model.Achievement) error {
	if err := Validate(a); err != nil {
		return err
	}
	return mapErr(s.repo.Update(ctx, a))
}

func (s *Service) Get(ctx context.Context, tenantID, id int64) (*model.Achievement, error) {
	a, err := s.repo.Get(ctx, tenantID, id)
	return a, mapErr(err)
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
	case errors.Is(err, repository.ErrAchievementCodeTaken):
		return ErrCodeTaken
	}
	return err
}

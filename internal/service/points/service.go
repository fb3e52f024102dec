package points

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"contenthub/config"
	"contenthub/contracts/events"
	"contenthub/internal/model"
	"contenthub/internal/repository"
	"contenthub/pkg/db"
	"contenthub/pkg/metrics"
	"contenthub/pkg/outbox"
	"contenthub/pkg/pagination"
)

var (
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrZeroDelta          = errors.New("delta must not be zero")
	ErrAlreadyCheckedIn   = errors.New("already checked in today")
	ErrUserNotFound       = errors.New("user not found")
	ErrReasonRequired     = errors.New("reason is required")
)

const (
	DefaultLeaderboardSize = 10
	MaxLeaderboardSize     = 100
)

// Store 积分流水、汇总与签到的持久化
type Store interface {
	LockSummary(ctx context.Context, q db.Querier, tenantID, userID int64) (int64, int, error)
	InsertTransaction(ctx context.Context, q db.Querier, t *model.PointTransaction) error
	UpdateSummary(ctx context.Context, q db.Querier, tenantID, userID, total int64, level int) error
	GetSummary(ctx context.Context, tenantID, userID int64) (*model.PointSummary, error)
	ListTransactions(ctx context.Context, tenantID, userID int64, p pagination.Params) ([]*model.PointTransaction, int64, error)
	LastCheckin(ctx context.Context, q db.Querier, userID int64) (*model.Checkin, error)
	InsertCheckin(ctx context.Context, q db.Querier, userID int64, day time.Time, streak int) error
	TopSummaries(ctx context.Context, tenantID int64, limit int) ([]*model.LeaderboardEntry, error)
}

type UserLookup interface {
	FindByID(ctx context.Context, tenantID, id int64) (*model.User, error)
	Nicknames(ctx context.Context, tenantID int64, ids []int64) (map[int64]string, error)
}

// Board 排行榜缓存
type Board interface {
	Update(ctx context.Context, tenantID, userID, total int64) error
	Top(ctx context.Context, tenantID int64, n int) ([]repository.ScoredUser, error)
}

var (
	_ Store      = (*repository.PointsRepository)(nil)
	_ UserLookup = (*repository.UserRepository)(nil)
	_ Board      = (*repository.LeaderboardCache)(nil)
)

type Service struct {
	pool    db.TxBeginner
	repo    Store
	users   UserLookup
	board   Board
	cfg     config.PointsConfig
	logger  *zap.Logger
	now     func() time.Time
	enqueue outbox.EnqueueFunc
}

// NewService board 为 nil 时排行榜直接查库
func NewService(
	pool db.TxBeginner,
	repo Store,
	users UserLookup,
	board Board,
	cfg config.PointsConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		pool:    pool,
		repo:    repo,
		users:   users,
		board:   board,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		enqueue: outbox.Enqueue,
	}
}

func (s *Service) Config() config.PointsConfig { return s.cfg }

type AwardInput struct {
	TenantID int64
	UserID   int64
	Delta    int64
	Reason   string
	RefType  string
	RefID    *int64
}

// ApplyDelta 计算变动后的总分与等级，总分不能为负
func ApplyDelta(oldTotal, delta int64) (int64, int, error) {
	newTotal := oldTotal + delta
	if newTotal < 0 {
		return oldTotal, LevelFor(oldTotal), ErrInsufficientPoints
	}
	return newTotal, LevelFor(newTotal), nil
}

type AwardResult struct {
	OldTotal int64 `json:"old_total"`
	NewTotal int64 `json:"new_total"`
	OldLevel int   `json:"old_level"`
	NewLevel int   `json:"new_level"`
}

// Award 在调用方事务 q 中记账、更新汇总并写入 points.changed 事件
func (s *Service) Award(ctx context.Context, q db.Querier, in AwardInput) (*AwardResult, error) {
	if in.Delta == 0 {
		return nil, ErrZeroDelta
	}
	if in.Reason == "" {
		return nil, ErrReasonRequired
	}

	oldTotal, oldLevel, err := s.repo.LockSummary(ctx, q, in.TenantID, in.UserID)
	if err != nil {
		return nil, err
	}

	newTotal, newLevel, err := ApplyDelta(oldTotal, in.Delta)
	if err != nil {
		return nil, err
	}

	if err := s.repo.InsertTransaction(ctx, q, &model.PointTransaction{
		TenantID: in.TenantID,
		UserID:   in.UserID,
		Delta:    in.Delta,
		Reason:   in.Reason,
		RefType:  in.RefType,
		RefID:    in.RefID,
	}); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSummary(ctx, q, in.TenantID, in.UserID, newTotal, newLevel); err != nil {
		return nil, err
	}

	payload := events.PointsChangedPayload{
		Envelope: events.NewEnvelope(ctx, in.TenantID),
		UserID:   in.UserID,
		Delta:    in.Delta,
		Reason:   in.Reason,
		OldTotal: oldTotal,
		NewTotal: newTotal,
		OldLevel: oldLevel,
		NewLevel: newLevel,
	}
	if _, err := s.enqueue(ctx, q, in.TenantID, "user", in.UserID, events.PointsChanged, payload); err != nil {
		return nil, err
	}

	metrics.AddPoints(in.Reason, in.Delta)
	s.logger.Info("Points awarded",
		zap.Int64("tenant_id", in.TenantID),
		zap.Int64("user_id", in.UserID),
		zap.Int64("delta", in.Delta),
		zap.String("reason", in.Reason),
		zap.Int64("new_total", newTotal),
	)

	return &AwardResult{OldTotal: oldTotal, NewTotal: newTotal, OldLevel: oldLevel, NewLevel: newLevel}, nil
}

// SyncLeaderboard 事务提交后调用，失败只记日志
func (s *Service) SyncLeaderboard(ctx context.Context, tenantID, userID, total int64) {
	if s.board == nil {
		return
	}
	if err := s.board.Update(ctx, tenantID, userID, total); err != nil {
		s.logger.Warn("Failed to update leaderboard",
			zap.Int64("tenant_id", tenantID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}

// Adjust 管理员手动加减积分
func (s *Service) Adjust(ctx context.Context, tenantID, userID, delta int64, reason string) (*AwardResult, error) {
	if _, err := s.users.FindByID(ctx, tenantID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if reason == "" {
		reason = model.ReasonAdmin
	}

	var res *AwardResult
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		res, err = s.Award(ctx, tx, AwardInput{
			TenantID: tenantID,
			UserID:   userID,
			Delta:    delta,
			Reason:   reason,
			RefType:  model.ReasonAdmin,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.SyncLeaderboard(ctx, tenantID, userID, res.NewTotal)
	return res, nil
}

// Checkin 每个 UTC 日一次
func (s *Service) Checkin(ctx context.Context, tenantID, userID int64) (*model.CheckinResult, error) {
	today := Day(s.now())

	var result *model.CheckinResult
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		last, err := s.repo.LastCheckin(ctx, tx, userID)
		if err != nil {
			return err
		}
		streak, err := NextStreak(last, today)
		if err != nil {
			return err
		}
		if err := s.repo.InsertCheckin(ctx, tx, userID, today, streak); err != nil {
			if errors.Is(err, repository.ErrAlreadyCheckedIn) {
				return ErrAlreadyCheckedIn
			}
			return err
		}

		base, bonus := CheckinReward(streak, s.cfg)
		result = &model.CheckinResult{Streak: streak, Awarded: base, Bonus: bonus}

		total := base + bonus
		if total == 0 {
			summary, err := s.repo.GetSummary(ctx, tenantID, userID)
			if err != nil {
				return err
			}
			result.TotalPoints, result.Level = summary.TotalPoints, summary.Level
			return nil
		}
		res, err := s.Award(ctx, tx, AwardInput{
			TenantID: tenantID,
			UserID:   userID,
			Delta:    total,
			Reason:   model.ReasonCheckin,
			RefType:  "checkin",
		})
		if err != nil {
			return err
		}
		result.TotalPoints, result.Level = res.NewTotal, res.NewLevel
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.SyncLeaderboard(ctx, tenantID, userID, result.TotalPoints)
	return result, nil
}

func (s *Service) Summary(ctx context.Context, tenantID, userID int64) (*model.PointSummary, error) {
	summary, err := s.repo.GetSummary(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	summary.Level = LevelFor(summary.TotalPoints)
	summary.NextLevelAt = NextLevelAt(summary.Level)
	summary.Progress = Progress(summary.TotalPoints)
	return summary, nil
}

func (s *Service) Transactions(ctx context.Context, tenantID, userID int64, p pagination.Params) (pagination.Page[*model.PointTransaction], error) {
	items, total, err := s.repo.ListTransactions(ctx, tenantID, userID, p)
	if err != nil {
		return pagination.Page[*model.PointTransaction]{}, err
	}
	return pagination.NewPage(items, total, p), nil
}

// ClampLeaderboardSize 0 取默认值，超出上限截断
func ClampLeaderboardSize(n int) int {
	if n <= 0 {
		return DefaultLeaderboardSize
	}
	if n > MaxLeaderboardSize {
		return MaxLeaderboardSize
	}
	return n
}

// Leaderboard 优先读 Redis，不可用或为空时回退数据库
func (s *Service) Leaderboard(ctx context.Context, tenantID int64, n int) ([]*model.LeaderboardEntry, error) {
	n = ClampLeaderboardSize(n)

	if s.board != nil {
		scored, err := s.board.Top(ctx, tenantID, n)
		if err != nil {
			s.logger.Warn("Leaderboard cache unavailable, falling back to database", zap.Error(err))
		} else if len(scored) > 0 {
			return s.enrich(ctx, tenantID, scored)
		}
	}
	return s.repo.TopSummaries(ctx, tenantID, n)
}

func (s *Service) enrich(ctx context.Context, tenantID int64, scored []repository.ScoredUser) ([]*model.LeaderboardEntry, error) {
	ids := make([]int64, len(scored))
	for i, su := range scored {
		ids[i] = su.UserID
	}
	names, err := s.users.Nicknames(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("leaderboard nicknames: %w", err)
	}
	return BuildLeaderboard(scored, names), nil
}

// BuildLeaderboard 组装排名，不在 names 中的用户（已删除）被跳过
func BuildLeaderboard(scored []repository.ScoredUser, names map[int64]string) []*model.LeaderboardEntry {
	out := make([]*model.LeaderboardEntry, 0, len(scored))
	for _, su := range scored {
		name, ok := names[su.UserID]
		if !ok {
			continue
		}
		out = append(out, &model.LeaderboardEntry{
			Rank:        len(out) + 1,
			UserID:      su.UserID,
			Nickname:    name,
			TotalPoints: su.Total,
			Level:       LevelFor(su.Total),
		})
	}
	return out
}

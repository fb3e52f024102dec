package redeem

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"contenthub/contracts/events"
	"contenthub/internal/model"
	"contenthub/internal/repository"
	"contenthub/internal/service/points"
	"contenthub/pkg/db"
	"contenthub/pkg/metrics"
	"contenthub/pkg/outbox"
	"contenthub/pkg/pagination"
	"contenthub/pkg/util"
)

var (
	ErrCodeNotFound    = errors.New("redeem code not found")
	ErrCodeDisabled    = errors.New("redeem code disabled")
	ErrCodeExpired     = errors.New("redeem code expired")
	ErrCodeExhausted   = errors.New("redeem code exhausted")
	ErrAlreadyRedeemed = errors.New("redeem code already used by this user")
	ErrCodeInUse       = errors.New("redeem code has been used and cannot be deleted")
	ErrInvalidBatch    = errors.New("invalid batch")
	ErrInvalidUpdate   = errors.New("invalid code update")
	ErrUserNotFound    = errors.New("user not found")
)

const (
	MaxBatchSize    = 1000
	maxPrefixLength = 8
	codeAttempts    = 5
	dayDuration     = 24 * time.Hour
)

var prefixPattern = regexp.MustCompile(`^[A-Z0-9]*$`)

// BatchInput 批量生成参数
type BatchInput struct {
	Count       int        `json:"count"`
	Prefix      string     `json:"prefix"`
	RewardType  string     `json:"reward_type"`
	RewardValue int64      `json:"reward_value"`
	MaxUses     int        `json:"max_uses"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// Validate 校验并规范化批次参数，全部错误一并返回
func (in *BatchInput) Validate(now time.Time) error {
	in.Prefix = util.NormalizeCode(in.Prefix)
	if in.MaxUses == 0 {
		in.MaxUses = 1
	}

	var errs []error
	if in.Count < 1 || in.Count > MaxBatchSize {
		errs = append(errs, fmt.Errorf("count must be between 1 and %d", MaxBatchSize))
	}
	if len(in.Prefix) > maxPrefixLength || !prefixPattern.MatchString(in.Prefix) {
		errs = append(errs, fmt.Errorf("prefix must be at most %d chars of A-Z or 0-9", maxPrefixLength))
	}
	if in.RewardType != model.RewardVIPDays && in.RewardType != model.RewardPoints {
		errs = append(errs, fmt.Errorf("reward_type must be %s or %s", model.RewardVIPDays, model.RewardPoints))
	}
	if in.RewardValue <= 0 {
		errs = append(errs, errors.New("reward_value must be positive"))
	}
	if in.MaxUses < 1 {
		errs = append(errs, errors.New("max_uses must be at least 1"))
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		errs = append(errs, errors.New("expires_at must be in the future"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidBatch}, errs...)...)
	}
	return nil
}

// Batch 生成结果
type Batch struct {
	BatchID string   `json:"batch_id"`
	Codes   []string `json:"codes"`
}

// CheckRedeemable 按 disabled、expired、exhausted 的顺序判定
func CheckRedeemable(c *model.RedeemCode, now time.Time) error {
	switch {
	case c.Disabled:
		return ErrCodeDisabled
	case c.ExpiresAt != nil && !c.ExpiresAt.After(now):
		return ErrCodeExpired
	case c.UsedCount >= c.MaxUses:
		return ErrCodeExhausted
	}
	return nil
}

// ExtendVIP 从 max(now, current) 起顺延 days 天
func ExtendVIP(current *time.Time, now time.Time, days int64) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.Add(time.Duration(days) * dayDuration)
}

// Store 兑换码及兑换记录的持久化
type Store interface {
	InsertCode(ctx context.Context, q db.Querier, c *model.RedeemCode) error
	ListCodes(ctx context.Context, tenantID int64, f model.CodeFilter, p pagination.Params) ([]*model.RedeemCode, int64, error)
	GetCode(ctx context.Context, tenantID, id int64) (*model.RedeemCode, error)
	UpdateCode(ctx context.Context, c *model.RedeemCode) error
	DeleteCode(ctx context.Context, tenantID, id int64) error
	LockByCode(ctx context.Context, q db.Querier, tenantID int64, code string) (*model.RedeemCode, error)
	HasRecord(ctx context.Context, q db.Querier, codeID, userID int64) (bool, error)
	Consume(ctx context.Context, q db.Querier, codeID, userID int64) error
}

// VIPStore 锁定用户并写入 VIP 到期时间
type VIPStore interface {
	LockByID(ctx context.Context, q db.Querier, tenantID, id int64) (*model.User, error)
	SetVIPExpiry(ctx context.Context, q db.Querier, userID int64, expiresAt time.Time) error
}

type PointsAwarder interface {
	Award(ctx context.Context, q db.Querier, in points.AwardInput) (*points.AwardResult, error)
	SyncLeaderboard(ctx context.Context, tenantID, userID, total int64)
}

var (
	_ Store         = (*repository.RedeemRepository)(nil)
	_ VIPStore      = (*repository.UserRepository)(nil)
	_ PointsAwarder = (*points.Service)(nil)
)

type Service struct {
	pool      db.TxBeginner
	repo      Store
	users     VIPStore
	pointsSvc PointsAwarder
	logger    *zap.Logger
	now       func() time.Time
	enqueue   outbox.EnqueueFunc
}

func NewService(
	pool db.TxBeginner,
	repo Store,
	users VIPStore,
	pointsSvc PointsAwarder,
	logger *zap.Logger,
) *Service {
	return &Service{
		pool:      pool,
		repo:      repo,
		users:     users,
		pointsSvc: pointsSvc,
		logger:    logger,
		now:       time.Now,
		enqueue:   outbox.Enqueue,
	}
}

// GenerateBatch 一个事务内写入整批码，冲突的码在 savepoint 内重试
func (s *Service) GenerateBatch(ctx context.Context, tenantID int64, in BatchInput) (*Batch, error) {
	if err := in.Validate(s.now()); err != nil {
		return nil, err
	}

	batch := &Batch{BatchID: uuid.NewString(), Codes: make([]string, 0, in.Count)}
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for i := 0; i < in.Count; i++ {
			c := &model.RedeemCode{
				TenantID:    tenantID,
				BatchID:     batch.BatchID,
				RewardType:  in.RewardType,
				RewardValue: in.RewardValue,
				MaxUses:     in.MaxUses,
				ExpiresAt:   in.ExpiresAt,
			}
			if err := s.insertUnique(ctx, tx, c, in.Prefix); err != nil {
				return err
			}
			batch.Codes = append(batch.Codes, c.Code)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Redeem batch generated",
		zap.Int64("tenant_id", tenantID),
		zap.String("batch_id", batch.BatchID),
		zap.Int("count", in.Count),
		zap.String("reward_type", in.RewardType),
		zap.Int64("reward_value", in.RewardValue),
	)
	return batch, nil
}

func (s *Service) insertUnique(ctx context.Context, tx pgx.Tx, c *model.RedeemCode, prefix string) error {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := util.NewRedeemCode(prefix)
		if err != nil {
			return err
		}
		c.Code = code

		sp, err := tx.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin savepoint: %w", err)
		}
		err = s.repo.InsertCode(ctx, sp, c)
		if err == nil {
			return sp.Commit(ctx)
		}
		_ = sp.Rollback(ctx)
		if !errors.Is(err, repository.ErrCodeTaken) {
			return err
		}
		s.logger.Debug("Redeem code collision, retrying", zap.Int("attempt", attempt+1))
	}
	return errors.New("could not allocate a unique redeem code")
}

func (s *Service) ListCodes(ctx context.Context, tenantID int64, f model.CodeFilter, p pagination.Params) (pagination.Page[*model.RedeemCode], error) {
	items, total, err := s.repo.ListCodes(ctx, tenantID, f, p)
	if err != nil {
		return pagination.Page[*model.RedeemCode]{}, err
	}
	return pagination.NewPage(items, total, p), nil
}

// UpdateInput 为 nil 的字段保持不变；ClearExpiry 去掉过期时间
type UpdateInput struct {
	Disabled    *bool      `json:"disabled"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ClearExpiry bool       `json:"clear_expiry"`
	MaxUses     *int       `json:"max_uses"`
}

// Apply 把修改合并到 c 上
func (in UpdateInput) Apply(c *model.RedeemCode) error {
	if in.Disabled != nil {
		c.Disabled = *in.Disabled
	}
	if in.ClearExpiry {
		c.ExpiresAt = nil
	} else if in.ExpiresAt != nil {
		c.ExpiresAt = in.ExpiresAt
	}
	if in.MaxUses != nil {
		if *in.MaxUses < 1 || *in.MaxUses < c.UsedCount {
			return fmt.Errorf("%w: max_uses must be at least 1 and not below used_count %d", ErrInvalidUpdate, c.UsedCount)
		}
		c.MaxUses = *in.MaxUses
	}
	return nil
}

func (s *Service) UpdateCode(ctx context.Context, tenantID, id int64, in UpdateInput) (*model.RedeemCode, error) {
	c, err := s.repo.GetCode(ctx, tenantID, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := in.Apply(c); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCode(ctx, c); err != nil {
		return nil, mapErr(err)
	}
	return c, nil
}

func (s *Service) DeleteCode(ctx context.Context, tenantID, id int64) error {
	return mapErr(s.repo.DeleteCode(ctx, tenantID, id))
}

// Redeem 锁码、校验、计数、发奖在同一事务内完成
func (s *Service) Redeem(ctx context.Context, tenantID, userID int64, raw string) (*model.RedeemResult, error) {
	code := util.NormalizeCode(raw)
	if code == "" {
		metrics.IncrementRedeem("not_found")
		return nil, ErrCodeNotFound
	}
	now := s.now()

	var (
		result   *model.RedeemResult
		newTotal *int64
	)
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		c, err := s.repo.LockByCode(ctx, tx, tenantID, code)
		if err != nil {
			return err
		}
		if err := CheckRedeemable(c, now); err != nil {
			return err
		}
		used, err := s.repo.HasRecord(ctx, tx, c.ID, userID)
		if err != nil {
			return err
		}
		if used {
			return ErrAlreadyRedeemed
		}
		if err := s.repo.Consume(ctx, tx, c.ID, userID); err != nil {
			return err
		}

		result = &model.RedeemResult{Code: c.Code, RewardType: c.RewardType, RewardValue: c.RewardValue}
		switch c.RewardType {
		case model.RewardVIPDays:
			u, err := s.users.LockByID(ctx, tx, tenantID, userID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return ErrUserNotFound
				}
				return err
			}
			expires := ExtendVIP(u.VIPExpiresAt, now, c.RewardValue)
			if err := s.users.SetVIPExpiry(ctx, tx, userID, expires); err != nil {
				return err
			}
			result.VIPExpires = &expires
		case model.RewardPoints:
			codeID := c.ID
			award, err := s.pointsSvc.Award(ctx, tx, points.AwardInput{
				TenantID: tenantID,
				UserID:   userID,
				Delta:    c.RewardValue,
				Reason:   model.ReasonRedeem,
				RefType:  "redeem_code",
				RefID:    &codeID,
			})
			if err != nil {
				return err
			}
			newTotal = &award.NewTotal
			result.TotalPoints = newTotal
		default:
			return fmt.Errorf("unknown reward type %q", c.RewardType)
		}

		payload := events.RedeemSucceededPayload{
			Envelope:    events.NewEnvelope(ctx, tenantID),
			UserID:      userID,
			CodeID:      c.ID,
			Code:        c.Code,
			RewardType:  c.RewardType,
			RewardValue: c.RewardValue,
		}
		_, err = s.enqueue(ctx, tx, tenantID, "redeem_code", c.ID, events.RedeemSucceeded, payload)
		return err
	})
	if err != nil {
		err = mapErr(err)
		metrics.IncrementRedeem(resultLabel(err))
		s.logger.Info("Redeem rejected",
			zap.Int64("tenant_id", tenantID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}

	if newTotal != nil {
		s.pointsSvc.SyncLeaderboard(ctx, tenantID, userID, *newTotal)
	}
	metrics.IncrementRedeem("success")
	s.logger.Info("Code redeemed",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("user_id", userID),
		zap.String("reward_type", result.RewardType),
		zap.Int64("reward_value", result.RewardValue),
	)
	return result, nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return "not_found"
	case errors.Is(err, ErrCodeDisabled):
		return "disabled"
	case errors.Is(err, ErrCodeExpired):
		return "expired"
	case errors.Is(err, ErrCodeExhausted):
		return "exhausted"
	case errors.Is(err, ErrAlreadyRedeemed):
		return "duplicate"
	}
	return "error"
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, repository.ErrAlreadyRedeemed):
		return ErrAlreadyRedeemed
	case errors.Is(err, repository.ErrCodeInUse):
		return ErrCodeInUse
	}
	return err
}

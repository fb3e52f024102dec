package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"contenthub/contracts/events"
	"contenthub/internal/model"
	"contenthub/internal/repository"
	"contenthub/internal/service/points"
	"contenthub/pkg/config"
	"contenthub/pkg/db"
	"contenthub/pkg/outbox"
	"contenthub/pkg/pagination"
	"contenthub/pkg/rbac"
	"contenthub/pkg/util"
)

var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", util.MinPasswordLength)
	ErrPasswordTooLong    = fmt.Errorf("password must be at most %d bytes", util.MaxPasswordBytes)
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidReferral    = errors.New("invalid referral code")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrNicknameTooLong    = errors.New("nickname too long")
)

const (
	maxNicknameRunes     = 64
	referralCodeAttempts = 5
)

type RegisterInput struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Nickname     string `json:"nickname"`
	ReferralCode string `json:"referral_code"`
}

// Normalize 规范化并校验注册参数
func (in *RegisterInput) Normalize() error {
	in.Email = NormalizeEmail(in.Email)
	if in.Email == "" {
		return ErrInvalidEmail
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return ErrInvalidEmail
	}
	if utf8.RuneCountInString(in.Password) < util.MinPasswordLength {
		return ErrWeakPassword
	}
	if len(in.Password) > util.MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	in.Nickname = strings.TrimSpace(in.Nickname)
	if in.Nickname == "" {
		in.Nickname = DefaultNickname(in.Email)
	}
	if utf8.RuneCountInString(in.Nickname) > maxNicknameRunes {
		return ErrNicknameTooLong
	}
	in.ReferralCode = util.NormalizeCode(in.ReferralCode)
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DefaultNickname 未填写昵称时取邮箱 @ 前的部分
func DefaultNickname(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

type Service struct {
	pool    *pgxpool.Pool
	users   *repository.UserRepository
	roles   *repository.RoleRepository
	points  *points.Service
	checker *rbac.Checker
	jwt     config.JWTConfig
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(
	pool *pgxpool.Pool,
	users *repository.UserRepository,
	roles *repository.RoleRepository,
	pointsSvc *points.Service,
	checker *rbac.Checker,
	jwtCfg config.JWTConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		pool:    pool,
		users:   users,
		roles:   roles,
		points:  pointsSvc,
		checker: checker,
		jwt:     jwtCfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Register 创建用户、授予 user 角色、处理邀请奖励，全部在一个事务内
func (s *Service) Register(ctx context.Context, tenantID int64, in RegisterInput) (*model.User, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}

	hash, err := util.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		TenantID:     tenantID,
		Email:        in.Email,
		PasswordHash: hash,
		Nickname:     in.Nickname,
	}

	type pointSync struct{ userID, total int64 }
	var syncs []pointSync

	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		syncs = syncs[:0]

		var referrer *model.User
		if in.ReferralCode != "" {
			ref, err := s.users.FindByReferralCode(ctx, tx, tenantID, in.ReferralCode)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return ErrInvalidReferral
				}
				return err
			}
			referrer = ref
			u.ReferredBy = &ref.ID
		}

		if err := s.createWithReferralCode(ctx, tx, u); err != nil {
			return err
		}

		if err := s.roles.AssignRoleByName(ctx, tx, tenantID, u.ID, rbac.RoleUser); err != nil {
			return err
		}

		if referrer != nil {
			cfg := s.points.Config()
			rewards := []struct {
				userID int64
				delta  int64
				refID  int64
			}{
				{referrer.ID, cfg.ReferrerReward, u.ID},
				{u.ID, cfg.RefereeReward, referrer.ID},
			}
			for _, r := range rewards {
				if r.delta <= 0 {
					continue
				}
				refID := r.refID
				res, err := s.points.Award(ctx, tx, points.AwardInput{
					TenantID: tenantID,
					UserID:   r.userID,
					Delta:    r.delta,
					Reason:   model.ReasonReferral,
					RefType:  "user",
					RefID:    &refID,
				})
				if err != nil {
					return err
				}
				syncs = append(syncs, pointSync{r.userID, res.NewTotal})
			}
		}

		payload := events.UserRegisteredPayload{
			Envelope:   events.NewEnvelope(ctx, tenantID),
			UserID:     u.ID,
			Email:      u.Email,
			ReferredBy: u.ReferredBy,
		}
		_, err := outbox.Enqueue(ctx, tx, tenantID, "user", u.ID, events.UserRegistered, payload)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	for _, ps := range syncs {
		s.points.SyncLeaderboard(ctx, tenantID, ps.userID, ps.total)
	}
	s.logger.Info("User registered", zap.Int64("tenant_id", tenantID), zap.Int64("user_id", u.ID))
	return u, nil
}

// createWithReferralCode 邀请码冲突时在 savepoint 内重试
func (s *Service) createWithReferralCode(ctx context.Context, tx pgx.Tx, u *model.User) error {
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code, err := util.NewReferralCode()
		if err != nil {
			return err
		}
		u.ReferralCode = code

		sp, err := tx.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin savepoint: %w", err)
		}
		err = s.users.Create(ctx, sp, u)
		if err == nil {
			return sp.Commit(ctx)
		}
		_ = sp.Rollback(ctx)
		if !errors.Is(err, repository.ErrReferralCodeTaken) {
			return err
		}
	}
	return errors.New("could not allocate a unique referral code")
}

// Login 邮箱不存在和密码错误返回同一个错误
func (s *Service) Login(ctx context.Context, tenantID int64, email, password string) (string, *model.User, error) {
	u, err := s.users.FindByEmail(ctx, tenantID, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !util.CheckPassword(password, u.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := util.GenerateJWT(u.ID, tenantID, s.jwt.Secret, s.jwt.TTL())
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return token, u, nil
}

func (s *Service) user(ctx context.Context, tenantID, userID int64) (*model.User, error) {
	u, err := s.users.FindByID(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) Profile(ctx context.Context, tenantID, userID int64) (*model.Profile, error) {
	u, err := s.user(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	roles, err := s.roles.UserRoles(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	perms, err := s.checker.Permissions(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	summary, err := s.points.Summary(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	return &model.Profile{
		User:        u,
		Roles:       roles,
		Permissions: perms.Codes(),
		VIP:         VIPStatusOf(u, s.now()),
		Points:      summary,
	}, nil
}

func VIPStatusOf(u *model.User, now time.Time) model.VIPStatus {
	return model.VIPStatus{Active: u.IsVIP(now), ExpiresAt: u.VIPExpiresAt}
}

func (s *Service) VIP(ctx context.Context, tenantID, userID int64) (model.VIPStatus, error) {
	u, err := s.user(ctx, tenantID, userID)
	if err != nil {
		return model.VIPStatus{}, err
	}
	return VIPStatusOf(u, s.now()), nil
}

func (s *Service) Referrals(ctx context.Context, tenantID, userID int64, p pagination.Params) (pagination.Page[*model.Referral], error) {
	items, total, err := s.users.ListReferrals(ctx, tenantID, userID, p)
	if err != nil {
		return pagination.Page[*model.Referral]{}, err
	}
	return pagination.NewPage(items, total, p), nil
}

package config

import (
	"fmt"
	"time"

	pkgconfig "contenthub/pkg/config"
)

// PointsConfig 积分规则
type PointsConfig struct {
	CheckinPoints     int64 `yaml:"checkin_points"`
	StreakBonusDays   int   `yaml:"streak_bonus_days"`
	StreakBonusPoints int64 `yaml:"streak_bonus_points"`
	ReferrerReward    int64 `yaml:"referrer_reward"`
	RefereeReward     int64 `yaml:"referee_reward"`
	EpisodeReadPoints int64 `yaml:"episode_read_points"`
}

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

type I18nConfig struct {
	DefaultLocale string `yaml:"default_locale"`
}

type Config struct {
	DB        pkgconfig.DBConfig        `yaml:"db"`
	Redis     pkgconfig.RedisConfig     `yaml:"redis"`
	MQ        pkgconfig.MQConfig        `yaml:"mq"`
	JWT       pkgconfig.JWTConfig       `yaml:"jwt"`
	Server    pkgconfig.ServerConfig    `yaml:"server"`
	RateLimit pkgconfig.RateLimitConfig `yaml:"rate_limit"`
	Points    PointsConfig              `yaml:"points"`
	Outbox    OutboxConfig              `yaml:"outbox"`
	I18n      I18nConfig                `yaml:"i18n"`
}

// Load 读取 dir 下的分层配置（base.yaml -> <CONFIG_ENV>.yaml -> secrets.env），再用环境变量覆盖
func Load(dir string) (*Config, error) {
	var cfg Config
	if err := pkgconfig.Decode(pkgconfig.GetConfigEnv(), dir, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideJWTFromEnv(&cfg.JWT)
	pkgconfig.OverrideServerFromEnv(&cfg.Server)

	applyDefaults(&cfg)

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("load config: jwt.secret is required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 20
	}
	if cfg.DB.SlowQuery == 0 {
		cfg.DB.SlowQuery = 200 * time.Millisecond
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.MQ.Exchange == "" {
		cfg.MQ.Exchange = "contenthub.events"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.RateLimit.GlobalPerMinute == 0 {
		cfg.RateLimit.GlobalPerMinute = 6000
	}
	if cfg.RateLimit.UserPerMinute == 0 {
		cfg.RateLimit.UserPerMinute = 120
	}
	if cfg.RateLimit.LoginPerMinute == 0 {
		cfg.RateLimit.LoginPerMinute = 10
	}

	p := &cfg.Points
	if p.CheckinPoints == 0 {
		p.CheckinPoints = 10
	}
	if p.StreakBonusDays == 0 {
		p.StreakBonusDays = 7
	}
	if p.StreakBonusPoints == 0 {
		p.StreakBonusPoints = 50
	}
	if p.ReferrerReward == 0 {
		p.ReferrerReward = 100
	}
	if p.RefereeReward == 0 {
		p.RefereeReward = 50
	}
	if p.EpisodeReadPoints == 0 {
		p.EpisodeReadPoints = 2
	}

	if cfg.Outbox.Interval == 0 {
		cfg.Outbox.Interval = time.Second
	}
	if cfg.Outbox.BatchSize == 0 {
		cfg.Outbox.BatchSize = 100
	}
	if cfg.Outbox.MaxRetries == 0 {
		cfg.Outbox.MaxRetries = 5
	}
	if cfg.I18n.DefaultLocale == "" {
		cfg.I18n.DefaultLocale = "zh-CN"
	}
}

package model

import "time"

// 积分变动原因
const (
	ReasonCheckin     = "checkin"
	ReasonReferral    = "referral"
	ReasonRedeem      = "redeem"
	ReasonEpisodeRead = "episode_read"
	ReasonAchievement = "achievement"
	ReasonAdmin       = "admin"
)

type PointTransaction struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	UserID    int64     `json:"user_id"`
	Delta     int64     `json:"delta"`
	Reason    string    `json:"reason"`
	RefType   string    `json:"ref_type,omitempty"`
	RefID     *int64    `json:"ref_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type PointSummary struct {
	TenantID    int64     `json:"tenant_id"`
	UserID      int64     `json:"user_id"`
	TotalPoints int64     `json:"total_points"`
	Level       int       `json:"level"`
	NextLevelAt int64     `json:"next_level_at"`
	Progress    float64   `json:"progress"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Checkin struct {
	UserID int64     `json:"user_id"`
	Day    time.Time `json:"day"`
	Streak int       `json:"streak"`
}

// CheckinResult 签到返回
type CheckinResult struct {
	Streak      int   `json:"streak"`
	Awarded     int64 `json:"awarded"`
	Bonus       int64 `json:"bonus"`
	TotalPoints int64 `json:"total_points"`
	Level       int   `json:"level"`
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      int64  `json:"user_id"`
	Nickname    string `json:"nickname,omitempty"`
	TotalPoints int64  `json:"total_points"`
	Level       int    `json:"level"`
}

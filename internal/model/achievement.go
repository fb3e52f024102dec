package model

import "time"

// 成就条件类型
const (
	ConditionTotalPoints   = "total_points"
	ConditionLevel         = "level"
	ConditionCheckinStreak = "checkin_streak"
	ConditionEpisodesRead  = "episodes_read"
	ConditionReferrals     = "referrals"
	ConditionRedeemCount   = "redeem_count"
)

func ValidCondition(t string) bool {
	switch t {
	case ConditionTotalPoints, ConditionLevel, ConditionCheckinStreak,
		ConditionEpisodesRead, ConditionReferrals, ConditionRedeemCount:
		return true
	}
	return false
}

type Achievement struct {
	ID            int64     `json:"id"`
	TenantID      int64     `json:"tenant_id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	ConditionType string    `json:"condition_type"`
	Threshold     int64     `json:"threshold"`
	RewardPoints  int64     `json:"reward_points"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserAchievement 带解锁状态的成就
type UserAchievement struct {
	Achievement
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// UserStats 成就条件判定用到的用户统计
type UserStats struct {
	TotalPoints   int64
	Level         int
	CheckinStreak int
	EpisodesRead  int64
	Referrals     int64
	RedeemCount   int64
}

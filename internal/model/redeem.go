package model

import "time"

const (
	RewardVIPDays = "vip_days"
	RewardPoints  = "points"
)

type RedeemCode struct {
	ID          int64      `json:"id"`
	TenantID    int64      `json:"tenant_id"`
	Code        string     `json:"code"`
	BatchID     string     `json:"batch_id"`
	RewardType  string     `json:"reward_type"`
	RewardValue int64      `json:"reward_value"`
	MaxUses     int        `json:"max_uses"`
	UsedCount   int        `json:"used_count"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Disabled    bool       `json:"disabled"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Code 状态，用于列表筛选
const (
	CodeStatusActive   = "active"
	CodeStatusUsed     = "used"
	CodeStatusExpired  = "expired"
	CodeStatusDisabled = "disabled"
)

// Status 按 disabled > expired > used > active 的优先级计算
func (c *RedeemCode) Status(now time.Time) string {
	switch {
	case c.Disabled:
		return CodeStatusDisabled
	case c.ExpiresAt != nil && !c.ExpiresAt.After(now):
		return CodeStatusExpired
	case c.UsedCount >= c.MaxUses:
		return CodeStatusUsed
	default:
		return CodeStatusActive
	}
}

type RedeemRecord struct {
	ID         int64     `json:"id"`
	CodeID     int64     `json:"code_id"`
	UserID     int64     `json:"user_id"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

type CodeFilter struct {
	BatchID string
	Status  string
}

// RedeemResult 兑换成功后的返回
type RedeemResult struct {
	Code        string     `json:"code"`
	RewardType  string     `json:"reward_type"`
	RewardValue int64      `json:"reward_value"`
	VIPExpires  *time.Time `json:"vip_expires_at,omitempty"`
	TotalPoints *int64     `json:"total_points,omitempty"`
}

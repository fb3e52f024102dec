package model

import "time"

type User struct {
	ID           int64      `json:"id"`
	TenantID     int64      `json:"tenant_id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Nickname     string     `json:"nickname"`
	ReferralCode string     `json:"referral_code"`
	ReferredBy   *int64     `json:"referred_by,omitempty"`
	VIPExpiresAt *time.Time `json:"vip_expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsVIP VIP 到期时间晚于 now 才算有效
func (u *User) IsVIP(now time.Time) bool {
	return u.VIPExpiresAt != nil && u.VIPExpiresAt.After(now)
}

type VIPStatus struct {
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Referral 被邀请人的公开信息
type Referral struct {
	UserID    int64     `json:"user_id"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile GET /me 的返回
type Profile struct {
	User        *User         `json:"user"`
	Roles       []string      `json:"roles"`
	Permissions []string      `json:"permissions"`
	VIP         VIPStatus     `json:"vip"`
	Points      *PointSummary `json:"points"`
}

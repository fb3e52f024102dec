package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"contenthub/pkg/trace"
)

// Routing keys on the contenthub.events topic exchange.
const (
	UserRegistered      = "user.registered"
	PointsChanged       = "points.changed"
	AchievementUnlocked = "achievement.unlocked"
	ContentPublished    = "content.published"
	RedeemSucceeded     = "redeem.succeeded"
)

// Envelope 所有事件共有的字段
type Envelope struct {
	EventID    string    `json:"event_id"`
	TenantID   int64     `json:"tenant_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEnvelope 从 ctx 带上 trace_id，outbox 发布时会还原到消息头
func NewEnvelope(ctx context.Context, tenantID int64) Envelope {
	return Envelope{
		EventID:    uuid.NewString(),
		TenantID:   tenantID,
		TraceID:    trace.FromContext(ctx),
		OccurredAt: time.Now().UTC(),
	}
}

type UserRegisteredPayload struct {
	Envelope
	UserID     int64  `json:"user_id"`
	Email      string `json:"email"`
	ReferredBy *int64 `json:"referred_by,omitempty"`
}

type PointsChangedPayload struct {
	Envelope
	UserID   int64  `json:"user_id"`
	Delta    int64  `json:"delta"`
	Reason   string `json:"reason"`
	OldTotal int64  `json:"old_total"`
	NewTotal int64  `json:"new_total"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
}

// LevelUp 本次变动是否升级
func (p PointsChangedPayload) LevelUp() bool {
	return p.NewLevel > p.OldLevel
}

type AchievementUnlockedPayload struct {
	Envelope
	UserID        int64  `json:"user_id"`
	AchievementID int64  `json:"achievement_id"`
	Code          string `json:"code"`
	ConditionType string `json:"condition_type"`
	RewardPoints  int64  `json:"reward_points"`
}

type ContentPublishedPayload struct {
	Envelope
	ContentType string `json:"content_type"` // comic / episode
	ContentID   int64  `json:"content_id"`
	Slug        string `json:"slug,omitempty"`
	Title       string `json:"title"`
	PublishedBy int64  `json:"published_by"`
}

type RedeemSucceededPayload struct {
	Envelope
	UserID      int64  `json:"user_id"`
	CodeID      int64  `json:"code_id"`
	Code        string `json:"code"`
	RewardType  string `json:"reward_type"`
	RewardValue int64  `json:"reward_value"`
}

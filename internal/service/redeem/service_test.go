package redeem

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contenthub/internal/model"
)

var now = time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)

func TestBatchInputValidate(t *testing.T) {
	in := BatchInput{Count: 10, Prefix: " vip ", RewardType: model.RewardVIPDays, RewardValue: 30}
	require.NoError(t, in.Validate(now))
	assert.Equal(t, "VIP", in.Prefix)
	assert.Equal(t, 1, in.MaxUses)
}

func TestBatchInputValidate_Errors(t *testing.T) {
	past := now.Add(-time.Hour)
	tests := []struct {
		name string
		in   BatchInput
		msg  string
	}{
		{"count zero", BatchInput{Count: 0, RewardType: model.RewardPoints, RewardValue: 1}, "count"},
		{"count too large", BatchInput{Count: MaxBatchSize + 1, RewardType: model.RewardPoints, RewardValue: 1}, "count"},
		{"prefix too long", BatchInput{Count: 1, Prefix: "ABCDEFGHI", RewardType: model.RewardPoints, RewardValue: 1}, "prefix"},
		{"prefix symbols", BatchInput{Count: 1, Prefix: "A-B", RewardType: model.RewardPoints, RewardValue: 1}, "prefix"},
		{"bad reward type", BatchInput{Count: 1, RewardType: "coins", RewardValue: 1}, "reward_type"},
		{"zero value", BatchInput{Count: 1, RewardType: model.RewardPoints}, "reward_value"},
		{"negative uses", BatchInput{Count: 1, RewardType: model.RewardPoints, RewardValue: 1, MaxUses: -1}, "max_uses"},
		{"expired", BatchInput{Count: 1, RewardType: model.RewardPoints, RewardValue: 1, ExpiresAt: &past}, "expires_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate(now)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidBatch)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestCheckRedeemable(t *testing.T) {
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	assert.NoError(t, CheckRedeemable(&model.RedeemCode{MaxUses: 1}, now))
	assert.NoError(t, CheckRedeemable(&model.RedeemCode{MaxUses: 2, UsedCount: 1, ExpiresAt: &future}, now))
	assert.ErrorIs(t, CheckRedeemable(&model.RedeemCode{MaxUses: 1, Disabled: true, ExpiresAt: &past}, now), ErrCodeDisabled)
	assert.ErrorIs(t, CheckRedeemable(&model.RedeemCode{MaxUses: 1, UsedCount: 1, ExpiresAt: &past}, now), ErrCodeExpired)
	assert.ErrorIs(t, CheckRedeemable(&model.RedeemCode{MaxUses: 1, UsedCount: 1}, now), ErrCodeExhausted)
}

func TestExtendVIP(t *testing.T) {
	assert.Equal(t, now.Add(30*24*time.Hour), ExtendVIP(nil, now, 30))

	expired := now.Add(-48 * time.Hour)
	assert.Equal(t, now.Add(7*24*time.Hour), ExtendVIP(&expired, now, 7))

	active := now.Add(5 * 24 * time.Hour)
	assert.Equal(t, now.Add(12*24*time.Hour), ExtendVIP(&active, now, 7))
}

func TestUpdateInputApply(t *testing.T) {
	disabled := true
	uses := 5
	exp := now.Add(time.Hour)
	c := &model.RedeemCode{MaxUses: 3, UsedCount: 2}

	require.NoError(t, UpdateInput{Disabled: &disabled, MaxUses: &uses, ExpiresAt: &exp}.Apply(c))
	assert.True(t, c.Disabled)
	assert.Equal(t, 5, c.MaxUses)
	assert.Equal(t, &exp, c.ExpiresAt)

	require.NoError(t, UpdateInput{ClearExpiry: true}.Apply(c))
	assert.Nil(t, c.ExpiresAt)

	tooFew := 1
	err := UpdateInput{MaxUses: &tooFew}.Apply(c)
	assert.ErrorIs(t, err, ErrInvalidUpdate)
	assert.Equal(t, 5, c.MaxUses)
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "expired", resultLabel(ErrCodeExpired))
	assert.Equal(t, "duplicate", resultLabel(ErrAlreadyRedeemed))
	assert.Equal(t, "error", resultLabel(errors.New("boom")))
}

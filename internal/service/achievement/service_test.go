package achievement

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contenthub/internal/model"
	"contenthub/internal/repository"
)

func ach(id int64, cond string, threshold int64) *model.Achievement {
	return &model.Achievement{ID: id, Code: cond, ConditionType: cond, Threshold: threshold, Active: true}
}

func TestEvaluate(t *testing.T) {
	stats := &model.UserStats{
		TotalPoints:   350,
		Level:         3,
		CheckinStreak: 7,
		EpisodesRead:  9,
		Referrals:     3,
		RedeemCount:   0,
	}

	assert.True(t, Evaluate(ach(1, model.ConditionTotalPoints, 350), stats))
	assert.False(t, Evaluate(ach(1, model.ConditionTotalPoints, 351), stats))
	assert.True(t, Evaluate(ach(1, model.ConditionLevel, 3), stats))
	assert.True(t, Evaluate(ach(1, model.ConditionCheckinStreak, 7), stats))
	assert.False(t, Evaluate(ach(1, model.ConditionEpisodesRead, 10), stats))
	assert.True(t, Evaluate(ach(1, model.ConditionReferrals, 3), stats))
	assert.False(t, Evaluate(ach(1, model.ConditionRedeemCount, 1), stats))
	assert.False(t, Evaluate(ach(1, "mystery", 0), stats))

	inactive := ach(1, model.ConditionTotalPoints, 1)
	inactive.Active = false
	assert.False(t, Evaluate(inactive, stats))
	assert.False(t, Evaluate(nil, stats))
}

func TestSatisfied(t *testing.T) {
	stats := &model.UserStats{TotalPoints: 100, Level: 2}
	list := []*model.Achievement{
		ach(1, model.ConditionTotalPoints, 50),
		ach(2, model.ConditionTotalPoints, 500),
		ach(3, model.ConditionLevel, 2),
	}
	got := Satisfied(list, stats)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
}

func TestValidate(t *testing.T) {
	ok := &model.Achievement{Code: " reader ", Name: "Reader", ConditionType: model.ConditionEpisodesRead, Threshold: 5}
	require.NoError(t, Validate(ok))
	assert.Equal(t, "reader", ok.Code)

	bad := []*model.Achievement{
		{Name: "x", ConditionType: model.ConditionLevel, Threshold: 1},
		{Code: "x", ConditionType: model.ConditionLevel, Threshold: 1},
		{Code: "x", Name: "x", ConditionType: "nope", Threshold: 1},
		{Code: "x", Name: "x", ConditionType: model.ConditionLevel, Threshold: 0},
		{Code: "x", Name: "x", ConditionType: model.ConditionLevel, Threshold: 1, RewardPoints: -1},
	}
	for i, a := range bad {
		assert.ErrorIs(t, Validate(a), ErrInvalid, "case %d", i)
	}
}

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil))
	assert.ErrorIs(t, mapErr(repository.ErrNotFound), ErrNotFound)
	assert.ErrorIs(t, mapErr(repository.ErrAchievementCodeTaken), ErrCodeTaken)
	other := errors.New("boom")
	assert.Equal(t, other, mapErr(other))
}

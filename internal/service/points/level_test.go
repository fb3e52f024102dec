package points

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contenthub/config"
	"contenthub/internal/model"
	"contenthub/internal/repository"
)

func TestLevelFor(t *testing.T) {
	cases := []struct {
		total int64
		level int
	}{
		{-5, 1},
		{0, 1},
		{99, 1},
		{100, 2},
		{299, 2},
		{300, 3},
		{2799, 7},
		{2800, 8},
		{4499, 9},
		{4500, 10},
		{5499, 10},
		{5500, 11},
		{9500, 15},
	}
	for _, c := range cases {
		assert.Equal(t, c.level, LevelFor(c.total), "total=%d", c.total)
	}
}

func TestNextLevelAt(t *testing.T) {
	assert.Equal(t, int64(100), NextLevelAt(1))
	assert.Equal(t, int64(300), NextLevelAt(2))
	assert.Equal(t, int64(4500), NextLevelAt(9))
	assert.Equal(t, int64(5500), NextLevelAt(10))
	assert.Equal(t, int64(6500), NextLevelAt(11))
	assert.Equal(t, int64(100), NextLevelAt(0))
}

func TestLevelStartMatchesLevelFor(t *testing.T) {
	for level := 1; level <= 20; level++ {
		assert.Equal(t, level, LevelFor(LevelStart(level)), "level=%d", level)
		if level > 1 {
			assert.Equal(t, level-1, LevelFor(LevelStart(level)-1), "level=%d", level)
		}
	}
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 0.0, Progress(0))
	assert.Equal(t, 50.0, Progress(50))
	assert.Equal(t, 50.0, Progress(200))
	assert.Equal(t, 33.33, Progress(400))
	assert.Equal(t, 0.0, Progress(4500))
	assert.Equal(t, 25.0, Progress(4750))
}

func TestNextStreak(t *testing.T) {
	today := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

	s, err := NextStreak(nil, today)
	require.NoError(t, err)
	assert.Equal(t, 1, s)

	s, err = NextStreak(&model.Checkin{Day: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), Streak: 6}, today)
	require.NoError(t, err)
	assert.Equal(t, 7, s)

	s, err = NextStreak(&model.Checkin{Day: time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), Streak: 6}, today)
	require.NoError(t, err)
	assert.Equal(t, 1, s)

	_, err = NextStreak(&model.Checkin{Day: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), Streak: 1}, today)
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
}

func TestNextStreak_MonthBoundary(t *testing.T) {
	today := time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC)
	s, err := NextStreak(&model.Checkin{Day: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), Streak: 2}, today)
	require.NoError(t, err)
	assert.Equal(t, 3, s)
}

func TestCheckinReward(t *testing.T) {
	cfg := config.PointsConfig{CheckinPoints: 10, StreakBonusDays: 7, StreakBonusPoints: 50}

	base, bonus := CheckinReward(3, cfg)
	assert.Equal(t, int64(10), base)
	assert.Zero(t, bonus)

	_, bonus = CheckinReward(7, cfg)
	assert.Equal(t, int64(50), bonus)

	_, bonus = CheckinReward(14, cfg)
	assert.Equal(t, int64(50), bonus)

	_, bonus = CheckinReward(7, config.PointsConfig{CheckinPoints: 10})
	assert.Zero(t, bonus)
}

func TestClampLeaderboardSize(t *testing.T) {
	assert.Equal(t, 10, ClampLeaderboardSize(0))
	assert.Equal(t, 100, ClampLeaderboardSize(1000))
	assert.Equal(t, 5, ClampLeaderboardSize(5))
}

func TestBuildLeaderboard(t *testing.T) {
	scored := []repository.ScoredUser{
		{UserID: 3, Total: 5000},
		{UserID: 9, Total: 400},
		{UserID: 1, Total: 120},
	}
	names := map[int64]string{3: "alice", 1: "bob"}

	out := BuildLeaderboard(scored, names)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Rank)
	assert.Equal(t, "alice", out[0].Nickname)
	assert.Equal(t, 10, out[0].Level)
	assert.Equal(t, 2, out[1].Rank)
	assert.Equal(t, int64(1), out[1].UserID)
	assert.Equal(t, 2, out[1].Level)
}

package points

import (
	"math"
	"time"

	"contenthub/config"
	"contenthub/internal/model"
)

// levelThresholds[i] 是达到 i+1 级所需的总积分
var levelThresholds = []int64{0, 100, 300, 600, 1000, 1500, 2100, 2800, 3600, 4500}

// 满 10 级后每 1000 分升一级
const pointsPerLevelAfterTable = 1000

func maxTableLevel() int { return len(levelThresholds) }

// LevelFor 根据总积分计算等级，最低 1 级
func LevelFor(total int64) int {
	if total <= 0 {
		return 1
	}
	top := levelThresholds[len(levelThresholds)-1]
	if total >= top {
		return maxTableLevel() + int((total-top)/pointsPerLevelAfterTable)
	}
	level := 1
	for i, th := range levelThresholds {
		if total >= th {
			level = i + 1
		}
	}
	return level
}

// LevelStart 达到 level 所需的积分
func LevelStart(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level <= maxTableLevel() {
		return levelThresholds[level-1]
	}
	return levelThresholds[len(levelThresholds)-1] + int64(level-maxTableLevel())*pointsPerLevelAfterTable
}

// NextLevelAt 升到 level+1 所需的总积分
func NextLevelAt(level int) int64 {
	if level < 1 {
		level = 1
	}
	return LevelStart(level + 1)
}

// Progress 当前等级内的进度百分比，保留两位小数
func Progress(total int64) float64 {
	level := LevelFor(total)
	start, next := LevelStart(level), NextLevelAt(level)
	if next <= start {
		return 0
	}
	if total < start {
		total = start
	}
	pct := float64(total-start) / float64(next-start) * 100
	return math.Round(pct*100) / 100
}

// Day 取 UTC 日期
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextStreak 计算今天签到后的连续天数；今天已签到返回 ErrAlreadyCheckedIn
func NextStreak(last *model.Checkin, today time.Time) (int, error) {
	today = Day(today)
	if last == nil {
		return 1, nil
	}
	lastDay := Day(last.Day)
	switch {
	case !lastDay.Before(today):
		return 0, ErrAlreadyCheckedIn
	case lastDay.Equal(today.AddDate(0, 0, -1)):
		return last.Streak + 1, nil
	default:
		return 1, nil
	}
}

// CheckinReward 返回基础积分和连续签到奖励
func CheckinReward(streak int, cfg config.PointsConfig) (int64, int64) {
	var bonus int64
	if cfg.StreakBonusDays > 0 && streak > 0 && streak%cfg.StreakBonusDays == 0 {
		bonus = cfg.StreakBonusPoints
	}
	return cfg.CheckinPoints, bonus
}

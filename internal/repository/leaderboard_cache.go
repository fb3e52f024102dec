package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// LeaderboardCache 每个租户一个 ZSET，score 为总积分
type LeaderboardCache struct {
	rdb *redis.Client
}

func NewLeaderboardCache(rdb *redis.Client) *LeaderboardCache {
	return &LeaderboardCache{rdb: rdb}
}

func leaderboardKey(tenantID int64) string {
	return fmt.Sprintf("leaderboard:%d", tenantID)
}

func (c *LeaderboardCache) Update(ctx context.Context, tenantID, userID, total int64) error {
	return c.rdb.ZAdd(ctx, leaderboardKey(tenantID), redis.Z{
		Score:  float64(total),
		Member: strconv.FormatInt(userID, 10),
	}).Err()
}

// ScoredUser 排行榜上的一项
type ScoredUser struct {
	UserID int64
	Total  int64
}

// Top 返回前 n 名，key 不存在时返回空
func (c *LeaderboardCache) Top(ctx context.Context, tenantID int64, n int) ([]ScoredUser, error) {
	zs, err := c.rdb.ZRevRangeWithScores(ctx, leaderboardKey(tenantID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ScoredUser, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, ScoredUser{UserID: id, Total: int64(z.Score)})
	}
	return out, nil
}

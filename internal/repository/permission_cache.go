package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// emptyMarker Redis 不能存空集合，无权限的用户用占位成员表示
const emptyMarker = "-"

// PermissionCache 以 Redis set 缓存用户权限，实现 rbac.Cache
type PermissionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPermissionCache(rdb *redis.Client, ttl time.Duration) *PermissionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PermissionCache{rdb: rdb, ttl: ttl}
}

func permissionKey(tenantID, userID int64) string {
	return fmt.Sprintf("perm:%d:%d", tenantID, userID)
}

func (c *PermissionCache) Get(ctx context.Context, tenantID, userID int64) ([]string, bool, error) {
	members, err := c.rdb.SMembers(ctx, permissionKey(tenantID, userID)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(members) == 0 {
		return nil, false, nil
	}
	codes := make([]string, 0, len(members))
	for _, m := range members {
		if m != emptyMarker {
			codes = append(codes, m)
		}
	}
	return codes, true, nil
}

func (c *PermissionCache) Set(ctx context.Context, tenantID, userID int64, codes []string) error {
	key := permissionKey(tenantID, userID)
	members := make([]any, 0, len(codes)+1)
	members = append(members, emptyMarker)
	for _, code := range codes {
		members = append(members, code)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *PermissionCache) Invalidate(ctx context.Context, tenantID, userID int64) error {
	return c.rdb.Del(ctx, permissionKey(tenantID, userID)).Err()
}

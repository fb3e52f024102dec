package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	perms map[int64][]string
	calls int
	err   error
}

func (s *fakeStore) UserPermissions(ctx context.Context, tenantID, userID int64) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.perms[userID], nil
}

type fakeCache struct {
	data    map[int64][]string
	getErr  error
	removed []int64
}

func (c *fakeCache) Get(ctx context.Context, tenantID, userID int64) ([]string, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	codes, ok := c.data[userID]
	return codes, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, tenantID, userID int64, codes []string) error {
	c.data[userID] = codes
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, tenantID, userID int64) error {
	delete(c.data, userID)
	c.removed = append(c.removed, userID)
	return nil
}

func TestDefaultRoles(t *testing.T) {
	roles := DefaultRoles()
	require.Contains(t, roles, RoleAdmin)
	assert.ElementsMatch(t, AllPermissions(), roles[RoleAdmin])
	assert.Equal(t, []string{PermissionComicRead}, roles[RoleUser])
	assert.Contains(t, roles[RoleEditor], PermissionCoupletWrite)
	assert.NotContains(t, roles[RoleEditor], PermissionRoleManage)

	// 返回副本，修改不影响内置定义
	roles[RoleUser][0] = "mutated"
	assert.Equal(t, []string{PermissionComicRead}, DefaultRoles()[RoleUser])
}

func TestAllPermissionsKnown(t *testing.T) {
	for _, code := range AllPermissions() {
		assert.True(t, IsKnownPermission(code))
		assert.NotEmpty(t, Describe(code))
	}
	assert.False(t, IsKnownPermission("nope:nope"))
}

func TestChecker_CachesStoreResult(t *testing.T) {
	store := &fakeStore{perms: map[int64][]string{7: {PermissionComicRead, PermissionComicWrite}}}
	cache := &fakeCache{data: map[int64][]string{}}
	c := NewChecker(store, cache, zap.NewNop())

	ok, err := c.HasPermission(context.Background(), 1, 7, PermissionComicWrite)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.HasPermission(context.Background(), 1, 7, PermissionRoleManage)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, store.calls)
}

func TestChecker_CacheErrorFallsBackToStore(t *testing.T) {
	store := &fakeStore{perms: map[int64][]string{7: {PermissionMenuManage}}}
	cache := &fakeCache{data: map[int64][]string{}, getErr: errors.New("redis down")}
	c := NewChecker(store, cache, zap.NewNop())

	require.NoError(t, c.CheckPermission(context.Background(), 1, 7, PermissionMenuManage))
	assert.Equal(t, 1, store.calls)
}

func TestChecker_CheckPermissionDenied(t *testing.T) {
	c := NewChecker(&fakeStore{perms: map[int64][]string{}}, nil, zap.NewNop())

	err := c.CheckPermission(context.Background(), 1, 9, PermissionRedeemManage)
	var denied *PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, int64(9), denied.UserID)
	assert.Equal(t, PermissionRedeemManage, denied.Permission)
}

func TestChecker_StoreError(t *testing.T) {
	c := NewChecker(&fakeStore{err: errors.New("db down")}, nil, zap.NewNop())
	_, err := c.Permissions(context.Background(), 1, 1)
	require.Error(t, err)
}

func TestChecker_Invalidate(t *testing.T) {
	cache := &fakeCache{data: map[int64][]string{3: {PermissionComicRead}}}
	c := NewChecker(&fakeStore{}, cache, zap.NewNop())
	c.Invalidate(context.Background(), 1, 3)
	assert.Equal(t, []int64{3}, cache.removed)
	assert.NotContains(t, cache.data, int64(3))
}

func TestSetCodesSorted(t *testing.T) {
	s := NewSet("b", "a", "c")
	assert.Equal(t, []string{"a", "b", "c"}, s.Codes())
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("z"))
}

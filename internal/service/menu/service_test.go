package menu

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contenthub/internal/model"
	"contenthub/pkg/rbac"
)

func ptr[T any](v T) *T { return &v }

func sampleMenus() []*model.Menu {
	return []*model.Menu{
		{ID: 1, Key: "home", Sort: 2, Visible: true, Translations: map[string]string{"en": "Home", "zh-CN": "首页"}},
		{ID: 2, Key: "comics", Sort: 1, Visible: true, Translations: map[string]string{"zh-CN": "漫画"}},
		{ID: 3, Key: "admin", Sort: 3, Visible: true, RequiredPermission: ptr(rbac.PermissionRoleManage)},
		{ID: 4, Key: "roles", ParentID: ptr(int64(3)), Visible: true},
		{ID: 5, Key: "hidden", Visible: false},
		{ID: 6, Key: "under-hidden", ParentID: ptr(int64(5)), Visible: true},
		{ID: 7, Key: "latest", ParentID: ptr(int64(2)), Sort: 1, Visible: true},
		{ID: 8, Key: "ranking", ParentID: ptr(int64(2)), Sort: 1, Visible: true},
		{ID: 9, Key: "orphan", ParentID: ptr(int64(404)), Visible: true},
	}
}

func keys(nodes []*model.MenuNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Key
	}
	return out
}

func TestBuildTree_Anonymous(t *testing.T) {
	tree := BuildTree(sampleMenus(), rbac.NewSet(), "en", "zh-CN")

	require.Equal(t, []string{"comics", "home"}, keys(tree))
	assert.Equal(t, "漫画", tree[0].Title)
	assert.Equal(t, "Home", tree[1].Title)
	assert.Equal(t, []string{"latest", "ranking"}, keys(tree[0].Children))
	assert.NotNil(t, tree[1].Children)
	assert.Empty(t, tree[1].Children)
}

func TestBuildTree_FullShape(t *testing.T) {
	leaf := func(id int64, key, title string) *model.MenuNode {
		return &model.MenuNode{ID: id, Key: key, Title: title, Children: []*model.MenuNode{}}
	}
	comics := leaf(2, "comics", "漫画")
	comics.Children = []*model.MenuNode{leaf(7, "latest", "latest"), leaf(8, "ranking", "ranking")}
	want := []*model.MenuNode{comics, leaf(1, "home", "Home")}

	got := BuildTree(sampleMenus(), rbac.NewSet(), "en", "zh-CN")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildTree mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildTree_WithPermission(t *testing.T) {
	tree := BuildTree(sampleMenus(), rbac.NewSet(rbac.PermissionRoleManage), "fr", "en")

	require.Equal(t, []string{"comics", "home", "admin"}, keys(tree))
	assert.Equal(t, "comics", tree[0].Title, "falls back to key")
	assert.Equal(t, "Home", tree[1].Title)
	assert.Equal(t, []string{"roles"}, keys(tree[2].Children))
}

func TestWouldCycle(t *testing.T) {
	menus := sampleMenus()

	assert.True(t, WouldCycle(menus, 3, 4), "child cannot become parent")
	assert.True(t, WouldCycle(menus, 2, 2))
	assert.False(t, WouldCycle(menus, 4, 2))
	assert.False(t, WouldCycle(menus, 1, 9))
}

func TestMergeTranslations(t *testing.T) {
	upserts, deletes, err := MergeTranslations(map[string]*string{
		"en":    ptr(" Home "),
		"zh-CN": ptr(""),
		"ja":    nil,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"en": "Home"}, upserts)
	assert.Equal(t, []string{"ja", "zh-CN"}, deletes)

	_, _, err = MergeTranslations(map[string]*string{"not a locale": ptr("x")})
	assert.ErrorIs(t, err, ErrInvalidLocale)
}

func TestValidLocale(t *testing.T) {
	for _, l := range []string{"en", "zh-CN", "en_US", "zh-Hant-TW"} {
		assert.True(t, ValidLocale(l), l)
	}
	for _, l := range []string{"", "e", "english!", "zh CN"} {
		assert.False(t, ValidLocale(l), l)
	}
}

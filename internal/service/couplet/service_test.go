package couplet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contenthub/internal/model"
	"contenthub/internal/repository"
	"contenthub/pkg/db"
	"contenthub/pkg/db/dbtest"
	"contenthub/pkg/pagination"
)

func TestValidateContents(t *testing.T) {
	got, err := ValidateContents([]ContentInput{
		{UpperLine: " 春回大地千山秀 ", LowerLine: "日照神州万木荣", Banner: " 万象更新 "},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "春回大地千山秀", got[0].UpperLine)
	assert.Equal(t, "万象更新", got[0].Banner)
}

func TestValidateContents_Errors(t *testing.T) {
	_, err := ValidateContents(nil)
	assert.ErrorIs(t, err, ErrEmptyContents)

	_, err = ValidateContents([]ContentInput{{UpperLine: "春风", LowerLine: " "}})
	assert.ErrorIs(t, err, ErrEmptyLine)

	_, err = ValidateContents([]ContentInput{
		{UpperLine: "天增岁月", LowerLine: "人增寿"},
	})
	assert.ErrorIs(t, err, ErrLineMismatch)
	assert.Contains(t, err.Error(), "content 1")
}

func TestValidateContents_CountsRunesNotBytes(t *testing.T) {
	// 中文 3 字节，英文 1 字节，字数相同即可
	_, err := ValidateContents([]ContentInput{{UpperLine: "春风", LowerLine: "ab"}})
	assert.NoError(t, err)
}

func TestRestoreNote(t *testing.T) {
	assert.Equal(t, "restore from v3", RestoreNote(3))
}

func TestCopyContentsDropsIDs(t *testing.T) {
	src := []*model.CoupletContent{{ID: 7, VersionID: 2, Position: 1, UpperLine: "a", LowerLine: "b", Banner: "c"}}
	out := copyContents(src)
	require.Len(t, out, 1)
	assert.Zero(t, out[0].ID)
	assert.Zero(t, out[0].VersionID)
	assert.Equal(t, "a", out[0].UpperLine)
	assert.NotSame(t, src[0], out[0])
}

type fakeStore struct {
	calls     []string
	lockErr   error
	insertErr error
	maxVer    int
	versions  map[int]*model.CoupletVersion
	slugs     map[string]bool
	inserted  []*model.CoupletVersion
}

func (f *fakeStore) record(name string) { f.calls = append(f.calls, name) }

func (f *fakeStore) Create(ctx context.Context, q db.Querier, c *model.Couplet) error {
	f.record("Create")
	c.ID = 10
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, tenantID, id int64) (*model.Couplet, error) {
	return &model.Couplet{ID: id, TenantID: tenantID}, nil
}

func (f *fakeStore) GetBySlug(ctx context.Context, tenantID int64, slug string) (*model.Couplet, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeStore) SlugExists(ctx context.Context, tenantID int64, slug string) (bool, error) {
	return f.slugs[slug], nil
}

func (f *fakeStore) LockForUpdate(ctx context.Context, q db.Querier, tenantID, id int64) (*model.Couplet, error) {
	f.record("LockForUpdate")
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	return &model.Couplet{ID: id, TenantID: tenantID}, nil
}

func (f *fakeStore) UpdateMeta(ctx context.Context, c *model.Couplet) error { return nil }

func (f *fakeStore) Touch(ctx context.Context, q db.Querier, id int64) error {
	f.record("Touch")
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, tenantID, id int64) error { return nil }

func (f *fakeStore) List(ctx context.Context, tenantID int64, query string, p pagination.Params) ([]*model.Couplet, int64, error) {
	return nil, 0, nil
}

func (f *fakeStore) MaxVersion(ctx context.Context, q db.Querier, coupletID int64) (int, error) {
	f.record("MaxVersion")
	return f.maxVer, nil
}

func (f *fakeStore) ClearLatest(ctx context.Context, q db.Querier, coupletID int64) error {
	f.record("ClearLatest")
	return nil
}

func (f *fakeStore) InsertVersion(ctx context.Context, q db.Querier, v *model.CoupletVersion) error {
	f.record("InsertVersion")
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, v)
	return nil
}

func (f *fakeStore) ListVersions(ctx context.Context, coupletID int64) ([]*model.CoupletVersion, error) {
	return nil, nil
}

func (f *fakeStore) GetVersion(ctx context.Context, q db.Querier, coupletID int64, number int) (*model.CoupletVersion, error) {
	f.record("GetVersion")
	v, ok := f.versions[number]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return v, nil
}

func newTestService(store *fakeStore) (*Service, *dbtest.Beginner) {
	b := &dbtest.Beginner{}
	return NewService(b, store, zap.NewNop()), b
}

var sampleContents = []ContentInput{{UpperLine: "春回大地千山秀", LowerLine: "日照神州万木荣"}}

func TestCreateVersion_LocksBeforeNumbering(t *testing.T) {
	store := &fakeStore{maxVer: 3}
	svc, b := newTestService(store)

	v, err := svc.CreateVersion(context.Background(), 1, 7, 5, "typo", sampleContents)
	require.NoError(t, err)
	assert.Equal(t, []string{"LockForUpdate", "MaxVersion", "ClearLatest", "InsertVersion", "Touch"}, store.calls)
	assert.Equal(t, 4, v.VersionNumber)
	assert.True(t, v.IsLatestVersion)
	assert.Equal(t, "typo", v.Note)
	require.NotNil(t, v.CreatedBy)
	assert.Equal(t, int64(7), *v.CreatedBy)
	assert.True(t, b.Last().Committed)
}

func TestCreateVersion_InvalidContentsSkipsTx(t *testing.T) {
	store := &fakeStore{}
	svc, b := newTestService(store)

	_, err := svc.CreateVersion(context.Background(), 1, 7, 5, "", nil)
	assert.ErrorIs(t, err, ErrEmptyContents)
	assert.Empty(t, b.Txs)
	assert.Empty(t, store.calls)
}

func TestRestore_CopiesSourceIntoNewVersion(t *testing.T) {
	src := &model.CoupletVersion{
		VersionNumber: 2,
		Contents:      []*model.CoupletContent{{ID: 31, VersionID: 2, UpperLine: "上联", LowerLine: "下联", Banner: "横批"}},
	}
	store := &fakeStore{maxVer: 4, versions: map[int]*model.CoupletVersion{2: src}}
	svc, b := newTestService(store)

	v, err := svc.Restore(context.Background(), 1, 7, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"LockForUpdate", "GetVersion", "MaxVersion", "ClearLatest", "InsertVersion", "Touch"}, store.calls)
	assert.Equal(t, 5, v.VersionNumber)
	assert.Equal(t, RestoreNote(2), v.Note)
	require.Len(t, v.Contents, 1)
	assert.Zero(t, v.Contents[0].ID)
	assert.Equal(t, "上联", v.Contents[0].UpperLine)
	assert.NotSame(t, src.Contents[0], v.Contents[0])
	assert.True(t, b.Last().Committed)
}

func TestRestore_MissingVersionRollsBack(t *testing.T) {
	store := &fakeStore{maxVer: 4}
	svc, b := newTestService(store)

	_, err := svc.Restore(context.Background(), 1, 7, 5, 9)
	assert.ErrorIs(t, err, ErrVersionNotFound)
	assert.Equal(t, []string{"LockForUpdate", "GetVersion"}, store.calls)
	assert.True(t, b.Last().RolledBack)

	_, err = svc.Restore(context.Background(), 1, 7, 5, 0)
	assert.ErrorIs(t, err, ErrVersionNotFound)
	assert.Len(t, b.Txs, 1)
}

func TestAppendVersion_ErrorMapping(t *testing.T) {
	store := &fakeStore{lockErr: repository.ErrNotFound}
	svc, b := newTestService(store)
	_, err := svc.CreateVersion(context.Background(), 1, 7, 5, "", sampleContents)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"LockForUpdate"}, store.calls)
	assert.True(t, b.Last().RolledBack)

	store = &fakeStore{insertErr: repository.ErrDuplicate}
	svc, b = newTestService(store)
	_, err = svc.CreateVersion(context.Background(), 1, 7, 5, "", sampleContents)
	assert.ErrorIs(t, err, ErrConcurrentEdit)
	assert.True(t, b.Last().RolledBack)
}

func TestCreate_NumericTitleGetsLookupSafeSlug(t *testing.T) {
	store := &fakeStore{slugs: map[string]bool{"item-2026": true}}
	svc, b := newTestService(store)

	d, err := svc.Create(context.Background(), 1, 7, CreateInput{Title: "2026", Contents: sampleContents})
	require.NoError(t, err)
	assert.Equal(t, "item-2026-2", d.Couplet.Slug)
	assert.Equal(t, int64(10), d.Latest.CoupletID)
	assert.Equal(t, 1, d.Latest.VersionNumber)
	assert.Equal(t, []string{"Create", "InsertVersion"}, store.calls)
	assert.True(t, b.Last().Committed)
}

package comic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contenthub/contracts/events"
	"contenthub/internal/model"
	"contenthub/internal/repository"
	"contenthub/pkg/db"
	"contenthub/pkg/db/dbtest"
	"contenthub/pkg/outbox"
)

type fakeComics struct {
	ComicStore
	status string
	calls  []string
}

func (f *fakeComics) LockStatus(ctx context.Context, q db.Querier, tenantID, id int64) (string, error) {
	f.calls = append(f.calls, "LockStatus")
	if f.status == "" {
		return "", repository.ErrNotFound
	}
	return f.status, nil
}

func (f *fakeComics) SetStatus(ctx context.Context, q db.Querier, tenantID, id int64, status string) (*model.Comic, error) {
	f.calls = append(f.calls, "SetStatus")
	f.status = status
	return &model.Comic{ID: id, TenantID: tenantID, Slug: "naruto", Title: "Naruto", Status: status}, nil
}

type fakeEpisodes struct {
	EpisodeStore
	status string
}

func (f *fakeEpisodes) LockEpisodeStatus(ctx context.Context, q db.Querier, tenantID, id int64) (string, error) {
	if f.status == "" {
		return "", repository.ErrNotFound
	}
	return f.status, nil
}

func (f *fakeEpisodes) SetEpisodeStatus(ctx context.Context, q db.Querier, id int64, status string) (*model.Episode, error) {
	f.status = status
	return &model.Episode{ID: id, Title: "Ch. 1", Status: status}, nil
}

func newPublishService(comics *fakeComics, episodes *fakeEpisodes) (*Service, *dbtest.Beginner, *[]events.ContentPublishedPayload) {
	b := &dbtest.Beginner{}
	svc := NewService(b, comics, episodes, nil, nil, nil, nil, zap.NewNop())
	var sent []events.ContentPublishedPayload
	svc.enqueue = func(ctx context.Context, q db.Querier, tenantID int64, aggregateType string, aggregateID int64, routingKey string, payload any) (*outbox.Event, error) {
		if routingKey == events.ContentPublished {
			sent = append(sent, payload.(events.ContentPublishedPayload))
		}
		return &outbox.Event{}, nil
	}
	return svc, b, &sent
}

func TestSetComicStatus_PublishEmitsOnlyOnTransition(t *testing.T) {
	comics := &fakeComics{status: model.StatusDraft}
	svc, b, sent := newPublishService(comics, &fakeEpisodes{})

	c, err := svc.SetComicStatus(context.Background(), 1, 7, 3, model.StatusPublished)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, c.Status)
	assert.Equal(t, []string{"LockStatus", "SetStatus"}, comics.calls)
	require.Len(t, *sent, 1)
	assert.Equal(t, "comic", (*sent)[0].ContentType)
	assert.Equal(t, int64(3), (*sent)[0].ContentID)
	assert.Equal(t, int64(7), (*sent)[0].PublishedBy)
	assert.True(t, b.Last().Committed)

	// 第二次发布读到的是锁内的 published
	_, err = svc.SetComicStatus(context.Background(), 1, 7, 3, model.StatusPublished)
	require.NoError(t, err)
	assert.Len(t, *sent, 1)

	_, err = svc.SetComicStatus(context.Background(), 1, 7, 3, model.StatusDraft)
	require.NoError(t, err)
	_, err = svc.SetComicStatus(context.Background(), 1, 7, 3, model.StatusPublished)
	require.NoError(t, err)
	assert.Len(t, *sent, 2)
}

func TestSetComicStatus_Errors(t *testing.T) {
	comics := &fakeComics{}
	svc, b, sent := newPublishService(comics, &fakeEpisodes{})

	_, err := svc.SetComicStatus(context.Background(), 1, 7, 3, model.StatusPublished)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"LockStatus"}, comics.calls)
	assert.True(t, b.Last().RolledBack)

	_, err = svc.SetComicStatus(context.Background(), 1, 7, 3, "deleted")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Len(t, b.Txs, 1)
	assert.Empty(t, *sent)
}

func TestSetEpisodeStatus_PublishEmitsOnlyOnTransition(t *testing.T) {
	episodes := &fakeEpisodes{status: model.StatusDraft}
	svc, b, sent := newPublishService(&fakeComics{}, episodes)

	_, err := svc.SetEpisodeStatus(context.Background(), 1, 7, 11, model.StatusPublished)
	require.NoError(t, err)
	_, err = svc.SetEpisodeStatus(context.Background(), 1, 7, 11, model.StatusPublished)
	require.NoError(t, err)
	require.Len(t, *sent, 1)
	assert.Equal(t, "episode", (*sent)[0].ContentType)
	assert.Equal(t, int64(11), (*sent)[0].ContentID)
	assert.True(t, b.Last().Committed)

	episodes.status = ""
	_, err = svc.SetEpisodeStatus(context.Background(), 1, 7, 12, model.StatusPublished)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, b.Last().RolledBack)
}

func TestEntersPublished(t *testing.T) {
	assert.True(t, entersPublished(model.StatusDraft, model.StatusPublished))
	assert.True(t, entersPublished(model.StatusArchived, model.StatusPublished))
	assert.False(t, entersPublished(model.StatusPublished, model.StatusPublished))
	assert.False(t, entersPublished(model.StatusDraft, model.StatusArchived))
}

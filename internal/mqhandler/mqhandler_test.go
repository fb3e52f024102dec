package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contenthub/contracts/events"
	"contenthub/internal/model"
	"contenthub/pkg/mq"
	"contenthub/pkg/util"
)

type memDeduper struct {
	seen     map[string]bool
	released []string
}

func newMemDeduper() *memDeduper {
	return &memDeduper{seen: map[string]bool{}}
}

func (d *memDeduper) AcquireOnce(ctx context.Context, handler, messageID string) bool {
	k := handler + ":" + messageID
	if d.seen[k] {
		return false
	}
	d.seen[k] = true
	return true
}

func (d *memDeduper) Release(ctx context.Context, handler, messageID string) {
	k := handler + ":" + messageID
	delete(d.seen, k)
	d.released = append(d.released, k)
}

type fakeAchievements struct {
	calls []int64
	err   error
}

func (f *fakeAchievements) CheckAndUnlock(ctx context.Context, tenantID, userID int64) ([]*model.Achievement, error) {
	f.calls = append(f.calls, userID)
	return nil, f.err
}

type fakeBoard struct {
	totals map[int64]int64
}

func (f *fakeBoard) SyncLeaderboard(ctx context.Context, tenantID, userID, total int64) {
	f.totals[userID] = total
}

func message(t *testing.T, id, key string, payload any) mq.Message {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return mq.Message{ID: id, RoutingKey: key, Body: body}
}

func TestPointsChangedHandler(t *testing.T) {
	ach := &fakeAchievements{}
	board := &fakeBoard{totals: map[int64]int64{}}
	h := NewPointsChangedHandler(ach, board, newMemDeduper(), zap.NewNop())

	msg := message(t, "outbox-1", events.PointsChanged, events.PointsChangedPayload{
		Envelope: events.Envelope{EventID: "e1", TenantID: 1},
		UserID:   5,
		Delta:    10,
		NewTotal: 110,
		OldLevel: 1,
		NewLevel: 2,
	})

	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, []int64{5}, ach.calls)
	assert.Equal(t, int64(110), board.totals[5])

	// 重复投递被跳过
	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Len(t, ach.calls, 1)
}

func TestPointsChangedHandler_ReleasesOnError(t *testing.T) {
	ach := &fakeAchievements{err: errors.New("db down")}
	dedupe := newMemDeduper()
	h := NewPointsChangedHandler(ach, &fakeBoard{totals: map[int64]int64{}}, dedupe, zap.NewNop())

	msg := message(t, "outbox-2", events.PointsChanged, events.PointsChangedPayload{
		Envelope: events.Envelope{TenantID: 1},
		UserID:   5,
	})

	require.Error(t, h.Handle(context.Background(), msg))
	assert.Equal(t, []string{"points_changed:outbox-2"}, dedupe.released)

	// 释放后重投递会再次处理
	ach.err = nil
	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Len(t, ach.calls, 2)
}

func TestUserRegisteredHandler_ChecksReferrer(t *testing.T) {
	ach := &fakeAchievements{}
	h := NewUserRegisteredHandler(ach, newMemDeduper(), zap.NewNop())

	referrer := int64(3)
	msg := message(t, "outbox-3", events.UserRegistered, events.UserRegisteredPayload{
		Envelope:   events.Envelope{TenantID: 1},
		UserID:     9,
		ReferredBy: &referrer,
	})

	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, []int64{9, 3}, ach.calls)
}

func TestUserRegisteredHandler_WithoutReferrer(t *testing.T) {
	ach := &fakeAchievements{}
	h := NewUserRegisteredHandler(ach, newMemDeduper(), zap.NewNop())

	msg := message(t, "", events.UserRegistered, events.UserRegisteredPayload{
		Envelope: events.Envelope{EventID: "e9", TenantID: 1},
		UserID:   9,
	})

	require.NoError(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, []int64{9}, ach.calls)
}

func TestContentPublishedHandler(t *testing.T) {
	h := NewContentPublishedHandler(newMemDeduper(), zap.NewNop())

	msg := message(t, "outbox-4", events.ContentPublished, events.ContentPublishedPayload{
		Envelope:    events.Envelope{TenantID: 1},
		ContentType: "comic",
		ContentID:   12,
		Title:       "Hello",
	})
	assert.NoError(t, h.Handle(context.Background(), msg))
}

func TestDecodeErrorIsPermanent(t *testing.T) {
	h := NewContentPublishedHandler(newMemDeduper(), zap.NewNop())

	err := h.Handle(context.Background(), mq.Message{ID: "x", RoutingKey: events.ContentPublished, Body: []byte("{not json")})
	require.Error(t, err)

	retryable, _ := util.IsRetryableError(err)
	assert.False(t, retryable)
}

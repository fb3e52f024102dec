package points

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contenthub/config"
	"contenthub/contracts/events"
	"contenthub/internal/model"
	"contenthub/internal/repository"
	"contenthub/pkg/db"
	"contenthub/pkg/db/dbtest"
	"contenthub/pkg/outbox"
	"contenthub/pkg/pagination"
)

type fakeStore struct {
	total int64
	level int
	calls []string
	txs   []*model.PointTransaction
	saved int64
}

func (f *fakeStore) LockSummary(ctx context.Context, q db.Querier, tenantID, userID int64) (int64, int, error) {
	f.calls = append(f.calls, "LockSummary")
	return f.total, f.level, nil
}

func (f *fakeStore) InsertTransaction(ctx context.Context, q db.Querier, t *model.PointTransaction) error {
	f.calls = append(f.calls, "InsertTransaction")
	f.txs = append(f.txs, t)
	return nil
}

func (f *fakeStore) UpdateSummary(ctx context.Context, q db.Querier, tenantID, userID, total int64, level int) error {
	f.calls = append(f.calls, "UpdateSummary")
	f.saved = total
	return nil
}

func (f *fakeStore) GetSummary(ctx context.Context, tenantID, userID int64) (*model.PointSummary, error) {
	return &model.PointSummary{TenantID: tenantID, UserID: userID, TotalPoints: f.total}, nil
}

func (f *fakeStore) ListTransactions(ctx context.Context, tenantID, userID int64, p pagination.Params) ([]*model.PointTransaction, int64, error) {
	return f.txs, int64(len(f.txs)), nil
}

func (f *fakeStore) LastCheckin(ctx context.Context, q db.Querier, userID int64) (*model.Checkin, error) {
	return nil, nil
}

func (f *fakeStore) InsertCheckin(ctx context.Context, q db.Querier, userID int64, day time.Time, streak int) error {
	return nil
}

func (f *fakeStore) TopSummaries(ctx context.Context, tenantID int64, limit int) ([]*model.LeaderboardEntry, error) {
	return nil, nil
}

type fakeUsers struct {
	err error
}

func (f *fakeUsers) FindByID(ctx context.Context, tenantID, id int64) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.User{ID: id, TenantID: tenantID}, nil
}

func (f *fakeUsers) Nicknames(ctx context.Context, tenantID int64, ids []int64) (map[int64]string, error) {
	return map[int64]string{}, nil
}

type fakeBoard struct {
	updates map[int64]int64
}

func (f *fakeBoard) Update(ctx context.Context, tenantID, userID, total int64) error {
	if f.updates == nil {
		f.updates = map[int64]int64{}
	}
	f.updates[userID] = total
	return nil
}

func (f *fakeBoard) Top(ctx context.Context, tenantID int64, n int) ([]repository.ScoredUser, error) {
	return nil, nil
}

type enqueued struct {
	routingKey string
	payload    any
}

func newTestService(store *fakeStore, users *fakeUsers, board *fakeBoard) (*Service, *dbtest.Beginner, *[]enqueued) {
	b := &dbtest.Beginner{}
	svc := NewService(b, store, users, board, config.PointsConfig{CheckinPoints: 10}, zap.NewNop())
	var sent []enqueued
	svc.enqueue = func(ctx context.Context, q db.Querier, tenantID int64, aggregateType string, aggregateID int64, routingKey string, payload any) (*outbox.Event, error) {
		sent = append(sent, enqueued{routingKey: routingKey, payload: payload})
		return &outbox.Event{ID: int64(len(sent))}, nil
	}
	return svc, b, &sent
}

func TestApplyDelta(t *testing.T) {
	total, level, err := ApplyDelta(100, -30)
	require.NoError(t, err)
	assert.Equal(t, int64(70), total)
	assert.Equal(t, LevelFor(70), level)

	total, _, err = ApplyDelta(10, -10)
	require.NoError(t, err)
	assert.Zero(t, total)

	total, level, err = ApplyDelta(10, -11)
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.Equal(t, int64(10), total)
	assert.Equal(t, LevelFor(10), level)
}

func TestAward_InsufficientPointsWritesNothing(t *testing.T) {
	store := &fakeStore{total: 10, level: 1}
	svc, _, sent := newTestService(store, &fakeUsers{}, &fakeBoard{})

	_, err := svc.Award(context.Background(), nil, AwardInput{TenantID: 1, UserID: 2, Delta: -20, Reason: model.ReasonAdmin})
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.Equal(t, []string{"LockSummary"}, store.calls)
	assert.Empty(t, *sent)
}

func TestAward_Validation(t *testing.T) {
	store := &fakeStore{}
	svc, _, _ := newTestService(store, &fakeUsers{}, &fakeBoard{})

	_, err := svc.Award(context.Background(), nil, AwardInput{TenantID: 1, UserID: 2, Reason: "x"})
	assert.ErrorIs(t, err, ErrZeroDelta)
	_, err = svc.Award(context.Background(), nil, AwardInput{TenantID: 1, UserID: 2, Delta: 5})
	assert.ErrorIs(t, err, ErrReasonRequired)
	assert.Empty(t, store.calls)
}

func TestAward_LedgerSummaryThenEvent(t *testing.T) {
	store := &fakeStore{total: 90, level: LevelFor(90)}
	svc, _, sent := newTestService(store, &fakeUsers{}, &fakeBoard{})

	res, err := svc.Award(context.Background(), nil, AwardInput{TenantID: 1, UserID: 2, Delta: 20, Reason: model.ReasonCheckin})
	require.NoError(t, err)
	assert.Equal(t, []string{"LockSummary", "InsertTransaction", "UpdateSummary"}, store.calls)
	assert.Equal(t, int64(110), store.saved)
	assert.Equal(t, &AwardResult{OldTotal: 90, NewTotal: 110, OldLevel: LevelFor(90), NewLevel: LevelFor(110)}, res)

	require.Len(t, *sent, 1)
	assert.Equal(t, events.PointsChanged, (*sent)[0].routingKey)
	payload, ok := (*sent)[0].payload.(events.PointsChangedPayload)
	require.True(t, ok)
	assert.Equal(t, int64(110), payload.NewTotal)
	assert.Equal(t, int64(20), payload.Delta)
	assert.NotEmpty(t, payload.EventID)
}

func TestAdjust_CommitsAndSyncsLeaderboard(t *testing.T) {
	store := &fakeStore{total: 40}
	board := &fakeBoard{}
	svc, b, _ := newTestService(store, &fakeUsers{}, board)

	res, err := svc.Adjust(context.Background(), 1, 2, 5, "")
	require.NoError(t, err)
	assert.Equal(t, int64(45), res.NewTotal)
	require.Len(t, b.Txs, 1)
	assert.True(t, b.Last().Committed)
	assert.Equal(t, model.ReasonAdmin, store.txs[0].Reason)
	assert.Equal(t, int64(45), board.updates[2])
}

func TestAdjust_InsufficientRollsBack(t *testing.T) {
	store := &fakeStore{total: 3}
	board := &fakeBoard{}
	svc, b, sent := newTestService(store, &fakeUsers{}, board)

	_, err := svc.Adjust(context.Background(), 1, 2, -10, "penalty")
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.True(t, b.Last().RolledBack)
	assert.False(t, b.Last().Committed)
	assert.Empty(t, board.updates)
	assert.Empty(t, *sent)
}

func TestAdjust_UnknownUser(t *testing.T) {
	svc, b, _ := newTestService(&fakeStore{}, &fakeUsers{err: repository.ErrNotFound}, &fakeBoard{})

	_, err := svc.Adjust(context.Background(), 1, 99, 5, "")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Empty(t, b.Txs)

	svc, _, _ = newTestService(&fakeStore{}, &fakeUsers{err: errors.New("db down")}, &fakeBoard{})
	_, err = svc.Adjust(context.Background(), 1, 99, 5, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubQuerier 按调用顺序返回预设的 Exec 错误；QueryRow 交给 scan
type stubQuerier struct {
	execErrs []error
	scan     func(dest ...any) error
	sqls     []string
}

func (q *stubQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.sqls = append(q.sqls, sql)
	if len(q.execErrs) == 0 {
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	err := q.execErrs[0]
	q.execErrs = q.execErrs[1:]
	return pgconn.NewCommandTag("UPDATE 1"), err
}

func (q *stubQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (q *stubQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.sqls = append(q.sqls, sql)
	return stubRow(q.scan)
}

type stubRow func(dest ...any) error

func (r stubRow) Scan(dest ...any) error { return r(dest...) }

func scanString(v string) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = v
		return nil
	}
}

func TestRedeemConsume_DuplicateRecordIsAlreadyRedeemed(t *testing.T) {
	repo := NewRedeemRepository(nil, zap.NewNop())
	q := &stubQuerier{execErrs: []error{nil, &pgconn.PgError{Code: "23505", ConstraintName: "redeem_records_code_user_key"}}}

	err := repo.Consume(context.Background(), q, 9, 2)
	assert.ErrorIs(t, err, ErrAlreadyRedeemed)
	assert.Len(t, q.sqls, 2)
}

func TestRedeemConsume_OtherErrorsWrapped(t *testing.T) {
	repo := NewRedeemRepository(nil, zap.NewNop())
	boom := errors.New("conn reset")

	err := repo.Consume(context.Background(), &stubQuerier{execErrs: []error{boom}}, 9, 2)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrAlreadyRedeemed)

	require.NoError(t, repo.Consume(context.Background(), &stubQuerier{}, 9, 2))
}

func TestLockStatus(t *testing.T) {
	comics := NewComicRepository(nil, zap.NewNop())
	episodes := NewEpisodeRepository(nil, zap.NewNop())

	q := &stubQuerier{scan: scanString("draft")}
	status, err := comics.LockStatus(context.Background(), q, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, "draft", status)
	assert.Contains(t, q.sqls[0], "FOR UPDATE")

	q = &stubQuerier{scan: scanString("published")}
	status, err = episodes.LockEpisodeStatus(context.Background(), q, 1, 11)
	require.NoError(t, err)
	assert.Equal(t, "published", status)
	assert.Contains(t, q.sqls[0], "FOR UPDATE OF e")

	noRows := &stubQuerier{scan: func(dest ...any) error { return pgx.ErrNoRows }}
	_, err = comics.LockStatus(context.Background(), noRows, 1, 3)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = episodes.LockEpisodeStatus(context.Background(), noRows, 1, 11)
	assert.ErrorIs(t, err, ErrNotFound)

	boom := errors.New("timeout")
	_, err = comics.LockStatus(context.Background(), &stubQuerier{scan: func(dest ...any) error { return boom }}, 1, 3)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `c:\\x`, escapeLike(`c:\x`))
	assert.Equal(t, "plain", escapeLike("plain"))
}

func TestLeaderboardKey(t *testing.T) {
	assert.Equal(t, "leaderboard:42", leaderboardKey(42))
}

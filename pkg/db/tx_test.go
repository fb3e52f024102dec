package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contenthub/pkg/config"
	"contenthub/pkg/db/dbtest"
)

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	b := &dbtest.Beginner{}
	require.NoError(t, WithTx(context.Background(), b, func(tx pgx.Tx) error { return nil }))
	require.Len(t, b.Txs, 1)
	assert.True(t, b.Last().Committed)
	assert.False(t, b.Last().RolledBack)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	b := &dbtest.Beginner{}
	boom := errors.New("boom")
	err := WithTx(context.Background(), b, func(tx pgx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, b.Last().Committed)
	assert.True(t, b.Last().RolledBack)
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	b := &dbtest.Beginner{}
	assert.PanicsWithValue(t, "bad", func() {
		_ = WithTx(context.Background(), b, func(tx pgx.Tx) error { panic("bad") })
	})
	assert.True(t, b.Last().RolledBack)
}

func TestWithTx_BeginError(t *testing.T) {
	b := &dbtest.Beginner{Err: dbtest.ErrBegin}
	called := false
	err := WithTx(context.Background(), b, func(tx pgx.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, dbtest.ErrBegin)
	assert.False(t, called)
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "comics_tenant_slug_key"})

	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "comics_tenant_slug_key"))
	assert.False(t, IsUniqueViolation(err, "users_email_key"))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23505"}))
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(fmt.Errorf("wrap: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("other")))
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DBConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss/word", Name: "contenthub"})
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/contenthub?sslmode=disable", dsn)

	dsn = DSN(config.DBConfig{Host: "db", Port: 5432, User: "app", Name: "x", SSLMode: "require"})
	assert.Contains(t, dsn, "sslmode=require")
}

func TestTruncateSQL(t *testing.T) {
	assert.Equal(t, "select 1", truncateSQL("select 1", 200))
	assert.Equal(t, "sel...", truncateSQL("select 1", 3))
}

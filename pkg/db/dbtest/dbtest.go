// Package dbtest 提供不连接数据库的事务替身，供 service 层单元测试使用
package dbtest

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx 只实现 Begin、Commit、Rollback；其余方法调用会 panic
type Tx struct {
	pgx.Tx
	Committed  bool
	RolledBack bool
	Savepoints []*Tx
}

func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) {
	sp := &Tx{}
	t.Savepoints = append(t.Savepoints, sp)
	return sp, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.Committed || t.RolledBack {
		return pgx.ErrTxClosed
	}
	t.Committed = true
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if t.Committed || t.RolledBack {
		return pgx.ErrTxClosed
	}
	t.RolledBack = true
	return nil
}

// Beginner 记录开启过的事务；Err 非空时 Begin 直接失败
type Beginner struct {
	Txs []*Tx
	Err error
}

func (b *Beginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if b.Err != nil {
		return nil, b.Err
	}
	tx := &Tx{}
	b.Txs = append(b.Txs, tx)
	return tx, nil
}

// Exec、Query、QueryRow 一律失败，repository 替身不应把它们转发到这里
func (b *Beginner) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, ErrNoQuery
}

func (b *Beginner) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, ErrNoQuery
}

func (b *Beginner) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return errRow{}
}

type errRow struct{}

func (errRow) Scan(dest ...any) error { return ErrNoQuery }

// Last 最近一次开启的事务
func (b *Beginner) Last() *Tx {
	if len(b.Txs) == 0 {
		return nil
	}
	return b.Txs[len(b.Txs)-1]
}

var (
	// ErrBegin 用于模拟连接不可用
	ErrBegin   = errors.New("dbtest: begin failed")
	ErrNoQuery = errors.New("dbtest: queries are not supported")
)

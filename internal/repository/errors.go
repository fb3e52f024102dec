package repository

import "errors"

// 仓储层统一把 pgx.ErrNoRows 和约束冲突转换成以下错误
var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicate     = errors.New("duplicate record")
	ErrEmailTaken    = errors.New("email already registered")
	ErrAlreadyExists = errors.New("already exists")
)

package repository

import "errors"

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("not found")
	// ErrDuplicateUsername username 已被其他凭据占用
	ErrDuplicateUsername = errors.New("duplicate username")
	// ErrDuplicateSource 同一 (source_kind, source_ref) 已存在凭据
	ErrDuplicateSource = errors.New("duplicate source reference")
)

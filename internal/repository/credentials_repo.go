package repository

import (
	"context"

	"secretariat-data/internal/domain"
)

// CredentialsRepository 凭据Repository接口
// Find* return (nil, nil) when nothing matches.
type CredentialsRepository interface {
	// FindBySourceRef 根据 (source_kind, source_ref) 查询
	FindBySourceRef(ctx context.Context, kind domain.SourceKind, ref string) (*domain.Credential, error)
	// FindByUsername 根据 username 查询（全局唯一）
	FindByUsername(ctx context.Context, username string) (*domain.Credential, error)
	// Get 根据 credential_id 查询，不存在返回 ErrNotFound
	Get(ctx context.Context, id string) (*domain.Credential, error)
	// ListAll 全量列表（orphan sweep 使用）
	ListAll(ctx context.Context) ([]*domain.Credential, error)
	// List 分页列表（operator 使用）
	List(ctx context.Context, filters CredentialFilters, page, size int) ([]*domain.Credential, int, error)

	// Create assigns the id when empty. Fails with ErrDuplicateUsername / ErrDuplicateSource.
	Create(ctx context.Context, c *domain.Credential) (*domain.Credential, error)
	// Update 部分更新，不存在返回 ErrNotFound
	Update(ctx context.Context, id string, u CredentialUpdate) error
	// Delete 幂等删除
	Delete(ctx context.Context, id string) error
}

// CredentialUpdate nil fields are left unchanged.
type CredentialUpdate struct {
	Username    *string
	Password    *string
	DisplayName *string
	Active      *bool
	Pinned      *bool
}

// Empty reports whether no field is set.
func (u CredentialUpdate) Empty() bool {
	return u.Username == nil && u.Password == nil && u.DisplayName == nil && u.Active == nil && u.Pinned == nil
}

// CredentialFilters 凭据查询过滤器
type CredentialFilters struct {
	Kind   domain.SourceKind
	Search string // username / display_name 模糊搜索
	Active *bool
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	return page, size
}

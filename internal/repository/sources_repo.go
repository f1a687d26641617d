package repository

import (
	"context"

	"secretariat-data/internal/domain"
)

// SourcesRepository 来源实体只读访问（members / districts / towns 属于其他模块）
// Get* return (nil, nil) when the entity does not exist (or is soft-deleted).
type SourcesRepository interface {
	GetMember(ctx context.Context, memberID int64) (*domain.MemberSource, error)
	// ListActiveMembers returns non-archived members ordered by member_id.
	ListActiveMembers(ctx context.Context) ([]*domain.MemberSource, error)
	// ListMembersByID is a batched GetMember (missing ids are simply absent).
	ListMembersByID(ctx context.Context, ids []int64) (map[int64]*domain.MemberSource, error)

	GetDistrictChair(ctx context.Context, districtID int64) (*domain.DistrictChairSource, error)
	ListDistrictChairs(ctx context.Context) ([]*domain.DistrictChairSource, error)

	GetTownChair(ctx context.Context, townID int64) (*domain.TownChairSource, error)
	ListTownChairs(ctx context.Context) ([]*domain.TownChairSource, error)
}

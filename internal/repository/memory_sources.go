package repository

import (
	"context"
	"sort"
	"sync"

	"secretariat-data/internal/domain"
)

// MemorySourcesRepository holds source entities in memory (dev mode and tests).
// The Put*/Remove* helpers stand in for the CRUD modules that own these tables.
type MemorySourcesRepository struct {
	mu        sync.RWMutex
	members   map[int64]*domain.MemberSource
	districts map[int64]*domain.DistrictChairSource
	towns     map[int64]*domain.TownChairSource
	// Err, when set, is returned by every read.
	Err error
}

func NewMemorySourcesRepository() *MemorySourcesRepository {
	return &MemorySourcesRepository{
		members:   map[int64]*domain.MemberSource{},
		districts: map[int64]*domain.DistrictChairSource{},
		towns:     map[int64]*domain.TownChairSource{},
	}
}

var _ SourcesRepository = (*MemorySourcesRepository)(nil)

func (r *MemorySourcesRepository) PutMember(m domain.MemberSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m.MemberID] = &m
}

func (r *MemorySourcesRepository) RemoveMember(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, id)
}

func (r *MemorySourcesRepository) PutDistrict(d domain.DistrictChairSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.districts[d.DistrictID] = &d
}

func (r *MemorySourcesRepository) RemoveDistrict(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.districts, id)
}

func (r *MemorySourcesRepository) PutTown(t domain.TownChairSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.towns[t.TownID] = &t
}

func (r *MemorySourcesRepository) RemoveTown(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.towns, id)
}

func (r *MemorySourcesRepository) GetMember(_ context.Context, memberID int64) (*domain.MemberSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	m, ok := r.members[memberID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *MemorySourcesRepository) ListActiveMembers(_ context.Context) ([]*domain.MemberSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := []*domain.MemberSource{}
	for _, m := range r.members {
		if m.Archived {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func (r *MemorySourcesRepository) ListMembersByID(_ context.Context, ids []int64) (map[int64]*domain.MemberSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := map[int64]*domain.MemberSource{}
	for _, id := range ids {
		if m, ok := r.members[id]; ok {
			cp := *m
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *MemorySourcesRepository) GetDistrictChair(_ context.Context, districtID int64) (*domain.DistrictChairSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	d, ok := r.districts[districtID]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r *MemorySourcesRepository) ListDistrictChairs(_ context.Context) ([]*domain.DistrictChairSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*domain.DistrictChairSource, 0, len(r.districts))
	for _, d := range r.districts {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistrictID < out[j].DistrictID })
	return out, nil
}

func (r *MemorySourcesRepository) GetTownChair(_ context.Context, townID int64) (*domain.TownChairSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	t, ok := r.towns[townID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *MemorySourcesRepository) ListTownChairs(_ context.Context) ([]*domain.TownChairSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*domain.TownChairSource, 0, len(r.towns))
	for _, t := range r.towns {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TownID < out[j].TownID })
	return out, nil
}

package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"secretariat-data/internal/domain"

	"github.com/google/uuid"
)

// MemoryCredentialsRepository supports the credential store when DB is disabled (dev) and in tests.
// Uniqueness of username and (source_kind, source_ref) is enforced under one lock,
// mirroring the unique indexes of the credentials table.
type MemoryCredentialsRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.Credential
	now  func() time.Time
}

func NewMemoryCredentialsRepository() *MemoryCredentialsRepository {
	return &MemoryCredentialsRepository{
		byID: map[string]*domain.Credential{},
		now:  time.Now,
	}
}

var _ CredentialsRepository = (*MemoryCredentialsRepository)(nil)

func (r *MemoryCredentialsRepository) FindBySourceRef(_ context.Context, kind domain.SourceKind, ref string) (*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if kind == "" || ref == "" {
		return nil, nil
	}
	for _, c := range r.byID {
		if c.SourceKind == kind && c.SourceRef == ref {
			return c.Clone(), nil
		}
	}
	return nil, nil
}

func (r *MemoryCredentialsRepository) FindByUsername(_ context.Context, username string) (*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if username == "" {
		return nil, nil
	}
	for _, c := range r.byID {
		if c.Username == username {
			return c.Clone(), nil
		}
	}
	return nil, nil
}

func (r *MemoryCredentialsRepository) Get(_ context.Context, id string) (*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (r *MemoryCredentialsRepository) ListAll(_ context.Context) ([]*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Credential, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceKind != out[j].SourceKind {
			return out[i].SourceKind < out[j].SourceKind
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryCredentialsRepository) List(ctx context.Context, filters CredentialFilters, page, size int) ([]*domain.Credential, int, error) {
	all, _ := r.ListAll(ctx)
	search := strings.ToLower(filters.Search)

	matched := make([]*domain.Credential, 0, len(all))
	for _, c := range all {
		if filters.Kind != "" && c.SourceKind != filters.Kind {
			continue
		}
		if filters.Active != nil && c.Active != *filters.Active {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Username), search) &&
			!strings.Contains(strings.ToLower(c.DisplayName), search) {
			continue
		}
		matched = append(matched, c)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].SourceKind != matched[j].SourceKind {
			return matched[i].SourceKind < matched[j].SourceKind
		}
		return matched[i].Username < matched[j].Username
	})

	total := len(matched)
	page, size = normalizePage(page, size)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryCredentialsRepository) Create(_ context.Context, c *domain.Credential) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.Username == c.Username {
			return nil, ErrDuplicateUsername
		}
		if c.SourceRef != "" && existing.SourceKind == c.SourceKind && existing.SourceRef == c.SourceRef {
			return nil, ErrDuplicateSource
		}
	}

	out := c.Clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	now := r.now()
	out.CreatedAt = now
	out.UpdatedAt = now
	r.byID[out.ID] = out
	return out.Clone(), nil
}

func (r *MemoryCredentialsRepository) Update(_ context.Context, id string, u CredentialUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if u.Username != nil && *u.Username != c.Username {
		for otherID, other := range r.byID {
			if otherID != id && other.Username == *u.Username {
				return ErrDuplicateUsername
			}
		}
	}

	next := c.Clone()
	if u.Username != nil {
		next.Username = *u.Username
	}
	if u.Password != nil {
		next.Password = *u.Password
	}
	if u.DisplayName != nil {
		next.DisplayName = *u.DisplayName
	}
	if u.Active != nil {
		next.Active = *u.Active
	}
	if u.Pinned != nil {
		next.Pinned = *u.Pinned
	}
	next.UpdatedAt = r.now()
	r.byID[id] = next
	return nil
}

func (r *MemoryCredentialsRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

// Seed inserts a record verbatim (tests and dev bootstrap); it bypasses uniqueness checks
// so that legacy/malformed rows can be represented.
func (r *MemoryCredentialsRepository) Seed(c *domain.Credential) *domain.Credential {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := c.Clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = r.now()
		out.UpdatedAt = out.CreatedAt
	}
	r.byID[out.ID] = out
	return out.Clone()
}

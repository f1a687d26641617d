package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"secretariat-data/internal/domain"
	"secretariat-data/internal/identity"
	applog "secretariat-data/internal/logger"
	"secretariat-data/internal/repository"

	"go.uber.org/zap"
)

// ReconcileWarning means an operator change was saved but the reconciliation
// that follows it failed. The change is not rolled back.
type ReconcileWarning struct {
	Err error
}

func (w *ReconcileWarning) Error() string {
	return "saved, but reconciliation failed: " + w.Err.Error()
}

func (w *ReconcileWarning) Unwrap() error { return w.Err }

// CredentialService operator actions on credentials.
type CredentialService struct {
	creds      repository.CredentialsRepository
	sources    repository.SourcesRepository
	reconciler *Reconciler
	logger     *zap.Logger
}

// NewCredentialService 创建 CredentialService
func NewCredentialService(
	creds repository.CredentialsRepository,
	sources repository.SourcesRepository,
	reconciler *Reconciler,
	logger *zap.Logger,
) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialService{
		creds:      creds,
		sources:    sources,
		reconciler: reconciler,
		logger:     logger,
	}
}

// ListResult 分页结果
type ListResult struct {
	Items []*domain.Credential `json:"items"`
	Total int                  `json:"total"`
	Page  int                  `json:"page"`
	Size  int                  `json:"size"`
}

// List returns a page of credentials; member display names come from the member rows.
func (s *CredentialService) List(ctx context.Context, filters repository.CredentialFilters, page, size int) (*ListResult, error) {
	if filters.Kind != "" && !filters.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, filters.Kind)
	}
	items, total, err := s.creds.List(ctx, filters, page, size)
	if err != nil {
		return nil, err
	}
	if err := s.resolveMemberNames(ctx, items); err != nil {
		return nil, err
	}
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	return &ListResult{Items: items, Total: total, Page: page, Size: size}, nil
}

func (s *CredentialService) resolveMemberNames(ctx context.Context, items []*domain.Credential) error {
	var ids []int64
	for _, c := range items {
		if c.SourceKind != domain.SourceMember {
			continue
		}
		if id, ok := domain.ParseRef(c.SourceRef); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	members, err := s.sources.ListMembersByID(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to resolve member names: %w", err)
	}
	for _, c := range items {
		if c.SourceKind != domain.SourceMember {
			continue
		}
		id, _ := domain.ParseRef(c.SourceRef)
		if m, ok := members[id]; ok {
			c.DisplayName = m.FullName()
		}
	}
	return nil
}

const exportPageSize = 500

// ExportRows returns every credential matching filters.
func (s *CredentialService) ExportRows(ctx context.Context, filters repository.CredentialFilters) ([]*domain.Credential, error) {
	var out []*domain.Credential
	for page := 1; ; page++ {
		res, err := s.List(ctx, filters, page, exportPageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Items...)
		if len(res.Items) < exportPageSize || len(out) >= res.Total {
			break
		}
	}
	return out, nil
}

// SetActive suspends or re-enables a member credential.
func (s *CredentialService) SetActive(ctx context.Context, id string, active bool) (*domain.Credential, error) {
	c, err := s.creds.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.SourceKind != domain.SourceMember {
		return nil, ErrActiveToggleNotAllowed
	}
	if c.Active == active {
		return c, nil
	}
	if err := s.creds.Update(ctx, id, repository.CredentialUpdate{Active: &active}); err != nil {
		return nil, err
	}
	c.Active = active
	s.logger.Info("Credential active changed",
		zap.String("credential_id", id),
		zap.Bool("active", active),
	)
	s.reconciler.publish(ctx, CredentialUpdated, c)
	return c, nil
}

// SetCredentials rewrites username and password by hand and pins the record,
// so reconciliation keeps them until the record is unpinned.
func (s *CredentialService) SetCredentials(ctx context.Context, id, username, password string) (*domain.Credential, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	digits := identity.DigitsOnly(password)
	if digits == "" {
		return nil, fmt.Errorf("%w: password must contain digits", ErrInvalidInput)
	}

	c, err := s.creds.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock, err := s.reconciler.locker.Lock(ctx, lockKey(c.SourceKind, c.SourceRef))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if username != c.Username {
		if err := s.reconciler.checkUsernameAvailable(ctx, username, c.ID); err != nil {
			return nil, err
		}
	}
	pinned := true
	u := repository.CredentialUpdate{Pinned: &pinned}
	if username != c.Username {
		u.Username = &username
	}
	if digits != c.Password {
		u.Password = &digits
	}
	if err := s.creds.Update(ctx, id, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, fmt.Errorf("%w: %q: %w", ErrUsernameCollision, username, err)
		}
		return nil, err
	}

	c.Username = username
	c.Password = digits
	c.Pinned = true
	s.logger.Info("Credential set by operator",
		zap.String("credential_id", id),
		zap.String("source_kind", string(c.SourceKind)),
		applog.Masked("username", username),
	)
	s.reconciler.publish(ctx, CredentialUpdated, c)
	return c, nil
}

// SetPinned pins or unpins a record. Unpinning reconciles the record right away;
// a failure there is returned as *ReconcileWarning.
func (s *CredentialService) SetPinned(ctx context.Context, id string, pinned bool) (*domain.Credential, error) {
	c, err := s.creds.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Pinned != pinned {
		if err := s.creds.Update(ctx, id, repository.CredentialUpdate{Pinned: &pinned}); err != nil {
			return nil, err
		}
		c.Pinned = pinned
		s.logger.Info("Credential pin changed",
			zap.String("credential_id", id),
			zap.Bool("pinned", pinned),
		)
	}
	if pinned {
		return c, nil
	}

	srcID, ok := domain.ParseRef(c.SourceRef)
	if !ok || !c.SourceKind.Valid() {
		return c, nil
	}
	if _, err := s.reconciler.ReconcileOne(ctx, c.SourceKind, srcID); err != nil {
		return c, &ReconcileWarning{Err: err}
	}
	fresh, err := s.creds.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// the source no longer qualifies and the record was deleted
			return nil, nil
		}
		return c, nil
	}
	return fresh, nil
}

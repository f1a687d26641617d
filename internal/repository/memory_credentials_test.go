package repository

import (
	"context"
	"testing"

	"secretariat-data/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCred(kind domain.SourceKind, ref, username string) *domain.Credential {
	return &domain.Credential{
		SourceKind: kind,
		SourceRef:  ref,
		Username:   username,
		Password:   "5551112233",
		Active:     true,
	}
}

func TestMemoryCredentials_CreateAndFind(t *testing.T) {
	repo := NewMemoryCredentialsRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, newCred(domain.SourceMember, "7", "12345678901"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	bySource, err := repo.FindBySourceRef(ctx, domain.SourceMember, "7")
	require.NoError(t, err)
	require.NotNil(t, bySource)
	assert.Equal(t, created.ID, bySource.ID)

	byName, err := repo.FindByUsername(ctx, "12345678901")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, created.ID, byName.ID)

	missing, err := repo.FindByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// returned values are copies
	byName.Username = "mutated"
	again, _ := repo.Get(ctx, created.ID)
	assert.Equal(t, "12345678901", again.Username)
}

func TestMemoryCredentials_Uniqueness(t *testing.T) {
	repo := NewMemoryCredentialsRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, newCred(domain.SourceTownChair, "1", "merkez"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newCred(domain.SourceTownChair, "2", "merkez"))
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = repo.Create(ctx, newCred(domain.SourceTownChair, "1", "baska"))
	assert.ErrorIs(t, err, ErrDuplicateSource)

	// same ref under a different kind is a different source
	_, err = repo.Create(ctx, newCred(domain.SourceDistrictChair, "1", "baska"))
	require.NoError(t, err)

	other, err := repo.FindByUsername(ctx, "baska")
	require.NoError(t, err)
	taken := "merkez"
	assert.ErrorIs(t, repo.Update(ctx, other.ID, CredentialUpdate{Username: &taken}), ErrDuplicateUsername)
}

func TestMemoryCredentials_UpdateDelete(t *testing.T) {
	repo := NewMemoryCredentialsRepository()
	ctx := context.Background()

	c, err := repo.Create(ctx, newCred(domain.SourceMember, "3", "111"))
	require.NoError(t, err)

	active := false
	require.NoError(t, repo.Update(ctx, c.ID, CredentialUpdate{Active: &active}))
	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "111", got.Username)

	assert.ErrorIs(t, repo.Update(ctx, "missing", CredentialUpdate{Active: &active}), ErrNotFound)

	require.NoError(t, repo.Delete(ctx, c.ID))
	require.NoError(t, repo.Delete(ctx, c.ID))
	_, err = repo.Get(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCredentials_List(t *testing.T) {
	repo := NewMemoryCredentialsRepository()
	ctx := context.Background()

	for i, name := range []string{"cankaya", "kecioren", "mamak"} {
		_, err := repo.Create(ctx, newCred(domain.SourceDistrictChair, domain.FormatRef(int64(i+1)), name))
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, newCred(domain.SourceMember, "1", "22222222222"))
	require.NoError(t, err)

	out, total, err := repo.List(ctx, CredentialFilters{Kind: domain.SourceDistrictChair}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, out, 2)

	out, total, err = repo.List(ctx, CredentialFilters{Search: "MAM"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, out, 1)
	assert.Equal(t, "mamak", out[0].Username)
}

func TestMemoryCredentials_SeedLegacy(t *testing.T) {
	repo := NewMemoryCredentialsRepository()
	ctx := context.Background()

	legacy := repo.Seed(newCred(domain.SourceTownChair, "", "eski"))
	assert.NotEmpty(t, legacy.ID)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "", all[0].SourceRef)

	// legacy rows never match a source lookup
	c, err := repo.FindBySourceRef(ctx, domain.SourceTownChair, "")
	require.NoError(t, err)
	assert.Nil(t, c)

	repo.Seed(newCred("", "9", "no_kind"))
	c, err = repo.FindBySourceRef(ctx, "", "9")
	require.NoError(t, err)
	assert.Nil(t, c)
}

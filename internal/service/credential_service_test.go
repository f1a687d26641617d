package service

import (
	"context"
	"errors"
	"testing"

	"secretariat-data/internal/domain"
	"secretariat-data/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialService_ListResolvesMemberNames(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedRoster()
	_, err := env.reconciler.ResyncAll(ctx)
	require.NoError(t, err)

	res, err := env.operator.List(ctx, repository.CredentialFilters{Kind: domain.SourceMember}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 50, res.Size)

	names := map[string]string{}
	for _, c := range res.Items {
		names[c.SourceRef] = c.DisplayName
	}
	assert.Equal(t, "Ayşe Kaya", names["1"])
	assert.Equal(t, "", names["2"])

	_, err = env.operator.List(ctx, repository.CredentialFilters{Kind: "village_chair"}, 1, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCredentialService_SetActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedRoster()
	_, err := env.reconciler.ResyncAll(ctx)
	require.NoError(t, err)

	member := env.record(t, domain.SourceMember, "1")
	c, err := env.operator.SetActive(ctx, member.ID, false)
	require.NoError(t, err)
	assert.False(t, c.Active)

	chair := env.record(t, domain.SourceDistrictChair, "1")
	_, err = env.operator.SetActive(ctx, chair.ID, false)
	assert.ErrorIs(t, err, ErrActiveToggleNotAllowed)

	_, err = env.operator.SetActive(ctx, "missing", true)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCredentialService_SetCredentialsPinsAgainstResync(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedRoster()
	_, err := env.reconciler.ResyncAll(ctx)
	require.NoError(t, err)

	chair := env.record(t, domain.SourceDistrictChair, "1")
	c, err := env.operator.SetCredentials(ctx, chair.ID, " cankaya_baskan ", "0 500 000 00 00")
	require.NoError(t, err)
	assert.Equal(t, "cankaya_baskan", c.Username)
	assert.Equal(t, "05000000000", c.Password)
	assert.True(t, c.Pinned)

	// an unrelated source edit must not undo the manual credentials
	env.sources.PutDistrict(domain.DistrictChairSource{DistrictID: 1, DistrictName: "Çankaya", ChairmanName: "Mehmet Öztürk", ChairmanPhone: "0532 123 45 67"})
	outcome, err := env.reconciler.ReconcileOne(ctx, domain.SourceDistrictChair, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	c = env.record(t, domain.SourceDistrictChair, "1")
	assert.Equal(t, "cankaya_baskan", c.Username)
	assert.Equal(t, "05000000000", c.Password)
	assert.Equal(t, "Mehmet Öztürk", c.DisplayName)

	report, err := env.reconciler.ResyncAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Totals().Updated)

	session, err := env.auth.Login(ctx, LoginRequest{Username: "cankaya_baskan", Password: "05000000000"})
	require.NoError(t, err)
	assert.Equal(t, "Mehmet Öztürk", session.DisplayName)

	// unpinning follows the source again
	c, err = env.operator.SetPinned(ctx, c.ID, false)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.False(t, c.Pinned)
	assert.Equal(t, "cankaya", c.Username)
	assert.Equal(t, "05321234567", c.Password)
}

func TestCredentialService_PinnedRecordStillDeletedWhenDisqualified(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedRoster()
	_, err := env.reconciler.ResyncAll(ctx)
	require.NoError(t, err)

	town := env.record(t, domain.SourceTownChair, "1")
	_, err = env.operator.SetCredentials(ctx, town.ID, "ilgaz", "1234")
	require.NoError(t, err)

	env.sources.RemoveTown(1)
	outcome, err := env.reconciler.ReconcileOne(ctx, domain.SourceTownChair, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, outcome)
}

func TestCredentialService_SetCredentialsValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedRoster()
	_, err := env.reconciler.ResyncAll(ctx)
	require.NoError(t, err)

	member := env.record(t, domain.SourceMember, "1")

	_, err = env.operator.SetCredentials(ctx, member.ID, "", "123")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.operator.SetCredentials(ctx, member.ID, "x", "abc")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.operator.SetCredentials(ctx, member.ID, "admin", "123")
	assert.ErrorIs(t, err, ErrUsernameCollision)
	_, err = env.operator.SetCredentials(ctx, member.ID, "cankaya", "123")
	assert.ErrorIs(t, err, ErrUsernameCollision)
	_, err = env.operator.SetCredentials(ctx, "missing", "x", "1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCredentialService_UnpinDeletesDisqualified(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.sources.PutMember(domain.MemberSource{MemberID: 9, NationalID: "99999999999", Phone: "0599"})
	_, err := env.reconciler.ReconcileOne(ctx, domain.SourceMember, 9)
	require.NoError(t, err)
	c := env.record(t, domain.SourceMember, "9")
	_, err = env.operator.SetPinned(ctx, c.ID, true)
	require.NoError(t, err)

	env.sources.RemoveMember(9)
	got, err := env.operator.SetPinned(ctx, c.ID, false)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCredentialService_UnpinReconcileFailureIsWarning(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.sources.PutMember(domain.MemberSource{MemberID: 9, NationalID: "99999999999", Phone: "0599"})
	_, err := env.reconciler.ReconcileOne(ctx, domain.SourceMember, 9)
	require.NoError(t, err)
	c := env.record(t, domain.SourceMember, "9")
	_, err = env.operator.SetPinned(ctx, c.ID, true)
	require.NoError(t, err)

	env.sources.Err = errors.New("members table locked")
	got, err := env.operator.SetPinned(ctx, c.ID, false)
	var warn *ReconcileWarning
	require.ErrorAs(t, err, &warn)
	require.NotNil(t, got)
	assert.False(t, got.Pinned, "the unpin is saved")
}

func TestCredentialService_ExportRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		env.sources.PutMember(domain.MemberSource{MemberID: i, NationalID: domain.FormatRef(i * 1000), Phone: "0500", FirstName: "Üye", LastName: domain.FormatRef(i)})
	}
	_, err := env.reconciler.ResyncAll(ctx)
	require.NoError(t, err)

	rows, err := env.operator.ExportRows(ctx, repository.CredentialFilters{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Contains(t, r.DisplayName, "Üye")
	}
}

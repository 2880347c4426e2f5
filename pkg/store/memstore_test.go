package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redhat-data-and-ai/usernaut-sync/pkg/store/models"
)

func TestMemStore_FindUserByEmailCI_IsCaseInsensitive(t *testing.T) {
	ms := NewMemStore()
	team := ms.SeedTeam(models.Team{Name: "t"})
	ms.SeedUser(models.User{TeamID: team.ID, Email: "User@Example.com"})

	ctx := context.Background()
	u, err := ms.FindUserByEmailCI(ctx, team.ID, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "User@Example.com", u.Email)
}

func TestMemStore_FindUserByEmailCI_ScopedToTeam(t *testing.T) {
	ms := NewMemStore()
	teamA := ms.SeedTeam(models.Team{Name: "a"})
	teamB := ms.SeedTeam(models.Team{Name: "b"})
	ms.SeedUser(models.User{TeamID: teamA.ID, Email: "shared@x"})

	ctx := context.Background()
	_, err := ms.FindUserByEmailCI(ctx, teamB.ID, "shared@x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_CreateAuthentication_RejectsDuplicate(t *testing.T) {
	ms := NewMemStore()
	team := ms.SeedTeam(models.Team{Name: "t"})
	provider := ms.SeedAuthProvider(models.AuthenticationProvider{TeamID: team.ID, ProviderName: "oidc", Enabled: true})
	u := ms.SeedUser(models.User{TeamID: team.ID, Email: "a@x"})

	ctx := context.Background()
	_, err := ms.CreateAuthentication(ctx, NewAuthentication{UserID: u.ID, AuthenticationProviderID: provider.ID, ProviderID: "g1"})
	require.NoError(t, err)

	_, err = ms.CreateAuthentication(ctx, NewAuthentication{UserID: u.ID, AuthenticationProviderID: provider.ID, ProviderID: "g1"})
	assert.ErrorIs(t, err, ErrDuplicateAuthentication)
}

func TestMemStore_SuspendAndClearSuspension(t *testing.T) {
	ms := NewMemStore()
	team := ms.SeedTeam(models.Team{Name: "t"})
	u := ms.SeedUser(models.User{TeamID: team.ID, Email: "a@x"})

	ctx := context.Background()
	require.NoError(t, ms.SuspendUser(ctx, u.ID, nil))
	got, _ := ms.GetUser(u.ID)
	assert.True(t, got.IsSuspended())

	require.NoError(t, ms.ClearSuspension(ctx, u.ID))
	got, _ = ms.GetUser(u.ID)
	assert.False(t, got.IsSuspended())
}

func TestMemStore_ListEnabledAuthProviders_FiltersByNameAndEnabled(t *testing.T) {
	ms := NewMemStore()
	team := ms.SeedTeam(models.Team{Name: "t"})
	enabled := ms.SeedAuthProvider(models.AuthenticationProvider{TeamID: team.ID, ProviderName: "oidc", Enabled: true})
	ms.SeedAuthProvider(models.AuthenticationProvider{TeamID: team.ID, ProviderName: "oidc", Enabled: false})
	ms.SeedAuthProvider(models.AuthenticationProvider{TeamID: team.ID, ProviderName: "ldap", Enabled: true})

	ctx := context.Background()
	got, err := ms.ListEnabledAuthProviders(ctx, "oidc")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, enabled.ID, got[0].ID)
}

func TestMemStore_InterfaceCompliance(t *testing.T) {
	var _ DirectoryStore = NewMemStore()
}

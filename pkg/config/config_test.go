package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearSyncEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"OIDC_SYNC_ENABLED", "OIDC_SYNC_ADMIN_URL", "OIDC_SYNC_REALM",
		"OIDC_SYNC_CLIENT_ID", "OIDC_SYNC_CLIENT_SECRET",
		"USERNAUT_SYNC_REPLICA_COUNT", "USERNAUT_SYNC_REPLICA_INDEX",
	}
	for _, v := range vars {
		orig, had := os.LookupEnv(v)
		os.Unsetenv(v)
		t.Cleanup(func() {
			if had {
				os.Setenv(v, orig)
			}
		})
	}
}

func TestLoad_DisabledByDefault(t *testing.T) {
	clearSyncEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.SyncEnabled)
	assert.Equal(t, []string{"keycloak", "idp"}, cfg.AvatarOriginHints)
}

func TestLoad_RequiresAdminURLWhenEnabled(t *testing.T) {
	clearSyncEnv(t)
	os.Setenv("OIDC_SYNC_ENABLED", "true")
	os.Setenv("OIDC_SYNC_REALM", "test")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_URL")
}

func TestLoad_RejectsOutOfRangeReplicaIndex(t *testing.T) {
	clearSyncEnv(t)
	os.Setenv("OIDC_SYNC_ENABLED", "true")
	os.Setenv("OIDC_SYNC_ADMIN_URL", "https://idp.example.com")
	os.Setenv("OIDC_SYNC_REALM", "test")
	os.Setenv("USERNAUT_SYNC_REPLICA_COUNT", "2")
	os.Setenv("USERNAUT_SYNC_REPLICA_INDEX", "5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replica index")
}

func TestLoad_TrimsTrailingSlashFromAdminURL(t *testing.T) {
	clearSyncEnv(t)
	os.Setenv("OIDC_SYNC_ENABLED", "true")
	os.Setenv("OIDC_SYNC_ADMIN_URL", "https://idp.example.com/")
	os.Setenv("OIDC_SYNC_REALM", "test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example.com", cfg.AdminURL)
}

// Package config loads the environment-driven configuration for the
// directory sync, following the teacher's viper-based configuration style.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds every environment-sourced setting the sync job needs.
type AppConfig struct {
	// SyncEnabled is the master switch; when false the process exits without
	// starting the driver.
	SyncEnabled bool

	// AdminURL is the IdP's base URL, no trailing slash.
	AdminURL string
	// Realm is the IdP realm name.
	Realm string
	// ClientID / ClientSecret authenticate the service account used for the
	// client-credentials grant. Both are read only from OIDC_SYNC_CLIENT_ID /
	// OIDC_SYNC_CLIENT_SECRET; when unset they stay empty, and no fallback to
	// other credentials is applied.
	ClientID     string
	ClientSecret string

	// DBDSN is the Postgres DSN backing the Directory Store.
	DBDSN string

	// RedisAddr, when non-empty, enables the scheduler's best-effort
	// per-binding lease. Leave empty to disable.
	RedisAddr     string
	RedisPassword string

	// LogLevel is a logrus level name (e.g. "info", "debug").
	LogLevel string

	// ReplicaCount / ReplicaIndex define this process's partition window.
	ReplicaCount int
	ReplicaIndex int

	// TickInterval overrides the Scheduled Driver's cron interval; defaults
	// to 1 hour per spec.
	TickInterval time.Duration

	// AvatarOriginHints is the configurable substring list used to decide
	// whether an existing avatar URL was IdP-sourced and therefore safe to
	// overwrite (see spec.md's avatar heuristic Open Question).
	AvatarOriginHints []string
}

// Load reads configuration from the environment (OIDC_SYNC_* / USERNAUT_SYNC_*
// variables) via viper, applying defaults for anything unset.
func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("oidc_sync_enabled", false)
	v.SetDefault("usernaut_sync_log_level", "info")
	v.SetDefault("usernaut_sync_replica_count", 1)
	v.SetDefault("usernaut_sync_replica_index", 0)
	v.SetDefault("usernaut_sync_tick_interval", time.Hour)
	v.SetDefault("usernaut_sync_avatar_origin_hints", []string{"keycloak", "idp"})

	cfg := &AppConfig{
		SyncEnabled:       v.GetBool("oidc_sync_enabled"),
		AdminURL:          strings.TrimRight(v.GetString("oidc_sync_admin_url"), "/"),
		Realm:             v.GetString("oidc_sync_realm"),
		ClientID:          v.GetString("oidc_sync_client_id"),
		ClientSecret:      v.GetString("oidc_sync_client_secret"),
		DBDSN:             v.GetString("usernaut_sync_db_dsn"),
		RedisAddr:         v.GetString("usernaut_sync_redis_addr"),
		RedisPassword:     v.GetString("usernaut_sync_redis_password"),
		LogLevel:          v.GetString("usernaut_sync_log_level"),
		ReplicaCount:      v.GetInt("usernaut_sync_replica_count"),
		ReplicaIndex:      v.GetInt("usernaut_sync_replica_index"),
		TickInterval:      v.GetDuration("usernaut_sync_tick_interval"),
		AvatarOriginHints: v.GetStringSlice("usernaut_sync_avatar_origin_hints"),
	}

	if cfg.SyncEnabled {
		if cfg.AdminURL == "" {
			return nil, fmt.Errorf("OIDC_SYNC_ADMIN_URL is required when sync is enabled")
		}
		if cfg.Realm == "" {
			return nil, fmt.Errorf("OIDC_SYNC_REALM is required when sync is enabled")
		}
		if cfg.ReplicaCount < 1 {
			return nil, fmt.Errorf("replica count must be at least 1, got %d", cfg.ReplicaCount)
		}
		if cfg.ReplicaIndex < 0 || cfg.ReplicaIndex >= cfg.ReplicaCount {
			return nil, fmt.Errorf("replica index %d out of range [0,%d)", cfg.ReplicaIndex, cfg.ReplicaCount)
		}
	}

	return cfg, nil
}

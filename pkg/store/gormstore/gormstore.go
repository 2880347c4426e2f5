// Package gormstore is the Postgres-backed implementation of
// store.DirectoryStore, adapted from the teacher's thin-wrapper-over-a-
// driver-with-a-Config-struct shape (pkg/cache/redis/cache.go in the source
// repository) to gorm.io/gorm instead of go-redis.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/redhat-data-and-ai/usernaut-sync/pkg/store"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/store/models"
)

// Config holds all required info for initializing the Postgres connection.
type Config struct {
	DSN             string
	ConnMaxLifetime time.Duration
}

// Store is a gorm-backed store.DirectoryStore.
type Store struct {
	db *gorm.DB
}

// New opens the Postgres connection, runs AutoMigrate for the entities in
// models.AllModels, and pings the database before returning.
func New(cfg *Config) (*Store, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, fmt.Errorf("gormstore: DSN is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: failed to open connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gormstore: failed to get underlying sql.DB: %w", err)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("gormstore: ping failed: %w", err)
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return nil, fmt.Errorf("gormstore: automigrate failed: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) FindTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	var t models.Team
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (s *Store) FindAuthProvider(ctx context.Context, id uuid.UUID) (*models.AuthenticationProvider, error) {
	var a models.AuthenticationProvider
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *Store) ListEnabledAuthProviders(ctx context.Context, providerName string) ([]models.AuthenticationProvider, error) {
	var out []models.AuthenticationProvider
	err := s.db.WithContext(ctx).
		Where("provider_name = ? AND enabled = ?", providerName, true).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: list enabled auth providers: %w", err)
	}
	return out, nil
}

func (s *Store) FindGroupByIDInTeam(ctx context.Context, teamID, groupID uuid.UUID) (*models.Group, error) {
	var g models.Group
	err := s.db.WithContext(ctx).
		Where("team_id = ? AND id = ?", teamID, groupID).
		First(&g).Error
	if err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

func (s *Store) FindGroupByNameInTeam(ctx context.Context, teamID uuid.UUID, name string) (*models.Group, error) {
	var g models.Group
	err := s.db.WithContext(ctx).
		Where("team_id = ? AND name = ?", teamID, name).
		First(&g).Error
	if err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

func (s *Store) FindUserByEmailCI(ctx context.Context, teamID uuid.UUID, email string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).
		Where("team_id = ? AND lower(email) = lower(?)", teamID, email).
		First(&u).Error
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) FindAuthenticationsByProvider(
	ctx context.Context, authProviderID, scopedToTeam uuid.UUID,
) ([]store.AuthenticationWithUser, error) {
	type row struct {
		models.UserAuthentication
		User models.User `gorm:"embedded;embeddedPrefix:user__"`
	}

	var auths []models.UserAuthentication
	if err := s.db.WithContext(ctx).
		Where("authentication_provider_id = ?", authProviderID).
		Find(&auths).Error; err != nil {
		return nil, fmt.Errorf("gormstore: list authentications: %w", err)
	}

	out := make([]store.AuthenticationWithUser, 0, len(auths))
	for _, ua := range auths {
		var u models.User
		err := s.db.WithContext(ctx).
			Where("id = ? AND team_id = ?", ua.UserID, scopedToTeam).
			First(&u).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("gormstore: join user for authentication %s: %w", ua.ID, err)
		}
		out = append(out, store.AuthenticationWithUser{Authentication: ua, User: u})
	}
	return out, nil
}

func (s *Store) UpdateUser(ctx context.Context, userID uuid.UUID, attrs store.UserAttrs) error {
	updates := map[string]interface{}{}
	if attrs.DisplayName != nil {
		updates["display_name"] = *attrs.DisplayName
	}
	if attrs.Email != nil {
		updates["email"] = *attrs.Email
	}
	if attrs.AvatarURL != nil {
		updates["avatar_url"] = *attrs.AvatarURL
	}
	if len(updates) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("gormstore: update user %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SuspendUser(ctx context.Context, userID uuid.UUID, suspendedByID *uuid.UUID) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"suspended_at":    &now,
		"suspended_by_id": suspendedByID,
	})
	if res.Error != nil {
		return fmt.Errorf("gormstore: suspend user %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ClearSuspension(ctx context.Context, userID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"suspended_at":    nil,
		"suspended_by_id": nil,
	})
	if res.Error != nil {
		return fmt.Errorf("gormstore: clear suspension for user %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, in store.NewUser) (*models.User, error) {
	u := &models.User{
		TeamID:      in.TeamID,
		Email:       in.Email,
		DisplayName: in.DisplayName,
		AvatarURL:   in.AvatarURL,
		Role:        in.Role,
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, fmt.Errorf("gormstore: create user: %w", err)
	}
	return u, nil
}

func (s *Store) CreateAuthentication(
	ctx context.Context, in store.NewAuthentication,
) (*models.UserAuthentication, error) {
	ua := &models.UserAuthentication{
		UserID:                   in.UserID,
		AuthenticationProviderID: in.AuthenticationProviderID,
		ProviderID:               in.ProviderID,
		Scopes:                   in.Scopes,
	}
	if err := s.db.WithContext(ctx).Create(ua).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateAuthentication
		}
		return nil, fmt.Errorf("gormstore: create authentication: %w", err)
	}
	return ua, nil
}

func (s *Store) CreateGroupMembership(
	ctx context.Context, groupID, userID uuid.UUID, permission models.GroupPermission,
) error {
	gu := &models.GroupUser{GroupID: groupID, UserID: userID, Permission: permission}
	if err := s.db.WithContext(ctx).Create(gu).Error; err != nil {
		return fmt.Errorf("gormstore: create group membership: %w", err)
	}
	return nil
}

// WithTransaction runs fn inside gorm's Transaction helper, which already
// guarantees commit-on-success and rollback on error or panic for every
// exit path — the scoped-transaction primitive spec.md §4.E requires.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx store.DirectoryStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &Store{db: tx})
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return fmt.Errorf("gormstore: %w", err)
}

func isUniqueViolation(err error) bool {
	// Postgres unique_violation SQLSTATE is 23505; pgx/gorm surface it in the
	// error string when the dedicated pgconn.PgError type isn't unwrapped.
	return strings.Contains(err.Error(), "23505") || strings.Contains(err.Error(), "duplicate key")
}

var _ store.DirectoryStore = (*Store)(nil)

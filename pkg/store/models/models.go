// Package models holds the GORM-backed entities of the directory data model
// described in spec.md §3: Team, AuthenticationProvider, User,
// UserAuthentication, Group and GroupUser.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GroupPermission mirrors the permission level a user holds within a Group.
type GroupPermission string

// GroupPermissionMember is the only permission level the engine ever assigns on create
// (see spec.md §4.C Phase 2 miss branch).
const GroupPermissionMember GroupPermission = "member"

// Team is the tenant boundary every User, AuthenticationProvider and Group
// is scoped to.
type Team struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name            string    `gorm:"not null"`
	DefaultUserRole string    `gorm:"column:default_user_role"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (t *Team) GetID() uuid.UUID { return t.ID }

// BeforeCreate assigns a random ID when the caller did not set one.
func (t *Team) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// AuthenticationProvider is a (Team, provider-name) binding, e.g. a single
// team's OIDC configuration.
type AuthenticationProvider struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	TeamID           uuid.UUID `gorm:"type:uuid;not null;index"`
	ProviderName     string    `gorm:"column:provider_name;not null"`
	Enabled          bool      `gorm:"not null;default:true"`
	SyncDefaultGroupID   *uuid.UUID `gorm:"column:sync_default_group_id;type:uuid"`
	SyncDefaultGroupName string     `gorm:"column:sync_default_group_name"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (a *AuthenticationProvider) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// User is a local directory entry scoped to a Team.
type User struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	TeamID        uuid.UUID `gorm:"type:uuid;not null;index:idx_users_team_email,unique"`
	Email         string    `gorm:"not null;index:idx_users_team_email,unique"`
	DisplayName   string    `gorm:"column:display_name"`
	AvatarURL     string    `gorm:"column:avatar_url"`
	Role          string    `gorm:"not null"`
	SuspendedAt   *time.Time
	SuspendedByID *uuid.UUID `gorm:"column:suspended_by_id;type:uuid"`
	LastActiveAt  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// IsSuspended reports whether the user is currently suspended.
func (u *User) IsSuspended() bool { return u.SuspendedAt != nil }

// UserAuthentication links a User to an AuthenticationProvider by the IdP's
// external subject ID.
type UserAuthentication struct {
	ID                       uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID                   uuid.UUID `gorm:"type:uuid;not null;index:idx_userauth_provider_user,unique"`
	AuthenticationProviderID uuid.UUID `gorm:"column:authentication_provider_id;type:uuid;not null;index:idx_userauth_provider_provider_id,unique;index:idx_userauth_provider_user,unique"`
	ProviderID               string    `gorm:"column:provider_id;not null;index:idx_userauth_provider_provider_id,unique"`
	Scopes                   string    `gorm:"column:scopes"`
	CreatedAt                time.Time
}

func (ua *UserAuthentication) BeforeCreate(tx *gorm.DB) error {
	if ua.ID == uuid.Nil {
		ua.ID = uuid.New()
	}
	return nil
}

// Group is an optional default group users can be added to on create.
type Group struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TeamID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time
}

func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// GroupUser is a membership row linking a User to a Group.
type GroupUser struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	GroupID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_groupuser_group_user,unique"`
	UserID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_groupuser_group_user,unique"`
	Permission GroupPermission `gorm:"not null"`
	CreatedAt  time.Time
}

func (gu *GroupUser) BeforeCreate(tx *gorm.DB) error {
	if gu.ID == uuid.Nil {
		gu.ID = uuid.New()
	}
	return nil
}

// AllModels lists every entity for AutoMigrate callers.
func AllModels() []interface{} {
	return []interface{}{
		&Team{},
		&AuthenticationProvider{},
		&User{},
		&UserAuthentication{},
		&Group{},
		&GroupUser{},
	}
}

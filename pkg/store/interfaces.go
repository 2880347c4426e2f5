// Package store declares the Directory Store contract the reconciliation
// engine (pkg/reconcile) depends on. It mirrors the teacher's narrow
// sub-interfaces-composed-into-one-Store shape (pkg/store/interfaces.go,
// pkg/store/store.go in the source repository) but scoped to this spec's
// entity set instead of the teacher's cache-backed team/user/group maps.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/store/models"
)

// ErrNotFound is returned by lookup methods when no matching row exists.
var ErrNotFound = errors.New("not found")

// ErrDuplicateAuthentication is returned by CreateAuthentication when the
// (AuthenticationProvider, providerId) pair already has a row — the
// uniqueness invariant from spec.md §3.
var ErrDuplicateAuthentication = errors.New("authentication already exists for this provider and subject")

// AuthenticationWithUser is the join row Phase 1 of the engine iterates:
// every UserAuthentication for a provider, with its owning User attached.
type AuthenticationWithUser struct {
	Authentication models.UserAuthentication
	User           models.User
}

// UserAttrs is the subset of User fields the engine may overwrite during a
// reconciliation pass (name/email/avatar diff, see spec.md §4.C).
type UserAttrs struct {
	DisplayName *string
	Email       *string
	AvatarURL   *string
}

// NewUser carries the fields needed to create a local User from a SyncUser
// that had no existing match (spec.md §4.C Phase 2 "miss" branch).
type NewUser struct {
	TeamID      uuid.UUID
	Email       string
	DisplayName string
	AvatarURL   string
	Role        string
}

// NewAuthentication carries the fields needed to link a provider subject to
// a local User.
type NewAuthentication struct {
	UserID                   uuid.UUID
	AuthenticationProviderID uuid.UUID
	ProviderID               string
	Scopes                   string
}

// DirectoryStore is the full contract the Engine requires of the Directory
// Store (spec.md §4.E).
type DirectoryStore interface {
	FindTeam(ctx context.Context, id uuid.UUID) (*models.Team, error)
	FindAuthProvider(ctx context.Context, id uuid.UUID) (*models.AuthenticationProvider, error)

	// ListEnabledAuthProviders returns every AuthenticationProvider row with
	// the given provider name and enabled = true, across all teams. The
	// Scheduled Driver partitions this set across replicas (spec.md §4.D).
	ListEnabledAuthProviders(ctx context.Context, providerName string) ([]models.AuthenticationProvider, error)

	FindGroupByIDInTeam(ctx context.Context, teamID, groupID uuid.UUID) (*models.Group, error)
	FindGroupByNameInTeam(ctx context.Context, teamID uuid.UUID, name string) (*models.Group, error)

	// FindUserByEmailCI performs a case-insensitive email lookup scoped to
	// the team.
	FindUserByEmailCI(ctx context.Context, teamID uuid.UUID, email string) (*models.User, error)

	// FindAuthenticationsByProvider returns every UserAuthentication for the
	// given AuthenticationProvider, joined with its User, constrained to
	// users belonging to scopedToTeam.
	FindAuthenticationsByProvider(
		ctx context.Context, authProviderID, scopedToTeam uuid.UUID,
	) ([]AuthenticationWithUser, error)

	UpdateUser(ctx context.Context, userID uuid.UUID, attrs UserAttrs) error
	SuspendUser(ctx context.Context, userID uuid.UUID, suspendedByID *uuid.UUID) error
	ClearSuspension(ctx context.Context, userID uuid.UUID) error
	CreateUser(ctx context.Context, in NewUser) (*models.User, error)
	CreateAuthentication(ctx context.Context, in NewAuthentication) (*models.UserAuthentication, error)
	CreateGroupMembership(ctx context.Context, groupID, userID uuid.UUID, permission models.GroupPermission) error

	// WithTransaction runs fn within a scoped transaction, guaranteeing
	// commit-or-rollback on every exit path (panic, error, or success). The
	// DirectoryStore passed to fn must be used for every store call made
	// inside fn so those calls participate in the same transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx DirectoryStore) error) error
}

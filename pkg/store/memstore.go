package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/store/models"
)

// MemStore is a map-backed DirectoryStore used by pkg/reconcile's unit
// tests. It has no network dependency, matching the teacher's own
// preference for a fast in-memory double alongside the Redis-backed
// production store (pkg/store/store.go in the source repository).
type MemStore struct {
	mu sync.Mutex

	teams  map[uuid.UUID]models.Team
	auths  map[uuid.UUID]models.AuthenticationProvider
	users  map[uuid.UUID]models.User
	ua     map[uuid.UUID]models.UserAuthentication
	groups map[uuid.UUID]models.Group
	gu     []models.GroupUser
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		teams:  make(map[uuid.UUID]models.Team),
		auths:  make(map[uuid.UUID]models.AuthenticationProvider),
		users:  make(map[uuid.UUID]models.User),
		ua:     make(map[uuid.UUID]models.UserAuthentication),
		groups: make(map[uuid.UUID]models.Group),
	}
}

// SeedTeam inserts a Team for test setup.
func (m *MemStore) SeedTeam(t models.Team) models.Team {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	m.teams[t.ID] = t
	return t
}

// SeedAuthProvider inserts an AuthenticationProvider for test setup.
func (m *MemStore) SeedAuthProvider(a models.AuthenticationProvider) models.AuthenticationProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.auths[a.ID] = a
	return a
}

// SeedGroup inserts a Group for test setup.
func (m *MemStore) SeedGroup(g models.Group) models.Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	m.groups[g.ID] = g
	return g
}

// SeedUser inserts a User for test setup.
func (m *MemStore) SeedUser(u models.User) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	m.users[u.ID] = u
	return u
}

// SeedAuthentication inserts a UserAuthentication for test setup.
func (m *MemStore) SeedAuthentication(ua models.UserAuthentication) models.UserAuthentication {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ua.ID == uuid.Nil {
		ua.ID = uuid.New()
	}
	m.ua[ua.ID] = ua
	return ua
}

// GetUser returns the current state of a user, for assertions in tests.
func (m *MemStore) GetUser(id uuid.UUID) (models.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok
}

// GroupMembers returns every GroupUser row for assertions in tests.
func (m *MemStore) GroupMembers() []models.GroupUser {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.GroupUser, len(m.gu))
	copy(out, m.gu)
	return out
}

func (m *MemStore) FindTeam(_ context.Context, id uuid.UUID) (*models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemStore) FindAuthProvider(_ context.Context, id uuid.UUID) (*models.AuthenticationProvider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auths[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *MemStore) ListEnabledAuthProviders(_ context.Context, providerName string) ([]models.AuthenticationProvider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuthenticationProvider
	for _, a := range m.auths {
		if a.ProviderName == providerName && a.Enabled {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemStore) FindGroupByIDInTeam(_ context.Context, teamID, groupID uuid.UUID) (*models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok || g.TeamID != teamID {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (m *MemStore) FindGroupByNameInTeam(_ context.Context, teamID uuid.UUID, name string) (*models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if g.TeamID == teamID && g.Name == name {
			gg := g
			return &gg, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) FindUserByEmailCI(_ context.Context, teamID uuid.UUID, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TeamID == teamID && strings.EqualFold(u.Email, email) {
			uu := u
			return &uu, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) FindAuthenticationsByProvider(
	_ context.Context, authProviderID, scopedToTeam uuid.UUID,
) ([]AuthenticationWithUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []AuthenticationWithUser
	for _, ua := range m.ua {
		if ua.AuthenticationProviderID != authProviderID {
			continue
		}
		u, ok := m.users[ua.UserID]
		if !ok || u.TeamID != scopedToTeam {
			continue
		}
		out = append(out, AuthenticationWithUser{Authentication: ua, User: u})
	}
	return out, nil
}

func (m *MemStore) UpdateUser(_ context.Context, userID uuid.UUID, attrs UserAttrs) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if attrs.DisplayName != nil {
		u.DisplayName = *attrs.DisplayName
	}
	if attrs.Email != nil {
		u.Email = *attrs.Email
	}
	if attrs.AvatarURL != nil {
		u.AvatarURL = *attrs.AvatarURL
	}
	m.users[userID] = u
	return nil
}

func (m *MemStore) SuspendUser(_ context.Context, userID uuid.UUID, suspendedByID *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	u.SuspendedAt = &now
	u.SuspendedByID = suspendedByID
	m.users[userID] = u
	return nil
}

func (m *MemStore) ClearSuspension(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.SuspendedAt = nil
	u.SuspendedByID = nil
	m.users[userID] = u
	return nil
}

func (m *MemStore) CreateUser(_ context.Context, in NewUser) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := models.User{
		ID:          uuid.New(),
		TeamID:      in.TeamID,
		Email:       in.Email,
		DisplayName: in.DisplayName,
		AvatarURL:   in.AvatarURL,
		Role:        in.Role,
	}
	m.users[u.ID] = u
	return &u, nil
}

func (m *MemStore) CreateAuthentication(_ context.Context, in NewAuthentication) (*models.UserAuthentication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.ua {
		if existing.AuthenticationProviderID == in.AuthenticationProviderID && existing.ProviderID == in.ProviderID {
			return nil, ErrDuplicateAuthentication
		}
	}
	ua := models.UserAuthentication{
		ID:                       uuid.New(),
		UserID:                   in.UserID,
		AuthenticationProviderID: in.AuthenticationProviderID,
		ProviderID:               in.ProviderID,
		Scopes:                   in.Scopes,
	}
	m.ua[ua.ID] = ua
	return &ua, nil
}

func (m *MemStore) CreateGroupMembership(
	_ context.Context, groupID, userID uuid.UUID, permission models.GroupPermission,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gu = append(m.gu, models.GroupUser{
		ID:         uuid.New(),
		GroupID:    groupID,
		UserID:     userID,
		Permission: permission,
	})
	return nil
}

// WithTransaction runs fn against the same store; MemStore has no real
// transaction boundary, so there is nothing to roll back beyond what the
// caller's own fault-isolation already does at the per-user level.
func (m *MemStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx DirectoryStore) error) error {
	return fn(ctx, m)
}

var _ DirectoryStore = (*MemStore)(nil)

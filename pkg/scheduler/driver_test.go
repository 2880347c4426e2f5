package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/redhat-data-and-ai/usernaut-sync/pkg/idp"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/store"
	"github.com/redhat-data-and-ai/usernaut-sync/pkg/store/models"
)

type DriverTestSuite struct {
	suite.Suite
	ctx context.Context
	ms  *store.MemStore
	srv *httptest.Server
}

func TestDriver(t *testing.T) {
	suite.Run(t, new(DriverTestSuite))
}

func (s *DriverTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.ms = store.NewMemStore()
}

func (s *DriverTestSuite) TearDownTest() {
	if s.srv != nil {
		s.srv.Close()
	}
}

func (s *DriverTestSuite) startIdPServer(users []idp.RawUser) {
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/realms/test/protocol/openid-connect/token":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 300})
		case "/admin/realms/test/users/count":
			w.Write([]byte("1"))
		case "/admin/realms/test/users":
			if r.URL.Query().Get("first") == "0" {
				_ = json.NewEncoder(w).Encode(users)
			} else {
				_ = json.NewEncoder(w).Encode([]idp.RawUser{})
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func (s *DriverTestSuite) newDriver() *Driver {
	return New(Config{
		Store: s.ms,
		NewIdPClient: func() *idp.Client {
			return idp.New(idp.Config{AdminURL: s.srv.URL, Realm: "test", ClientID: "c", ClientSecret: "s"})
		},
		ReplicaCount: 1,
		ReplicaIndex: 0,
	})
}

func (s *DriverTestSuite) TestTick_ReconcilesOwnedBindings() {
	team := s.ms.SeedTeam(models.Team{Name: "team-a", DefaultUserRole: "Member"})
	provider := s.ms.SeedAuthProvider(models.AuthenticationProvider{TeamID: team.ID, ProviderName: "oidc", Enabled: true})

	s.startIdPServer([]idp.RawUser{{ID: "g1", Email: "a@x", Username: "a"}})
	d := s.newDriver()

	d.Tick(s.ctx)

	u, err := s.ms.FindUserByEmailCI(s.ctx, team.ID, "a@x")
	require.NoError(s.T(), err)
	require.NotNil(s.T(), u)
	_ = provider
}

func (s *DriverTestSuite) TestTick_SkipsDisabledProviders() {
	team := s.ms.SeedTeam(models.Team{Name: "team-a", DefaultUserRole: "Member"})
	s.ms.SeedAuthProvider(models.AuthenticationProvider{TeamID: team.ID, ProviderName: "oidc", Enabled: false})

	s.startIdPServer([]idp.RawUser{{ID: "g1", Email: "a@x"}})
	d := s.newDriver()

	d.Tick(s.ctx)

	_, err := s.ms.FindUserByEmailCI(s.ctx, team.ID, "a@x")
	require.ErrorIs(s.T(), err, store.ErrNotFound)
}

func (s *DriverTestSuite) TestTick_NoBindingsIsANoop() {
	s.startIdPServer(nil)
	d := s.newDriver()
	d.Tick(s.ctx)
}

func (s *DriverTestSuite) TestOwns_PartitionsDeterministically() {
	d := New(Config{Store: s.ms, ReplicaCount: 4, ReplicaIndex: 0, NewIdPClient: func() *idp.Client { return nil }})
	d2 := New(Config{Store: s.ms, ReplicaCount: 4, ReplicaIndex: 0, NewIdPClient: func() *idp.Client { return nil }})

	team := s.ms.SeedTeam(models.Team{Name: "t"})
	provider := s.ms.SeedAuthProvider(models.AuthenticationProvider{TeamID: team.ID, ProviderName: "oidc", Enabled: true})

	require.Equal(s.T(), d.owns(provider.ID), d2.owns(provider.ID))
}

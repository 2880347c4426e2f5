package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ClientTestSuite struct {
	suite.Suite
	ctx context.Context
}

func TestClient(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *ClientTestSuite) newServerClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := New(Config{
		AdminURL:     srv.URL,
		Realm:        "test",
		ClientID:     "svc",
		ClientSecret: "secret",
	})
	return c, srv
}

func (s *ClientTestSuite) TestTestConnection_Success() {
	var tokenCalls int32
	c, srv := s.newServerClient(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/realms/test/protocol/openid-connect/token":
			atomic.AddInt32(&tokenCalls, 1)
			_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-1", ExpiresIn: 300})
		case r.URL.Path == "/admin/realms/test/users/count":
			w.Write([]byte("3"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	defer srv.Close()

	ok := c.TestConnection(s.ctx)
	assert.True(s.T(), ok)
	assert.Equal(s.T(), int32(1), atomic.LoadInt32(&tokenCalls))
}

func (s *ClientTestSuite) TestTestConnection_FalseOnFailure() {
	c, srv := s.newServerClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	assert.False(s.T(), c.TestConnection(s.ctx))
}

func (s *ClientTestSuite) TestToken_CachedAcrossCalls() {
	var tokenCalls int32
	c, srv := s.newServerClient(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/realms/test/protocol/openid-connect/token":
			atomic.AddInt32(&tokenCalls, 1)
			_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-1", ExpiresIn: 300})
		case "/admin/realms/test/users/count":
			w.Write([]byte("0"))
		}
	})
	defer srv.Close()

	c.TestConnection(s.ctx)
	c.TestConnection(s.ctx)

	assert.Equal(s.T(), int32(1), atomic.LoadInt32(&tokenCalls))
}

func (s *ClientTestSuite) TestFetchEnabledUsers_PaginatesUntilShortPage() {
	c, srv := s.newServerClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/realms/test/protocol/openid-connect/token" {
			_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-1", ExpiresIn: 300})
			return
		}
		first, _ := strconv.Atoi(r.URL.Query().Get("first"))
		var page []RawUser
		switch first {
		case 0:
			page = []RawUser{{ID: "1", Email: "a@x"}, {ID: "2", Email: "b@x"}}
		case 2:
			page = []RawUser{{ID: "3", Email: "c@x"}}
		}
		_ = json.NewEncoder(w).Encode(page)
	})
	defer srv.Close()

	users, err := c.FetchEnabledUsers(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(users, 3)
}

func (s *ClientTestSuite) TestFetchEnabledUsers_ReauthOnceOn401() {
	var tokenCalls, usersCalls int32
	c, srv := s.newServerClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/realms/test/protocol/openid-connect/token" {
			n := atomic.AddInt32(&tokenCalls, 1)
			_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: fmt.Sprintf("tok-%d", n), ExpiresIn: 300})
			return
		}
		n := atomic.AddInt32(&usersCalls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode([]RawUser{{ID: "1", Email: "a@x"}})
	})
	defer srv.Close()

	users, err := c.FetchEnabledUsers(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(users, 1)
	assert.Equal(s.T(), int32(2), atomic.LoadInt32(&tokenCalls))
}

func (s *ClientTestSuite) TestFetchEnabledUsers_AuthErrorAfterRetryExhausted() {
	c, srv := s.newServerClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/realms/test/protocol/openid-connect/token" {
			_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", ExpiresIn: 300})
			return
		}
		w.WriteHeader(http.StatusForbidden)
	})
	defer srv.Close()

	_, err := c.FetchEnabledUsers(s.ctx, 10)
	require.Error(s.T(), err)
	var authErr *AuthError
	assert.ErrorAs(s.T(), err, &authErr)
}

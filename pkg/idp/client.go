// Package idp implements the IdP Admin Client (component A) and the
// Snapshot Normalizer (component B) against a Keycloak-shaped admin REST
// API, following the teacher's outbound-REST-client shape: a Config struct,
// a constructor, and typed errors surfaced instead of bare fmt.Errorf.
package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/patrickmn/go-cache"

	"github.com/redhat-data-and-ai/usernaut-sync/pkg/logger"
)

const (
	// maxUsers is the hard stop on fetchEnabledUsers pagination (spec.md §4.A).
	maxUsers = 100_000

	// tokenExpirySafetyMargin is subtracted from the IdP's reported
	// expires_in before caching, so a call never races an about-to-expire
	// token (spec.md §4.A).
	tokenExpirySafetyMargin = 60 * time.Second

	tokenCacheKey = "idp-admin-token"
)

// Config configures the Admin Client.
type Config struct {
	AdminURL     string
	Realm        string
	ClientID     string
	ClientSecret string

	// HTTPTimeout bounds a single HTTP round-trip; defaults to 10s.
	HTTPTimeout time.Duration
	// RetryCount is the number of heimdall retries per request; defaults to 2.
	RetryCount int
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Client is the IdP Admin Client. One instance's cached token is the only
// state shared across a reconciliation tick (spec.md §5 "Shared resources").
type Client struct {
	cfg    Config
	http   heimdall.Client
	tokens *cache.Cache

	mu sync.Mutex
}

// New builds a Client with a heimdall retrying HTTP client, matching the
// teacher's preference for a resilient outbound client over the bare
// net/http default transport.
func New(cfg Config) *Client {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.RetryCount == 0 {
		cfg.RetryCount = 2
	}

	backoff := heimdall.NewConstantBackoff(100*time.Millisecond, 50*time.Millisecond)
	retrier := heimdall.NewRetrier(backoff)

	hc := httpclient.NewClient(
		httpclient.WithHTTPTimeout(cfg.HTTPTimeout),
		httpclient.WithRetrier(retrier),
		httpclient.WithRetryCount(cfg.RetryCount),
	)

	return &Client{
		cfg:    cfg,
		http:   hc,
		tokens: cache.New(cache.NoExpiration, time.Minute),
	}
}

// token returns a cached bearer token, fetching and caching a fresh one if
// absent or expired.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tokens.Get(tokenCacheKey); ok {
		return t.(string), nil
	}

	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("grant_type", "client_credentials")

	endpoint := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.cfg.AdminURL, c.cfg.Realm)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", &RequestError{Err: fmt.Errorf("build token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &RequestError{Err: fmt.Errorf("token request: %w", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &RequestError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &RequestError{Err: fmt.Errorf("decode token response: %w", err)}
	}

	ttl := time.Duration(tr.ExpiresIn)*time.Second - tokenExpirySafetyMargin
	if ttl > 0 {
		c.tokens.Set(tokenCacheKey, tr.AccessToken, ttl)
	}

	return tr.AccessToken, nil
}

// invalidateToken purges the cached token so the next call re-authenticates,
// per spec.md §4.A's "re-authenticate once" rule on 401/403.
func (c *Client) invalidateToken() {
	c.tokens.Delete(tokenCacheKey)
}

// adminGet performs an authenticated GET against the admin API, retrying
// exactly once after purging the token if the first attempt returned
// 401/403.
func (c *Client) adminGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	body, authErr := c.doAdminGet(ctx, path, query)
	if authErr == nil {
		return body, nil
	}
	if _, ok := authErr.(*AuthError); !ok {
		return nil, authErr
	}

	c.invalidateToken()
	body, err := c.doAdminGet(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) doAdminGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/admin/realms/%s/%s", c.cfg.AdminURL, c.cfg.Realm, path)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &RequestError{Err: fmt.Errorf("build admin request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RequestError{Err: fmt.Errorf("admin request: %w", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// FetchEnabledUsers pages through GET /admin/realms/{realm}/users?enabled=true
// in batchSize-sized windows until a short page is returned, or maxUsers is
// reached as a runaway-loop guard (spec.md §4.A).
func (c *Client) FetchEnabledUsers(ctx context.Context, batchSize int) ([]RawUser, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	var all []RawUser
	for first := 0; first < maxUsers; first += batchSize {
		q := url.Values{}
		q.Set("first", strconv.Itoa(first))
		q.Set("max", strconv.Itoa(batchSize))
		q.Set("enabled", "true")

		body, err := c.adminGet(ctx, "users", q)
		if err != nil {
			return nil, err
		}

		var page []RawUser
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, &RequestError{Err: fmt.Errorf("decode users page: %w", err)}
		}

		all = append(all, page...)
		if len(page) < batchSize {
			break
		}
	}
	return all, nil
}

// TestConnection probes GET /admin/realms/{realm}/users/count. It never
// returns an error — any failure is reported as false, per spec.md §4.A.
func (c *Client) TestConnection(ctx context.Context) bool {
	q := url.Values{}
	q.Set("enabled", "true")

	_, err := c.adminGet(ctx, "users/count", q)
	if err != nil {
		logger.Logger(ctx).WithError(err).Warn("idp admin connection test failed")
		return false
	}
	return true
}

package acled

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// DefaultTokenTTL is the fixed lifetime of a cached token. It is deliberately
// independent of any expiry the provider reports.
const DefaultTokenTTL = 24 * time.Hour

// AccessToken is a cached bearer token.
type AccessToken struct {
	Value      string
	ObtainedAt time.Time
	TTL        time.Duration
}

// ExpiredAt reports whether the token is past its lifetime at the given instant.
func (t AccessToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ObtainedAt.Add(t.TTL))
}

// TokenCache obtains bearer tokens via the password grant and caches them
// per credential identity. The single writer is whichever caller misses the
// cache; the mutex also collapses concurrent misses into one network call.
type TokenCache struct {
	endpoint  string
	clientID  string
	ttl       time.Duration
	httpc     *http.Client
	now       func() time.Time
	onRefresh func()

	mu      sync.Mutex
	entries map[string]AccessToken
}

// TokenCacheOption configures a TokenCache.
type TokenCacheOption func(*TokenCache)

// WithTokenTTL overrides the fixed token lifetime.
func WithTokenTTL(ttl time.Duration) TokenCacheOption {
	return func(c *TokenCache) { c.ttl = ttl }
}

// WithTokenHTTPClient overrides the HTTP client used for the grant request.
func WithTokenHTTPClient(h *http.Client) TokenCacheOption {
	return func(c *TokenCache) { c.httpc = h }
}

// WithTokenClock overrides the clock; tests use this to step past the TTL.
func WithTokenClock(now func() time.Time) TokenCacheOption {
	return func(c *TokenCache) { c.now = now }
}

// WithRefreshHook registers a callback invoked after each successful token
// fetch (a cache miss that hit the network).
func WithRefreshHook(hook func()) TokenCacheOption {
	return func(c *TokenCache) { c.onRefresh = hook }
}

// NewTokenCache creates a token cache for the given token endpoint.
func NewTokenCache(endpoint, clientID string, timeout time.Duration, opts ...TokenCacheOption) *TokenCache {
	c := &TokenCache{
		endpoint: endpoint,
		clientID: clientID,
		ttl:      DefaultTokenTTL,
		httpc:    &http.Client{Timeout: timeout},
		now:      time.Now,
		entries:  make(map[string]AccessToken),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a cached token for the credentials, fetching a fresh one when
// the cache misses or the cached token has expired. Any failure is reported
// as *apperr.AuthError and is not retried.
func (c *TokenCache) Get(ctx context.Context, creds models.Credentials) (AccessToken, error) {
	if creds.Empty() {
		return AccessToken{}, &apperr.AuthError{Cause: errors.New("credentials are empty")}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if tok, ok := c.entries[creds.Identity]; ok && !tok.ExpiredAt(c.now()) {
		return tok, nil
	}
	delete(c.entries, creds.Identity)

	tok, err := c.fetch(ctx, creds)
	if err != nil {
		return AccessToken{}, &apperr.AuthError{Cause: err}
	}
	c.entries[creds.Identity] = tok
	if c.onRefresh != nil {
		c.onRefresh()
	}
	return tok, nil
}

// Invalidate drops every cached token. Called when credentials change.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]AccessToken)
}

func (c *TokenCache) fetch(ctx context.Context, creds models.Credentials) (AccessToken, error) {
	form := url.Values{
		"username":   {creds.Identity},
		"password":   {creds.Secret},
		"grant_type": {"password"},
		"client_id":  {c.clientID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, fmt.Errorf("acled: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return AccessToken{}, fmt.Errorf("acled: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return AccessToken{}, fmt.Errorf("acled: token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env tokenEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return AccessToken{}, fmt.Errorf("acled: decode token response: %w", err)
	}
	if env.AccessToken == "" {
		return AccessToken{}, errors.New("acled: token response missing access_token")
	}

	return AccessToken{Value: env.AccessToken, ObtainedAt: c.now(), TTL: c.ttl}, nil
}

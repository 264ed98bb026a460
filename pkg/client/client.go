// Package client is a Go client for the Clinika API. It holds the access
// token in memory, keeps the refresh token in its cookie jar, and coalesces
// concurrent refresh attempts into a single exchange.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned when the server rejects both the access token
// and the refresh token. The caller must log in again.
var ErrSessionExpired = errors.New("client: session expired")

// ErrNoSession is returned by Do before any successful Login.
var ErrNoSession = errors.New("client: not logged in")

// Identity mirrors the identity block of the session response.
type Identity struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	RoleID   string `json:"role_id"`
	Email    string `json:"email"`
	Active   bool   `json:"active"`
}

// Session is the authenticated state returned by Login.
type Session struct {
	AccessToken     string            `json:"access_token"`
	AccessExpiresAt time.Time         `json:"access_expires_at"`
	Identity        *Identity         `json:"identity"`
	Permissions     map[string]string `json:"permissions"`
}

// Client talks to a Clinika API server.
type Client struct {
	base *url.URL
	http *http.Client

	mu      sync.RWMutex
	session *Session

	refresh singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying transport. The client installs its own
// cookie jar on it; the refresh cookie must survive between calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("client: base url must be absolute")
	}
	c := &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("client: cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// Login authenticates and primes the session state. The refresh cookie lands
// in the jar as a side effect.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/auth/login"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("client: decode session: %w", err)
	}
	c.mu.Lock()
	c.session = &session
	c.mu.Unlock()
	return &session, nil
}

// Logout revokes the refresh token server-side and drops local state.
func (c *Client) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/auth/logout"), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	drain(resp.Body)

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// AccessToken returns the current access token, or "" before login.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// Session returns a copy of the current session state, or nil.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Do sends an authenticated request. On a 401 it refreshes the session once
// (coalescing concurrent refreshes into one exchange) and retries the request
// with the new token. Callers must supply a rewindable body or none.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	token := c.AccessToken()
	if token == "" {
		return nil, ErrNoSession
	}
	c.decorate(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp.Body)

	if err := c.refreshSession(req.Context(), token); err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	c.decorate(retry, c.AccessToken())
	return c.http.Do(retry)
}

// refreshSession exchanges the refresh cookie for a new token pair. All
// concurrent callers share one exchange and one verdict; callers whose stale
// token was already replaced skip the exchange entirely.
func (c *Client) refreshSession(ctx context.Context, stale string) error {
	_, err, _ := c.refresh.Do("refresh", func() (any, error) {
		if current := c.AccessToken(); current != "" && current != stale {
			return nil, nil
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/auth/refresh"), nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer drain(resp.Body)

		switch resp.StatusCode {
		case http.StatusOK:
			var session Session
			if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
				return nil, fmt.Errorf("client: decode session: %w", err)
			}
			c.mu.Lock()
			c.session = &session
			c.mu.Unlock()
			return nil, nil
		case http.StatusUnauthorized, http.StatusForbidden:
			c.mu.Lock()
			c.session = nil
			c.mu.Unlock()
			return nil, ErrSessionExpired
		default:
			return nil, apiError(resp)
		}
	})
	return err
}

func (c *Client) decorate(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	if req.Header.Get("X-Correlation-ID") == "" {
		req.Header.Set("X-Correlation-ID", uuid.NewString())
	}
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

func apiError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)
	if payload.Error == "" {
		payload.Error = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("client: %s (status %d)", payload.Error, resp.StatusCode)
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<16))
	_ = body.Close()
}

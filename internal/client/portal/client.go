// Package portal is a typed client for the portal API. Reads go through a querycache.Cache
// so concurrent callers share requests and mutations refresh what they affect.
package portal

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
	"strconv"
	"strings"
	"time"

	"github.com/swordot/portal/internal/application"
	"github.com/swordot/portal/pkg/querycache"
)

const (
	TagAccounts = "accounts"
	TagSession  = "session"
)

// APIError is a non-2xx answer. Message is the server's message, meant to be shown as is.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal: %d %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type Client struct {
	baseURL   string
	http      *http.Client
	cache     *querycache.Cache
	ownsCache bool
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithCache shares an existing cache. The caller keeps ownership and closes it.
func WithCache(qc *querycache.Cache) Option { return func(c *Client) { c.cache = qc } }

// New returns a client for the API rooted at baseURL (e.g. http://localhost:8080).
// The default HTTP client keeps session cookies between calls.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{baseURL: strings.TrimRight(baseURL, "/")}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		jar, _ := cookiejar.New(nil)
		c.http = &http.Client{Jar: jar, Timeout: 15 * time.Second}
	}
	if c.cache == nil {
		c.cache = querycache.New()
		c.ownsCache = true
	}
	return c
}

// Cache exposes the underlying cache for subscriptions and manual invalidation.
func (c *Client) Cache() *querycache.Cache { return c.cache }

// Close releases the cache when the client created it.
func (c *Client) Close() {
	if c.ownsCache {
		c.cache.Close()
	}
}

type CreateAccountRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateAccount is a mutation: it is never cached and, on success, refreshes every
// account query.
func (c *Client) CreateAccount(ctx context.Context, in CreateAccountRequest) (*application.AccountSummary, error) {
	v, err := c.cache.Mutate(ctx, func(ctx context.Context) (any, error) {
		var out struct {
			Account application.AccountSummary `json:"account"`
		}
		if err := c.do(ctx, http.MethodPost, "/api/account/create", in, &out); err != nil {
			return nil, err
		}
		return &out.Account, nil
	}, TagAccounts)
	if err != nil {
		return nil, err
	}
	return v.(*application.AccountSummary), nil
}

// GetAccountByName returns (nil, nil) for an unknown name; that result is cached like any other.
func (c *Client) GetAccountByName(ctx context.Context, name string) (*AccountPage, error) {
	return querycache.Get(ctx, c.cache, accountKey(name), c.fetchAccount(name), TagAccounts)
}

// SubscribeAccount declares a dependency on an account page. Updates carry *AccountPage data.
func (c *Client) SubscribeAccount(name string) *querycache.Subscription {
	fetch := c.fetchAccount(name)
	return c.cache.Subscribe(accountKey(name), func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, TagAccounts)
}

func accountKey(name string) string { return querycache.Key("getAccountByName", name) }

// AccountPage is the account detail plus how the signed-in user relates to it.
type AccountPage struct {
	Account application.AccountDetail `json:"account"`
	Viewer  struct {
		IsOwner bool `json:"is_owner"`
	} `json:"viewer"`
}

func (c *Client) fetchAccount(name string) func(ctx context.Context) (*AccountPage, error) {
	return func(ctx context.Context) (*AccountPage, error) {
		var page AccountPage
		err := c.do(ctx, http.MethodGet, "/api/accounts/"+url.PathEscape(name), nil, &page)
		if StatusOf(err) == http.StatusNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &page, nil
	}
}

func (c *Client) SearchAccounts(ctx context.Context, q string, size int) ([]application.AccountHit, error) {
	key := querycache.Key("searchAccounts", q, size)
	return querycache.Get(ctx, c.cache, key, func(ctx context.Context) ([]application.AccountHit, error) {
		params := url.Values{"q": {q}}
		if size > 0 {
			params.Set("size", strconv.Itoa(size))
		}
		var out struct {
			Accounts []application.AccountHit `json:"accounts"`
		}
		if err := c.do(ctx, http.MethodGet, "/api/search/accounts?"+params.Encode(), nil, &out); err != nil {
			return nil, err
		}
		return out.Accounts, nil
	}, TagAccounts)
}

// Session returns the signed-in user, or nil.
func (c *Client) Session(ctx context.Context) (*application.SessionUser, error) {
	return querycache.Get(ctx, c.cache, querycache.Key("session"), func(ctx context.Context) (*application.SessionUser, error) {
		var out struct {
			User *application.SessionUser `json:"user"`
		}
		if err := c.do(ctx, http.MethodGet, "/api/session", nil, &out); err != nil {
			return nil, err
		}
		return out.User, nil
	}, TagSession)
}

func (c *Client) Login(ctx context.Context, name, password string) (*application.SessionUser, error) {
	v, err := c.cache.Mutate(ctx, func(ctx context.Context) (any, error) {
		var out struct {
			User *application.SessionUser `json:"user"`
		}
		body := map[string]string{"name": name, "password": password}
		if err := c.do(ctx, http.MethodPost, "/api/login", body, &out); err != nil {
			return nil, err
		}
		return out.User, nil
	}, TagSession, TagAccounts)
	if err != nil {
		return nil, err
	}
	return v.(*application.SessionUser), nil
}

// Logout signs out. Account pages are refreshed since their viewer changes.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.cache.Mutate(ctx, func(ctx context.Context) (any, error) {
		return nil, c.do(ctx, http.MethodPost, "/api/logout", nil, nil)
	}, TagSession, TagAccounts)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(res.Body).Decode(&e)
		if e.Message == "" {
			e.Message = http.StatusText(res.StatusCode)
		}
		return &APIError{Status: res.StatusCode, Message: e.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("portal: decode %s %s: %w", method, path, err)
	}
	return nil
}

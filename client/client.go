package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	headerNewAccessToken = "X-New-Access-Token"
	defaultTimeout       = 30 * time.Second
)

// Challenge is an issued login challenge
type Challenge struct {
	SessionID string `json:"session_id"`
	Image     string `json:"challenge_image"`
	ExpiresIn int64  `json:"expires_in"`
}

// LoginRequest is the body of a login call
type LoginRequest struct {
	AccountName     string `json:"account_name"`
	Password        string `json:"password"`
	ChallengeAnswer string `json:"challenge_answer"`
	SessionID       string `json:"session_id"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// Client talks to the auth server and to protected endpoints, refreshing
// the access token when a request is rejected
type Client struct {
	baseURL     string
	http        *http.Client
	store       CredentialStore
	coordinator *RefreshCoordinator
	logger      *zap.Logger
	teardown    func()
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithCredentialStore replaces the in-memory credential store
func WithCredentialStore(store CredentialStore) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithLogger sets the logger used by the client and its coordinator
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// OnSessionEnd sets the callback run once when the session is torn down
func OnSessionEnd(fn func()) Option {
	return func(c *Client) {
		c.teardown = fn
	}
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		store:    NewMemoryCredentialStore(),
		logger:   zap.NewNop(),
		teardown: func() {},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.coordinator = NewRefreshCoordinator(c.store, c.refresh,
		WithTeardown(c.teardown),
		WithCoordinatorLogger(c.logger),
	)
	return c
}

// Coordinator exposes the refresh coordinator
func (c *Client) Coordinator() *RefreshCoordinator {
	return c.coordinator
}

// Credentials returns the stored credentials
func (c *Client) Credentials() (Credentials, bool) {
	return c.store.Load()
}

// IssueChallenge requests a new login challenge
func (c *Client) IssueChallenge(ctx context.Context) (*Challenge, error) {
	var ch Challenge
	if err := c.postJSON(ctx, "/auth/captcha", nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// Login logs in and starts a new session
func (c *Client) Login(ctx context.Context, req LoginRequest) error {
	var tokens tokenResponse
	if err := c.postJSON(ctx, "/auth/login", req, &tokens); err != nil {
		return err
	}

	c.coordinator.Reset(Credentials{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
	c.logger.Debug("logged in", zap.Int64("expires_in", tokens.ExpiresIn))
	return nil
}

// Logout ends the session on the server and locally. Local credentials
// are cleared even if the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.coordinator.Teardown()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/logout", nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrSessionEnded) {
			return nil
		}
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAuthError(resp)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Do sends req with the current access token. A request rejected with a
// refreshable reason is retried once after the coordinator obtains a new
// token; a second rejection ends the session.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	creds, ok := c.store.Load()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	if err := bufferBody(req); err != nil {
		return nil, err
	}

	resp, err := c.send(req, creds.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		c.adopt(resp)
		return resp, nil
	}

	authErr := readAuthError(resp)
	if !authErr.Refreshable() {
		c.coordinator.Teardown()
		return nil, authErr
	}

	token, err := c.coordinator.Await(req.Context(), creds.AccessToken)
	if err != nil {
		return nil, err
	}

	resp, err = c.send(req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		authErr := readAuthError(resp)
		c.coordinator.Teardown()
		return nil, authErr
	}

	c.adopt(resp)
	return resp, nil
}

func (c *Client) send(req *http.Request, accessToken string) (*http.Response, error) {
	attempt := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		attempt.Body = body
	}
	attempt.Header.Set("Authorization", "Bearer "+accessToken)
	return c.http.Do(attempt)
}

func (c *Client) adopt(resp *http.Response) {
	if token := resp.Header.Get(headerNewAccessToken); token != "" {
		c.coordinator.Adopt(token)
	}
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	var tokens tokenResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.postJSON(ctx, "/auth/refresh", body, &tokens); err != nil {
		return Credentials{}, err
	}
	return Credentials{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAuthError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	raw, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return err
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

// readAuthError consumes and closes the body of a failed response
func readAuthError(resp *http.Response) *AuthError {
	defer resp.Body.Close()

	authErr := &AuthError{Status: resp.StatusCode}
	var body errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		authErr.Reason = body.Error
		authErr.Description = body.Description
	}
	if authErr.Reason == "" {
		authErr.Reason = http.StatusText(resp.StatusCode)
	}
	return authErr
}

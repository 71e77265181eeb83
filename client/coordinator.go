package client

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// State of a RefreshCoordinator
type State int

const (
	StateIdle State = iota
	StateRefreshing
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RefreshFunc exchanges a refresh token for new credentials
type RefreshFunc func(ctx context.Context, refreshToken string) (Credentials, error)

type outcome struct {
	accessToken string
	err         error
}

// RefreshCoordinator makes sure at most one refresh call is in flight.
// Requests failing while a refresh runs wait in a FIFO queue and all of
// them receive the single result.
type RefreshCoordinator struct {
	store      CredentialStore
	refresh    RefreshFunc
	onTeardown func()
	logger     *zap.Logger

	mu       sync.Mutex
	state    State
	waiters  []chan outcome
	tornDown bool
	epoch    uint64
	calls    int
}

// CoordinatorOption configures a RefreshCoordinator
type CoordinatorOption func(*RefreshCoordinator)

// WithTeardown sets the callback run once when the session ends
func WithTeardown(fn func()) CoordinatorOption {
	return func(c *RefreshCoordinator) {
		c.onTeardown = fn
	}
}

// WithCoordinatorLogger sets the logger
func WithCoordinatorLogger(logger *zap.Logger) CoordinatorOption {
	return func(c *RefreshCoordinator) {
		c.logger = logger
	}
}

// NewRefreshCoordinator creates an idle coordinator that refreshes the
// credentials in store with refresh
func NewRefreshCoordinator(store CredentialStore, refresh RefreshFunc, opts ...CoordinatorOption) *RefreshCoordinator {
	c := &RefreshCoordinator{
		store:      store,
		refresh:    refresh,
		onTeardown: func() {},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state
func (c *RefreshCoordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Calls returns how many refresh calls were started
func (c *RefreshCoordinator) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Await returns an access token to retry a request that failed with
// failedAccess. If the stored token already differs from failedAccess
// another request refreshed in the meantime and no call is made.
// Cancelling ctx abandons the wait; the refresh itself keeps running.
func (c *RefreshCoordinator) Await(ctx context.Context, failedAccess string) (string, error) {
	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		return "", ErrSessionEnded
	}

	creds, ok := c.store.Load()
	if !ok || creds.RefreshToken == "" {
		c.mu.Unlock()
		return "", ErrNotAuthenticated
	}

	if c.state == StateIdle && creds.AccessToken != failedAccess {
		c.mu.Unlock()
		return creds.AccessToken, nil
	}

	ch := make(chan outcome, 1)
	c.waiters = append(c.waiters, ch)
	if c.state == StateIdle {
		c.state = StateRefreshing
		c.calls++
		go c.run(ctx, creds, c.epoch)
	}
	c.mu.Unlock()

	select {
	case res := <-ch:
		return res.accessToken, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *RefreshCoordinator) run(ctx context.Context, creds Credentials, epoch uint64) {
	// The refresh outlives the request that started it
	next, err := c.refresh(context.WithoutCancel(ctx), creds.RefreshToken)

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.state = StateIdle

	teardown := false
	switch {
	case c.tornDown || c.epoch != epoch:
		// The session ended or was replaced while the call was in flight
		next = Credentials{}
		err = ErrSessionEnded
	case err == nil:
		if next.RefreshToken == "" {
			next.RefreshToken = creds.RefreshToken
		}
		c.store.Save(next)
	default:
		err = fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		c.store.Clear()
		c.tornDown = true
		c.epoch++
		teardown = true
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("token refresh failed", zap.Int("waiters", len(waiters)), zap.Error(err))
	} else {
		c.logger.Debug("token refreshed", zap.Int("waiters", len(waiters)))
	}

	for _, ch := range waiters {
		ch <- outcome{accessToken: next.AccessToken, err: err}
	}

	if teardown {
		c.onTeardown()
	}
}

// Adopt stores an access token the server minted inline
func (c *RefreshCoordinator) Adopt(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tornDown {
		return
	}
	creds, ok := c.store.Load()
	if !ok {
		return
	}
	creds.AccessToken = accessToken
	c.store.Save(creds)
}

// Teardown clears credentials and runs the teardown callback. Only the
// first call after a Reset has any effect.
func (c *RefreshCoordinator) Teardown() {
	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		return
	}
	c.tornDown = true
	c.epoch++
	c.store.Clear()
	c.mu.Unlock()

	c.onTeardown()
}

// Reset starts a new session with creds
func (c *RefreshCoordinator) Reset(creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tornDown = false
	c.epoch++
	c.store.Save(creds)
}

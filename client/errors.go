package client

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated = errors.New("no credentials stored")
	ErrSessionEnded     = errors.New("session has ended")
	ErrRefreshFailed    = errors.New("refresh failed")
)

// Server reasons that start a refresh. Every other reason ends the session.
const (
	ReasonTokenExpired = "token_expired"
	ReasonUnauthorized = "unauthorized"
)

// AuthError is a failure response from the auth server
type AuthError struct {
	Status      int
	Reason      string
	Description string
}

// Error formats the status and reason
func (e *AuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("auth failed with status %d: %s (%s)", e.Status, e.Reason, e.Description)
	}
	return fmt.Sprintf("auth failed with status %d: %s", e.Status, e.Reason)
}

// Refreshable reports whether the failure may be fixed by a token refresh
func (e *AuthError) Refreshable() bool {
	return e.Reason == ReasonTokenExpired || e.Reason == ReasonUnauthorized
}

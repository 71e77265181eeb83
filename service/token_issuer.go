package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/ports"
)

const (
	DefaultAccessTTL  = 900 * time.Second
	DefaultRefreshTTL = 604800 * time.Second
)

// TokenLifetimes holds the validity windows of both credential kinds
type TokenLifetimes struct {
	Access  time.Duration
	Refresh time.Duration
}

// TokenIssuer mints and verifies access and refresh credentials
type TokenIssuer struct {
	tokenizer ports.Tokenizer
	records   ports.RefreshRecordStore
	lifetimes TokenLifetimes
	now       func() time.Time
}

// NewTokenIssuer creates a new token issuer. A nil clock uses time.Now.
func NewTokenIssuer(tokenizer ports.Tokenizer, records ports.RefreshRecordStore, lifetimes TokenLifetimes, now func() time.Time) *TokenIssuer {
	if lifetimes.Access <= 0 {
		lifetimes.Access = DefaultAccessTTL
	}
	if lifetimes.Refresh <= 0 {
		lifetimes.Refresh = DefaultRefreshTTL
	}
	if now == nil {
		now = time.Now
	}

	return &TokenIssuer{
		tokenizer: tokenizer,
		records:   records,
		lifetimes: lifetimes,
		now:       now,
	}
}

// Lifetimes returns the configured credential lifetimes
func (i *TokenIssuer) Lifetimes() TokenLifetimes {
	return i.lifetimes
}

// IssueAccess mints an access credential for p
func (i *TokenIssuer) IssueAccess(p core.Principal) (core.IssuedToken, error) {
	claims := i.claims(p, core.TokenKindAccess, i.lifetimes.Access)
	claims.Scopes = append([]string(nil), p.Scopes...)

	token, err := i.tokenizer.ClaimsToAccessToken(claims)
	if err != nil {
		return core.IssuedToken{}, fmt.Errorf("failed to create access token: %w", err)
	}
	return core.IssuedToken{Value: token, Claims: claims}, nil
}

// IssueRefresh mints a refresh credential for p and records it as the
// principal's only valid refresh credential
func (i *TokenIssuer) IssueRefresh(ctx context.Context, p core.Principal) (core.IssuedToken, error) {
	refresh, err := i.mintRefresh(p)
	if err != nil {
		return core.IssuedToken{}, err
	}

	if err := i.records.Put(ctx, p.ID, refresh.Value, refresh.Claims.Lifetime()); err != nil {
		return core.IssuedToken{}, fmt.Errorf("failed to persist refresh token: %w", err)
	}
	return refresh, nil
}

// IssuePair mints both credentials for p
func (i *TokenIssuer) IssuePair(ctx context.Context, p core.Principal) (core.TokenPair, error) {
	access, err := i.IssueAccess(p)
	if err != nil {
		return core.TokenPair{}, err
	}

	refresh, err := i.IssueRefresh(ctx, p)
	if err != nil {
		return core.TokenPair{}, err
	}

	return core.TokenPair{Access: access, Refresh: refresh}, nil
}

// VerifyAccess checks signature and expiry of an access credential
func (i *TokenIssuer) VerifyAccess(token string) (*core.Claims, error) {
	claims, err := i.tokenizer.AccessTokenToClaims(token)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	return claims, nil
}

// VerifyRefreshSignature checks signature and expiry of a refresh
// credential without consulting the record store
func (i *TokenIssuer) VerifyRefreshSignature(token string) (*core.Claims, error) {
	claims, err := i.tokenizer.RefreshTokenToClaims(token)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}
	return claims, nil
}

func (i *TokenIssuer) mintRefresh(p core.Principal) (core.IssuedToken, error) {
	claims := i.claims(p, core.TokenKindRefresh, i.lifetimes.Refresh)

	token, err := i.tokenizer.ClaimsToRefreshToken(claims)
	if err != nil {
		return core.IssuedToken{}, fmt.Errorf("failed to create refresh token: %w", err)
	}
	return core.IssuedToken{Value: token, Claims: claims}, nil
}

func (i *TokenIssuer) claims(p core.Principal, kind core.TokenKind, ttl time.Duration) core.Claims {
	// JWT dates have second precision
	now := i.now().Truncate(time.Second)
	return core.Claims{
		ID:          uuid.NewString(),
		PrincipalID: p.ID,
		AccountName: p.AccountName,
		Kind:        kind,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
}

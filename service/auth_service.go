package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/ports"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// LoginInput is what a client submits to log in
type LoginInput struct {
	AccountName     string
	Password        string
	ChallengeAnswer string
	SessionID       string
}

// Options configures an AuthService
type Options struct {
	// RotateRefreshTokens replaces the refresh token on every explicit
	// refresh. When false the presented token is returned unchanged.
	RotateRefreshTokens bool
	Events              ports.EventPublisher
	Logger              *zap.Logger
}

// AuthService handles authentication business logic
type AuthService struct {
	gate      *ChallengeGate
	issuer    *TokenIssuer
	records   ports.RefreshRecordStore
	directory ports.PrincipalDirectory
	events    ports.EventPublisher
	logger    *zap.Logger
	rotate    bool

	dummyOnce sync.Once
	dummyHash []byte
}

type noopEvents struct{}

func (noopEvents) PublishLogout(context.Context, string) error { return nil }

func (noopEvents) PublishRefreshRejected(context.Context, string, core.Reason) error { return nil }

// NewAuthService creates a new authentication service
func NewAuthService(
	gate *ChallengeGate,
	issuer *TokenIssuer,
	records ports.RefreshRecordStore,
	directory ports.PrincipalDirectory,
	opts Options,
) *AuthService {
	if opts.Events == nil {
		opts.Events = noopEvents{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &AuthService{
		gate:      gate,
		issuer:    issuer,
		records:   records,
		directory: directory,
		events:    opts.Events,
		logger:    opts.Logger.Named("auth"),
		rotate:    opts.RotateRefreshTokens,
	}
}

// Challenges returns the gate guarding Login
func (s *AuthService) Challenges() *ChallengeGate {
	return s.gate
}

// Issuer returns the token issuer
func (s *AuthService) Issuer() *TokenIssuer {
	return s.issuer
}

// Login verifies the challenge first and only then the credentials
func (s *AuthService) Login(ctx context.Context, in LoginInput) (core.TokenPair, error) {
	ok, err := s.gate.Verify(ctx, in.SessionID, in.ChallengeAnswer)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("challenge verification failed: %w", err)
	}
	if !ok {
		return core.TokenPair{}, core.ErrCaptchaInvalidOrExpired
	}

	account, err := s.directory.FindByAccountName(ctx, in.AccountName)
	if err != nil {
		if errors.Is(err, core.ErrPrincipalNotFound) {
			// Keep timing close to the known-account path
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(in.Password))
			return core.TokenPair{}, core.ErrInvalidCredentials
		}
		return core.TokenPair{}, fmt.Errorf("failed to look up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(in.Password)); err != nil {
		return core.TokenPair{}, core.ErrInvalidCredentials
	}

	pair, err := s.issuer.IssuePair(ctx, account.Principal)
	if err != nil {
		return core.TokenPair{}, err
	}

	s.logger.Info("login succeeded", zap.String("principal_id", account.Principal.ID))
	return pair, nil
}

// Refresh exchanges a refresh token for a new access token. With rotation
// enabled the refresh token is replaced atomically, so concurrent refreshes
// with the same token have exactly one winner.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (core.TokenPair, error) {
	claims, principal, err := s.checkRefresh(ctx, refreshToken)
	if err != nil {
		return core.TokenPair{}, err
	}

	access, err := s.issuer.IssueAccess(*principal)
	if err != nil {
		return core.TokenPair{}, err
	}

	if !s.rotate {
		return core.TokenPair{
			Access:  access,
			Refresh: core.IssuedToken{Value: refreshToken, Claims: *claims},
		}, nil
	}

	next, err := s.issuer.mintRefresh(*principal)
	if err != nil {
		return core.TokenPair{}, err
	}

	err = s.records.CompareAndSwap(ctx, principal.ID, refreshToken, next.Value, next.Claims.Lifetime())
	if err != nil {
		if core.IsAuthFailure(err) {
			return core.TokenPair{}, s.rejectRefresh(ctx, principal.ID, err)
		}
		return core.TokenPair{}, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return core.TokenPair{Access: access, Refresh: next}, nil
}

// RecoverAccess mints a new access token from a refresh token without
// rotating the refresh token. Concurrent recoveries therefore never
// invalidate each other.
func (s *AuthService) RecoverAccess(ctx context.Context, refreshToken string) (core.IssuedToken, error) {
	_, principal, err := s.checkRefresh(ctx, refreshToken)
	if err != nil {
		return core.IssuedToken{}, err
	}
	return s.issuer.IssueAccess(*principal)
}

// Logout deletes the principal's refresh record. Repeating it is harmless.
func (s *AuthService) Logout(ctx context.Context, principalID string) error {
	if err := s.records.Delete(ctx, principalID); err != nil {
		return err
	}

	if err := s.events.PublishLogout(ctx, principalID); err != nil {
		// The record is already gone, which is the part that matters
		s.logger.Warn("failed to publish logout event", zap.String("principal_id", principalID), zap.Error(err))
	}

	s.logger.Info("logout", zap.String("principal_id", principalID))
	return nil
}

// ValidateAccessToken checks an access token's signature and expiry
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Claims, error) {
	return s.issuer.VerifyAccess(accessToken)
}

// checkRefresh verifies the refresh token, requires an exact match with
// the stored record and loads the current principal
func (s *AuthService) checkRefresh(ctx context.Context, refreshToken string) (*core.Claims, *core.Principal, error) {
	claims, err := s.issuer.VerifyRefreshSignature(refreshToken)
	if err != nil {
		return nil, nil, err
	}

	stored, err := s.records.Get(ctx, claims.PrincipalID)
	if err != nil {
		if errors.Is(err, core.ErrRefreshRecordAbsent) {
			return nil, nil, s.rejectRefresh(ctx, claims.PrincipalID, err)
		}
		return nil, nil, fmt.Errorf("failed to load refresh record: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(refreshToken)) != 1 {
		return nil, nil, s.rejectRefresh(ctx, claims.PrincipalID, core.ErrRefreshTokenMismatch)
	}

	principal, err := s.directory.FindByID(ctx, claims.PrincipalID)
	if err != nil {
		if errors.Is(err, core.ErrPrincipalNotFound) {
			if delErr := s.records.Delete(ctx, claims.PrincipalID); delErr != nil {
				s.logger.Warn("failed to drop refresh record of deleted principal", zap.Error(delErr))
			}
			return nil, nil, core.ErrPrincipalNotFound
		}
		return nil, nil, fmt.Errorf("failed to look up principal: %w", err)
	}

	return claims, principal, nil
}

func (s *AuthService) rejectRefresh(ctx context.Context, principalID string, err error) error {
	reason := core.ReasonOf(err)
	s.logger.Warn("refresh rejected", zap.String("principal_id", principalID), zap.String("reason", string(reason)))

	if pubErr := s.events.PublishRefreshRejected(ctx, principalID, reason); pubErr != nil {
		s.logger.Warn("failed to publish refresh rejection", zap.Error(pubErr))
	}
	return err
}

func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("gatekeeper-dummy-password"), bcrypt.DefaultCost)
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

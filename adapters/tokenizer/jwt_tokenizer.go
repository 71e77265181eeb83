package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/ports"
)

const AudienceAccess = "session:access"
const AudienceRefresh = "session:refresh"

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs.
// Access and refresh tokens are signed with different secrets.
type JWTTokenizer struct {
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

// Option configures a JWTTokenizer
type Option func(*JWTTokenizer)

// WithClock sets the time source used when validating expiry
func WithClock(now func() time.Time) Option {
	return func(j *JWTTokenizer) {
		j.now = now
	}
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(accessSecret, refreshSecret []byte, opts ...Option) (ports.Tokenizer, error) {
	if len(accessSecret) == 0 || len(refreshSecret) == 0 {
		return nil, errors.New("tokenizer: both secrets are required")
	}
	if string(accessSecret) == string(refreshSecret) {
		return nil, errors.New("tokenizer: access and refresh secrets must differ")
	}

	j := &JWTTokenizer{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// ClaimsToAccessToken signs access claims
func (j *JWTTokenizer) ClaimsToAccessToken(claims core.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: registered(claims, AudienceAccess),
		AccountName:      claims.AccountName,
		Scopes:           claims.Scopes,
		Kind:             string(core.TokenKindAccess),
	})

	signedToken, err := token.SignedString(j.accessSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signedToken, nil
}

// ClaimsToRefreshToken signs refresh claims
func (j *JWTTokenizer) ClaimsToRefreshToken(claims core.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		RegisteredClaims: registered(claims, AudienceRefresh),
		AccountName:      claims.AccountName,
		Kind:             string(core.TokenKindRefresh),
	})

	signedToken, err := token.SignedString(j.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return signedToken, nil
}

// AccessTokenToClaims checks signature and expiry of an access token
func (j *JWTTokenizer) AccessTokenToClaims(tokenStr string) (*core.Claims, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, j.accessSecret, AudienceAccess); err != nil {
		return nil, err
	}
	if claims.Kind != string(core.TokenKindAccess) {
		return nil, fmt.Errorf("unexpected token kind %q: %w", claims.Kind, core.ErrTokenMalformed)
	}

	out := fromRegistered(claims.RegisteredClaims, core.TokenKindAccess)
	out.AccountName = claims.AccountName
	out.Scopes = claims.Scopes
	return out, nil
}

// RefreshTokenToClaims checks signature and expiry of a refresh token.
// It does not consult the refresh record store.
func (j *JWTTokenizer) RefreshTokenToClaims(tokenStr string) (*core.Claims, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, j.refreshSecret, AudienceRefresh); err != nil {
		return nil, err
	}
	if claims.Kind != string(core.TokenKindRefresh) {
		return nil, fmt.Errorf("unexpected token kind %q: %w", claims.Kind, core.ErrTokenMalformed)
	}

	out := fromRegistered(claims.RegisteredClaims, core.TokenKindRefresh)
	out.AccountName = claims.AccountName
	return out, nil
}

func (j *JWTTokenizer) parse(tokenStr string, claims jwt.Claims, secret []byte, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithAudience(audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return classify(err)
	}
	if !token.Valid {
		return core.ErrTokenMalformed
	}
	return nil
}

// classify maps jwt parse errors onto the auth error taxonomy
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%v: %w", err, core.ErrTokenExpired)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%v: %w", err, core.ErrTokenSignatureInvalid)
	default:
		return fmt.Errorf("%v: %w", err, core.ErrTokenMalformed)
	}
}

func registered(claims core.Claims, audience string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   claims.PrincipalID,
		ID:        claims.ID,
		ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
		Audience:  jwt.ClaimStrings{audience},
	}
}

func fromRegistered(rc jwt.RegisteredClaims, kind core.TokenKind) *core.Claims {
	out := &core.Claims{
		ID:          rc.ID,
		PrincipalID: rc.Subject,
		Kind:        kind,
	}
	if rc.IssuedAt != nil {
		out.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		out.ExpiresAt = rc.ExpiresAt.Time
	}
	return out
}

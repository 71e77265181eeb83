package core

import "time"

// TokenKind distinguishes access credentials from refresh credentials
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Principal is the identity an external user store hands to the auth core.
// The auth core only reads it to mint claims.
type Principal struct {
	ID          string   // Stable principal identifier
	AccountName string   // Login name
	Email       string   // Contact address, not part of any token
	Scopes      []string // Scopes copied into access credentials
}

// Account pairs a principal with its stored password hash
type Account struct {
	Principal    Principal
	PasswordHash string
}

// Claims is the decoded content of an access or refresh credential
type Claims struct {
	ID          string    // Unique token identifier (jti)
	PrincipalID string    // Subject of the token
	AccountName string    // Account name of the subject
	Scopes      []string  // Empty for refresh credentials
	Kind        TokenKind // access or refresh
	IssuedAt    time.Time // When the token was minted
	ExpiresAt   time.Time // When the token stops verifying
}

// Lifetime returns the full validity window of the token
func (c Claims) Lifetime() time.Duration {
	return c.ExpiresAt.Sub(c.IssuedAt)
}

// IssuedToken is a signed credential together with the claims it carries
type IssuedToken struct {
	Value  string
	Claims Claims
}

// TokenPair is the result of a login or refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// ExpiresIn returns the access credential lifetime in whole seconds
func (p TokenPair) ExpiresIn() int64 {
	return int64(p.Access.Claims.Lifetime() / time.Second)
}

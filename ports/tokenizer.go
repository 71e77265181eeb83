package ports

import "github.com/layer-3/gatekeeper/core"

// Tokenizer converts between claims and signed tokens
type Tokenizer interface {
	ClaimsToAccessToken(claims core.Claims) (string, error)
	AccessTokenToClaims(token string) (*core.Claims, error)

	ClaimsToRefreshToken(claims core.Claims) (string, error)
	RefreshTokenToClaims(token string) (*core.Claims, error)
}

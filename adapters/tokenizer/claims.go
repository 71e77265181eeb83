package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with the principal's scopes
type AccessClaims struct {
	jwt.RegisteredClaims
	AccountName string   `json:"name"`
	Scopes      []string `json:"scopes,omitempty"`
	Kind        string   `json:"kind"`
}

// RefreshClaims carry identity only, scopes are re-read on refresh
type RefreshClaims struct {
	jwt.RegisteredClaims
	AccountName string `json:"name"`
	Kind        string `json:"kind"`
}

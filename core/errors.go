package core

import "errors"

var (
	ErrCaptchaInvalidOrExpired = errors.New("captcha invalid or expired")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrTokenMalformed          = errors.New("token is malformed")
	ErrTokenExpired            = errors.New("token has expired")
	ErrTokenSignatureInvalid   = errors.New("token signature is invalid")
	ErrRefreshTokenMismatch    = errors.New("refresh token does not match the current record")
	ErrRefreshRecordAbsent     = errors.New("no refresh record for principal")
	ErrPrincipalNotFound       = errors.New("principal not found")
	ErrUnauthorized            = errors.New("unauthorized")
)

// Reason is a stable machine-readable failure code returned to callers
type Reason string

const (
	ReasonCaptchaInvalidOrExpired Reason = "captcha_invalid_or_expired"
	ReasonInvalidCredentials      Reason = "invalid_credentials"
	ReasonTokenMalformed          Reason = "token_malformed"
	ReasonTokenExpired            Reason = "token_expired"
	ReasonTokenSignatureInvalid   Reason = "token_signature_invalid"
	ReasonRefreshTokenMismatch    Reason = "refresh_token_mismatch"
	ReasonRefreshRecordAbsent     Reason = "refresh_record_absent"
	ReasonPrincipalNotFound       Reason = "principal_not_found"
	ReasonUnauthorized            Reason = "unauthorized"
	ReasonInternal                Reason = "internal_error"
)

var reasons = []struct {
	err    error
	reason Reason
}{
	{ErrCaptchaInvalidOrExpired, ReasonCaptchaInvalidOrExpired},
	{ErrInvalidCredentials, ReasonInvalidCredentials},
	{ErrTokenMalformed, ReasonTokenMalformed},
	{ErrTokenExpired, ReasonTokenExpired},
	{ErrTokenSignatureInvalid, ReasonTokenSignatureInvalid},
	{ErrRefreshTokenMismatch, ReasonRefreshTokenMismatch},
	{ErrRefreshRecordAbsent, ReasonRefreshRecordAbsent},
	{ErrPrincipalNotFound, ReasonPrincipalNotFound},
	{ErrUnauthorized, ReasonUnauthorized},
}

// ReasonOf maps an error chain to its stable reason.
// Errors outside the taxonomy map to ReasonInternal.
func ReasonOf(err error) Reason {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonInternal
}

// IsAuthFailure reports whether err belongs to the authentication taxonomy
func IsAuthFailure(err error) bool {
	return err != nil && ReasonOf(err) != ReasonInternal
}

package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasonOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"captcha", ErrCaptchaInvalidOrExpired, ReasonCaptchaInvalidOrExpired},
		{"wrapped expired", fmt.Errorf("verify access token: %w", ErrTokenExpired), ReasonTokenExpired},
		{"mismatch", fmt.Errorf("refresh: %w", ErrRefreshTokenMismatch), ReasonRefreshTokenMismatch},
		{"absent", ErrRefreshRecordAbsent, ReasonRefreshRecordAbsent},
		{"unknown", errors.New("redis: connection refused"), ReasonInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReasonOf(tt.err))
		})
	}
}

func TestIsAuthFailure(t *testing.T) {
	assert.True(t, IsAuthFailure(fmt.Errorf("login: %w", ErrInvalidCredentials)))
	assert.False(t, IsAuthFailure(errors.New("boom")))
	assert.False(t, IsAuthFailure(nil))
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSecrets(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "access")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh")
}

func TestLoadDefaults(t *testing.T) {
	setSecrets(t)
	for _, key := range []string{
		"APP_ENV", "HTTP_PORT", "LOG_LEVEL", "REDIS_URL", "DATABASE_URL",
		"ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL", "CHALLENGE_TTL", "CHALLENGE_LENGTH",
		"ROTATE_REFRESH_TOKENS", "RATE_LIMIT_RPM", "EVENTS_ENABLED",
		"BOOTSTRAP_ACCOUNT", "BOOTSTRAP_PASSWORD", "BOOTSTRAP_EMAIL", "BOOTSTRAP_SCOPES",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 900*time.Second, cfg.Tokens.AccessTTL)
	assert.Equal(t, 604800*time.Second, cfg.Tokens.RefreshTTL)
	assert.True(t, cfg.Tokens.RotateRefresh)
	assert.Equal(t, 300*time.Second, cfg.Challenge.TTL)
	assert.Equal(t, 4, cfg.Challenge.Length)
	assert.Equal(t, 120, cfg.RateLimitRPM)
	assert.True(t, cfg.EventsEnabled)
	assert.False(t, cfg.Bootstrap.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	setSecrets(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("ACCESS_TOKEN_TTL", "60")
	t.Setenv("ROTATE_REFRESH_TOKENS", "off")
	t.Setenv("RATE_LIMIT_RPM", "0")
	t.Setenv("BOOTSTRAP_ACCOUNT", "admin")
	t.Setenv("BOOTSTRAP_PASSWORD", "s3cret")
	t.Setenv("BOOTSTRAP_SCOPES", "orders:read, merchants:write,,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Minute, cfg.Tokens.AccessTTL)
	assert.False(t, cfg.Tokens.RotateRefresh)
	assert.Equal(t, 0, cfg.RateLimitRPM)
	assert.True(t, cfg.Bootstrap.Enabled())
	assert.Equal(t, []string{"orders:read", "merchants:write"}, cfg.Bootstrap.Scopes)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{"missing access secret", map[string]string{"ACCESS_TOKEN_SECRET": ""}, "ACCESS_TOKEN_SECRET is required"},
		{"missing refresh secret", map[string]string{"REFRESH_TOKEN_SECRET": ""}, "REFRESH_TOKEN_SECRET is required"},
		{"equal secrets", map[string]string{"REFRESH_TOKEN_SECRET": "access"}, "must differ"},
		{"access outlives refresh", map[string]string{"ACCESS_TOKEN_TTL": "700000"}, "must be shorter"},
		{"short challenge", map[string]string{"CHALLENGE_LENGTH": "2"}, "CHALLENGE_LENGTH"},
		{"half bootstrap", map[string]string{"BOOTSTRAP_ACCOUNT": "admin", "BOOTSTRAP_PASSWORD": ""}, "must be set together"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setSecrets(t)
			t.Setenv("ACCESS_TOKEN_TTL", "")
			t.Setenv("CHALLENGE_LENGTH", "")
			t.Setenv("BOOTSTRAP_ACCOUNT", "")
			t.Setenv("BOOTSTRAP_PASSWORD", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

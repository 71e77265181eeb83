package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at startup and never changed afterwards
type Config struct {
	Environment   string
	HTTPPort      string
	LogLevel      string
	RedisURL      string
	DatabaseURL   string
	RateLimitRPM  int
	EventsEnabled bool
	Tokens        Tokens
	Challenge     Challenge
	Bootstrap     Bootstrap
}

// Tokens holds signing secrets and lifetimes
type Tokens struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RotateRefresh bool
}

// Challenge configures the login captcha
type Challenge struct {
	TTL    time.Duration
	Length int
}

// Bootstrap describes an optional principal seeded at startup
type Bootstrap struct {
	AccountName string
	Password    string
	Email       string
	Scopes      []string
}

// Enabled reports whether a bootstrap principal is configured
func (b Bootstrap) Enabled() bool {
	return b.AccountName != "" && b.Password != ""
}

// IsDevelopment reports whether the service runs in development mode
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Load reads configuration from the environment, after loading a .env
// file when one exists
func Load() (Config, error) {
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "development")
	defaultLevel := "info"
	if env == "development" {
		defaultLevel = "debug"
	}

	cfg := Config{
		Environment:   env,
		HTTPPort:      getEnv("HTTP_PORT", "9000"),
		LogLevel:      getEnv("LOG_LEVEL", defaultLevel),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RateLimitRPM:  getInt("RATE_LIMIT_RPM", 120),
		EventsEnabled: getBool("EVENTS_ENABLED", true),
		Tokens: Tokens{
			AccessSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
			RefreshSecret: os.Getenv("REFRESH_TOKEN_SECRET"),
			AccessTTL:     getSeconds("ACCESS_TOKEN_TTL", 900),
			RefreshTTL:    getSeconds("REFRESH_TOKEN_TTL", 604800),
			RotateRefresh: getBool("ROTATE_REFRESH_TOKENS", true),
		},
		Challenge: Challenge{
			TTL:    getSeconds("CHALLENGE_TTL", 300),
			Length: getInt("CHALLENGE_LENGTH", 4),
		},
		Bootstrap: Bootstrap{
			AccountName: strings.TrimSpace(os.Getenv("BOOTSTRAP_ACCOUNT")),
			Password:    os.Getenv("BOOTSTRAP_PASSWORD"),
			Email:       strings.TrimSpace(os.Getenv("BOOTSTRAP_EMAIL")),
			Scopes:      getList("BOOTSTRAP_SCOPES", nil),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants Load relies on
func (c Config) Validate() error {
	var errs []error
	if c.Tokens.AccessSecret == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET is required"))
	}
	if c.Tokens.RefreshSecret == "" {
		errs = append(errs, errors.New("REFRESH_TOKEN_SECRET is required"))
	}
	if c.Tokens.AccessSecret != "" && c.Tokens.AccessSecret == c.Tokens.RefreshSecret {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}
	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.Tokens.AccessTTL >= c.Tokens.RefreshTTL {
		errs = append(errs, fmt.Errorf("ACCESS_TOKEN_TTL (%s) must be shorter than REFRESH_TOKEN_TTL (%s)", c.Tokens.AccessTTL, c.Tokens.RefreshTTL))
	}
	if c.Challenge.TTL <= 0 {
		errs = append(errs, errors.New("CHALLENGE_TTL must be positive"))
	}
	if c.Challenge.Length < 4 || c.Challenge.Length > 8 {
		errs = append(errs, errors.New("CHALLENGE_LENGTH must be between 4 and 8"))
	}
	if (c.Bootstrap.AccountName == "") != (c.Bootstrap.Password == "") {
		errs = append(errs, errors.New("BOOTSTRAP_ACCOUNT and BOOTSTRAP_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil {
			return n
		}
	}
	return def
}

// getSeconds reads a whole number of seconds
func getSeconds(key string, def int) time.Duration {
	return time.Duration(getInt(key, def)) * time.Second
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		var cleaned []string
		for _, p := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}

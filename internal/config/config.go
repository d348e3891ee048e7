package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultAppName        = "PrimeWallet"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultBaseURL        = "https://primewallet.duckdns.org"
	defaultAPITimeout     = 30 * time.Second
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultLoginAttempts  = 5
	defaultOpeningBalance = "10000"

	// DefaultCurrency is used when neither the caller nor the wallet names one.
	DefaultCurrency   = "NGN"
	// DefaultPageSize is the transaction page size when none is configured.
	DefaultPageSize   = 20
	// MinPasswordLength and MaxPasswordLength bound registration passwords.
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// Scheme names how requests prove the session to the backend.
const (
	SchemeCookie = "cookie"
	SchemeToken  = "token"
)

// Config captures client and sandbox runtime configuration loaded from environment variables.
type Config struct {
	AppName                string
	AppEnv                 string
	Port                   string
	LogLevel               string
	BaseURL                string
	CredentialScheme       string
	APITimeout             time.Duration
	PageSize               int
	RedisURL               string
	DatabaseURL            string
	ShutdownPeriod         time.Duration
	IdempotencyTTL         time.Duration
	LoginAttemptsPerMinute int
	OpeningBalance         decimal.Decimal
	AccessLog              bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           getEnv("APP_ENV", defaultAppEnv),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		BaseURL:          strings.TrimRight(getEnv("WALLET_API_URL", defaultBaseURL), "/"),
		CredentialScheme: strings.ToLower(getEnv("WALLET_AUTH_SCHEME", SchemeCookie)),
		RedisURL:         os.Getenv("REDIS_URL"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		AccessLog:        strings.EqualFold(os.Getenv("SANDBOX_ACCESS_LOG"), "true"),
	}

	var err error
	if cfg.APITimeout, err = durationEnv("API_TIMEOUT_SECONDS", "API_TIMEOUT", defaultAPITimeout); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT_SECONDS", "SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL_SECONDS", "IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.PageSize, err = intEnv("PAGE_SIZE", DefaultPageSize); err != nil {
		return Config{}, err
	}
	if cfg.LoginAttemptsPerMinute, err = intEnv("LOGIN_ATTEMPTS_PER_MINUTE", defaultLoginAttempts); err != nil {
		return Config{}, err
	}

	opening := getEnv("SANDBOX_OPENING_BALANCE", defaultOpeningBalance)
	if cfg.OpeningBalance, err = decimal.NewFromString(opening); err != nil {
		return Config{}, fmt.Errorf("invalid SANDBOX_OPENING_BALANCE: %w", err)
	}

	switch cfg.CredentialScheme {
	case SchemeCookie, SchemeToken:
	default:
		return Config{}, fmt.Errorf("invalid WALLET_AUTH_SCHEME %q: want %s or %s", cfg.CredentialScheme, SchemeCookie, SchemeToken)
	}

	if cfg.PageSize <= 0 {
		return Config{}, fmt.Errorf("PAGE_SIZE must be positive")
	}

	return cfg, nil
}

// APIBase returns the root that every REST path is resolved against.
func (c Config) APIBase() string {
	return c.BaseURL + "/api"
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

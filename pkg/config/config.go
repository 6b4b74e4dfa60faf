// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults for all tunables. The token timing values satisfy the
// refresh invariant: Trigger > Leeway + Interval (130 > 65 + 55).
const (
	DefaultPort             = 8080
	DefaultCacheTTL         = 3600 * time.Second
	DefaultHTTPTimeout      = 10 * time.Second
	DefaultRefreshInterval  = 55 * time.Second
	DefaultRefreshTrigger   = 130 * time.Second
	DefaultTokenLeeway      = 65 * time.Second
	DefaultMaxRetryAttempts = 5
	DefaultRestartDelay     = 2 * time.Second
)

// Config holds the full service configuration.
type Config struct {
	// SubscriptionID is the Azure subscription to query versions for (required).
	SubscriptionID string

	// ShowPreview includes preview Kubernetes versions in responses.
	ShowPreview bool

	// Port is the HTTP listen port.
	Port int

	// CacheTTL is how long a fetched version list is served from cache.
	CacheTTL time.Duration

	// HTTPTimeout is the hard deadline for a single upstream request.
	HTTPTimeout time.Duration

	// RefreshInterval is how often the token worker wakes up.
	RefreshInterval time.Duration

	// RefreshTrigger is the remaining token lifetime below which the
	// worker proactively renews the token.
	RefreshTrigger time.Duration

	// TokenLeeway is the minimum remaining lifetime for a token to be
	// handed out for an outbound call.
	TokenLeeway time.Duration

	// MaxRetryAttempts bounds the retry loop around upstream fetches.
	MaxRetryAttempts int

	// RestartDelay is the pause before the supervisor respawns a dead worker.
	RestartDelay time.Duration

	// RedisURL enables the shared Redis cache layer when non-empty.
	RedisURL string

	// MgmtBaseURL overrides the Azure management endpoint (tests, sovereign clouds).
	MgmtBaseURL string

	// Logging
	LogLevel  string
	LogPretty bool
}

// Load reads the configuration from environment variables, applies
// defaults, and validates it. The token timing invariant is enforced
// here so a misconfigured deployment fails at startup instead of
// serving requests with expired tokens.
func Load() (Config, error) {
	cfg := Config{
		SubscriptionID: os.Getenv("AZ_SUBSCRIPTION_ID"),
		RedisURL:       os.Getenv("REDIS_URL"),
		MgmtBaseURL:    os.Getenv("AZURE_MGMT_BASE_URL"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.ShowPreview, err = getEnvBool("SHOW_PREVIEW", false); err != nil {
		return Config{}, err
	}
	if cfg.LogPretty, err = getEnvBool("LOG_PRETTY", false); err != nil {
		return Config{}, err
	}
	if cfg.Port, err = getEnvInt("HTTP_PORT", DefaultPort); err != nil {
		return Config{}, err
	}
	if cfg.MaxRetryAttempts, err = getEnvInt("MAX_RETRY_ATTEMPTS", DefaultMaxRetryAttempts); err != nil {
		return Config{}, err
	}
	if cfg.CacheTTL, err = getEnvSeconds("CACHE_TTL_SECONDS", DefaultCacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.HTTPTimeout, err = getEnvSeconds("HTTP_TIMEOUT_SECONDS", DefaultHTTPTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RefreshInterval, err = getEnvSeconds("TOKEN_REFRESH_INTERVAL_SECONDS", DefaultRefreshInterval); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTrigger, err = getEnvSeconds("TOKEN_REFRESH_TRIGGER_SECONDS", DefaultRefreshTrigger); err != nil {
		return Config{}, err
	}
	if cfg.TokenLeeway, err = getEnvSeconds("TOKEN_LEEWAY_SECONDS", DefaultTokenLeeway); err != nil {
		return Config{}, err
	}
	if cfg.RestartDelay, err = getEnvSeconds("WORKER_RESTART_DELAY_SECONDS", DefaultRestartDelay); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields and the token timing invariant.
//
// The invariant Trigger > Leeway + Interval guarantees that a token the
// worker judged not-yet-due at one tick is still above the leeway, and
// therefore still usable for outbound calls, at the next tick.
func (c Config) Validate() error {
	if c.SubscriptionID == "" {
		return fmt.Errorf("AZ_SUBSCRIPTION_ID is required")
	}
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("MAX_RETRY_ATTEMPTS must be >= 1 (got %d)", c.MaxRetryAttempts)
	}
	if c.RefreshTrigger <= c.TokenLeeway+c.RefreshInterval {
		return fmt.Errorf("token refresh trigger (%s) must exceed leeway (%s) + refresh interval (%s)",
			c.RefreshTrigger, c.TokenLeeway, c.RefreshInterval)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, value)
	}
	return parsed, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return parsed, nil
}

func getEnvSeconds(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0, fmt.Errorf("%s: invalid seconds value %q", key, value)
	}
	return time.Duration(parsed) * time.Second, nil
}

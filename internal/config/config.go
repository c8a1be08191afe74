// Package config loads and validates the execution core's configuration
// from the process environment. Unlike the upstream Polymarket bot this is
// derived from, there is no YAML file: every setting here is a narrow,
// documented env var, so Load binds viper purely to the
// environment rather than a config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for the Kalshi execution core.
type Config struct {
	APIKey     string `mapstructure:"api_key"`
	PrivateKey string `mapstructure:"private_key"` // PEM, \n escapes permitted
	UseDemo    bool   `mapstructure:"use_demo"`

	RateLimit         int     `mapstructure:"rate_limit"`
	MaxAttempt        int     `mapstructure:"max_attempt"`
	BaseDelaySeconds  float64 `mapstructure:"base_delay"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	MaxDelaySeconds   float64 `mapstructure:"max_delay"`
	OrderbookDepth    int     `mapstructure:"orderbook_depth"`

	// ObservabilityDBPath is read from OBSERVABILITY_DB_PATH directly
	// (unprefixed), not through viper's KALSHI_-prefixed AutomaticEnv path.
	ObservabilityDBPath string
}

const (
	demoBaseURL = "https://demo-api.kalshi.co"
	prodBaseURL = "https://api.elections.kalshi.com"

	defaultUseDemo             = true
	defaultRateLimit           = 20
	defaultMaxAttempt          = 5
	defaultBaseDelaySeconds    = 0.5
	defaultBackoffMultiplier   = 2.0
	defaultMaxDelaySeconds     = 30.0
	defaultOrderbookDepth      = 10
	defaultObservabilityDBPath = "observability.db"
)

// BaseURL returns the Kalshi REST base URL implied by UseDemo.
func (c Config) BaseURL() string {
	if c.UseDemo {
		return demoBaseURL
	}
	return prodBaseURL
}

// Load reads configuration from environment variables.
// Required: KALSHI_API_KEY, KALSHI_PRIVATE_KEY. All others have defaults.
//
// Every numeric/boolean field is parsed through ParseBoolEnv/ParseIntEnv/
// ParseFloatEnv rather than viper's Get*, whose cast.ToBoolE/cast.ToIntE
// machinery silently swallows conversion errors and falls back to the zero
// value. A malformed KALSHI_USE_DEMO, for instance, must fail Load rather
// than silently flip UseDemo to false and route live orders at the prod
// venue.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KALSHI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	apiKey, err := requiredEnv(v, "api_key", "KALSHI_API_KEY")
	if err != nil {
		return nil, err
	}
	privateKey, err := requiredEnv(v, "private_key", "KALSHI_PRIVATE_KEY")
	if err != nil {
		return nil, err
	}

	useDemo, err := ParseBoolEnv(v.GetString("use_demo"), defaultUseDemo)
	if err != nil {
		return nil, fmt.Errorf("KALSHI_USE_DEMO: %w", err)
	}
	rateLimit, err := ParseIntEnv(v.GetString("rate_limit"), defaultRateLimit)
	if err != nil {
		return nil, fmt.Errorf("KALSHI_RATE_LIMIT: %w", err)
	}
	maxAttempt, err := ParseIntEnv(v.GetString("max_attempt"), defaultMaxAttempt)
	if err != nil {
		return nil, fmt.Errorf("KALSHI_MAX_ATTEMPT: %w", err)
	}
	baseDelay, err := ParseFloatEnv(v.GetString("base_delay"), defaultBaseDelaySeconds)
	if err != nil {
		return nil, fmt.Errorf("KALSHI_BASE_DELAY: %w", err)
	}
	backoffMultiplier, err := ParseFloatEnv(v.GetString("backoff_multiplier"), defaultBackoffMultiplier)
	if err != nil {
		return nil, fmt.Errorf("KALSHI_BACKOFF_MULTIPLIER: %w", err)
	}
	maxDelay, err := ParseFloatEnv(v.GetString("max_delay"), defaultMaxDelaySeconds)
	if err != nil {
		return nil, fmt.Errorf("KALSHI_MAX_DELAY: %w", err)
	}
	orderbookDepth, err := ParseIntEnv(v.GetString("orderbook_depth"), defaultOrderbookDepth)
	if err != nil {
		return nil, fmt.Errorf("KALSHI_ORDERBOOK_DEPTH: %w", err)
	}

	// Unlike every other setting, OBSERVABILITY_DB_PATH carries no KALSHI_
	// prefix, so it is read directly rather than through the prefixed
	// viper AutomaticEnv path.
	dbPath := os.Getenv("OBSERVABILITY_DB_PATH")
	if dbPath == "" {
		dbPath = defaultObservabilityDBPath
	}

	cfg := &Config{
		APIKey:              apiKey,
		PrivateKey:          strings.ReplaceAll(privateKey, `\n`, "\n"),
		UseDemo:             useDemo,
		RateLimit:           rateLimit,
		MaxAttempt:          maxAttempt,
		BaseDelaySeconds:    baseDelay,
		BackoffMultiplier:   backoffMultiplier,
		MaxDelaySeconds:     maxDelay,
		OrderbookDepth:      orderbookDepth,
		ObservabilityDBPath: dbPath,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// requiredEnv reads a viper-bound key, rejecting unset values and the
// "your_*_here" placeholder convention from the original .env template.
func requiredEnv(v *viper.Viper, key, envName string) (string, error) {
	val := strings.TrimSpace(v.GetString(key))
	if val == "" {
		return "", fmt.Errorf("%s is required", envName)
	}
	if strings.HasPrefix(val, "your_") && strings.HasSuffix(val, "_here") {
		return "", fmt.Errorf("%s is required: replace the placeholder value", envName)
	}
	return val, nil
}

// Validate checks required fields, PEM shape, and numeric tuning knobs.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("KALSHI_API_KEY is required")
	}
	trimmed := strings.TrimSpace(c.PrivateKey)
	if !strings.HasPrefix(trimmed, "-----BEGIN") || !strings.HasSuffix(trimmed, "-----") {
		return fmt.Errorf("KALSHI_PRIVATE_KEY must be PEM, starting with '-----BEGIN' and ending with '-----'")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("KALSHI_RATE_LIMIT must be > 0, got %d", c.RateLimit)
	}
	if c.MaxAttempt <= 0 {
		return fmt.Errorf("KALSHI_MAX_ATTEMPT must be > 0, got %d", c.MaxAttempt)
	}
	if c.BaseDelaySeconds <= 0 {
		return fmt.Errorf("KALSHI_BASE_DELAY must be > 0, got %v", c.BaseDelaySeconds)
	}
	if c.BackoffMultiplier <= 0 {
		return fmt.Errorf("KALSHI_BACKOFF_MULTIPLIER must be > 0, got %v", c.BackoffMultiplier)
	}
	if c.MaxDelaySeconds <= 0 {
		return fmt.Errorf("KALSHI_MAX_DELAY must be > 0, got %v", c.MaxDelaySeconds)
	}
	if c.OrderbookDepth <= 0 {
		return fmt.Errorf("KALSHI_ORDERBOOK_DEPTH must be > 0, got %d", c.OrderbookDepth)
	}
	return nil
}

// ParseBoolEnv parses a permissive boolean env var: empty input falls back
// to fallback; anything else must be one of a fixed set of spellings or
// Load fails fast with an error rather than silently coercing a typo
// to false the way viper's cast.ToBoolE does.
func ParseBoolEnv(raw string, fallback bool) (bool, error) {
	if raw == "" {
		return fallback, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "y", "on":
		return true, nil
	case "false", "0", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("must be a boolean (true/false), got %q", raw)
	}
}

// ParseIntEnv parses an integer env var: empty input falls back to
// fallback; anything else must parse cleanly or Load fails fast.
func ParseIntEnv(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("must be an integer, got %q", raw)
	}
	return n, nil
}

// ParseFloatEnv parses a float env var: empty input falls back to
// fallback; anything else must parse cleanly or Load fails fast.
func ParseFloatEnv(raw string, fallback float64) (float64, error) {
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("must be a float, got %q", raw)
	}
	return f, nil
}

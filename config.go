package tether

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hedeqiang/tether/retry"
	"github.com/hedeqiang/tether/transport"
)

// Environment variables read by LoadConfig after the file.
const (
	EnvBaseURL    = "TETHER_BASE_URL"
	EnvProfile    = "TETHER_PROFILE"
	EnvLogLevel   = "TETHER_LOG_LEVEL"
	EnvPassphrase = "TETHER_PASSPHRASE"
)

// Config holds the global configuration for a Client.
type Config struct {
	// BaseURL is the node address, e.g. https://node.example.com.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each HTTP attempt.
	Timeout time.Duration `yaml:"timeout"`

	// Headers are sent with every HTTP request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Credentials is the cookie policy: same-origin, include or omit.
	Credentials string `yaml:"credentials"`

	Retry     RetryConfig     `yaml:"retry"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	WebSocket WebSocketConfig `yaml:"websocket"`

	// TokenFile stores tokens on disk. Empty keeps them in memory.
	TokenFile string `yaml:"token_file,omitempty"`

	// Profile selects the token slot inside TokenFile.
	Profile string `yaml:"profile"`

	// Passphrase encrypts TokenFile. It is only read from the environment.
	Passphrase string `yaml:"-"`

	// LogLevel is debug, info, warn or error. Empty disables logging.
	LogLevel string `yaml:"log_level,omitempty"`

	// LogFormat is text or json.
	LogFormat string `yaml:"log_format,omitempty"`
}

// RetryConfig configures the HTTP retry policy. Attempts below 2 disable
// retries.
type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
	Factor    float64       `yaml:"factor"`

	// RetryOn lists extra status codes to retry, typically 429.
	RetryOn []int `yaml:"retry_on,omitempty"`
}

// BreakerConfig configures the circuit breaker middleware. A zero Threshold
// disables it.
type BreakerConfig struct {
	Threshold    int           `yaml:"threshold"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// RateLimitConfig configures client-side throttling. A zero Interval
// disables it.
type RateLimitConfig struct {
	Interval time.Duration `yaml:"interval"`
	Burst    int           `yaml:"burst"`
}

// WebSocketConfig configures the event client.
type WebSocketConfig struct {
	Path                 string        `yaml:"path"`
	AutoReconnect        bool          `yaml:"auto_reconnect"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
}

// DefaultConfig returns a Config with sensible defaults and no base URL.
func DefaultConfig() Config {
	p := retry.DefaultPolicy()
	return Config{
		Timeout:     30 * time.Second,
		Credentials: transport.SameOrigin.String(),
		Retry: RetryConfig{
			Attempts:  p.Attempts,
			BaseDelay: p.BaseDelay,
			MaxDelay:  p.MaxDelay,
			Factor:    p.Factor,
		},
		WebSocket: WebSocketConfig{
			Path:                 "/ws",
			AutoReconnect:        true,
			MaxReconnectAttempts: 5,
			ReconnectDelay:       time.Second,
			RequestTimeout:       30 * time.Second,
		},
		Profile:   "default",
		LogFormat: "text",
	}
}

// LoadConfig layers DefaultConfig, the YAML file at path and the TETHER_*
// environment. A missing file is not an error; an empty path skips it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("tether: read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("tether: parse config %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvProfile); v != "" {
		cfg.Profile = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPassphrase); v != "" {
		cfg.Passphrase = v
	}
	return cfg, nil
}

// credentialsMode parses Credentials.
func (c Config) credentialsMode() (transport.CredentialsMode, error) {
	switch strings.ToLower(c.Credentials) {
	case "", "same-origin":
		return transport.SameOrigin, nil
	case "include":
		return transport.Include, nil
	case "omit":
		return transport.Omit, nil
	default:
		return 0, fmt.Errorf("%w: credentials %q", ErrInvalidConfig, c.Credentials)
	}
}

// retryPolicy returns the configured policy, or nil when retries are off.
func (c Config) retryPolicy() *retry.Policy {
	if c.Retry.Attempts < 2 {
		return nil
	}
	p := retry.Policy{
		Attempts:  c.Retry.Attempts,
		BaseDelay: c.Retry.BaseDelay,
		MaxDelay:  c.Retry.MaxDelay,
		Factor:    c.Retry.Factor,
	}
	if len(c.Retry.RetryOn) > 0 {
		p.ShouldRetry = retry.RetryOn(c.Retry.RetryOn...)
	}
	return &p
}

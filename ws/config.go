package ws

import (
	"context"
	"log/slog"
	"time"
)

// State is the connection state of a Client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Config holds the settings of a Client.
type Config struct {
	// BaseURL is the node address; http(s) is mapped to ws(s).
	BaseURL string

	// Path is appended to the base URL path. Default "/ws".
	Path string

	// TokenGetter supplies the token sent in the TokenParam query parameter.
	TokenGetter func(ctx context.Context) (string, error)

	// TokenParam names the query parameter carrying the token. Default "token".
	TokenParam string

	// AutoReconnect re-establishes unexpectedly closed connections.
	AutoReconnect bool

	// MaxReconnectAttempts bounds consecutive reconnect attempts.
	MaxReconnectAttempts int

	// ReconnectDelay is the first reconnect delay; it doubles per attempt.
	ReconnectDelay time.Duration

	// RequestTimeout bounds the wait for each response. Default 30s.
	RequestTimeout time.Duration

	// Dialer opens sockets. Default GorillaDialer.
	Dialer Dialer

	Logger *slog.Logger
}

// DefaultConfig returns the default client settings.
func DefaultConfig() Config {
	return Config{
		Path:                 "/ws",
		TokenParam:           "token",
		AutoReconnect:        true,
		MaxReconnectAttempts: 5,
		ReconnectDelay:       time.Second,
		RequestTimeout:       30 * time.Second,
		Dialer:               GorillaDialer{},
	}
}

// Option configures a Client.
type Option func(*Config)

// WithPath sets the socket path.
func WithPath(path string) Option {
	return func(c *Config) {
		c.Path = path
	}
}

// WithTokenGetter sets the token source.
func WithTokenGetter(fn func(ctx context.Context) (string, error)) Option {
	return func(c *Config) {
		c.TokenGetter = fn
	}
}

// WithAutoReconnect enables or disables auto-reconnect.
func WithAutoReconnect(enabled bool) Option {
	return func(c *Config) {
		c.AutoReconnect = enabled
	}
}

// WithReconnect sets the attempt budget and first delay of auto-reconnect.
func WithReconnect(maxAttempts int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxReconnectAttempts = maxAttempts
		c.ReconnectDelay = delay
	}
}

// WithRequestTimeout sets the response timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// WithDialer sets the socket implementation.
func WithDialer(d Dialer) Option {
	return func(c *Config) {
		if d != nil {
			c.Dialer = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}
